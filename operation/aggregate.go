package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// Aggregate is the aggregate descriptor; cursor-bearing.
type Aggregate struct {
	base
	Pipeline  bson.A
	BatchSize int32
}

// NewAggregate builds an Aggregate descriptor targeting db.collection.
// collection is empty for a database-level ($currentOp-style) pipeline.
func NewAggregate(db, collection string, pipeline bson.A) *Aggregate {
	return &Aggregate{
		base:     base{Database: db, Collection: collection},
		Pipeline: pipeline,
	}
}

func (op *Aggregate) Name() string { return "aggregate" }

func (op *Aggregate) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("aggregate", op.namespaceValue(), op.Database)
	cmd.Append("pipeline", op.Pipeline)
	cursorDoc := bson.D{}
	if op.BatchSize > 0 {
		cursorDoc = append(cursorDoc, bson.E{Key: "batchSize", Value: op.BatchSize})
	}
	cmd.Append("cursor", cursorDoc)
	return cmd, nil
}

func (op *Aggregate) Decode(reply bson.Raw, _ description.StreamDescription) (response.CursorResponse, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.CursorResponse{}, err
	}
	return response.DecodeCursorResponse(reply)
}

func (op *Aggregate) RecoverFromError(err error) (response.CursorResponse, bool) {
	return response.CursorResponse{}, false
}

// Retryability is Read unless the pipeline contains a $out/$merge stage,
// which writes and is therefore never retried automatically.
func (op *Aggregate) Retryability() Retryability {
	for _, stage := range op.Pipeline {
		doc, ok := stage.(bson.D)
		if !ok {
			continue
		}
		for _, e := range doc {
			if e.Key == "$out" || e.Key == "$merge" {
				return RetryNone
			}
		}
	}
	return RetryRead
}

func (op *Aggregate) UpdateForRetry() {}
