package operation

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// UpdateStatement is one element of an update command's updates array.
type UpdateStatement struct {
	Filter bson.D
	Update bson.D
	Upsert bool
	Multi  bool
}

// Update is the update descriptor. Unlike Insert, it sends every
// statement in one command without truncating to MaxWriteBatchSize, and
// decodes writeErrors indices with offset 0.
type Update struct {
	base
	Updates []UpdateStatement
	Ordered bool
}

// NewUpdate builds an Update descriptor targeting db.collection.
func NewUpdate(db, collection string, updates []UpdateStatement) *Update {
	return &Update{
		base:    base{Database: db, Collection: collection, acknowledged: true},
		Updates: updates,
		Ordered: true,
	}
}

func (op *Update) Name() string { return "update" }

func (op *Update) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	if len(op.Updates) == 0 {
		return wiremsg.Command{}, fmt.Errorf("update: no statements")
	}
	docs := make(bson.A, 0, len(op.Updates))
	for _, u := range op.Updates {
		docs = append(docs, bson.D{
			{Key: "q", Value: u.Filter},
			{Key: "u", Value: u.Update},
			{Key: "upsert", Value: u.Upsert},
			{Key: "multi", Value: u.Multi},
		})
	}
	cmd := wiremsg.NewCommand("update", op.Collection, op.Database)
	cmd.Append("updates", docs)
	cmd.Append("ordered", op.Ordered)
	return cmd, nil
}

func (op *Update) Decode(reply bson.Raw, _ description.StreamDescription) (response.WriteCommandResult, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.WriteCommandResult{}, err
	}
	result := response.DecodeWriteCommandResult(reply, 0)
	return result, result.Validate()
}

func (op *Update) RecoverFromError(err error) (response.WriteCommandResult, bool) {
	return response.WriteCommandResult{}, false
}

func (op *Update) Retryability() Retryability {
	if len(op.Updates) == 1 && !op.Updates[0].Multi {
		return RetryWrite
	}
	return RetryNone
}

func (op *Update) UpdateForRetry() {}
