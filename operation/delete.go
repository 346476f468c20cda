package operation

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// DeleteStatement is one element of a delete command's deletes array.
type DeleteStatement struct {
	Filter bson.D
	Limit  int32 // 0 = delete all matches, 1 = delete at most one
}

// Delete is the delete descriptor.
type Delete struct {
	base
	Deletes []DeleteStatement
	Ordered bool
}

// NewDelete builds a Delete descriptor targeting db.collection.
func NewDelete(db, collection string, deletes []DeleteStatement) *Delete {
	return &Delete{
		base:    base{Database: db, Collection: collection, acknowledged: true},
		Deletes: deletes,
		Ordered: true,
	}
}

func (op *Delete) Name() string { return "delete" }

func (op *Delete) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	if len(op.Deletes) == 0 {
		return wiremsg.Command{}, fmt.Errorf("delete: no statements")
	}
	docs := make(bson.A, 0, len(op.Deletes))
	for _, d := range op.Deletes {
		docs = append(docs, bson.D{
			{Key: "q", Value: d.Filter},
			{Key: "limit", Value: d.Limit},
		})
	}
	cmd := wiremsg.NewCommand("delete", op.Collection, op.Database)
	cmd.Append("deletes", docs)
	cmd.Append("ordered", op.Ordered)
	return cmd, nil
}

func (op *Delete) Decode(reply bson.Raw, _ description.StreamDescription) (response.WriteCommandResult, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.WriteCommandResult{}, err
	}
	result := response.DecodeWriteCommandResult(reply, 0)
	return result, result.Validate()
}

func (op *Delete) RecoverFromError(err error) (response.WriteCommandResult, bool) {
	return response.WriteCommandResult{}, false
}

func (op *Delete) Retryability() Retryability {
	if len(op.Deletes) == 1 && op.Deletes[0].Limit == 1 {
		return RetryWrite
	}
	return RetryNone
}

func (op *Delete) UpdateForRetry() {}
