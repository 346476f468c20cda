package operation

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// Insert is the insert descriptor. It may batch; the reply is a write
// body whose per-document errors carry indices into the batch actually
// sent, which Decode translates back to indices into Documents by adding
// batchOffset.
type Insert struct {
	base
	Documents []bson.D
	Ordered   bool

	// batchOffset is the index, within Documents, of the first document
	// Build sends. Nothing in this package changes it from 0:
	// UpdateForRetry does not narrow the batch.
	batchOffset int
}

// NewInsert builds an Insert descriptor targeting db.collection.
func NewInsert(db, collection string, documents []bson.D) *Insert {
	return &Insert{
		base:      base{Database: db, Collection: collection, acknowledged: true},
		Documents: documents,
		Ordered:   true,
	}
}

func (op *Insert) Name() string { return "insert" }

func (op *Insert) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	if len(op.Documents) == 0 {
		return wiremsg.Command{}, fmt.Errorf("insert: no documents to insert")
	}
	batch := op.Documents[op.batchOffset:]
	if sd.MaxWriteBatchSize > 0 && len(batch) > int(sd.MaxWriteBatchSize) {
		batch = batch[:sd.MaxWriteBatchSize]
	}

	cmd := wiremsg.NewCommand("insert", op.Collection, op.Database)
	cmd.Append("documents", batch)
	cmd.Append("ordered", op.Ordered)
	return cmd, nil
}

func (op *Insert) Decode(reply bson.Raw, _ description.StreamDescription) (response.WriteCommandResult, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.WriteCommandResult{}, err
	}
	result := response.DecodeWriteCommandResult(reply, op.batchOffset)
	return result, result.Validate()
}

func (op *Insert) RecoverFromError(err error) (response.WriteCommandResult, bool) {
	return response.WriteCommandResult{}, false
}

func (op *Insert) Retryability() Retryability {
	if len(op.Documents)-op.batchOffset == 1 {
		return RetryWrite
	}
	return RetryNone
}

// UpdateForRetry is a no-op for Insert: a multi-document insert is
// RetryNone (never retried), and a single-document insert has nothing to
// narrow.
func (op *Insert) UpdateForRetry() {}
