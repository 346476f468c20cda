package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// Find is the find descriptor; its reply is cursor-bearing and its first
// batch is handed to the cursor driver (spec.md §4.3).
type Find struct {
	base
	Filter    bson.D
	Sort      bson.D
	Limit     int64
	BatchSize int32
}

// FindOption configures a Find descriptor at construction time.
type FindOption func(*Find)

// WithSelectionCriteria constrains which server may run this find, e.g.
// routing it to a secondary. A nil criteria (the default) requests the
// topology's default server.
func WithSelectionCriteria(rp *description.ReadPref) FindOption {
	return func(op *Find) { op.readPref = rp }
}

// NewFind builds a Find descriptor targeting db.collection.
func NewFind(db, collection string, filter bson.D, opts ...FindOption) *Find {
	op := &Find{
		base:   base{Database: db, Collection: collection},
		Filter: filter,
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

func (op *Find) Name() string { return "find" }

func (op *Find) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("find", op.Collection, op.Database)
	cmd.Append("filter", op.Filter)
	if op.Sort != nil {
		cmd.Append("sort", op.Sort)
	}
	if op.BatchSize > 0 {
		cmd.Append("batchSize", op.BatchSize)
	}
	if op.Limit != 0 {
		cmd.Append("limit", op.Limit)
	}
	return cmd, nil
}

func (op *Find) Decode(reply bson.Raw, _ description.StreamDescription) (response.CursorResponse, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.CursorResponse{}, err
	}
	return response.DecodeCursorResponse(reply)
}

func (op *Find) RecoverFromError(err error) (response.CursorResponse, bool) {
	return response.CursorResponse{}, false
}

func (op *Find) Retryability() Retryability { return RetryRead }

func (op *Find) UpdateForRetry() {}
