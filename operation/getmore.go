package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// GetMore issues a continuation request for an open cursor. It is never
// retried: a failed getMore leaves the cursor's position ambiguous.
type GetMore struct {
	base
	CursorID  int64
	BatchSize int32
}

// NewGetMore builds a GetMore descriptor for cursorID against db.collection.
func NewGetMore(db, collection string, cursorID int64, batchSize int32) *GetMore {
	return &GetMore{
		base:      base{Database: db, Collection: collection},
		CursorID:  cursorID,
		BatchSize: batchSize,
	}
}

func (op *GetMore) Name() string { return "getMore" }

func (op *GetMore) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("getMore", op.CursorID, op.Database)
	cmd.Append("collection", op.Collection)
	if op.BatchSize > 0 {
		cmd.Append("batchSize", op.BatchSize)
	}
	return cmd, nil
}

func (op *GetMore) Decode(reply bson.Raw, _ description.StreamDescription) (response.CursorResponse, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.CursorResponse{}, err
	}
	return response.DecodeCursorResponse(reply)
}

func (op *GetMore) RecoverFromError(err error) (response.CursorResponse, bool) {
	return response.CursorResponse{}, false
}

func (op *GetMore) Retryability() Retryability { return RetryNone }

func (op *GetMore) UpdateForRetry() {}

// KillCursors is the best-effort cleanup command issued when a
// non-exhausted cursor is dropped; failures are ignored by the caller.
type KillCursors struct {
	base
	CursorIDs []int64
}

// NewKillCursors builds a KillCursors descriptor for the given cursor ids.
func NewKillCursors(db, collection string, cursorIDs []int64) *KillCursors {
	return &KillCursors{
		base:      base{Database: db, Collection: collection},
		CursorIDs: cursorIDs,
	}
}

func (op *KillCursors) Name() string { return "killCursors" }

func (op *KillCursors) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("killCursors", op.Collection, op.Database)
	cmd.Append("cursors", op.CursorIDs)
	return cmd, nil
}

func (op *KillCursors) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *KillCursors) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

func (op *KillCursors) Retryability() Retryability { return RetryNone }

func (op *KillCursors) UpdateForRetry() {}
