package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// CommitTransaction is the commitTransaction descriptor; a write-concern-
// only reply. The session-state gating described in spec.md §3 (whether
// commit is a no-op, and the unconditional-retry-until-commit-deadline
// exception) is implemented by the session-aware wrapper in package
// driver, not here: this descriptor always sends the command when asked.
type CommitTransaction struct {
	base
	MaxCommitTimeMS int64
}

// NewCommitTransaction builds a CommitTransaction descriptor. wc is the
// transaction's write concern, attached here since commit is one of the
// two commands (with abort) permitted to carry writeConcern inside a
// transaction.
func NewCommitTransaction(db string, wc bson.D) *CommitTransaction {
	return &CommitTransaction{base: base{Database: db, writeConcern: wc, acknowledged: true}}
}

func (op *CommitTransaction) Name() string { return "commitTransaction" }

func (op *CommitTransaction) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("commitTransaction", int32(1), op.Database)
	if op.MaxCommitTimeMS > 0 {
		cmd.Append("maxTimeMS", op.MaxCommitTimeMS)
	}
	return cmd, nil
}

func (op *CommitTransaction) Decode(reply bson.Raw, _ description.StreamDescription) (response.WriteConcernErrorBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.WriteConcernErrorBody{}, err
	}
	body := decodeWriteConcernErrorBody(reply)
	return body, body.Validate()
}

func (op *CommitTransaction) RecoverFromError(err error) (response.WriteConcernErrorBody, bool) {
	return response.WriteConcernErrorBody{}, false
}

// Retryability is Write; the executor's session-aware commit wrapper
// additionally retries unconditionally on network errors until the
// commit deadline, per spec.md §4.5.
func (op *CommitTransaction) Retryability() Retryability { return RetryWrite }

func (op *CommitTransaction) UpdateForRetry() {}

// AbortTransaction is the abortTransaction descriptor; a write-concern-
// only reply. Network errors observed while sending it are swallowed by
// the session-aware wrapper in package driver, per spec.md §3.
type AbortTransaction struct {
	base
}

// NewAbortTransaction builds an AbortTransaction descriptor.
func NewAbortTransaction(db string, wc bson.D) *AbortTransaction {
	return &AbortTransaction{base: base{Database: db, writeConcern: wc, acknowledged: true}}
}

func (op *AbortTransaction) Name() string { return "abortTransaction" }

func (op *AbortTransaction) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	return wiremsg.NewCommand("abortTransaction", int32(1), op.Database), nil
}

func (op *AbortTransaction) Decode(reply bson.Raw, _ description.StreamDescription) (response.WriteConcernErrorBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.WriteConcernErrorBody{}, err
	}
	body := decodeWriteConcernErrorBody(reply)
	return body, body.Validate()
}

func (op *AbortTransaction) RecoverFromError(err error) (response.WriteConcernErrorBody, bool) {
	return response.WriteConcernErrorBody{}, false
}

func (op *AbortTransaction) Retryability() Retryability { return RetryWrite }

func (op *AbortTransaction) UpdateForRetry() {}

func decodeWriteConcernErrorBody(reply bson.Raw) response.WriteConcernErrorBody {
	result := response.DecodeWriteCommandResult(reply, 0)
	return response.WriteConcernErrorBody{
		WriteConcernError: result.WriteConcernError,
		Labels:            result.Labels,
	}
}
