package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// RunCommand sends an arbitrary command document verbatim, for callers
// that need an escape hatch from the typed descriptors above.
type RunCommand struct {
	base
	Body bson.D
}

// NewRunCommand builds a RunCommand descriptor for the given database.
func NewRunCommand(db string, body bson.D) *RunCommand {
	return &RunCommand{base: base{Database: db}, Body: body}
}

func (op *RunCommand) Name() string {
	if len(op.Body) == 0 {
		return "runCommand"
	}
	return op.Body[0].Key
}

func (op *RunCommand) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	return wiremsg.Command{Database: op.Database, Body: op.Body}, nil
}

func (op *RunCommand) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *RunCommand) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

// Retryability is None: an arbitrary command's idempotence is unknown to
// the core.
func (op *RunCommand) Retryability() Retryability { return RetryNone }

func (op *RunCommand) UpdateForRetry() {}
