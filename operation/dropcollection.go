package operation

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// DropCollection is the drop descriptor. Per spec.md §4.1's note, a
// "namespace not found" failure is recovered to success once
// UpdateForRetry has marked the drop as retried (the executor never
// calls it, since Retryability is None), grounded on mongo-tools'
// RunRetryableDrop.
type DropCollection struct {
	base
	attempted bool
}

// NewDropCollection builds a DropCollection descriptor.
func NewDropCollection(db, collection string) *DropCollection {
	return &DropCollection{base: base{Database: db, Collection: collection, acknowledged: true}}
}

func (op *DropCollection) Name() string { return "drop" }

func (op *DropCollection) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	return wiremsg.NewCommand("drop", op.Collection, op.Database), nil
}

func (op *DropCollection) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *DropCollection) RecoverFromError(err error) (response.PlainBody, bool) {
	if !op.attempted {
		return response.PlainBody{}, false
	}
	var ce *mongoerr.CommandError
	if errors.As(err, &ce) && ce.Code == codeNamespaceNotFound {
		return response.PlainBody{}, true
	}
	return response.PlainBody{}, false
}

func (op *DropCollection) Retryability() Retryability { return RetryNone }

func (op *DropCollection) UpdateForRetry() { op.attempted = true }

// DropDatabase is the dropDatabase descriptor; always succeeds even if
// the database does not exist, so it needs no recovery hook.
type DropDatabase struct {
	base
}

// NewDropDatabase builds a DropDatabase descriptor for db.
func NewDropDatabase(db string) *DropDatabase {
	return &DropDatabase{base: base{Database: db, acknowledged: true}}
}

func (op *DropDatabase) Name() string { return "dropDatabase" }

func (op *DropDatabase) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	return wiremsg.NewCommand("dropDatabase", int32(1), op.Database), nil
}

func (op *DropDatabase) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *DropDatabase) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

func (op *DropDatabase) Retryability() Retryability { return RetryNone }

func (op *DropDatabase) UpdateForRetry() {}
