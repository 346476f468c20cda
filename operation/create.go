package operation

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

const (
	codeNamespaceExists  int32 = 48
	codeNamespaceNotFound int32 = 26
)

// Create is the create-collection descriptor. Administrative DDL: never
// retried by the executor's retry-decision path (Retryability is None),
// so the executor never calls its UpdateForRetry. Once a caller has
// called UpdateForRetry to mark a hand re-issue as a retry, a
// "namespace already exists" failure is recovered to success, the way
// mongo-tools' RunRetryableCreate treats NamespaceExists as success only
// when isRetry is true.
type Create struct {
	base
	Options   bson.D
	attempted bool
}

// NewCreate builds a Create descriptor targeting db.collection.
func NewCreate(db, collection string, options bson.D) *Create {
	return &Create{base: base{Database: db, Collection: collection, acknowledged: true}, Options: options}
}

func (op *Create) Name() string { return "create" }

func (op *Create) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("create", op.Collection, op.Database)
	cmd.Body = append(cmd.Body, op.Options...)
	return cmd, nil
}

func (op *Create) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *Create) RecoverFromError(err error) (response.PlainBody, bool) {
	if !op.attempted {
		return response.PlainBody{}, false
	}
	var ce *mongoerr.CommandError
	if errors.As(err, &ce) && ce.Code == codeNamespaceExists {
		return response.PlainBody{}, true
	}
	return response.PlainBody{}, false
}

func (op *Create) Retryability() Retryability { return RetryNone }

func (op *Create) UpdateForRetry() { op.attempted = true }
