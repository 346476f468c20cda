package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// FindAndModifyVariant selects which of the delete/replace/update shapes
// a FindAndModify descriptor builds.
type FindAndModifyVariant int

const (
	FindAndModifyUpdate FindAndModifyVariant = iota
	FindAndModifyReplace
	FindAndModifyDelete
)

// FindAndModify is the findAndModify descriptor; plain reply.
type FindAndModify struct {
	base
	Variant FindAndModifyVariant
	Filter  bson.D
	Sort    bson.D
	Update  bson.D // used for Update and Replace variants
	Upsert  bool
	ReturnNew bool
}

// NewFindAndModify builds a FindAndModify descriptor targeting db.collection.
func NewFindAndModify(db, collection string, variant FindAndModifyVariant, filter bson.D) *FindAndModify {
	return &FindAndModify{
		base:    base{Database: db, Collection: collection, acknowledged: true},
		Variant: variant,
		Filter:  filter,
	}
}

func (op *FindAndModify) Name() string { return "findAndModify" }

func (op *FindAndModify) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("findAndModify", op.Collection, op.Database)
	cmd.Append("query", op.Filter)
	if op.Sort != nil {
		cmd.Append("sort", op.Sort)
	}
	switch op.Variant {
	case FindAndModifyDelete:
		cmd.Append("remove", true)
	default:
		cmd.Append("update", op.Update)
		cmd.Append("upsert", op.Upsert)
		cmd.Append("new", op.ReturnNew)
	}
	return cmd, nil
}

func (op *FindAndModify) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *FindAndModify) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

func (op *FindAndModify) Retryability() Retryability { return RetryWrite }

func (op *FindAndModify) UpdateForRetry() {}
