package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// Distinct is the distinct descriptor; plain reply carrying {values: [...]}.
type Distinct struct {
	base
	FieldName string
	Filter    bson.D
}

// NewDistinct builds a Distinct descriptor targeting db.collection.
func NewDistinct(db, collection, field string, filter bson.D) *Distinct {
	return &Distinct{base: base{Database: db, Collection: collection}, FieldName: field, Filter: filter}
}

func (op *Distinct) Name() string { return "distinct" }

func (op *Distinct) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("distinct", op.Collection, op.Database)
	cmd.Append("key", op.FieldName)
	cmd.Append("query", op.Filter)
	return cmd, nil
}

func (op *Distinct) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *Distinct) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

func (op *Distinct) Retryability() Retryability { return RetryRead }

func (op *Distinct) UpdateForRetry() {}
