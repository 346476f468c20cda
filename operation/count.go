package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// Count is the legacy count descriptor; plain reply carrying {n: <int>}.
type Count struct {
	base
	Filter bson.D
}

// NewCount builds a Count descriptor targeting db.collection.
func NewCount(db, collection string, filter bson.D) *Count {
	return &Count{base: base{Database: db, Collection: collection}, Filter: filter}
}

func (op *Count) Name() string { return "count" }

func (op *Count) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("count", op.Collection, op.Database)
	cmd.Append("query", op.Filter)
	return cmd, nil
}

func (op *Count) Decode(reply bson.Raw, _ description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	return response.DecodePlain(reply), nil
}

func (op *Count) RecoverFromError(err error) (response.PlainBody, bool) { return response.PlainBody{}, false }

func (op *Count) Retryability() Retryability { return RetryRead }

func (op *Count) UpdateForRetry() {}

// CountDocuments is the aggregation-pipeline-backed count descriptor;
// plain reply carrying {n: <int>} projected from a $group stage.
type CountDocuments struct {
	base
	Pipeline bson.A
}

// NewCountDocuments builds a CountDocuments descriptor.
func NewCountDocuments(db, collection string, filter bson.D) *CountDocuments {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	return &CountDocuments{base: base{Database: db, Collection: collection}, Pipeline: pipeline}
}

func (op *CountDocuments) Name() string { return "aggregate" }

func (op *CountDocuments) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("aggregate", op.Collection, op.Database)
	cmd.Append("pipeline", op.Pipeline)
	cmd.Append("cursor", bson.D{})
	return cmd, nil
}

func (op *CountDocuments) Decode(reply bson.Raw, sd description.StreamDescription) (response.PlainBody, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.PlainBody{}, err
	}
	cr, err := response.DecodeCursorResponse(reply)
	if err != nil {
		return response.PlainBody{}, err
	}
	if len(cr.FirstBatch) == 0 {
		zero, marshalErr := bson.Marshal(bson.D{{Key: "n", Value: int32(0)}})
		if marshalErr != nil {
			return response.PlainBody{}, marshalErr
		}
		return response.PlainBody{Raw: zero}, nil
	}
	return response.PlainBody{Raw: cr.FirstBatch[0]}, nil
}

func (op *CountDocuments) RecoverFromError(err error) (response.PlainBody, bool) {
	return response.PlainBody{}, false
}

func (op *CountDocuments) Retryability() Retryability { return RetryRead }

func (op *CountDocuments) UpdateForRetry() {}
