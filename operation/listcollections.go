package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/wiremsg"
)

// ListCollections is the listCollections descriptor; cursor-bearing.
type ListCollections struct {
	base
	Filter       bson.D
	NameOnly     bool
}

// NewListCollections builds a ListCollections descriptor for db.
func NewListCollections(db string, filter bson.D) *ListCollections {
	return &ListCollections{base: base{Database: db}, Filter: filter}
}

func (op *ListCollections) Name() string { return "listCollections" }

func (op *ListCollections) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("listCollections", int32(1), op.Database)
	cmd.Append("filter", op.Filter)
	if op.NameOnly {
		cmd.Append("nameOnly", true)
	}
	return cmd, nil
}

func (op *ListCollections) Decode(reply bson.Raw, _ description.StreamDescription) (response.CursorResponse, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.CursorResponse{}, err
	}
	return response.DecodeCursorResponse(reply)
}

func (op *ListCollections) RecoverFromError(err error) (response.CursorResponse, bool) {
	return response.CursorResponse{}, false
}

func (op *ListCollections) Retryability() Retryability { return RetryRead }

func (op *ListCollections) UpdateForRetry() {}

// ListDatabases is the listDatabases descriptor; cursor-bearing, like
// find/aggregate/listCollections/getMore.
type ListDatabases struct {
	base
	Filter   bson.D
	NameOnly bool
}

// NewListDatabases builds a ListDatabases descriptor.
func NewListDatabases(filter bson.D) *ListDatabases {
	return &ListDatabases{base: base{Database: "admin"}, Filter: filter}
}

func (op *ListDatabases) Name() string { return "listDatabases" }

func (op *ListDatabases) Build(sd description.StreamDescription) (wiremsg.Command, error) {
	cmd := wiremsg.NewCommand("listDatabases", int32(1), op.Database)
	cmd.Append("filter", op.Filter)
	if op.NameOnly {
		cmd.Append("nameOnly", true)
	}
	return cmd, nil
}

func (op *ListDatabases) Decode(reply bson.Raw, _ description.StreamDescription) (response.CursorResponse, error) {
	if err := response.ExtractCommandError(reply); err != nil {
		return response.CursorResponse{}, err
	}
	return response.DecodeCursorResponse(reply)
}

func (op *ListDatabases) RecoverFromError(err error) (response.CursorResponse, bool) {
	return response.CursorResponse{}, false
}

func (op *ListDatabases) Retryability() Retryability { return RetryRead }

func (op *ListDatabases) UpdateForRetry() {}
