package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/mongoerr"
)

func marshal(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	doc, err := bson.Marshal(v)
	require.NoError(t, err)
	return doc
}

func TestExtractCommandErrorOK(t *testing.T) {
	reply := marshal(t, bson.D{{Key: "ok", Value: 1.0}, {Key: "n", Value: int32(1)}})
	assert.NoError(t, ExtractCommandError(reply))
}

func TestExtractCommandErrorFailure(t *testing.T) {
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 0.0},
		{Key: "code", Value: int32(11600)},
		{Key: "codeName", Value: "InterruptedAtShutdown"},
		{Key: "errmsg", Value: "shutting down"},
		{Key: "errorLabels", Value: bson.A{"RetryableWriteError"}},
	})
	err := ExtractCommandError(reply)
	require.Error(t, err)
	ce, ok := err.(*mongoerr.CommandError)
	require.True(t, ok)
	assert.Equal(t, int32(11600), ce.Code)
	assert.Equal(t, "InterruptedAtShutdown", ce.Name)
	assert.True(t, ce.HasLabel(mongoerr.LabelRetryableWrite))
}

func TestDecodeWriteCommandResultWithOffset(t *testing.T) {
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "n", Value: int32(2)},
		{Key: "writeErrors", Value: bson.A{
			bson.D{{Key: "index", Value: int32(0)}, {Key: "code", Value: int32(11000)}, {Key: "errmsg", Value: "duplicate key"}},
		}},
	})
	result := DecodeWriteCommandResult(reply, 3)
	require.Len(t, result.WriteErrors, 1)
	assert.Equal(t, 3, result.WriteErrors[0].Index)
	assert.Equal(t, int32(11000), result.WriteErrors[0].Code)
	assert.Equal(t, int32(2), result.N)
}

func TestWriteCommandResultValidate(t *testing.T) {
	clean := WriteCommandResult{N: 1}
	assert.NoError(t, clean.Validate())

	dirty := WriteCommandResult{N: 1, WriteErrors: []mongoerr.WriteError{{Index: 0, Code: 11000, Message: "dup"}}}
	var we *mongoerr.WriteException
	require.ErrorAs(t, dirty.Validate(), &we)
	assert.Len(t, we.WriteErrors, 1)
}

func TestDecodeCursorResponseFirstBatch(t *testing.T) {
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(123)},
			{Key: "ns", Value: "db.coll"},
			{Key: "firstBatch", Value: bson.A{bson.D{{Key: "_id", Value: int32(1)}}}},
		}},
	})
	cr, err := DecodeCursorResponse(reply)
	require.NoError(t, err)
	assert.Equal(t, int64(123), cr.CursorID)
	assert.Equal(t, "db.coll", cr.Namespace)
	require.Len(t, cr.FirstBatch, 1)
}

func TestDecodeCursorResponseNextBatch(t *testing.T) {
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.coll"},
			{Key: "nextBatch", Value: bson.A{}},
		}},
	})
	cr, err := DecodeCursorResponse(reply)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cr.CursorID)
	assert.Empty(t, cr.FirstBatch)
}

func TestDecodeCursorResponseMissingCursor(t *testing.T) {
	reply := marshal(t, bson.D{{Key: "ok", Value: 1.0}})
	_, err := DecodeCursorResponse(reply)
	assert.Error(t, err)
}

func TestWriteConcernErrorBodyValidate(t *testing.T) {
	clean := WriteConcernErrorBody{}
	assert.NoError(t, clean.Validate())

	dirty := WriteConcernErrorBody{WriteConcernError: &mongoerr.WriteConcernError{Code: 64, Message: "timed out"}}
	assert.Error(t, dirty.Validate())
}
