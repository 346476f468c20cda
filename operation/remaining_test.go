package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/mongoerr"
)

func TestFindAndModifyBuildVariants(t *testing.T) {
	del := NewFindAndModify("db", "coll", FindAndModifyDelete, bson.D{{Key: "_id", Value: 1}})
	cmd, err := del.Build(description.StreamDescription{})
	require.NoError(t, err)
	_, hasRemove := cmd.Body.Map()["remove"]
	assert.True(t, hasRemove)

	upd := NewFindAndModify("db", "coll", FindAndModifyUpdate, bson.D{{Key: "_id", Value: 1}})
	upd.Update = bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: 1}}}}
	cmd2, err := upd.Build(description.StreamDescription{})
	require.NoError(t, err)
	_, hasUpdate := cmd2.Body.Map()["update"]
	assert.True(t, hasUpdate)

	assert.Equal(t, RetryWrite, del.Retryability())
}

func TestDropCollectionRecoversNamespaceNotFoundOnlyAfterRetry(t *testing.T) {
	op := NewDropCollection("db", "coll")
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 0.0},
		{Key: "code", Value: int32(26)},
		{Key: "errmsg", Value: "ns not found"},
	})
	_, err := op.Decode(reply, description.StreamDescription{})
	require.Error(t, err)

	_, recovered := op.RecoverFromError(err)
	assert.False(t, recovered)

	op.UpdateForRetry()
	_, recovered = op.RecoverFromError(err)
	assert.True(t, recovered)
}

func TestDropDatabaseNeverRecovers(t *testing.T) {
	op := NewDropDatabase("db")
	cmd, err := op.Build(description.StreamDescription{})
	require.NoError(t, err)
	assert.Equal(t, "db", cmd.Database)
	assert.Equal(t, RetryNone, op.Retryability())

	op.UpdateForRetry()
	_, recovered := op.RecoverFromError(&mongoerr.CommandError{Code: 26, Message: "ns not found"})
	assert.False(t, recovered)
}

func TestListCollectionsIsCursorBearing(t *testing.T) {
	op := NewListCollections("db", bson.D{})
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.$cmd.listCollections"},
			{Key: "firstBatch", Value: bson.A{}},
		}},
	})
	cr, err := op.Decode(reply, description.StreamDescription{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), cr.CursorID)
}

func TestListDatabasesTargetsAdmin(t *testing.T) {
	op := NewListDatabases(bson.D{})
	cmd, err := op.Build(description.StreamDescription{})
	require.NoError(t, err)
	assert.Equal(t, "admin", cmd.Database)
}

func TestListDatabasesIsCursorBearing(t *testing.T) {
	op := NewListDatabases(bson.D{})
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "admin.$cmd.listDatabases"},
			{Key: "firstBatch", Value: bson.A{bson.D{{Key: "name", Value: "db"}}}},
		}},
	})
	cr, err := op.Decode(reply, description.StreamDescription{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), cr.CursorID)
	assert.Len(t, cr.FirstBatch, 1)
}

func TestRunCommandNameIsFirstBodyKey(t *testing.T) {
	op := NewRunCommand("admin", bson.D{{Key: "ping", Value: 1}})
	assert.Equal(t, "ping", op.Name())
	assert.Equal(t, RetryNone, op.Retryability())
}

func TestCommitTransactionDecodeSurfacesWriteConcernError(t *testing.T) {
	op := NewCommitTransaction("admin", bson.D{{Key: "w", Value: "majority"}})
	reply := marshal(t, bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "writeConcernError", Value: bson.D{
			{Key: "code", Value: int32(64)},
			{Key: "errmsg", Value: "waiting for replication timed out"},
		}},
	})
	_, err := op.Decode(reply, description.StreamDescription{})
	assert.Error(t, err, "a writeConcernError in an otherwise ok:1 reply must still surface as a failure")
}

func TestAbortTransactionBuildsTargetingOne(t *testing.T) {
	op := NewAbortTransaction("admin", nil)
	cmd, err := op.Build(description.StreamDescription{})
	require.NoError(t, err)
	v, ok := cmd.Body.Map()["abortTransaction"]
	require.True(t, ok)
	assert.Equal(t, int32(1), v)
}
