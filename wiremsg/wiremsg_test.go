package wiremsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestNewCommandAndAppendDB(t *testing.T) {
	cmd := NewCommand("find", "coll", "mydb")
	cmd.Append("filter", bson.D{})
	cmd.AppendDB()

	m := cmd.Body.Map()
	assert.Equal(t, "coll", m["find"])
	assert.Equal(t, "mydb", m["$db"])
}

func TestAppendClusterTimeSkipsEmpty(t *testing.T) {
	var cmd Command
	cmd.AppendClusterTime(nil)
	assert.Empty(t, cmd.Body)

	ct, err := bson.Marshal(bson.D{{Key: "clusterTime", Value: bson.Timestamp{T: 1, I: 1}}})
	require.NoError(t, err)
	cmd.AppendClusterTime(ct)
	assert.Contains(t, cmd.Body.Map(), "$clusterTime")
}

func TestAppendWriteConcernSkipsNil(t *testing.T) {
	var cmd Command
	cmd.AppendWriteConcern(nil)
	assert.Empty(t, cmd.Body)

	cmd.AppendWriteConcern(bson.D{{Key: "w", Value: "majority"}})
	assert.Contains(t, cmd.Body.Map(), "writeConcern")
}

func TestTransactionDecorationHelpers(t *testing.T) {
	var cmd Command
	cmd.AppendTxnNumber(7)
	cmd.AppendAutocommit()
	cmd.AppendStartTransaction()

	m := cmd.Body.Map()
	assert.Equal(t, int64(7), m["txnNumber"])
	assert.Equal(t, false, m["autocommit"])
	assert.Equal(t, true, m["startTransaction"])
}

func TestOK(t *testing.T) {
	ok, err := bson.Marshal(bson.D{{Key: "ok", Value: 1.0}})
	require.NoError(t, err)
	assert.True(t, OK(ok))

	notOK, err := bson.Marshal(bson.D{{Key: "ok", Value: 0.0}})
	require.NoError(t, err)
	assert.False(t, OK(notOK))

	missing, err := bson.Marshal(bson.D{})
	require.NoError(t, err)
	assert.False(t, OK(missing))
}

func TestErrorLabels(t *testing.T) {
	reply, err := bson.Marshal(bson.D{{Key: "errorLabels", Value: bson.A{"RetryableWriteError", "TransientTransactionError"}}})
	require.NoError(t, err)
	labels := ErrorLabels(reply)
	assert.Equal(t, []string{"RetryableWriteError", "TransientTransactionError"}, labels)

	none, err := bson.Marshal(bson.D{})
	require.NoError(t, err)
	assert.Nil(t, ErrorLabels(none))
}
