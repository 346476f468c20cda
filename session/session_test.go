package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/wiremsg"
)

func TestAcquireReleaseExclusive(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.Acquire(context.Background()))

	err := c.Acquire(context.Background())
	require.Error(t, err)
	var ce *mongoerr.ClientError
	assert.ErrorAs(t, err, &ce)

	c.Release()
	assert.NoError(t, c.Acquire(context.Background()))
}

func TestStartTransactionRejectsReentry(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction())
	err := c.StartTransaction()
	assert.Error(t, err)
}

func TestStartTransactionAllowedAfterCommitOrAbort(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction())
	_, err := c.CommitTransaction()
	require.NoError(t, err)
	assert.NoError(t, c.StartTransaction())

	_, err = c.AbortTransaction()
	require.NoError(t, err)
	assert.NoError(t, c.StartTransaction())
}

func TestDecorateCommandFirstVsSubsequent(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction(WithReadConcern(bson.D{{Key: "level", Value: "snapshot"}})))

	var first wiremsg.Command
	c.DecorateCommand(&first, true)
	m := first.Body.Map()
	assert.Contains(t, m, "lsid")
	assert.Contains(t, m, "txnNumber")
	assert.Contains(t, m, "autocommit")
	assert.Contains(t, m, "startTransaction")
	assert.Contains(t, m, "readConcern")
	assert.Equal(t, TransactionInProgress, c.Transaction().State)

	var second wiremsg.Command
	c.DecorateCommand(&second, true)
	m2 := second.Body.Map()
	assert.Contains(t, m2, "txnNumber")
	assert.NotContains(t, m2, "startTransaction")
	assert.NotContains(t, m2, "readConcern")
}

func TestDecorateCommandSkippedWhenUnsupported(t *testing.T) {
	c := NewClient(NewServerSession())
	var cmd wiremsg.Command
	c.DecorateCommand(&cmd, false)
	assert.Empty(t, cmd.Body)
}

func TestCommitTransactionFromStartingIsNoop(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction())
	shouldSend, err := c.CommitTransaction()
	require.NoError(t, err)
	assert.False(t, shouldSend, "a transaction with no commands sent needs no commitTransaction on the wire")
}

func TestCommitTransactionFromInProgressSends(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction())
	var cmd wiremsg.Command
	c.DecorateCommand(&cmd, true) // moves Starting -> InProgress

	shouldSend, err := c.CommitTransaction()
	require.NoError(t, err)
	assert.True(t, shouldSend)
	assert.Equal(t, TransactionCommitted, c.Transaction().State)
}

func TestAbortTransactionIllegalAfterCommit(t *testing.T) {
	c := NewClient(NewServerSession())
	require.NoError(t, c.StartTransaction())
	_, err := c.CommitTransaction()
	require.NoError(t, err)

	_, err = c.AbortTransaction()
	assert.Error(t, err)
}

func TestAdvanceClusterTimeKeepsLater(t *testing.T) {
	c := NewClient(NewServerSession())

	earlier, err := bson.Marshal(bson.D{{Key: "$clusterTime", Value: bson.D{{Key: "clusterTime", Value: bson.Timestamp{T: 100, I: 1}}}}})
	require.NoError(t, err)
	c.AdvanceClusterTime(earlier)
	firstSeen := c.ClusterTime()
	require.NotEmpty(t, firstSeen)

	later, err := bson.Marshal(bson.D{{Key: "$clusterTime", Value: bson.D{{Key: "clusterTime", Value: bson.Timestamp{T: 200, I: 1}}}}})
	require.NoError(t, err)
	c.AdvanceClusterTime(later)
	assert.NotEqual(t, firstSeen, c.ClusterTime())

	// An older cluster time must not regress what's already been seen.
	c.AdvanceClusterTime(earlier)
	cur, err := c.ClusterTime().LookupErr("clusterTime")
	require.NoError(t, err)
	tt, _, ok := cur.TimestampOK()
	require.True(t, ok)
	assert.Equal(t, uint32(200), tt)
}

func TestPinServerOnlyWhenTransactionActive(t *testing.T) {
	c := NewClient(NewServerSession())
	c.PinServer("host:27017")
	assert.Empty(t, c.PinnedServer())

	require.NoError(t, c.StartTransaction())
	c.PinServer("host:27017")
	assert.Equal(t, "host:27017", c.PinnedServer())
}

func TestEndSessionSkipsDirtySession(t *testing.T) {
	pool := NewPool(4, time.Minute)
	c := NewClient(NewServerSession())
	c.MarkDirty()
	c.EndSession(pool)
	assert.Equal(t, 0, pool.Len())

	clean := NewClient(NewServerSession())
	clean.EndSession(pool)
	assert.Equal(t, 1, pool.Len())
}
