package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/auth"
	"go.nestdb.dev/driver/cursor"
	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/internal/drivertest"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/operation"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/session"
)

func timeFarFuture() time.Time { return time.Now().Add(time.Hour) }

func okReply(t *testing.T, extra bson.D) bson.Raw {
	t.Helper()
	doc, err := bson.Marshal(append(bson.D{{Key: "ok", Value: 1.0}, {Key: "n", Value: int32(1)}}, extra...))
	require.NoError(t, err)
	return doc
}

func newFakeExecutor(conn *drivertest.FakeConnection) (*Executor, *drivertest.FakeTopology) {
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	topo := &drivertest.FakeTopology{Handle: handle, StreamDesc: fullyCapableStreamDescription()}
	return NewExecutor(topo, WithWorkerCount(1)), topo
}

// fullyCapableStreamDescription describes a primary advertising sessions
// and retryable writes, the capable-server baseline most executor tests
// assume; tests of the capability gates themselves build a narrower
// description directly.
func fullyCapableStreamDescription() description.StreamDescription {
	return description.StreamDescription{
		IsPrimary:             true,
		Kind:                  description.RSPrimary,
		WireVersion:           8,
		MaxWriteBatchSize:     100000,
		LogicalSessionTimeout: true,
		SessionTimeoutMinutes: 30,
	}
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: okReply(t, nil)}}}
	ex, topo := newFakeExecutor(conn)

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}})
	result, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.NoError(t, err)
	assert.Equal(t, int32(1), result.N)
	assert.Equal(t, 1, topo.SelectCalls)
	assert.True(t, conn.Released)
}

func TestRunRetriesSingleDocumentInsertOnNetworkError(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{
		{Err: errSimulated},
		{Doc: okReply(t, nil)},
	}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}})
	result, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.NoError(t, err)
	assert.Equal(t, int32(1), result.N)
	require.Len(t, conn.Sent, 2)
	assert.True(t, conn.Discarded, "the first failed connection must be discarded, not released")
}

func TestRunDoesNotRetryMultiDocumentInsert(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Err: errSimulated}}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}, {{Key: "_id", Value: 2}}})
	_, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.Error(t, err)
	assert.Len(t, conn.Sent, 1, "a multi-document insert is RetryNone and must not be retried")
}

func TestRunSurfacesOriginalErrorWhenBothAttemptsFail(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{
		{Err: errSimulated},
		{Err: errSimulated},
	}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}})
	_, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.Error(t, err)

	orig, ok := mongoerr.OriginalError(err)
	require.True(t, ok)
	var netErr *mongoerr.NetworkError
	assert.ErrorAs(t, orig, &netErr)
}

func TestUpdateInsideTransactionNeverCarriesWriteConcern(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: okReply(t, nil)}}}
	ex, _ := newFakeExecutor(conn)

	sess := session.NewClient(session.NewServerSession())
	require.NoError(t, sess.StartTransaction())

	op := operation.NewUpdate("db", "coll", []operation.UpdateStatement{{Filter: bson.D{}, Update: bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: 1}}}}}})

	_, err := Run[response.WriteCommandResult](context.Background(), ex, sess, op)
	require.NoError(t, err)

	require.Len(t, conn.Sent, 1)
	_, hasWC := conn.Sent[0].Body.Map()["writeConcern"]
	assert.False(t, hasWC, "update never carries its own write concern per §4.4; only commit/abort may")
	_, hasTxnNumber := conn.Sent[0].Body.Map()["txnNumber"]
	assert.True(t, hasTxnNumber, "a command issued inside a transaction must carry txnNumber")
}

func TestCommitTransactionAttachesWriteConcern(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{
		{Doc: okReply(t, nil)},
		{Doc: okReply(t, nil)},
	}}
	ex, _ := newFakeExecutor(conn)

	sess := session.NewClient(session.NewServerSession())
	require.NoError(t, sess.StartTransaction())
	// Move the transaction to InProgress by decorating one command.
	op := operation.NewUpdate("db", "coll", []operation.UpdateStatement{{Filter: bson.D{}}})
	_, err := Run[response.WriteCommandResult](context.Background(), ex, sess, op)
	require.NoError(t, err)

	err = CommitTransaction(context.Background(), ex, sess, bson.D{{Key: "w", Value: "majority"}}, timeFarFuture())
	require.NoError(t, err)

	last := conn.Sent[len(conn.Sent)-1]
	_, hasWC := last.Body.Map()["writeConcern"]
	assert.True(t, hasWC, "commitTransaction must carry the transaction's write concern")
}

func TestAttemptAppendsReadPreferenceForNonPrimaryFind(t *testing.T) {
	reply, err := bson.Marshal(bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.coll"},
			{Key: "firstBatch", Value: bson.A{}},
		}},
	})
	require.NoError(t, err)

	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: reply}}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewFind("db", "coll", bson.D{}, operation.WithSelectionCriteria(&description.ReadPref{Mode: description.SecondaryMode}))
	_, err = OpenCursor(context.Background(), ex, nil, "db", "coll", op)
	require.NoError(t, err)

	require.Len(t, conn.Sent, 1)
	rp, hasRP := conn.Sent[0].Body.Map()["readPreference"]
	require.True(t, hasRP, "a non-primary read preference must be attached to the command")
	assert.Equal(t, "secondary", rp.(bson.D).Map()["mode"])
}

func TestAttemptOmitsReadPreferenceForDefaultFind(t *testing.T) {
	reply, err := bson.Marshal(bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.coll"},
			{Key: "firstBatch", Value: bson.A{}},
		}},
	})
	require.NoError(t, err)

	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: reply}}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewFind("db", "coll", bson.D{})
	_, err = OpenCursor(context.Background(), ex, nil, "db", "coll", op)
	require.NoError(t, err)

	require.Len(t, conn.Sent, 1)
	_, hasRP := conn.Sent[0].Body.Map()["readPreference"]
	assert.False(t, hasRP, "the topology-default read preference must not be sent on the wire")
}

func TestCursorRunNextDispatchesOnExecutorPool(t *testing.T) {
	reply, err := bson.Marshal(bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.coll"},
			{Key: "firstBatch", Value: bson.A{bson.D{{Key: "_id", Value: int32(1)}}}},
		}},
	})
	require.NoError(t, err)

	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: reply}}}
	ex, _ := newFakeExecutor(conn)

	op := operation.NewFind("db", "coll", bson.D{})
	c, err := OpenCursor(context.Background(), ex, nil, "db", "coll", op)
	require.NoError(t, err)

	doc, ok, err := cursor.RunNext(context.Background(), c, nil, ex.Pool())
	require.NoError(t, err)
	assert.True(t, ok)
	v, err := doc.LookupErr("_id")
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.Int32())
}

func TestRunPresentsCredentialToConnectionEstablishment(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: okReply(t, nil)}}}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	topo := &drivertest.FakeTopology{Handle: handle, StreamDesc: description.StreamDescription{IsPrimary: true, MaxWriteBatchSize: 100000}}
	cred := auth.NewCredential("svc", []byte("secret"), time.Minute)
	ex := NewExecutor(topo, WithWorkerCount(1), WithCredential(cred))

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}})
	_, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.NoError(t, err)
	assert.Same(t, cred, handle.GotCredential)
}

func TestServerSelectionErrorNeverRetried(t *testing.T) {
	conn := &drivertest.FakeConnection{}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	topo := &drivertest.FakeTopology{Handle: handle, SelectErr: errSimulated}
	ex := NewExecutor(topo, WithWorkerCount(1))

	op := operation.NewInsert("db", "coll", []bson.D{{{Key: "_id", Value: 1}}})
	_, err := Run[response.WriteCommandResult](context.Background(), ex, nil, op)
	require.Error(t, err)
	var sel *mongoerr.ServerSelectionError
	assert.ErrorAs(t, err, &sel)
	assert.Equal(t, 1, topo.SelectCalls, "a selection failure must not be retried")
}

var errSimulated = simulatedError{}

type simulatedError struct{}

func (simulatedError) Error() string { return "simulated network failure" }
