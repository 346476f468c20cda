package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/internal/drivertest"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/session"
)

func cursorReply(t *testing.T, id int64, batchKey string, docs bson.A) bson.Raw {
	t.Helper()
	doc, err := bson.Marshal(bson.D{
		{Key: "ok", Value: 1.0},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: id},
			{Key: "ns", Value: "db.coll"},
			{Key: batchKey, Value: docs},
		}},
	})
	require.NoError(t, err)
	return doc
}

func TestNextDrainsFirstBatchBeforeGetMore(t *testing.T) {
	conn := &drivertest.FakeConnection{}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}

	first := response.CursorResponse{
		CursorID:   0,
		FirstBatch: []bson.Raw{mustDoc(t, 1), mustDoc(t, 2)},
	}
	c := New("db", "coll", handle, description.StreamDescription{}, nil, first)

	doc1, ok, err := c.Next(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assertID(t, doc1, 1)

	doc2, ok, err := c.Next(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assertID(t, doc2, 2)

	_, ok, err = c.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok, "cursor id 0 with an empty batch must report end of stream")
}

func TestNextIssuesGetMoreWhenBatchExhausted(t *testing.T) {
	reply := cursorReply(t, 0, "nextBatch", bson.A{bson.D{{Key: "_id", Value: int32(3)}}})
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Doc: reply}}}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}

	first := response.CursorResponse{CursorID: 42}
	c := New("db", "coll", handle, description.StreamDescription{}, nil, first)

	doc, ok, err := c.Next(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assertID(t, doc, 3)
	require.Len(t, conn.Sent, 1)
	assert.True(t, conn.Released)

	_, ok, err = c.Next(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextRejectsMismatchedSession(t *testing.T) {
	conn := &drivertest.FakeConnection{}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	opened := session.NewClient(session.NewServerSession())
	other := session.NewClient(session.NewServerSession())

	c := New("db", "coll", handle, description.StreamDescription{}, opened, response.CursorResponse{})
	_, _, err := c.Next(context.Background(), other)
	require.Error(t, err)
	var ce *mongoerr.ClientError
	assert.ErrorAs(t, err, &ce)
}

func TestFetchMoreNetworkErrorMarksSessionDirty(t *testing.T) {
	conn := &drivertest.FakeConnection{Replies: []drivertest.Reply{{Err: assertErr}}}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	sess := session.NewClient(session.NewServerSession())

	c := New("db", "coll", handle, description.StreamDescription{}, sess, response.CursorResponse{CursorID: 7})
	_, _, err := c.Next(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, sess.Dirty())
	assert.True(t, conn.Discarded)
}

func TestCloseIsIdempotentAndSkipsExhausted(t *testing.T) {
	conn := &drivertest.FakeConnection{}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	c := New("db", "coll", handle, description.StreamDescription{}, nil, response.CursorResponse{CursorID: 0})

	c.Close(context.Background())
	c.Close(context.Background())
	assert.Empty(t, conn.Sent, "an already-exhausted cursor must not send killCursors")
}

// syncDispatcher runs fn inline, standing in for driver.Pool in tests
// that don't need real worker-pool concurrency.
type syncDispatcher struct{ ran bool }

func (d *syncDispatcher) Run(fn func()) {
	d.ran = true
	fn()
}

func TestRunNextRoutesDispatchThroughDispatcher(t *testing.T) {
	first := response.CursorResponse{
		CursorID:   0,
		FirstBatch: []bson.Raw{mustDoc(t, 1)},
	}
	conn := &drivertest.FakeConnection{}
	handle := &drivertest.FakeServerHandle{Addr: "host:27017", Conn: conn}
	c := New("db", "coll", handle, description.StreamDescription{}, nil, first)

	d := &syncDispatcher{}
	doc, ok, err := RunNext(context.Background(), c, nil, d)
	require.NoError(t, err)
	require.True(t, ok)
	assertID(t, doc, 1)
	assert.True(t, d.ran, "RunNext must route its getMore dispatch through the given Dispatcher")
}

func mustDoc(t *testing.T, id int32) bson.Raw {
	t.Helper()
	doc, err := bson.Marshal(bson.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	return doc
}

func assertID(t *testing.T, doc bson.Raw, want int32) {
	t.Helper()
	v, err := doc.LookupErr("_id")
	require.NoError(t, err)
	assert.Equal(t, want, v.Int32())
}

type simulatedNetError struct{}

func (simulatedNetError) Error() string { return "simulated network failure" }

var assertErr = simulatedNetError{}
