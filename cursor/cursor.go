// Package cursor implements the cursor iteration protocol of spec.md §4.3:
// it buffers the first batch from a cursor-bearing reply, issues getMore
// continuation requests against the server it was opened on, and exposes
// a finite, single-pass, non-restartable sequence of documents.
package cursor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/address"
	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/metrics"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/operation"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/session"
	"go.nestdb.dev/driver/topology"
)

// Cursor iterates a sequence of documents. It is owned by its caller; see
// Next for the session-borrowing discipline when one is attached.
type Cursor struct {
	database   string
	collection string

	server     topology.ServerHandle
	streamD    description.StreamDescription
	sess       *session.Client
	credential topology.Credential

	id        int64
	batch     []bson.Raw
	batchSize int32

	metrics *metrics.Collectors
	closed  bool
}

// Option configures a Cursor at construction time.
type Option func(*Cursor)

// WithBatchSize sets the batchSize hint used on subsequent getMore calls.
func WithBatchSize(n int32) Option {
	return func(c *Cursor) { c.batchSize = n }
}

// WithMetrics attaches a metrics collector; nil is a valid no-op default.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Cursor) { c.metrics = m }
}

// WithCredential attaches the handshake token source presented when the
// cursor checks out a connection for getMore/killCursors.
func WithCredential(cred topology.Credential) Option {
	return func(c *Cursor) { c.credential = cred }
}

// New builds a Cursor from a cursor-bearing reply's decoded body, pinned
// to the server it was served from. sess is nil for a cursor opened
// outside any session.
func New(database, collection string, server topology.ServerHandle, streamD description.StreamDescription, sess *session.Client, first response.CursorResponse, opts ...Option) *Cursor {
	c := &Cursor{
		database:   database,
		collection: collection,
		server:     server,
		streamD:    streamD,
		sess:       sess,
		id:         first.CursorID,
		batch:      first.FirstBatch,
		batchSize:  101,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address reports the server this cursor is pinned to.
func (c *Cursor) Address() address.ServerAddress { return c.server.Address() }

// ID reports the server-assigned cursor id; 0 means already exhausted.
func (c *Cursor) ID() int64 { return c.id }

// Next produces one element. If the current batch is nonempty, it pops
// the front. Otherwise, if the cursor id is 0, it reports end-of-stream.
// Otherwise it issues a getMore against the pinned server, replaces the
// batch, and retries.
//
// sess must be the same session handle the cursor was opened with, or
// nil if it was opened without one; any other value is a client-side
// error (spec.md §4.3, §9).
func (c *Cursor) Next(ctx context.Context, sess *session.Client) (bson.Raw, bool, error) {
	if err := c.checkSession(sess); err != nil {
		return nil, false, err
	}

	for len(c.batch) == 0 {
		if c.id == 0 {
			return nil, false, nil
		}
		if err := c.fetchMore(ctx); err != nil {
			return nil, false, err
		}
	}
	doc := c.batch[0]
	c.batch = c.batch[1:]
	return doc, true, nil
}

func (c *Cursor) checkSession(sess *session.Client) error {
	if c.sess == nil && sess == nil {
		return nil
	}
	if c.sess == sess {
		return nil
	}
	return &mongoerr.ClientError{Message: "cursor iterated with a different session than it was opened with"}
}

func (c *Cursor) fetchMore(ctx context.Context) error {
	if c.sess != nil {
		if err := c.sess.Acquire(ctx); err != nil {
			return err
		}
		defer c.sess.Release()
	}

	conn, err := c.server.Connection(ctx, c.credential)
	if err != nil {
		return err
	}

	op := operation.NewGetMore(c.database, c.collection, c.id, c.batchSize)
	cmd, err := op.Build(c.streamD)
	if err != nil {
		conn.Release()
		return err
	}
	if c.sess != nil {
		c.sess.DecorateCommand(&cmd, op.SupportsSessions() && c.streamD.SupportsSessions())
	}
	cmd.AppendDB()

	c.metrics.ObserveGetMore()

	reply, err := conn.SendRead(ctx, cmd.Body, deadlineFromContext(ctx))
	if err != nil {
		conn.Discard()
		if c.sess != nil {
			c.sess.MarkDirty()
		}
		return &mongoerr.NetworkError{Written: true, Err: err}
	}
	conn.Release()

	if c.sess != nil {
		c.sess.AdvanceClusterTime(reply)
	}

	result, err := op.Decode(reply, c.streamD)
	if err != nil {
		return err
	}
	c.id = result.CursorID
	c.batch = result.FirstBatch
	return nil
}

// Close issues a best-effort killCursors against the pinned server if
// the cursor is not already exhausted; failures are ignored, per §4.3.
func (c *Cursor) Close(ctx context.Context) {
	if c.closed {
		return
	}
	c.closed = true
	if c.id == 0 {
		return
	}

	conn, err := c.server.Connection(ctx, c.credential)
	if err != nil {
		logrus.WithFields(logrus.Fields{"cursorID": c.id}).Debug("killCursors: no connection available, ignoring")
		return
	}
	defer conn.Release()

	op := operation.NewKillCursors(c.database, c.collection, []int64{c.id})
	cmd, err := op.Build(c.streamD)
	if err != nil {
		return
	}
	cmd.AppendDB()

	if _, err := conn.SendRead(ctx, cmd.Body, deadlineFromContext(ctx)); err != nil {
		logrus.WithFields(logrus.Fields{"cursorID": c.id, "err": err}).Debug("killCursors failed, ignoring")
		return
	}
	c.metrics.ObserveCursorKilled()
}

// Dispatcher runs fn to completion, blocking until it is done. Satisfied
// by *driver.Pool, so RunNext's getMore dispatch lands on the same
// worker pool the synchronous façade uses elsewhere, rather than a
// call-site-local goroutine.
type Dispatcher interface {
	Run(fn func())
}

// RunNext blocks the calling goroutine until one document (or
// end-of-stream, or an error) is available, running the getMore dispatch
// on dispatcher so that a caller outside the cooperative-suspension model
// never itself occupies a goroutine whose identity matters to a session —
// the synchronous facade of spec.md §9.
func RunNext(ctx context.Context, c *Cursor, sess *session.Client, dispatcher Dispatcher) (bson.Raw, bool, error) {
	type result struct {
		doc bson.Raw
		ok  bool
		err error
	}
	ch := make(chan result, 1)
	go dispatcher.Run(func() {
		doc, ok, err := c.Next(ctx, sess)
		ch <- result{doc, ok, err}
	})
	select {
	case r := <-ch:
		return r.doc, r.ok, r.err
	case <-ctx.Done():
		return nil, false, fmt.Errorf("cursor: %w", ctx.Err())
	}
}

func deadlineFromContext(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(30 * time.Second)
}
