// Package session implements the per-session logical session id,
// cluster/operation time, dirty flag, and transaction state machine that
// gates and decorates every outgoing command (spec.md §4.4).
package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/semaphore"

	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/wiremsg"
)

// TransactionState is one of the states of the transaction FSM in spec.md §3.
type TransactionState int

const (
	TransactionNone TransactionState = iota
	TransactionStarting
	TransactionInProgress
	TransactionCommitted
	TransactionAborted
)

func (s TransactionState) String() string {
	switch s {
	case TransactionStarting:
		return "Starting"
	case TransactionInProgress:
		return "InProgress"
	case TransactionCommitted:
		return "Committed"
	case TransactionAborted:
		return "Aborted"
	default:
		return "None"
	}
}

// ServerSession is the server-visible identity of a logical session: a
// client-generated lsid and the txnNumber sequence scoped to it.
type ServerSession struct {
	ID        bson.Binary
	txnNumber int64
}

// NewServerSession allocates a fresh lsid, the way a session pool mints
// one when no recyclable id is available (see Pool).
func NewServerSession() *ServerSession {
	id, err := uuid.New().MarshalBinary()
	if err != nil {
		// uuid.MarshalBinary cannot fail for a freshly generated UUID.
		panic(fmt.Sprintf("session: generating lsid: %v", err))
	}
	return &ServerSession{ID: bson.Binary{Subtype: 0x04, Data: id}}
}

// LSIDDoc renders the id field of the lsid document attached to commands.
func (s *ServerSession) LSIDDoc() bson.D {
	return bson.D{{Key: "id", Value: s.ID}}
}

// NextTxnNumber increments and returns the session's transaction number.
func (s *ServerSession) NextTxnNumber() int64 {
	return atomic.AddInt64(&s.txnNumber, 1)
}

// Transaction holds the state associated with one started-to-completion
// transaction attempt.
type Transaction struct {
	State         TransactionState
	Number        int64
	DataCommitted bool
	ReadConcern   bson.D
	WriteConcern  bson.D
	PinnedAddr    string
	firstCommand  bool
}

// TransactionOption configures a started transaction, the functional-
// options idiom (grounded on neo4j-go-driver's TransactionConfig).
type TransactionOption func(*Transaction)

// WithReadConcern sets the read concern attached to a transaction's first
// command.
func WithReadConcern(rc bson.D) TransactionOption {
	return func(t *Transaction) { t.ReadConcern = rc }
}

// WithWriteConcern sets the write concern attached to commit/abort.
func WithWriteConcern(wc bson.D) TransactionOption {
	return func(t *Transaction) { t.WriteConcern = wc }
}

// Client is a ClientSession: lsid, cluster/operation time, dirty flag, and
// transaction sub-state. It is not safe for concurrent use; Acquire/Release
// enforce the "at most one concurrent operation" invariant (spec.md §3).
type Client struct {
	ServerSession *ServerSession
	clusterTime   bson.Raw
	operationTime bson.Timestamp
	dirty         bool

	txn *Transaction

	sem *semaphore.Weighted
}

// NewClient wraps ss as a ClientSession ready for use.
func NewClient(ss *ServerSession) *Client {
	return &Client{ServerSession: ss, sem: semaphore.NewWeighted(1)}
}

// Acquire claims exclusive use of the session for the duration of one
// executor attempt or cursor step, returning a ClientError if the session
// is already in use elsewhere (spec.md §5's sharing discipline).
func (c *Client) Acquire(ctx context.Context) error {
	if !c.sem.TryAcquire(1) {
		return &mongoerr.ClientError{Message: "session is already in use by a concurrent operation"}
	}
	return nil
}

// Release relinquishes exclusive use of the session.
func (c *Client) Release() { c.sem.Release(1) }

// Dirty reports whether this session's server-side handle must not be
// reused, per a prior network error observed under it.
func (c *Client) Dirty() bool { return c.dirty }

// MarkDirty flags the session dirty. Idempotent.
func (c *Client) MarkDirty() { c.dirty = true }

// Transaction returns the session's current transaction sub-state, or nil
// if no transaction has ever been started.
func (c *Client) Transaction() *Transaction { return c.txn }

// StartTransaction implements the start_transaction transition: legal from
// None, Committed, or Aborted; allocates a new transaction number and
// moves to Starting.
func (c *Client) StartTransaction(opts ...TransactionOption) error {
	if c.txn != nil && (c.txn.State == TransactionStarting || c.txn.State == TransactionInProgress) {
		return &mongoerr.TransactionError{Message: "transaction already in progress"}
	}
	t := &Transaction{
		State:        TransactionStarting,
		Number:       c.ServerSession.NextTxnNumber(),
		firstCommand: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	c.txn = t
	return nil
}

// DecorateCommand attaches lsid, cluster time, and — inside a transaction
// — the transaction fields, to cmd, per spec.md §4.4 and §6.
func (c *Client) DecorateCommand(cmd *wiremsg.Command, supportsSessions bool) {
	if !supportsSessions {
		return
	}
	cmd.AppendLSID(c.ServerSession.LSIDDoc())
	cmd.AppendClusterTime(c.clusterTime)

	if c.txn == nil || c.txn.State == TransactionNone {
		return
	}
	switch c.txn.State {
	case TransactionStarting:
		cmd.AppendTxnNumber(c.txn.Number)
		cmd.AppendAutocommit()
		if c.txn.firstCommand {
			cmd.AppendStartTransaction()
			cmd.AppendReadConcern(c.txn.ReadConcern)
			c.txn.firstCommand = false
			c.txn.State = TransactionInProgress
		}
	case TransactionInProgress:
		cmd.AppendTxnNumber(c.txn.Number)
		cmd.AppendAutocommit()
	}
}

// AdvanceClusterTime advances the session's cluster and operation time
// from a server reply, per §4.4.
func (c *Client) AdvanceClusterTime(reply bson.Raw) {
	if ct, err := reply.LookupErr("$clusterTime"); err == nil {
		if raw, ok := ct.DocumentOK(); ok {
			c.mergeClusterTime(bson.Raw(raw))
		}
	}
	if ot, err := reply.LookupErr("operationTime"); err == nil {
		if t, i, ok := ot.TimestampOK(); ok {
			c.operationTime = bson.Timestamp{T: t, I: i}
		}
	}
}

func (c *Client) mergeClusterTime(candidate bson.Raw) {
	if len(c.clusterTime) == 0 {
		c.clusterTime = candidate
		return
	}
	cur, errCur := c.clusterTime.LookupErr("clusterTime")
	next, errNext := candidate.LookupErr("clusterTime")
	if errNext != nil {
		return
	}
	if errCur != nil {
		c.clusterTime = candidate
		return
	}
	ct, ci, okCur := cur.TimestampOK()
	nt, ni, okNext := next.TimestampOK()
	if !okCur || !okNext {
		return
	}
	if nt > ct || (nt == ct && ni > ci) {
		c.clusterTime = candidate
	}
}

// ClusterTime returns the session's last-seen $clusterTime document.
func (c *Client) ClusterTime() bson.Raw { return c.clusterTime }

// CommitTransaction implements the commit_transaction transition. The
// caller (the executor, via the committransaction operation) is
// responsible for actually sending the commitTransaction command when
// this returns shouldSend=true.
func (c *Client) CommitTransaction() (shouldSend bool, err error) {
	if c.txn == nil {
		return false, &mongoerr.TransactionError{Message: "no transaction in progress"}
	}
	switch c.txn.State {
	case TransactionStarting:
		c.txn.State = TransactionCommitted
		c.txn.DataCommitted = false
		return false, nil
	case TransactionInProgress:
		c.txn.State = TransactionCommitted
		c.txn.DataCommitted = true
		return true, nil
	case TransactionCommitted:
		return true, nil // idempotent re-issue
	default:
		return false, &mongoerr.TransactionError{
			Message: fmt.Sprintf("commitTransaction illegal from state %s", c.txn.State),
		}
	}
}

// AbortTransaction implements the abort_transaction transition: legal
// from Starting or InProgress, and a no-op success from Aborted. Network
// errors during the actual abort send are swallowed by the caller
// (driver.AbortTransaction), not here.
func (c *Client) AbortTransaction() (shouldSend bool, err error) {
	if c.txn == nil {
		return false, &mongoerr.TransactionError{Message: "no transaction in progress"}
	}
	switch c.txn.State {
	case TransactionStarting:
		c.txn.State = TransactionAborted
		return false, nil
	case TransactionInProgress:
		c.txn.State = TransactionAborted
		return true, nil
	case TransactionAborted:
		return false, nil // no-op success
	default:
		return false, &mongoerr.TransactionError{
			Message: fmt.Sprintf("abortTransaction illegal from state %s", c.txn.State),
		}
	}
}

// PinServer pins the transaction in progress to addr, the server its
// first command was sent to.
func (c *Client) PinServer(addr string) {
	if c.txn != nil {
		c.txn.PinnedAddr = addr
	}
}

// PinnedServer returns the address a transaction in progress is pinned
// to, or "" if none.
func (c *Client) PinnedServer() string {
	if c.txn == nil {
		return ""
	}
	return c.txn.PinnedAddr
}

// EndSession releases this session's identity back to pool if it is not
// dirty, per the invariant that a dirty session's handle is discarded.
func (c *Client) EndSession(pool *Pool) {
	if c.dirty || pool == nil {
		return
	}
	pool.Put(c.ServerSession)
}
