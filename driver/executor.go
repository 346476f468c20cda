// Package driver implements the executor: the single entry point that
// orchestrates server selection, command build/send/decode, error
// classification, and the at-most-one-retry state machine of spec.md
// §4.5, integrating the operation, response, session, and cursor
// packages.
package driver

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/address"
	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/metrics"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/operation"
	"go.nestdb.dev/driver/session"
	"go.nestdb.dev/driver/topology"
)

// CommandEvent is the command-monitoring / diagnostics event fired around
// each attempt, independent of the metrics package (spec.md §6 item 2).
type CommandEvent struct {
	Name     string
	Phase    string // "select", "build", "send", "decode", "succeeded", "failed"
	Attempt  int
	Err      error
	Duration time.Duration
}

// ExecutorOption configures an Executor, the functional-options idiom
// used throughout this module (see session.TransactionOption).
type ExecutorOption func(*Executor)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Collectors) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithCommandMonitor registers a command-event observer. Multiple
// monitors may be registered; each is called for every event.
func WithCommandMonitor(fn func(CommandEvent)) ExecutorOption {
	return func(e *Executor) { e.monitors = append(e.monitors, fn) }
}

// WithSelectionTimeout bounds how long server selection may block.
func WithSelectionTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.selectionTimeout = d }
}

// WithWorkerCount sizes the Executor's worker pool, used by the
// synchronous façade (RunSync). n<=0 defaults to GOMAXPROCS.
func WithWorkerCount(n int) ExecutorOption {
	return func(e *Executor) { e.workerCount = n }
}

// WithCredential attaches the handshake token source presented when
// establishing a connection (see topology.Credential). A nil credential,
// the default, establishes connections without a handshake token.
func WithCredential(cred topology.Credential) ExecutorOption {
	return func(e *Executor) { e.credential = cred }
}

// Executor is the single entry point for running an operation.
type Executor struct {
	topo             topology.Topology
	metrics          *metrics.Collectors
	monitors         []func(CommandEvent)
	selectionTimeout time.Duration
	workerCount      int
	credential       topology.Credential
	pool             *Pool
}

// NewExecutor builds an Executor selecting servers from topo.
func NewExecutor(topo topology.Topology, opts ...ExecutorOption) *Executor {
	ex := &Executor{topo: topo, selectionTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(ex)
	}
	ex.pool = NewPool(ex.workerCount)
	return ex
}

func (ex *Executor) emit(ev CommandEvent) {
	for _, m := range ex.monitors {
		m(ev)
	}
}

// Pool exposes the Executor's worker pool so a cursor opened through it
// can route its synchronous getMore dispatch (cursor.RunNext) onto the
// same worker pool RunSync uses, rather than a call-site-local goroutine.
func (ex *Executor) Pool() *Pool { return ex.pool }

// stage names the point in SELECT→BUILD→SEND→DECODE an attempt failed at.
type stage string

const (
	stageSelect stage = "select"
	stageBuild  stage = "build"
	stageSend   stage = "send"
	stageDecode stage = "decode"
)

// outcome carries an attempt's result alongside the server and stream
// description it ran against, so cursor-opening call sites can pin a
// cursor to the same server without re-selecting.
type outcome[R any] struct {
	result  R
	err     error
	stage   stage
	server  topology.ServerHandle
	streamD description.StreamDescription
}

// attempt runs exactly one SELECT→BUILD→SEND→DECODE pass.
func attempt[R any](ctx context.Context, ex *Executor, sess *session.Client, op operation.Operation[R]) outcome[R] {
	var zero R
	start := time.Now()

	selectCtx := ctx
	var cancel context.CancelFunc
	if ex.selectionTimeout > 0 {
		selectCtx, cancel = context.WithTimeout(ctx, ex.selectionTimeout)
		defer cancel()
	}

	ex.emit(CommandEvent{Name: op.Name(), Phase: "select"})
	sh, sd, err := ex.selectServer(selectCtx, sess, op)
	if err != nil {
		return outcome[R]{result: zero, err: &mongoerr.ServerSelectionError{Err: err}, stage: stageSelect}
	}

	ex.emit(CommandEvent{Name: op.Name(), Phase: "build"})
	cmd, err := op.Build(sd)
	if err != nil {
		return outcome[R]{result: zero, err: err, stage: stageBuild, server: sh, streamD: sd}
	}

	if sess != nil {
		sess.DecorateCommand(&cmd, op.SupportsSessions() && sd.SupportsSessions())
	}
	cmd.AppendReadPreference(readPreferenceDoc(op.SelectionCriteria().ReadPref))
	insideTxn := sess != nil && sess.Transaction() != nil &&
		(sess.Transaction().State == session.TransactionStarting || sess.Transaction().State == session.TransactionInProgress)
	isCommitOrAbort := op.Name() == "commitTransaction" || op.Name() == "abortTransaction"
	if wc := op.WriteConcern(); wc != nil && (!insideTxn || isCommitOrAbort) {
		cmd.AppendWriteConcern(wc)
	}
	cmd.AppendDB()

	if err := ctx.Err(); err != nil {
		// Cancelled between build and send: clean, no session dirtying.
		return outcome[R]{result: zero, err: err, stage: stageBuild, server: sh, streamD: sd}
	}

	conn, err := sh.Connection(ctx, ex.credential)
	if err != nil {
		return outcome[R]{result: zero, err: &mongoerr.NetworkError{Written: false, Err: err}, stage: stageSend, server: sh, streamD: sd}
	}

	ex.metrics.ObserveAttempt(op.Name())
	ex.emit(CommandEvent{Name: op.Name(), Phase: "send"})

	deadline := time.Now().Add(30 * time.Second)
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	reply, err := conn.SendRead(ctx, cmd.Body, deadline)
	if err != nil {
		conn.Discard()
		if sess != nil {
			sess.MarkDirty()
		}
		ex.metrics.ObserveLatency(op.Name(), time.Since(start).Seconds())
		return outcome[R]{result: zero, err: &mongoerr.NetworkError{Written: true, Err: err}, stage: stageSend, server: sh, streamD: sd}
	}
	conn.Release()
	ex.metrics.ObserveLatency(op.Name(), time.Since(start).Seconds())

	if sess != nil {
		sess.AdvanceClusterTime(reply)
		if sess.Transaction() != nil && sess.PinnedServer() == "" {
			sess.PinServer(sh.Address().String())
		}
	}

	if !op.IsAcknowledged() {
		return outcome[R]{result: zero, server: sh, streamD: sd}
	}

	ex.emit(CommandEvent{Name: op.Name(), Phase: "decode"})
	result, err := op.Decode(reply, sd)
	if err != nil {
		if recovered, ok := op.RecoverFromError(err); ok {
			return outcome[R]{result: recovered, server: sh, streamD: sd}
		}
		return outcome[R]{result: zero, err: err, stage: stageDecode, server: sh, streamD: sd}
	}
	return outcome[R]{result: result, server: sh, streamD: sd}
}

// readPreferenceDoc renders rp as the wire-level readPreference document,
// or nil when rp requests the topology default (primary, no tags) and so
// nothing needs to be sent.
func readPreferenceDoc(rp *description.ReadPref) bson.D {
	if rp == nil || (rp.Mode == description.PrimaryMode && len(rp.TagSets) == 0) {
		return nil
	}
	doc := bson.D{{Key: "mode", Value: readPrefModeName(rp.Mode)}}
	if len(rp.TagSets) > 0 {
		tags := make(bson.A, 0, len(rp.TagSets))
		for _, ts := range rp.TagSets {
			tag := bson.D{}
			for k, v := range ts {
				tag = append(tag, bson.E{Key: k, Value: v})
			}
			tags = append(tags, tag)
		}
		doc = append(doc, bson.E{Key: "tags", Value: tags})
	}
	return doc
}

func readPrefModeName(m description.ReadPrefMode) string {
	switch m {
	case description.PrimaryPreferredMode:
		return "primaryPreferred"
	case description.SecondaryMode:
		return "secondary"
	case description.SecondaryPreferredMode:
		return "secondaryPreferred"
	case description.NearestMode:
		return "nearest"
	default:
		return "primary"
	}
}

func (ex *Executor) selectServer(ctx context.Context, sess *session.Client, op interface {
	SelectionCriteria() description.SelectionCriteria
}) (topology.ServerHandle, description.StreamDescription, error) {
	if sess != nil && sess.Transaction() != nil {
		if pinned := sess.PinnedServer(); pinned != "" {
			if ba, ok := ex.topo.(topology.ByAddress); ok {
				return ba.SelectServerByAddress(ctx, address.ServerAddress(pinned))
			}
		}
	}
	return ex.topo.SelectServer(ctx, op.SelectionCriteria())
}
