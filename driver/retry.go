package driver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/operation"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/session"
)

// Run is the executor's single entry point: SELECT→BUILD→SEND→DECODE,
// then, on a retryable failure, one retry per the at-most-one-retry
// policy of spec.md §4.5. R is inferred from op, per the design note in
// spec.md §9 against virtual dispatch at call sites.
func Run[R any](ctx context.Context, ex *Executor, sess *session.Client, op operation.Operation[R]) (R, error) {
	var zero R

	if sess != nil {
		if err := sess.Acquire(ctx); err != nil {
			return zero, err
		}
		defer sess.Release()
	}

	first := attempt[R](ctx, ex, sess, op)
	if first.err == nil {
		ex.emit(CommandEvent{Name: op.Name(), Phase: "succeeded"})
		return first.result, nil
	}

	insideTxn := sess != nil && sess.Transaction() != nil &&
		(sess.Transaction().State == session.TransactionStarting || sess.Transaction().State == session.TransactionInProgress)

	if !shouldRetry(op.Retryability(), first.err, first.stage, insideTxn, first.streamD) {
		ex.emit(CommandEvent{Name: op.Name(), Phase: "failed", Err: first.err})
		return zero, first.err
	}

	logrus.WithFields(logrus.Fields{"command": op.Name(), "err": first.err}).Debug("retrying after first attempt failed")
	ex.metrics.ObserveRetry(op.Name())
	op.UpdateForRetry()

	second := attempt[R](ctx, ex, sess, op)
	if second.err == nil {
		ex.emit(CommandEvent{Name: op.Name(), Phase: "succeeded"})
		return second.result, nil
	}
	ex.emit(CommandEvent{Name: op.Name(), Phase: "failed", Err: second.err})
	return zero, mongoerr.WithOriginalError(second.err, first.err)
}

// shouldRetry implements the retry-decision classification of §4.5's four
// buckets. sd is the stream description the failed attempt ran against;
// a write is never retried against a server that didn't advertise
// retryable-writes support in the first place.
func shouldRetry(class operation.Retryability, err error, st stage, insideTxn bool, sd description.StreamDescription) bool {
	if st == stageBuild || st == stageSelect {
		return false
	}
	if class == operation.RetryNone {
		return false
	}
	// Bucket 4: inside a transaction, no error is retried internally —
	// including a write-concern error, which surfaces immediately.
	if insideTxn {
		return false
	}
	if class == operation.RetryWrite && !sd.SupportsRetryableWrites() {
		return false
	}

	var netErr *mongoerr.NetworkError
	if errors.As(err, &netErr) {
		// Bucket 2: a network error is retryable, subject to the
		// operation's class, whether or not the command was written.
		return true
	}

	if class == operation.RetryWrite && mongoerr.IsRetryableLabel(err, mongoerr.LabelRetryableWrite) {
		return true
	}

	var ce *mongoerr.CommandError
	if errors.As(err, &ce) && mongoerr.IsRetryableCode(ce.Code) {
		return true
	}
	var we *mongoerr.WriteException
	if errors.As(err, &we) {
		if we.WriteConcernError != nil && mongoerr.IsRetryableCode(we.WriteConcernError.Code) {
			return true
		}
	}

	// Bucket 3: command-level error with a non-retryable code surfaces
	// immediately.
	return false
}

// RunSync runs op to completion on the Executor's worker pool, the
// synchronous facade over the cooperative-suspension model described in
// spec.md §5 and §9.
func RunSync[R any](ex *Executor, ctx context.Context, sess *session.Client, op operation.Operation[R]) (R, error) {
	var result R
	var err error
	ex.pool.Run(func() {
		result, err = Run[R](ctx, ex, sess, op)
	})
	return result, err
}

// CommitTransaction implements the session-aware commit wrapper: it
// consults the transaction FSM to decide whether a command must be sent
// at all (a no-op commit from Starting needs none), then, if sent,
// retries indefinitely on a retryable error until commitDeadline, per the
// unconditional-retry exception of §4.5.
func CommitTransaction(ctx context.Context, ex *Executor, sess *session.Client, wc bson.D, commitDeadline time.Time) error {
	shouldSend, err := sess.CommitTransaction()
	if err != nil {
		return err
	}
	if !shouldSend {
		return nil
	}

	if err := sess.Acquire(ctx); err != nil {
		return err
	}
	defer sess.Release()

	op := operation.NewCommitTransaction("admin", wc)

	for {
		res := attempt[response.WriteConcernErrorBody](ctx, ex, sess, op)
		if res.err == nil {
			return nil
		}
		if res.stage == stageBuild {
			return res.err
		}
		if !isRetryableForCommit(res.err) {
			return res.err
		}
		if time.Now().After(commitDeadline) {
			return res.err
		}
		ex.metrics.ObserveRetry(op.Name())
		op.UpdateForRetry()
	}
}

// AbortTransaction implements the session-aware abort wrapper: network
// errors observed while sending abortTransaction are swallowed, per the
// invariant "network errors during abort are swallowed" (spec.md §3).
func AbortTransaction(ctx context.Context, ex *Executor, sess *session.Client, wc bson.D) error {
	shouldSend, err := sess.AbortTransaction()
	if err != nil {
		return err
	}
	if !shouldSend {
		return nil
	}

	if err := sess.Acquire(ctx); err != nil {
		return err
	}
	defer sess.Release()

	op := operation.NewAbortTransaction("admin", wc)
	res := attempt[response.WriteConcernErrorBody](ctx, ex, sess, op)
	if res.err != nil {
		logrus.WithFields(logrus.Fields{"err": res.err}).Debug("abortTransaction failed, swallowing per spec")
	}
	return nil
}

func isRetryableForCommit(err error) bool {
	var netErr *mongoerr.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	if mongoerr.IsRetryableLabel(err, mongoerr.LabelRetryableWrite) {
		return true
	}
	var ce *mongoerr.CommandError
	if errors.As(err, &ce) && mongoerr.IsRetryableCode(ce.Code) {
		return true
	}
	return false
}
