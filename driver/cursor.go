package driver

import (
	"context"

	"go.nestdb.dev/driver/cursor"
	"go.nestdb.dev/driver/mongoerr"
	"go.nestdb.dev/driver/operation"
	"go.nestdb.dev/driver/response"
	"go.nestdb.dev/driver/session"
)

// OpenCursor runs a cursor-bearing operation (find, aggregate,
// listCollections, ...) through the same SELECT→BUILD→SEND→DECODE→retry
// path as Run, then wraps the first batch into a Cursor pinned to the
// server the command actually ran against, per spec.md §4.3.
func OpenCursor(ctx context.Context, ex *Executor, sess *session.Client, database, collection string, op operation.Operation[response.CursorResponse], opts ...cursor.Option) (*cursor.Cursor, error) {
	if sess != nil {
		if err := sess.Acquire(ctx); err != nil {
			return nil, err
		}
		defer sess.Release()
	}

	first := attempt[response.CursorResponse](ctx, ex, sess, op)
	if first.err == nil {
		opts = append(opts, cursor.WithMetrics(ex.metrics), cursor.WithCredential(ex.credential))
		return cursor.New(database, collection, first.server, first.streamD, sess, first.result, opts...), nil
	}

	insideTxn := sess != nil && sess.Transaction() != nil &&
		(sess.Transaction().State == session.TransactionStarting || sess.Transaction().State == session.TransactionInProgress)
	if !shouldRetry(op.Retryability(), first.err, first.stage, insideTxn, first.streamD) {
		return nil, first.err
	}

	ex.metrics.ObserveRetry(op.Name())
	op.UpdateForRetry()

	second := attempt[response.CursorResponse](ctx, ex, sess, op)
	if second.err != nil {
		return nil, mongoerr.WithOriginalError(second.err, first.err)
	}
	opts = append(opts, cursor.WithMetrics(ex.metrics), cursor.WithCredential(ex.credential))
	return cursor.New(database, collection, second.server, second.streamD, sess, second.result, opts...), nil
}
