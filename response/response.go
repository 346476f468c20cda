// Package response defines typed views over reply documents: plain,
// write-concern-only, write, and cursor-bearing, and the validation step
// each performs before a descriptor's decode returns success (spec.md §4.2).
package response

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/mongoerr"
)

// PlainBody is an arbitrary typed body with no intrinsic write semantics,
// used by findAndModify, count, distinct, and runCommand.
type PlainBody struct {
	Raw bson.Raw
}

// DecodePlain converts a successful (ok:1) reply into a PlainBody. Command
// errors are expected to have already been extracted by the caller via
// ExtractCommandError.
func DecodePlain(reply bson.Raw) PlainBody {
	return PlainBody{Raw: reply}
}

// WriteConcernErrorBody is the write-concern-only reply shape used by
// commitTransaction and abortTransaction: it may surface a single
// cluster-wide write-concern error plus server-supplied error labels.
type WriteConcernErrorBody struct {
	WriteConcernError *mongoerr.WriteConcernError
	Labels            []string
}

// Validate fails iff a writeConcernError is present, per §4.2.
func (b WriteConcernErrorBody) Validate() error {
	if b.WriteConcernError == nil {
		return nil
	}
	return &mongoerr.CommandError{
		Code:    b.WriteConcernError.Code,
		Name:    b.WriteConcernError.Name,
		Message: b.WriteConcernError.Message,
		Labels:  b.Labels,
	}
}

// WriteCommandResult is the Write body shape: an acknowledgment count n,
// an optional list of per-document write errors (each carrying a batch
// index), an optional write-concern error, and error labels.
type WriteCommandResult struct {
	N                 int32
	WriteErrors       []mongoerr.WriteError
	WriteConcernError *mongoerr.WriteConcernError
	Labels            []string

	// UpsertedIDs maps batch index to the server-generated _id for
	// upserted documents. DecodeWriteCommandResult does not read the
	// reply's upserted array and leaves it nil.
	UpsertedIDs map[int]bson.RawValue
}

// Validate succeeds iff both WriteErrors and WriteConcernError are absent.
// When either is present, callers should surface a *mongoerr.WriteException
// built from this result via ToWriteException instead of a bare error.
func (r WriteCommandResult) Validate() error {
	if len(r.WriteErrors) == 0 && r.WriteConcernError == nil {
		return nil
	}
	return r.ToWriteException()
}

// ToWriteException maps the result to the bulk-write failure surface of
// §4.2, bundling both error lists (either may be empty) and the top-level
// labels.
func (r WriteCommandResult) ToWriteException() *mongoerr.WriteException {
	return &mongoerr.WriteException{
		N:                 r.N,
		WriteErrors:       r.WriteErrors,
		WriteConcernError: r.WriteConcernError,
		Labels:            r.Labels,
	}
}

// DecodeWriteCommandResult parses a write reply's n, writeErrors,
// writeConcernError, and errorLabels fields. offset is added to every
// decoded writeErrors[i].Index, translating a retried batch's indices
// back to the caller's original batch per the per-operation rule in §4.1.
func DecodeWriteCommandResult(reply bson.Raw, offset int) WriteCommandResult {
	var out WriteCommandResult

	if n, err := reply.LookupErr("n"); err == nil {
		out.N = asInt32(n)
	}

	if we, err := reply.LookupErr("writeErrors"); err == nil {
		if arr, ok := we.ArrayOK(); ok {
			values, _ := arr.Values()
			for _, v := range values {
				doc, ok := v.DocumentOK()
				if !ok {
					continue
				}
				var idx int32
				var code int32
				var msg string
				if iv, err := doc.LookupErr("index"); err == nil {
					idx = asInt32(iv)
				}
				if cv, err := doc.LookupErr("code"); err == nil {
					code = asInt32(cv)
				}
				if mv, err := doc.LookupErr("errmsg"); err == nil {
					msg = mv.StringValue()
				}
				out.WriteErrors = append(out.WriteErrors, mongoerr.WriteError{
					Index:   int(idx) + offset,
					Code:    code,
					Message: msg,
				})
			}
		}
	}

	if wce, err := reply.LookupErr("writeConcernError"); err == nil {
		if doc, ok := wce.DocumentOK(); ok {
			out.WriteConcernError = decodeWriteConcernError(doc)
		}
	}

	out.Labels = errorLabels(reply)
	return out
}

func decodeWriteConcernError(doc bson.Raw) *mongoerr.WriteConcernError {
	wce := &mongoerr.WriteConcernError{}
	if cv, err := doc.LookupErr("code"); err == nil {
		wce.Code = asInt32(cv)
	}
	if nv, err := doc.LookupErr("codeName"); err == nil {
		wce.Name = nv.StringValue()
	}
	if mv, err := doc.LookupErr("errmsg"); err == nil {
		wce.Message = mv.StringValue()
	}
	if iv, err := doc.LookupErr("errInfo"); err == nil {
		wce.Errinfo = iv.Value
	}
	return wce
}

func errorLabels(reply bson.Raw) []string {
	v, err := reply.LookupErr("errorLabels")
	if err != nil {
		return nil
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	values, _ := arr.Values()
	labels := make([]string, 0, len(values))
	for _, e := range values {
		labels = append(labels, e.StringValue())
	}
	return labels
}

func asInt32(v bson.RawValue) int32 {
	switch v.Type {
	case bson.TypeInt32:
		return v.Int32()
	case bson.TypeInt64:
		return int32(v.Int64())
	case bson.TypeDouble:
		return int32(v.Double())
	default:
		return 0
	}
}

// CursorResponse is the cursor-bearing body: a cursor id (0 = exhausted),
// the originating namespace, and the first or next batch as an ordered
// sequence of documents.
type CursorResponse struct {
	CursorID   int64
	Namespace  string
	FirstBatch []bson.Raw
	PostBatchResumeToken bson.Raw
}

// DecodeCursorResponse parses the `cursor` subdocument of a reply, used
// by find/aggregate/listCollections/listDatabases/getMore. Any top-level
// ok:0 must already have been converted to a command error before this
// is called, per §4.2.
func DecodeCursorResponse(reply bson.Raw) (CursorResponse, error) {
	cursorVal, err := reply.LookupErr("cursor")
	if err != nil {
		return CursorResponse{}, &mongoerr.CommandError{Message: "reply missing cursor field"}
	}
	doc, ok := cursorVal.DocumentOK()
	if !ok {
		return CursorResponse{}, &mongoerr.CommandError{Message: "cursor field is not a document"}
	}

	var out CursorResponse
	if id, err := doc.LookupErr("id"); err == nil {
		out.CursorID = int64(asInt64(id))
	}
	if ns, err := doc.LookupErr("ns"); err == nil {
		out.Namespace = ns.StringValue()
	}

	batchKey := "firstBatch"
	if _, err := doc.LookupErr("nextBatch"); err == nil {
		batchKey = "nextBatch"
	}
	if batch, err := doc.LookupErr(batchKey); err == nil {
		if arr, ok := batch.ArrayOK(); ok {
			values, _ := arr.Values()
			for _, v := range values {
				if d, ok := v.DocumentOK(); ok {
					out.FirstBatch = append(out.FirstBatch, bson.Raw(d))
				}
			}
		}
	}
	return out, nil
}

func asInt64(v bson.RawValue) int64 {
	switch v.Type {
	case bson.TypeInt64:
		return v.Int64()
	case bson.TypeInt32:
		return int64(v.Int32())
	case bson.TypeDouble:
		return int64(v.Double())
	default:
		return 0
	}
}

// ExtractCommandError converts a reply with ok:0 into a *mongoerr.CommandError,
// or returns nil if the reply reports success.
func ExtractCommandError(reply bson.Raw) error {
	okVal, err := reply.LookupErr("ok")
	if err == nil {
		if f, ok := okAsFloat(okVal); ok && f == 1.0 {
			return nil
		}
	}

	ce := &mongoerr.CommandError{Labels: errorLabels(reply)}
	if cv, err := reply.LookupErr("code"); err == nil {
		ce.Code = asInt32(cv)
	}
	if nv, err := reply.LookupErr("codeName"); err == nil {
		ce.Name = nv.StringValue()
	}
	if mv, err := reply.LookupErr("errmsg"); err == nil {
		ce.Message = mv.StringValue()
	} else {
		ce.Message = "command failed"
	}
	return ce
}

func okAsFloat(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bson.TypeDouble:
		return v.Double(), true
	case bson.TypeInt32:
		return float64(v.Int32()), true
	case bson.TypeInt64:
		return float64(v.Int64()), true
	case bson.TypeBoolean:
		if v.Boolean() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
