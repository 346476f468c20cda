// Package operation models every server command as a descriptor exposing
// a uniform build/decode/retry contract (spec.md §4.1). The executor in
// package driver is generic over Operation[R] and branches only on
// Retryability and the response-body shape, per the design note in
// spec.md §9 against virtual dispatch at call sites.
package operation

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/wiremsg"
)

// Retryability classifies an operation for the executor's retry decision
// (spec.md §4.5, §6).
type Retryability int

const (
	// RetryNone operations get at most one attempt.
	RetryNone Retryability = iota
	// RetryRead operations retry once on a retryable read error.
	RetryRead
	// RetryWrite operations retry once on a retryable write error, except
	// commitTransaction which retries until its commit deadline.
	RetryWrite
)

func (r Retryability) String() string {
	switch r {
	case RetryRead:
		return "Read"
	case RetryWrite:
		return "Write"
	default:
		return "None"
	}
}

// Operation is the uniform contract every server command implements.
// R is the descriptor's decoded result type, selected by the response
// body shape it uses (PlainBody, WriteCommandResult, CursorResponse, or a
// void success marker for write-concern-only commands).
type Operation[R any] interface {
	// Name is used for diagnostics and as the command document's first key.
	Name() string

	// Build produces the outgoing command for streamDesc. It may mutate
	// descriptor-internal state needed later by Decode. Insert's Build
	// does not generate or record _id values; documents are sent as given.
	Build(streamDesc description.StreamDescription) (wiremsg.Command, error)

	// Decode interprets reply, including schema-specific validation,
	// and maps it to the descriptor's user-visible result.
	Decode(reply bson.Raw, streamDesc description.StreamDescription) (R, error)

	// RecoverFromError is consulted when Decode returns an error; the
	// default is to re-raise (ok==false). A small number of operations
	// convert selected server error codes into success.
	RecoverFromError(err error) (result R, ok bool)

	// SelectionCriteria constrains which server may run this command;
	// a zero-value SelectionCriteria requests the topology's default
	// (primary, for a replica set).
	SelectionCriteria() description.SelectionCriteria

	// WriteConcern returns this operation's write concern, or nil.
	WriteConcern() bson.D

	// IsAcknowledged reports whether the executor must read a reply at
	// all; an unacknowledged write's Decode is never called.
	IsAcknowledged() bool

	// SupportsSessions reports whether this command may carry lsid;
	// some administrative commands must not.
	SupportsSessions() bool

	// Retryability reports this operation's retry class.
	Retryability() Retryability

	// UpdateForRetry is called by the executor between attempts, before
	// the retry's Build. Create and DropCollection use it to mark
	// themselves as retried; the other descriptors in this package,
	// Insert included, implement it as a no-op and never narrow a
	// partially applied batch.
	UpdateForRetry()
}

// base holds the fields common to every descriptor in this package:
// target namespace, read preference, and write concern. Embedding it
// keeps each concrete descriptor's declaration focused on what makes it
// different, the way the teacher's protocol message types embed a common
// envelope.
type base struct {
	Database       string
	Collection     string
	readPref       *description.ReadPref
	writeConcern   bson.D
	acknowledged   bool
}

func (b base) namespaceValue() interface{} {
	if b.Collection == "" {
		return int32(1)
	}
	return b.Collection
}

func (b base) SelectionCriteria() description.SelectionCriteria {
	return description.SelectionCriteria{ReadPref: b.readPref}
}

func (b base) WriteConcern() bson.D { return b.writeConcern }

func (b base) IsAcknowledged() bool {
	if b.writeConcern == nil {
		return true
	}
	return b.acknowledged && writeConcernAcknowledged(b.writeConcern)
}

func (b base) SupportsSessions() bool { return true }

func writeConcernAcknowledged(wc bson.D) bool {
	for _, e := range wc {
		if e.Key == "w" {
			if n, ok := e.Value.(int); ok {
				return n != 0
			}
			if s, ok := e.Value.(string); ok {
				return s != ""
			}
		}
	}
	return true
}
