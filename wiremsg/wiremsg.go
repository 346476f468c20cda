// Package wiremsg defines the command/reply envelope operation descriptors
// build and decode, and the decoration helpers the session and executor use
// to append lsid, cluster time, transaction fields, and concern documents
// before a command is sent.
package wiremsg

import (
	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/description"
)

// Command is a request to the server: a target namespace, the command body
// whose first key is the command name, the effective read preference, and
// an optional server-session identifier carried alongside for decoration.
type Command struct {
	Database       string
	Collection     string
	Body           bson.D
	ReadPref       *description.ReadPref
	ServerSession  []byte // opaque lsid id bytes; nil if the command carries no session
}

// Reply is the raw response document returned by the server.
type Reply = bson.Raw

// NewCommand starts a command document with name as its first key, value
// as its argument (the collection name, or 1 for database-level commands).
func NewCommand(name string, value interface{}, database string) Command {
	return Command{
		Database: database,
		Body:     bson.D{{Key: name, Value: value}},
	}
}

// Append adds a key/value pair to the command body, preserving document
// order the way the wire protocol requires.
func (c *Command) Append(key string, value interface{}) {
	c.Body = append(c.Body, bson.E{Key: key, Value: value})
}

// AppendDB attaches the $db field, always last among the decoration fields
// added by the executor per §6.
func (c *Command) AppendDB() {
	c.Append("$db", c.Database)
}

// AppendLSID attaches the logical session id document.
func (c *Command) AppendLSID(lsidDoc bson.D) {
	c.Append("lsid", lsidDoc)
}

// AppendClusterTime attaches the last-seen $clusterTime, when known.
func (c *Command) AppendClusterTime(ct bson.Raw) {
	if len(ct) == 0 {
		return
	}
	c.Append("$clusterTime", ct)
}

// AppendTxnNumber attaches the transaction number as an int64, the shape
// the wire protocol requires.
func (c *Command) AppendTxnNumber(n int64) {
	c.Append("txnNumber", n)
}

// AppendAutocommit attaches autocommit:false, present on every command
// issued inside a transaction.
func (c *Command) AppendAutocommit() {
	c.Append("autocommit", false)
}

// AppendStartTransaction attaches startTransaction:true, present only on
// the first command of a transaction.
func (c *Command) AppendStartTransaction() {
	c.Append("startTransaction", true)
}

// AppendReadConcern attaches a readConcern document.
func (c *Command) AppendReadConcern(rc bson.D) {
	if rc == nil {
		return
	}
	c.Append("readConcern", rc)
}

// AppendWriteConcern attaches a writeConcern document. Callers must only
// invoke this for commit/abort or for commands outside a transaction,
// per §4.4's "writeConcern is attached only to commit/abort" rule.
func (c *Command) AppendWriteConcern(wc bson.D) {
	if wc == nil {
		return
	}
	c.Append("writeConcern", wc)
}

// AppendReadPreference attaches a readPreference document built from the
// effective ReadPref, when it requests something other than the topology
// default.
func (c *Command) AppendReadPreference(doc bson.D) {
	if doc == nil {
		return
	}
	c.Append("readPreference", doc)
}

// OK reports the ok field of a reply: 1.0 success, 0.0 failure.
func OK(reply Reply) bool {
	v, err := reply.LookupErr("ok")
	if err != nil {
		return false
	}
	f, ok := asFloat(v)
	return ok && f == 1.0
}

func asFloat(v bson.RawValue) (float64, bool) {
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

// ErrorLabels extracts the errorLabels array from a reply, if present.
func ErrorLabels(reply Reply) []string {
	v, err := reply.LookupErr("errorLabels")
	if err != nil {
		return nil
	}
	vals, err := v.Array().Values()
	if err != nil {
		return nil
	}
	labels := make([]string, 0, len(vals))
	for _, e := range vals {
		labels = append(labels, e.StringValue())
	}
	return labels
}
