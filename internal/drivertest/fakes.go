// Package drivertest provides fake topology.Topology / topology.Connection
// implementations shared by the driver and cursor test suites,
// the way the teacher's lifecycle_test.go hand-builds stream/srvStream/
// clientStream fakes instead of pulling in a mocking framework.
package drivertest

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/address"
	"go.nestdb.dev/driver/description"
	"go.nestdb.dev/driver/topology"
)

// Reply is one scripted response a FakeConnection hands back, in order.
type Reply struct {
	Doc bson.Raw
	Err error
}

// SentCommand records one command observed by a FakeConnection.
type SentCommand struct {
	Body bson.D
}

// FakeConnection is a scripted topology.Connection: callers preload
// Replies and then observe Sent and whether Discard or Release was called.
type FakeConnection struct {
	Replies []Reply
	Sent    []SentCommand

	Discarded bool
	Released  bool

	next int
}

func (c *FakeConnection) SendRead(_ context.Context, cmd bson.D, _ time.Time) (bson.Raw, error) {
	c.Sent = append(c.Sent, SentCommand{Body: cmd})
	if c.next >= len(c.Replies) {
		return nil, fmt.Errorf("drivertest: no scripted reply for call %d", c.next)
	}
	r := c.Replies[c.next]
	c.next++
	return r.Doc, r.Err
}

func (c *FakeConnection) Discard() { c.Discarded = true }
func (c *FakeConnection) Release() { c.Released = true }

var _ topology.Connection = (*FakeConnection)(nil)

// FakeServerHandle hands out a single FakeConnection and reports addr.
type FakeServerHandle struct {
	Addr address.ServerAddress
	Conn *FakeConnection

	// ConnErr, if set, is returned by Connection instead of Conn.
	ConnErr error

	// GotCredential records the Credential passed to the most recent
	// Connection call, so tests can assert a handshake token was offered.
	GotCredential topology.Credential
}

func (h *FakeServerHandle) Connection(_ context.Context, cred topology.Credential) (topology.Connection, error) {
	h.GotCredential = cred
	if h.ConnErr != nil {
		return nil, h.ConnErr
	}
	return h.Conn, nil
}

func (h *FakeServerHandle) Address() address.ServerAddress { return h.Addr }

var _ topology.ServerHandle = (*FakeServerHandle)(nil)

// FakeTopology is a scripted topology.Topology returning a fixed handle
// and stream description, or a configured selection error.
type FakeTopology struct {
	Handle      *FakeServerHandle
	StreamDesc  description.StreamDescription
	SelectErr   error
	ByAddrTable map[address.ServerAddress]*FakeServerHandle

	SelectCalls int
}

func (t *FakeTopology) SelectServer(context.Context, description.SelectionCriteria) (topology.ServerHandle, description.StreamDescription, error) {
	t.SelectCalls++
	if t.SelectErr != nil {
		return nil, description.StreamDescription{}, t.SelectErr
	}
	return t.Handle, t.StreamDesc, nil
}

func (t *FakeTopology) SelectServerByAddress(_ context.Context, addr address.ServerAddress) (topology.ServerHandle, description.StreamDescription, error) {
	if h, ok := t.ByAddrTable[addr]; ok {
		return h, t.StreamDesc, nil
	}
	return t.Handle, t.StreamDesc, nil
}

var (
	_ topology.Topology  = (*FakeTopology)(nil)
	_ topology.ByAddress = (*FakeTopology)(nil)
)

// MustMarshal marshals v to a bson.Raw, panicking on error; a test-only
// convenience for building scripted replies.
func MustMarshal(v interface{}) bson.Raw {
	doc, err := bson.Marshal(v)
	if err != nil {
		panic(err)
	}
	return doc
}
