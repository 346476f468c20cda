// Package topology declares the external collaborator contracts the
// executor consumes for server selection, connection checkout, and
// round-tripping a command: "pick a server matching these criteria",
// per spec.md §1's Non-goals. No selection algorithm or pool is
// implemented here.
package topology

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"go.nestdb.dev/driver/address"
	"go.nestdb.dev/driver/description"
)

// Topology selects a server matching criteria, blocking up to its
// deadline before returning a selection-timeout error.
type Topology interface {
	SelectServer(ctx context.Context, criteria description.SelectionCriteria) (ServerHandle, description.StreamDescription, error)
}

// Credential is the handshake token source a ServerHandle consults while
// establishing a connection, implemented by auth.Credential. A nil
// Credential means the connection is established without a handshake
// token, e.g. against a topology that has authentication disabled.
type Credential interface {
	Token(mechanism string) (string, error)
}

// ServerHandle is a single selected server, capable of handing out
// connections and identifying itself for cursor/transaction pinning.
type ServerHandle interface {
	// Connection checks out a connection, presenting cred's handshake
	// token if cred is non-nil.
	Connection(ctx context.Context, cred Credential) (Connection, error)
	Address() address.ServerAddress
}

// Connection is a single checked-out connection. Every checkout must end
// in exactly one of Discard or Release (testable property 1 of spec.md §8).
type Connection interface {
	// SendRead writes cmd and reads back the reply, honoring deadline.
	SendRead(ctx context.Context, cmd bson.D, deadline time.Time) (bson.Raw, error)
	// Discard reports the connection unusable; it is not returned to the
	// pool. Called when a network error occurred on this connection.
	Discard()
	// Release returns a still-usable connection to the pool.
	Release()
}

// ByAddress selects the specific server a cursor or transaction is pinned
// to, bypassing normal selection criteria. Implementations may return a
// selection error if that server is no longer part of the topology.
type ByAddress interface {
	SelectServerByAddress(ctx context.Context, addr address.ServerAddress) (ServerHandle, description.StreamDescription, error)
}
