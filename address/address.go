// Package address defines the value type used to pin cursors and
// transactions to the server they were opened against.
package address

import "fmt"

// ServerAddress identifies a single server within a topology. It is a
// plain host:port pair; resolution and dialing are the topology's concern.
type ServerAddress string

// NewServerAddress joins a host and port the way the teacher's connector
// code builds endpoint strings, defaulting the port when unset.
func NewServerAddress(host string, port uint16) ServerAddress {
	if port == 0 {
		port = 27017
	}
	return ServerAddress(fmt.Sprintf("%s:%d", host, port))
}

func (a ServerAddress) String() string { return string(a) }
