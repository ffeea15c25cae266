// Package transport provides abstractions for network connection
// establishment.  A Dialer decides how FTP control and data connections
// reach the server: directly over TCP, or through an SSH bastion.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH client).  Stateless dialers return nil.
	Close() error
}
