// Package router implements the local-service router (SPEC_FULL.md §4.6): a
// pure function from an activation tag to a loopback port, plus the single
// TCP dial a worker performs once it knows which port to reach.
package router

import (
	"context"
	"fmt"
	"net"

	"github.com/portalbox-app/portalbox/internal/wire"
)

// Ports holds the three configurable loopback ports a worker may be routed
// to, sourced from Config (local_home_service_port, vscode_port, ssh_port).
type Ports struct {
	Home   uint16
	Vscode uint16
	SSH    uint16
}

// ErrNotActivation is returned by PortFor when given a message that is not
// one of the three data-activation codes.
var ErrNotActivation = fmt.Errorf("router: message is not an activation tag")

// PortFor maps an activation tag to the loopback port it is configured to
// reach (SPEC_FULL.md §4.6 table).
func (p Ports) PortFor(tag wire.Message) (uint16, error) {
	switch tag {
	case wire.DataHome:
		return p.Home, nil
	case wire.DataVscode:
		return p.Vscode, nil
	case wire.DataSsh:
		return p.SSH, nil
	default:
		return 0, ErrNotActivation
	}
}

// Dial opens a TCP connection to 127.0.0.1:port for the resolved service.
// A failure here is SPEC_FULL.md's LocalUnavailable — the caller (the
// reverse-connection worker) has already emitted its replenishment signal
// by the time Dial is called, which is load-bearing: the pool refills
// whether or not the local service is reachable.
func Dial(ctx context.Context, port uint16) (net.Conn, error) {
	var d net.Dialer
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("router: connect to local service at %s: %w", addr, err)
	}
	return conn, nil
}
