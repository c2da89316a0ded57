// Package tunnel is the core of PortalBox: the reverse-connection worker,
// the pool supervisor that keeps a fixed number of them warm, and the
// daemon that spawns one pool per registered subdomain (SPEC_FULL.md §4.3,
// §4.4, §4.5). The control-flow shape — a retrying connect loop feeding a
// bridge, torn down by a shared cancellation signal — is the teacher's
// Client.connectionLoop and ShutdownHelper tree, generalized from one
// multiplexed SSH session per process to N independent single-shot
// reverse-connections per registration.
package tunnel

import (
	"errors"
	"time"

	"github.com/portalbox-app/portalbox/internal/router"
	"github.com/portalbox-app/portalbox/internal/secret"
)

// Defaults mirror SPEC_FULL.md §3 and §4.4.
const (
	DefaultMaxReadyConnections = 4
	DefaultRefreshInterval     = 60 * time.Second
	DefaultPingTimeout         = 30 * time.Second
	DefaultMaxBackoffInterval  = 4 * time.Second
)

// Config parameterizes every pool spawned by a Daemon. A running pool never
// sees its Config change; a Daemon's Config is replaced only through
// Daemon.UpdateConfig, which cancels every pool and respawns it under the
// new Config.
type Config struct {
	// ProxyHost is the hostname of the remote proxy, resolved once per
	// registration and also used as the TLS SNI/verification name.
	ProxyHost string
	// ProxyPort is the proxy's reverse-connection listener port.
	ProxyPort uint16

	Ports router.Ports

	MaxReadyConnections int
	RefreshInterval     time.Duration
	PingTimeout         time.Duration
	MaxBackoffInterval  time.Duration
}

// withDefaults fills any zero-valued tunable with its spec default.
func (c Config) withDefaults() Config {
	if c.MaxReadyConnections <= 0 {
		c.MaxReadyConnections = DefaultMaxReadyConnections
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.MaxBackoffInterval <= 0 {
		c.MaxBackoffInterval = DefaultMaxBackoffInterval
	}
	return c
}

// TunnelRequest is pushed onto a Daemon's request channel by an external
// caller (the dashboard sign-in handler or the CLI) to register a new
// subdomain (SPEC_FULL.md §6).
type TunnelRequest struct {
	Token         secret.Token
	BaseSubDomain string
}

// TunnelRegistration is the daemon-owned record handed to one pool
// supervisor for its lifetime (SPEC_FULL.md §3).
type TunnelRegistration struct {
	Token         secret.Token
	BaseSubDomain string
	ProxyAddr     string // resolved host:port, cached for the pool's lifetime
}

// Sentinel errors matching the taxonomy of SPEC_FULL.md §7.
var (
	// ErrAuthFailed is AuthFatal: the proxy rejected the hello token.
	// It cancels the whole pool and is never retried.
	ErrAuthFailed = errors.New("tunnel: proxy rejected auth token")
	// ErrPingTimeout is a pending worker that heard nothing for
	// PingTimeout; it terminates silently without a refill credit.
	ErrPingTimeout = errors.New("tunnel: no frame received before ping timeout")
	// ErrLocalUnavailable is a failure to reach the routed loopback
	// service after activation. The refill signal has already been
	// sent by the time this occurs.
	ErrLocalUnavailable = errors.New("tunnel: local service unavailable")
)
