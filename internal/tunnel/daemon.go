package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/portalbox-app/portalbox/internal/lifecycle"
	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/tlsdial"
)

// Daemon is the single long-lived actor described in SPEC_FULL.md §4.5. Its
// public surface is an inbound request channel; the enclosing CLI/dashboard
// pushes TunnelRequest values and never expects a reply.
type Daemon interface {
	Requests() chan<- TunnelRequest
	Run(ctx context.Context) error

	// UpdateConfig applies cfg to every future pool and re-registers every
	// currently active registration against it, per SPEC_FULL.md §4.7: the
	// core never watches config files itself, but its owner (the CLI
	// start command, reacting to a config.Watcher event) can push a
	// reloaded Config here to pick up port edits without a process
	// restart.
	UpdateConfig(cfg Config)
}

type daemon struct {
	log    logging.Logger
	cfg    Config
	dialer *tlsdial.Dialer
	root   *lifecycle.Scope

	requests chan TunnelRequest

	mu    sync.Mutex
	pools []*pool
}

// NewDaemon constructs a Daemon. dialer is shared by every pool and every
// worker it ever spawns (SPEC_FULL.md §4.2 "one instance is shared by all
// workers of all pools").
func NewDaemon(log logging.Logger, cfg Config, dialer *tlsdial.Dialer) Daemon {
	return &daemon{
		log:      log,
		cfg:      cfg.withDefaults(),
		dialer:   dialer,
		root:     lifecycle.NewRootScope(),
		requests: make(chan TunnelRequest, 1),
	}
}

func (d *daemon) Requests() chan<- TunnelRequest {
	return d.requests
}

// Run accepts requests until ctx is done. Each request spawns one pool
// supervisor; registrations are independent, so a re-sign-in with a new
// credential simply runs a second pool alongside the first (SPEC_FULL.md
// §4.5 step 3).
func (d *daemon) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.root.Cancel(ctx.Err())
	}()

	for {
		select {
		case <-ctx.Done():
			d.root.Wait()
			return ctx.Err()
		case req := <-d.requests:
			if err := d.register(req); err != nil {
				d.log.Errorf("registering %s: %v", req.BaseSubDomain, err)
			}
		}
	}
}

// register resolves the proxy endpoint once (spec.md §4.5 step 1 — "DNS
// lookup at registration time; the address is then cached for the pool's
// lifetime") and spawns a supervisor for the resulting registration.
func (d *daemon) register(req TunnelRequest) error {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()
	_, err := d.spawnPool(cfg, req)
	return err
}

// spawnPool resolves the proxy endpoint under cfg and starts a pool
// supervisor for req, recording it so a later UpdateConfig can tear it
// down and replace it.
func (d *daemon) spawnPool(cfg Config, req TunnelRequest) (*pool, error) {
	addr := net.JoinHostPort(cfg.ProxyHost, strconv.Itoa(int(cfg.ProxyPort)))
	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve proxy endpoint %s: %w", addr, err)
	}

	reg := TunnelRegistration{
		Token:         req.Token,
		BaseSubDomain: req.BaseSubDomain,
		ProxyAddr:     resolved.String(),
	}

	p := newPool(d.log.Fork(fmt.Sprintf("pool[%s]", req.BaseSubDomain)), reg, cfg, d.dialer, d.root)
	d.mu.Lock()
	d.pools = append(d.pools, p)
	d.mu.Unlock()

	d.root.Go(p.run)
	d.log.Infof("registered subdomain %s via proxy %s", req.BaseSubDomain, reg.ProxyAddr)
	return p, nil
}

// errConfigReload is the cancellation cause recorded on a pool's scope when
// it is torn down to be replaced by one built from a reloaded Config.
var errConfigReload = errors.New("tunnel: pool replaced after config reload")

// UpdateConfig implements Daemon.UpdateConfig: every pool currently
// registered is cancelled and immediately respawned under cfg. Each
// registration's token and subdomain survive the swap unchanged; only the
// port/proxy settings a pool hands its workers are replaced.
//
// A pool already dead from AuthFailed is cancelled again (a harmless no-op:
// context.WithCancelCause keeps the first cause) but is not respawned —
// SPEC_FULL.md §3 says that registration lives until AuthFailed or daemon
// shutdown, and a later config reload must not resurrect it by re-dialing
// with the same rejected token.
func (d *daemon) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()

	d.mu.Lock()
	d.cfg = cfg
	oldPools := d.pools
	d.pools = nil
	d.mu.Unlock()

	for _, p := range oldPools {
		p.scope.Cancel(errConfigReload)
	}
	for _, p := range oldPools {
		if errors.Is(p.scope.Err(), ErrAuthFailed) {
			d.log.Debugf("not re-registering %s: already dead from AuthFailed", p.reg.BaseSubDomain)
			continue
		}
		req := TunnelRequest{Token: p.reg.Token, BaseSubDomain: p.reg.BaseSubDomain}
		if _, err := d.spawnPool(cfg, req); err != nil {
			d.log.Errorf("re-registering %s after config reload: %v", p.reg.BaseSubDomain, err)
		}
	}
}
