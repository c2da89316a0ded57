package tunnel

import (
	"net"
	"testing"
	"time"

	"github.com/portalbox-app/portalbox/internal/lifecycle"
	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/wire"
)

func testConfig() Config {
	return Config{
		MaxReadyConnections: 4,
		RefreshInterval:     time.Hour, // keep the refresh ticker out of the way
		PingTimeout:         2 * time.Second,
		MaxBackoffInterval:  50 * time.Millisecond,
	}.withDefaults()
}

// TestPoolRefillsOnActivation covers S2: the pool starts MAX_READY_CONNECTIONS
// workers; activating any one of them must produce exactly one more inbound
// hello shortly after, without waiting for the refresh timer.
func TestPoolRefillsOnActivation(t *testing.T) {
	proxy, dialer := newLoopbackTLSListener(t)
	defer proxy.Close()

	cfg := testConfig()
	reg := TunnelRegistration{Token: testToken(), BaseSubDomain: "localhost", ProxyAddr: proxy.Addr().String()}
	p := newPool(logging.New("pool-test", logging.LevelDebug), reg, cfg, dialer, lifecycle.NewRootScope())
	go p.run()
	defer p.scope.Cancel(nil)

	conns := make(chan net.Conn, cfg.MaxReadyConnections+1)
	go func() {
		for {
			c, err := proxy.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()

	authed := make(chan net.Conn, cfg.MaxReadyConnections)
	for i := 0; i < cfg.MaxReadyConnections; i++ {
		select {
		case c := <-conns:
			go func(c net.Conn) {
				if _, err := wire.ReadHello(c); err != nil {
					return
				}
				if err := wire.WriteMessage(c, wire.AuthOk); err != nil {
					return
				}
				authed <- c
			}(c)
		case <-time.After(2 * time.Second):
			t.Fatalf("did not see the initial %d connections in time", cfg.MaxReadyConnections)
		}
	}

	var activated net.Conn
	select {
	case activated = <-authed:
	case <-time.After(2 * time.Second):
		t.Fatal("no worker completed auth in time")
	}
	if err := wire.WriteMessage(activated, wire.DataVscode); err != nil {
		t.Fatalf("activating worker: %v", err)
	}

	select {
	case <-conns:
		// the refill arrived.
	case <-time.After(1 * time.Second):
		t.Fatal("expected a replenishment hello within 1s of activation")
	}
}

// TestPoolAuthFailedCancelsPool covers S3: AuthFailed on any one worker
// tears down the whole pool, and no further hellos arrive afterward.
func TestPoolAuthFailedCancelsPool(t *testing.T) {
	proxy, dialer := newLoopbackTLSListener(t)
	defer proxy.Close()

	cfg := testConfig()
	reg := TunnelRegistration{Token: testToken(), BaseSubDomain: "localhost", ProxyAddr: proxy.Addr().String()}
	p := newPool(logging.New("pool-test", logging.LevelDebug), reg, cfg, dialer, lifecycle.NewRootScope())
	go p.run()

	conns := make(chan net.Conn, cfg.MaxReadyConnections+2)
	go func() {
		for {
			c, err := proxy.Accept()
			if err != nil {
				return
			}
			conns <- c
		}
	}()

	var first net.Conn
	select {
	case first = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
	}
	go func() {
		if _, err := wire.ReadHello(first); err != nil {
			return
		}
		wire.WriteMessage(first, wire.AuthFailed)
	}()

	select {
	case <-p.scope.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pool was not cancelled within 2s of AuthFailed")
	}

	// Drain whatever connections were already in flight, then make sure
	// nothing new shows up.
	drain := time.After(300 * time.Millisecond)
drainLoop:
	for {
		select {
		case <-conns:
			continue drainLoop
		case <-drain:
			break drainLoop
		}
	}

	select {
	case <-conns:
		t.Fatal("a new hello arrived after the pool was cancelled")
	case <-time.After(300 * time.Millisecond):
	}
}
