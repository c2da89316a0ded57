// Package bridge implements the full-duplex byte copy a reverse-connection
// worker performs between the proxy TLS stream and the local loopback
// service once a connection has been activated (SPEC_FULL.md §4.3 step 4).
// It is adapted from the teacher's BasicBridgeChannels
// (pkg/wstchannel/basic_bridge_channels.go) and ConnStats
// (share/connstats.go): copy both directions concurrently, half-close the
// destination when a direction drains, wait for both, then close everything.
package bridge

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sizestr"

	"github.com/portalbox-app/portalbox/internal/logging"
)

// halfCloser is implemented by net.TCPConn and tls.Conn: both support
// shutting down only the write half of a duplex stream so the peer sees
// end-of-stream without losing the ability to keep reading.
type halfCloser interface {
	CloseWrite() error
}

// Stats counts bytes moved in each direction of one Bridge call, reported
// once the bridge ends.
type Stats struct {
	ProxyToLocal int64
	LocalToProxy int64
}

func (s Stats) String() string {
	return fmt.Sprintf("proxy->local %s, local->proxy %s", sizestr.ToString(s.ProxyToLocal), sizestr.ToString(s.LocalToProxy))
}

// Run copies bytes bidirectionally between proxyConn (the activated reverse
// TLS stream) and localConn (the loopback connection to the dispatched
// service) until both directions have drained or errored. It closes both
// connections before returning, and never returns an error for a clean
// close — only for an I/O error encountered mid-copy, which matches
// SPEC_FULL.md's BridgeClosed/transient-I/O-error distinction.
func Run(log logging.Logger, proxyConn, localConn net.Conn) (Stats, error) {
	var stats Stats
	var proxyToLocalErr, localToProxyErr error
	var wg sync.WaitGroup
	wg.Add(2)

	copyDir := func(dst, src net.Conn, n *int64, errOut *error) {
		defer wg.Done()
		copied, err := io.Copy(dst, src)
		atomic.StoreInt64(n, copied)
		*errOut = err
		if hc, ok := dst.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
	}

	go copyDir(localConn, proxyConn, &stats.ProxyToLocal, &proxyToLocalErr)
	go copyDir(proxyConn, localConn, &stats.LocalToProxy, &localToProxyErr)
	wg.Wait()

	_ = localConn.Close()
	_ = proxyConn.Close()

	log.Debugf("bridge done: %s", stats)

	if proxyToLocalErr != nil && proxyToLocalErr != io.EOF {
		return stats, proxyToLocalErr
	}
	if localToProxyErr != nil && localToProxyErr != io.EOF {
		return stats, localToProxyErr
	}
	return stats, nil
}
