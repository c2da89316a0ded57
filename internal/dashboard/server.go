// Package dashboard implements the local dashboard HTTP server
// (SPEC_FULL.md §4.10): the localhost HTTP endpoints that drive sign-in and
// report tunnel status as JSON. It is grounded in the teacher's
// HTTPServer (share/http_server.go) and Server.Start's requestlog.Wrap
// pattern (share/server.go) — embed *http.Server, listen with a
// context-aware goroutine, and wrap the handler in request logging only at
// debug level.
package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/jpillora/requestlog"
	"github.com/tomasen/realip"

	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/secret"
	"github.com/portalbox-app/portalbox/internal/tunnel"
	"github.com/portalbox-app/portalbox/internal/webterm"
)

// SignInRequest is the JSON body of a sign-in POST, eventually translated
// into a tunnel.TunnelRequest and pushed onto the daemon's channel.
type SignInRequest struct {
	Token         string `json:"token"`
	BaseSubDomain string `json:"base_sub_domain"`
}

// Status is returned as JSON by GET /api/status.
type Status struct {
	SignedIn      bool   `json:"signed_in"`
	BaseSubDomain string `json:"base_sub_domain"`
}

// Server is the local dashboard: it accepts a sign-in, forwards a
// TunnelRequest to the daemon, and reports its sign-in state as JSON on
// /api/status. It serves no HTML page of its own.
type Server struct {
	log      logging.Logger
	requests chan<- tunnel.TunnelRequest
	server   *http.Server

	mu     sync.Mutex
	status Status
}

// New builds a Server that forwards sign-ins onto requests. debug controls
// whether requests are wrapped in requestlog.Wrap, matching the teacher's
// "only log requests when GetLogLevel() >= LogLevelDebug" behavior.
// shellCommand is passed straight through to the mounted terminal handler
// (SPEC_FULL.md §4.12); an empty string lets webterm fall back to its own
// default shell.
func New(log logging.Logger, requests chan<- tunnel.TunnelRequest, debug bool, shellCommand string) *Server {
	s := &Server{log: log, requests: requests}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/signin", s.handleSignIn)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/api/terminal", webterm.Handler(log.Fork("webterm"), shellCommand))

	var handler http.Handler = mux
	if debug {
		handler = requestlog.Wrap(handler)
	}

	s.server = &http.Server{Handler: handler}
	return s
}

// ListenAndServe binds addr and serves until ctx is cancelled, mirroring
// the teacher's HTTPServer.ListenAndServe: a context-aware shutdown
// goroutine racing the blocking Serve call.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.server.Close()
	}()

	s.log.Infof("dashboard listening on %s", addr)
	err = s.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if len(req.Token) == 0 || req.BaseSubDomain == "" {
		http.Error(w, "token and base_sub_domain are required", http.StatusBadRequest)
		return
	}

	s.log.Infof("sign-in request from %s for subdomain %s", realip.RealIP(r), req.BaseSubDomain)

	s.requests <- tunnel.TunnelRequest{
		Token:         secret.New(req.Token),
		BaseSubDomain: req.BaseSubDomain,
	}
	s.mu.Lock()
	s.status = Status{SignedIn: true, BaseSubDomain: req.BaseSubDomain}
	s.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
