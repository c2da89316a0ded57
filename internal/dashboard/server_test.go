package dashboard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/tunnel"
)

func TestHandleSignInForwardsTunnelRequest(t *testing.T) {
	requests := make(chan tunnel.TunnelRequest, 1)
	s := New(logging.New("test", logging.LevelDebug), requests, false, "")

	body, _ := json.Marshal(SignInRequest{Token: "abc", BaseSubDomain: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/signin", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleSignIn(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	select {
	case tr := <-requests:
		if tr.BaseSubDomain != "alice" {
			t.Errorf("BaseSubDomain = %q, want alice", tr.BaseSubDomain)
		}
		if tr.Token.Expose() != "abc" {
			t.Errorf("Token = %q, want abc", tr.Token.Expose())
		}
	default:
		t.Fatal("expected a TunnelRequest to be forwarded")
	}
}

func TestHandleSignInRejectsMissingFields(t *testing.T) {
	requests := make(chan tunnel.TunnelRequest, 1)
	s := New(logging.New("test", logging.LevelDebug), requests, false, "")

	req := httptest.NewRequest(http.MethodPost, "/api/signin", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	s.handleSignIn(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	select {
	case <-requests:
		t.Fatal("should not forward an incomplete sign-in")
	default:
	}
}

func TestHandleStatusReportsSignInState(t *testing.T) {
	requests := make(chan tunnel.TunnelRequest, 1)
	s := New(logging.New("test", logging.LevelDebug), requests, false, "")
	s.status = Status{SignedIn: true, BaseSubDomain: "alice"}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !got.SignedIn || got.BaseSubDomain != "alice" {
		t.Errorf("status = %+v, want SignedIn=true BaseSubDomain=alice", got)
	}
}
