package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portalbox-app/portalbox/internal/logging"
)

func TestCheckOnceSucceedsWhenUpdateAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clientVersionResponse{LatestVersion: "1.5.0"})
	}))
	defer srv.Close()

	p, err := NewProber(logging.New("test", logging.LevelDebug), srv.URL, "1.2.0", time.Hour)
	if err != nil {
		t.Fatalf("NewProber: %v", err)
	}
	p.endpoint = srv.URL + "/api/client-version"

	if err := p.checkOnce(context.Background()); err != nil {
		t.Fatalf("checkOnce: %v", err)
	}
}

func TestCheckOnceSurvivesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := NewProber(logging.New("test", logging.LevelDebug), srv.URL, "1.2.0", time.Hour)
	if err != nil {
		t.Fatalf("NewProber: %v", err)
	}
	p.endpoint = srv.URL + "/api/client-version"

	if err := p.checkOnce(context.Background()); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestNewProberRejectsInvalidVersion(t *testing.T) {
	if _, err := NewProber(logging.New("test", logging.LevelDebug), "https://example.com", "not-a-version", time.Hour); err == nil {
		t.Fatal("expected an error for an invalid current version")
	}
}
