// Package update implements the self-update prober (SPEC_FULL.md §4.13): a
// periodic check against the portal server's client-version endpoint,
// logging when a newer build is available. It is grounded in the original
// version.rs: parse the running VERSION with semver, POST/GET a
// ClientVersionRequest carrying it, compare the returned latest_version.
// Go has no reqwest analogue in the retrieved corpus, so this component
// uses net/http directly (see DESIGN.md); the periodic-retry shape reuses
// the teacher's Client.connectionLoop backoff idiom via jpillora/backoff,
// the same dependency the tunnel pool and editor supervisor already use.
package update

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jpillora/backoff"

	"github.com/portalbox-app/portalbox/internal/logging"
)

// DefaultCheckInterval matches the original's "check once at startup, then
// once a day" cadence described in client_instance.rs's scheduling of
// version::check.
const DefaultCheckInterval = 24 * time.Hour

// clientVersionRequest mirrors the original's ClientVersionRequest.
type clientVersionRequest struct {
	CurrentVersion string `json:"current_version"`
}

// clientVersionResponse mirrors the original's ClientVersionResponse.
type clientVersionResponse struct {
	LatestVersion string `json:"latest_version"`
}

// Prober periodically asks the portal server for the latest client
// version and logs when the locally running build is out of date.
type Prober struct {
	log        logging.Logger
	httpClient *http.Client
	endpoint   string
	current    *semver.Version
	interval   time.Duration
}

// NewProber builds a Prober that checks serverURL+"/api/client-version"
// every interval (DefaultCheckInterval if zero). currentVersion must be a
// valid semver string; an invalid build version is a programming error, so
// NewProber returns an error rather than silently skipping checks.
func NewProber(log logging.Logger, serverURL, currentVersion string, interval time.Duration) (*Prober, error) {
	v, err := semver.NewVersion(currentVersion)
	if err != nil {
		return nil, fmt.Errorf("update: parsing current version %q: %w", currentVersion, err)
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Prober{
		log:        log,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   serverURL + "/api/client-version",
		current:    v,
		interval:   interval,
	}, nil
}

// Run checks immediately, then on every tick of interval, until ctx is
// cancelled. A failed check is logged and retried with the same
// never-give-up exponential backoff the tunnel pool uses for dialing,
// capped at interval so a string of failures can't silently stop checking
// altogether.
func (p *Prober) Run(ctx context.Context) error {
	b := &backoff.Backoff{Max: p.interval}
	for {
		if err := p.checkOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d := b.Duration()
			p.log.Debugf("version check failed: %v; retrying in %s", err, d)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				continue
			}
		}
		b.Reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

func (p *Prober) checkOnce(ctx context.Context) error {
	latest, err := p.fetchLatest(ctx)
	if err != nil {
		return err
	}
	if latest.GreaterThan(p.current) {
		p.log.Infof("update available: running %s, latest is %s", p.current, latest)
	} else {
		p.log.Debugf("already running the latest version %s", p.current)
	}
	return nil
}

func (p *Prober) fetchLatest(ctx context.Context) (*semver.Version, error) {
	body, err := json.Marshal(clientVersionRequest{CurrentVersion: p.current.String()})
	if err != nil {
		return nil, fmt.Errorf("update: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("update: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: requesting %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: %s returned status %d", p.endpoint, resp.StatusCode)
	}

	var out clientVersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("update: decoding response: %w", err)
	}

	latest, err := semver.NewVersion(out.LatestVersion)
	if err != nil {
		return nil, fmt.Errorf("update: parsing latest_version %q: %w", out.LatestVersion, err)
	}
	return latest, nil
}
