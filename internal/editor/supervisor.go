// Package editor supervises the local editor server child process
// (SPEC_FULL.md §4.11): it discovers an installed vscode-server-style app
// under the apps directory, launches it, and restarts it with backoff if
// it exits, the way the teacher's Client.connectionLoop restarts a
// connection (share/client.go) but applied to a child process instead of a
// network dial. Discovery is grounded in the original client_instance.rs's
// ClientInstance::infer / parse_vscode_dir.
package editor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jpillora/backoff"

	"github.com/portalbox-app/portalbox/internal/logging"
)

const vscodeDirPrefix = "portalbox-vscode-"

// AppInfo identifies one installed editor build, matching the original's
// AppInfo (models/lib.rs), trimmed to what local discovery needs.
type AppInfo struct {
	Version string
	OSArch  string
}

// dirName reproduces AppInfo::vscode_dir's naming scheme.
func (a AppInfo) dirName() string {
	return fmt.Sprintf("%s%s-%s", vscodeDirPrefix, a.Version, a.OSArch)
}

// BinaryPath reproduces AppInfo::vscode_cmd.
func (a AppInfo) BinaryPath(appsDir string) string {
	return filepath.Join(appsDir, a.dirName(), "bin", "portalbox-vscode")
}

// Discover scans appsDir for installed "portalbox-vscode-<version>-<os_arch>"
// directories and returns the one with the highest version, matching
// ClientInstance::infer's "sort by latest_version, take the last".
func Discover(appsDir string) (AppInfo, error) {
	entries, err := os.ReadDir(appsDir)
	if err != nil {
		return AppInfo{}, fmt.Errorf("editor: reading %s: %w", appsDir, err)
	}

	var found []AppInfo
	var versions []*semver.Version
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), vscodeDirPrefix) {
			continue
		}
		info, v, ok := parseVscodeDir(e.Name())
		if ok {
			found = append(found, info)
			versions = append(versions, v)
		}
	}
	if len(found) == 0 {
		return AppInfo{}, fmt.Errorf("editor: no vscode installation found under %s", appsDir)
	}

	idx := make([]int, len(found))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return versions[idx[i]].LessThan(versions[idx[j]]) })
	return found[idx[len(idx)-1]], nil
}

// parseVscodeDir reproduces parse_vscode_dir: strip the prefix, split on
// the first remaining "-" into version and os_arch, and parse the version
// with full semver comparison semantics (so "1.10.0" correctly outranks
// "1.9.0", unlike a plain string sort).
func parseVscodeDir(name string) (AppInfo, *semver.Version, bool) {
	rest := strings.TrimPrefix(name, vscodeDirPrefix)
	version, osArch, ok := strings.Cut(rest, "-")
	if !ok || version == "" || osArch == "" {
		return AppInfo{}, nil, false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return AppInfo{}, nil, false
	}
	return AppInfo{Version: version, OSArch: osArch}, v, true
}

// Supervisor restarts the editor server child process with backoff
// whenever it exits, until its context is cancelled.
type Supervisor struct {
	log        logging.Logger
	binaryPath string
	args       []string
	maxBackoff time.Duration
}

// NewSupervisor builds a Supervisor that launches binaryPath with args.
func NewSupervisor(log logging.Logger, binaryPath string, args []string, maxBackoff time.Duration) *Supervisor {
	if maxBackoff <= 0 {
		maxBackoff = 4 * time.Second
	}
	return &Supervisor{log: log, binaryPath: binaryPath, args: args, maxBackoff: maxBackoff}
}

// Run launches the editor server and restarts it whenever it exits,
// applying the same exponential-backoff-never-give-up policy as the
// tunnel pool's dial retry (spec.md §4.4): only ctx cancellation ends the
// loop.
func (s *Supervisor) Run(ctx context.Context) error {
	b := &backoff.Backoff{Max: s.maxBackoff}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ran := time.Since(start)
		if err != nil {
			s.log.Errorf("editor server exited: %v (ran %s)", err, ran)
		} else {
			s.log.Infof("editor server exited cleanly (ran %s)", ran)
		}

		// A process that stayed up a while resets the backoff, the
		// same way a long-lived reverse-connection isn't penalized
		// for eventually closing.
		if ran > s.maxBackoff*4 {
			b.Reset()
		}

		d := b.Duration()
		s.log.Debugf("restarting editor server in %s", d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.binaryPath, s.args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run()
}
