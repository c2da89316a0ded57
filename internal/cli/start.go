package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/portalbox-app/portalbox/internal/config"
	"github.com/portalbox-app/portalbox/internal/credentials"
	"github.com/portalbox-app/portalbox/internal/dashboard"
	"github.com/portalbox-app/portalbox/internal/editor"
	"github.com/portalbox-app/portalbox/internal/logging"
	"github.com/portalbox-app/portalbox/internal/router"
	"github.com/portalbox-app/portalbox/internal/secret"
	"github.com/portalbox-app/portalbox/internal/tlsdial"
	"github.com/portalbox-app/portalbox/internal/tunnel"
	"github.com/portalbox-app/portalbox/internal/update"
)

// newStartCommand wires config -> credential store -> tunnel daemon ->
// dashboard -> editor supervisor -> update prober into one running agent,
// matching the teacher's "server"/"client" dispatch generalized to a single
// long-lived subcommand (SPEC_FULL.md §4.9).
func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the PortalBox agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd)
		},
	}
}

func runStart(cmd *cobra.Command) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	log := logging.New("portalbox", logging.ParseLevel(cfg.Log))

	dialer, err := tlsdial.New()
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	host, err := cfg.ServerHost()
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	daemon := tunnel.NewDaemon(log.Fork("tunnel"), tunnel.Config{
		ProxyHost: host,
		ProxyPort: cfg.ServerProxyPort,
		Ports: router.Ports{
			Home:   cfg.LocalHomeServicePort,
			Vscode: cfg.VscodePort,
			SSH:    cfg.SSHPort,
		},
	}, dialer)

	reg, err := resolveRegistration(cmd, log, cfg)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dashboardSrv := dashboard.New(log.Fork("dashboard"), daemon.Requests(), cfg.Log == "debug", cfg.ShellCommand)

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.LocalHomeServicePort)
		if err := dashboardSrv.ListenAndServe(ctx, addr); err != nil {
			log.Errorf("dashboard server: %v", err)
		}
	}()

	if watcher, err := config.NewWatcher(log.Fork("config"), configFile, cfg); err != nil {
		log.Errorf("config watcher: %v", err)
	} else {
		defer watcher.Close()
		go watchConfig(ctx, log.Fork("config"), watcher, daemon)
	}

	go runEditorSupervisor(ctx, log.Fork("editor"), cfg)

	go func() {
		prober, err := update.NewProber(log.Fork("update"), cfg.ServerURL, Version, 0)
		if err != nil {
			log.Errorf("update prober: %v", err)
			return
		}
		if err := prober.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("update prober exited: %v", err)
		}
	}()

	daemon.Requests() <- reg
	log.Infof("agent started; signed in as %s", reg.BaseSubDomain)

	return daemon.Run(ctx)
}

// watchConfig reacts to every reloaded Config delivered by watcher by
// re-registering the daemon's pools under the new port/proxy settings
// (SPEC_FULL.md §4.7: the core never watches files itself; its owner, this
// CLI command, does that and pushes the result in).
func watchConfig(ctx context.Context, log logging.Logger, watcher *config.Watcher, daemon tunnel.Daemon) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-watcher.Events():
			if !ok {
				return
			}
			host, err := cfg.ServerHost()
			if err != nil {
				log.Errorf("reloaded config has invalid server_url: %v", err)
				continue
			}
			daemon.UpdateConfig(tunnel.Config{
				ProxyHost: host,
				ProxyPort: cfg.ServerProxyPort,
				Ports: router.Ports{
					Home:   cfg.LocalHomeServicePort,
					Vscode: cfg.VscodePort,
					SSH:    cfg.SSHPort,
				},
			})
			log.Infof("config reloaded; pools re-registered")
		}
	}
}

// resolveRegistration loads a previously saved credential for cfg.ServerURL,
// or if none exists, prompts interactively for a bearer token (read with
// echo suppressed via golang.org/x/term, the teacher dependency already in
// go.mod) and a subdomain, then persists it for next time — mirroring the
// original agent's "sign in once, reuse the saved session" flow
// (original_source/credentials.rs).
func resolveRegistration(cmd *cobra.Command, log logging.Logger, cfg config.Config) (tunnel.TunnelRequest, error) {
	path := cfg.CredentialsFilePath()
	store, err := credentials.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debugf("credentials: %v; starting fresh", err)
		}
		store = credentials.Empty()
	}

	if cred, ok := store.Credentials[cfg.ServerURL]; ok {
		return tunnel.TunnelRequest{Token: cred.Token(), BaseSubDomain: cred.BaseSubDomain}, nil
	}

	token, subdomain, err := promptSignIn(cmd)
	if err != nil {
		return tunnel.TunnelRequest{}, err
	}

	cred := credentials.Credential{
		Email:             cfg.ServerURL,
		ClientAccessToken: token,
		BaseSubDomain:     subdomain,
	}
	store = store.Put(cfg.ServerURL, cred)
	if err := store.Save(path); err != nil {
		log.Errorf("saving credentials: %v", err)
	}

	return tunnel.TunnelRequest{Token: secret.New(token), BaseSubDomain: subdomain}, nil
}

// promptSignIn reads a bearer token (echo suppressed) and base subdomain
// from the controlling terminal.
func promptSignIn(cmd *cobra.Command) (token, subdomain string, err error) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, "PortalBox token: ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("reading token: %w", err)
	}

	fmt.Fprint(out, "Base subdomain: ")
	var sub string
	if _, err := fmt.Fscanln(os.Stdin, &sub); err != nil {
		return "", "", fmt.Errorf("reading subdomain: %w", err)
	}

	return strings.TrimSpace(string(tokenBytes)), strings.TrimSpace(sub), nil
}

// runEditorSupervisor ensures an editor build is installed — fetching and
// extracting one from the portal server if Discover finds nothing locally,
// mirroring the original agent's init_apps/fetch_or_update_apps fallback —
// and supervises it until ctx is cancelled. A fetch failure is logged, not
// fatal: the tunnel and dashboard still run without an editor (SPEC_FULL.md's
// editor supervisor is a neighbor of the core, not a dependency of it).
func runEditorSupervisor(ctx context.Context, log logging.Logger, cfg config.Config) {
	app, err := editor.NewFetcher(cfg.ServerURL).EnsureInstalled(ctx, cfg.AppsDir())
	if err != nil {
		log.Infof("no editor installation available: %v", err)
		return
	}
	sup := editor.NewSupervisor(log, app.BinaryPath(cfg.AppsDir()), nil, 0)
	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		log.Errorf("editor supervisor exited: %v", err)
	}
}
