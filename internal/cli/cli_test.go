package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/portalbox-app/portalbox/internal/config"
	"github.com/portalbox-app/portalbox/internal/credentials"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("executing %v: %v", args, err)
	}
	return out.String()
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	Version = "9.9.9"
	t.Cleanup(func() { Version = "0.0.0-dev" })

	out := runCommand(t, "version")
	if strings.TrimSpace(out) != "9.9.9" {
		t.Errorf("version command printed %q, want 9.9.9", out)
	}
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("ssh_port = 2222\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	configFile = path
	t.Cleanup(func() { configFile = "" })

	out := runCommand(t, "config")
	if !strings.Contains(out, "ssh_port = 2222") {
		t.Errorf("config output missing overridden ssh_port, got:\n%s", out)
	}
}

func TestResetCommandDeletesCredentials(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	homeDir := filepath.Join(dir, ".portalbox")
	if err := os.WriteFile(cfgPath, []byte("home_dir = \""+homeDir+"\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	configFile = cfgPath
	t.Cleanup(func() { configFile = "" })

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	store := credentials.Empty().Put("https://www.portalbox.app", credentials.Credential{
		ClientAccessToken: "tok",
		BaseSubDomain:     "alice",
	})
	if err := store.Save(cfg.CredentialsFilePath()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	runCommand(t, "reset")

	if _, err := os.Stat(cfg.CredentialsFilePath()); !os.IsNotExist(err) {
		t.Errorf("expected credentials file to be removed, stat error = %v", err)
	}
}
