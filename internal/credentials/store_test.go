package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.toml")

	store := Empty().Put("alice@example.com", Credential{
		Email:             "alice@example.com",
		ClientAccessToken: "tok-123",
		BaseSubDomain:     "alice",
	})

	if err := store.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("credentials file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cred, ok := loaded.Credentials["alice@example.com"]
	if !ok {
		t.Fatal("expected alice@example.com in loaded store")
	}
	if cred.BaseSubDomain != "alice" {
		t.Errorf("BaseSubDomain = %q, want alice", cred.BaseSubDomain)
	}
	if cred.Token().Expose() != "tok-123" {
		t.Errorf("Token().Expose() = %q, want tok-123", cred.Token().Expose())
	}
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.toml")
	if err := Delete(path); err != nil {
		t.Fatalf("Delete of a missing file should not error, got %v", err)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.toml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error loading a missing credentials file")
	}
}
