// Package credentials persists the signed-in session (SPEC_FULL.md §4.8),
// grounded in the original credentials.rs: a TOML file under the config
// home directory mapping a server URL to a bearer token and base subdomain.
package credentials

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/portalbox-app/portalbox/internal/secret"
)

// Credential is one saved sign-in, matching the original's Credential
// struct.
type Credential struct {
	Email             string `toml:"email"`
	ClientAccessToken string `toml:"client_access_token"`
	BaseSubDomain     string `toml:"base_sub_domain"`
}

// Token exposes the stored access token as a secret.Token, so credential
// handling stays on the zeroing/redacting wrapper past the point of load.
func (c Credential) Token() secret.Token {
	return secret.New(c.ClientAccessToken)
}

// Store is the on-disk CredManager: a map from server URL to Credential.
type Store struct {
	Credentials map[string]Credential `toml:"credentials"`
}

// Empty returns a Store with no saved credentials, matching the original's
// CredManager::empty().
func Empty() Store {
	return Store{Credentials: map[string]Credential{}}
}

// Load reads and parses path. A missing file is reported as an error,
// matching the original's load() which propagates tokio::fs::read_to_string
// failures rather than treating them as "no credentials yet" — callers
// that want that behavior should check errors.Is(err, os.ErrNotExist)
// themselves (the error is wrapped, so os.IsNotExist does not see it).
func Load(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}, fmt.Errorf("credentials: reading %s: %w", path, err)
	}
	var store Store
	if err := toml.Unmarshal(data, &store); err != nil {
		return Store{}, fmt.Errorf("credentials: parsing %s: %w", path, err)
	}
	if store.Credentials == nil {
		store.Credentials = map[string]Credential{}
	}
	return store, nil
}

// Save writes store to path as pretty TOML, creating or truncating the
// file. File mode 0600 keeps the bearer token readable only by its owner —
// the original relies on the user's home directory permissions alone, but
// the token itself warrants the tighter mode here.
func (s Store) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("credentials: encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("credentials: writing %s: %w", path, err)
	}
	return nil
}

// Delete removes the credentials file at path, matching CredManager::delete.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: removing %s: %w", path, err)
	}
	return nil
}

// Put adds or replaces the credential stored under the given key (the
// server URL) and returns the updated Store.
func (s Store) Put(email string, cred Credential) Store {
	next := Store{Credentials: map[string]Credential{}}
	for k, v := range s.Credentials {
		next.Credentials[k] = v
	}
	next.Credentials[email] = cred
	return next
}
