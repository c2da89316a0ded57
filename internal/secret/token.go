// Package secret implements the wrapper type that holds bearer tokens and
// other credentials that must never be logged (SPEC_FULL.md §9 "Secret
// tokens": zeroed on drop, redacted in debug output). It is the Go analogue
// of the original Rust agent's secrecy::Secret<Token> (see
// original_source/crates/models/src/secrets.rs).
package secret

// Token holds a sensitive string value (an auth bearer token, a stored
// client access token). Its zero value is an empty, already-discarded
// token.
type Token struct {
	value []byte
}

// New wraps s in a Token. The caller's copy of s is not touched; Go strings
// are immutable, so true zeroing on discard is impossible for the input —
// Discard zeroes the Token's own backing buffer, which is all this package
// can promise.
func New(s string) Token {
	return Token{value: []byte(s)}
}

// Expose returns the wrapped value. Callers must not retain the returned
// string past the point where the Token might be discarded, and must never
// pass it to a logger.
func (t Token) Expose() string {
	return string(t.value)
}

// Len reports the byte length of the wrapped value without exposing it.
func (t Token) Len() int {
	return len(t.value)
}

// Clone returns a Token backed by its own copy of the underlying bytes. A
// pool hands every worker it spawns a Clone of its registration's Token, so
// each worker can Discard its own copy when it terminates without zeroing
// the registration's token or a sibling worker's copy of the same bytes —
// plain struct/slice assignment would alias the same backing array instead.
func (t Token) Clone() Token {
	if t.value == nil {
		return Token{}
	}
	cp := make([]byte, len(t.value))
	copy(cp, t.value)
	return Token{value: cp}
}

// Discard zeroes the Token's backing buffer. After Discard, Expose returns
// an empty string. The worker that owns a Credential (SPEC_FULL.md §3) calls
// this once it terminates.
func (t *Token) Discard() {
	for i := range t.value {
		t.value[i] = 0
	}
	t.value = nil
}

// String implements fmt.Stringer with a fixed redaction, so a Token never
// leaks into %v/%s log formatting even by accident.
func (t Token) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for the same reason, covering %#v.
func (t Token) GoString() string {
	return "secret.Token{[REDACTED]}"
}

// MarshalText redacts the value when a Token is serialized through
// encoding.TextMarshaler-aware encoders (TOML, JSON, etc.), so a stray
// debug dump of a Config or TunnelRequest can't leak a token either. The
// credential store does not persist Tokens: its Credential keeps the access
// token as a plain string field, which is what it writes to disk.
func (t Token) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// ExposeForPersist returns the raw value, for code that writes a Token to
// disk. Nothing in this repository calls it at present.
func ExposeForPersist(t Token) string {
	return t.Expose()
}
