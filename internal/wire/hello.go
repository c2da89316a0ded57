package wire

import (
	"io"
	"unicode/utf8"

	"github.com/portalbox-app/portalbox/internal/secret"
)

// helloWireLength is the fixed size of a hello frame: a 2-byte version plus
// the 80-byte token. There is no length prefix for the token; it is fixed
// width by design (SPEC_FULL.md §3 Frame).
const helloWireLength = 2 + AuthTokenLength

// Hello is the parsed form of a hello frame.
type Hello struct {
	Version uint16
	Token   secret.Token
}

// WriteHello writes `[version_be_u16][token_bytes_80]` to w and flushes.
// token is expected to be exactly AuthTokenLength bytes. Neither WriteHello
// nor the callers that build tokens (credential store, dashboard sign-in,
// CLI prompt) check that width: a shorter token is padded with zero bytes
// and a longer one is truncated to AuthTokenLength.
func WriteHello(w io.Writer, token secret.Token) error {
	var buf [helloWireLength]byte
	buf[0] = byte(ProtocolVersion >> 8)
	buf[1] = byte(ProtocolVersion)
	copy(buf[2:], token.Expose())
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	return flushIfBuffered(w)
}

// ReadHello reads exactly 82 bytes from r and parses the version and token.
// It is used by the server side of the protocol; it lives in this shared
// package so the client-side test suite can round-trip hello frames without
// a real proxy server (SPEC_FULL.md §4.1). ReadHello fails with ErrBadFrame
// if the 80 token bytes are not valid UTF-8.
func ReadHello(r io.Reader) (Hello, error) {
	var buf [helloWireLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Hello{}, err
	}
	version := uint16(buf[0])<<8 | uint16(buf[1])
	tokenBytes := buf[2:]
	if !utf8.Valid(tokenBytes) {
		return Hello{}, ErrBadFrame
	}
	return Hello{
		Version: version,
		Token:   secret.New(string(tokenBytes)),
	}, nil
}
