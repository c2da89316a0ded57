package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/portalbox-app/portalbox/internal/secret"
)

func TestMessageRoundTrip(t *testing.T) {
	codes := []Message{AuthOk, AuthFailed, Ping, Pong, DataHome, DataVscode, DataSsh}
	for _, c := range codes {
		var buf bytes.Buffer
		if err := WriteMessage(&buf, c); err != nil {
			t.Fatalf("WriteMessage(%s): %v", c, err)
		}
		got, err := ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage after writing %s: %v", c, err)
		}
		if got != c {
			t.Fatalf("round trip mismatch: wrote %s, read %s", c, got)
		}
	}
}

func TestReadMessageRejectsUnknownCode(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x01})
	_, err := ReadMessage(buf)
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestReadMessageRejectsEveryCodeOutsideClosedSet(t *testing.T) {
	known := map[Message]bool{AuthOk: true, AuthFailed: true, Ping: true, Pong: true, DataHome: true, DataVscode: true, DataSsh: true}
	for _, code := range []uint16{0x0000, 0x1110, 0x1112, 0x2221, 0x5558, 0xffff} {
		if known[Message(code)] {
			continue
		}
		buf := bytes.NewBuffer([]byte{byte(code >> 8), byte(code)})
		if _, err := ReadMessage(buf); !errors.Is(err, ErrUnknownFrame) {
			t.Fatalf("code 0x%04x: expected ErrUnknownFrame, got %v", code, err)
		}
	}
}

func TestHelloRoundTrip(t *testing.T) {
	token := secret.New(fixedToken())
	var buf bytes.Buffer
	if err := WriteHello(&buf, token); err != nil {
		t.Fatalf("WriteHello: %v", err)
	}
	if buf.Len() != helloWireLength {
		t.Fatalf("expected %d bytes on the wire, got %d", helloWireLength, buf.Len())
	}
	hello, err := ReadHello(&buf)
	if err != nil {
		t.Fatalf("ReadHello: %v", err)
	}
	if hello.Version != ProtocolVersion {
		t.Fatalf("expected version %d, got %d", ProtocolVersion, hello.Version)
	}
	if hello.Token.Expose() != token.Expose() {
		t.Fatalf("token mismatch after round trip")
	}
}

func TestReadHelloRejectsInvalidUTF8Token(t *testing.T) {
	buf := make([]byte, helloWireLength)
	buf[0] = 0
	buf[1] = 1
	for i := 2; i < helloWireLength; i++ {
		buf[i] = 'a'
	}
	// Plant an invalid UTF-8 byte sequence inside the fixed token region.
	buf[2] = 0xff
	buf[3] = 0xfe
	_, err := ReadHello(bytes.NewReader(buf))
	if !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame, got %v", err)
	}
}

func fixedToken() string {
	b := make([]byte, AuthTokenLength)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return string(b)
}
