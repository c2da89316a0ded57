// Package webterm implements the terminal-over-WebSocket handler
// (SPEC_FULL.md §4.12): a PTY-backed shell bridged to a browser over a
// WebSocket connection. It is adapted directly from the pack's
// terminal.LocalSession (Websoft9-AppOS/backend/internal/terminal/terminal.go),
// generalized to run the user's configured shell_command instead of a
// hardcoded "bash", and to use the teacher's gorilla/websocket upgrader
// style (share/server.go's CheckOrigin-permissive Upgrader) for the
// handshake.
package webterm

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"

	"github.com/portalbox-app/portalbox/internal/logging"
)

// termCmdResizePrefix marks a text WebSocket frame as a control command
// rather than keystrokes, matching the original agent's wire format
// (original_source/crates/client/src/api.rs: PORTALBOX_TERM_CMD_PREFIX,
// "__portalbox_term_cmd_resize:COLSxROWS").
const termCmdResizePrefix = "__portalbox_term_cmd_resize:"

// upgrader matches the teacher's permissive local-dashboard upgrader
// (share/server.go): origin checks don't matter for a loopback-only
// terminal served to the user's own browser.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is a PTY-backed shell session bridged with a WebSocket.
type Session struct {
	log  logging.Logger
	cmd  *exec.Cmd
	ptmx *os.File
	conn *websocket.Conn
	mu   sync.Mutex
}

// Handler upgrades an HTTP request to a WebSocket and starts shellCommand
// in a PTY bridged to it. shellCommand defaults to "bash" if empty,
// matching a reasonable default when SPEC_FULL.md's config shell_command
// is unset.
func Handler(log logging.Logger, shellCommand string) http.HandlerFunc {
	if shellCommand == "" {
		shellCommand = "bash"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("webterm: websocket upgrade failed: %v", err)
			return
		}
		session, err := newSession(log, conn, shellCommand)
		if err != nil {
			log.Errorf("webterm: starting PTY session: %v", err)
			conn.Close()
			return
		}
		session.wait()
	}
}

func newSession(log logging.Logger, conn *websocket.Conn, shellCommand string) (*Session, error) {
	cmd := exec.Command(shellCommand)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	s := &Session{log: log, cmd: cmd, ptmx: ptmx, conn: conn}

	go s.copyPtyToWebSocket()
	go s.copyWebSocketToPty()

	return s, nil
}

func (s *Session) copyPtyToWebSocket() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.mu.Lock()
			werr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			s.mu.Unlock()
			if werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}
	s.Close()
}

func (s *Session) copyWebSocketToPty() {
	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.TextMessage && strings.HasPrefix(string(msg), termCmdResizePrefix) {
			s.handleResizeCmd(string(msg))
			continue
		}
		if _, err := s.ptmx.Write(msg); err != nil {
			break
		}
	}
	s.Close()
}

// handleResizeCmd parses a "__portalbox_term_cmd_resize:COLSxROWS" control
// frame and applies it to the PTY. A malformed frame is logged and
// otherwise ignored; it must never reach the shell as keystrokes.
func (s *Session) handleResizeCmd(msg string) {
	rows, cols, err := parseResizeCmd(msg)
	if err != nil {
		s.log.Errorf("webterm: %v", err)
		return
	}
	if err := s.Resize(rows, cols); err != nil {
		s.log.Errorf("webterm: resizing terminal: %v", err)
	}
}

// parseResizeCmd parses the "COLSxROWS" payload of a resize control frame
// (SPEC_FULL.md §4.12, original_source's parse_portalbox_cmd).
func parseResizeCmd(msg string) (rows, cols uint16, err error) {
	size := strings.TrimPrefix(msg, termCmdResizePrefix)
	colsStr, rowsStr, ok := strings.Cut(size, "x")
	if !ok {
		return 0, 0, fmt.Errorf("malformed resize command %q", msg)
	}
	c, err := strconv.ParseUint(colsStr, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed resize cols in %q: %w", msg, err)
	}
	r, err := strconv.ParseUint(rowsStr, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed resize rows in %q: %w", msg, err)
	}
	return uint16(r), uint16(c), nil
}

// wait blocks until the underlying shell process exits.
func (s *Session) wait() {
	s.cmd.Wait()
}

// Resize changes the PTY window size in response to a browser resize
// event.
func (s *Session) Resize(rows, cols uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates the session: the WebSocket, the subprocess, and the
// PTY file.
func (s *Session) Close() error {
	_ = s.conn.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.ptmx.Close()
}
