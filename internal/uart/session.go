package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/micro-nova/ibeacon-go/internal/protocol"
)

// LineHandler executes one command line and returns the response text.
// *dispatch.Dispatcher implements it.
type LineHandler interface {
	HandleLine(line string) string
}

// Session processes the command stream of one serial connection.
type Session struct {
	rw     io.ReadWriter
	framer *protocol.Framer
	h      LineHandler
}

// NewSession creates a session reading commands from rw.
func NewSession(rw io.ReadWriter, h LineHandler) *Session {
	return &Session{rw: rw, framer: protocol.NewFramer(), h: h}
}

// Serve reads until ctx is cancelled or the stream ends. Bytes are processed
// in arrival order and each completed line is answered before the next byte
// is examined. A read error drops any partial line and ends the session.
func (s *Session) Serve(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := s.rw.Read(buf)
		for _, b := range buf[:n] {
			line, ok := s.framer.Feed(b)
			if !ok {
				continue
			}
			if werr := s.respond(line); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.framer.Reset()
			slog.Error("uart: communication error", "err", err)
			return fmt.Errorf("uart: read: %w", err)
		}
	}
}

func (s *Session) respond(line string) error {
	resp := s.h.HandleLine(line)
	slog.Debug("uart: command", "line", line, "response", resp)
	if _, err := io.WriteString(s.rw, resp); err != nil {
		return fmt.Errorf("uart: write: %w", err)
	}
	return nil
}
