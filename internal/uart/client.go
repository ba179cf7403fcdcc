package uart

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultResponseTimeout bounds how long Client waits for a reply line.
const DefaultResponseTimeout = 2 * time.Second

// Client sends command lines to a device and reads single-line replies.
type Client struct {
	rw      io.ReadWriter
	timeout time.Duration
	pending []byte
}

// NewClient wraps rw. rw reads should time out (Open sets a read timeout)
// so a silent device does not block forever.
func NewClient(rw io.ReadWriter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	return &Client{rw: rw, timeout: timeout}
}

// Do sends line terminated by '\n' and returns the reply without its terminator.
func (c *Client) Do(line string) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	if _, err := io.WriteString(c.rw, line+"\n"); err != nil {
		return "", fmt.Errorf("uart: send: %w", err)
	}
	return c.readLine()
}

func (c *Client) readLine() (string, error) {
	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(c.pending, '\n'); i >= 0 {
			line := string(c.pending[:i])
			c.pending = c.pending[i+1:]
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("uart: no response within %v", c.timeout)
		}
		n, err := c.rw.Read(buf)
		c.pending = append(c.pending, buf[:n]...)
		if err != nil {
			if err == io.EOF && n > 0 {
				continue
			}
			return "", fmt.Errorf("uart: receive: %w", err)
		}
	}
}
