package uart_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/uart"
)

// echoHandler answers every line with "<line>!".
type echoHandler struct {
	lines []string
}

func (h *echoHandler) HandleLine(line string) string {
	h.lines = append(h.lines, line)
	return line + "!\n"
}

type fakePort struct {
	r   io.Reader
	out bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }

func TestSessionAnswersEachLine(t *testing.T) {
	t.Parallel()
	port := &fakePort{r: strings.NewReader("I\rX foo\npartial")}
	h := &echoHandler{}

	err := uart.NewSession(port, h).Serve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "X foo"}, h.lines)
	assert.Equal(t, "I!\nX foo!\n", port.out.String())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("framing error") }

func TestSessionReturnsReadErrors(t *testing.T) {
	t.Parallel()
	port := &fakePort{r: failingReader{}}
	err := uart.NewSession(port, &echoHandler{}).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "framing error")
}

func TestSessionStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	port := &fakePort{r: strings.NewReader("I\n")}
	h := &echoHandler{}
	require.NoError(t, uart.NewSession(port, h).Serve(ctx))
	assert.Empty(t, h.lines)
}

type pipePort struct {
	io.Reader
	io.Writer
}

func TestClientAgainstSession(t *testing.T) {
	t.Parallel()
	toDevice, fromHost := io.Pipe()
	toHost, fromDevice := io.Pipe()

	h := &echoHandler{}
	done := make(chan error, 1)
	go func() {
		done <- uart.NewSession(pipePort{Reader: toDevice, Writer: fromDevice}, h).Serve(context.Background())
	}()

	client := uart.NewClient(pipePort{Reader: toHost, Writer: fromHost}, time.Second)
	reply, err := client.Do("I")
	require.NoError(t, err)
	assert.Equal(t, "I!", reply)

	reply, err = client.Do("C AA 1 2\r\n")
	require.NoError(t, err)
	assert.Equal(t, "C AA 1 2!", reply)

	fromHost.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.FailNow(t, "session did not stop after the host closed the line")
	}
}
