package protocol_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/protocol"
)

func feedAll(f *protocol.Framer, in string) []string {
	var lines []string
	for i := 0; i < len(in); i++ {
		if line, ok := f.Feed(in[i]); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestFramerSplitsOnTerminators(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "newline", input: "I\n", expected: []string{"I"}},
		{name: "carriage return", input: "I\r", expected: []string{"I"}},
		{name: "crlf yields empty second line", input: "I\r\n", expected: []string{"I", ""}},
		{name: "two commands", input: "I\nC AA 1 2\n", expected: []string{"I", "C AA 1 2"}},
		{name: "no terminator", input: "I", expected: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, feedAll(protocol.NewFramer(), tt.input))
		})
	}
}

func TestFramerForceSplitsLongLines(t *testing.T) {
	t.Parallel()
	f := protocol.NewFramer()
	long := strings.Repeat("x", protocol.MaxLineLength+10)

	lines := feedAll(f, long+"\n")
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], protocol.MaxLineLength)
	assert.Equal(t, strings.Repeat("x", 10), lines[1])
	assert.Equal(t, protocol.StateIdle, f.State())
}

func TestFramerExactCapacityThenTerminator(t *testing.T) {
	t.Parallel()
	f := protocol.NewFramer()
	lines := feedAll(f, strings.Repeat("y", protocol.MaxLineLength)+"\n")
	assert.Equal(t, []string{strings.Repeat("y", protocol.MaxLineLength), ""}, lines)
}

func TestFramerState(t *testing.T) {
	t.Parallel()
	f := protocol.NewFramer()
	assert.Equal(t, protocol.StateIdle, f.State())

	_, ok := f.Feed('I')
	assert.False(t, ok)
	assert.Equal(t, protocol.StateAccumulating, f.State())
	assert.Equal(t, 1, f.Pending())

	f.Reset()
	assert.Equal(t, protocol.StateIdle, f.State())
	assert.Equal(t, 0, f.Pending())

	f.Feed('I')
	line, ok := f.Feed('\n')
	assert.True(t, ok)
	assert.Equal(t, "I", line)
	assert.Equal(t, protocol.StateIdle, f.State())
}
