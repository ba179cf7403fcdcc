package protocol_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/protocol"
)

var testUUID = [16]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99}

func TestParseInformation(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"I", "I ignored text"} {
		cmd, err := protocol.Parse(line)
		require.NoError(t, err)
		assert.Equal(t, protocol.Information{}, cmd)
	}
}

func TestParseConfigure(t *testing.T) {
	t.Parallel()
	cmd, err := protocol.Parse("C AABBCCDDEEFF00112233445566778899 5 9")
	require.NoError(t, err)
	assert.Equal(t, protocol.Configure{UUID: testUUID, Major: 5, Minor: 9}, cmd)
}

func TestParseConfigureLenient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		line     string
		expected protocol.Configure
	}{
		{
			name:     "short uuid fills leading bytes",
			line:     "C AABB 1 2",
			expected: protocol.Configure{UUID: [16]byte{0xAA, 0xBB}, Major: 1, Minor: 2},
		},
		{
			name:     "odd uuid decodes to zero",
			line:     "C AAB 1 2",
			expected: protocol.Configure{Major: 1, Minor: 2},
		},
		{
			name:     "non numeric major and minor are zero",
			line:     "C AABBCCDDEEFF00112233445566778899 abc x9",
			expected: protocol.Configure{UUID: testUUID},
		},
		{
			name:     "numeric prefix is used",
			line:     "C AABBCCDDEEFF00112233445566778899 12ab 34",
			expected: protocol.Configure{UUID: testUUID, Major: 12, Minor: 34},
		},
		{
			name:     "values truncate to 16 bits",
			line:     "C AABBCCDDEEFF00112233445566778899 65537 70000",
			expected: protocol.Configure{UUID: testUUID, Major: 1, Minor: 4464},
		},
		{
			name:     "repeated separators collapse",
			line:     "C  AABBCCDDEEFF00112233445566778899  5 9",
			expected: protocol.Configure{UUID: testUUID, Major: 5, Minor: 9},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, err := protocol.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		line      string
		malformed bool
	}{
		{name: "empty line", line: ""},
		{name: "unknown letter", line: "X foo"},
		{name: "lower case", line: "i"},
		{name: "configure missing fields", line: "C AABB 1", malformed: true},
		{name: "configure extra fields", line: "C AABB 1 2 3", malformed: true},
		{name: "configure alone", line: "C", malformed: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, err := protocol.Parse(tt.line)
			require.ErrorIs(t, err, protocol.ErrUnknownCommand)
			assert.Equal(t, tt.malformed, errors.Is(err, protocol.ErrMalformedConfigure))
			assert.Equal(t, protocol.Unknown{Line: tt.line}, cmd)
		})
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()

	cmd, err := protocol.ParseStrict("C AABBCCDDEEFF00112233445566778899 5 9")
	require.NoError(t, err)
	assert.Equal(t, protocol.Configure{UUID: testUUID, Major: 5, Minor: 9}, cmd)

	bad := []string{
		"C AABB 1 2",
		"C AABBCCDDEEFF0011223344556677889G 1 2",
		"C AABBCCDDEEFF00112233445566778899 x 2",
		"C AABBCCDDEEFF00112233445566778899 1 65536",
		"C AABBCCDDEEFF00112233445566778899 -1 2",
	}
	for _, line := range bad {
		_, err := protocol.ParseStrict(line)
		assert.ErrorIs(t, err, protocol.ErrMalformedConfigure, line)
		assert.ErrorIs(t, err, protocol.ErrUnknownCommand, line)
	}
}

func TestConfigureConfiguration(t *testing.T) {
	t.Parallel()
	c := protocol.Configure{UUID: testUUID, Major: 3, Minor: 4}.Configuration()
	assert.Equal(t, testUUID, c.UUID)
	assert.Equal(t, uint16(3), c.Major)
	assert.Equal(t, uint16(4), c.Minor)
}

func TestInformationResponse(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "OK hello\n", protocol.InformationResponse("hello"))
}
