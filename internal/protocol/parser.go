package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/micro-nova/ibeacon-go/internal/hexcodec"
	"github.com/micro-nova/ibeacon-go/internal/models"
)

const (
	cmdInformation = 'I'
	cmdConfigure   = 'C'

	configureTokens = 4
)

var (
	// ErrUnknownCommand is returned for lines that do not start with a known command.
	ErrUnknownCommand = errors.New("protocol: unknown command")
	// ErrMalformedConfigure is returned for a configure line with the wrong shape or bad fields.
	ErrMalformedConfigure = errors.New("protocol: malformed configure command")
)

// Parse turns a framed line into a Command.
//
// Configure fields are read leniently: a short or garbled UUID leaves
// trailing bytes zero, and non-numeric major/minor values parse as zero.
// Only a wrong token count is rejected. Every rejection yields an Unknown
// command together with an error wrapping ErrUnknownCommand.
func Parse(line string) (Command, error) {
	return parse(line, false)
}

// ParseStrict is Parse with field validation: the UUID must be exactly
// 32 hex characters and major/minor decimal values in 0-65535.
func ParseStrict(line string) (Command, error) {
	return parse(line, true)
}

func parse(line string, strict bool) (Command, error) {
	if line == "" {
		return Unknown{Line: line}, ErrUnknownCommand
	}
	switch line[0] {
	case cmdInformation:
		return Information{}, nil
	case cmdConfigure:
		cmd, err := parseConfigure(line, strict)
		if err != nil {
			return Unknown{Line: line}, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
		}
		return cmd, nil
	}
	return Unknown{Line: line}, fmt.Errorf("%w: %q", ErrUnknownCommand, line[0])
}

func parseConfigure(line string, strict bool) (Configure, error) {
	tokens := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' })
	if len(tokens) != configureTokens {
		return Configure{}, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedConfigure, len(tokens), configureTokens)
	}

	var cmd Configure
	if strict {
		if len(tokens[1]) != models.UUIDLen*2 {
			return Configure{}, fmt.Errorf("%w: uuid must be %d hex characters", ErrMalformedConfigure, models.UUIDLen*2)
		}
		raw, err := hexcodec.DecodeStrict(tokens[1])
		if err != nil {
			return Configure{}, fmt.Errorf("%w: %w", ErrMalformedConfigure, err)
		}
		copy(cmd.UUID[:], raw)
		if cmd.Major, err = parseUint16(tokens[2]); err != nil {
			return Configure{}, fmt.Errorf("%w: major: %w", ErrMalformedConfigure, err)
		}
		if cmd.Minor, err = parseUint16(tokens[3]); err != nil {
			return Configure{}, fmt.Errorf("%w: minor: %w", ErrMalformedConfigure, err)
		}
		return cmd, nil
	}

	copy(cmd.UUID[:], hexcodec.Decode(tokens[1]))
	cmd.Major = uint16(atoi(tokens[2]))
	cmd.Minor = uint16(atoi(tokens[3]))
	return cmd, nil
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// atoi reads an optional sign and the leading decimal digits of s, ignoring
// the rest. Text without leading digits is zero. Overflow wraps.
func atoi(s string) int64 {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
