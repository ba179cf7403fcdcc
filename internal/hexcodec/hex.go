// Package hexcodec converts between raw bytes and upper-case hexadecimal text
// as used on the serial command line.
package hexcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const digits = "0123456789ABCDEF"

var (
	// ErrOddLength is returned by DecodeStrict for input that does not hold whole bytes.
	ErrOddLength = errors.New("hexcodec: odd length hex string")
	// ErrInvalidHexDigit is returned by DecodeStrict for a character outside 0-9, a-f, A-F.
	ErrInvalidHexDigit = errors.New("hexcodec: invalid hex digit")
)

// EncodeByte returns the upper-case hex digits for the high and low nibble of b.
func EncodeByte(b byte) (hi, lo byte) {
	return digits[b>>4], digits[b&0x0f]
}

// Encode returns the upper-case hex text of src, two characters per byte.
func Encode(src []byte) string {
	out := make([]byte, 0, len(src)*2)
	for _, b := range src {
		hi, lo := EncodeByte(b)
		out = append(out, hi, lo)
	}
	return string(out)
}

// Decode converts text to bytes two characters at a time.
//
// Decoding is best effort. Text of odd length yields nil, with no error. Within
// a pair, the leading run of hex digits is used: "4G" decodes to 0x04 and "G4"
// to 0x00. Use DecodeStrict when malformed input must be rejected.
func Decode(text string) []byte {
	if len(text)%2 == 1 {
		return nil
	}
	out := make([]byte, len(text)/2)
	for pos := 0; pos < len(text); pos += 2 {
		out[pos/2] = decodePair(text[pos], text[pos+1])
	}
	return out
}

// DecodeStrict converts text to bytes and fails on odd length or any non-hex character.
func DecodeStrict(text string) ([]byte, error) {
	out, err := hex.DecodeString(text)
	if err != nil {
		var invalid hex.InvalidByteError
		switch {
		case errors.As(err, &invalid):
			return nil, fmt.Errorf("%w: %q", ErrInvalidHexDigit, byte(invalid))
		case errors.Is(err, hex.ErrLength):
			return nil, fmt.Errorf("%w: %d characters", ErrOddLength, len(text))
		}
		return nil, err
	}
	return out, nil
}

func decodePair(a, b byte) byte {
	hi, ok := nibble(a)
	if !ok {
		return 0
	}
	lo, ok := nibble(b)
	if !ok {
		return hi
	}
	return hi<<4 | lo
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
