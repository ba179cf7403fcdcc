// Package models holds the beacon configuration record and the shared error type.
package models

import (
	"encoding/binary"
	"fmt"

	"github.com/micro-nova/ibeacon-go/internal/hexcodec"
)

const (
	// UUIDLen is the size of the proximity UUID in bytes.
	UUIDLen = 16

	// RecordSize is the encoded size of a Configuration: UUID, major, minor.
	RecordSize = UUIDLen + 2 + 2

	// RecordWords is the record length in 4-byte storage words.
	RecordWords = (RecordSize + 3) / 4
)

// Configuration is the persisted beacon identity.
type Configuration struct {
	UUID  [UUIDLen]byte
	Major uint16
	Minor uint16
}

// UUIDHex returns the UUID as 32 upper-case hex characters.
func (c Configuration) UUIDHex() string {
	return hexcodec.Encode(c.UUID[:])
}

func (c Configuration) String() string {
	return fmt.Sprintf("%s %d %d", c.UUIDHex(), c.Major, c.Minor)
}

// MarshalRecord encodes c as UUID ++ major ++ minor in native byte order,
// zero padded to a whole number of storage words.
func (c Configuration) MarshalRecord() []byte {
	buf := make([]byte, RecordWords*4)
	copy(buf, c.UUID[:])
	binary.NativeEndian.PutUint16(buf[UUIDLen:], c.Major)
	binary.NativeEndian.PutUint16(buf[UUIDLen+2:], c.Minor)
	return buf
}

// UnmarshalRecord decodes a record written by MarshalRecord. Trailing padding is ignored.
func UnmarshalRecord(data []byte) (Configuration, error) {
	if len(data) < RecordSize {
		return Configuration{}, fmt.Errorf("models: configuration record too short: %d bytes, want %d", len(data), RecordSize)
	}
	var c Configuration
	copy(c.UUID[:], data[:UUIDLen])
	c.Major = binary.NativeEndian.Uint16(data[UUIDLen:])
	c.Minor = binary.NativeEndian.Uint16(data[UUIDLen+2:])
	return c, nil
}
