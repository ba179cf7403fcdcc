package models_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/models"
)

func TestDefaultConfiguration(t *testing.T) {
	c := models.DefaultConfiguration()
	assert.Equal(t, bytes.Repeat([]byte{0xCC}, models.UUIDLen), c.UUID[:])
	assert.Equal(t, uint16(1), c.Major)
	assert.Equal(t, uint16(1), c.Minor)
}

func TestMarshalRecordLayout(t *testing.T) {
	c := models.Configuration{Major: 0x0102, Minor: 0x0304}
	for i := range c.UUID {
		c.UUID[i] = byte(i)
	}

	data := c.MarshalRecord()
	require.Len(t, data, models.RecordWords*4)
	assert.Equal(t, 5, models.RecordWords)
	assert.Equal(t, c.UUID[:], data[:16])
	assert.Equal(t, make([]byte, len(data)-models.RecordSize), data[models.RecordSize:], "padding must be zero")
}

func TestRecordRoundTrip(t *testing.T) {
	c := models.Configuration{Major: 42, Minor: 7}
	for i := range c.UUID {
		c.UUID[i] = 0xAB
	}
	got, err := models.UnmarshalRecord(c.MarshalRecord())
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestUnmarshalRecordTooShort(t *testing.T) {
	_, err := models.UnmarshalRecord(make([]byte, models.RecordSize-1))
	assert.Error(t, err)
}

func TestConfigurationString(t *testing.T) {
	assert.Equal(t, "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC 1 1", models.DefaultConfiguration().String())
}
