package settings_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/settings"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BEACON_PORT", "")
	t.Setenv("BEACON_DATA_DIR", "")
	t.Setenv("BEACON_BAUD", "")
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	s, err := settings.Load("")
	require.NoError(t, err)
	assert.Equal(t, settings.Default(), s)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "beacond.yaml")
	writeFile(t, path, "port: /dev/ttyACM0\nbaud: 9600\nstrict: true\nmqtt: tcp://broker:1883/fleet\n")

	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", s.Port)
	assert.Equal(t, 9600, s.Baud)
	assert.True(t, s.Strict)
	assert.Equal(t, "tcp://broker:1883/fleet", s.MQTT)
	assert.Equal(t, settings.Default().DataDir, s.DataDir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacond.yaml")
	writeFile(t, path, "port: /dev/ttyACM0\n")
	t.Setenv("BEACON_PORT", "/dev/ttyS1")
	t.Setenv("BEACON_DATA_DIR", "/tmp/beacon")
	t.Setenv("BEACON_BAUD", "57600")

	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", s.Port)
	assert.Equal(t, "/tmp/beacon", s.DataDir)
	assert.Equal(t, 57600, s.Baud)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacond.yaml")
	writeFile(t, path, "baud: [not a number\n")
	_, err := settings.Load(path)
	assert.Error(t, err, "expected parse error")

	writeFile(t, path, "baud: -5\n")
	_, err = settings.Load(path)
	assert.Error(t, err, "expected validation error for negative baud")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := settings.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "beacond.yaml")
	writeFile(t, path, "debug: false\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan settings.Settings, 16)
	go func() {
		_ = settings.Watch(ctx, path, func(s settings.Settings) { got <- s })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "debug: true\n")

	// Truncation can surface as a separate write, so wait for the new value.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Debug {
				return
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for reload with debug: true")
		}
	}
}
