// Package identity provides the device identity reported by the Information command.
package identity

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/denisbrodbeck/machineid"
)

// DefaultVersion is the fallback firmware version when metadata.json is not found.
const DefaultVersion = "1.0.0"

// appID salts the machine id so the reported device id cannot be mapped back to it.
const appID = "ibeacon-go"

// UnknownDeviceID is reported when the machine id cannot be read.
const UnknownDeviceID = "00:00:00:00:00:00"

// Info holds device identity information.
type Info struct {
	Version  string
	DeviceID string // six colon-separated hex octets, like a MAC address
}

// Detect builds Info from the data directory metadata and the host machine id.
func Detect(dataDir string) Info {
	return Info{
		Version:  GetVersionFromDir(dataDir),
		DeviceID: GetDeviceID(),
	}
}

// GetDeviceID derives a stable, application-specific device id from the host machine id.
func GetDeviceID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		slog.Warn("identity: machine id unavailable", "err", err)
		return UnknownDeviceID
	}
	return FormatDeviceID(id)
}

// FormatDeviceID formats the first six octets of a hex id as "AA:BB:CC:DD:EE:FF".
func FormatDeviceID(hexID string) string {
	hexID = strings.ToUpper(strings.TrimSpace(hexID))
	if len(hexID) < 12 {
		return UnknownDeviceID
	}
	octets := make([]string, 6)
	for i := range octets {
		octets[i] = hexID[2*i : 2*i+2]
	}
	return strings.Join(octets, ":")
}

// GetVersionFromDir reads the firmware version from metadata.json in dir.
// Falls back to DefaultVersion if the file is missing or unreadable.
func GetVersionFromDir(dir string) string {
	if dir == "" {
		return DefaultVersion
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return DefaultVersion
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return DefaultVersion
	}

	if v, ok := meta["version"].(string); ok && v != "" {
		return v
	}
	return DefaultVersion
}
