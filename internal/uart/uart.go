// Package uart carries the command protocol over a serial port: the device
// side Session feeds received bytes through the framer and writes responses,
// and Client is the host side used by beaconctl.
package uart

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaud matches the firmware UART configuration.
	DefaultBaud = 115200

	// readTimeout bounds each port read so sessions notice cancellation.
	readTimeout = 100 * time.Millisecond
)

// Open opens name at baud, 8N1, with a short read timeout.
func Open(name string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("uart: set read timeout on %s: %w", name, err)
	}
	return port, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
