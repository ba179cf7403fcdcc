package radio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	bluezService       = "org.bluez"
	advertisementIface = "org.bluez.LEAdvertisement1"
	advManagerIface    = "org.bluez.LEAdvertisingManager1"

	// DefaultAdapter is the BlueZ object path of the first controller.
	DefaultAdapter dbus.ObjectPath = "/org/bluez/hci0"

	advertisementPath dbus.ObjectPath = "/com/micronova/ibeacon/advertisement0"
)

// BlueZAdvertiser advertises through the BlueZ LE advertising manager on the
// system bus. The advertisement object is exported while advertising.
type BlueZAdvertiser struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	data    []byte
	params  Params
	running bool
}

// NewBlueZAdvertiser connects to the system bus. adapter is the BlueZ
// controller path, e.g. DefaultAdapter.
func NewBlueZAdvertiser(adapter dbus.ObjectPath) (*BlueZAdvertiser, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("radio: connect system bus: %w", err)
	}
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return &BlueZAdvertiser{conn: conn, adapter: adapter}, nil
}

func (a *BlueZAdvertiser) Configure(data []byte, p Params) error {
	if len(data) < 2 {
		return fmt.Errorf("radio: manufacturer data too short (%d bytes)", len(data))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = append([]byte(nil), data...)
	a.params = p
	return nil
}

func (a *BlueZAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("radio: already advertising")
	}
	if a.data == nil {
		return fmt.Errorf("radio: no payload configured")
	}

	if err := a.conn.Export(bluezRelease{}, advertisementPath, advertisementIface); err != nil {
		return fmt.Errorf("radio: export advertisement: %w", err)
	}
	if _, err := prop.Export(a.conn, advertisementPath, AdvertisementProperties(a.data, a.params)); err != nil {
		a.unexport()
		return fmt.Errorf("radio: export properties: %w", err)
	}

	call := a.conn.Object(bluezService, a.adapter).Call(advManagerIface+".RegisterAdvertisement", 0,
		advertisementPath, map[string]dbus.Variant{})
	if call.Err != nil {
		a.unexport()
		return fmt.Errorf("radio: register advertisement on %s: %w", a.adapter, call.Err)
	}
	a.running = true
	slog.Debug("radio: bluez advertisement registered", "adapter", a.adapter)
	return nil
}

func (a *BlueZAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	call := a.conn.Object(bluezService, a.adapter).Call(advManagerIface+".UnregisterAdvertisement", 0, advertisementPath)
	a.unexport()
	if call.Err != nil {
		return fmt.Errorf("radio: unregister advertisement: %w", call.Err)
	}
	return nil
}

// Close stops advertising and closes the bus connection.
func (a *BlueZAdvertiser) Close() error {
	if err := a.Stop(); err != nil {
		slog.Warn("radio: stop on close failed", "err", err)
	}
	return a.conn.Close()
}

func (a *BlueZAdvertiser) unexport() {
	_ = a.conn.Export(nil, advertisementPath, advertisementIface)
	_ = a.conn.Export(nil, advertisementPath, "org.freedesktop.DBus.Properties")
}

// AdvertisementProperties returns the LEAdvertisement1 properties for a
// non-connectable broadcast of data, which starts with the little-endian
// company id.
func AdvertisementProperties(data []byte, p Params) prop.Map {
	companyID := uint16(data[0]) | uint16(data[1])<<8
	interval := uint32(p.Interval.Milliseconds())
	return prop.Map{
		advertisementIface: {
			"Type": {Value: "broadcast", Emit: prop.EmitFalse},
			"ManufacturerData": {
				Value: map[uint16]dbus.Variant{companyID: dbus.MakeVariant(append([]byte(nil), data[2:]...))},
				Emit:  prop.EmitFalse,
			},
			"MinInterval": {Value: interval, Emit: prop.EmitFalse},
			"MaxInterval": {Value: interval, Emit: prop.EmitFalse},
			"TxPower":     {Value: int16(p.TxPowerDBm), Emit: prop.EmitFalse},
		},
	}
}

// bluezRelease implements the Release method BlueZ calls when it drops the
// advertisement.
type bluezRelease struct{}

func (bluezRelease) Release() *dbus.Error {
	slog.Info("radio: advertisement released by bluez")
	return nil
}
