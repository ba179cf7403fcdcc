// Package radio is the hand-off point to the advertising stack. It builds the
// iBeacon manufacturer data for a configuration and restarts advertising when
// a new configuration is accepted.
package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/models"
)

// iBeacon advertisement constants.
const (
	CompanyID     = 0x004C // Apple
	DeviceType    = 0x02   // beacon
	AdvDataLength = 0x15
	MeasuredRSSI  = 0xAF // -81 dBm at 1 m
	InfoLength    = 0x17
)

// Advertising parameters.
const (
	TxPowerDBm = -16
	Interval   = 100 * time.Millisecond
)

// Params are the advertiser settings applied with each payload.
type Params struct {
	Interval   time.Duration
	TxPowerDBm int
}

// DefaultParams returns the fixed beacon advertising parameters.
func DefaultParams() Params {
	return Params{Interval: Interval, TxPowerDBm: TxPowerDBm}
}

// BeaconInfo returns the iBeacon info block: type, length, UUID, major and
// minor (big-endian) and measured RSSI.
func BeaconInfo(cfg models.Configuration) [InfoLength]byte {
	var info [InfoLength]byte
	info[0] = DeviceType
	info[1] = AdvDataLength
	copy(info[2:18], cfg.UUID[:])
	binary.BigEndian.PutUint16(info[18:], cfg.Major)
	binary.BigEndian.PutUint16(info[20:], cfg.Minor)
	info[22] = MeasuredRSSI
	return info
}

// ManufacturerData returns the company id (little-endian) followed by the info block.
func ManufacturerData(cfg models.Configuration) []byte {
	info := BeaconInfo(cfg)
	out := make([]byte, 2, 2+InfoLength)
	binary.LittleEndian.PutUint16(out, CompanyID)
	return append(out, info[:]...)
}

// Advertiser is the radio stack.
type Advertiser interface {
	Configure(manufacturerData []byte, p Params) error
	Start() error
	Stop() error
}

// Subscriber is the part of *events.Bus the runner needs.
type Subscriber interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// Source returns the live configuration. *config.Store implements it.
type Source interface {
	Current() models.Configuration
}

// Run starts advertising the live configuration and restarts the advertiser
// whenever an accepted configuration is announced, until ctx is cancelled.
// Events only wake the runner: it always applies src.Current(), so events
// dropped by a full bus or published out of order cannot leave an older
// identity on the air.
func Run(ctx context.Context, adv Advertiser, bus Subscriber, src Source) error {
	ch := bus.Subscribe("radio")
	defer bus.Unsubscribe("radio")

	applied := src.Current()
	if err := apply(adv, applied, false); err != nil {
		return err
	}
	defer adv.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Kind != events.KindConfigured {
				continue
			}
			cfg := src.Current()
			if cfg == applied {
				continue
			}
			if err := apply(adv, cfg, true); err != nil {
				slog.Error("radio: restart failed", "err", err)
				continue
			}
			applied = cfg
		}
	}
}

func apply(adv Advertiser, cfg models.Configuration, restart bool) error {
	if restart {
		if err := adv.Stop(); err != nil {
			return fmt.Errorf("radio: stop: %w", err)
		}
	}
	if err := adv.Configure(ManufacturerData(cfg), DefaultParams()); err != nil {
		return fmt.Errorf("radio: configure: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("radio: start: %w", err)
	}
	slog.Info("radio: advertising", "config", cfg)
	return nil
}

// LogAdvertiser is an Advertiser without a radio. It records and logs
// the payload so the daemon runs on hosts without a BLE stack.
type LogAdvertiser struct {
	mu       sync.Mutex
	payload  []byte
	params   Params
	running  bool
	restarts int
}

// NewLogAdvertiser returns a stopped LogAdvertiser.
func NewLogAdvertiser() *LogAdvertiser { return &LogAdvertiser{} }

func (a *LogAdvertiser) Configure(data []byte, p Params) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payload = append([]byte(nil), data...)
	a.params = p
	slog.Debug("radio: payload", "data", fmt.Sprintf("% X", data), "interval", p.Interval, "tx_dbm", p.TxPowerDBm)
	return nil
}

func (a *LogAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("radio: already advertising")
	}
	a.running = true
	a.restarts++
	return nil
}

func (a *LogAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

// Snapshot returns the current payload, whether advertising is on, and how
// many times it was started.
func (a *LogAdvertiser) Snapshot() (payload []byte, running bool, starts int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.payload...), a.running, a.restarts
}
