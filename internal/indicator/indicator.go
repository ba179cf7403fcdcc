// Package indicator drives a status LED that acknowledges configure commands:
// a short blink train when a configuration is accepted, a steady hold when it
// is rejected.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/micro-nova/ibeacon-go/internal/events"
)

// LED is a single on/off light.
type LED interface {
	Set(on bool) error
}

// GPIOLED is an LED on a GPIO output pin.
type GPIOLED struct {
	pin gpio.PinIO
}

// OpenGPIO initializes the periph host drivers and returns the LED on the
// named pin (e.g. "GPIO17"), switched off.
func OpenGPIO(name string) (*GPIOLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio: failed to open %s", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio: failed to drive %s low: %w", name, err)
	}
	slog.Debug("gpio: status led ready", "pin", name)
	return &GPIOLED{pin: pin}, nil
}

func (l *GPIOLED) Set(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return l.pin.Out(level)
}

// Pattern is the LED timing.
type Pattern struct {
	Blinks int           // blinks for an accepted configuration
	Period time.Duration // on time and off time of one blink
	Hold   time.Duration // on time for a rejected configuration
}

// DefaultPattern is three 100ms blinks on accept, one second on for reject.
func DefaultPattern() Pattern {
	return Pattern{Blinks: 3, Period: 100 * time.Millisecond, Hold: time.Second}
}

// Subscriber is the part of *events.Bus the indicator needs.
type Subscriber interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// Run shows configure outcomes on led until ctx is cancelled.
func Run(ctx context.Context, led LED, bus Subscriber, p Pattern) {
	ch := bus.Subscribe("indicator")
	defer bus.Unsubscribe("indicator")
	defer led.Set(false)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			var err error
			if ev.Kind == events.KindConfigured {
				err = blink(ctx, led, p)
			} else {
				err = hold(ctx, led, p.Hold)
			}
			if err != nil {
				slog.Warn("indicator: led write failed", "err", err)
			}
		}
	}
}

func blink(ctx context.Context, led LED, p Pattern) error {
	for i := 0; i < p.Blinks; i++ {
		if err := hold(ctx, led, p.Period); err != nil {
			return err
		}
		if !sleep(ctx, p.Period) {
			return nil
		}
	}
	return nil
}

func hold(ctx context.Context, led LED, d time.Duration) error {
	if err := led.Set(true); err != nil {
		return err
	}
	sleep(ctx, d)
	return led.Set(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Mock records LED writes.
type Mock struct {
	mu      sync.Mutex
	history []bool
}

// NewMock returns a Mock LED.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Set(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, on)
	return nil
}

// History returns every value written, oldest first.
func (m *Mock) History() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.history...)
}
