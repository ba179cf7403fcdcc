// Package dispatch executes parsed commands against the configuration store
// and produces the protocol responses.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/identity"
	"github.com/micro-nova/ibeacon-go/internal/models"
	"github.com/micro-nova/ibeacon-go/internal/protocol"
	"github.com/micro-nova/ibeacon-go/internal/syncutil"
)

// Store is the part of config.Store the dispatcher needs.
type Store interface {
	Current() models.Configuration
	Save(cfg models.Configuration) error
}

// Publisher receives configure outcomes. *events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStrictParsing rejects malformed configure lines instead of decoding them best effort.
func WithStrictParsing(strict bool) Option {
	return func(d *Dispatcher) { d.strict = strict }
}

// Dispatcher maps commands to store operations and responses.
type Dispatcher struct {
	mu     syncutil.Mutex // orders save and publish across callers
	store  Store
	info   identity.Info
	bus    Publisher
	strict bool
}

// New creates a Dispatcher. bus may be nil.
func New(store Store, info identity.Info, bus Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: store, info: info, bus: bus}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleLine parses one framed line and executes it.
func (d *Dispatcher) HandleLine(line string) string {
	parse := protocol.Parse
	if d.strict {
		parse = protocol.ParseStrict
	}
	cmd, err := parse(line)
	if err != nil {
		slog.Debug("dispatch: rejected line", "line", line, "err", err)
	}
	return d.Handle(cmd)
}

// Handle executes cmd and returns the response text.
func (d *Dispatcher) Handle(cmd protocol.Command) string {
	switch c := cmd.(type) {
	case protocol.Information:
		return protocol.InformationResponse(d.Information())
	case protocol.Configure:
		if err := d.Configure(c.Configuration()); err != nil {
			return protocol.ResponseRejected
		}
		return protocol.ResponseOK
	default:
		return protocol.ResponseUnknownCommand
	}
}

// Information returns "V<version> <device-id> <uuid> <major> <minor>".
func (d *Dispatcher) Information() string {
	cfg := d.store.Current()
	return fmt.Sprintf("V%s %s %s %d %d", d.info.Version, d.info.DeviceID, cfg.UUIDHex(), cfg.Major, cfg.Minor)
}

// Identity returns the device identity.
func (d *Dispatcher) Identity() identity.Info { return d.info }

// Current returns the live configuration.
func (d *Dispatcher) Current() models.Configuration { return d.store.Current() }

// Configure saves cfg and publishes the outcome. Concurrent callers (serial
// session, HTTP API) publish in the order their saves happened.
func (d *Dispatcher) Configure(cfg models.Configuration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.store.Save(cfg)
	ev := events.Event{Kind: events.KindConfigured, Config: cfg}
	if err != nil {
		slog.Warn("dispatch: configuration not accepted", "config", cfg, "err", err)
		ev.Kind, ev.Err = events.KindRejected, err
	} else {
		slog.Info("dispatch: configuration accepted", "config", cfg)
	}
	if d.bus != nil {
		d.bus.Publish(ev)
	}
	return err
}
