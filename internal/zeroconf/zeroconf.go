// Package zeroconf advertises the beacon HTTP API as an mDNS/DNS-SD service
// so it can be found on the LAN.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/grandcat/zeroconf"

	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/identity"
	"github.com/micro-nova/ibeacon-go/internal/models"
)

const (
	serviceType = "_http._tcp"
	domain      = "local."
)

// Subscriber is the part of *events.Bus the service needs.
type Subscriber interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, e.g. "ibeacon-AABBCC"
	port int
	info identity.Info
}

// New creates a Service that advertises the HTTP API on port.
func New(name string, port int, info identity.Info) *Service {
	return &Service{name: name, port: port, info: info}
}

// TXT returns the TXT records advertised for cfg.
func (s *Service) TXT(cfg models.Configuration) []string {
	return []string{
		"model=iBeacon",
		"version=" + s.info.Version,
		"device=" + s.info.DeviceID,
		"uuid=" + cfg.UUIDHex(),
		"major=" + strconv.Itoa(int(cfg.Major)),
		"minor=" + strconv.Itoa(int(cfg.Minor)),
	}
}

// Source returns the live configuration. *config.Store implements it.
type Source interface {
	Current() models.Configuration
}

// Run registers the service with the live configuration in its TXT records
// and blocks until ctx is cancelled. grandcat/zeroconf cannot update TXT
// records in place, so the service is re-registered whenever an accepted
// configuration is announced and src.Current() differs from what is
// advertised.
func (s *Service) Run(ctx context.Context, bus Subscriber, src Source) error {
	ch := bus.Subscribe("zeroconf")
	defer bus.Unsubscribe("zeroconf")

	advertised := src.Current()
	server, err := s.register(advertised)
	if err != nil {
		return err
	}
	defer func() {
		if server != nil {
			server.Shutdown()
		}
		slog.Info("zeroconf: mDNS service unregistered")
	}()

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
			if cfg == advertised && server != nil {
				continue
			}
			if server != nil {
				server.Shutdown()
				server = nil
			}
			server, err = s.register(cfg)
			if err != nil {
				slog.Error("zeroconf: re-register failed", "err", err)
				continue
			}
			advertised = cfg
		}
	}
}

func (s *Service) register(cfg models.Configuration) (*zeroconf.Server, error) {
	txt := s.TXT(cfg)
	server, err := zeroconf.Register(
		s.name,      // instance name
		serviceType, // service type
		domain,      // domain
		s.port,      // port
		txt,         // TXT records
		nil,         // ifaces, nil means all interfaces
	)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"port", s.port,
		"txt", txt,
	)
	return server, nil
}
