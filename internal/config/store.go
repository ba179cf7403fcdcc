// Package config persists the beacon configuration record on a storage
// backend and holds the live copy used by the rest of the device.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/micro-nova/ibeacon-go/internal/models"
	"github.com/micro-nova/ibeacon-go/internal/storage"
	"github.com/micro-nova/ibeacon-go/internal/syncutil"
)

// Record slot of the configuration.
const (
	RecordNamespace storage.Namespace = 0xF010
	RecordKey       storage.Key       = 0x7010
)

var (
	// ErrNotReady is returned by Load and Save before Init has succeeded.
	ErrNotReady = errors.New("config: store not ready")
	// ErrInitFailed wraps a failed backend initialization.
	ErrInitFailed = errors.New("config: storage initialization failed")
)

// State is the store lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Store loads and saves the single configuration record.
// Backend access is serialized; the store is safe for concurrent use.
type Store struct {
	mu      syncutil.Mutex
	backend storage.Backend
	state   State
	current models.Configuration
}

// New returns an uninitialized store on backend. The live configuration is
// the factory default until Load succeeds.
func New(backend storage.Backend) *Store {
	return &Store{
		backend: backend,
		current: models.DefaultConfiguration(),
	}
}

// Init registers with the backend, requests initialization and blocks until
// the backend reports the outcome. A failed initialization is final.
// Cancelling ctx releases the caller; the outcome is still recorded when the
// backend reports it.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateInitializing:
		s.mu.Unlock()
		return fmt.Errorf("config: init already in progress")
	case StateFailed:
		s.mu.Unlock()
		return ErrInitFailed
	}

	done := make(chan error, 1)
	err := s.backend.Register(func(ev storage.Event) {
		switch ev.ID {
		case storage.EventInit:
			s.finishInit(ev.Result)
			select {
			case done <- ev.Result:
			default:
			}
		case storage.EventCompact:
			slog.Info("store: backend compacted")
		default:
			slog.Debug("store: backend event", "event", ev.ID, "id", ev.Descriptor.ID, "err", ev.Result)
		}
	})
	if err == nil {
		err = s.backend.Init()
	}
	if err != nil {
		s.state = StateFailed
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	s.state = StateInitializing
	s.mu.Unlock()

	slog.Debug("store: waiting for storage initialization")
	select {
	case err = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	return nil
}

// finishInit records the backend init outcome. Only the first report counts.
func (s *Store) finishInit(result error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return
	}
	if result != nil {
		s.state = StateFailed
		slog.Error("store: storage initialization failed", "err", result)
		return
	}
	s.state = StateReady
	slog.Info("store: storage ready")
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the live configuration.
func (s *Store) Current() models.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Load reads the record from the backend. When the slot is empty the factory
// default is written and returned. Errors opening, decoding or closing an
// existing record are returned unchanged; there is no safe fallback for a
// record that exists but cannot be read.
func (s *Store) Load() (models.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return models.Configuration{}, ErrNotReady
	}

	d, err := s.backend.Find(RecordNamespace, RecordKey)
	switch {
	case err == nil:
		cfg, err := s.read(d)
		if err != nil {
			return models.Configuration{}, err
		}
		s.current = cfg
		slog.Debug("store: configuration loaded", "config", cfg)
		return cfg, nil

	case errors.Is(err, storage.ErrNotFound):
		def := models.DefaultConfiguration()
		if _, err := s.backend.Write(RecordNamespace, RecordKey, def.MarshalRecord()); err != nil {
			slog.Warn("store: could not write default configuration", "err", err)
		} else {
			slog.Info("store: no configuration record, wrote factory default")
		}
		s.current = def
		return def, nil

	default:
		return models.Configuration{}, fmt.Errorf("config: find record: %w", err)
	}
}

func (s *Store) read(d storage.Descriptor) (models.Configuration, error) {
	data, err := s.backend.Open(d)
	if err != nil {
		return models.Configuration{}, fmt.Errorf("config: open record: %w", err)
	}
	cfg, decodeErr := models.UnmarshalRecord(data)
	if err := s.backend.Close(d); err != nil {
		return models.Configuration{}, fmt.Errorf("config: close record: %w", err)
	}
	if decodeErr != nil {
		return models.Configuration{}, decodeErr
	}
	return cfg, nil
}

// Save updates the record in place when it exists and writes it otherwise.
// The live configuration changes only when the backend accepts the record.
func (s *Store) Save(cfg models.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return ErrNotReady
	}

	data := cfg.MarshalRecord()
	d, err := s.backend.Find(RecordNamespace, RecordKey)
	switch {
	case err == nil:
		_, err = s.backend.Update(d, data)
	case errors.Is(err, storage.ErrNotFound):
		_, err = s.backend.Write(RecordNamespace, RecordKey, data)
	}
	if err != nil {
		return fmt.Errorf("config: save record: %w", err)
	}

	s.current = cfg
	slog.Info("store: configuration saved", "config", cfg)
	return nil
}
