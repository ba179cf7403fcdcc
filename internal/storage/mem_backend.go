package storage

import (
	"errors"
	"time"

	"github.com/micro-nova/ibeacon-go/internal/syncutil"
)

type slot struct {
	ns  Namespace
	key Key
}

type memRecord struct {
	id   uint32
	data []byte
}

// MemBackend is an in-memory Backend. Initialization completes on a separate
// goroutine after an optional delay, like a flash backend would. Failures can
// be injected per operation.
type MemBackend struct {
	mu          syncutil.Mutex
	handlers    []Handler
	initDelay   time.Duration
	initResult  error
	initStarted bool
	ready       bool
	records     map[slot]memRecord
	open        map[uint32]int
	nextID      uint32
	failures    map[string]error
	writes      int
	updates     int
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		records:  make(map[slot]memRecord),
		open:     make(map[uint32]int),
		failures: make(map[string]error),
		nextID:   1,
	}
}

// SetInitDelay delays the EventInit notification.
func (m *MemBackend) SetInitDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initDelay = d
}

// SetInitResult makes initialization complete with err.
func (m *MemBackend) SetInitResult(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initResult = err
}

// FailOn makes operation op ("find", "open", "close", "write", "update",
// "init") fail with err. A nil err clears the failure.
func (m *MemBackend) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Seed stores data directly, bypassing initialization and counters.
func (m *MemBackend) Seed(ns Namespace, key Key, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[slot{ns, key}] = memRecord{id: m.nextID, data: append([]byte(nil), data...)}
	m.nextID++
}

// Writes returns the number of successful Write calls.
func (m *MemBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Updates returns the number of successful Update calls.
func (m *MemBackend) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// OpenRecords returns the number of records opened and not yet closed.
func (m *MemBackend) OpenRecords() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.open {
		n += c
	}
	return n
}

func (m *MemBackend) Register(h Handler) error {
	if h == nil {
		return newError("register", CodeInvalidArg, nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
	return nil
}

func (m *MemBackend) Init() error {
	m.mu.Lock()
	if err := m.failures["init"]; err != nil {
		m.mu.Unlock()
		return newError("init", CodeIO, err)
	}
	if m.initStarted {
		m.mu.Unlock()
		return newError("init", CodeBusy, nil)
	}
	m.initStarted = true
	delay, result := m.initDelay, m.initResult
	m.mu.Unlock()

	go func() {
		time.Sleep(delay)
		m.mu.Lock()
		m.ready = result == nil
		m.mu.Unlock()
		m.emit(Event{ID: EventInit, Result: result})
	}()
	return nil
}

func (m *MemBackend) Find(ns Namespace, key Key) (Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("find"); err != nil {
		return Descriptor{}, err
	}
	rec, ok := m.records[slot{ns, key}]
	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return Descriptor{ID: rec.id, Namespace: ns, Key: key}, nil
}

func (m *MemBackend) Open(d Descriptor) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("open"); err != nil {
		return nil, err
	}
	rec, ok := m.records[slot{d.Namespace, d.Key}]
	if !ok || rec.id != d.ID {
		return nil, newError("open", CodeStaleDesc, nil)
	}
	m.open[d.ID]++
	return append([]byte(nil), rec.data...), nil
}

func (m *MemBackend) Close(d Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("close"); err != nil {
		return err
	}
	if m.open[d.ID] == 0 {
		return newError("close", CodeStaleDesc, nil)
	}
	m.open[d.ID]--
	if m.open[d.ID] == 0 {
		delete(m.open, d.ID)
	}
	return nil
}

func (m *MemBackend) Write(ns Namespace, key Key, data []byte) (Descriptor, error) {
	m.mu.Lock()
	if err := m.check("write"); err != nil {
		m.mu.Unlock()
		return Descriptor{}, err
	}
	d := m.store(ns, key, data)
	m.writes++
	m.mu.Unlock()

	m.emit(Event{ID: EventWrite, Descriptor: d})
	return d, nil
}

func (m *MemBackend) Update(d Descriptor, data []byte) (Descriptor, error) {
	m.mu.Lock()
	if err := m.check("update"); err != nil {
		m.mu.Unlock()
		return Descriptor{}, err
	}
	if rec, ok := m.records[slot{d.Namespace, d.Key}]; !ok || rec.id != d.ID {
		m.mu.Unlock()
		return Descriptor{}, newError("update", CodeStaleDesc, nil)
	}
	nd := m.store(d.Namespace, d.Key, data)
	m.updates++
	m.mu.Unlock()

	m.emit(Event{ID: EventUpdate, Descriptor: nd})
	return nd, nil
}

func (m *MemBackend) check(op string) error {
	if !m.ready {
		return newError(op, CodeNotInitialized, nil)
	}
	if err := m.failures[op]; err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return err
		}
		return newError(op, CodeIO, err)
	}
	return nil
}

func (m *MemBackend) store(ns Namespace, key Key, data []byte) Descriptor {
	id := m.nextID
	m.nextID++
	m.records[slot{ns, key}] = memRecord{id: id, data: append([]byte(nil), data...)}
	return Descriptor{ID: id, Namespace: ns, Key: key}
}

func (m *MemBackend) emit(ev Event) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Ensure MemBackend implements Backend
var _ Backend = (*MemBackend)(nil)
