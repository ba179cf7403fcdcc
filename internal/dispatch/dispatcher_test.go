package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/ibeacon-go/internal/config"
	"github.com/micro-nova/ibeacon-go/internal/dispatch"
	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/identity"
	"github.com/micro-nova/ibeacon-go/internal/models"
	"github.com/micro-nova/ibeacon-go/internal/storage"
)

var testInfo = identity.Info{Version: "1.0.0", DeviceID: "A1:B2:C3:D4:E5:F6"}

type fixture struct {
	d       *dispatch.Dispatcher
	store   *config.Store
	backend *storage.MemBackend
	bus     *events.Bus
	events  <-chan events.Event
}

func newFixture(t *testing.T, opts ...dispatch.Option) *fixture {
	t.Helper()
	backend := storage.NewMemBackend()
	store := config.New(backend)
	require.NoError(t, store.Init(context.Background()))
	_, err := store.Load()
	require.NoError(t, err)
	bus := events.NewBus()
	ch := bus.Subscribe("test")
	t.Cleanup(func() { bus.Unsubscribe("test") })
	return &fixture{
		d:       dispatch.New(store, testInfo, bus, opts...),
		store:   store,
		backend: backend,
		bus:     bus,
		events:  ch,
	}
}

func (f *fixture) mutations() int { return f.backend.Writes() + f.backend.Updates() }

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		require.FailNow(t, "timed out waiting for event")
	}
	return events.Event{}
}

func TestInformation(t *testing.T) {
	f := newFixture(t)

	got := f.d.HandleLine("I")
	want := "OK V1.0.0 A1:B2:C3:D4:E5:F6 CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC 1 1\n"
	assert.Equal(t, want, got)
	assert.True(t, strings.HasPrefix(got, "OK "), "information response must start with %q", "OK ")
}

func TestConfigureThenInformation(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, "OK\n", f.d.HandleLine("C AABBCCDDEEFF00112233445566778899 5 9"))
	got := f.d.HandleLine("I")
	assert.True(t, strings.HasSuffix(got, " AABBCCDDEEFF00112233445566778899 5 9\n"), "information after configure = %q", got)

	ev := nextEvent(t, f.events)
	assert.Equal(t, events.KindConfigured, ev.Kind)
	assert.Equal(t, uint16(5), ev.Config.Major)
	assert.Equal(t, uint16(9), ev.Config.Minor)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	before := f.mutations()

	for _, line := range []string{"X foo", "", "C too few"} {
		assert.Equal(t, "ERR: Unknown command\n", f.d.HandleLine(line), "HandleLine(%q)", line)
	}
	assert.Equal(t, before, f.mutations(), "unknown commands mutated the store")
	select {
	case ev := <-f.events:
		assert.Fail(t, "unexpected event", "%+v", ev)
	default:
	}
}

func TestConfigureRejected(t *testing.T) {
	f := newFixture(t)
	f.backend.FailOn("update", errors.New("flash full"))

	got := f.d.HandleLine("C AABBCCDDEEFF00112233445566778899 5 9")
	require.Equal(t, "ERR: Configuration not accepted\n", got)
	assert.Equal(t, uint16(1), f.store.Current().Major, "live configuration changed after rejection")
	ev := nextEvent(t, f.events)
	assert.Equal(t, events.KindRejected, ev.Kind)
	assert.Error(t, ev.Err)
}

func TestStrictParsing(t *testing.T) {
	lenient := newFixture(t)
	assert.Equal(t, "OK\n", lenient.d.HandleLine("C AABB 5 9"), "lenient short uuid")

	strict := newFixture(t, dispatch.WithStrictParsing(true))
	before := strict.mutations()
	assert.Equal(t, "ERR: Unknown command\n", strict.d.HandleLine("C AABB 5 9"), "strict short uuid")
	assert.Equal(t, before, strict.mutations(), "strict rejection mutated the store")
	assert.Equal(t, "OK\n", strict.d.HandleLine("C AABBCCDDEEFF00112233445566778899 5 9"), "strict valid configure")
}

func TestNilPublisher(t *testing.T) {
	backend := storage.NewMemBackend()
	store := config.New(backend)
	require.NoError(t, store.Init(context.Background()))
	d := dispatch.New(store, testInfo, nil)
	assert.Equal(t, "OK\n", d.HandleLine("C AABBCCDDEEFF00112233445566778899 5 9"))
}

// recordingStore keeps the order of saves.
type recordingStore struct {
	mu    sync.Mutex
	cur   models.Configuration
	saves []uint16
}

func (s *recordingStore) Current() models.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *recordingStore) Save(cfg models.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = cfg
	s.saves = append(s.saves, cfg.Major)
	return nil
}

// gatedPublisher blocks the first Publish until gate is closed.
type gatedPublisher struct {
	mu        sync.Mutex
	published []uint16
	entered   chan struct{}
	gate      chan struct{}
	first     sync.Once
}

func (p *gatedPublisher) Publish(ev events.Event) {
	p.first.Do(func() {
		close(p.entered)
		<-p.gate
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ev.Config.Major)
}

func TestConfigurePublishesInSaveOrder(t *testing.T) {
	store := &recordingStore{cur: models.DefaultConfiguration()}
	pub := &gatedPublisher{entered: make(chan struct{}), gate: make(chan struct{})}
	d := dispatch.New(store, testInfo, pub)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = d.Configure(models.Configuration{Major: 1})
	}()
	<-pub.entered

	// A second caller arrives while the first is still publishing.
	go func() {
		defer wg.Done()
		_ = d.Configure(models.Configuration{Major: 2})
	}()
	time.Sleep(50 * time.Millisecond)
	close(pub.gate)
	wg.Wait()

	require.Len(t, store.saves, 2)
	assert.Equal(t, store.saves, pub.published, "publish order must follow save order")
	assert.Equal(t, store.Current().Major, pub.published[1], "last published config must be the live one")
}
