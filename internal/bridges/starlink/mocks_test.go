package starlink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/starlink-bridge/internal/dish"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/starlink-bridge/internal/settings"
)

var errDishTimeout = errors.New("rpc error: code = DeadlineExceeded desc = context deadline exceeded")

// fakeDevice returns canned dish responses.
type fakeDevice struct {
	mu      sync.Mutex
	info    dish.DeviceInfo
	infoErr error
	pos     dish.Position
	posErr  error
	calls   int
}

func (f *fakeDevice) GetDeviceInfo(context.Context) (dish.DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.infoErr
}

func (f *fakeDevice) GetPosition(context.Context) (dish.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pos, f.posErr
}

func (f *fakeDevice) setFix(lat, lon, alt float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = dish.Position{LLA: &dish.LLA{Lat: lat, Lon: lon, Alt: alt}}
	f.posErr = nil
}

func (f *fakeDevice) setNoFix(code int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = dish.Position{Status: dish.Status{Code: code, Message: "no location"}}
	f.posErr = nil
}

func (f *fakeDevice) setTransportError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posErr = errors.Join(dish.ErrTransport, errDishTimeout)
}

// MockBus records publications. Retained state follows broker semantics:
// an empty retained payload removes the topic.
type MockBus struct {
	mu        sync.Mutex
	connected bool
	retained  map[string][]byte
	log       []string
	handlers  map[string]func(string, []byte)

	// failAfter makes the publish with this 1-based index and all later ones fail.
	failAfter int
}

func NewMockBus() *MockBus {
	return &MockBus{
		connected: true,
		retained:  make(map[string][]byte),
		handlers:  make(map[string]func(string, []byte)),
	}
}

func (m *MockBus) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter > 0 && len(m.log)+1 >= m.failAfter && len(payload) > 0 {
		return mqtt.ErrNotConnected
	}

	m.log = append(m.log, topic)
	if retained {
		if len(payload) == 0 {
			delete(m.retained, topic)
		} else {
			m.retained[topic] = append([]byte(nil), payload...)
		}
	}
	return nil
}

func (m *MockBus) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBus) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MockBus) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no subscription for %s", topic)
	}
	h(topic, payload)
}

func (m *MockBus) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}

// retainedWithPrefix returns retained topics starting with prefix.
func (m *MockBus) retainedWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var topics []string
	for topic := range m.retained {
		if strings.HasPrefix(topic, prefix) {
			topics = append(topics, topic)
		}
	}
	return topics
}

// value decodes the {"value": ...} payload retained on topic.
func (m *MockBus) value(t *testing.T, topic string) any {
	t.Helper()
	m.mu.Lock()
	payload, ok := m.retained[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("nothing retained on %s", topic)
	}
	var msg struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload on %s is not a value message: %v", topic, err)
	}
	return msg.Value
}

func (m *MockBus) raw(topic string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retained[topic]
}

// memRepo is an in-memory settings.Repository counting writes.
type memRepo struct {
	mu      sync.Mutex
	records map[string]settings.Record
	updates int
	failGet error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]settings.Record)}
}

func (r *memRepo) Get(_ context.Context, key string) (*settings.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	rec, ok := r.records[key]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &rec, nil
}

func (r *memRepo) Create(_ context.Context, rec *settings.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Key] = *rec
	return nil
}

func (r *memRepo) UpdateValue(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	rec := r.records[key]
	rec.Value = value
	r.records[key] = rec
	return nil
}

func (r *memRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// queueExecutor collects posted tasks for the test to run.
type queueExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queueExecutor) Post(fn func()) bool {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	return true
}

func (q *queueExecutor) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
	}
}

// fakeTicker captures the function registered with Every.
type fakeTicker struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	stopped  bool
}

func (f *fakeTicker) Every(interval time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = interval
	f.fn = fn
	f.stopped = false
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}
}

func (f *fakeTicker) tick() {
	f.mu.Lock()
	fn, stopped := f.fn, f.stopped
	f.mu.Unlock()
	if fn != nil && !stopped {
		fn()
	}
}

type telemetryCall struct {
	service string
	fix     bool
	lat     float64
	lon     float64
	alt     int
}

type recordingSink struct {
	mu    sync.Mutex
	calls []telemetryCall
}

func (s *recordingSink) WritePosition(service string, fix bool, lat, lon float64, alt int, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, telemetryCall{service, fix, lat, lon, alt})
}

// testHarness wires a Publisher to fakes and a real settings.Store.
type testHarness struct {
	device *fakeDevice
	bus    *MockBus
	repo   *memRepo
	store  *settings.Store
	exec   *queueExecutor
	pub    *Publisher
}

const (
	testPrefix  = "com.victronenergy.gps.starlink"
	testVersion = "v1.2.3"
)

func testMetadata() Metadata {
	return Metadata{
		ServicePrefix:  testPrefix,
		ProcessName:    "dbus-starlink",
		ProcessVersion: testVersion,
		Connection:     "gRPC",
		DeviceInstance: 1,
		ProductID:      45108,
		ProductName:    "Starlink",
	}
}

func strPtr(s string) *string { return &s }

func newHarness(t *testing.T, mutate ...func(*Options)) *testHarness {
	t.Helper()

	h := &testHarness{
		device: &fakeDevice{
			info: dish.DeviceInfo{
				ID:              "KU123456789",
				HardwareVersion: strPtr("rev3_proto2"),
				SoftwareVersion: strPtr("2024.10.01.mr123"),
			},
		},
		bus:  NewMockBus(),
		repo: newMemRepo(),
		exec: &queueExecutor{},
	}

	store, err := settings.NewStore(settings.Options{
		Repository: h.repo,
		Bus:        h.bus,
		Topics:     mqtt.Topics{Prefix: "starlink"},
		QoS:        1,
	})
	if err != nil {
		t.Fatalf("settings.NewStore() error = %v", err)
	}
	h.store = store

	opts := Options{
		Device:            h.device,
		Store:             h.store,
		Bus:               h.bus,
		Topics:            mqtt.Topics{Prefix: "starlink"},
		QoS:               1,
		Metadata:          testMetadata(),
		DefaultCustomName: "Starlink",
		Executor:          h.exec,
	}
	for _, m := range mutate {
		m(&opts)
	}

	pub, err := NewPublisher(opts)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	h.pub = pub
	return h
}

// topic returns the attribute topic for path on the harness's service.
func (h *testHarness) topic(path string) string {
	return mqtt.Topics{Prefix: "starlink"}.Attribute(h.pub.ServiceName(), path)
}
