package starlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/starlink-bridge/internal/dish"
	"github.com/nerrad567/starlink-bridge/internal/identity"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/starlink-bridge/internal/settings"
)

const (
	// defaultRepublishInterval forces unchanged attributes out again so
	// retained state on the broker never goes stale.
	defaultRepublishInterval = 10 * time.Minute

	// writeTimeout bounds a custom name write arriving from the bus.
	writeTimeout = 5 * time.Second
)

// State is the publisher lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceClient is the dish RPC surface the publisher uses.
// *dish.Client satisfies it.
type DeviceClient interface {
	GetDeviceInfo(ctx context.Context) (dish.DeviceInfo, error)
	GetPosition(ctx context.Context) (dish.Position, error)
}

// SettingsStore persists the custom name.
// *settings.Store satisfies it.
type SettingsStore interface {
	Load(ctx context.Context, key, path, defaultValue string) (string, error)
	Set(ctx context.Context, key, value string) error
	OnChange(key string, handler settings.ChangeHandler)
	SetValidator(key string, v settings.Validator)
}

// Bus is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type Bus interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// TelemetrySink records refreshed positions. Optional.
// *influxdb.Client satisfies it.
type TelemetrySink interface {
	WritePosition(service string, fix bool, lat, lon float64, alt int, at time.Time)
}

// Executor runs bus callbacks on the event loop.
// *loop.Loop satisfies it.
type Executor interface {
	Post(fn func()) bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metadata holds the static values published for the device.
type Metadata struct {
	ServicePrefix  string
	ProcessName    string
	ProcessVersion string
	Connection     string
	DeviceInstance int
	ProductID      int
	ProductName    string
}

// Options holds configuration for creating a Publisher.
type Options struct {
	// Device is the dish client. Required.
	Device DeviceClient

	// Store persists the custom name. Required.
	Store SettingsStore

	// Bus is the MQTT client. Required.
	Bus Bus

	// Topics builds topic names. Zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS for attribute publications.
	QoS byte

	// Metadata is published once as static attributes.
	Metadata Metadata

	// DefaultCustomName seeds the custom name setting.
	DefaultCustomName string

	// RepublishInterval is how long an unchanged attribute stays
	// unpublished. Zero uses 10 minutes.
	RepublishInterval time.Duration

	// Executor receives bus writes. If nil they run on the bus goroutine.
	Executor Executor

	// Telemetry records each refresh. Optional.
	Telemetry TelemetrySink

	// Logger is optional.
	Logger Logger
}

// Stats counts refresh outcomes.
type Stats struct {
	Cycles            uint64
	Fixes             uint64
	NoFix             uint64
	TransportFailures uint64
	LastRefresh       time.Time

	// LastRefreshFailed is true when the most recent refresh could not
	// reach the dish.
	LastRefreshFailed bool
}

// Publisher exposes one dish as a service on the bus.
//
// Thread Safety: All methods are safe for concurrent use. In the running
// bridge they are called from the event loop.
type Publisher struct {
	device    DeviceClient
	store     SettingsStore
	bus       Bus
	topics    mqtt.Topics
	qos       byte
	meta      Metadata
	defName   string
	exec      Executor
	telemetry TelemetrySink
	logger    Logger

	// published remembers the last payload per path. Entries expire after
	// the republish interval, which forces the next pass to send them again.
	published *ttlcache.Cache[string, string]

	mu          sync.RWMutex
	state       State
	tree        Tree
	shortID     string
	service     string
	settingsKey string
	stats       Stats
}

// NewPublisher creates a Publisher in the Initializing state.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.Device == nil {
		return nil, errors.New("device client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("settings store is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("bus is required")
	}

	republish := opts.RepublishInterval
	if republish <= 0 {
		republish = defaultRepublishInterval
	}

	return &Publisher{
		device:    opts.Device,
		store:     opts.Store,
		bus:       opts.Bus,
		topics:    opts.Topics,
		qos:       opts.QoS,
		meta:      opts.Metadata,
		defName:   opts.DefaultCustomName,
		exec:      opts.Executor,
		telemetry: opts.Telemetry,
		logger:    opts.Logger,
		published: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](republish),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		state: StateInitializing,
	}, nil
}

// Initialize fetches the dish identity, builds and publishes the tree and
// performs the first refresh.
//
// Steps:
//  1. Fetch DeviceInfo (fatal on transport failure or non-zero status)
//  2. Resolve the short id and service name
//  3. Build static metadata, "N/A" for absent versions
//  4. Load the custom name and watch it for external changes
//  5. Publish every attribute, the service announcement, and subscribe to
//     the custom name write topic
//  6. Enter Running and refresh once
//
// Returns:
//   - error: Wrapping ErrDeviceInfoUnavailable, ErrSettingsUnavailable or
//     ErrRegistrationFailed. The publisher stays Initializing and nothing
//     remains published.
func (p *Publisher) Initialize(ctx context.Context) error {
	if p.State() != StateInitializing {
		return ErrAlreadyInitialized
	}

	info, err := p.device.GetDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceInfoUnavailable, err)
	}
	if !info.Available() {
		return fmt.Errorf("%w: dish status %s", ErrDeviceInfoUnavailable, info.Status)
	}

	shortID := identity.Resolve(info.ID)
	service := identity.ServiceName(p.meta.ServicePrefix, shortID)
	p.logInfo("starting driver for dish", "short_id", shortID, "service", service)

	tree := Tree{
		ProcessName:     p.meta.ProcessName,
		ProcessVersion:  p.meta.ProcessVersion,
		Connection:      p.meta.Connection,
		DeviceInstance:  p.meta.DeviceInstance,
		ProductID:       p.meta.ProductID,
		ProductName:     p.meta.ProductName,
		FirmwareVersion: versionOrNA(info.SoftwareVersion),
		HardwareVersion: versionOrNA(info.HardwareVersion),
		Connected:       1,
		Serial:          info.ID,
		State:           DefaultState,
	}

	key := identity.SettingsKey(shortID, CustomNameSetting)
	p.store.SetValidator(key, validateCustomName)
	name, err := p.store.Load(ctx, key, identity.SettingsPath(shortID, CustomNameSetting), p.defName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSettingsUnavailable, err)
	}
	tree.CustomName = name

	p.mu.Lock()
	p.tree = tree
	p.shortID = shortID
	p.service = service
	p.settingsKey = key
	p.mu.Unlock()

	p.store.OnChange(key, p.handleExternalChange)

	if err := p.register(tree); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	p.mu.Lock()
	p.state = StateRunning
	p.mu.Unlock()
	p.logInfo("service registered", "service", service, "custom_name", name)

	p.Refresh(ctx)
	return nil
}

// register makes the tree visible on the bus. On failure every topic it
// already published is cleared again.
func (p *Publisher) register(tree Tree) error {
	var retained []string
	rollback := func() {
		for _, topic := range retained {
			//nolint:errcheck // Best-effort cleanup, the original error is returned
			p.bus.Publish(topic, nil, p.qos, true)
		}
		p.published.DeleteAll()
	}

	for _, attr := range tree.Attributes() {
		topic, err := p.publishAttribute(attr)
		if err != nil {
			rollback()
			return err
		}
		retained = append(retained, topic)
	}

	announceTopic := p.topics.Service(p.ServiceName())
	if err := p.announce(tree, ServiceOnline); err != nil {
		rollback()
		return err
	}
	retained = append(retained, announceTopic)

	setTopic := p.topics.AttributeSet(p.ServiceName(), PathCustomName)
	if err := p.bus.Subscribe(setTopic, p.qos, p.handleBusWrite); err != nil {
		rollback()
		return fmt.Errorf("subscribing to %s: %w", setTopic, err)
	}
	p.logDebug("subscribed to custom name writes", "topic", setTopic)
	return nil
}

// Refresh polls the dish position and publishes what changed. It never
// returns an error: transport failures are logged and leave the tree as it
// was.
func (p *Publisher) Refresh(ctx context.Context) {
	if p.State() != StateRunning {
		return
	}

	pos, err := p.device.GetPosition(ctx)
	now := time.Now()

	p.mu.Lock()
	p.stats.Cycles++
	p.stats.LastRefresh = now
	if err != nil {
		p.stats.TransportFailures++
		p.stats.LastRefreshFailed = true
		p.mu.Unlock()
		p.logError("position refresh failed, keeping previous telemetry", err)
		return
	}
	p.stats.LastRefreshFailed = false

	if pos.HasFix() {
		p.tree.Fix = 1
		p.tree.Latitude = pos.LLA.Lat
		p.tree.Longitude = pos.LLA.Lon
		p.tree.Altitude = int(pos.LLA.Alt)
		p.stats.Fixes++
	} else {
		p.tree.Fix = 0
		p.stats.NoFix++
	}
	tree := p.tree
	service := p.service
	p.mu.Unlock()

	if pos.HasFix() {
		p.logInfo("updated position",
			"lat", pos.LLA.Lat,
			"lon", pos.LLA.Lon,
			"alt", pos.LLA.Alt,
		)
	} else {
		p.logInfo("no GPS fix available from dish")
	}

	p.publishChanged(tree)

	if p.telemetry != nil {
		p.telemetry.WritePosition(service, tree.Fix == 1, tree.Latitude, tree.Longitude, tree.Altitude, now)
	}
}

// SetCustomName validates and persists a new custom name and publishes it.
// Used for writes arriving on the bus and from the API.
func (p *Publisher) SetCustomName(ctx context.Context, value string) error {
	if p.State() != StateRunning {
		return ErrNotRunning
	}

	name, err := validateCustomName(value)
	if err != nil {
		return err
	}

	p.mu.RLock()
	key := p.settingsKey
	p.mu.RUnlock()

	if err := p.store.Set(ctx, key, name); err != nil {
		return fmt.Errorf("persisting custom name: %w", err)
	}

	p.mu.Lock()
	p.tree.CustomName = name
	tree := p.tree
	p.mu.Unlock()

	p.publishChanged(tree)
	p.logInfo("custom name updated", "custom_name", name)
	return nil
}

// handleExternalChange mirrors a settings change made outside the process.
// The store already holds the value, so it is not written back.
func (p *Publisher) handleExternalChange(_, value string) {
	value, err := validateCustomName(value)
	if err != nil {
		p.logWarn("ignoring external custom name change", "error", err)
		return
	}

	p.mu.Lock()
	p.tree.CustomName = value
	tree := p.tree
	running := p.state == StateRunning
	p.mu.Unlock()

	if !running {
		return
	}
	p.publishChanged(tree)
	p.logInfo("custom name changed externally", "custom_name", value)
}

// handleBusWrite processes a write on <service>/CustomName/set.
func (p *Publisher) handleBusWrite(topic string, payload []byte) {
	value, err := mqtt.DecodeString(payload)
	if err != nil {
		p.logWarn("ignoring custom name write", "topic", topic, "error", err)
		return
	}

	apply := func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := p.SetCustomName(ctx, value); err != nil {
			p.logWarn("custom name write rejected", "topic", topic, "error", err)
		}
	}

	if p.exec == nil {
		apply()
		return
	}
	if !p.exec.Post(apply) {
		p.logWarn("dropping custom name write, loop stopped", "topic", topic)
	}
}

// Close announces the service as offline. Attribute topics stay retained.
func (p *Publisher) Close() error {
	if p.State() != StateRunning {
		return nil
	}
	return p.announce(p.Snapshot(), ServiceOffline)
}

// State returns the lifecycle state.
func (p *Publisher) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns a copy of the current tree.
func (p *Publisher) Snapshot() Tree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tree
}

// ServiceName returns the bus service name, empty before Initialize.
func (p *Publisher) ServiceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.service
}

// ShortID returns the dish short id, empty before Initialize.
func (p *Publisher) ShortID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shortID
}

// Stats returns a copy of the refresh counters.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// publishChanged publishes attributes whose payload differs from the last
// one sent, or whose last publication is older than the republish interval.
func (p *Publisher) publishChanged(tree Tree) {
	for _, attr := range tree.Attributes() {
		payload, err := mqtt.EncodeValue(attr.Value)
		if err != nil {
			p.logError("encoding attribute", err)
			continue
		}
		if item := p.published.Get(attr.Path); item != nil && item.Value() == string(payload) {
			continue
		}
		if _, err := p.publishAttribute(attr); err != nil {
			p.logWarn("publishing attribute failed", "path", attr.Path, "error", err)
		}
	}
}

// publishAttribute sends one attribute retained and records it as published.
func (p *Publisher) publishAttribute(attr Attribute) (string, error) {
	payload, err := mqtt.EncodeValue(attr.Value)
	if err != nil {
		return "", err
	}
	topic := p.topics.Attribute(p.ServiceName(), attr.Path)
	if err := p.bus.Publish(topic, payload, p.qos, true); err != nil {
		return "", fmt.Errorf("publishing %s: %w", attr.Path, err)
	}
	p.published.Set(attr.Path, string(payload), ttlcache.DefaultTTL)
	return topic, nil
}

func (p *Publisher) announce(tree Tree, status ServiceStatus) error {
	var writable []string
	for _, attr := range tree.Attributes() {
		if attr.Access == ReadWrite {
			writable = append(writable, attr.Path)
		}
	}

	msg := ServiceAnnouncement{
		Service:        p.ServiceName(),
		ShortID:        p.ShortID(),
		Status:         status,
		ProductName:    tree.ProductName,
		ProcessVersion: tree.ProcessVersion,
		Paths:          tree.Paths(),
		Writable:       writable,
		Timestamp:      time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding service announcement: %w", err)
	}
	if err := p.bus.Publish(p.topics.Service(msg.Service), payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing service announcement: %w", err)
	}
	return nil
}

// validateCustomName trims value and checks it is non-empty and at most
// MaxCustomNameLength characters.
func validateCustomName(value string) (string, error) {
	name := strings.TrimSpace(value)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCustomName)
	}
	if n := utf8.RuneCountInString(name); n > MaxCustomNameLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidCustomName, n, MaxCustomNameLength)
	}
	return name, nil
}

func (p *Publisher) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Publisher) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Publisher) logWarn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

// logError logs an error message if logger is set.
func (p *Publisher) logError(msg string, err error) {
	if p.logger != nil {
		p.logger.Error(msg, "error", err)
	}
}
