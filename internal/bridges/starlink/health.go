package starlink

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/starlink-bridge/internal/infrastructure/mqtt"
)

// defaultHealthInterval is used when HealthReporterConfig.Interval is zero.
const defaultHealthInterval = 30 * time.Second

// Ticker schedules periodic work on the event loop.
// *loop.Loop satisfies it.
type Ticker interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthSource provides the publisher state the report is built from.
// *Publisher satisfies it.
type HealthSource interface {
	State() State
	ServiceName() string
	Stats() Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Source is the publisher being reported on.
	Source HealthSource

	// Topics builds the health topic.
	Topics mqtt.Topics

	// QoS for health publications.
	QoS byte
}

// HealthReporter manages periodic health status reporting.
// Reports run on the event loop, so they never overlap a refresh.
type HealthReporter struct {
	instanceID string
	version    string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher
	source     HealthSource
	topics     mqtt.Topics
	qos        byte

	stop     func()
	stopMu   sync.Mutex
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		instanceID: uuid.NewString(),
		version:    cfg.Version,
		startTime:  time.Now(),
		interval:   interval,
		publisher:  cfg.Publisher,
		source:     cfg.Source,
		topics:     cfg.Topics,
		qos:        cfg.QoS,
	}
}

// Start publishes the current status and then reports every interval on
// the ticker. Call Stop to shut down.
func (h *HealthReporter) Start(t Ticker) {
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	stop := t.Every(h.interval, func() {
		if err := h.PublishNow(); err != nil {
			h.logError("failed to publish health", err)
		}
	})

	h.stopMu.Lock()
	h.stop = stop
	h.stopMu.Unlock()
}

// Stop cancels periodic reporting and publishes a final "stopping" status.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		h.stopMu.Lock()
		stop := h.stop
		h.stopMu.Unlock()
		if stop != nil {
			stop()
		}

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// InstanceID returns the id identifying this process run.
func (h *HealthReporter) InstanceID() string {
	return h.instanceID
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.Status()
	return h.publishStatus(status, reason)
}

// Status evaluates the current bridge status.
func (h *HealthReporter) Status() (HealthStatus, string) {
	if h.source == nil || h.source.State() != StateRunning {
		return HealthStarting, "initializing"
	}
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.source.Stats().LastRefreshFailed {
		return HealthDegraded, "dish unreachable"
	}
	return HealthHealthy, ""
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil || h.source == nil {
		return nil
	}

	service := h.source.ServiceName()
	if service == "" {
		// Nothing to report against before the service name is known.
		return nil
	}

	msg := NewHealthMessage(service, h.instanceID, h.version, status, h.source.Stats(), h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.topics.Health(service), payload, h.qos, true)
}

// logError logs an error if logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
