package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/starlink-bridge/internal/infrastructure/mqtt"
)

// externalWriteTimeout bounds persistence of a change received from the bus.
const externalWriteTimeout = 5 * time.Second

// Bus is the subset of the MQTT client the Store uses.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// Executor runs bus callbacks on the bridge's event loop.
// *loop.Loop satisfies it.
type Executor interface {
	Post(fn func()) bool
}

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ChangeHandler is called with the new value after an external change.
type ChangeHandler func(key, value string)

// Validator checks a value before it is persisted and returns the value to
// store, which may be normalized.
type Validator func(value string) (string, error)

// Options configures a Store.
type Options struct {
	// Repository is required.
	Repository Repository

	// Bus mirrors values onto MQTT. Optional; without it the Store is
	// purely local.
	Bus Bus

	// Topics builds the settings topics. Zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS for settings publications.
	QoS byte

	// Executor receives bus callbacks. If nil they run on the bus goroutine.
	Executor Executor

	// Logger is optional.
	Logger Logger
}

// Store caches and persists settings.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Change handlers are called
//     without internal locks held.
type Store struct {
	repo   Repository
	bus    Bus
	topics mqtt.Topics
	qos    byte
	exec   Executor
	logger Logger

	mu         sync.RWMutex
	values     map[string]string
	handlers   map[string][]ChangeHandler
	validators map[string]Validator
}

// NewStore creates a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Repository == nil {
		return nil, errors.New("settings: repository is required")
	}
	return &Store{
		repo:     opts.Repository,
		bus:      opts.Bus,
		topics:   opts.Topics,
		qos:      opts.QoS,
		exec:     opts.Executor,
		logger:   opts.Logger,
		values:     make(map[string]string),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]Validator),
	}, nil
}

// Load returns the persisted value of key, creating the record with
// defaultValue if it does not exist yet. With a bus configured the value is
// published retained and external changes are subscribed to.
//
// Parameters:
//   - ctx: Bounds the storage calls
//   - key: Settings key, e.g. "1a2b3c4d/CustomName"
//   - path: Descriptive path stored alongside the value
//   - defaultValue: Seed value for a new record
//
// Returns:
//   - string: The current value
//   - error: Wrapping ErrUnavailable if storage fails
func (s *Store) Load(ctx context.Context, key, path, defaultValue string) (string, error) {
	rec, err := s.repo.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{Key: key, Path: path, Value: defaultValue, DefaultValue: defaultValue}
		if err := s.repo.Create(ctx, rec); err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.logInfo("setting created with default", "key", key, "value", defaultValue)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	s.values[key] = rec.Value
	s.mu.Unlock()

	if s.bus != nil {
		s.publish(key, rec.Value)
		topic := s.topics.SettingSet(key)
		if err := s.bus.Subscribe(topic, s.qos, s.busHandler(key)); err != nil {
			return "", fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	return rec.Value, nil
}

// Get returns the cached value of a loaded key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// OnChange registers a handler for external changes of key.
func (s *Store) OnChange(key string, handler ChangeHandler) {
	s.mu.Lock()
	s.handlers[key] = append(s.handlers[key], handler)
	s.mu.Unlock()
}

// SetValidator registers the validator run on every write of key. A later
// call replaces the previous validator.
func (s *Store) SetValidator(key string, v Validator) {
	s.mu.Lock()
	s.validators[key] = v
	s.mu.Unlock()
}

// Set writes a value from inside the process. Nothing is persisted if the
// value is unchanged. Change handlers are not called.
func (s *Store) Set(ctx context.Context, key, value string) error {
	value, err := s.validate(key, value)
	if err != nil {
		return err
	}
	changed, err := s.write(ctx, key, value)
	if err != nil || !changed {
		return err
	}
	s.logInfo("setting updated", "key", key, "value", value)
	return nil
}

// ExternalChange applies a value written from outside the process. It
// persists once if the value changed and then calls the OnChange handlers.
//
// A value rejected by the key's validator is not persisted; the current
// value is republished so bus readers converge on it.
func (s *Store) ExternalChange(ctx context.Context, key, value string) error {
	value, err := s.validate(key, value)
	if err != nil {
		s.logWarn("rejecting external settings change", "key", key, "error", err)
		if current, ok := s.Get(key); ok && s.bus != nil {
			s.publish(key, current)
		}
		return err
	}

	changed, err := s.write(ctx, key, value)
	if err != nil || !changed {
		return err
	}
	s.logInfo("setting changed externally", "key", key, "value", value)

	s.mu.RLock()
	handlers := append([]ChangeHandler(nil), s.handlers[key]...)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(key, value)
	}
	return nil
}

// validate runs the validator registered for key, if any.
func (s *Store) validate(key, value string) (string, error) {
	s.mu.RLock()
	v := s.validators[key]
	s.mu.RUnlock()

	if v == nil {
		return value, nil
	}
	normalized, err := v(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	return normalized, nil
}

// write persists and republishes value, reporting whether it changed.
func (s *Store) write(ctx context.Context, key, value string) (bool, error) {
	s.mu.RLock()
	current, loaded := s.values[key]
	s.mu.RUnlock()

	if !loaded {
		return false, fmt.Errorf("%w: %s", ErrNotLoaded, key)
	}
	if current == value {
		return false, nil
	}

	if err := s.repo.UpdateValue(ctx, key, value); err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	if s.bus != nil {
		s.publish(key, value)
	}
	return true, nil
}

func (s *Store) publish(key, value string) {
	payload, err := mqtt.EncodeValue(value)
	if err != nil {
		s.logError("encoding setting", "key", key, "error", err)
		return
	}
	if err := s.bus.Publish(s.topics.Setting(key), payload, s.qos, true); err != nil {
		s.logWarn("publishing setting failed", "key", key, "error", err)
	}
}

// busHandler decodes a write on <prefix>/settings/<key>/set and applies it
// as an external change on the executor.
func (s *Store) busHandler(key string) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		value, err := mqtt.DecodeString(payload)
		if err != nil {
			s.logWarn("ignoring settings write", "topic", topic, "error", err)
			return
		}

		apply := func() {
			ctx, cancel := context.WithTimeout(context.Background(), externalWriteTimeout)
			defer cancel()
			if err := s.ExternalChange(ctx, key, value); err != nil && !errors.Is(err, ErrInvalidValue) {
				s.logError("applying external settings change", "key", key, "error", err)
			}
		}

		if s.exec == nil {
			apply()
			return
		}
		if !s.exec.Post(apply) {
			s.logWarn("dropping settings write, loop stopped", "key", key)
		}
	}
}

func (s *Store) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
