// Package loop provides the single-threaded cooperative executor the bridge
// runs on.
//
// Everything that touches the published device (refresh ticks, health
// reports, writes arriving from the bus or the API) is posted to one Loop
// and executed serially on the goroutine that called Run. Callers on other
// goroutines never touch that state directly; they Post a closure instead.
package loop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStopped is returned when work is offered to a stopped loop.
	ErrStopped = errors.New("loop: stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("loop: already running")
)

// queueSize is the number of tasks that may wait before Post blocks.
const queueSize = 64

// Logger interface for optional logging.
type Logger interface {
	Error(msg string, args ...any)
}

// Loop runs posted tasks and periodic timers one at a time.
//
// Thread Safety:
//   - Post, Every and Stop may be called from any goroutine.
//   - Tasks themselves always run on the goroutine executing Run.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	logger Logger

	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Loop. logger may be nil.
func New(logger Logger) *Loop {
	return &Loop{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post queues fn to run on the loop. It may be called before Run starts;
// queued tasks run once it does. Returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Every runs fn on the loop every interval until the returned stop function
// is called or the loop stops. A tick that arrives while the previous
// invocation is still queued or running is dropped, so invocations never
// overlap and never pile up.
func (l *Loop) Every(interval time.Duration, fn func()) (stop func()) {
	var (
		pending  atomic.Bool
		stopped  = make(chan struct{})
		stopOnce sync.Once
	)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				posted := l.Post(func() {
					defer pending.Store(false)
					select {
					case <-stopped:
						return
					default:
					}
					fn()
				})
				if !posted {
					return
				}
			case <-stopped:
				return
			case <-l.done:
				return
			}
		}
	}()

	return func() {
		stopOnce.Do(func() { close(stopped) })
	}
}

// Run executes tasks until ctx is cancelled or Stop is called. It must be
// called at most once. A panicking task is logged and does not end the loop.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			l.execute(fn)
		}
	}
}

// Stop ends Run and all timers. Tasks still queued are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error("loop task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
