package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/floranet-go/internal/logger"
)

// Config holds event bus configuration.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
		Workers:    2,
	}
}

// Bus delivers events to registered consumers on a fixed set of workers.
// Publishing never blocks; events are dropped when the buffer is full.
type Bus struct {
	eventChan chan Event
	workers   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards consumers, started and closed. TryPublish holds the read
	// lock across its send so Shutdown can close eventChan safely.
	mu        sync.RWMutex
	consumers []Consumer
	started   bool
	closed    bool

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64

	log logger.Logger
}

// NewBus creates a bus. Workers start when the first consumer registers.
func NewBus(cfg Config, log logger.Logger) *Bus {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if log == nil {
		log = logger.Global().Module("events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		eventChan: make(chan Event, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	if b == nil {
		return fmt.Errorf("event bus not initialized")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("event bus is shut down")
	}
	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}

	b.consumers = append(b.consumers, consumer)
	b.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if !b.started {
		b.started = true
		b.start()
	}
	return nil
}

// TryPublish attempts to enqueue event without blocking and reports whether
// it was accepted. A nil bus accepts nothing.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	// Fast path: nobody listening
	if b.closed || len(b.consumers) == 0 {
		return false
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventChan <- event:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Debug("event dropped due to full buffer",
			logger.String("kind", string(event.Kind)),
			logger.Uint64("observation_id", uint64(event.ObservationID)))
		return false
	}
}

func (b *Bus) start() {
	b.log.Debug("starting event bus workers", logger.Int("count", b.workers))
	for i := range b.workers {
		b.wg.Go(func() { b.worker(i) })
	}
}

func (b *Bus) worker(id int) {
	log := b.log.With(logger.Int("worker_id", id))
	for event := range b.eventChan {
		b.dispatch(event, log)
	}
	log.Debug("worker stopped")
}

func (b *Bus) dispatch(event Event, log logger.Logger) {
	b.mu.RLock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.RUnlock()

	for _, consumer := range consumers {
		b.deliver(consumer, event, log)
	}
}

func (b *Bus) deliver(consumer Consumer, event Event, log logger.Logger) {
	defer func() {
		if r := recover(); r != nil {
			b.failures.Add(1)
			log.Error("consumer panicked",
				logger.String("consumer", consumer.Name()),
				logger.Any("panic", r),
				logger.String("kind", string(event.Kind)))
		}
	}()

	if err := consumer.ProcessEvent(b.ctx, event); err != nil {
		b.failures.Add(1)
		log.Warn("consumer error",
			logger.String("consumer", consumer.Name()),
			logger.Error(err),
			logger.String("kind", string(event.Kind)),
			logger.Uint64("observation_id", uint64(event.ObservationID)))
		return
	}
	b.processed.Add(1)
}

// Shutdown stops accepting events and waits up to timeout for queued events
// to drain. Consumers still running at the deadline see their context
// cancelled.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		b.log.Debug("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		b.cancel()
		<-done
		b.log.Warn("event bus shutdown timeout exceeded", logger.Duration("timeout", timeout))
		return fmt.Errorf("event bus shutdown timeout exceeded")
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.failures.Load(),
	}
}
