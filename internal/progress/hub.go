package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls observer buffering and sink batching for the Hub.
//   - ObserverBuffer: per-observer channel capacity (default 64).
//   - BufferSize: size of the sink channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 1000).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	ObserverBuffer int
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
	// Now overrides the clock used for idle replays.
	Now func() time.Time
}

const (
	defaultObserverBuffer = 64
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Subscription is one attached observer.
type Subscription struct {
	hub *Hub
	ch  chan Event
}

// Events returns the observer channel. It is closed when the observer is
// detached, dropped for falling behind, or the hub closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	if s != nil && s.hub != nil {
		s.hub.Detach(s)
	}
}

// Hub delivers Events to attached observers and, in batches, to sinks. It is
// safe for concurrent use by multiple goroutines and never blocks callers.
type Hub struct {
	cfg         Config
	sinks       []Sink
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
	closed      atomic.Bool

	mu               sync.Mutex
	observers        map[*Subscription]struct{}
	latest           *Event
	droppedObservers atomic.Int64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.ObserverBuffer <= 0 {
		cfg.ObserverBuffer = defaultObserverBuffer
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		events:      make(chan Event, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
		observers:   make(map[*Subscription]struct{}),
	}
	go h.run()
	return h
}

// Attach registers an observer. Its channel already holds the replay: the
// latest event of the active run, or an idle event when nothing is running.
func (h *Hub) Attach() *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Event, h.cfg.ObserverBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		close(sub.ch)
		return sub
	}
	if h.latest != nil {
		sub.ch <- *h.latest
	} else {
		sub.ch <- Idle(h.cfg.Now())
	}
	h.observers[sub] = struct{}{}
	return sub
}

// Detach unregisters an observer and closes its channel. Detaching twice, or
// detaching an observer that was already dropped, is a no-op.
func (h *Hub) Detach(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[sub]; !ok {
		return
	}
	delete(h.observers, sub)
	close(sub.ch)
}

// Observers returns the number of attached observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// DroppedObservers returns how many observers were dropped for falling behind.
func (h *Hub) DroppedObservers() int64 {
	return h.droppedObservers.Load()
}

// Emit records evt as the latest snapshot, delivers it to every observer and
// enqueues it for the sinks. It never blocks: an observer whose buffer is full
// is dropped, and a full sink buffer drops the event with a rate-limited
// warning.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	h.mu.Lock()
	if evt.Type.Terminal() || evt.Type == TypeIdle {
		h.latest = nil
	} else {
		snapshot := evt
		h.latest = &snapshot
	}
	for sub := range h.observers {
		select {
		case sub.ch <- evt:
		default:
			delete(h.observers, sub)
			close(sub.ch)
			h.droppedObservers.Add(1)
			h.logger.Warn("dropping slow progress observer",
				zap.String("run_id", evt.RunID.String()),
				zap.Int("buffer", h.cfg.ObserverBuffer),
			)
		}
	}
	h.enqueue(evt)
	h.mu.Unlock()
}

func (h *Hub) enqueue(evt Event) {
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		if h.dropLimiter.Allow(time.Now()) {
			count := h.dropped.Swap(0)
			h.logger.Warn("progress events dropped due to backpressure", zap.Int64("dropped", count))
		}
	}
}

// Close detaches every observer, drains remaining events, flushes sinks, and
// blocks until the background goroutine exits. It is safe to call multiple
// times; subsequent calls are ignored once shutdown begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed.Store(true)
		for sub := range h.observers {
			delete(h.observers, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case evt := <-h.events:
			batch = h.enqueueEvent(batch, evt, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.handleStop(batch, timer, &timerActive)
			return
		}
	}
}

func (h *Hub) enqueueEvent(batch []Event, evt Event, timer *time.Timer, timerActive *bool) []Event {
	batch = append(batch, evt)
	if len(batch) >= h.cfg.MaxBatchEvents {
		h.flush(batch)
		batch = batch[:0]
		h.stopTimer(timer, timerActive)
	} else if h.cfg.MaxBatchWait > 0 {
		h.resetTimer(timer, timerActive)
	}
	return batch
}

func (h *Hub) handleStop(batch []Event, timer *time.Timer, timerActive *bool) {
	h.stopTimer(timer, timerActive)
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) resetTimer(timer *time.Timer, timerActive *bool) {
	if *timerActive {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	timer.Reset(h.cfg.MaxBatchWait)
	*timerActive = true
}

func (h *Hub) stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
