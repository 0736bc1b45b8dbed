// Package feedback routes client feedback to the callbacks registered for it.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/interactive-markers/pkg/core"
)

var (
	// ErrQueueFull is returned by a buffered, non-blocking dispatcher that has no room left.
	ErrQueueFull = errors.New("feedback queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Resolver records feedback against its marker and returns the callback that
// should receive it. ok is false when the marker is unknown or nothing is
// registered. Resolvers must not invoke the callback themselves.
type Resolver interface {
	ResolveFeedback(fb core.Feedback) (fn core.FeedbackFunc, ok bool)
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes dispatch async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered dispatcher block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around every callback.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher delivers feedback to callbacks. Callbacks run with no registry
// lock held, on the caller's goroutine or, when buffered, on one worker
// goroutine in arrival order.
type Dispatcher struct {
	resolver Resolver
	logger   Logger
	handle   func(core.Feedback) error

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	unhandled metric.Int64Counter

	queue chan core.Feedback

	// mu guards closed and sending; idle is signalled when the last
	// in-flight Dispatch returns.
	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	sending int

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Dispatcher resolving callbacks through resolver.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(resolver Resolver, logger Logger, opts ...Option) (*Dispatcher, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	d := &Dispatcher{
		resolver: resolver,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	if cfg.bufferSize > 0 {
		d.queue = make(chan core.Feedback, cfg.bufferSize)
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}

	handler := d.deliver
	if cfg.logged {
		handler = d.withLogging(handler)
	}
	if d.queue != nil {
		handler = d.withBuffer(cfg.blocking, handler)
	} else {
		close(d.done)
	}
	d.handle = handler

	return d, nil
}

func (d *Dispatcher) initMetrics() error {
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"feedback.queue.size",
		metric.WithDescription("Current number of feedback messages in queue"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			if d.queue != nil {
				o.ObserveInt64(d.queueSize, int64(len(d.queue)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"feedback.processed",
		metric.WithDescription("Feedback messages delivered to a callback"),
	)
	if err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"feedback.dropped",
		metric.WithDescription("Feedback messages dropped due to full queue"),
	)
	if err != nil {
		return fmt.Errorf("creating dropped counter: %w", err)
	}

	d.unhandled, err = m.Int64Counter(
		"feedback.unhandled",
		metric.WithDescription("Feedback messages with no marker or callback to receive them"),
	)
	if err != nil {
		return fmt.Errorf("creating unhandled counter: %w", err)
	}

	return nil
}

// Dispatch routes fb to its callback. Feedback for an unknown marker, or one
// without a matching callback, is dropped and nil is returned.
func (d *Dispatcher) Dispatch(fb core.Feedback) error {
	if !d.begin() {
		return ErrClosed
	}
	defer d.end()
	return d.handle(fb)
}

// Close stops accepting feedback and waits until queued feedback is delivered.
// Feedback accepted by a Dispatch that raced with Close is delivered too.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
	})
	<-d.done
}

func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.sending++
	return true
}

func (d *Dispatcher) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sending--
	if d.sending == 0 {
		d.idle.Broadcast()
	}
}

// waitIdle blocks until no Dispatch is between begin and end.
func (d *Dispatcher) waitIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.sending > 0 {
		d.idle.Wait()
	}
}

func (d *Dispatcher) deliver(fb core.Feedback) error {
	kindAttr := attribute.String("kind", string(fb.Kind))

	fn, ok := d.resolver.ResolveFeedback(fb)
	if !ok {
		d.unhandled.Add(context.Background(), 1, metric.WithAttributes(kindAttr))
		return nil
	}

	if err := invoke(fn, fb); err != nil {
		d.logger.Error("feedback callback panicked", "marker", fb.MarkerName, "kind", fb.Kind, "error", err)
		return err
	}
	d.processed.Add(context.Background(), 1, metric.WithAttributes(kindAttr))
	return nil
}

func invoke(fn core.FeedbackFunc, fb core.Feedback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback for %q: %v", fb.MarkerName, r)
		}
	}()
	fn(fb)
	return nil
}

func (d *Dispatcher) withBuffer(blocking bool, h func(core.Feedback) error) func(core.Feedback) error {
	run := func(fb core.Feedback) {
		if err := h(fb); err != nil {
			d.logger.Debug("queued feedback not delivered", "marker", fb.MarkerName, "kind", fb.Kind, "error", err)
		}
	}

	go func() {
		defer close(d.done)
		for {
			select {
			case fb := <-d.queue:
				run(fb)
			case <-d.stop:
				// enqueues that passed the closed check land before the drain
				d.waitIdle()
				for {
					select {
					case fb := <-d.queue:
						run(fb)
					default:
						return
					}
				}
			}
		}
	}()

	if blocking {
		return func(fb core.Feedback) error {
			select {
			case d.queue <- fb:
				return nil
			case <-d.stop:
				return ErrClosed
			}
		}
	}

	return func(fb core.Feedback) error {
		select {
		case d.queue <- fb:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(fb.Kind))))
			return fmt.Errorf("feedback for %q: %w", fb.MarkerName, ErrQueueFull)
		}
	}
}

func (d *Dispatcher) withLogging(h func(core.Feedback) error) func(core.Feedback) error {
	return func(fb core.Feedback) error {
		start := time.Now()
		d.logger.Debug("handling feedback", "marker", fb.MarkerName, "control", fb.ControlName, "kind", fb.Kind, "client", fb.ClientID)

		err := h(fb)

		if err != nil {
			d.logger.Error("feedback failed", "marker", fb.MarkerName, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("feedback complete", "marker", fb.MarkerName, "duration", time.Since(start))
		}

		return err
	}
}
