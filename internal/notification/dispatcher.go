package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Options tunes a Dispatcher. Zero values take the defaults.
type Options struct {
	Workers        int
	QueueSize      int
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BreakerFailures is the number of consecutive transport failures that
	// opens the circuit.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (o *Options) defaults() {
	if o.Workers < 1 {
		o.Workers = 2
	}
	if o.QueueSize < 1 {
		o.QueueSize = 256
	}
	if o.MaxTries == 0 {
		o.MaxTries = 4
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerTimeout == 0 {
		o.BreakerTimeout = 30 * time.Second
	}
}

// Dispatcher delivers messages from a bounded queue on a pool of workers.
// Each delivery is retried with exponential backoff behind a circuit
// breaker shared by all workers.
type Dispatcher struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker
	opts    Options
	logger  *zap.Logger

	queue chan Message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent   metric.Int64Counter
	failed metric.Int64Counter
}

// NewDispatcher creates a dispatcher. Call Start before Notify.
func NewDispatcher(sender Sender, logger *zap.Logger, opts Options) *Dispatcher {
	opts.defaults()

	d := &Dispatcher{
		sender: sender,
		opts:   opts,
		logger: logger,
		queue:  make(chan Message, opts.QueueSize),
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-sender",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		// A rejected message says nothing about the transport's health.
		IsSuccessful: func(err error) bool {
			var perm *backoff.PermanentError
			return err == nil || errors.As(err, &perm)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	meter := otel.Meter("rentify/notification")
	d.sent, _ = meter.Int64Counter("notifications.sent", metric.WithDescription("Notifications delivered"))
	d.failed, _ = meter.Int64Counter("notifications.failed", metric.WithDescription("Notifications dropped or undeliverable"))
	return d
}

// Start launches the workers. They stop once Close has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range d.queue {
				d.deliver(ctx, msg)
			}
		}()
	}
}

// Notify enqueues messages without blocking. Messages that do not fit in
// the queue, or arrive after Close, are dropped with a warning.
func (d *Dispatcher) Notify(ctx context.Context, msgs ...Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, msg := range msgs {
		if msg.To == "" {
			continue
		}
		if d.closed {
			d.drop(ctx, msg, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- msg:
		default:
			d.drop(ctx, msg, "queue full")
		}
	}
}

// Close stops accepting messages, waits for queued ones to be attempted
// and returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff
	b.MaxInterval = d.opts.MaxBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.sender.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.opts.MaxTries))

	attrs := metric.WithAttributes(attribute.String("kind", string(msg.Kind)))
	if err != nil {
		d.failed.Add(ctx, 1, attrs)
		d.logger.Error("notification delivery failed",
			zap.String("to", msg.To),
			zap.String("kind", string(msg.Kind)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	d.sent.Add(ctx, 1, attrs)
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, reason string) {
	d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(msg.Kind))))
	d.logger.Warn("notification dropped",
		zap.String("to", msg.To),
		zap.String("kind", string(msg.Kind)),
		zap.String("reason", reason),
	)
}
