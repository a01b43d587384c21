package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

const (
	defaultAttemptTimeout = 5 * time.Second
	// persistTimeout bounds the fallback write, which outlives the caller's context.
	persistTimeout = 5 * time.Second
)

// Outcome reports what happened to a submitted event.
type Outcome int

const (
	// Delivered means the relay acknowledged the event.
	Delivered Outcome = iota
	// QueuedOffline means no attempt was made because the station was offline.
	QueuedOffline
	// QueuedAfterFailure means the single attempt failed.
	QueuedAfterFailure
	// NotQueued means the event could not be routed or encoded and was
	// neither delivered nor queued.
	NotQueued
)

// Queued reports whether the event is waiting in the offline queue.
func (o Outcome) Queued() bool {
	return o == QueuedOffline || o == QueuedAfterFailure
}

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case QueuedOffline:
		return "queued_offline"
	case QueuedAfterFailure:
		return "queued_after_failure"
	case NotQueued:
		return "not_queued"
	default:
		return "unknown"
	}
}

// Connectivity answers whether an attempt is worth making.
type Connectivity interface {
	Online() bool
}

// Notifier receives backlog and drain alerts.
type Notifier interface {
	NotifyBacklog(ctx context.Context, queue string, pending int) error
	NotifyDrainCompleted(ctx context.Context, queue string, delivered int) error
	NotifyStorageDegraded(ctx context.Context, err error, contextLabel string) error
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Queue     queue.Name
	Delivered int
	Remaining int
	// Skipped is set when another drain of the same queue was already running.
	Skipped bool
	// Err is the delivery failure that stopped the pass, if any.
	Err error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.NewComponentLogger(logger, "submit")
	}
}

// WithNotifier enables backlog and drain alerts.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithAttemptTimeout bounds each delivery attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSource sets the source tag added to every payload.
func WithSource(source string) Option {
	return func(p *Pipeline) {
		p.source = source
	}
}

// WithBacklogThreshold alerts once a queue reaches n items. Zero disables it.
func WithBacklogThreshold(n int) Option {
	return func(p *Pipeline) {
		p.backlogThreshold = n
	}
}

// Pipeline routes events to the relay or the offline queue.
type Pipeline struct {
	transport        Transport
	connectivity     Connectivity
	queues           map[queue.Name]*queue.Queue
	notifier         Notifier
	logger           *slog.Logger
	timeout          time.Duration
	source           string
	backlogThreshold int

	mu       sync.Mutex
	draining map[queue.Name]bool
}

// New builds a pipeline over the given queues.
func New(transport Transport, connectivity Connectivity, queues []*queue.Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport:    transport,
		connectivity: connectivity,
		queues:       make(map[queue.Name]*queue.Queue, len(queues)),
		notifier:     nopNotifier{},
		logger:       logging.NewComponentLogger(nil, "submit"),
		timeout:      defaultAttemptTimeout,
		draining:     make(map[queue.Name]bool),
	}
	for _, q := range queues {
		if q != nil {
			p.queues[q.Name()] = q
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Queue returns the registered queue for name.
func (p *Pipeline) Queue(name queue.Name) (*queue.Queue, bool) {
	q, ok := p.queues[name]
	return q, ok
}

// Pending returns the size of every registered queue.
func (p *Pipeline) Pending() map[queue.Name]int {
	out := make(map[queue.Name]int, len(p.queues))
	for name, q := range p.queues {
		out[name] = q.Size()
	}
	return out
}

// Submit makes at most one delivery attempt and enqueues the event when the
// attempt is skipped or fails. With a queued outcome a non-nil error means
// the event is held in memory only. NotQueued always comes with an error.
func (p *Pipeline) Submit(ctx context.Context, ev events.Event) (Outcome, error) {
	name := queue.Name(ev.Kind())
	ctx = services.WithEventID(services.WithQueue(ctx, string(name)), ev.ID())
	logger := logging.WithContext(ctx, p.logger)

	q, ok := p.queues[name]
	if !ok {
		return NotQueued, services.Wrap(services.ErrConfiguration, "submit", "route", fmt.Sprintf("no queue registered for %s", name), nil)
	}
	payload, err := ev.Payload(p.source)
	if err != nil {
		return NotQueued, services.Wrap(services.ErrValidation, "submit", "encode", "", err)
	}

	if p.connectivity != nil && !p.connectivity.Online() {
		logger.Info("offline; event queued without attempt",
			logging.String(logging.FieldEventType, "event_queued_offline"),
		)
		return QueuedOffline, p.enqueue(ctx, q, ev.ID(), payload)
	}

	if err := p.attempt(ctx, ev.Kind(), ev.ID(), payload); err != nil {
		logging.WarnWithContext(logger, "delivery failed; event queued", "event_queued_after_failure",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldImpact, "event will be retried when connectivity returns"),
			logging.String(logging.FieldErrorHint, "check relay reachability with uukscan doctor"),
		)
		return QueuedAfterFailure, p.enqueue(ctx, q, ev.ID(), payload)
	}

	logger.Info("event delivered", logging.String(logging.FieldEventType, "event_delivered"))
	return Delivered, nil
}

func (p *Pipeline) attempt(ctx context.Context, kind events.Kind, eventID string, payload []byte) error {
	if p.transport == nil {
		return services.Wrap(services.ErrConfiguration, "submit", "attempt", "no transport configured", nil)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.transport.Deliver(attemptCtx, kind, eventID, payload)
}

// enqueue persists even when ctx is already cancelled; a shutdown that
// aborted the attempt must not also drop the event.
func (p *Pipeline) enqueue(ctx context.Context, q *queue.Queue, eventID string, payload []byte) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	_, err := q.Enqueue(persistCtx, eventID, payload)
	size := q.Size()
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "event held in memory only", "queue_persistence_degraded",
			logging.Error(err),
			logging.Alert("storage"),
			logging.String(logging.FieldImpact, "event is lost if the station restarts before it syncs"),
			logging.String(logging.FieldErrorHint, "check free disk space, then run uukscan queue export"),
		)
		p.notifyAsync(ctx, func(nctx context.Context) error {
			return p.notifier.NotifyStorageDegraded(nctx, err, "enqueue "+string(q.Name()))
		})
	}
	if p.backlogThreshold > 0 && size == p.backlogThreshold {
		p.notifyAsync(ctx, func(nctx context.Context) error {
			return p.notifier.NotifyBacklog(nctx, string(q.Name()), size)
		})
	}
	return err
}

func (p *Pipeline) notifyAsync(ctx context.Context, send func(context.Context) error) {
	nctx := context.WithoutCancel(ctx)
	go func() {
		if err := send(nctx); err != nil {
			p.logger.Debug("notification failed", logging.Error(err))
		}
	}()
}

// Drain replays name oldest first until it is empty or an attempt fails. The
// failed item stays at the front. A drain already running for name makes
// this call return at once with Skipped set.
func (p *Pipeline) Drain(ctx context.Context, name queue.Name) DrainResult {
	result := DrainResult{Queue: name}
	q, ok := p.queues[name]
	if !ok {
		result.Err = services.Wrap(services.ErrConfiguration, "submit", "drain", fmt.Sprintf("no queue registered for %s", name), nil)
		return result
	}

	p.mu.Lock()
	if p.draining[name] {
		p.mu.Unlock()
		result.Skipped = true
		result.Remaining = q.Size()
		return result
	}
	p.draining[name] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.draining, name)
		p.mu.Unlock()
	}()

	ctx = services.WithQueue(ctx, string(name))
	logger := logging.WithContext(ctx, p.logger)

	for {
		item, ok := q.PeekFront()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		if err := p.attempt(ctx, events.Kind(name), item.EventID, item.Payload); err != nil {
			result.Err = err
			logger.Info("drain stopped at first failure",
				logging.String(logging.FieldEventID, item.EventID),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err),
			)
			break
		}
		if _, err := q.PopFront(ctx); err != nil {
			if !errors.Is(err, queue.ErrPersistenceDegraded) {
				result.Err = err
				break
			}
			logging.WarnWithContext(logger, "delivered event could not be removed from disk", "queue_persistence_degraded",
				logging.String(logging.FieldEventID, item.EventID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "event may be delivered again after restart"),
			)
		}
		result.Delivered++
	}

	result.Remaining = q.Size()
	if result.Delivered > 0 {
		logger.Info("queue drained",
			logging.String(logging.FieldEventType, "queue_drained"),
			logging.Int("delivered", result.Delivered),
			logging.Int("remaining", result.Remaining),
		)
		if result.Remaining == 0 {
			delivered := result.Delivered
			p.notifyAsync(ctx, func(nctx context.Context) error {
				return p.notifier.NotifyDrainCompleted(nctx, string(name), delivered)
			})
		}
	}
	return result
}

// DrainAll drains every registered queue concurrently. Ordering holds within
// a queue, not across queues.
func (p *Pipeline) DrainAll(ctx context.Context) map[queue.Name]DrainResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[queue.Name]DrainResult, len(p.queues))
	)
	for name := range p.queues {
		wg.Add(1)
		go func(name queue.Name) {
			defer wg.Done()
			res := p.Drain(ctx, name)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

type nopNotifier struct{}

func (nopNotifier) NotifyBacklog(context.Context, string, int) error           { return nil }
func (nopNotifier) NotifyDrainCompleted(context.Context, string, int) error    { return nil }
func (nopNotifier) NotifyStorageDegraded(context.Context, error, string) error { return nil }
