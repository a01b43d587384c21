package connectivity

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
)

// DrainFunc replays one queue. Overlap protection is the callee's concern.
type DrainFunc func(ctx context.Context, name queue.Name)

// Status is a point-in-time view for the CLI.
type Status struct {
	Online         bool
	Pending        map[queue.Name]int
	LastTransition time.Time
	LastProbe      time.Time
	LastProbeError string
}

// Monitor owns the station's online/offline state.
type Monitor struct {
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	online         bool
	queues         []*queue.Queue
	drain          DrainFunc
	callbacks      []func(online bool)
	lastTransition time.Time
	lastProbe      time.Time
	lastProbeErr   string
	baseCtx        context.Context

	drains sync.WaitGroup
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInitialOnline sets the state before the first probe. The default is
// offline, so the first successful probe counts as a transition and replays
// anything left over from a previous run.
func WithInitialOnline(online bool) MonitorOption {
	return func(m *Monitor) {
		m.online = online
	}
}

// WithClock replaces time.Now (primarily for tests).
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor constructs a monitor. ctx bounds every drain it starts.
func NewMonitor(ctx context.Context, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Monitor{
		logger:  logging.NewComponentLogger(logger, "connectivity"),
		now:     time.Now,
		baseCtx: ctx,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterQueue adds q to the set drained on reconnect.
func (m *Monitor) RegisterQueue(q *queue.Queue) {
	if q == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = append(m.queues, q)
}

// SetDrainer installs the function called once per queue on reconnect.
func (m *Monitor) SetDrainer(fn DrainFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drain = fn
}

// OnTransition registers fn for every online/offline change. Callbacks run
// synchronously on the goroutine that observed the change.
func (m *Monitor) OnTransition(fn func(online bool)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Pending returns the live size of every registered queue.
func (m *Monitor) Pending() map[queue.Name]int {
	m.mu.Lock()
	queues := slices.Clone(m.queues)
	m.mu.Unlock()
	out := make(map[queue.Name]int, len(queues))
	for _, q := range queues {
		out[q.Name()] = q.Size()
	}
	return out
}

// TotalPending sums Pending.
func (m *Monitor) TotalPending() int {
	total := 0
	for _, n := range m.Pending() {
		total += n
	}
	return total
}

// Status snapshots the monitor.
func (m *Monitor) Status() Status {
	pending := m.Pending()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Online:         m.online,
		Pending:        pending,
		LastTransition: m.lastTransition,
		LastProbe:      m.lastProbe,
		LastProbeError: m.lastProbeErr,
	}
}

// RecordProbe stores the outcome of a probe and applies it.
func (m *Monitor) RecordProbe(err error) {
	m.mu.Lock()
	m.lastProbe = m.now()
	if err != nil {
		m.lastProbeErr = err.Error()
	} else {
		m.lastProbeErr = ""
	}
	m.mu.Unlock()
	m.SetOnline(err == nil)
}

// SetOnline applies a new state. A change fires the callbacks; a change to
// online also starts exactly one drain per registered queue.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.lastTransition = m.now()
	callbacks := slices.Clone(m.callbacks)
	queues := slices.Clone(m.queues)
	drain := m.drain
	ctx := m.baseCtx
	m.mu.Unlock()

	pending := 0
	for _, q := range queues {
		pending += q.Size()
	}
	state := "offline"
	if online {
		state = "online"
	}
	m.logger.Info("connectivity changed",
		logging.String(logging.FieldEventType, "connectivity_"+state),
		logging.Bool("online", online),
		logging.Int("pending", pending),
	)

	for _, fn := range callbacks {
		fn(online)
	}

	if !online || drain == nil {
		return
	}
	sort.SliceStable(queues, func(i, j int) bool { return queues[i].Name() < queues[j].Name() })
	for _, q := range queues {
		name := q.Name()
		m.drains.Add(1)
		go func() {
			defer m.drains.Done()
			drain(ctx, name)
		}()
	}
}

// Wait blocks until every drain started by SetOnline has returned.
func (m *Monitor) Wait() {
	m.drains.Wait()
}
