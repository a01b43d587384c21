package submit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/testsupport"
)

type fakeConnectivity struct{ online atomic.Bool }

func (f *fakeConnectivity) Online() bool { return f.online.Load() }

func newConnectivity(online bool) *fakeConnectivity {
	c := &fakeConnectivity{}
	c.online.Store(online)
	return c
}

// scriptedTransport fails any event whose id is in failing and records the
// order of every attempt.
type scriptedTransport struct {
	mu       sync.Mutex
	failing  map[string]error
	attempts []string
	block    chan struct{}
	entered  chan struct{}
}

func (s *scriptedTransport) Deliver(ctx context.Context, _ events.Kind, eventID string, _ []byte) error {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, eventID)
	if err, ok := s.failing[eventID]; ok {
		return err
	}
	return nil
}

func (s *scriptedTransport) setFailing(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = make(map[string]error, len(ids))
	for _, id := range ids {
		s.failing[id] = services.Wrap(services.ErrServerRejected, "test", "post", "status 500", nil)
	}
}

func (s *scriptedTransport) attempted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func newScan(t *testing.T, ticket string) events.ScanEvent {
	t.Helper()
	ev, err := events.NewScanEvent(events.ScanInput{TicketID: ticket, ExhibitorID: "EX1", Consent: true})
	if err != nil {
		t.Fatalf("NewScanEvent: %v", err)
	}
	return ev
}

func setup(t *testing.T, online bool) (*submit.Pipeline, *scriptedTransport, *queue.Queue, *fakeConnectivity) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanQ := testsupport.MustQueue(t, store, queue.NameScan)
	sessionQ := testsupport.MustQueue(t, store, queue.NameSession)
	transport := &scriptedTransport{}
	conn := newConnectivity(online)
	p := submit.New(transport, conn, []*queue.Queue{scanQ, sessionQ}, submit.WithAttemptTimeout(time.Second))
	return p, transport, scanQ, conn
}

func TestSubmitDeliversOnline(t *testing.T) {
	p, transport, q, _ := setup(t, true)
	ev := newScan(t, "A")

	outcome, err := p.Submit(context.Background(), ev)
	if err != nil || outcome != submit.Delivered {
		t.Fatalf("expected Delivered, got %v err=%v", outcome, err)
	}
	if q.Size() != 0 {
		t.Fatalf("delivered event must not be queued, size=%d", q.Size())
	}
	if got := transport.attempted(); len(got) != 1 || got[0] != ev.ID() {
		t.Fatalf("expected exactly one attempt, got %v", got)
	}
}

func TestSubmitOfflineSkipsAttempt(t *testing.T) {
	p, transport, q, _ := setup(t, false)

	outcome, err := p.Submit(context.Background(), newScan(t, "A"))
	if err != nil || outcome != submit.QueuedOffline {
		t.Fatalf("expected QueuedOffline, got %v err=%v", outcome, err)
	}
	if len(transport.attempted()) != 0 {
		t.Fatal("offline submit must not attempt delivery")
	}
	if q.Size() != 1 {
		t.Fatalf("expected one queued event, size=%d", q.Size())
	}
}

func TestSubmitFailureQueuesExactlyOnce(t *testing.T) {
	p, transport, q, _ := setup(t, true)
	ev := newScan(t, "A")
	transport.setFailing(ev.ID())

	outcome, err := p.Submit(context.Background(), ev)
	if err != nil || outcome != submit.QueuedAfterFailure {
		t.Fatalf("expected QueuedAfterFailure, got %v err=%v", outcome, err)
	}
	if !outcome.Queued() {
		t.Fatal("expected Queued() to be true")
	}
	if len(transport.attempted()) != 1 {
		t.Fatalf("expected one attempt, got %d", len(transport.attempted()))
	}
	items := q.Items()
	if len(items) != 1 || items[0].EventID != ev.ID() {
		t.Fatalf("expected the failed event queued once, got %#v", items)
	}
}

func TestSubmitTimeoutQueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustQueue(t, store, queue.NameScan)
	transport := &scriptedTransport{block: make(chan struct{})}
	p := submit.New(transport, newConnectivity(true), []*queue.Queue{q}, submit.WithAttemptTimeout(20*time.Millisecond))

	outcome, err := p.Submit(context.Background(), newScan(t, "A"))
	if err != nil || outcome != submit.QueuedAfterFailure {
		t.Fatalf("expected timeout to queue, got %v err=%v", outcome, err)
	}
	if q.Size() != 1 {
		t.Fatalf("expected one queued event, size=%d", q.Size())
	}
}

func TestSubmitReportsDegradedPersistence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q := testsupport.MustQueue(t, store, queue.NameScan)
	_ = store.Close()
	p := submit.New(&scriptedTransport{}, newConnectivity(false), []*queue.Queue{q})

	outcome, err := p.Submit(context.Background(), newScan(t, "A"))
	if outcome != submit.QueuedOffline {
		t.Fatalf("expected QueuedOffline, got %v", outcome)
	}
	if !errors.Is(err, queue.ErrPersistenceDegraded) {
		t.Fatalf("expected ErrPersistenceDegraded warning, got %v", err)
	}
	if q.Size() != 1 {
		t.Fatal("event must stay queued in memory")
	}
}

func TestSubmitPersistsWhenCallerIsCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q := testsupport.MustQueue(t, store, queue.NameScan)
	transport := &scriptedTransport{block: make(chan struct{})}
	p := submit.New(transport, newConnectivity(true), []*queue.Queue{q})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := newScan(t, "A")
	outcome, err := p.Submit(ctx, ev)
	if err != nil || outcome != submit.QueuedAfterFailure {
		t.Fatalf("expected QueuedAfterFailure without warning, got %v err=%v", outcome, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	items := testsupport.MustQueue(t, reopened, queue.NameScan).Items()
	if len(items) != 1 || items[0].EventID != ev.ID() {
		t.Fatalf("expected the event on disk after restart, got %#v", items)
	}
}

func TestSubmitUnroutableEventIsNotQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustQueue(t, store, queue.NameScan)
	transport := &scriptedTransport{}
	p := submit.New(transport, newConnectivity(true), []*queue.Queue{q})

	report, err := events.NewSessionReport(events.SessionInput{SessionName: "Keynote", QRCount: 2})
	if err != nil {
		t.Fatalf("NewSessionReport: %v", err)
	}
	outcome, err := p.Submit(context.Background(), report)
	if outcome != submit.NotQueued {
		t.Fatalf("expected NotQueued, got %v", outcome)
	}
	if outcome.Queued() {
		t.Fatal("NotQueued must not report as queued")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(transport.attempted()) != 0 || q.Size() != 0 {
		t.Fatalf("nothing should be attempted or queued, attempts=%v size=%d", transport.attempted(), q.Size())
	}
}

func TestDrainIsFIFOAndStopsAtFirstFailure(t *testing.T) {
	p, transport, q, conn := setup(t, false)
	ctx := context.Background()

	var ids []string
	for _, ticket := range []string{"A", "B", "C"} {
		ev := newScan(t, ticket)
		ids = append(ids, ev.ID())
		if _, err := p.Submit(ctx, ev); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	conn.online.Store(true)

	// Only A succeeds.
	transport.setFailing(ids[1], ids[2])
	res := p.Drain(ctx, queue.NameScan)
	if res.Delivered != 1 || res.Remaining != 2 || res.Err == nil {
		t.Fatalf("unexpected first drain result %+v", res)
	}
	if !errors.Is(res.Err, services.ErrServerRejected) {
		t.Fatalf("expected ErrServerRejected, got %v", res.Err)
	}
	assertQueue(t, q, ids[1], ids[2])

	// B fails again; nothing moves.
	transport.setFailing(ids[1])
	res = p.Drain(ctx, queue.NameScan)
	if res.Delivered != 0 || res.Remaining != 2 {
		t.Fatalf("unexpected second drain result %+v", res)
	}
	assertQueue(t, q, ids[1], ids[2])

	want := []string{ids[0], ids[1], ids[1]}
	got := transport.attempted()
	if len(got) != len(want) {
		t.Fatalf("attempts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attempts = %v, want %v", got, want)
		}
	}

	transport.setFailing()
	res = p.Drain(ctx, queue.NameScan)
	if res.Delivered != 2 || res.Remaining != 0 || res.Err != nil {
		t.Fatalf("unexpected final drain result %+v", res)
	}
}

func TestDrainIsSingleFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	q := testsupport.MustQueue(t, store, queue.NameScan)
	transport := &scriptedTransport{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := submit.New(transport, newConnectivity(true), []*queue.Queue{q}, submit.WithAttemptTimeout(5*time.Second))
	ctx := context.Background()
	if _, err := q.Enqueue(ctx, "e1", []byte(`{"ticket_id":"A"}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first := make(chan submit.DrainResult, 1)
	go func() { first <- p.Drain(ctx, queue.NameScan) }()

	select {
	case <-transport.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never attempted delivery")
	}
	second := p.Drain(ctx, queue.NameScan)
	if !second.Skipped || second.Remaining != 1 {
		t.Fatalf("expected overlapping drain to be skipped, got %+v", second)
	}
	close(transport.block)

	res := <-first
	if res.Delivered != 1 || res.Remaining != 0 {
		t.Fatalf("unexpected first drain %+v", res)
	}
	if len(transport.attempted()) != 1 {
		t.Fatalf("expected one attempt in total, got %v", transport.attempted())
	}
}

func TestDrainAllCoversEveryQueue(t *testing.T) {
	p, _, scanQ, conn := setup(t, false)
	ctx := context.Background()
	if _, err := p.Submit(ctx, newScan(t, "A")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	report, err := events.NewSessionReport(events.SessionInput{SessionName: "Talk", QRCount: 1})
	if err != nil {
		t.Fatalf("NewSessionReport: %v", err)
	}
	if _, err := p.Submit(ctx, report); err != nil {
		t.Fatalf("Submit session: %v", err)
	}
	conn.online.Store(true)

	results := p.DrainAll(ctx)
	if results[queue.NameScan].Delivered != 1 || results[queue.NameSession].Delivered != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
	if scanQ.Size() != 0 {
		t.Fatal("scan queue should be empty")
	}
	for name, pending := range p.Pending() {
		if pending != 0 {
			t.Fatalf("queue %s still has %d pending", name, pending)
		}
	}
}

func assertQueue(t *testing.T, q *queue.Queue, want ...string) {
	t.Helper()
	items := q.Items()
	if len(items) != len(want) {
		t.Fatalf("queue has %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].EventID != id {
			t.Fatalf("item %d = %s, want %s", i, items[i].EventID, id)
		}
	}
}
