package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/connectivity"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/notifications"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/scanner"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/session"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/state"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
)

const syncRetryDelay = 50 * time.Millisecond

// ErrAlreadyRunning is returned when another process holds the station lock.
var ErrAlreadyRunning = errors.New("another uukscan station instance is already running")

// Options tunes Open.
type Options struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	// Capture builds the camera, scanner and session aggregator.
	Capture bool
	// Camera overrides the configured camera driver.
	Camera camera.Camera
	// Input feeds the stdin camera driver.
	Input io.Reader
	// Haptics acknowledges locks; defaults to the terminal bell.
	Haptics scanner.Haptics
	// WatchDevices starts the netlink watcher.
	WatchDevices bool
	OnScan       func(scanner.Snapshot)
	OnSession    func(session.Snapshot)
}

// Station is a running scan station.
type Station struct {
	cfg    *config.Config
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	Store    *queue.Store
	Scans    *queue.Queue
	Sessions *queue.Queue
	Notifier notifications.Service
	Monitor  *connectivity.Monitor
	Pipeline *submit.Pipeline
	Prober   *connectivity.Prober
	Netlink  *connectivity.NetlinkWatcher
	Auth     *auth.Verifier
	State    *state.State
	Scanner  *scanner.Machine
	Session  *session.Aggregator

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// Open acquires the station lock and wires every component. Nothing runs in
// the background until Start.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Station, error) {
	if cfg == nil {
		return nil, errors.New("station requires a config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	s := &Station{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(opts.Logger, "station"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.wire(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Station) wire(ctx context.Context, opts Options) error {
	cfg := s.cfg
	logger := opts.Logger
	s.Notifier = notifications.NewService(cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	s.Store = store

	if s.Scans, err = s.loadQueue(ctx, queue.NameScan); err != nil {
		return err
	}
	if s.Sessions, err = s.loadQueue(ctx, queue.NameSession); err != nil {
		return err
	}

	s.Monitor = connectivity.NewMonitor(s.ctx, logger)
	s.Monitor.RegisterQueue(s.Scans)
	s.Monitor.RegisterQueue(s.Sessions)

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	s.Pipeline = submit.New(
		submit.NewHTTPTransport(cfg, client),
		s.Monitor,
		[]*queue.Queue{s.Scans, s.Sessions},
		submit.WithLogger(logger),
		submit.WithNotifier(s.Notifier),
		submit.WithAttemptTimeout(cfg.SubmitTimeout()),
		submit.WithSource(cfg.Backend.Source),
		submit.WithBacklogThreshold(cfg.Notifications.BacklogThreshold),
	)
	s.Monitor.SetDrainer(func(ctx context.Context, name queue.Name) {
		s.Pipeline.Drain(ctx, name)
	})

	s.Prober = connectivity.NewProber(cfg, s.Monitor, client, logger)
	if opts.WatchDevices {
		s.Netlink = connectivity.NewNetlinkWatcher(logger, s.Prober.Trigger, s.cameraEvent)
	}

	s.Auth = auth.NewVerifier(cfg, store, s.Monitor,
		auth.WithHTTPClient(client),
		auth.WithLogger(logger),
		auth.WithPendingCounter(s.Scans.Size),
	)
	if s.State, err = state.Load(ctx, store, s.Scans); err != nil {
		return fmt.Errorf("load station state: %w", err)
	}
	if _, err := s.Restore(ctx); err != nil {
		return err
	}

	if !opts.Capture {
		return nil
	}
	cam := opts.Camera
	if cam == nil {
		if cam, err = camera.FromConfig(cfg.Camera, opts.Input, logger); err != nil {
			return fmt.Errorf("camera: %w", err)
		}
	}
	haptics := opts.Haptics
	if haptics == nil {
		haptics = scanner.BellHaptics{}
	}
	scanOpts := []scanner.Option{
		scanner.WithHaptics(haptics),
		scanner.WithCounter(s.State),
		scanner.WithLogger(logger),
		scanner.WithResultDelay(cfg.ResultDelay()),
	}
	if opts.OnScan != nil {
		scanOpts = append(scanOpts, scanner.OnChange(opts.OnScan))
	}
	s.Scanner = scanner.New(cam, s.Pipeline, s.Auth, scanOpts...)

	sessionOpts := []session.Option{
		session.WithHaptics(haptics),
		session.WithLogger(logger),
		session.WithDebounce(cfg.SessionDebounce()),
		session.WithResultDelay(cfg.SessionResultDelay()),
	}
	if opts.OnSession != nil {
		sessionOpts = append(sessionOpts, session.OnChange(opts.OnSession))
	}
	s.Session = session.New(cam, s.Pipeline, sessionOpts...)
	return nil
}

// loadQueue treats unreadable rows as a warning: the queue still opens and
// the operator is alerted.
func (s *Station) loadQueue(ctx context.Context, name queue.Name) (*queue.Queue, error) {
	q, warn := s.Store.Queue(ctx, name)
	if q == nil {
		return nil, fmt.Errorf("load %s queue: %w", name, warn)
	}
	if warn != nil {
		logging.WarnWithContext(s.logger, "queue loaded with problems", "queue_load_degraded",
			logging.String(logging.FieldQueue, string(name)),
			logging.Error(warn),
			logging.String(logging.FieldImpact, "some stored events were set aside"),
			logging.String(logging.FieldErrorHint, "inspect quarantined_events in the queue database"),
		)
		if err := s.Notifier.NotifyStorageDegraded(ctx, warn, string(name)+" queue"); err != nil {
			s.logger.Debug("storage notification failed", logging.Error(err))
		}
	}
	return q, nil
}

func (s *Station) cameraEvent(ev connectivity.DeviceEvent) {
	if ev.Action != "remove" {
		return
	}
	if s.Scanner != nil {
		s.Scanner.CameraRemoved(ev.Device)
	}
	if s.Session != nil {
		snap := s.Session.Snapshot()
		if snap.Phase == session.PhaseCounting {
			s.logger.Warn("camera removed during session count; manual counting still works",
				logging.String("device", ev.Device))
		}
	}
}

// Start runs an initial probe, then keeps probing and watching devices in
// the background until Close.
func (s *Station) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if s.Netlink != nil {
		_ = s.Netlink.Start(s.ctx)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Prober.ProbeOnce(s.ctx)
		s.Prober.Run(s.ctx)
	}()
	s.logger.Info("uukscan station started",
		logging.String(logging.FieldEventType, "station_started"),
		logging.String("lock", s.lockPath),
		logging.Int("pending", s.Monitor.TotalPending()),
	)
}

// Restore logs in the configured exhibitor when it was verified before.
func (s *Station) Restore(ctx context.Context) (bool, error) {
	id, ok, err := s.Auth.Restore(ctx, s.cfg.Station.ExhibitorID)
	if err != nil {
		return false, fmt.Errorf("restore identity: %w", err)
	}
	if !ok {
		return false, nil
	}
	return true, s.activate(ctx, id)
}

// Login verifies the exhibitor and resets the daily counter when the
// exhibitor or date changed. A station not yet known to be online probes
// first so a fresh process can verify against the relay.
func (s *Station) Login(ctx context.Context, exhibitorID, passcode string) (auth.Identity, error) {
	if !s.Monitor.Online() {
		s.Prober.ProbeOnce(ctx)
	}
	id, err := s.Auth.Login(ctx, exhibitorID, passcode)
	if err != nil {
		return auth.Identity{}, err
	}
	return id, s.activate(ctx, id)
}

func (s *Station) activate(ctx context.Context, id auth.Identity) error {
	s.State.SetIdentity(&id)
	if _, err := s.State.EnsureDaily(ctx, time.Now(), id.ExhibitorID); err != nil {
		return err
	}
	return nil
}

// Logout forgets the exhibitor.
func (s *Station) Logout(ctx context.Context) error {
	s.State.SetIdentity(nil)
	return s.Auth.Logout(ctx)
}

// ChangeExhibitor logs out and reports how many scans have not synced yet.
func (s *Station) ChangeExhibitor(ctx context.Context) (int, error) {
	s.State.SetIdentity(nil)
	return s.Auth.ChangeExhibitor(ctx)
}

// Sync probes the relay and, when reachable, drains every queue.
func (s *Station) Sync(ctx context.Context) (map[queue.Name]submit.DrainResult, error) {
	if !s.Prober.ProbeOnce(ctx) {
		status := s.Monitor.Status()
		return nil, fmt.Errorf("relay unreachable: %s", status.LastProbeError)
	}
	results := s.Pipeline.DrainAll(ctx)
	// Going online starts background drains; wait them out so the caller
	// sees what is really left.
	for name, res := range results {
		for res.Skipped {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(syncRetryDelay):
			}
			res = s.Pipeline.Drain(ctx, name)
		}
		results[name] = res
	}
	return results, nil
}

// Context is cancelled when the station closes.
func (s *Station) Context() context.Context {
	return s.ctx
}

// Close stops components in reverse wiring order and releases the lock.
func (s *Station) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.Session != nil {
		s.Session.Reset()
	}
	if s.Scanner != nil {
		s.Scanner.Reset()
	}
	s.Netlink.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.Monitor != nil {
		s.Monitor.Wait()
	}

	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	if s.started.Load() {
		s.logger.Info("uukscan station stopped", logging.String(logging.FieldEventType, "station_stopped"))
	}
	return errors.Join(errs...)
}
