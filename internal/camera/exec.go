package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
)

const torchTimeout = 3 * time.Second

// ExecCamera runs a decoder process and treats each stdout line as a decode.
type ExecCamera struct {
	binary   string
	args     []string
	device   string
	torch    []string
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// Option configures an ExecCamera.
type Option func(*ExecCamera)

// WithLookPath replaces exec.LookPath (primarily for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *ExecCamera) {
		if fn != nil {
			c.lookPath = fn
		}
	}
}

// NewExec builds an ExecCamera from camera settings.
func NewExec(cfg config.Camera, logger *slog.Logger, opts ...Option) *ExecCamera {
	cam := &ExecCamera{
		binary:   strings.TrimSpace(cfg.Command),
		args:     append([]string(nil), cfg.Args...),
		device:   strings.TrimSpace(cfg.Device),
		torch:    strings.Fields(cfg.TorchCommand),
		lookPath: exec.LookPath,
		logger:   logging.NewComponentLogger(logger, "camera"),
	}
	for _, opt := range opts {
		opt(cam)
	}
	return cam
}

// Start launches the decoder. The returned stream owns the process.
func (c *ExecCamera) Start(ctx context.Context, constraints Constraints) (Stream, error) {
	if c.binary == "" {
		return nil, fmt.Errorf("%w: no decoder command configured", ErrUnavailable)
	}
	resolved, err := c.lookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	args := append([]string(nil), c.args...)
	device := c.device
	if constraints.Device != "" {
		device = constraints.Device
	}
	if device != "" {
		args = append(args, device)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, resolved, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	stream := &execStream{
		cancel:  cancel,
		decodes: make(chan string, decodeBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		torch:   c.torch,
		logger:  c.logger,
	}
	c.logger.Info("decoder started",
		logging.String("binary", resolved),
		logging.String("device", device),
	)
	go stream.pump(cmd, stdout, stderr)

	// A caller abandoning Start's context also ends the stream.
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Stop()
		case <-stream.exited:
		}
	}()
	return stream, nil
}

type execStream struct {
	cancel  context.CancelFunc
	decodes chan string
	done    chan struct{}
	exited  chan struct{}
	torch   []string
	logger  *slog.Logger

	stopOnce sync.Once
	mu       sync.Mutex
	waitErr  error
	stopped  bool
}

func (s *execStream) pump(cmd *exec.Cmd, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				s.logger.Debug("decoder stderr", logging.String("line", line))
			}
		}
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		text := cleanDecode(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case s.decodes <- text:
		case <-s.done:
		}
	}
	wg.Wait()
	err := cmd.Wait()

	s.mu.Lock()
	stopped := s.stopped
	if !stopped {
		s.waitErr = err
	}
	s.mu.Unlock()
	if !stopped {
		if err != nil {
			s.logger.Warn("decoder exited unexpectedly", logging.Error(err))
		} else {
			s.logger.Info("decoder exited")
		}
	}
	close(s.decodes)
	close(s.exited)
}

func (s *execStream) Decodes() <-chan string {
	return s.decodes
}

// SetTorch runs the configured torch command with "on" or "off" appended.
func (s *execStream) SetTorch(on bool) error {
	if len(s.torch) == 0 {
		return ErrTorchUnsupported
	}
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	state := "off"
	if on {
		state = "on"
	}
	ctx, cancel := context.WithTimeout(context.Background(), torchTimeout)
	defer cancel()
	args := append(append([]string(nil), s.torch[1:]...), state)
	out, err := exec.CommandContext(ctx, s.torch[0], args...).CombinedOutput() //nolint:gosec
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("torch %s: %w: %s", state, err, detail)
		}
		return fmt.Errorf("torch %s: %w", state, err)
	}
	return nil
}

// Stop terminates the decoder and waits for it to exit. It reports the exit
// error only when the decoder had already died on its own.
func (s *execStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
		s.cancel()
	})
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waitErr != nil && !errors.Is(s.waitErr, context.Canceled) {
		return s.waitErr
	}
	return nil
}
