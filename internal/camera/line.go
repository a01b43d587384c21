package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
)

// LineCamera turns lines from a keyboard-wedge reader into decodes. One
// reader goroutine serves every stream; lines that arrive while no stream is
// active are dropped.
type LineCamera struct {
	reader io.Reader
	logger *slog.Logger

	startOnce sync.Once
	mu        sync.Mutex
	active    *lineStream
	eof       bool
}

// NewLine wraps reader. A nil reader makes every Start fail.
func NewLine(reader io.Reader, logger *slog.Logger) *LineCamera {
	return &LineCamera{
		reader: reader,
		logger: logging.NewComponentLogger(logger, "camera"),
	}
}

// Start activates a stream, replacing any stream still active.
func (c *LineCamera) Start(_ context.Context, _ Constraints) (Stream, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("%w: no reader input attached", ErrUnavailable)
	}
	c.startOnce.Do(func() { go c.pump() })

	c.mu.Lock()
	if c.eof {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: reader input closed", ErrUnavailable)
	}
	previous := c.active
	stream := &lineStream{owner: c, decodes: make(chan string, decodeBuffer)}
	c.active = stream
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Stop()
	}
	return stream, nil
}

func (c *LineCamera) pump() {
	scanner := bufio.NewScanner(c.reader)
	for scanner.Scan() {
		text := cleanDecode(scanner.Text())
		if text == "" {
			continue
		}
		c.mu.Lock()
		stream := c.active
		c.mu.Unlock()
		if stream == nil {
			c.logger.Debug("decode dropped; no active stream")
			continue
		}
		stream.deliver(text)
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("reader input failed", logging.Error(err))
	}

	c.mu.Lock()
	c.eof = true
	stream := c.active
	c.active = nil
	c.mu.Unlock()
	if stream != nil {
		_ = stream.Stop()
	}
}

type lineStream struct {
	owner   *LineCamera
	decodes chan string

	mu      sync.Mutex
	stopped bool
}

func (s *lineStream) deliver(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.decodes <- text:
	default:
		s.owner.logger.Warn("decode dropped; stream backlog full", logging.String("code", text))
	}
}

func (s *lineStream) Decodes() <-chan string {
	return s.decodes
}

func (s *lineStream) SetTorch(bool) error {
	return ErrTorchUnsupported
}

func (s *lineStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.decodes)
	s.mu.Unlock()

	s.owner.mu.Lock()
	if s.owner.active == s {
		s.owner.active = nil
	}
	s.owner.mu.Unlock()
	return nil
}
