package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

// consoleWriter serialises prompt output written from the input loop and
// from machine callbacks.
type consoleWriter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

func newConsoleWriter(out io.Writer) *consoleWriter {
	return &consoleWriter{out: out, colorize: shouldColorize(out)}
}

func (w *consoleWriter) println(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, text)
}

func (w *consoleWriter) printf(format string, args ...any) {
	w.println(fmt.Sprintf(format, args...))
}

func (w *consoleWriter) status(label string, kind statusKind, message string) {
	w.println(renderStatusLine(label, kind, message, w.colorize))
}

// readLines delivers trimmed input lines until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// promptLine asks one question on the console and returns the trimmed reply.
func promptLine(out io.Writer, in *bufio.Reader, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// keyboardCamera stands in for a decoder when a keyboard-wedge reader types
// codes into the console. The console hands each typed line to the machine
// itself, so the stream never produces decodes.
type keyboardCamera struct{}

func (keyboardCamera) Start(context.Context, camera.Constraints) (camera.Stream, error) {
	return &keyboardStream{decodes: make(chan string)}, nil
}

type keyboardStream struct {
	once    sync.Once
	decodes chan string
}

func (s *keyboardStream) Decodes() <-chan string { return s.decodes }

func (s *keyboardStream) SetTorch(bool) error { return camera.ErrTorchUnsupported }

func (s *keyboardStream) Stop() error {
	s.once.Do(func() { close(s.decodes) })
	return nil
}

// cameraFor returns the console camera for the stdin driver and nil to let
// the station build the configured one.
func cameraFor(cfg *config.Camera) camera.Camera {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "stdin") {
		return keyboardCamera{}
	}
	return nil
}
