package camera

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable reports that no stream could be acquired.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrTorchUnsupported reports a stream without torch control.
	ErrTorchUnsupported = errors.New("torch not supported")
	// ErrStopped is returned by SetTorch on a stopped stream.
	ErrStopped = errors.New("stream stopped")
)

// Constraints narrows what Start acquires.
type Constraints struct {
	// Device overrides the configured video device when set.
	Device string
}

// Camera acquires decode streams.
type Camera interface {
	Start(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is one active acquisition. Decodes is closed once the stream ends;
// Stop is safe to call more than once.
type Stream interface {
	Decodes() <-chan string
	SetTorch(on bool) error
	Stop() error
}

const decodeBuffer = 16

var symbologyPrefixes = []string{
	"QR-Code:",
	"EAN-13:",
	"EAN-8:",
	"CODE-128:",
	"CODE-39:",
	"I2/5:",
	"DataBar:",
	"PDF417:",
}

// cleanDecode strips a decoder's symbology label and surrounding space.
func cleanDecode(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range symbologyPrefixes {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return line
}
