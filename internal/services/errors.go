package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork marks transport failures: refused connections, resets, DNS.
	ErrNetwork = errors.New("network failure")
	// ErrTimeout marks an attempt abandoned after its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrServerRejected marks a non-2xx response from the relay.
	ErrServerRejected = errors.New("server rejected")
	// ErrValidation marks input that can never be delivered as-is.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or unusable settings.
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for err suitable for the error_kind log field.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrServerRejected):
		return "server_rejected"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
