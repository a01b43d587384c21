package camera

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

// FromConfig returns the camera named by cfg.Driver. input feeds the stdin
// driver and is ignored otherwise.
func FromConfig(cfg config.Camera, input io.Reader, logger *slog.Logger) (Camera, error) {
	switch cfg.Driver {
	case "exec", "":
		return NewExec(cfg, logger), nil
	case "stdin":
		return NewLine(input, logger), nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", cfg.Driver)
	}
}
