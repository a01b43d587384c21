package scanner

import (
	"io"
	"os"
)

// BellHaptics rings the terminal bell.
type BellHaptics struct {
	Out io.Writer
}

func (b BellHaptics) Pulse() {
	out := b.Out
	if out == nil {
		out = os.Stderr
	}
	_, _ = io.WriteString(out, "\a")
}
