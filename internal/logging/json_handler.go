package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// jsonTimeFormat keeps millisecond order between scans logged in the same second.
const jsonTimeFormat = "2006-01-02T15:04:05.000Z07:00"

const redacted = "[redacted]"

// secretKeys never reach the log file, whatever group they sit in.
var secretKeys = map[string]struct{}{
	"passcode":      {},
	"passcode_hash": {},
	"hash":          {},
}

// newJSONHandler writes the station log format read back by `uukscan logs`:
// one object per line with ts, level, msg, and flat attributes.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if _, secret := secretKeys[strings.ToLower(attr.Key)]; secret {
		return slog.String(attr.Key, redacted)
	}
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() != slog.KindTime {
			return slog.Attr{Key: "ts", Value: attr.Value}
		}
		return slog.String("ts", attr.Value.Time().UTC().Format(jsonTimeFormat))
	case slog.LevelKey:
		return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		src, ok := attr.Value.Any().(*slog.Source)
		if !ok || src == nil {
			return attr
		}
		return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
	}
	return attr
}
