package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	maxLineBytes        = 1 << 20
	defaultPollInterval = 250 * time.Millisecond
)

// Filter keeps JSON records whose fields equal the given values. An empty
// filter keeps every line, JSON or not.
type Filter map[string]string

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if len(f) == 0 {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return false
	}
	for key, want := range f {
		got, ok := record[key]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// TailResult carries matching lines and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail returns the last limit lines of path that pass filter. A missing file
// yields no lines and offset 0.
func Tail(path string, limit int, filter Filter) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}

	var ring []string
	offset, err := scanFrom(file, 0, func(line string) {
		if limit <= 0 || !filter.Match(line) {
			return
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	})
	if err != nil {
		return TailResult{}, err
	}
	return TailResult{Lines: ring, Offset: offset}, nil
}

// FollowOptions tunes Follow.
type FollowOptions struct {
	Filter Filter
	// Interval between polls; defaults to 250ms.
	Interval time.Duration
}

// Follow polls path from offset and calls emit for each new line that passes
// the filter until ctx is done. A file that shrinks is read again from the
// start.
func Follow(ctx context.Context, path string, offset int64, opts FollowOptions, emit func(string)) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readNew(path, offset, opts.Filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readNew(path string, offset int64, filter Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	return scanFrom(file, offset, func(line string) {
		if filter.Match(line) {
			emit(line)
		}
	})
}

// scanFrom feeds complete lines after offset to fn and returns the offset
// just past the last complete line, so a half-written record is read again
// on the next poll.
func scanFrom(file *os.File, offset int64, fn func(string)) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
