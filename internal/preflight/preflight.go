package preflight

import (
	"context"
	"net/http"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not make the station unhealthy.
	Optional bool
}

// MinFreeBytes is the free space below which the queue database is at risk.
const MinFreeBytes = 64 << 20

// RunAll executes every applicable check for cfg. client may be nil.
func RunAll(ctx context.Context, cfg *config.Config, client *http.Client) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckFreeSpace("Free disk space", cfg.Paths.DataDir, MinFreeBytes))
	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckCamera(cfg.Camera)...)
	results = append(results, CheckBackend(ctx, cfg.Backend.BaseURL, client))
	return results
}

// Healthy reports whether every required check passed.
func Healthy(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return false
		}
	}
	return true
}
