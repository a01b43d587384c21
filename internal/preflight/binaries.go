package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
)

// Requirement is an external binary the station may rely on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// CheckBinaries reports whether each requirement resolves on PATH.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		result := Result{Name: req.Name, Optional: req.Optional}
		if cmd == "" {
			result.Detail = "command not configured"
			results = append(results, result)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			result.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, strings.TrimSpace(req.Description))
			results = append(results, result)
			continue
		}
		result.Passed = true
		result.Detail = path
		results = append(results, result)
	}
	return results
}

// CheckCamera checks the decoder and torch binaries for the exec driver.
// The stdin driver needs nothing.
func CheckCamera(cam config.Camera) []Result {
	if cam.Driver == "stdin" {
		return []Result{{Name: "Camera", Passed: true, Detail: "stdin reader (no binary required)"}}
	}
	reqs := []Requirement{{
		Name:        "Camera decoder",
		Command:     cam.Command,
		Description: "Required for QR/barcode capture",
	}}
	if strings.TrimSpace(cam.TorchCommand) != "" {
		reqs = append(reqs, Requirement{
			Name:        "Torch control",
			Command:     cam.TorchCommand,
			Description: "Toggles the camera light",
			Optional:    true,
		})
	}
	return CheckBinaries(reqs)
}
