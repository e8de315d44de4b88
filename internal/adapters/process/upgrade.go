// Package process inspects running processes on the local host.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/pihole-sync/internal/ports"
)

// upgradePattern matches "pihole -up" and "pihole updatePihole -up" style runs.
const upgradePattern = "pihole.*-up"

type runFunc func(ctx context.Context, args ...string) (stdout string, exitCode int, err error)

// UpgradeDetector asks pgrep whether a Pi-hole upgrade is running.
type UpgradeDetector struct {
	run runFunc
}

var _ ports.UpgradeDetector = (*UpgradeDetector)(nil)

func NewUpgradeDetector() *UpgradeDetector {
	return &UpgradeDetector{run: runPgrep}
}

// UpgradeRunning treats pgrep's exit status 1 as "no match".
func (d *UpgradeDetector) UpgradeRunning(ctx context.Context) (bool, error) {
	stdout, exitCode, err := d.run(ctx, "-af", upgradePattern)
	switch {
	case err == nil && exitCode == 0:
		return strings.TrimSpace(stdout) != "", nil
	case exitCode == 1:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("pgrep %s: %w", upgradePattern, err)
	default:
		return false, fmt.Errorf("pgrep %s: exit status %d", upgradePattern, exitCode)
	}
}

func runPgrep(ctx context.Context, args ...string) (string, int, error) {
	path, err := exec.LookPath("pgrep")
	if err != nil {
		return "", -1, fmt.Errorf("locate pgrep: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), exitErr.ExitCode(), err
	}
	if err != nil {
		return "", -1, err
	}
	return stdout.String(), 0, nil
}
