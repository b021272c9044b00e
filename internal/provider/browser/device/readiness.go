package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	readinessAttempts = 30
	readinessInterval = 100 * time.Millisecond
)

// lookExecutable resolves a required binary on PATH. Missing executables
// are configuration errors and abort startup.
func lookExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("required executable %q not found on PATH: %w", name, err)
	}
	return path, nil
}

// waitForPath polls until the path exists. After the fixed bound it logs
// and returns so startup proceeds; a device that still is not up fails
// on first use instead.
func waitForPath(ctx context.Context, path string) {
	for i := 0; i < readinessAttempts; i++ {
		if _, err := os.Stat(path); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(readinessInterval):
		}
	}
	slog.Warn("device readiness check timed out, proceeding", "path", path)
}
