package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// hostOS is swapped in tests to exercise the per-platform branches.
var hostOS = func() string { return runtime.GOOS }

// OpenBrowser hands a URL to the system browser, for jumping straight to
// a finished transfer's share link.
func OpenBrowser(url string) error {
	var name string
	var args []string

	switch os := hostOS(); os {
	case "darwin":
		name = "open"
	case "linux":
		name = "xdg-open"
	case "windows":
		name, args = "cmd", []string{"/c", "start"}
	default:
		return fmt.Errorf("unsupported platform: %s", os)
	}

	if err := exec.Command(name, append(args, url)...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
