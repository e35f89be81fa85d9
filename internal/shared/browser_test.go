package shared

import "testing"

func TestOpenBrowserUnsupportedPlatform(t *testing.T) {
	orig := hostOS
	hostOS = func() string { return "plan9" }
	defer func() { hostOS = orig }()

	if err := OpenBrowser("https://pan.baidu.com/s/abc123"); err == nil {
		t.Error("expected error for unsupported platform")
	}
}
