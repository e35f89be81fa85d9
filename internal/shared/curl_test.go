package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCurlCommand(t *testing.T) {
	t.Run("cookie from header", func(t *testing.T) {
		curl := `curl 'https://pan.quark.cn/1/clouddrive/file/sort' \
  -H 'accept: application/json' \
  -H 'cookie: __pus=abc123; __puus=def456' \
  -H 'user-agent: Mozilla/5.0'`

		headers, err := ParseCurlCommand([]byte(curl))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if headers.Cookie != "__pus=abc123; __puus=def456" {
			t.Errorf("unexpected cookie: %q", headers.Cookie)
		}
		if headers.Headers["accept"] != "application/json" {
			t.Errorf("unexpected accept header: %q", headers.Headers["accept"])
		}
		if _, ok := headers.Headers["cookie"]; ok {
			t.Error("cookie should not appear in the generic header map")
		}
	})

	t.Run("cookie from -b flag wins", func(t *testing.T) {
		curl := `curl 'https://pan.baidu.com/share/list' -H 'Cookie: old=1' -b 'BDUSS=xyz; STOKEN=token'`

		headers, err := ParseCurlCommand([]byte(curl))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if headers.Cookie != "BDUSS=xyz; STOKEN=token" {
			t.Errorf("unexpected cookie: %q", headers.Cookie)
		}
	})

	t.Run("double quoted headers", func(t *testing.T) {
		curl := `curl "https://example.com" -H "Cookie: a=b" -H "referer: https://example.com"`

		headers, err := ParseCurlCommand([]byte(curl))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if headers.Cookie != "a=b" {
			t.Errorf("unexpected cookie: %q", headers.Cookie)
		}
	})

	t.Run("no headers", func(t *testing.T) {
		if _, err := ParseCurlCommand([]byte("curl https://example.com")); err == nil {
			t.Error("expected error for a command with no headers")
		}
	})
}

func TestParseCurlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quark.curl")
	curl := `curl 'https://pan.quark.cn/' -H 'cookie: __pus=fromfile'`
	if err := os.WriteFile(path, []byte(curl), 0600); err != nil {
		t.Fatal(err)
	}

	headers, err := ParseCurlFile(path)
	if err != nil {
		t.Fatalf("failed to parse file: %v", err)
	}
	if headers.Cookie != "__pus=fromfile" {
		t.Errorf("unexpected cookie: %q", headers.Cookie)
	}

	if _, err := ParseCurlFile(filepath.Join(t.TempDir(), "missing.curl")); err == nil {
		t.Error("expected error for missing file")
	}
}
