package uploads

import (
	"errors"
	"os"
	"strings"
	"testing"

	"choreline/internal/domain"
)

func TestSaveWritesFile(t *testing.T) {
	s := Store{Dir: t.TempDir(), MaxBytes: 16}
	url, err := s.Save("me.PNG", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, URLPrefix) || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	path, ok := s.Path(url)
	if !ok {
		t.Fatalf("path for %q", url)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("read back: %v %q", err, data)
	}
}

func TestSaveRejects(t *testing.T) {
	dir := t.TempDir()
	s := Store{Dir: dir, MaxBytes: 4}
	if _, err := s.Save("script.sh", strings.NewReader("x")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("extension: %v", err)
	}
	if _, err := s.Save("big.jpg", strings.NewReader("too large")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("size: %v", err)
	}
	if _, err := s.Save("empty.jpg", strings.NewReader("")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left %d files", len(entries))
	}
	if _, ok := s.Path("/uploads/../etc/passwd"); ok {
		t.Fatalf("path traversal accepted")
	}
}
