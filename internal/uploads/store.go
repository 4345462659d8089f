// Package uploads stores profile photos on local disk under random names.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"choreline/internal/domain"
)

// URLPrefix is where the server exposes the stored files.
const URLPrefix = "/uploads/"

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

type Store struct {
	Dir      string
	MaxBytes int64
}

// Save copies r into the store and returns the URL path of the new file.
// filename only contributes its extension.
func (s Store) Save(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", domain.Invalid("unsupported image type %q", ext)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + ext
	dst := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		err = domain.Invalid("upload exceeds %d bytes", s.MaxBytes)
	}
	if err == nil && n == 0 {
		err = domain.Invalid("upload is empty")
	}
	if err != nil {
		os.Remove(dst)
		var de *domain.Error
		if errors.As(err, &de) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}
	return URLPrefix + name, nil
}

// Path maps a URL returned by Save back to the file on disk.
func (s Store) Path(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return filepath.Join(s.Dir, name), true
}
