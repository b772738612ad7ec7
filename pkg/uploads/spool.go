package uploads

import (
	"fmt"
	"io"
	"os"
)

// Spool copies r into a temporary file, reading at most limit bytes.
// The caller owns the returned file and must remove it.
func Spool(r io.Reader, dir string, limit int64) (string, int64, error) {
	f, err := os.CreateTemp(dir, "skatehubba-video-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to spool payload: %w", err)
	}
	if n > limit {
		os.Remove(path)
		return "", 0, ErrTooLarge
	}
	return path, n, nil
}
