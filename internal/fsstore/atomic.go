package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic writes content to a temp file next to path and renames it
// into place, so readers never see a partial file.
func writeAtomic(path string, content []byte, opts FileOptions) (err error) {
	opts = normalizeFileOptions(opts)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, opts.DirPerm); err != nil {
		return fmt.Errorf("%w: create dir %s: %v", ErrAtomicWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"write", func() error { _, err := tmp.Write(content); return err }},
		{"sync", tmp.Sync},
		{"chmod", func() error { return tmp.Chmod(opts.FilePerm) }},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmp.Name(), path) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrAtomicWriteFailed, step.name, path, err)
		}
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
