package fsstore

import (
	"errors"
	"fmt"
	"os"
)

func ReadText(path string) (string, bool, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(normalizedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read text %s: %w", normalizedPath, err)
	}
	return string(data), true, nil
}

// WriteText writes content atomically and reports whether the file was
// written. Existing files are kept unless opts.Overwrite is set.
func WriteText(path string, content string, opts FileOptions) (bool, error) {
	return writeFile(path, []byte(content), opts)
}

func writeFile(path string, content []byte, opts FileOptions) (bool, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	if !opts.Overwrite {
		ok, err := exists(normalizedPath)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", normalizedPath, err)
		}
		if ok {
			return false, nil
		}
	}
	if err := writeAtomic(normalizedPath, content, opts); err != nil {
		return false, err
	}
	return true, nil
}
