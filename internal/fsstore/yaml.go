package fsstore

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func ReadYAML(path string, out any) (bool, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(normalizedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read yaml %s: %w", normalizedPath, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailed, normalizedPath, err)
	}
	return true, nil
}

func WriteYAML(path string, v any, opts FileOptions) (bool, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := enc.Close(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return writeFile(path, buf.Bytes(), opts)
}
