package fsstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTextKeepsExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", ".dmsrc")
	created, err := WriteText(path, "token=abc\n", FileOptions{})
	if err != nil || !created {
		t.Fatalf("WriteText() = %v, %v; want created", created, err)
	}
	created, err = WriteText(path, "token=other\n", FileOptions{})
	if err != nil || created {
		t.Fatalf("WriteText(existing) = %v, %v; want kept", created, err)
	}
	got, ok, err := ReadText(path)
	if err != nil || !ok || got != "token=abc\n" {
		t.Fatalf("ReadText() = %q, %v, %v", got, ok, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != defaultFilePerm {
		t.Fatalf("perm = %v, want %v", info.Mode().Perm(), os.FileMode(defaultFilePerm))
	}

	if created, err := WriteText(path, "token=new\n", FileOptions{Overwrite: true}); err != nil || !created {
		t.Fatalf("WriteText(overwrite) = %v, %v", created, err)
	}
	if got, _, _ := ReadText(path); got != "token=new\n" {
		t.Fatalf("ReadText() after overwrite = %q", got)
	}
}

func TestReadTextMissing(t *testing.T) {
	t.Parallel()

	got, ok, err := ReadText(filepath.Join(t.TempDir(), "missing"))
	if err != nil || ok || got != "" {
		t.Fatalf("ReadText(missing) = %q, %v, %v", got, ok, err)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	type config struct {
		Server string `yaml:"server"`
		TLS    bool   `yaml:"tls"`
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := WriteYAML(path, map[string]any{"rocketchat": config{Server: "chat.example.org", TLS: true}}, FileOptions{}); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}
	var out struct {
		RocketChat config `yaml:"rocketchat"`
	}
	ok, err := ReadYAML(path, &out)
	if err != nil || !ok {
		t.Fatalf("ReadYAML() = %v, %v", ok, err)
	}
	if out.RocketChat.Server != "chat.example.org" || !out.RocketChat.TLS {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/.dmsrc")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if got != filepath.Join(home, ".dmsrc") {
		t.Fatalf("ExpandPath() = %q", got)
	}
	if _, err := ExpandPath("  "); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("ExpandPath(blank) error = %v, want ErrInvalidPath", err)
	}
}
