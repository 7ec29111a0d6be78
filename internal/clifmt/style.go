package clifmt

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
)

// SetColor overrides terminal detection.
func SetColor(enabled bool) {
	colorOnce.Do(func() {})
	colorEnabled = enabled
}

func useColor() bool {
	colorOnce.Do(func() {
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			return
		}
		colorEnabled = term.IsTerminal(int(os.Stdout.Fd()))
	})
	return colorEnabled
}

func paint(code, s string) string {
	if !useColor() || s == "" {
		return s
	}
	return code + s + ansiReset
}

func Headerf(format string, args ...any) string {
	return paint(ansiBold+ansiCyan, fmt.Sprintf(format, args...))
}

func Key(s string) string { return paint(ansiBold, s) }

func Dim(s string) string { return paint(ansiDim, s) }

func Success(s string) string { return paint(ansiGreen, s) }

func Warn(s string) string { return paint(ansiYellow, s) }
