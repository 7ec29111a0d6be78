package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultTableWidth   = 100
	defaultMinLastWidth = 24
	columnGap           = "  "
)

// TableOptions describes a table whose last column is wrapped to the
// terminal width.
type TableOptions struct {
	Title        string
	Headers      []string
	Rows         [][]string
	EmptyText    string
	DefaultWidth int
	MinLastWidth int
}

func PrintTable(out io.Writer, opts TableOptions) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(opts.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%d)", title, len(opts.Rows)))
	}
	if len(opts.Rows) == 0 {
		empty := strings.TrimSpace(opts.EmptyText)
		if empty == "" {
			empty = "No entries."
		}
		fmt.Fprintln(out, Warn(empty))
		return
	}
	cols := len(opts.Headers)
	if cols == 0 {
		return
	}

	widths := make([]int, cols)
	for i, h := range opts.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range opts.Rows {
		for i := 0; i < cols-1 && i < len(row); i++ {
			if w := utf8.RuneCountInString(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	lead := 0
	for _, w := range widths[:cols-1] {
		lead += w + len(columnGap)
	}
	widths[cols-1] = lastColumnWidth(out, lead, opts.DefaultWidth, opts.MinLastWidth)

	header := make([]string, cols)
	rule := make([]string, cols)
	for i, h := range opts.Headers {
		header[i] = Key(padRight(h, widths[i]))
		rule[i] = Dim(strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(out, strings.TrimRight(strings.Join(header, columnGap), " "))
	fmt.Fprintln(out, strings.Join(rule, columnGap))

	for _, row := range opts.Rows {
		cells := make([]string, cols)
		for i := 0; i < cols-1; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = padRight(cell, widths[i])
		}
		cells[0] = Success(cells[0])
		last := ""
		if len(row) >= cols {
			last = row[cols-1]
		}
		lines := wrap(last, widths[cols-1])
		cells[cols-1] = lines[0]
		fmt.Fprintln(out, strings.TrimRight(strings.Join(cells, columnGap), " "))
		for _, line := range lines[1:] {
			fmt.Fprintln(out, strings.Repeat(" ", lead)+line)
		}
	}
}

func lastColumnWidth(out io.Writer, lead, defaultWidth, minWidth int) int {
	if defaultWidth <= 0 {
		defaultWidth = defaultTableWidth
	}
	if minWidth <= 0 {
		minWidth = defaultMinLastWidth
	}
	width := defaultWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}
	if width-lead < minWidth {
		return minWidth
	}
	return width - lead
}

func padRight(s string, width int) string {
	missing := width - utf8.RuneCountInString(s)
	if missing <= 0 {
		return s
	}
	return s + strings.Repeat(" ", missing)
}

func wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	current := ""
	for _, word := range words {
		for utf8.RuneCountInString(word) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
