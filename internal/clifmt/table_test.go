package clifmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintTable(t *testing.T) {
	SetColor(false)

	var buf bytes.Buffer
	PrintTable(&buf, TableOptions{
		Title:        "Polls",
		Headers:      []string{"ID", "ROOM", "TITLE"},
		DefaultWidth: 29,
		MinLastWidth: 10,
		Rows: [][]string{
			{"otter", "lunch", "Where do we eat today"},
			{"brave-lark", "board", "ETM"},
		},
	})
	want := strings.Join([]string{
		"Polls (2)",
		"ID          ROOM   TITLE",
		"----------  -----  ----------",
		"otter       lunch  Where do",
		"                   we eat",
		"                   today",
		"brave-lark  board  ETM",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Fatalf("PrintTable() =\n%s\nwant\n%s", got, want)
	}
}

func TestPrintTableEmpty(t *testing.T) {
	SetColor(false)

	var buf bytes.Buffer
	PrintTable(&buf, TableOptions{Headers: []string{"ID"}, EmptyText: "No polls."})
	if buf.String() != "No polls.\n" {
		t.Fatalf("PrintTable() = %q", buf.String())
	}
}

func TestWrapSplitsLongWords(t *testing.T) {
	got := wrap("abcdefghij kl", 4)
	if strings.Join(got, "|") != "abcd|efgh|ij|kl" {
		t.Fatalf("wrap() = %q", got)
	}
}
