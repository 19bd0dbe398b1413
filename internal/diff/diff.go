// Package diff renders line diffs between page content snapshots.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Op marks how a line changed between two snapshots.
type Op byte

const (
	Equal  Op = ' '
	Insert Op = '+'
	Delete Op = '-'
)

type Line struct {
	Op   Op
	Text string
}

// Result is a content diff between two versions of a page.
type Result struct {
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Added       int    `json:"added"`
	Removed     int    `json:"removed"`
	Unified     string `json:"diff"`
}

// JSONContent diffs two JSON documents after normalizing both to indented
// form, so key order and whitespace in the stored blobs do not show up as
// changes. An empty document is treated as {}.
func JSONContent(old, new json.RawMessage) ([]Line, error) {
	a, err := indent(old)
	if err != nil {
		return nil, fmt.Errorf("old content: %w", err)
	}
	b, err := indent(new)
	if err != nil {
		return nil, fmt.Errorf("new content: %w", err)
	}
	return Lines(a, b), nil
}

func indent(raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	// Round-tripping through any sorts object keys.
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Lines returns the line-level edit script from old to new using LCS.
func Lines(old, new string) []Line {
	a := splitLines(old)
	b := splitLines(new)
	table := lcsTable(a, b)

	var out []Line
	i, j := len(a), len(b)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			out = append(out, Line{Op: Equal, Text: a[i-1]})
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			out = append(out, Line{Op: Insert, Text: b[j-1]})
			j--
		default:
			out = append(out, Line{Op: Delete, Text: a[i-1]})
			i--
		}
	}

	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Unified formats lines with a one-character op prefix per line.
func Unified(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteByte(byte(l.Op))
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Count returns the number of inserted and deleted lines.
func Count(lines []Line) (added, removed int) {
	for _, l := range lines {
		switch l.Op {
		case Insert:
			added++
		case Delete:
			removed++
		}
	}
	return added, removed
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func lcsTable(a, b []string) [][]int {
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				table[i][j] = table[i-1][j-1] + 1
			case table[i-1][j] >= table[i][j-1]:
				table[i][j] = table[i-1][j]
			default:
				table[i][j] = table[i][j-1]
			}
		}
	}
	return table
}
