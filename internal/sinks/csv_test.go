package sinks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVSinkWritesHeaderOnceAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options.csv")

	s, err := NewCSVSink(path)
	require.NoError(t, err)

	row := Row{
		Index: "NIFTY", Rule: "this_week", ExpiryDate: "2026-08-06", Strike: 24000, TimestampSec: 100,
		CE: OptionSide{IsSet: true, Price: 120.5, IVSet: true, IV: 0.18},
		PE: OptionSide{IsSet: true, Price: 98.25},
	}
	require.NoError(t, s.Write(context.Background(), []Row{row}))
	require.NoError(t, s.Close())

	s2, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s2.Write(context.Background(), []Row{row}))
	require.NoError(t, s2.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(content))
	require.Len(t, lines, 3) // header + 2 rows, no duplicate header
	require.Contains(t, lines[0], "ce_price")
	require.Contains(t, lines[0], "pe_price")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
