package sinks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVOverviewSinkWritesHeaderOnceAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overview.csv")

	s1, err := NewCSVOverviewSink(path)
	require.NoError(t, err)
	require.NoError(t, s1.WriteOverview(context.Background(), []OverviewRow{{Index: "NIFTY", Rule: "this_week", PCR: 1.2, PCRDefined: true}}))
	require.NoError(t, s1.Close())

	s2, err := NewCSVOverviewSink(path)
	require.NoError(t, err)
	require.NoError(t, s2.WriteOverview(context.Background(), []OverviewRow{{Index: "NIFTY", Rule: "next_week", PCR: 0.8, PCRDefined: true}}))
	require.NoError(t, s2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "generated_at")
}
