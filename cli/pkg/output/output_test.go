package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldNoColor := Stdout, Stderr, color.NoColor
	Stdout, Stderr, color.NoColor = stdout, stderr, true
	t.Cleanup(func() { Stdout, Stderr, color.NoColor = oldOut, oldErr, oldNoColor })
	return stdout, stderr
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name       string
		print      func()
		wantStdout string
		wantStderr string
	}{
		{"success", func() { Success("Created %d bundles", 3) }, "✓ Created 3 bundles\n", ""},
		{"error", func() { Error("Failed to connect to %s", "gateway") }, "", "✗ Failed to connect to gateway\n"},
		{"info", func() { Info("Bundle %s", "b-1") }, "Bundle b-1\n", ""},
		{"warn", func() { Warn("Queue empty") }, "⚠ Queue empty\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := capture(t)
			tt.print()
			assert.Equal(t, tt.wantStdout, stdout.String())
			assert.Equal(t, tt.wantStderr, stderr.String())
		})
	}
}

func TestRaw(t *testing.T) {
	stdout, _ := capture(t)

	Raw([]byte("<doc/>"))
	Raw([]byte("{}\n"))
	Raw(nil)

	assert.Equal(t, "<doc/>\n{}\n", stdout.String())
}

func TestJSON(t *testing.T) {
	stdout, _ := capture(t)

	require.NoError(t, JSON(map[string]any{"bundles_created": 2}))

	assert.Contains(t, stdout.String(), "\n  \"bundles_created\": 2")
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, 2, decoded["bundles_created"])
}

func TestTable_Render(t *testing.T) {
	stdout, _ := capture(t)

	table := NewTable([]string{"ID", "Document"})
	table.AddRow([]string{"a-1", "NotifyAggregatedMeasureData"})
	table.AddRow([]string{"a-22", "Reject"})
	table.Render()

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID    Document                     ", lines[0])
	assert.Equal(t, "----  ---------------------------  ", lines[1])
	assert.Equal(t, "a-1   NotifyAggregatedMeasureData  ", lines[2])
	assert.Equal(t, "a-22  Reject                       ", lines[3])
}

func TestTable_Render_Empty(t *testing.T) {
	stdout, _ := capture(t)

	NewTable([]string{"A"}).Render()

	assert.Equal(t, "A  \n-  \n", stdout.String())
}
