// internal/renewal/summary_test.go
package renewal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() *Summary {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Summary{
		RunID:           "run-1",
		StartedAt:       start,
		FinishedAt:      start.Add(95 * time.Second),
		FirstPassFailed: []string{"2402", "2403"},
		Outcomes: []Outcome{
			{ListingID: "2401", Succeeded: true, Attempts: 1, Match: &Match{ID: "2401", Page: 1, Row: 2}},
			{ListingID: "2402", Succeeded: true, Attempts: 2},
			{ListingID: "2403", Attempts: 2, Error: "listing not found: 2403 after 10 page(s)"},
		},
		Screenshot: "/tmp/multi_automation_20240301_090135.png",
	}
	s.tally()
	return s
}

func TestSummary_Tally(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, []string{"2403"}, s.Failed)
}

func TestSummary_Render(t *testing.T) {
	t.Run("with failures", func(t *testing.T) {
		var buf bytes.Buffer
		sampleSummary().Render(&buf)
		out := buf.String()

		assert.Contains(t, out, "Run run-1 (live) finished in 1m35s")
		assert.Contains(t, out, "Succeeded: 2/3")
		assert.Contains(t, out, "Retried: 2402, 2403")
		assert.Contains(t, out, "Failed: 2403")
		assert.Contains(t, out, "  2403: listing not found: 2403 after 10 page(s)")
		assert.Contains(t, out, "Screenshot: /tmp/multi_automation_20240301_090135.png")
		assert.NotContains(t, out, "All listings processed.")
	})

	t.Run("clean simulated run", func(t *testing.T) {
		s := &Summary{RunID: "run-2", Simulated: true, Outcomes: []Outcome{{ListingID: "2401", Succeeded: true, Attempts: 1}}}
		s.tally()
		var buf bytes.Buffer
		s.Render(&buf)

		assert.Contains(t, buf.String(), "(simulation)")
		assert.Contains(t, buf.String(), "All listings processed.")
		assert.NotContains(t, buf.String(), "Failed:")
	})

	t.Run("aborted run", func(t *testing.T) {
		s := &Summary{RunID: "run-3", Aborted: true, AbortReason: "login failed: login form is still present",
			Outcomes: []Outcome{{ListingID: "2401"}}}
		s.tally()
		var buf bytes.Buffer
		s.Render(&buf)

		assert.Contains(t, buf.String(), "Run aborted: login failed: login form is still present")
		assert.Contains(t, buf.String(), "Succeeded: 0/1")
		assert.NotContains(t, buf.String(), "All listings processed.")
	})
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")

	require.NoError(t, WriteReport(path, sampleSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, float64(2), doc["succeeded"])
	assert.Equal(t, []interface{}{"2403"}, doc["failed"])

	outcomes := doc["outcomes"].([]interface{})
	first := outcomes[0].(map[string]interface{})
	match := first["match"].(map[string]interface{})
	assert.NotContains(t, match, "RowSelector")
	assert.Equal(t, float64(1), match["page"])
}
