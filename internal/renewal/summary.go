// internal/renewal/summary.go
package renewal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcome is the final state of one listing.
type Outcome struct {
	ListingID  string `json:"listing_id"`
	Succeeded  bool   `json:"succeeded"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
	Match      *Match `json:"match,omitempty"`
	Screenshot string `json:"screenshot,omitempty"`
}

// Summary describes a whole run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Simulated  bool      `json:"simulated"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	// FirstPassFailed lists listings that went through the retry pass.
	FirstPassFailed []string `json:"first_pass_failed"`
	// Failed lists listings that failed both passes, each once.
	Failed   []string  `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

func (s *Summary) outcome(id string) *Outcome {
	for i := range s.Outcomes {
		if s.Outcomes[i].ListingID == id {
			return &s.Outcomes[i]
		}
	}
	return nil
}

// tally recomputes the counters from the outcomes.
func (s *Summary) tally() {
	s.Total = len(s.Outcomes)
	s.Succeeded = 0
	s.Failed = []string{}
	for _, o := range s.Outcomes {
		if o.Succeeded {
			s.Succeeded++
		} else if o.Attempts > 0 {
			s.Failed = append(s.Failed, o.ListingID)
		}
	}
}

// Render prints the human-readable summary.
func (s *Summary) Render(w io.Writer) {
	line := strings.Repeat("=", 72)
	mode := "live"
	if s.Simulated {
		mode = "simulation"
	}

	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Run %s (%s) finished in %s\n", s.RunID, mode, s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	if s.Aborted {
		fmt.Fprintf(w, "Run aborted: %s\n", s.AbortReason)
	}
	fmt.Fprintf(w, "Succeeded: %d/%d\n", s.Succeeded, s.Total)
	if len(s.FirstPassFailed) > 0 {
		fmt.Fprintf(w, "Retried: %s\n", strings.Join(s.FirstPassFailed, ", "))
	}
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "Failed: %s\n", strings.Join(s.Failed, ", "))
		for _, id := range s.Failed {
			if o := s.outcome(id); o != nil && o.Error != "" {
				fmt.Fprintf(w, "  %s: %s\n", id, o.Error)
			}
		}
	} else if !s.Aborted && s.Total > 0 {
		fmt.Fprintln(w, "All listings processed.")
	}
	if s.Screenshot != "" {
		fmt.Fprintf(w, "Screenshot: %s\n", s.Screenshot)
	}
	fmt.Fprintln(w, line)
}

// WriteReport saves the summary as indented JSON.
func WriteReport(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
