// Package consensus runs a set of selectors over one feature matrix and merges
// their support masks into a vote-ordered ranking.
package consensus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ksi-rank/internal/selection"
)

// Entry is one feature of a consensus ranking.
type Entry struct {
	Feature    string   `json:"feature"`
	Votes      int      `json:"votes"`
	SelectedBy []string `json:"selected_by"`
}

// Ranking is the consensus over every selector that produced a result.
// Entries are ordered by votes descending, then feature name descending.
type Ranking struct {
	RunID     string                    `json:"run_id"`
	CreatedAt time.Time                 `json:"created_at"`
	K         int                       `json:"k"`
	Samples   int                       `json:"samples"`
	Selectors []string                  `json:"selectors"`
	Features  []string                  `json:"features"` // matrix order, matches the result masks
	Entries   []Entry                   `json:"entries"`
	Results   []selection.SupportResult `json:"results"`
	Failures  map[string]string         `json:"failures,omitempty"`
}

// Votes returns the vote count of a feature, or 0 for an unknown name.
func (r *Ranking) Votes(feature string) int {
	for _, e := range r.Entries {
		if e.Feature == feature {
			return e.Votes
		}
	}
	return 0
}

// TopK returns at most n leading entries.
func (r *Ranking) TopK(n int) []Entry {
	if n < 0 || n > len(r.Entries) {
		n = len(r.Entries)
	}
	return r.Entries[:n]
}

// Succeeded returns the number of selectors that voted.
func (r *Ranking) Succeeded() int { return len(r.Results) }

// tally counts votes per feature over the given results. names fixes the
// feature universe and mask order.
func tally(names []string, results []selection.SupportResult) []Entry {
	entries := make([]Entry, len(names))
	for j, name := range names {
		entries[j] = Entry{Feature: name, SelectedBy: []string{}}
	}
	for _, res := range results {
		for j, selected := range res.Mask {
			if selected {
				entries[j].Votes++
				entries[j].SelectedBy = append(entries[j].SelectedBy, res.Selector)
			}
		}
	}
	SortEntries(entries)
	return entries
}

// SortEntries orders entries by votes descending, then feature name
// descending.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Votes != entries[b].Votes {
			return entries[a].Votes > entries[b].Votes
		}
		return entries[a].Feature > entries[b].Feature
	})
}

// AggregationFailure is returned when no selector produced a result.
type AggregationFailure struct {
	Failures map[string]error
}

func (e *AggregationFailure) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failures[name])
	}
	return fmt.Sprintf("all %d selectors failed: %s", len(names), strings.Join(parts, "; "))
}

func (e *AggregationFailure) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}
