// Command export-runs flattens the recorded ranking runs into one row per
// run and feature, for analysis outside ksirank.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"ksi-rank/internal/storage"
)

// VoteRecord is one feature of one recorded run.
type VoteRecord struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	K          int       `json:"k"`
	Voters     int       `json:"voters"`
	Feature    string    `json:"feature"`
	Rank       int       `json:"rank"`
	Votes      int       `json:"votes"`
	SelectedBy []string  `json:"selected_by"`
}

func main() {
	var (
		storePath  = flag.String("store", "data/store", "Run history directory")
		outputPath = flag.String("output", "reports/run_history.json", "Output JSON file path")
		feature    = flag.String("feature", "", "Feature to export (empty for all)")
		days       = flag.Int("days", 30, "Number of days to export (0 for all)")
	)
	flag.Parse()

	log.Printf("Exporting runs from %s to %s", *storePath, *outputPath)
	if *feature != "" {
		log.Printf("Filtering by feature: %s", *feature)
	}

	store, err := storage.New(*storePath)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer store.Close()

	end := time.Now()
	start := time.Time{}
	if *days > 0 {
		start = end.AddDate(0, 0, -*days)
		log.Printf("Exporting last %d days", *days)
	}

	runs, err := store.GetRunsInRange(start, end)
	if err != nil {
		log.Fatalf("Failed to read runs: %v", err)
	}

	var records []VoteRecord
	for _, r := range runs {
		for i, e := range r.Entries {
			if *feature != "" && e.Feature != *feature {
				continue
			}
			records = append(records, VoteRecord{
				RunID:      r.RunID,
				CreatedAt:  r.CreatedAt,
				K:          r.K,
				Voters:     r.Succeeded(),
				Feature:    e.Feature,
				Rank:       i + 1,
				Votes:      e.Votes,
				SelectedBy: e.SelectedBy,
			})
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal records: %v", err)
	}
	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	log.Printf("Exported %d records from %d runs", len(records), len(runs))
}
