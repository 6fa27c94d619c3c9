// Package report writes consensus rankings to disk and to the console.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"ksi-rank/internal/consensus"
)

// Reporter generates ranking reports
type Reporter struct {
	ranking    *consensus.Ranking
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(ranking *consensus.Ranking, outputPath string) *Reporter {
	return &Reporter{
		ranking:    ranking,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateConsensusCSV(); err != nil {
		return err
	}
	if err := r.generateScoresCSV(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "consensus_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	rk := r.ranking
	fmt.Fprintf(file, "CONSENSUS FEATURE RANKING\n")
	fmt.Fprintf(file, "=========================\n\n")
	fmt.Fprintf(file, "Run ID: %s\n", rk.RunID)
	fmt.Fprintf(file, "Created: %s\n", rk.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Samples: %d\n", rk.Samples)
	fmt.Fprintf(file, "Features: %d\n", len(rk.Entries))
	fmt.Fprintf(file, "Target k: %d\n\n", rk.K)

	fmt.Fprintf(file, "SELECTORS\n")
	fmt.Fprintf(file, "---------\n")
	for _, res := range rk.Results {
		fmt.Fprintf(file, "%s: %s\n", res.Selector, strings.Join(res.Selected, ", "))
	}
	for _, name := range failedNames(rk) {
		fmt.Fprintf(file, "%s: FAILED (%s)\n", name, rk.Failures[name])
	}

	fmt.Fprintf(file, "\nTOP %d FEATURES\n", rk.K)
	fmt.Fprintf(file, "---------------\n")
	if err := writeTable(file, rk, rk.K); err != nil {
		return err
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generateConsensusCSV writes the full vote table, one row per feature and
// one boolean column per selector.
func (r *Reporter) generateConsensusCSV() error {
	csvPath := filepath.Join(r.outputPath, "consensus.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create consensus table: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Rank", "Feature"}
	for _, res := range r.ranking.Results {
		header = append(header, res.Selector)
	}
	header = append(header, "Total")
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, e := range r.ranking.Entries {
		voted := make(map[string]bool, len(e.SelectedBy))
		for _, s := range e.SelectedBy {
			voted[s] = true
		}
		record := []string{strconv.Itoa(i + 1), e.Feature}
		for _, res := range r.ranking.Results {
			record = append(record, strconv.FormatBool(voted[res.Selector]))
		}
		record = append(record, strconv.Itoa(e.Votes))
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write consensus table: %w", err)
	}
	log.Info().Str("file", csvPath).Msg("Consensus table generated")
	return nil
}

// generateScoresCSV writes every selector's raw score per feature.
func (r *Reporter) generateScoresCSV() error {
	csvPath := filepath.Join(r.outputPath, "selector_scores.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create score table: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Selector", "Feature", "Score", "PValue", "Selected"}); err != nil {
		return err
	}

	names := r.ranking.Features
	for _, res := range r.ranking.Results {
		for j, score := range res.Scores {
			if j >= len(names) {
				break
			}
			pvalue := ""
			if j < len(res.PValues) {
				pvalue = strconv.FormatFloat(res.PValues[j], 'g', 6, 64)
			}
			record := []string{
				res.Selector,
				names[j],
				strconv.FormatFloat(score, 'g', 8, 64),
				pvalue,
				strconv.FormatBool(res.Mask[j]),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write score table: %w", err)
	}
	log.Info().Str("file", csvPath).Msg("Selector score table generated")
	return nil
}

// generateJSONReport generates a JSON report with all data
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "consensus.json")

	data, err := json.MarshalIndent(r.ranking, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints the top entries of the ranking to w
func (r *Reporter) PrintSummary(w io.Writer, top int) error {
	rk := r.ranking
	fmt.Fprintln(w, "\n=== CONSENSUS RANKING ===")
	fmt.Fprintf(w, "Run: %s\n", rk.RunID)
	fmt.Fprintf(w, "Selectors: %d voted, %d failed\n", rk.Succeeded(), len(rk.Failures))
	for _, name := range failedNames(rk) {
		fmt.Fprintf(w, "  %s: %s\n", name, rk.Failures[name])
	}
	if err := writeTable(w, rk, top); err != nil {
		return err
	}
	fmt.Fprintln(w, "=========================")
	return nil
}

func writeTable(w io.Writer, rk *consensus.Ranking, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tFEATURE\tVOTES\tSELECTED BY\n")
	for i, e := range rk.TopK(top) {
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\n", i+1, e.Feature, e.Votes, rk.Succeeded(), strings.Join(e.SelectedBy, ","))
	}
	return tw.Flush()
}

func failedNames(rk *consensus.Ranking) []string {
	names := make([]string, 0, len(rk.Failures))
	for name := range rk.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
