package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadCSV reads a collision table from a CSV file with a header row.
func LoadCSV(filePath string) (*Frame, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	frame, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	log.Info().
		Str("file", filePath).
		Int("rows", frame.Len()).
		Int("columns", len(frame.Columns())).
		Msg("CSV data loaded successfully")

	return frame, nil
}

// ReadCSV reads a header row followed by records. Cells are kept verbatim:
// the source data encodes blanks as a single space, which the recoding table
// maps explicitly.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}

	return NewFrame(header, records)
}
