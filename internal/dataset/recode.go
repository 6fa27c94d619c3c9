package dataset

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Blank label policies.
const (
	BlankAssign = "assign" // blank labels become BlankPolicy.Class
	BlankDrop   = "drop"   // rows with a blank label are removed
)

// RecodeConfig is the externally supplied cleaning table: which columns to
// drop, how categorical values map to ordinal codes or merged buckets, and
// which columns are one-hot expanded.
type RecodeConfig struct {
	Label   LabelConfig                   `yaml:"label"`
	Filter  string                        `yaml:"filter"`
	Drop    []string                      `yaml:"drop"`
	Numeric []string                      `yaml:"numeric"`
	Ordinal map[string]map[string]float64 `yaml:"ordinal"`
	Merge   map[string]map[string]string  `yaml:"merge"`
	OneHot  []string                      `yaml:"one_hot"`
}

// LabelConfig maps the label column's values to class codes.
type LabelConfig struct {
	Column  string         `yaml:"column"`
	Classes map[string]int `yaml:"classes"`
	Blank   *BlankPolicy   `yaml:"blank"`
}

// BlankPolicy states what a blank label means. The source data does not say
// whether a blank injury is "no injury" or "not recorded", so the choice is
// never implicit.
type BlankPolicy struct {
	Policy string `yaml:"policy"`
	Class  int    `yaml:"class"`
}

// LoadRecodeConfig reads a recoding table from a YAML file.
func LoadRecodeConfig(path string) (RecodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RecodeConfig{}, fmt.Errorf("failed to read recode file %s: %w", path, err)
	}

	var rc RecodeConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return RecodeConfig{}, fmt.Errorf("failed to parse recode file: %w", err)
	}
	return rc, nil
}

// Recoder applies a RecodeConfig to a raw Frame and produces a FeatureMatrix.
type Recoder struct {
	cfg    RecodeConfig
	filter *RowFilter
}

// NewRecoder validates the table and compiles its row filter.
func NewRecoder(rc RecodeConfig) (*Recoder, error) {
	if err := validateRecodeConfig(rc); err != nil {
		return nil, fmt.Errorf("recode configuration: %w", err)
	}

	r := &Recoder{cfg: rc}
	if strings.TrimSpace(rc.Filter) != "" {
		f, err := CompileRowFilter(rc.Filter)
		if err != nil {
			return nil, err
		}
		r.filter = f
	}
	return r, nil
}

func validateRecodeConfig(rc RecodeConfig) error {
	if rc.Label.Column == "" {
		return fmt.Errorf("label column is required")
	}
	if len(rc.Label.Classes) == 0 {
		return fmt.Errorf("label classes are required")
	}
	for value, code := range rc.Label.Classes {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("blank label values must be configured through label.blank")
		}
		if code < 0 {
			return fmt.Errorf("label class %q has negative code %d", value, code)
		}
	}
	if b := rc.Label.Blank; b != nil {
		switch b.Policy {
		case BlankAssign:
			if b.Class < 0 {
				return fmt.Errorf("blank label class must be non-negative, got %d", b.Class)
			}
		case BlankDrop:
		default:
			return fmt.Errorf("unknown blank label policy %q", b.Policy)
		}
	}

	// Each column may appear in at most one encoding rule.
	owner := map[string]string{rc.Label.Column: "label"}
	claim := func(col, rule string) error {
		if prev, ok := owner[col]; ok {
			return fmt.Errorf("column %q is used by both %s and %s", col, prev, rule)
		}
		owner[col] = rule
		return nil
	}
	for _, col := range rc.Drop {
		if err := claim(col, "drop"); err != nil {
			return err
		}
	}
	for _, col := range rc.Numeric {
		if err := claim(col, "numeric"); err != nil {
			return err
		}
	}
	for col := range rc.Ordinal {
		if err := claim(col, "ordinal"); err != nil {
			return err
		}
	}
	for _, col := range rc.OneHot {
		if err := claim(col, "one_hot"); err != nil {
			return err
		}
	}
	for col := range rc.Merge {
		if rule := owner[col]; rule != "one_hot" {
			return fmt.Errorf("merge column %q must also be one_hot encoded", col)
		}
	}
	return nil
}

// Apply runs the cleaning steps in order: row filter, column drop, blank
// labels, ordinal codes, bucket merges, one-hot expansion, numeric parsing.
// Every step produces a new Frame; f is left untouched.
func (r *Recoder) Apply(f *Frame) (*FeatureMatrix, error) {
	var err error
	rows := f.Len()

	if r.filter != nil {
		if f, err = r.filter.Apply(f); err != nil {
			return nil, err
		}
	}
	if len(r.cfg.Drop) > 0 {
		if f, err = f.Drop(r.cfg.Drop...); err != nil {
			return nil, &ConstructionError{Field: "drop", Reason: err.Error()}
		}
	}
	if f, err = r.dropBlankLabels(f); err != nil {
		return nil, err
	}
	for _, col := range sortedKeys(r.cfg.Ordinal) {
		if f, err = r.ordinal(f, col); err != nil {
			return nil, err
		}
	}
	for _, col := range r.cfg.OneHot {
		if f, err = r.oneHot(f, col); err != nil {
			return nil, err
		}
	}

	labels, err := r.labels(f)
	if err != nil {
		return nil, err
	}
	features, err := f.Drop(r.cfg.Label.Column)
	if err != nil {
		return nil, err
	}
	for _, col := range r.cfg.Numeric {
		if !features.Has(col) {
			return nil, constructionErr(col, "numeric column not found")
		}
	}

	names := features.Columns()
	columns := make([][]float64, len(names))
	for j, name := range names {
		cells, _ := features.Column(name)
		if columns[j], err = parseNumeric(name, cells); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("rows_in", rows).
		Int("rows_out", len(labels)).
		Int("features", len(names)).
		Msg("Recoded collision table")

	return NewFeatureMatrix(names, columns, labels)
}

func (r *Recoder) dropBlankLabels(f *Frame) (*Frame, error) {
	cells, err := f.Column(r.cfg.Label.Column)
	if err != nil {
		return nil, constructionErr(r.cfg.Label.Column, "label column not found")
	}
	b := r.cfg.Label.Blank
	if b == nil || b.Policy != BlankDrop {
		return f, nil
	}

	out, err := f.Filter(func(i int) (bool, error) {
		return strings.TrimSpace(cells[i]) != "", nil
	})
	if err != nil {
		return nil, err
	}
	if dropped := f.Len() - out.Len(); dropped > 0 {
		log.Warn().Int("rows", dropped).Str("column", r.cfg.Label.Column).Msg("Dropped rows with blank label")
	}
	return out, nil
}

func (r *Recoder) labels(f *Frame) ([]int, error) {
	col := r.cfg.Label.Column
	cells, err := f.Column(col)
	if err != nil {
		return nil, constructionErr(col, "label column not found")
	}

	labels := make([]int, len(cells))
	blanks := 0
	for i, cell := range cells {
		if code, ok := r.cfg.Label.Classes[cell]; ok {
			labels[i] = code
			continue
		}
		if code, ok := r.cfg.Label.Classes[strings.TrimSpace(cell)]; ok {
			labels[i] = code
			continue
		}
		if strings.TrimSpace(cell) == "" {
			if r.cfg.Label.Blank == nil {
				return nil, constructionErr(col, "blank label at row %d and no blank policy configured", i+1)
			}
			labels[i] = r.cfg.Label.Blank.Class
			blanks++
			continue
		}
		return nil, constructionErr(col, "unmapped label %q at row %d", cell, i+1)
	}

	if blanks > 0 {
		log.Warn().
			Int("rows", blanks).
			Int("class", r.cfg.Label.Blank.Class).
			Str("column", col).
			Msg("Blank labels assigned by policy")
	}
	return labels, nil
}

func (r *Recoder) ordinal(f *Frame, col string) (*Frame, error) {
	cells, err := f.Column(col)
	if err != nil {
		return nil, constructionErr(col, "ordinal column not found")
	}
	codes := r.cfg.Ordinal[col]

	out := make([]string, len(cells))
	for i, cell := range cells {
		code, ok := codes[cell]
		if !ok {
			return nil, constructionErr(col, "unmapped value %q at row %d", cell, i+1)
		}
		out[i] = strconv.FormatFloat(code, 'g', -1, 64)
	}
	return f.Replace(col, out)
}

func (r *Recoder) oneHot(f *Frame, col string) (*Frame, error) {
	cells, err := f.Column(col)
	if err != nil {
		return nil, constructionErr(col, "one_hot column not found")
	}

	buckets := r.cfg.Merge[col]
	values := make([]string, len(cells))
	levels := make(map[string]struct{})
	for i, cell := range cells {
		v := cell
		if b, ok := buckets[cell]; ok {
			v = b
		}
		values[i] = v
		levels[v] = struct{}{}
	}

	ordered := make([]string, 0, len(levels))
	for l := range levels {
		ordered = append(ordered, l)
	}
	sort.Strings(ordered)

	names := make([]string, len(ordered))
	columns := make([][]string, len(ordered))
	for k, level := range ordered {
		names[k] = col + "_" + level
		c := make([]string, len(values))
		for i, v := range values {
			if v == level {
				c[i] = "1"
			} else {
				c[i] = "0"
			}
		}
		columns[k] = c
	}
	return f.Expand(col, names, columns)
}

func parseNumeric(name string, cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, constructionErr(name, "non-numeric value %q at row %d", cell, i+1)
		}
		out[i] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
