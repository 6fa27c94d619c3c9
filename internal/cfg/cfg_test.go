package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ksi-rank/internal/selection"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.NumFeatures != 10 {
					t.Errorf("expected default NumFeatures 10, got %d", settings.NumFeatures)
				}
				if len(settings.Selectors) != len(selection.DefaultNames) {
					t.Errorf("expected all selectors by default, got %v", settings.Selectors)
				}
				if settings.RFEStep != 10 {
					t.Errorf("expected default RFEStep 10, got %d", settings.RFEStep)
				}
				if settings.ForestTrees != 500 {
					t.Errorf("expected default ForestTrees 500, got %d", settings.ForestTrees)
				}
				if settings.Seed != 42 {
					t.Errorf("expected default Seed 42, got %d", settings.Seed)
				}
				if settings.SelectorTimeout != 10*time.Minute {
					t.Errorf("expected default SelectorTimeout 10m, got %v", settings.SelectorTimeout)
				}
				if settings.BoostColsample != 0.2 {
					t.Errorf("expected default BoostColsample 0.2, got %f", settings.BoostColsample)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"DATA_PATH":        "/tmp/ksi.csv",
				"NUM_FEATURES":     "15",
				"SELECTORS":        "correlation, chi_square",
				"FOREST_TREES":     "100",
				"SEED":             "7",
				"SELECTOR_TIMEOUT": "90s",
				"MAX_CONCURRENT":   "2",
				"LOG_LEVEL":        "debug",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.DataPath != "/tmp/ksi.csv" {
					t.Errorf("expected DataPath /tmp/ksi.csv, got %s", settings.DataPath)
				}
				if settings.NumFeatures != 15 {
					t.Errorf("expected NumFeatures 15, got %d", settings.NumFeatures)
				}
				expected := []string{"correlation", "chi_square"}
				if strings.Join(settings.Selectors, ",") != strings.Join(expected, ",") {
					t.Errorf("expected selectors %v, got %v", expected, settings.Selectors)
				}
				if settings.ForestTrees != 100 {
					t.Errorf("expected ForestTrees 100, got %d", settings.ForestTrees)
				}
				if settings.Seed != 7 {
					t.Errorf("expected Seed 7, got %d", settings.Seed)
				}
				if settings.SelectorTimeout != 90*time.Second {
					t.Errorf("expected SelectorTimeout 90s, got %v", settings.SelectorTimeout)
				}
				if settings.MaxConcurrent != 2 {
					t.Errorf("expected MaxConcurrent 2, got %d", settings.MaxConcurrent)
				}
			},
		},
		{
			name:    "unknown selector",
			envVars: map[string]string{"SELECTORS": "correlation,lasso"},
			wantErr: true,
		},
		{
			name:    "zero features",
			envVars: map[string]string{"NUM_FEATURES": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := loadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
data:
  path: data/KSI.csv
  recodePath: configs/ksi_recode.yaml
selection:
  numFeatures: 12
  selectors: [correlation, embedded_tree]
  seed: 0
  selectorTimeout: 2m
models:
  forestTrees: 250
  boostLearningRate: 0.1
system:
  storePath: /var/lib/ksi
  logLevel: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := loadFromYAML(configPath)
	if err != nil {
		t.Fatalf("loadFromYAML failed: %v", err)
	}

	if settings.NumFeatures != 12 {
		t.Errorf("expected NumFeatures 12, got %d", settings.NumFeatures)
	}
	if len(settings.Selectors) != 2 || settings.Selectors[1] != "embedded_tree" {
		t.Errorf("unexpected selectors %v", settings.Selectors)
	}
	if settings.Seed != 0 {
		t.Errorf("expected explicit seed 0, got %d", settings.Seed)
	}
	if settings.SelectorTimeout != 2*time.Minute {
		t.Errorf("expected SelectorTimeout 2m, got %v", settings.SelectorTimeout)
	}
	if settings.ForestTrees != 250 {
		t.Errorf("expected ForestTrees 250, got %d", settings.ForestTrees)
	}
	if settings.BoostLearningRate != 0.1 {
		t.Errorf("expected BoostLearningRate 0.1, got %f", settings.BoostLearningRate)
	}
	// Unset values fall back to defaults
	if settings.BoostRounds != 500 {
		t.Errorf("expected default BoostRounds 500, got %d", settings.BoostRounds)
	}
	if settings.StorePath != "/var/lib/ksi" {
		t.Errorf("expected StorePath /var/lib/ksi, got %s", settings.StorePath)
	}
}

func TestLoadFromYAML_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("selection:\n  numFeatures: 12\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NUM_FEATURES", "20")
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.NumFeatures != 20 {
		t.Errorf("expected env override 20, got %d", settings.NumFeatures)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := loadFromYAML(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("selection: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadFromYAML(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}

	badTimeout := filepath.Join(dir, "timeout.yaml")
	if err := os.WriteFile(badTimeout, []byte("selection:\n  selectorTimeout: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadFromYAML(badTimeout); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestSelectionOptions(t *testing.T) {
	settings := Defaults()
	settings.ForestMaxDepth = 12

	opts := settings.SelectionOptions()
	if opts.ForestTrees != 500 || opts.ForestMaxDepth != 12 || opts.Seed != 42 {
		t.Errorf("unexpected options %+v", opts)
	}

	sels, err := selection.Build(settings.Selectors, opts)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(sels) != len(selection.DefaultNames) {
		t.Errorf("expected %d selectors, got %d", len(selection.DefaultNames), len(sels))
	}
}
