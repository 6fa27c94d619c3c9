package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ksi-rank/internal/common"
	"ksi-rank/internal/selection"
)

type Settings struct {
	DataPath          string
	RecodePath        string
	NumFeatures       int
	Selectors         []string
	RFEStep           int
	ForestTrees       int
	ForestMaxDepth    int
	BoostRounds       int
	BoostLearningRate float64
	BoostColsample    float64
	LogisticC         float64
	LogisticMaxIter   int
	Seed              int64
	SelectorTimeout   time.Duration
	MaxConcurrent     int
	StorePath         string
	OutputPath        string
	MetricsFile       string
	LogLevel          string
}

type ConfigFile struct {
	Data struct {
		Path       string `yaml:"path"`
		RecodePath string `yaml:"recodePath"`
	} `yaml:"data"`

	Selection struct {
		NumFeatures     int      `yaml:"numFeatures"`
		Selectors       []string `yaml:"selectors"`
		Seed            *int64   `yaml:"seed"`
		SelectorTimeout string   `yaml:"selectorTimeout"`
		MaxConcurrent   int      `yaml:"maxConcurrent"`
	} `yaml:"selection"`

	Models struct {
		RFEStep           int     `yaml:"rfeStep"`
		ForestTrees       int     `yaml:"forestTrees"`
		ForestMaxDepth    int     `yaml:"forestMaxDepth"`
		BoostRounds       int     `yaml:"boostRounds"`
		BoostLearningRate float64 `yaml:"boostLearningRate"`
		BoostColsample    float64 `yaml:"boostColsample"`
		LogisticC         float64 `yaml:"logisticC"`
		LogisticMaxIter   int     `yaml:"logisticMaxIter"`
	} `yaml:"models"`

	System struct {
		StorePath   string `yaml:"storePath"`
		OutputPath  string `yaml:"outputPath"`
		MetricsFile string `yaml:"metricsFile"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout := common.DefaultSelectorTimeout
	if config.Selection.SelectorTimeout != "" {
		timeout, err = time.ParseDuration(config.Selection.SelectorTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid selectorTimeout %q: %w", config.Selection.SelectorTimeout, err)
		}
	}

	seed := int64(common.DefaultSeed)
	if config.Selection.Seed != nil {
		seed = *config.Selection.Seed
	}

	settings := Settings{
		DataPath:          getEnvOrDefault(common.EnvDataPath, orString(config.Data.Path, common.DefaultDataPath)),
		RecodePath:        getEnvOrDefault(common.EnvRecodePath, orString(config.Data.RecodePath, common.DefaultRecodePath)),
		NumFeatures:       getIntFromEnvOrConfig(common.EnvNumFeatures, config.Selection.NumFeatures, common.DefaultNumFeatures),
		Selectors:         getListFromEnvOrConfig(common.EnvSelectors, config.Selection.Selectors),
		RFEStep:           getIntFromEnvOrConfig(common.EnvRFEStep, config.Models.RFEStep, common.DefaultRFEStep),
		ForestTrees:       getIntFromEnvOrConfig(common.EnvForestTrees, config.Models.ForestTrees, common.DefaultForestTrees),
		ForestMaxDepth:    getIntFromEnvOrConfig(common.EnvForestMaxDepth, config.Models.ForestMaxDepth, 0),
		BoostRounds:       getIntFromEnvOrConfig(common.EnvBoostRounds, config.Models.BoostRounds, common.DefaultBoostRounds),
		BoostLearningRate: getFloatFromEnvOrConfig(common.EnvBoostLearningRate, config.Models.BoostLearningRate, common.DefaultBoostLearningRate),
		BoostColsample:    getFloatFromEnvOrConfig(common.EnvBoostColsample, config.Models.BoostColsample, common.DefaultBoostColsample),
		LogisticC:         getFloatFromEnvOrConfig(common.EnvLogisticC, config.Models.LogisticC, common.DefaultLogisticC),
		LogisticMaxIter:   getIntFromEnvOrConfig(common.EnvLogisticMaxIter, config.Models.LogisticMaxIter, common.DefaultLogisticMaxIter),
		Seed:              getInt64OrDefault(common.EnvSeed, seed),
		SelectorTimeout:   getDurationOrDefault(common.EnvSelectorTimeout, timeout),
		MaxConcurrent:     getIntFromEnvOrConfig(common.EnvMaxConcurrent, config.Selection.MaxConcurrent, 0),
		StorePath:         getEnvOrDefault(common.EnvStorePath, orString(config.System.StorePath, common.DefaultStorePath)),
		OutputPath:        getEnvOrDefault(common.EnvOutputPath, orString(config.System.OutputPath, common.DefaultOutputPath)),
		MetricsFile:       getEnvOrDefault(common.EnvMetricsFile, config.System.MetricsFile),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orString(config.System.LogLevel, common.DefaultLogLevel)),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Defaults()
	settings.DataPath = getEnvOrDefault(common.EnvDataPath, settings.DataPath)
	settings.RecodePath = getEnvOrDefault(common.EnvRecodePath, settings.RecodePath)
	settings.NumFeatures = getIntOrDefault(common.EnvNumFeatures, settings.NumFeatures)
	settings.Selectors = splitOrDefault(os.Getenv(common.EnvSelectors), settings.Selectors)
	settings.RFEStep = getIntOrDefault(common.EnvRFEStep, settings.RFEStep)
	settings.ForestTrees = getIntOrDefault(common.EnvForestTrees, settings.ForestTrees)
	settings.ForestMaxDepth = getIntOrDefault(common.EnvForestMaxDepth, settings.ForestMaxDepth)
	settings.BoostRounds = getIntOrDefault(common.EnvBoostRounds, settings.BoostRounds)
	settings.BoostLearningRate = getFloatOrDefault(common.EnvBoostLearningRate, settings.BoostLearningRate)
	settings.BoostColsample = getFloatOrDefault(common.EnvBoostColsample, settings.BoostColsample)
	settings.LogisticC = getFloatOrDefault(common.EnvLogisticC, settings.LogisticC)
	settings.LogisticMaxIter = getIntOrDefault(common.EnvLogisticMaxIter, settings.LogisticMaxIter)
	settings.Seed = getInt64OrDefault(common.EnvSeed, settings.Seed)
	settings.SelectorTimeout = getDurationOrDefault(common.EnvSelectorTimeout, settings.SelectorTimeout)
	settings.MaxConcurrent = getIntOrDefault(common.EnvMaxConcurrent, settings.MaxConcurrent)
	settings.StorePath = getEnvOrDefault(common.EnvStorePath, settings.StorePath)
	settings.OutputPath = getEnvOrDefault(common.EnvOutputPath, settings.OutputPath)
	settings.MetricsFile = getEnvOrDefault(common.EnvMetricsFile, settings.MetricsFile)
	settings.LogLevel = getEnvOrDefault(common.EnvLogLevel, settings.LogLevel)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// Defaults returns the settings used when neither a config file nor the
// environment says otherwise.
func Defaults() Settings {
	return Settings{
		DataPath:          common.DefaultDataPath,
		RecodePath:        common.DefaultRecodePath,
		NumFeatures:       common.DefaultNumFeatures,
		Selectors:         append([]string(nil), selection.DefaultNames...),
		RFEStep:           common.DefaultRFEStep,
		ForestTrees:       common.DefaultForestTrees,
		BoostRounds:       common.DefaultBoostRounds,
		BoostLearningRate: common.DefaultBoostLearningRate,
		BoostColsample:    common.DefaultBoostColsample,
		LogisticC:         common.DefaultLogisticC,
		LogisticMaxIter:   common.DefaultLogisticMaxIter,
		Seed:              common.DefaultSeed,
		SelectorTimeout:   common.DefaultSelectorTimeout,
		StorePath:         common.DefaultStorePath,
		OutputPath:        common.DefaultOutputPath,
		LogLevel:          common.DefaultLogLevel,
	}
}

// SelectionOptions returns the selector tuning knobs.
func (s *Settings) SelectionOptions() selection.Options {
	return selection.Options{
		RFEStep:           s.RFEStep,
		LogisticC:         s.LogisticC,
		LogisticMaxIter:   s.LogisticMaxIter,
		ForestTrees:       s.ForestTrees,
		ForestMaxDepth:    s.ForestMaxDepth,
		BoostRounds:       s.BoostRounds,
		BoostLearningRate: s.BoostLearningRate,
		BoostColsample:    s.BoostColsample,
		Seed:              s.Seed,
	}
}

// Validate checks settings changed after loading, e.g. by command-line flags.
func (s *Settings) Validate() error {
	return validateSettings(s)
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return append([]string(nil), selection.DefaultNames...)
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.RecodePath == "" {
		return fmt.Errorf("recode path cannot be empty")
	}

	// Validate selectors
	if len(settings.Selectors) == 0 {
		return fmt.Errorf("at least one selector must be specified")
	}
	if _, err := selection.Build(settings.Selectors, settings.SelectionOptions()); err != nil {
		return fmt.Errorf("invalid selectors: %w", err)
	}

	// Validate integer values
	if settings.NumFeatures <= 0 || settings.NumFeatures > common.MaxNumFeatures {
		return fmt.Errorf("number of features must be between 1 and %d, got %d", common.MaxNumFeatures, settings.NumFeatures)
	}
	if settings.RFEStep <= 0 {
		return fmt.Errorf("RFE step must be positive, got %d", settings.RFEStep)
	}
	if settings.ForestTrees <= 0 || settings.ForestTrees > common.MaxForestTrees {
		return fmt.Errorf("forest trees must be between 1 and %d, got %d", common.MaxForestTrees, settings.ForestTrees)
	}
	if settings.ForestMaxDepth < 0 {
		return fmt.Errorf("forest max depth cannot be negative, got %d", settings.ForestMaxDepth)
	}
	if settings.BoostRounds <= 0 || settings.BoostRounds > common.MaxBoostRounds {
		return fmt.Errorf("boost rounds must be between 1 and %d, got %d", common.MaxBoostRounds, settings.BoostRounds)
	}
	if settings.LogisticMaxIter <= 0 || settings.LogisticMaxIter > common.MaxLogisticMaxIter {
		return fmt.Errorf("logistic max iterations must be between 1 and %d, got %d", common.MaxLogisticMaxIter, settings.LogisticMaxIter)
	}
	if settings.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent cannot be negative, got %d", settings.MaxConcurrent)
	}

	// Validate float values
	if settings.BoostLearningRate <= 0 || settings.BoostLearningRate > 1 {
		return fmt.Errorf("boost learning rate must be in (0, 1], got %f", settings.BoostLearningRate)
	}
	if settings.BoostColsample <= 0 || settings.BoostColsample > 1 {
		return fmt.Errorf("boost colsample must be in (0, 1], got %f", settings.BoostColsample)
	}
	if settings.LogisticC <= 0 {
		return fmt.Errorf("logistic C must be positive, got %f", settings.LogisticC)
	}

	// Validate time durations
	if settings.SelectorTimeout < 0 || settings.SelectorTimeout > common.MaxSelectorTimeout {
		return fmt.Errorf("selector timeout must be between 0 and %v, got %v", common.MaxSelectorTimeout, settings.SelectorTimeout)
	}

	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	return nil
}
