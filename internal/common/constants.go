package common

import "time"

// Environment variable keys
const (
	EnvConfigFile        = "CONFIG_FILE"
	EnvDataPath          = "DATA_PATH"
	EnvRecodePath        = "RECODE_PATH"
	EnvNumFeatures       = "NUM_FEATURES"
	EnvSelectors         = "SELECTORS"
	EnvRFEStep           = "RFE_STEP"
	EnvForestTrees       = "FOREST_TREES"
	EnvForestMaxDepth    = "FOREST_MAX_DEPTH"
	EnvBoostRounds       = "BOOST_ROUNDS"
	EnvBoostLearningRate = "BOOST_LEARNING_RATE"
	EnvBoostColsample    = "BOOST_COLSAMPLE"
	EnvLogisticC         = "LOGISTIC_C"
	EnvLogisticMaxIter   = "LOGISTIC_MAX_ITER"
	EnvSeed              = "SEED"
	EnvSelectorTimeout   = "SELECTOR_TIMEOUT"
	EnvMaxConcurrent     = "MAX_CONCURRENT"
	EnvStorePath         = "STORE_PATH"
	EnvOutputPath        = "OUTPUT_PATH"
	EnvMetricsFile       = "METRICS_FILE"
	EnvLogLevel          = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultDataPath          = "data/KSI.csv"
	DefaultRecodePath        = "configs/ksi_recode.yaml"
	DefaultNumFeatures       = 10
	DefaultRFEStep           = 10
	DefaultForestTrees       = 500
	DefaultBoostRounds       = 500
	DefaultBoostLearningRate = 0.05
	DefaultBoostColsample    = 0.2
	DefaultLogisticC         = 1.0
	DefaultLogisticMaxIter   = 100
	DefaultSeed              = 42
	DefaultSelectorTimeout   = 10 * time.Minute
	DefaultStorePath         = "data/store"
	DefaultOutputPath        = "reports"
	DefaultLogLevel          = "info"
)

// Bounds enforced by configuration validation
const (
	MaxNumFeatures     = 1000
	MaxForestTrees     = 5000
	MaxBoostRounds     = 10000
	MaxLogisticMaxIter = 10000
	MaxSelectorTimeout = 24 * time.Hour
)
