package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"pseudobulk/internal/errors"
)

// Config represents the complete pipeline configuration. It is built once at
// startup and passed by value into each component; nothing mutates it after
// Load returns.
type Config struct {
	Input    InputConfig
	Output   OutputConfig
	Analysis AnalysisConfig
	Run      RunConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// InputConfig holds the input artifact paths
type InputConfig struct {
	CountsFile  string // gene x cell raw count matrix, TSV or TSV.gz
	CellMeta    string // per-cell metadata table, TSV
	SampleTable string // sample name -> experimental attributes, TSV
}

// OutputConfig holds output locations
type OutputConfig struct {
	Dir string
}

// AnalysisConfig holds the statistical parameters of a run
type AnalysisConfig struct {
	Clusters      []string // cluster labels of interest, in test order
	GroupColumn   string   // metadata column used for grouping (default "cluster")
	OutlierSample string   // sample removed from every contrast; empty = none
	Alpha         float64  // FDR cutoff for classification
	LFCThreshold  float64  // log2 fold-change magnitude threshold
	FitMethod     string   // dispersion fit method passed to the engine
}

// RunConfig holds execution settings
type RunConfig struct {
	Workers         int
	ContrastTimeout time.Duration
}

// DatabaseConfig holds the optional result-sink connection. An empty URL
// disables persistence.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds artifact server settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Input: InputConfig{
			CountsFile:  getEnvOrDefault("DE_COUNTS", ""),
			CellMeta:    getEnvOrDefault("DE_CELL_META", ""),
			SampleTable: getEnvOrDefault("DE_SAMPLE_TABLE", ""),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("DE_OUT_DIR", "out"),
		},
		Analysis: AnalysisConfig{
			Clusters:      splitList(getEnvOrDefault("DE_CLUSTERS", "")),
			GroupColumn:   getEnvOrDefault("DE_GROUP_COLUMN", "cluster"),
			OutlierSample: getEnvOrDefault("DE_OUTLIER_SAMPLE", ""),
			Alpha:         getEnvFloatOrDefault("DE_ALPHA", 0.1),
			LFCThreshold:  getEnvFloatOrDefault("DE_LFC_THRESHOLD", 0),
			FitMethod:     getEnvOrDefault("DE_FIT_METHOD", "parametric"),
		},
		Run: RunConfig{
			Workers:         getEnvIntOrDefault("DE_WORKERS", runtime.NumCPU()),
			ContrastTimeout: getEnvDurationOrDefault("DE_CONTRAST_TIMEOUT", 10*time.Minute),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Analysis.Alpha <= 0 || config.Analysis.Alpha >= 1 {
		return errors.ConfigInvalid("DE_ALPHA must be in (0, 1)")
	}
	if config.Analysis.LFCThreshold < 0 {
		return errors.ConfigInvalid("DE_LFC_THRESHOLD must be >= 0")
	}
	if config.Analysis.GroupColumn == "" {
		return errors.ConfigInvalid("DE_GROUP_COLUMN is required")
	}
	if config.Run.Workers < 1 {
		return errors.ConfigInvalid("DE_WORKERS must be >= 1")
	}
	return nil
}

// splitList parses a comma-separated list, trimming blanks
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
