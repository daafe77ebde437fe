// Package config holds the run configuration of the predict command.
package config

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix scopes the environment variables that may stand in for flags,
// e.g. ALLENNLP_PREDICT_BATCH_SIZE.
const envPrefix = "ALLENNLP_PREDICT"

// Config is the resolved run configuration. It is built once from CLI
// arguments (with environment variables as fallback) and read-only
// afterward.
type Config struct {
	ArchiveFile string
	InputFile   string

	OutputFile  string `mapstructure:"output-file"`
	WeightsFile string `mapstructure:"weights-file"`
	BatchSize   int    `mapstructure:"batch-size"`
	Silent      bool   `mapstructure:"silent"`
	CUDADevice  int    `mapstructure:"cuda-device"`

	UseDatasetReader    bool   `mapstructure:"use-dataset-reader"`
	DatasetReaderChoice string `mapstructure:"dataset-reader-choice"`
	CompressionType     string `mapstructure:"compression-type"`
	MultitaskHead       string `mapstructure:"multitask-head"`

	Overrides     string `mapstructure:"overrides"`
	PredictorName string `mapstructure:"predictor"`
	PredictorArgs string `mapstructure:"predictor-args"`

	FileFriendlyLogging bool `mapstructure:"file-friendly-logging"`

	CacheAddr   string `mapstructure:"cache-addr"`
	MetricsPort int    `mapstructure:"metrics-port"`
}

// Load resolves the configuration from the parsed flag set and positional
// arguments. Priority (highest to lowest): flags > env vars > defaults.
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ArchiveFile = args[0]
	cfg.InputFile = args[1]

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	switch c.DatasetReaderChoice {
	case "train", "validation":
	default:
		return fmt.Errorf("invalid dataset reader choice %q (want train or validation)", c.DatasetReaderChoice)
	}
	switch c.CompressionType {
	case "", "gz", "bz2", "lzma":
	default:
		return fmt.Errorf("invalid compression type %q (want gz, bz2 or lzma)", c.CompressionType)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.PredictorArgs != "" {
		if _, err := c.ExtraArgs(); err != nil {
			return err
		}
	}
	return nil
}

// ExtraArgs parses the --predictor-args JSON object. An empty string yields
// an empty map.
func (c *Config) ExtraArgs() (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(c.PredictorArgs)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}
	args := map[string]interface{}{}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("failed to parse predictor args: %w", err)
	}
	return args, nil
}
