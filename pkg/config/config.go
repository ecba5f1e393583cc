package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dataset source formats
const (
	FormatIDX       = "idx"
	FormatCSV       = "csv"
	FormatSynthetic = "synthetic"
)

// Config holds the application configuration
type Config struct {
	Environment  string `yaml:"environment"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OutputDir    string `yaml:"output_dir"`
	DatabasePath string `yaml:"database_path"`

	DatasetFormat string `yaml:"dataset_format"`
	TrainImages   string `yaml:"train_images"`
	TrainLabels   string `yaml:"train_labels"`
	TestImages    string `yaml:"test_images"`
	TestLabels    string `yaml:"test_labels"`
	TrainCSV      string `yaml:"train_csv"`
	TestCSV       string `yaml:"test_csv"`
	SyntheticSize int    `yaml:"synthetic_size"`

	Prefix    string `yaml:"prefix"`
	Mode      string `yaml:"mode"`
	Variant   string `yaml:"variant"`
	Epochs    int    `yaml:"epochs"` // 0 keeps the variant's epoch count
	BatchSize int    `yaml:"batch_size"`
	Seed      int64  `yaml:"seed"`
	Schedule  string `yaml:"schedule"`

	LearningRate float64 `yaml:"learning_rate"` // 0 keeps the Adam default
	InputSize    int     `yaml:"input_size"`    // 0 derives it from the images
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Environment:   "development",
		LogLevel:      "info",
		LogFormat:     "text",
		OutputDir:     "output",
		DatabasePath:  "",
		DatasetFormat: FormatIDX,
		TrainImages:   "data/train-images-idx3-ubyte.gz",
		TrainLabels:   "data/train-labels-idx1-ubyte.gz",
		TestImages:    "data/t10k-images-idx3-ubyte.gz",
		TestLabels:    "data/t10k-labels-idx1-ubyte.gz",
		SyntheticSize: 1000,
		Prefix:        "original",
		Mode:          "",
		Variant:       "primary",
		BatchSize:     32,
		Seed:          42,
	}
}

// LoadConfig loads configuration from the YAML file named by DIGITCLF_CONFIG,
// if any, then applies environment variable overrides
func LoadConfig() (*Config, error) {
	config := Default()

	if path := os.Getenv("DIGITCLF_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.Environment = getEnv("ENVIRONMENT", config.Environment)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.LogFormat = getEnv("LOG_FORMAT", config.LogFormat)
	config.OutputDir = getEnv("DIGITCLF_OUTPUT_DIR", config.OutputDir)
	config.DatabasePath = getEnv("DIGITCLF_DATABASE_PATH", config.DatabasePath)
	config.DatasetFormat = getEnv("DIGITCLF_DATASET_FORMAT", config.DatasetFormat)
	config.TrainImages = getEnv("DIGITCLF_TRAIN_IMAGES", config.TrainImages)
	config.TrainLabels = getEnv("DIGITCLF_TRAIN_LABELS", config.TrainLabels)
	config.TestImages = getEnv("DIGITCLF_TEST_IMAGES", config.TestImages)
	config.TestLabels = getEnv("DIGITCLF_TEST_LABELS", config.TestLabels)
	config.TrainCSV = getEnv("DIGITCLF_TRAIN_CSV", config.TrainCSV)
	config.TestCSV = getEnv("DIGITCLF_TEST_CSV", config.TestCSV)
	config.SyntheticSize = getEnvAsInt("DIGITCLF_SYNTHETIC_SIZE", config.SyntheticSize)
	config.Prefix = getEnv("DIGITCLF_PREFIX", config.Prefix)
	config.Mode = getEnv("DIGITCLF_MODE", config.Mode)
	config.Variant = getEnv("DIGITCLF_VARIANT", config.Variant)
	config.Epochs = getEnvAsInt("DIGITCLF_EPOCHS", config.Epochs)
	config.BatchSize = getEnvAsInt("DIGITCLF_BATCH_SIZE", config.BatchSize)
	config.Seed = getEnvAsInt64("DIGITCLF_SEED", config.Seed)
	config.Schedule = getEnv("DIGITCLF_SCHEDULE", config.Schedule)
	config.LearningRate = getEnvAsFloat("DIGITCLF_LEARNING_RATE", config.LearningRate)
	config.InputSize = getEnvAsInt("DIGITCLF_INPUT_SIZE", config.InputSize)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that cannot be defaulted later
func (c *Config) Validate() error {
	switch strings.ToLower(c.DatasetFormat) {
	case FormatIDX, FormatCSV, FormatSynthetic:
	default:
		return fmt.Errorf("unsupported dataset format: %q", c.DatasetFormat)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %q", c.LogFormat)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if c.Epochs < 0 {
		return fmt.Errorf("epochs must not be negative, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate < 0 {
		return fmt.Errorf("learning rate must not be negative, got %g", c.LearningRate)
	}
	if c.InputSize < 0 {
		return fmt.Errorf("input size must not be negative, got %d", c.InputSize)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
