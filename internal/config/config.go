package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"photo-shrinker-go/internal/codec"
	"photo-shrinker-go/internal/strategy"
)

// GearOption describes a sizing strategy for listings in the CLI and web API.
type GearOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config represents the main configuration structure
type Config struct {
	SourceDirectory     string            `mapstructure:"source_directory" validate:"required"`
	TargetDirectory     *string           `mapstructure:"target_directory"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Compression         CompressionConfig `mapstructure:"compression"`
	Processing          ProcessingConfig  `mapstructure:"processing"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Security            SecurityConfig    `mapstructure:"security"`
	Logging             LoggingConfig     `mapstructure:"logging"`
	Web                 WebConfig         `mapstructure:"web"`
}

// CompressionConfig controls the sizing strategy and the quality loop
type CompressionConfig struct {
	Gear                 string `mapstructure:"gear"`
	MinQuality           int    `mapstructure:"min_quality"`
	QualityStep          int    `mapstructure:"quality_step"`
	KeepOriginalIfLarger bool   `mapstructure:"keep_original_if_larger"`
}

// ProcessingConfig contains file processing settings
type ProcessingConfig struct {
	DuplicateHandling string `mapstructure:"duplicate_handling"`
	SkipMarked        bool   `mapstructure:"skip_marked"`
	MarkOutput        bool   `mapstructure:"mark_output"`
	StrictBudget      bool   `mapstructure:"strict_budget"`
	OutputSuffix      string `mapstructure:"output_suffix"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	BatchSize     int `mapstructure:"batch_size"`
	WorkerThreads int `mapstructure:"worker_threads"`
}

// SecurityConfig contains security and safety settings
type SecurityConfig struct {
	DryRun         bool `mapstructure:"dry_run"`
	MaxFilesPerRun int  `mapstructure:"max_files_per_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// WebConfig contains web server settings
type WebConfig struct {
	Port        int   `mapstructure:"port"`
	MaxUploadMB int64 `mapstructure:"max_upload_mb"`
}

// GetAvailableGears returns the sizing strategies that can be configured
func GetAvailableGears() []GearOption {
	return []GearOption{
		{
			ID:          strategy.GearFirst.String(),
			Name:        "First gear",
			Description: "Short side capped at 1280px (720px long side for panoramas), fixed 60KB budget",
		},
		{
			ID:          strategy.GearThird.String(),
			Name:        "Third gear",
			Description: "Halves or divides large images by aspect bucket, budget scales with pixel count",
		},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif",
		},
		Compression: CompressionConfig{
			Gear:                 strategy.DefaultGear.String(),
			MinQuality:           codec.MinQuality,
			QualityStep:          6,
			KeepOriginalIfLarger: true,
		},
		Processing: ProcessingConfig{
			DuplicateHandling: "rename", // rename, skip, overwrite
			SkipMarked:        true,
			MarkOutput:        false,
			StrictBudget:      false,
			OutputSuffix:      "",
		},
		Performance: PerformanceConfig{
			BatchSize:     100,
			WorkerThreads: 4,
		},
		Security: SecurityConfig{
			DryRun:         false,
			MaxFilesPerRun: 0, // 0 means no limit
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "photo-shrinker.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
		Web: WebConfig{
			Port:        8080,
			MaxUploadMB: 32,
		},
	}
}

// LoadConfigWith loads configuration from file and environment variables
// through v. The CLI passes the global viper instance so flag bindings take
// part in the lookup.
func LoadConfigWith(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-shrinker")
		v.AddConfigPath("/etc/photo-shrinker")
	}

	// Enable environment variable support
	v.SetEnvPrefix("PHOTO_SHRINKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers the keys that have no default in the file so
// AutomaticEnv picks them up during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"source_directory",
		"target_directory",
		"compression.gear",
		"compression.min_quality",
		"compression.quality_step",
		"compression.keep_original_if_larger",
		"processing.duplicate_handling",
		"processing.skip_marked",
		"processing.mark_output",
		"processing.strict_budget",
		"processing.output_suffix",
		"performance.worker_threads",
		"performance.batch_size",
		"security.dry_run",
		"security.max_files_per_run",
		"logging.level",
		"logging.file_path",
		"web.port",
		"web.max_upload_mb",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		return fmt.Errorf("source_directory is required")
	}

	if !isValidPath(c.SourceDirectory) {
		return fmt.Errorf("source_directory does not exist or is not accessible: %s", c.SourceDirectory)
	}

	// The target is created on demand, but it must not be a file
	if c.TargetDirectory != nil && *c.TargetDirectory != "" {
		if info, err := os.Stat(expandPath(*c.TargetDirectory)); err == nil && !info.IsDir() {
			return fmt.Errorf("target_directory is not a directory: %s", *c.TargetDirectory)
		}
	}

	if err := c.Compression.validate(); err != nil {
		return err
	}

	validStrategies := map[string]bool{
		"rename":    true,
		"skip":      true,
		"overwrite": true,
	}
	if !validStrategies[c.Processing.DuplicateHandling] {
		return fmt.Errorf("invalid duplicate_handling strategy: %s (valid: rename, skip, overwrite)",
			c.Processing.DuplicateHandling)
	}
	if strings.ContainsAny(c.Processing.OutputSuffix, `/\`) {
		return fmt.Errorf("output_suffix must not contain path separators: %q", c.Processing.OutputSuffix)
	}
	if c.IsInPlace() && c.Processing.OutputSuffix == "" && c.Processing.DuplicateHandling == "overwrite" {
		return fmt.Errorf("in-place runs with duplicate_handling=overwrite need an output_suffix")
	}

	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)

	if c.Performance.BatchSize <= 0 {
		c.Performance.BatchSize = 100
	}
	if c.Performance.WorkerThreads <= 0 {
		c.Performance.WorkerThreads = 4
	}
	if c.Security.MaxFilesPerRun < 0 {
		c.Security.MaxFilesPerRun = 0
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		c.Web.Port = 8080
	}
	if c.Web.MaxUploadMB <= 0 {
		c.Web.MaxUploadMB = 32
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func (c *CompressionConfig) validate() error {
	gear, err := strategy.SelectGear(c.Gear)
	if err != nil {
		return fmt.Errorf("invalid compression.gear: %w", err)
	}
	c.Gear = gear.String()

	if c.MinQuality < codec.MinQuality || c.MinQuality > codec.MaxQuality {
		return fmt.Errorf("compression.min_quality must be between %d and %d, got %d",
			codec.MinQuality, codec.MaxQuality, c.MinQuality)
	}
	if c.QualityStep <= 0 || c.QualityStep >= codec.MaxQuality {
		return fmt.Errorf("compression.quality_step must be between 1 and %d, got %d",
			codec.MaxQuality-1, c.QualityStep)
	}
	return nil
}

// GearValue returns the configured gear. Validate guarantees it is known.
func (c *Config) GearValue() strategy.Gear {
	gear, err := strategy.SelectGear(c.Compression.Gear)
	if err != nil {
		return strategy.DefaultGear
	}
	return gear
}

// GetTargetDirectory returns the target directory or source directory if target is not set
func (c *Config) GetTargetDirectory() string {
	if c.TargetDirectory != nil && *c.TargetDirectory != "" {
		return *c.TargetDirectory
	}
	return c.SourceDirectory
}

// IsInPlace returns true if outputs are written next to their sources
func (c *Config) IsInPlace() bool {
	return c.TargetDirectory == nil || *c.TargetDirectory == "" ||
		filepath.Clean(*c.TargetDirectory) == filepath.Clean(c.SourceDirectory)
}

// IsImageExtension checks if the extension is for an image file
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	stat, err := os.Stat(expandPath(path))
	return err == nil && stat.IsDir()
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
