package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Detection DetectionConfig `mapstructure:"detection"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DataConfig holds the input data layout: where continuous waveforms,
// template waveforms, travel-time tables and the catalog live on disk,
// and which channels to admit into processing.
type DataConfig struct {
	ContinuousDir string   `mapstructure:"continuous_dir"`
	TemplateDir   string   `mapstructure:"template_dir"`
	TravelTimeDir string   `mapstructure:"travel_time_dir"`
	CatalogPath   string   `mapstructure:"catalog_path"`
	DayListPath   string   `mapstructure:"day_list_path"`
	Networks      []string `mapstructure:"networks"`
	Stations      []string `mapstructure:"stations"`
	Channels      []string `mapstructure:"channels"`
}

// DetectionConfig holds the detection pipeline tuning knobs.
type DetectionConfig struct {
	ThresholdFactor   float64 `mapstructure:"threshold_factor"`
	StdUp             float64 `mapstructure:"std_up"`
	StdDown           float64 `mapstructure:"std_down"`
	OffExtension      float64 `mapstructure:"off_extension"`
	MinCoincidenceSum float64 `mapstructure:"min_coincidence_sum"`
	SampleTolerance   int     `mapstructure:"sample_tolerance"`
	CCThreshold       float64 `mapstructure:"cc_threshold"`
	MinChannelCount   int     `mapstructure:"min_channel_count"`
	TemplateLength    float64 `mapstructure:"template_length"`
	TimePrecision     int     `mapstructure:"time_precision"`
	DigestTopK        int     `mapstructure:"digest_top_k"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("SEISSCAN")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.continuous_dir", "./data/continuous")
	v.SetDefault("data.template_dir", "./data/templates")
	v.SetDefault("data.travel_time_dir", "./data/travel_times")
	v.SetDefault("data.catalog_path", "./data/catalog.zmap")
	v.SetDefault("data.day_list_path", "./data/days.txt")

	// Detection defaults
	v.SetDefault("detection.threshold_factor", 8.0)
	v.SetDefault("detection.std_up", 9.0)
	v.SetDefault("detection.std_down", 0.2)
	v.SetDefault("detection.off_extension", 3.0)
	v.SetDefault("detection.min_coincidence_sum", 1.0)
	v.SetDefault("detection.sample_tolerance", 6)
	v.SetDefault("detection.cc_threshold", 0.35)
	v.SetDefault("detection.min_channel_count", 3)
	v.SetDefault("detection.template_length", 6.0)
	v.SetDefault("detection.time_precision", 2)
	v.SetDefault("detection.digest_top_k", 10)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/detections.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Data config
	if c.Data.ContinuousDir == "" {
		return fmt.Errorf("data.continuous_dir is required")
	}
	if c.Data.TemplateDir == "" {
		return fmt.Errorf("data.template_dir is required")
	}
	if c.Data.TravelTimeDir == "" {
		return fmt.Errorf("data.travel_time_dir is required")
	}
	if c.Data.CatalogPath == "" {
		return fmt.Errorf("data.catalog_path is required")
	}
	if c.Data.DayListPath == "" {
		return fmt.Errorf("data.day_list_path is required")
	}

	// Validate Detection config
	if c.Detection.ThresholdFactor <= 0 {
		return fmt.Errorf("detection.threshold_factor must be positive")
	}
	if c.Detection.StdUp <= c.Detection.StdDown {
		return fmt.Errorf("detection.std_up must be greater than detection.std_down")
	}
	if c.Detection.StdDown < 0 {
		return fmt.Errorf("detection.std_down must not be negative")
	}
	if c.Detection.OffExtension < 0 {
		return fmt.Errorf("detection.off_extension must not be negative")
	}
	if c.Detection.SampleTolerance < 0 {
		return fmt.Errorf("detection.sample_tolerance must not be negative")
	}
	if c.Detection.CCThreshold <= 0 || c.Detection.CCThreshold >= 1 {
		return fmt.Errorf("detection.cc_threshold must be between 0.0 and 1.0 exclusive")
	}
	if c.Detection.MinChannelCount < 1 {
		return fmt.Errorf("detection.min_channel_count must be at least 1")
	}
	if c.Detection.TemplateLength <= 0 {
		return fmt.Errorf("detection.template_length must be positive")
	}
	if c.Detection.TimePrecision < 0 || c.Detection.TimePrecision > 9 {
		return fmt.Errorf("detection.time_precision must be between 0 and 9")
	}
	if c.Detection.DigestTopK < 1 {
		return fmt.Errorf("detection.digest_top_k must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
