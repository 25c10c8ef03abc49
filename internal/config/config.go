package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/agrisense/agripipe/internal/cleaning"
	"github.com/agrisense/agripipe/internal/enrichment"
	"github.com/agrisense/agripipe/internal/storage"
	"github.com/agrisense/agripipe/internal/validation"
	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// Config is the root configuration for a pipeline run. It is loaded from an
// optional YAML file, then overridden by AGRIPIPE_* environment variables.
type Config struct {
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Output    OutputConfig   `mapstructure:"output"`
}

// PipelineConfig tunes the cleaning, enrichment and validation stages.
type PipelineConfig struct {
	ZScoreThreshold    float64               `mapstructure:"zscore_threshold"`
	MissingValuePolicy string                `mapstructure:"missing_value_policy"`
	WindowDays         int                   `mapstructure:"window_days"`
	StrictSchema       bool                  `mapstructure:"strict_schema"`
	RunTimeout         time.Duration         `mapstructure:"run_timeout"`
	CalibrationPath    string                `mapstructure:"calibration_path"`
	ValueRanges        map[string]ValueRange `mapstructure:"value_ranges"`
}

// ValueRange is an inclusive physical plausibility bound for one reading type.
type ValueRange struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// StorageConfig selects the history backend and the optional side stores.
type StorageConfig struct {
	History        string            `mapstructure:"history"`
	PersistHistory bool              `mapstructure:"persist_history"`
	TimescaleDB    TimescaleDBConfig `mapstructure:"timescaledb"`
	InfluxDB       InfluxDBConfig    `mapstructure:"influxdb"`
	Checkpoint     CheckpointConfig  `mapstructure:"checkpoint"`
	Archive        ArchiveConfig     `mapstructure:"archive"`
}

type TimescaleDBConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Database       string        `mapstructure:"database"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	Table          string        `mapstructure:"table"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

type InfluxDBConfig struct {
	URL          string `mapstructure:"url"`
	Token        string `mapstructure:"token"`
	Organization string `mapstructure:"organization"`
	Bucket       string `mapstructure:"bucket"`
}

// CheckpointConfig enables the Redis checkpoint store used to resume
// ingestion after the last processed date.
type CheckpointConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ArchiveConfig enables uploading run artifacts to S3 after a successful run.
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

// OutputConfig locates the partitioned dataset and the quality report.
type OutputConfig struct {
	ProcessedDir string `mapstructure:"processed_dir"`
	ReportPath   string `mapstructure:"report_path"`
}

// Load reads configuration from cfgFile (optional) and the environment.
// Missing file is not an error; every field has a working default.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("agripipe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AGRIPIPE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.NewConfigurationError(errors.CodeConfigReadFailed,
				fmt.Sprintf("error reading config file: %v", err))
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.NewConfigurationError(errors.CodeConfigParseFailed,
			fmt.Sprintf("error unmarshaling config: %v", err))
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("pipeline.zscore_threshold", constants.DefaultZScoreThreshold)
	v.SetDefault("pipeline.missing_value_policy", constants.DefaultMissingPolicy)
	v.SetDefault("pipeline.window_days", constants.RollingWindowDays)
	v.SetDefault("pipeline.strict_schema", false)
	v.SetDefault("pipeline.run_timeout", constants.DefaultRunTimeout)

	v.SetDefault("storage.history", "memory")
	v.SetDefault("storage.persist_history", false)
	v.SetDefault("storage.timescaledb.host", "localhost")
	v.SetDefault("storage.timescaledb.port", 5432)
	v.SetDefault("storage.timescaledb.database", "agripipe")
	v.SetDefault("storage.timescaledb.ssl_mode", "disable")
	v.SetDefault("storage.timescaledb.table", "sensor_readings")
	v.SetDefault("storage.influxdb.url", "http://localhost:8086")
	v.SetDefault("storage.checkpoint.enabled", false)
	v.SetDefault("storage.checkpoint.addr", "localhost:6379")
	v.SetDefault("storage.checkpoint.key_prefix", constants.AppName)
	v.SetDefault("storage.archive.enabled", false)

	v.SetDefault("output.processed_dir", constants.DefaultProcessedDir)
	v.SetDefault("output.report_path", constants.DefaultReportPath)
}

func (c *Config) validate() error {
	switch c.Storage.History {
	case "memory", "timescaledb", "influxdb":
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfigValue,
			fmt.Sprintf("unknown history backend %q", c.Storage.History))
	}
	if c.Pipeline.ZScoreThreshold <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfigValue,
			"pipeline.zscore_threshold must be positive")
	}
	if c.Pipeline.WindowDays <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfigValue,
			"pipeline.window_days must be positive")
	}
	switch cleaning.MissingValuePolicy(c.Pipeline.MissingValuePolicy) {
	case cleaning.PolicyDrop, cleaning.PolicyForwardFill:
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfigValue,
			fmt.Sprintf("unknown missing value policy %q", c.Pipeline.MissingValuePolicy))
	}
	for name := range c.Pipeline.ValueRanges {
		if !models.ReadingType(name).Valid() {
			return errors.NewConfigurationError(errors.CodeInvalidConfigValue,
				fmt.Sprintf("value range for unknown reading type %q", name))
		}
	}
	return nil
}

// CleanerConfig builds the cleaning stage configuration.
func (c *Config) CleanerConfig() *cleaning.Config {
	return &cleaning.Config{
		ZScoreThreshold:    c.Pipeline.ZScoreThreshold,
		MissingValuePolicy: cleaning.MissingValuePolicy(c.Pipeline.MissingValuePolicy),
		StrictSchema:       c.Pipeline.StrictSchema,
	}
}

// EnricherConfig builds the enrichment stage configuration.
func (c *Config) EnricherConfig() *enrichment.Config {
	return &enrichment.Config{
		ZScoreThreshold: c.Pipeline.ZScoreThreshold,
		WindowDays:      c.Pipeline.WindowDays,
	}
}

// ValidatorConfig builds the validation stage configuration. Configured value
// ranges override the defaults per reading type; types left out keep theirs.
func (c *Config) ValidatorConfig() *validation.Config {
	ranges := validation.DefaultValueRanges()
	for name, r := range c.Pipeline.ValueRanges {
		ranges[models.ReadingType(name)] = validation.Range{Min: r.Min, Max: r.Max}
	}
	return &validation.Config{
		ValueRanges:  ranges,
		StrictSchema: c.Pipeline.StrictSchema,
	}
}

// TimescaleDBConfig builds the TimescaleDB storage configuration.
func (c *Config) TimescaleDBConfig() *storage.TimescaleDBConfig {
	ts := c.Storage.TimescaleDB
	return &storage.TimescaleDBConfig{
		Host:           ts.Host,
		Port:           ts.Port,
		Database:       ts.Database,
		Username:       ts.Username,
		Password:       ts.Password,
		SSLMode:        ts.SSLMode,
		Table:          ts.Table,
		ConnectTimeout: ts.ConnectTimeout,
		QueryTimeout:   ts.QueryTimeout,
		MaxConnections: ts.MaxConnections,
	}
}

// InfluxDBConfig builds the InfluxDB storage configuration.
func (c *Config) InfluxDBConfig() *storage.InfluxDBConfig {
	in := c.Storage.InfluxDB
	return &storage.InfluxDBConfig{
		URL:          in.URL,
		Token:        in.Token,
		Organization: in.Organization,
		Bucket:       in.Bucket,
	}
}

// CheckpointConfig builds the Redis checkpoint store configuration.
func (c *Config) CheckpointConfig() *storage.RedisCheckpointConfig {
	cp := c.Storage.Checkpoint
	return &storage.RedisCheckpointConfig{
		Addr:      cp.Addr,
		Password:  cp.Password,
		DB:        cp.DB,
		KeyPrefix: cp.KeyPrefix,
	}
}

// ArchiveConfig builds the S3 archive sink configuration.
func (c *Config) ArchiveConfig() *storage.S3ArchiveConfig {
	ar := c.Storage.Archive
	return &storage.S3ArchiveConfig{
		Region:   ar.Region,
		Bucket:   ar.Bucket,
		Prefix:   ar.Prefix,
		Endpoint: ar.Endpoint,
	}
}
