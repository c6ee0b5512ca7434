package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/hupe1980/edgeidx"
	"github.com/hupe1980/edgeidx/partition"
)

// Config is the merged configuration of file, environment and flags.
type Config struct {
	LogFormat   string      `mapstructure:"log_format" validate:"oneof=text json"`
	LogLevel    string      `mapstructure:"log_level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Workers     int         `mapstructure:"workers" validate:"gte=1,lte=4096"`
	Strategy    string      `mapstructure:"strategy" validate:"oneof=replicated sharded"`
	MemoryLimit string      `mapstructure:"memory_limit"`
	IOLimit     string      `mapstructure:"io_limit"`
	ChunkRows   uint64      `mapstructure:"chunk_rows"`
	MetricsFile string      `mapstructure:"metrics_file"`
	Trace       bool        `mapstructure:"trace"`
	Store       StoreConfig `mapstructure:"store"`
}

// StoreConfig selects the blob store for publish, fetch and list.
type StoreConfig struct {
	URL       string `mapstructure:"url"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Insecure  bool   `mapstructure:"insecure"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 1)
	v.SetDefault("strategy", "replicated")
}

func decodeConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Strategy = strings.ToLower(cfg.Strategy)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := parseSize(cfg.MemoryLimit); err != nil {
		return cfg, fmt.Errorf("invalid config: memory_limit: %w", err)
	}
	if _, err := parseSize(cfg.IOLimit); err != nil {
		return cfg, fmt.Errorf("invalid config: io_limit: %w", err)
	}
	return cfg, nil
}

// parseSize parses a human readable byte count. Empty means unlimited.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%s exceeds %s", s, humanize.IBytes(math.MaxInt64))
	}
	return int64(n), nil
}

// indexOptions translates cfg into Indexer options.
func (a *app) indexOptions() ([]edgeidx.Option, error) {
	strategy, err := partition.ParseStrategy(a.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	mem, _ := parseSize(a.cfg.MemoryLimit)
	io, _ := parseSize(a.cfg.IOLimit)

	opts := []edgeidx.Option{
		edgeidx.WithLogger(a.log),
		edgeidx.WithStrategy(strategy),
		edgeidx.WithMemoryLimit(mem),
		edgeidx.WithIOLimit(io),
	}
	if a.cfg.ChunkRows > 0 {
		opts = append(opts, edgeidx.WithChunkRows(a.cfg.ChunkRows))
	}
	return opts, nil
}
