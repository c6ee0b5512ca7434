// Package commands implements the edgeidx command line.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/edgeidx"
)

// configKeys maps config keys to the flags that override them.
var configKeys = map[string]string{
	"log_format":       "log-format",
	"log_level":        "log-level",
	"workers":          "workers",
	"strategy":         "strategy",
	"memory_limit":     "memory-limit",
	"io_limit":         "io-limit",
	"chunk_rows":       "chunk-rows",
	"metrics_file":     "metrics-file",
	"trace":            "trace",
	"store.url":        "store",
	"store.region":     "store-region",
	"store.endpoint":   "store-endpoint",
	"store.access_key": "store-access-key",
	"store.secret_key": "store-secret-key",
	"store.insecure":   "store-insecure",
}

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     Config
	log     *edgeidx.Logger
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd returns the edgeidx command tree. Every call returns an
// independent tree with its own configuration.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "edgeidx",
		Short: "Bidirectional range index for edge populations",
		Long: `edgeidx builds the source and target range indices of edge populations
stored in an edgeidx container, and publishes finished containers to
object storage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./edgeidx.yaml or $HOME/.edgeidx.yaml)")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("store", "", "blob store URL: file:///dir, s3://bucket/prefix or minio://bucket/prefix")
	pf.String("store-region", "", "S3 region")
	pf.String("store-endpoint", "", "S3 or MinIO endpoint")
	pf.String("store-access-key", "", "MinIO access key")
	pf.String("store-secret-key", "", "MinIO secret key")
	pf.Bool("store-insecure", false, "use plain HTTP for MinIO")

	root.AddCommand(
		newIndexCmd(a),
		newLookupCmd(a),
		newVerifyCmd(a),
		newInspectCmd(a),
		newPublishCmd(a),
		newFetchCmd(a),
		newListCmd(a),
	)
	return root
}

// load reads the config file, environment and flags into a.cfg.
func (a *app) load(cmd *cobra.Command) error {
	setDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("edgeidx")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(home)
		}
	}
	a.v.SetEnvPrefix("EDGEIDX")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	for key, name := range configKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := decodeConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log, err = newLogger(cmd, cfg)
	return err
}

func newLogger(cmd *cobra.Command, cfg Config) (*edgeidx.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	w := cmd.ErrOrStderr()
	if cfg.LogFormat == "json" {
		return edgeidx.NewJSONLogger(w, level), nil
	}
	return edgeidx.NewTextLogger(w, level), nil
}

func addIndexFlags(fs *pflag.FlagSet) {
	fs.Int("workers", 1, "number of workers")
	fs.String("strategy", "replicated", "construction strategy: replicated or sharded")
	fs.String("memory-limit", "", "per-worker memory limit, e.g. 2GiB (unlimited if empty)")
	fs.String("io-limit", "", "per-worker write bandwidth, e.g. 200MB (unlimited if empty)")
	fs.Uint64("chunk-rows", 0, "rows per write request (default if 0)")
	fs.String("metrics-file", "", "write Prometheus metrics to this file")
	fs.Bool("trace", false, "print trace spans to stderr")
}
