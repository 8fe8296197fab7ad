package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/cvmmap"
	"github.com/bryanchriswhite/cvmmap/internal/config"
	"github.com/bryanchriswhite/cvmmap/internal/logger"
)

var (
	cfgFile string
	v       = viper.New()
	rootCmd = &cobra.Command{
		Use:   "cvmmap",
		Short: "cvmmap - observe frames published through shared memory",
		Long: `cvmmap attaches to a shared-memory segment written by a video producer
and follows its per-frame notifications over ZeroMQ.

Features:
  • Zero-copy access to the producer's frame buffer
  • Header logging for every notification
  • MJPEG web viewer with stats and Prometheus metrics
  • Frame dumps to png, bmp, tiff or raw files
  • Persistent configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cvmmap/config.yaml)")
	flags.StringP("segment", "s", "", "shared-memory segment name (default psm_default)")
	flags.StringP("address", "a", "", "notification address (default ipc:///tmp/0)")
	flags.String("socket", "", "ZeroMQ socket type (pull or sub)")
	flags.String("topic", "", "SUB subscription prefix")
	flags.Int("hwm", 0, "notifications queued before the producer is held back")
	flags.String("shm-dir", "", "directory holding named segments (default /dev/shm)")
	flags.Bool("strict", false, "fail when the frame shape changes")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable console logs")

	// Bind flags to viper
	bind(flags, map[string]string{
		"segment_name":      "segment",
		"address":           "address",
		"socket":            "socket",
		"topic":             "topic",
		"high_water_mark":   "hwm",
		"shm_dir":           "shm-dir",
		"strict_dimensions": "strict",
		"log_level":         "log-level",
		"log_pretty":        "log-pretty",
	})
}

func bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		v.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() {
	v.SetEnvPrefix("CVMMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies flag and environment overrides
// and configures logging.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.Apply(v); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")
	return configMgr, nil
}

func newClient(cfg *config.Config) *cvmmap.Client {
	return cvmmap.New(cfg.SegmentName, cfg.Address,
		cvmmap.WithSocket(cvmmap.SocketType(cfg.Socket)),
		cvmmap.WithTopic(cfg.Topic),
		cvmmap.WithHighWaterMark(cfg.HighWaterMark),
		cvmmap.WithSharedMemoryDir(cfg.ShmDir),
		cvmmap.WithStrictDimensions(cfg.StrictDimensions),
	)
}
