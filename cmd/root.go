package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/config"
	"github.com/herdwatch/herdwatch/internal/version"
	"github.com/spf13/cobra"
)

var rootCmdPersistentFlags struct {
	LogFile    string
	ConfigFile string
	LogLevel   string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogFile, "log-file", "", "File to write logs to")
	rootCmd.PersistentFlags().StringVarP(&rootCmdPersistentFlags.ConfigFile, "config", "c", "", "Path to config file (default: search for config.yml in current dir, ~/.herdwatch, /etc/herdwatch)")
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error) - overrides config file setting")
}

var rootCmd = &cobra.Command{
	Use:   "herdwatch",
	Short: "Herdwatch is a dashboard for livestock temperature readings",
	Long:  `Herdwatch receives temperature readings and camera images from a barn sensor and serves a dashboard to browse, filter and export them.`,
	Example: `herdwatch --config config.yml
  herdwatch -c /path/to/config.yml --log-level debug
  herdwatch user add alice --role admin`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if rootCmdPersistentFlags.LogLevel != "" {
			setLogLevel(rootCmdPersistentFlags.LogLevel)
		}
		logToFile()
	},
	Run: startServer,
}

// loadConfig loads the configuration and applies its log level unless the
// --log-level flag was given.
func loadConfig() *config.Config {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if rootCmdPersistentFlags.LogLevel == "" {
		setLogLevel(cfg.LogLevel)
	}
	return cfg
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("unknown log level %s, defaulting to info", level)
		log.SetLevel(log.InfoLevel)
	}
}

func logToFile() {
	if rootCmdPersistentFlags.LogFile == "" {
		return
	}
	file, err := os.OpenFile(rootCmdPersistentFlags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		log.Errorf("failed to open log file: %v", err)
		return
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.Info("logging to both console and file", "file", rootCmdPersistentFlags.LogFile)
}

func Execute() error {
	return fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithCommit(version.Commit),
	)
}
