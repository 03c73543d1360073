package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/config"
	"github.com/pimotion/motionrec/internal/logging"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "motionrec",
	Short: "motionrec - motion-triggered video recorder",
	Long: `motionrec records video while motion is detected and keeps the
recording store from filling up.

Run the recorder:
  motionrec run

Simulate motion on the running recorder:
  motionrec trigger

Inspect and tidy up:
  motionrec sessions
  motionrec reclaim
  motionrec prune`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.motionrec/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the configuration and applies its logging settings
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	if err := logging.Configure(level, cfg.Log.Format); err != nil {
		logging.NewLogger("cmd").WithError(err).Warn("invalid log level, using info")
	}
	return cfg, nil
}
