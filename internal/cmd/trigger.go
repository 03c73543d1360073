package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/pidfile"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Send a motion event to the running recorder",
	Long: `Send a motion event to the running recorder, exactly as if a motion
line had fired. Requires motion.signal to be enabled.`,
	Args: cobra.NoArgs,
	RunE: runTrigger,
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.Motion.Signal {
		return fmt.Errorf("motion.signal is disabled, the recorder ignores triggers")
	}

	pid, err := pidfile.Running(cfg.PIDFile)
	if err != nil {
		return err
	}

	if err := syscall.Kill(pid, syscall.SIGUSR1); err != nil {
		return fmt.Errorf("failed to signal recorder %d: %w", pid, err)
	}

	fmt.Printf("Motion sent to recorder (PID %d).\n", pid)
	return nil
}
