package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/config"
	"github.com/pimotion/motionrec/internal/logging"
	"github.com/pimotion/motionrec/internal/motion"
	"github.com/pimotion/motionrec/internal/pidfile"
	"github.com/pimotion/motionrec/internal/recorder"
	"github.com/pimotion/motionrec/internal/session"
	"github.com/pimotion/motionrec/internal/storage"
)

// shutdownTimeout bounds how long a stopping recorder may take to flush
const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the motion-triggered recorder",
	Long: `Run the recorder in the foreground.

Every configured motion line starts a recording when none is active. A
recording lasts at least the grace period and ends once no motion arrived
during the last wait. After each recording the oldest files are removed
until the minimum free space is available again.

SIGINT or SIGTERM stop the current recording cleanly and exit.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.NewLogger("cmd")

	// Ensure the record store exists; an existing one is fine
	if err := os.Mkdir(cfg.Records.Dir, 0777); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	if err := pidfile.Acquire(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		_ = pidfile.Release(cfg.PIDFile)
	}()

	store, err := session.NewStore(cfg.Journal.Dir)
	if err != nil {
		return err
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}

	ctrl := session.NewController(session.Settings{
		Dir:          cfg.Records.Dir,
		Extension:    cfg.Records.Extension,
		RecorderPath: cfg.Recorder.Path,
		Argv:         cfg.RecorderArgv,
		GracePeriod:  cfg.Session.GracePeriod,
		MinFreeMB:    cfg.Records.MinFreeMB,
	}, recorder.NewExecLauncher(), storage.NewReclaimer(storage.DiskProbe{}), session.WithJournal(store))

	dispatcher := motion.NewDispatcher(ctrl)

	log.WithFields(logrus.Fields{
		"records":  cfg.Records.Dir,
		"recorder": cfg.Recorder.Path,
		"grace":    cfg.Session.GracePeriod,
		"min_free": cfg.Records.MinFreeMB,
		"lines":    len(sources),
	}).Info("recorder ready")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := motion.Listen(ctx, dispatcher, sources...)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("recording did not stop in time")
	}

	events, started := dispatcher.Stats()
	log.WithFields(logrus.Fields{"events": events, "sessions": started}).Info("recorder stopped")

	return listenErr
}

// buildSources opens every configured motion line
func buildSources(cfg *config.Config) ([]motion.Source, error) {
	var sources []motion.Source
	if cfg.Motion.Signal {
		sources = append(sources, motion.SignalSource{})
	}

	for _, line := range cfg.Motion.Lines {
		src, err := motion.NewFileSource(line)
		if err != nil {
			for _, opened := range sources {
				if fs, ok := opened.(*motion.FileSource); ok {
					_ = fs.Close()
				}
			}
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
