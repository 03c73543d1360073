package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/session"
)

var pruneAll bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Clean up the session journal",
	Long: `Remove journal entries that no longer point at a recording.

This command removes:
  - Sessions whose recording was reclaimed or deleted
  - Sessions whose recorder never started
  - Every session, with --all`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneAll, "all", "a", false, "remove all sessions")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := session.NewStore(cfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	removed, err := pruneSessions(store, cfg.Records.Dir, pruneAll)
	if err != nil {
		return err
	}

	if removed == 0 {
		fmt.Println("No sessions to remove.")
	} else {
		fmt.Printf("Removed %d session(s).\n", removed)
	}
	return nil
}

// pruneSessions deletes stale journal entries and returns how many it removed
func pruneSessions(store *session.Store, recordsDir string, all bool) (int, error) {
	records, err := store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	removedCount := 0
	for _, rec := range records {
		if !all && !isStale(recordsDir, rec) {
			continue
		}
		if err := store.Delete(rec.ID); err != nil {
			fmt.Printf("Warning: failed to delete session %s: %v\n", rec.ID, err)
			continue
		}
		fmt.Printf("Removed session: %s (%s)\n", rec.ID, rec.File)
		removedCount++
	}
	return removedCount, nil
}

func isStale(recordsDir string, rec *session.Record) bool {
	if rec.ExitReason == session.ExitSpawnFailed {
		return true
	}
	_, err := os.Stat(filepath.Join(recordsDir, rec.File))
	return os.IsNotExist(err)
}
