package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ps"},
	Short:   "List recorded sessions",
	Long: `List the recording sessions in the journal, oldest first, with the
size of each recording or "reclaimed" once it has been deleted.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "last", "n", 0, "only show the most recent n sessions")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := session.NewStore(cfg.Journal.Dir)
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	records, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	if sessionsLimit > 0 && len(records) > sessionsLimit {
		records = records[len(records)-sessionsLimit:]
	}

	printSessions(os.Stdout, cfg.Records.Dir, records)
	return nil
}

// printSessions writes an aligned table of records
func printSessions(out io.Writer, recordsDir string, records []*session.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE\tSTARTED\tDURATION\tEVENTS\tEXIT\tSIZE")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t--------\t------\t----\t----")

	for _, rec := range records {
		id := rec.ID
		if len(id) > 8 {
			id = id[:8]
		}

		duration := "-"
		if rec.StoppedAt != nil {
			duration = rec.Duration().Round(time.Second).String()
		}

		exit := rec.ExitReason
		if rec.StopError != "" {
			exit += " (stop failed)"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			id,
			rec.File,
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			duration,
			rec.Events,
			exit,
			recordingSize(recordsDir, rec),
		)
	}

	_ = w.Flush()
}

func recordingSize(recordsDir string, rec *session.Record) string {
	if rec.ExitReason == session.ExitSpawnFailed {
		return "-"
	}
	info, err := os.Stat(filepath.Join(recordsDir, rec.File))
	if err != nil {
		return "reclaimed"
	}
	return humanize.Bytes(uint64(info.Size()))
}
