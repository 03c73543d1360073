package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pimotion/motionrec/internal/storage"
)

var reclaimMinFreeMB uint64

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Free space in the record store now",
	Long: `Remove the oldest recordings until the configured minimum free space
is available, the same pass the recorder runs after every session.

Hidden files are never removed.`,
	Args: cobra.NoArgs,
	RunE: runReclaim,
}

func init() {
	rootCmd.AddCommand(reclaimCmd)
	reclaimCmd.Flags().Uint64Var(&reclaimMinFreeMB, "min-free-mb", 0, "override records.min_free_mb")
}

func runReclaim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	minFree := cfg.Records.MinFreeMB
	if reclaimMinFreeMB > 0 {
		minFree = reclaimMinFreeMB
	}

	fmt.Printf("Reclaiming %s until %s is free...\n", cfg.Records.Dir, humanize.Bytes(minFree*1000*1000))

	res := storage.NewReclaimer(storage.DiskProbe{}).EnsureFreeSpace(cfg.Records.Dir, minFree)

	for _, name := range res.Removed {
		fmt.Printf("Removed: %s\n", name)
	}
	for _, name := range res.Failed {
		fmt.Printf("Warning: failed to remove %s\n", name)
	}

	switch {
	case res.Satisfied && len(res.Removed) == 0:
		fmt.Printf("Nothing to remove, %s free.\n", humanize.Bytes(res.FreeMB*1000*1000))
	case res.Satisfied:
		fmt.Printf("Removed %d recording(s), %s free.\n", len(res.Removed), humanize.Bytes(res.FreeMB*1000*1000))
	default:
		return fmt.Errorf("could not free enough space in %s (removed %d recording(s))", cfg.Records.Dir, len(res.Removed))
	}
	return nil
}
