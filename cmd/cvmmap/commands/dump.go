package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/output"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write frames to disk",
	Long: `Follow the frame stream and write every Nth frame to a directory.

Files are named frame_<frame_count>.<format>. The raw format writes the pixel
bytes exactly as the producer laid them out.`,
	Example: `  # Write every frame as PNG into ./frames
  cvmmap dump

  # Write every 30th frame as TIFF and stop after 10 files
  cvmmap dump --format tiff --every 30 --limit 10 --dir /tmp/frames`,
	RunE: runDump,
}

var dumpLimit uint64

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringP("dir", "d", "", "output directory (default ./frames)")
	dumpCmd.Flags().StringP("format", "f", "", "file format: png, bmp, tiff or raw")
	dumpCmd.Flags().Int("every", 0, "write one frame out of every N")
	dumpCmd.Flags().Uint64Var(&dumpLimit, "limit", 0, "stop after writing this many files (0 means forever)")

	bind(dumpCmd.Flags(), map[string]string{
		"dump.dir":    "dir",
		"dump.format": "format",
		"dump.every":  "every",
	})
}

func runDump(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("dump")

	disk, err := output.NewDiskOutput(cfg.Dump.Dir, cfg.Dump.Format, cfg.Dump.Every)
	if err != nil {
		return err
	}
	if err := disk.Start(); err != nil {
		return err
	}
	defer disk.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newClient(cfg).Stream()
	defer s.Close()

	for f, err := range s.All(ctx) {
		if err != nil {
			return fmt.Errorf("frame stream failed: %w", err)
		}
		if err := disk.WriteFrame(f); err != nil {
			return err
		}
		if dumpLimit > 0 && disk.Written() >= dumpLimit {
			break
		}
	}

	log.Info().
		Uint64("written", disk.Written()).
		Str("dir", cfg.Dump.Dir).
		Msg("Dump finished")
	return nil
}
