package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/cvmmap/internal/api"
	"github.com/bryanchriswhite/cvmmap/internal/logger"
	"github.com/bryanchriswhite/cvmmap/internal/output"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the frames as an MJPEG web viewer",
	Long: `Follow the frame stream and serve it over HTTP.

The server provides an MJPEG stream, a JPEG snapshot, JSON stats, a websocket
feed of frame headers and Prometheus metrics. A failed stream is rebuilt after
--retry, so the viewer survives producer restarts.`,
	Example: `  # Start the viewer on the default port (8080)
  cvmmap serve

  # Start on a custom port at 30 fps
  cvmmap serve --port 9090 --fps 30

  # Start with debug logging
  cvmmap serve --log-level debug`,
	RunE: runServe,
}

var serveRetry time.Duration

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 0, "server port (default is 8080)")
	serveCmd.Flags().Int("fps", 0, "maximum encoded frames per second")
	serveCmd.Flags().Int("quality", 0, "JPEG quality (1-100)")
	serveCmd.Flags().Bool("overlay", true, "stamp the frame header onto the viewer image")
	serveCmd.Flags().DurationVar(&serveRetry, "retry", 2*time.Second, "delay before rebuilding a failed stream (0 exits instead)")

	bind(serveCmd.Flags(), map[string]string{
		"server_port":    "port",
		"viewer.fps":     "fps",
		"viewer.quality": "quality",
		"viewer.overlay": "overlay",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("segment", cfg.SegmentName).
		Str("address", cfg.Address).
		Str("socket", cfg.Socket).
		Msg("Starting cvmmap viewer")

	mjpeg := output.NewMJPEGOutput(output.Config{
		FPS:     cfg.Viewer.FPS,
		Quality: cfg.Viewer.Quality,
		Overlay: cfg.Viewer.Overlay,
	})
	headers := output.NewHeaderFeed()
	for _, out := range []output.Output{mjpeg, headers} {
		if err := out.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", out.Name(), err)
		}
		defer out.Stop()
	}

	live := &current{}
	server := api.NewServer(configMgr, live, mjpeg, headers)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.ServerPort)
	})
	g.Go(func() error {
		err := consume(gctx, newClient(cfg), live, serveRetry, mjpeg, headers)
		// Streaming clients are released so the server can shut down
		mjpeg.Stop()
		headers.Stop()
		if err != nil {
			return fmt.Errorf("frame stream failed: %w", err)
		}
		return nil
	})

	log.Info().
		Str("viewer", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("metrics", fmt.Sprintf("http://localhost:%d/metrics", cfg.ServerPort)).
		Msg("cvmmap is running, press Ctrl+C to stop")

	err = g.Wait()
	log.Info().Msg("Shutting down")
	return err
}
