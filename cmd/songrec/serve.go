package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"songrecognition/internal/shutdown"
	"songrecognition/internal/telemetry"
	"songrecognition/internal/web"
	"songrecognition/pkg/utils"
)

// Files older than this in the work directories are leftovers of a crash.
const staleAfter = time.Hour

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the recognition HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			log := newLogger(cfg, os.Stdout, cfg.Log.JSON)
			defer log.Close()

			log.Debug("Checking dependencies...")
			if err := utils.CheckDependencies(cfg.Download.YtDlpPath, cfg.Segment.FFmpegPath, cfg.Segment.FFprobePath); err != nil {
				return err
			}
			if err := utils.EnsureDirs(cfg.Paths.OutputDir, cfg.Paths.StagingDir); err != nil {
				return err
			}
			for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StagingDir} {
				if n, err := utils.SweepStale(dir, staleAfter); err != nil {
					log.Warn("Failed to sweep %s: %v", dir, err)
				} else if n > 0 {
					log.Info("Removed %d stale files from %s", n, dir)
				}
			}

			sh := shutdown.New(cfg.Server.ShutdownTimeout)
			sh.Listen()

			tp, err := telemetry.NewProvider(sh.Context(), telemetry.Config{
				Endpoint:       cfg.Tracing.Endpoint,
				Insecure:       cfg.Tracing.Insecure,
				SamplingRate:   cfg.Tracing.SamplingRate,
				ServiceName:    "songrec",
				ServiceVersion: version,
			})
			if err != nil {
				return err
			}
			sh.AddCleanup("tracing", tp.Shutdown)

			comp, err := buildComponents(sh.Context(), cfg, log, sh)
			if err != nil {
				sh.Shutdown()
				return err
			}

			server := web.NewServer(comp.pipeline, web.Options{
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				RateLimit:      cfg.Server.RateLimit,
				Tracing:        tp.Enabled(),
				Health:         comp.recognizer.Ping,
			}, log)

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
				IdleTimeout:       60 * time.Second,
			}

			sh.AddCleanup("work directories", func(context.Context) error {
				for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StagingDir} {
					if _, err := utils.SweepStale(dir, 0); err != nil {
						return err
					}
				}
				return nil
			})
			sh.AddCleanup("http server", httpServer.Shutdown)

			errCh := make(chan error, 1)
			go func() {
				log.Info("Starting songrec %s on %s", version, cfg.Server.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-sh.Context().Done():
				log.Info("Shutting down server...")
			case serveErr = <-errCh:
				log.Error("Server error: %v", serveErr)
			}

			if err := sh.Shutdown(); err != nil {
				log.Error("Shutdown error: %v", err)
			}
			log.Info("Server stopped")
			return serveErr
		},
	}
}
