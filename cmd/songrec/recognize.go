package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"songrecognition/internal/config"
	"songrecognition/internal/logger"
	"songrecognition/internal/media"
	"songrecognition/internal/metadata"
	"songrecognition/internal/pipeline"
	"songrecognition/internal/progress"
	"songrecognition/internal/recognition"
	"songrecognition/internal/shutdown"
	"songrecognition/pkg/utils"
)

type recognizer interface {
	Run(ctx context.Context, ref media.Reference, hooks pipeline.Hooks) (metadata.Report, error)
}

// newRecognizer wires the recognition pipeline for one CLI run.
var newRecognizer = func(ctx context.Context, cfg config.Config, log *logger.Logger, sh *shutdown.Handler) (recognizer, error) {
	comp, err := buildComponents(ctx, cfg, log, sh)
	if err != nil {
		return nil, err
	}
	return comp.pipeline, nil
}

type recognizeFlags struct {
	direct    bool
	writeTags bool
}

func newRecognizeCmd(root *rootFlags) *cobra.Command {
	flags := &recognizeFlags{}

	cmd := &cobra.Command{
		Use:   "recognize <link|file>",
		Short: "Recognize a single link or local file and print the result as JSON",
		Example: `  songrec recognize "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
  songrec recognize --direct https://example.com/clip.mp3
  songrec recognize --write-tags ~/Music/unknown.mp3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecognize(cmd, root, flags, args[0])
		},
	}
	cmd.Flags().BoolVar(&flags.direct, "direct", false, "treat the link as a direct media URL instead of a hosted page")
	cmd.Flags().BoolVar(&flags.writeTags, "write-tags", false, "write the recognized metadata into the local file's tags")
	return cmd
}

func runRecognize(cmd *cobra.Command, root *rootFlags, flags *recognizeFlags, target string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// stdout carries only the JSON report.
	log := newLogger(cfg, cmd.ErrOrStderr(), false)
	defer log.Close()

	tempDir, err := utils.CreateTempDir()
	if err != nil {
		return err
	}
	defer utils.Cleanup(tempDir)
	cfg.Paths.OutputDir = filepath.Join(tempDir, "output")
	cfg.Paths.StagingDir = filepath.Join(tempDir, "staging")
	if err := utils.EnsureDirs(cfg.Paths.OutputDir, cfg.Paths.StagingDir); err != nil {
		return err
	}

	ref, localFile, err := referenceFor(target, flags.direct)
	if err != nil {
		return err
	}
	if flags.writeTags && localFile == "" {
		return fmt.Errorf("--write-tags needs a local file")
	}
	if localFile != "" {
		f, err := os.Open(localFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if ref, err = media.NewUploadReference(filepath.Base(localFile), f); err != nil {
			return err
		}
	}

	sh := shutdown.New(cfg.Server.ShutdownTimeout)
	sh.Listen()
	defer sh.Shutdown()

	rec, err := newRecognizer(sh.Context(), cfg, log, sh)
	if err != nil {
		return err
	}

	var hooks pipeline.Hooks
	var bar *progress.Bar
	if !cfg.Log.Verbose {
		hooks.OnClips = func(total int) { bar = progress.New(cmd.ErrOrStderr(), total) }
		hooks.OnClip = func(res recognition.ClipResult) {
			if bar != nil {
				bar.Increment(len(res.IDs) > 0)
			}
		}
	}

	report, err := rec.Run(sh.Context(), ref, hooks)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if flags.writeTags {
		if err := metadata.WriteTags(localFile, report); err != nil {
			return err
		}
		log.Info("Tagged %s: %s - %s", filepath.Base(localFile), report.Subtitle, report.Title)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// referenceFor returns the reference for a link, or the path when target
// names an existing local file.
func referenceFor(target string, direct bool) (media.Reference, string, error) {
	if !strings.Contains(target, "://") {
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			return media.Reference{}, target, nil
		}
	}
	if direct {
		ref, err := media.NewDirectReference(target)
		return ref, "", err
	}
	ref, err := media.NewPageReference(target)
	return ref, "", err
}
