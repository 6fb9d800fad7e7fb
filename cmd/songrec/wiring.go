package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"songrecognition/internal/cache"
	"songrecognition/internal/config"
	"songrecognition/internal/downloader"
	"songrecognition/internal/ffmpeg"
	"songrecognition/internal/logger"
	"songrecognition/internal/media"
	"songrecognition/internal/pipeline"
	"songrecognition/internal/provider/shazam"
	"songrecognition/internal/recognition"
	"songrecognition/internal/retry"
	"songrecognition/internal/segment"
	"songrecognition/internal/shutdown"
)

// newLogger builds the process logger writing to w. Unless verbose, every
// run also logs at debug level to a daily file under cfg.Log.Dir.
func newLogger(cfg config.Config, w io.Writer, json bool) *logger.Logger {
	var log *logger.Logger
	if json {
		log = logger.NewJSON(w, cfg.Log.Verbose)
	} else {
		log = logger.NewWriter(w, cfg.Log.Verbose)
	}

	if cfg.Log.Dir == "" || cfg.Log.Verbose {
		return log
	}
	if err := os.MkdirAll(cfg.Log.Dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		return log
	}
	logFile := filepath.Join(cfg.Log.Dir, fmt.Sprintf("songrec_%s.log", time.Now().Format("2006-01-02")))
	if err := log.SetFileLog(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
	} else {
		log.Debug("Logging to file: %s", logFile)
	}
	return log
}

func retryPolicy(cfg config.Config) retry.Policy {
	return retry.Policy{
		Retries:       cfg.Retry.Retries,
		InitialDelay:  cfg.Retry.InitialDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
	}
}

// components are the long-lived collaborators shared by every request.
type components struct {
	pipeline   *pipeline.Pipeline
	recognizer *shazam.Client
}

func buildComponents(ctx context.Context, cfg config.Config, log *logger.Logger, sh *shutdown.Handler) (*components, error) {
	policy := retryPolicy(cfg)

	tool := ffmpeg.New(cfg.Segment.FFmpegPath, cfg.Segment.FFprobePath)
	extractor := downloader.New(downloader.Options{
		Binary:         cfg.Download.YtDlpPath,
		Fragments:      cfg.Download.Fragments,
		CookiesBrowser: cfg.Download.CookiesBrowser,
	}, log)
	fetcher := downloader.NewHTTPFetcher(cfg.Download.Timeout)
	gate := semaphore.NewWeighted(int64(cfg.Download.Concurrency))

	resolver := media.NewResolver(extractor, fetcher, tool, gate, media.Options{
		OutputDir:  cfg.Paths.OutputDir,
		StagingDir: cfg.Paths.StagingDir,
		ChunkSize:  cfg.Download.ChunkSize,
		MaxBytes:   cfg.Download.MaxBytes,
		Retry:      policy,
	}, log)

	seg := segment.New(segment.TaglibProber{Fallback: tool}, tool, cfg.ClipLength())

	client := shazam.New(shazam.Options{
		BaseURL:   cfg.Recognizer.BaseURL,
		Timeout:   cfg.Recognizer.Timeout,
		RateLimit: rate.Limit(cfg.Recognizer.RateLimit),
		Burst:     cfg.Recognizer.Burst,
	})

	var backend recognition.Backend = client
	if cfg.Cache.RedisAddr != "" {
		var store cache.Store
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			log.Warn("Track cache falls back to memory: %v", err)
			store = cache.NewMemoryStore()
		} else {
			log.Info("Caching track lookups in Redis at %s", cfg.Cache.RedisAddr)
			store = redisStore
		}
		sh.AddCleanup("track cache", func(context.Context) error { return store.Close() })
		backend = cache.NewBackend(client, store, cfg.Cache.TTL, log)
	}

	consensus, err := recognition.ParseConsensus(cfg.Recognizer.Consensus)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(resolver, seg, backend, recognition.Options{
		Retry:       policy,
		Concurrency: cfg.Recognizer.Concurrency,
		Consensus:   consensus,
	}, log)

	return &components{pipeline: p, recognizer: client}, nil
}
