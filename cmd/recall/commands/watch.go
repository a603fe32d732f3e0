package commands

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/ingestion"
	"github.com/54b3r/recall-go/internal/logging"
	"github.com/54b3r/recall-go/internal/server"
)

// watchDebounce batches rapid filesystem events (editors often emit several
// writes per save) into a single re-index.
const watchDebounce = 500 * time.Millisecond

// NewWatchCmd constructs the `recall watch` command, which keeps the index
// in sync with a directory tree and serves queries over it.
func NewWatchCmd() *cobra.Command {
	var pattern string
	var serve bool
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "watch [directory...]",
		Short: "Watch directories and keep the index in sync",
		Long: `Watch one or more directory trees and re-index matching files whenever
they change. New subdirectories are picked up automatically. With --serve,
the HTTP API runs alongside the watcher so the freshest index is always
queryable.

A change triggers a full rebuild of the in-memory index; the on-disk
embedding cache makes this cheap since only modified chunks need new
embeddings.

Examples:
  recall watch docs/
  recall watch docs/ runbooks/ --pattern '**/*.txt'
  recall watch docs/ --serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			roots := args
			if len(roots) == 0 {
				roots = []string{"."}
			}
			for _, root := range roots {
				info, err := os.Stat(root)
				if err != nil {
					return fmt.Errorf("watch: %w", err)
				}
				if !info.IsDir() {
					return fmt.Errorf("watch: %s is not a directory", root)
				}
			}

			met, reg := newMetrics()

			gen, client, err := buildGenerator(ctx, log, met)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			eng, err := buildEngine(gen, log, met)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			pipeline, err := ingestion.NewPipeline(eng, ingestion.Config{}, log)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			defer watcher.Close()

			for _, root := range roots {
				if err := watchTree(watcher, root); err != nil {
					return fmt.Errorf("watch: %w", err)
				}
			}

			reindex := func() {
				eng.Reset()
				globs := make([]string, len(roots))
				for i, root := range roots {
					globs[i] = filepath.Join(root, pattern)
				}
				report, err := pipeline.Ingest(ctx, globs, nil)
				if err != nil {
					log.Error("re-index failed", slog.Any("error", err))
					return
				}
				log.Info("index rebuilt",
					slog.Int("documents", report.Documents),
					slog.Int("chunks", report.Chunks),
					slog.Int("skipped", report.Skipped),
				)
			}
			reindex()

			if serve {
				var pingers []server.Pinger
				if client != nil {
					pingers = append(pingers, server.NewEmbeddingPinger(client, "embedding"))
				}
				srv, err := server.New(eng, nil, &server.Config{
					Host:     host,
					Port:     port,
					Logger:   log,
					Pingers:  pingers,
					Registry: reg,
				})
				if err != nil {
					return fmt.Errorf("watch: %w", err)
				}
				go func() {
					if err := srv.Start(ctx); err != nil {
						log.Error("server stopped", slog.Any("error", err))
						stop()
					}
				}()
			}

			log.Info("watching for changes",
				slog.Any("roots", roots),
				slog.String("pattern", pattern),
			)
			return watchLoop(ctx, watcher, pattern, log, reindex)
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "**/*.md", "Glob pattern for files to index, relative to each watched root")
	cmd.Flags().BoolVar(&serve, "serve", false, "Also run the HTTP API over the live index")
	cmd.Flags().StringVar(&host, "host", "", "Bind address for --serve (default: 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port for --serve (default: 8080)")

	return cmd
}

// watchTree registers root and every subdirectory beneath it with watcher.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// watchLoop drains filesystem events until ctx is cancelled, debouncing
// bursts of changes into single reindex calls.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pattern string, log *slog.Logger, reindex func()) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, reindex)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories need an explicit watch; events are not
				// recursive.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.Warn("failed to watch new directory",
							slog.String("path", event.Name),
							slog.Any("error", err),
						)
					}
					continue
				}
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if ok, _ := doublestar.Match(pattern, filepath.ToSlash(event.Name)); !ok {
				// The event path is relative to the process, not the watched
				// root, so also try the bare file name.
				if ok, _ := doublestar.Match(pattern, filepath.Base(event.Name)); !ok {
					continue
				}
			}
			log.Debug("change detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", slog.Any("error", err))
		}
	}
}
