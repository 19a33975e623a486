package indexbuild

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/postindex/internal/watcher"
)

// BuildFunc receives the outcome of every build run by Watch.
type BuildFunc func(res *Result, err error)

// Watch builds once, then rebuilds whenever an article source under
// opts.ContentDir changes. It blocks until ctx is cancelled. Build errors
// are reported to onBuild and do not stop watching.
func Watch(ctx context.Context, opts Options, wopts watcher.Options, onBuild BuildFunc) error {
	opts = opts.withDefaults()
	if onBuild == nil {
		onBuild = func(*Result, error) {}
	}
	wopts.Extensions = opts.Extensions

	onBuild(Build(ctx, opts))

	w, err := watcher.New(wopts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Start(ctx, opts.ContentDir) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case err := <-w.Errors():
			opts.Logger.Warn("index_watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			opts.Logger.Info("index_sources_changed",
				slog.Int("files", len(batch)),
				slog.String("first", batch[0].Path))
			onBuild(Build(ctx, opts))
		}
	}
}
