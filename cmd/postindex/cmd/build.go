package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/postindex/internal/indexbuild"
	"github.com/Aman-CERP/postindex/internal/output"
	"github.com/Aman-CERP/postindex/internal/watcher"
)

type buildFlags struct {
	contentDir string
	outDir     string
	drafts     bool
	noCompress bool
	watch      bool
}

func newBuildCmd(a *app) *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the search and filter index blobs from markdown articles",
		Long: `Build reads every article under the content directory, parses its YAML
front matter, and writes search-index.bin and filter-index.bin to the output
directory. With --watch it keeps running and rebuilds on every change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			opts := a.buildOptions(f)
			if f.watch {
				return runWatch(cmd.Context(), a, opts, out)
			}
			res, err := indexbuild.Build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printBuild(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.contentDir, "content", "", "Article directory (default: content.dir)")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "Output directory (default: content.out_dir)")
	cmd.Flags().BoolVar(&f.drafts, "drafts", false, "Include draft articles")
	cmd.Flags().BoolVar(&f.noCompress, "no-compress", false, "Write uncompressed blobs")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Rebuild when articles change")
	return cmd
}

func (a *app) buildOptions(f buildFlags) indexbuild.Options {
	opts := indexbuild.Options{
		ContentDir:    a.cfg.Content.Dir,
		OutDir:        a.cfg.Content.OutDir,
		Compress:      a.cfg.Content.Compress && !f.noCompress,
		Extensions:    a.cfg.Content.Extensions,
		IncludeDrafts: a.cfg.Content.IncludeDrafts || f.drafts,
		Logger:        a.logger,
	}
	if f.contentDir != "" {
		opts.ContentDir = f.contentDir
	}
	if f.outDir != "" {
		opts.OutDir = f.outDir
	}
	return opts
}

func (a *app) watchOptions() watcher.Options {
	wopts := watcher.DefaultOptions()
	if d := a.cfg.WatchDebounce(); d > 0 {
		wopts.DebounceWindow = d
	}
	return wopts
}

// runWatch blocks until ctx ends, reporting every rebuild.
func runWatch(ctx context.Context, a *app, opts indexbuild.Options, out *output.Writer) error {
	out.Statusf("", "Watching %s", opts.ContentDir)
	return indexbuild.Watch(ctx, opts, a.watchOptions(), func(res *indexbuild.Result, err error) {
		if err != nil {
			a.logger.Error("index_rebuild_failed", slog.String("error", err.Error()))
			out.Errorf("Build failed: %v", err)
			return
		}
		printBuild(out, res)
	})
}

func printBuild(out *output.Writer, res *indexbuild.Result) {
	out.Successf("Indexed %d article(s) in %s", res.Articles, res.Duration.Round(time.Millisecond))
	if res.Drafts > 0 {
		out.KeyValue("Drafts", fmt.Sprintf("%d skipped", res.Drafts))
	}
	out.KeyValue("Search", formatBlob(res.SearchPath, res.SearchBytes))
	out.KeyValue("Filter", formatBlob(res.FilterPath, res.FilterBytes))
}

func formatBlob(path string, size int) string {
	return fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(size)))
}
