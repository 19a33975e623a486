package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/postindex/internal/indexserver"
	"github.com/Aman-CERP/postindex/internal/output"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
		bf    buildFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index blobs and the article list over HTTP",
		Long: `Serve exposes the built index blobs at /index/{name}, the article list at
/api/articles, health at /healthz and Prometheus metrics at /metrics.
With --watch the indexes are rebuilt whenever an article changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			opts := a.buildOptions(bf)

			handler := indexserver.NewRouter(indexserver.Options{
				Dir:         opts.OutDir,
				AllowOrigin: a.cfg.Server.AllowOrigin,
				Logger:      a.logger,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				out.Statusf("", "Serving %s on http://%s", opts.OutDir, addr)
				return indexserver.ListenAndServe(ctx, addr, handler, a.cfg.ShutdownTimeout(), a.logger)
			})
			if watch {
				g.Go(func() error {
					return runWatch(ctx, a, opts, out)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild the indexes when articles change")
	cmd.Flags().StringVar(&bf.contentDir, "content", "", "Article directory for --watch (default: content.dir)")
	cmd.Flags().StringVarP(&bf.outDir, "out", "o", "", "Directory holding the blobs (default: content.out_dir)")
	cmd.Flags().BoolVar(&bf.drafts, "drafts", false, "Include draft articles when rebuilding")
	return cmd
}
