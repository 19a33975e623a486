package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/postindex/internal/facade"
	"github.com/Aman-CERP/postindex/internal/output"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

var quiet = map[string]string{annotationQuiet: "true"}

// withClient opens a client, initializes the index named by search, runs fn
// and terminates the worker.
func (a *app) withClient(ctx context.Context, search bool, fn func(*facade.Client) error) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if search {
		err = initWithRetry(ctx, client.InitSearchIndex, a.indexURL(a.cfg.Index.SearchURL))
	} else {
		err = initWithRetry(ctx, client.InitFilterIndex, a.indexURL(a.cfg.Index.FilterURL))
	}
	if err != nil {
		return err
	}
	return fn(client)
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		searchType string
		page       int
		pageSize   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:         "search <query>",
		Short:       "Full-text search over article titles, content and tags",
		Args:        cobra.MinimumNArgs(1),
		Annotations: quiet,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			req := protocol.SearchRequest{
				Query:      strings.Join(args, " "),
				SearchType: searchType,
				Page:       page,
				PageSize:   pageSize,
			}
			return a.withClient(cmd.Context(), true, func(c *facade.Client) error {
				resp, err := c.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(resp.Raw)
				}
				out.SearchResults(resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&searchType, "type", "t", protocol.SearchTypeAll, "Field to search: all, title, content or tags")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Result page (1-based)")
	cmd.Flags().IntVarP(&pageSize, "page-size", "n", protocol.DefaultPageSize, "Results per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the engine response as JSON")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:         "suggest <prefix>",
		Short:       "Autocomplete article titles from a prefix",
		Args:        cobra.ExactArgs(1),
		Annotations: quiet,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			req := protocol.SearchRequest{Query: args[0], PageSize: limit}
			return a.withClient(cmd.Context(), true, func(c *facade.Client) error {
				resp, err := c.Suggest(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(resp.Raw)
				}
				out.Suggestions(resp)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum suggestions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the engine response as JSON")
	return cmd
}

func newFilterCmd(a *app) *cobra.Command {
	var (
		req        protocol.FilterRequest
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "List articles by tag and date",
		Long: `Filter lists articles carrying every --tag given (case-insensitive) and,
with --date, published on that day (YYYY-MM-DD), month (YYYY-MM) or year (YYYY).`,
		Args:        cobra.NoArgs,
		Annotations: quiet,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			return a.withClient(cmd.Context(), false, func(c *facade.Client) error {
				res, err := c.FilterArticles(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(res)
				}
				out.Articles(res)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Required tag (repeatable)")
	cmd.Flags().StringVar(&req.Date, "date", "", "Date prefix: YYYY, YYYY-MM or YYYY-MM-DD")
	cmd.Flags().StringVar(&req.Sort, "sort", protocol.SortDateDesc, "Order: date_desc, date_asc, title_asc or title_desc")
	cmd.Flags().IntVarP(&req.Page, "page", "p", 1, "Result page (1-based)")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", protocol.DefaultFilterLimit, "Articles per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "tags",
		Short:       "List every tag in the filter index",
		Args:        cobra.NoArgs,
		Annotations: quiet,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			return a.withClient(cmd.Context(), false, func(c *facade.Client) error {
				tags, err := c.GetAllTags(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(tags)
				}
				out.Tags(tags)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output tags as a JSON array")
	return cmd
}
