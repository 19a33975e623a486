package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/postindex/internal/protocol"
	"github.com/Aman-CERP/postindex/pkg/version"
)

// Backend is the query surface the tools run against. *facade.Client
// satisfies it.
type Backend interface {
	InitSearchIndex(ctx context.Context, indexURL string) error
	InitFilterIndex(ctx context.Context, indexURL string) error
	Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	Suggest(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	FilterArticles(ctx context.Context, req protocol.FilterRequest) (*protocol.FilterResult, error)
	GetAllTags(ctx context.Context) ([]string, error)
}

// Options configures the server.
type Options struct {
	// SearchIndexURL and FilterIndexURL are loaded on the first tool call
	// that needs them.
	SearchIndexURL string
	FilterIndexURL string
	Logger         *slog.Logger
}

// Server is the MCP server for the article indexes.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	opts    Options
	logger  *slog.Logger
}

// NewServer creates a new MCP server.
func NewServer(backend Backend, opts Options) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.SearchIndexURL == "" && opts.FilterIndexURL == "" {
		return nil, errors.New("at least one index URL is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "postindex",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	count := 0
	if s.opts.SearchIndexURL != "" {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "search",
			Description: "Full-text search over the blog's articles. Matches titles, tags, summaries and article bodies, including Chinese and Japanese text. Returns ranked articles with their URLs.",
		}, s.mcpSearchHandler)
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "suggest",
			Description: "Autocomplete article titles from a partial query. Use for type-ahead or when only the start of a title is known.",
		}, s.mcpSuggestHandler)
		count += 2
	}
	if s.opts.FilterIndexURL != "" {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "filter_articles",
			Description: "List articles by tags and publication date, with sorting and paging. All given tags must match.",
		}, s.mcpFilterHandler)
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "list_tags",
			Description: "List every tag used by the blog's articles. Use before filter_articles to pick valid tags.",
		}, s.mcpListTagsHandler)
		count += 2
	}
	s.logger.Debug("mcp_tools_registered", slog.Int("count", count))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.Type == protocol.SearchTypeSuggest {
		return nil, SearchOutput{}, NewInvalidParamsError("use the suggest tool for prefix queries")
	}
	if err := s.backend.InitSearchIndex(ctx, s.opts.SearchIndexURL); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	resp, err := s.backend.Search(ctx, protocol.SearchRequest{
		Query:      input.Query,
		SearchType: input.Type,
		Page:       input.Page,
		PageSize:   input.PageSize,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

func (s *Server) mcpSuggestHandler(ctx context.Context, _ *mcp.CallToolRequest, input SuggestInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Prefix == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("prefix parameter is required")
	}
	if err := s.backend.InitSearchIndex(ctx, s.opts.SearchIndexURL); err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	resp, err := s.backend.Suggest(ctx, protocol.SearchRequest{Query: input.Prefix, PageSize: input.Limit})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

func (s *Server) mcpFilterHandler(ctx context.Context, _ *mcp.CallToolRequest, input FilterInput) (
	*mcp.CallToolResult,
	FilterOutput,
	error,
) {
	if err := s.backend.InitFilterIndex(ctx, s.opts.FilterIndexURL); err != nil {
		return nil, FilterOutput{}, MapError(err)
	}

	res, err := s.backend.FilterArticles(ctx, protocol.FilterRequest{
		Tags:  input.Tags,
		Date:  input.Date,
		Sort:  input.Sort,
		Page:  input.Page,
		Limit: input.Limit,
	})
	if err != nil {
		return nil, FilterOutput{}, MapError(err)
	}
	return nil, toFilterOutput(res), nil
}

func (s *Server) mcpListTagsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListTagsInput) (
	*mcp.CallToolResult,
	ListTagsOutput,
	error,
) {
	if err := s.backend.InitFilterIndex(ctx, s.opts.FilterIndexURL); err != nil {
		return nil, ListTagsOutput{}, MapError(err)
	}
	tags, err := s.backend.GetAllTags(ctx)
	if err != nil {
		return nil, ListTagsOutput{}, MapError(err)
	}
	return nil, ListTagsOutput{Tags: tags}, nil
}

// Serve runs the server on the given transport until ctx ends or the
// client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
