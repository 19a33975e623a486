// Package indexbuild turns a directory of Markdown articles into the search
// and filter index blobs served to the engine host.
package indexbuild

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/indexfile"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Output file names.
const (
	SearchIndexName = "search-index.bin"
	FilterIndexName = "filter-index.bin"
	lockName        = ".postindex-build.lock"
)

// URLPrefix is prepended to an article slug to form its URL.
const URLPrefix = "/articles/"

// Options configures a build.
type Options struct {
	// ContentDir is walked recursively for article sources.
	ContentDir string
	// OutDir receives the index blobs. Created if missing.
	OutDir string
	// Compress zstd-compresses both blobs.
	Compress bool
	// Extensions lists source file extensions. Default: .md, .mdx
	Extensions []string
	// IncludeDrafts keeps articles marked draft: true.
	IncludeDrafts bool
	// LockTimeout bounds the wait for a concurrent build. Default: 10s
	LockTimeout time.Duration

	Logger *slog.Logger
	// Now stamps the blobs. Default: time.Now
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".md", ".mdx"}
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Result summarizes a build.
type Result struct {
	Articles    int
	Drafts      int
	SearchPath  string
	FilterPath  string
	SearchBytes int
	FilterBytes int
	Duration    time.Duration
}

// Collect reads every article source under opts.ContentDir. Articles are
// ordered newest first, then by ID. The second return value counts skipped
// drafts.
func Collect(ctx context.Context, opts Options) ([]protocol.Article, int, error) {
	opts = opts.withDefaults()
	if opts.ContentDir == "" {
		return nil, 0, pierrors.ConfigError("content directory is not set", nil)
	}
	info, err := os.Stat(opts.ContentDir)
	if err != nil || !info.IsDir() {
		return nil, 0, pierrors.ConfigError(fmt.Sprintf("content directory %s does not exist", opts.ContentDir), err).
			WithSuggestion("Set content_dir in .postindex.yaml or pass --content")
	}

	var (
		articles []protocol.Article
		drafts   int
		bySlug   = make(map[string]string)
	)
	err = filepath.WalkDir(opts.ContentDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != opts.ContentDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name(), opts.Extensions) {
			return nil
		}

		rel, err := filepath.Rel(opts.ContentDir, p)
		if err != nil {
			return err
		}
		article, draft, err := readArticle(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if draft && !opts.IncludeDrafts {
			drafts++
			return nil
		}
		if prev, dup := bySlug[article.ID]; dup {
			return pierrors.BuildFailed(fmt.Sprintf("duplicate slug %q in %s and %s", article.ID, prev, rel), nil)
		}
		bySlug[article.ID] = rel
		articles = append(articles, article)
		return nil
	})
	if err != nil {
		if _, ok := pierrors.As(err); ok {
			return nil, 0, err
		}
		return nil, 0, pierrors.BuildFailed(fmt.Sprintf("read content directory: %v", err), err)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		if articles[i].Date != articles[j].Date {
			return articles[i].Date > articles[j].Date
		}
		return articles[i].ID < articles[j].ID
	})
	return articles, drafts, nil
}

func readArticle(fullPath, rel string) (protocol.Article, bool, error) {
	src, err := os.ReadFile(fullPath)
	if err != nil {
		return protocol.Article{}, false, pierrors.BuildFailed(fmt.Sprintf("read %s: %v", rel, err), err)
	}

	header, body := SplitFrontMatter(src)
	fm, err := ParseFrontMatter(header)
	if err != nil {
		return protocol.Article{}, false, pierrors.BuildFailed(fmt.Sprintf("%s: %v", rel, err), err).
			WithDetail("file", rel)
	}

	slug := strings.Trim(fm.Slug, "/")
	if slug == "" {
		slug = slugFromPath(rel)
	}
	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title = path.Base(slug)
	}
	summary := strings.TrimSpace(fm.Summary)
	if summary == "" {
		summary = ExtractSummary(string(body), SummaryLength)
	}
	tags := []string(fm.Tags)
	if tags == nil {
		tags = []string{}
	}

	return protocol.Article{
		ID:      slug,
		Title:   title,
		Date:    string(fm.Date),
		Tags:    tags,
		Summary: summary,
		URL:     URLPrefix + slug,
		Content: PlainText(string(body)),
	}, fm.Draft, nil
}

// slugFromPath drops the extension; "dir/index.md" becomes "dir".
func slugFromPath(rel string) string {
	slug := strings.TrimSuffix(rel, path.Ext(rel))
	if path.Base(slug) == "index" && path.Dir(slug) != "." {
		slug = path.Dir(slug)
	}
	return slug
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Build collects the articles and writes both index blobs. Concurrent
// builds into the same OutDir are serialized by a lock file, and each blob
// is replaced atomically so a server never reads a partial file.
func Build(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	if opts.OutDir == "" {
		return nil, pierrors.ConfigError("output directory is not set", nil)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, pierrors.BuildFailed(fmt.Sprintf("create output directory: %v", err), err)
	}

	lock := flock.New(filepath.Join(opts.OutDir, lockName))
	lockCtx, cancel := context.WithTimeout(ctx, opts.LockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return nil, pierrors.BuildFailed(fmt.Sprintf("another build holds %s", lock.Path()), err).
			WithSuggestion("Wait for the running build to finish")
	}
	defer func() { _ = lock.Unlock() }()

	articles, drafts, err := Collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	generated := opts.Now().UTC()
	res := &Result{
		Articles:   len(articles),
		Drafts:     drafts,
		SearchPath: filepath.Join(opts.OutDir, SearchIndexName),
		FilterPath: filepath.Join(opts.OutDir, FilterIndexName),
	}

	enc := indexfile.EncodeOptions{Compress: opts.Compress}
	if res.SearchBytes, err = writeIndex(res.SearchPath, &indexfile.Index{Kind: indexfile.KindSearch, GeneratedAt: generated, Articles: articles}, enc); err != nil {
		return nil, err
	}
	if res.FilterBytes, err = writeIndex(res.FilterPath, &indexfile.Index{Kind: indexfile.KindFilter, GeneratedAt: generated, Articles: articles}, enc); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	opts.Logger.Info("index_build_complete",
		slog.Int("articles", res.Articles),
		slog.Int("drafts_skipped", res.Drafts),
		slog.Int("search_bytes", res.SearchBytes),
		slog.Int("filter_bytes", res.FilterBytes),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func writeIndex(dest string, idx *indexfile.Index, opts indexfile.EncodeOptions) (int, error) {
	data, err := indexfile.Encode(idx, opts)
	if err != nil {
		return 0, pierrors.BuildFailed(fmt.Sprintf("encode %s index: %v", idx.Kind, err), err)
	}
	if err := writeFileAtomic(dest, data); err != nil {
		return 0, pierrors.BuildFailed(fmt.Sprintf("write %s: %v", dest, err), err)
	}
	return len(data), nil
}

func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
