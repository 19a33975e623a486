//go:build ignore

// Package main generates a synthetic markdown article corpus for exercising
// `postindex build` and the engines at scale.
// Usage: go run scripts/generate-articles.go -articles 1000 -output testdata/articles
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numArticles = flag.Int("articles", 1000, "Number of articles to generate")
	outputDir   = flag.String("output", "testdata/articles", "Output directory")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
	draftRatio  = flag.Float64("drafts", 0.05, "Fraction of articles marked draft")
)

var topics = []string{
	"go", "rust", "typescript", "databases", "networking", "kubernetes",
	"testing", "performance", "security", "compilers", "distributed-systems", "web",
}

var words = strings.Fields(`channel goroutine index posting bitmap query latency cache
shard replica consensus scheduler allocator parser lexer token stream buffer socket
frame protocol handler middleware router cluster worker queue snapshot compaction
segment merge cursor iterator closure interface generic trait lifetime borrow async
future promise runtime kernel syscall memory pointer slice vector hash tree graph`)

// CJK phrases, mixed into some sentences.
var cjk = []string{"搜索引擎", "倒排索引", "并发编程", "分布式系统", "性能优化"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *numArticles; i++ {
		date := start.AddDate(0, 0, rng.Intn(8*365))
		title := sentence(rng, 3+rng.Intn(5))
		slug := fmt.Sprintf("%s-%04d", strings.ReplaceAll(strings.ToLower(title), " ", "-"), i)

		var b strings.Builder
		fmt.Fprintf(&b, "---\ntitle: %q\ndate: %s\ntags: [%s]\n", strings.Title(title), date.Format("2006-01-02"), strings.Join(pickTags(rng), ", "))
		if rng.Float64() < *draftRatio {
			b.WriteString("draft: true\n")
		}
		b.WriteString("---\n\n")
		for p := 0; p < 3+rng.Intn(6); p++ {
			if p > 0 && rng.Intn(4) == 0 {
				fmt.Fprintf(&b, "## %s\n\n", strings.Title(sentence(rng, 3)))
			}
			b.WriteString(paragraph(rng))
			b.WriteString("\n\n")
		}

		path := filepath.Join(*outputDir, slug+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d articles in %s\n", *numArticles, *outputDir)
}

func pickTags(rng *rand.Rand) []string {
	n := 1 + rng.Intn(3)
	seen := map[string]bool{}
	var tags []string
	for len(tags) < n {
		t := topics[rng.Intn(len(topics))]
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

func sentence(rng *rand.Rand, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = words[rng.Intn(len(words))]
	}
	return strings.Join(out, " ")
}

func paragraph(rng *rand.Rand) string {
	var sentences []string
	for s := 0; s < 3+rng.Intn(5); s++ {
		text := sentence(rng, 6+rng.Intn(10))
		if rng.Intn(10) == 0 {
			text += " " + cjk[rng.Intn(len(cjk))]
		}
		if rng.Intn(6) == 0 {
			text += " with `" + words[rng.Intn(len(words))] + "()`"
		}
		sentences = append(sentences, strings.ToUpper(text[:1])+text[1:]+".")
	}
	return strings.Join(sentences, " ")
}
