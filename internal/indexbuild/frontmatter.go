package indexbuild

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header of an article source.
type FrontMatter struct {
	Title   string  `yaml:"title"`
	Date    Date    `yaml:"date"`
	Tags    TagList `yaml:"tags"`
	Summary string  `yaml:"summary"`
	Draft   bool    `yaml:"draft"`
	Slug    string  `yaml:"slug"`
}

// Date is a front matter date normalized to YYYY-MM-DD. Full timestamps are
// truncated to their date; anything unparseable is kept verbatim.
type Date string

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", node.Line)
	}
	*d = Date(normalizeDate(node.Value))
	return nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// TagList accepts either a YAML sequence or a single comma-separated string.
type TagList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TagList) UnmarshalYAML(node *yaml.Node) error {
	var raw []string
	switch node.Kind {
	case yaml.ScalarNode:
		raw = strings.Split(node.Value, ",")
	case yaml.SequenceNode:
		if err := node.Decode(&raw); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: tags must be a list or a string", node.Line)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	*t = out
	return nil
}

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// body. Sources without front matter return a nil header and the input.
func SplitFrontMatter(src []byte) (header, body []byte) {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	normalized := bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, normalized
	}
	rest := normalized[len("---\n"):]

	// Closing delimiter may be the very first line of rest (empty header)
	if bytes.HasPrefix(rest, []byte("---\n")) || bytes.Equal(rest, []byte("---")) {
		return []byte{}, bytes.TrimPrefix(rest[3:], []byte("\n"))
	}

	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-len("\n---")], nil
		}
		return nil, normalized
	}
	return rest[:end], rest[end+len("\n---\n"):]
}

// ParseFrontMatter decodes a header returned by SplitFrontMatter.
func ParseFrontMatter(header []byte) (FrontMatter, error) {
	var fm FrontMatter
	if len(bytes.TrimSpace(header)) == 0 {
		return fm, nil
	}
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return fm, fmt.Errorf("parse front matter: %w", err)
	}
	return fm, nil
}
