// Package indexfile reads and writes the binary index blobs served to the
// engine host.
//
// Layout:
//
//	"PIDX" | version (1 byte) | flags (1 byte) | body
//
// Flag bit 0 marks a zstd-compressed body. The body is a JSON document
// holding the index kind, generation time and articles.
package indexfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
	"github.com/Aman-CERP/postindex/internal/protocol"
)

// Magic prefixes every index blob.
const Magic = "PIDX"

// Version is the only format version this package reads and writes.
const Version byte = 1

// FlagZstd marks a zstd-compressed body.
const FlagZstd byte = 1 << 0

const headerLen = len(Magic) + 2

// Kind distinguishes the two index blobs.
type Kind string

const (
	KindSearch Kind = "search"
	KindFilter Kind = "filter"
)

// Index is the decoded body of an index blob.
type Index struct {
	Kind        Kind               `json:"kind"`
	GeneratedAt time.Time          `json:"generated_at"`
	Articles    []protocol.Article `json:"articles"`
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	Compress bool
}

// Encode serializes idx into a blob. Filter blobs never carry content.
func Encode(idx *Index, opts EncodeOptions) ([]byte, error) {
	out := *idx
	if out.Kind == KindFilter {
		out.Articles = stripContent(idx.Articles)
	}

	body, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode index body: %w", err)
	}

	var flags byte
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		_ = enc.Close()
		flags |= FlagZstd
	}

	var buf bytes.Buffer
	buf.Grow(headerLen + len(body))
	buf.WriteString(Magic)
	buf.WriteByte(Version)
	buf.WriteByte(flags)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses a blob. Any structural problem is reported as IndexCorrupt.
func Decode(data []byte) (*Index, error) {
	if len(data) < headerLen || string(data[:len(Magic)]) != Magic {
		return nil, pierrors.IndexCorrupt("index blob has no PIDX header", nil)
	}
	version := data[len(Magic)]
	if version != Version {
		return nil, pierrors.IndexCorrupt(fmt.Sprintf("unsupported index format version %d", version), nil).
			WithDetail("version", fmt.Sprint(version))
	}
	flags := data[len(Magic)+1]
	body := data[headerLen:]

	if flags&FlagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, pierrors.InternalError("create zstd decoder", err)
		}
		defer dec.Close()
		body, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, pierrors.IndexCorrupt("decompress index body", err)
		}
	}

	var idx Index
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, pierrors.IndexCorrupt("decode index body", err)
	}
	switch idx.Kind {
	case KindSearch, KindFilter:
	default:
		return nil, pierrors.IndexCorrupt(fmt.Sprintf("unknown index kind %q", idx.Kind), nil)
	}
	return &idx, nil
}

// DecodeKind parses a blob and checks that it holds an index of kind want.
func DecodeKind(data []byte, want Kind) (*Index, error) {
	idx, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if idx.Kind != want {
		return nil, pierrors.IndexCorrupt(fmt.Sprintf("expected %s index, got %s", want, idx.Kind), nil)
	}
	return idx, nil
}

func stripContent(in []protocol.Article) []protocol.Article {
	out := make([]protocol.Article, len(in))
	for i, a := range in {
		a.Content = ""
		out[i] = a
	}
	return out
}
