package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

// Encoder writes frames, one JSON document per line. It is safe for
// concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

// LineReader reads newline-delimited frames. Lines have no length limit;
// search results for large page sizes run well past bufio.Scanner's default.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader returns a LineReader reading from r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-empty line without its trailing newline.
// It returns io.EOF once the stream ends.
func (l *LineReader) Next() ([]byte, error) {
	for {
		line, err := l.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// RecoverID extracts the id of a frame whose body could not be decoded.
// It reports false when no positive id is present.
func RecoverID(line []byte) (uint64, bool) {
	var probe struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || probe.ID == 0 {
		return 0, false
	}
	return probe.ID, true
}
