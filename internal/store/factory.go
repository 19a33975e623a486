package store

import "fmt"

// Backend names a TextIndex implementation.
type Backend string

const (
	// BackendBleve uses Bleve v2 with the CJK analyzer (default).
	BackendBleve Backend = "bleve"

	// BackendSQLite uses SQLite FTS5 through modernc.org/sqlite.
	BackendSQLite Backend = "sqlite"
)

// ValidBackends lists accepted backend names.
var ValidBackends = []Backend{BackendBleve, BackendSQLite}

// NewTextIndex creates an empty in-memory index for backend.
// An empty backend selects Bleve.
func NewTextIndex(backend string) (TextIndex, error) {
	switch Backend(backend) {
	case BackendBleve, "":
		return NewBleveIndex()
	case BackendSQLite:
		return NewSQLiteIndex()
	default:
		return nil, fmt.Errorf("unknown text index backend: %s (valid options: bleve, sqlite)", backend)
	}
}
