package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	assert.Contains(t, DefaultLogDir(), filepath.Join(".postindex", "logs"))
	assert.Equal(t, "postindex.log", filepath.Base(DefaultLogPath()))
	assert.Equal(t, "daemon.log", filepath.Base(DaemonLogPath()))
	assert.Equal(t, "mcp.log", filepath.Base(MCPLogPath()))
}

func TestDefaultConfig_StderrOnly(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Empty(t, cfg.FilePath)
	assert.True(t, cfg.WriteToStderr)

	debug := DebugConfig()
	assert.Equal(t, "debug", debug.Level)
	assert.Equal(t, DefaultLogPath(), debug.FilePath)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetup_WritesJSONToFileAndStderr(t *testing.T) {
	// Given: a file and a captured stderr
	path := filepath.Join(t.TempDir(), "nested", "test.log")
	var stderr bytes.Buffer
	cfg := Config{Level: "warn", FilePath: path, WriteToStderr: true, Stderr: &stderr}

	// When: logging below and above the level
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("ignored_event")
	logger.Warn("index_fetch_retry", slog.Int("attempt", 2))
	cleanup()

	// Then: both sinks get only the warn line as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, out := range []string{string(data), stderr.String()} {
		assert.NotContains(t, out, "ignored_event")
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &entry))
		assert.Equal(t, "index_fetch_retry", entry["msg"])
		assert.Equal(t, "WARN", entry["level"])
		assert.EqualValues(t, 2, entry["attempt"])
	}
}

func TestSetup_NoSinksDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug"})
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { logger.Info("nothing") })
}

func TestSetupMCPMode_FileOnly(t *testing.T) {
	// Given: HOME pointing at a temp dir so the MCP log lands there
	home := t.TempDir()
	t.Setenv("HOME", home)
	prev := slog.Default()
	defer slog.SetDefault(prev)

	// When
	cleanup, err := SetupMCPMode("")
	require.NoError(t, err)
	slog.Debug("tool_call", slog.String("tool", "search"))
	cleanup()

	// Then: the file has both lines at debug level
	data, err := os.ReadFile(filepath.Join(home, ".postindex", "logs", "mcp.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "mcp_logging_initialized")
	assert.Contains(t, string(data), "tool_call")
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestRotatingWriter_RotatesIntoGzipSegments(t *testing.T) {
	// Given: a writer that rotates after 16 bytes
	path := filepath.Join(t.TempDir(), "r.log")
	w, err := newRotatingWriter(path, 16, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing three 10-byte lines
	for _, line := range []string{"first-xxx\n", "second-xx\n", "third-xxx\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: the newest line is live and older ones are compressed in order
	live, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "third-xxx\n", string(live))
	assert.Equal(t, "second-xx\n", readGzip(t, path+".1.gz"))
	assert.Equal(t, "first-xxx\n", readGzip(t, path+".2.gz"))
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	w, err := newRotatingWriter(path, 8, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte("0123456\n"))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(path + ".*.gz")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.NoFileExists(t, path+".3.gz")
}

func TestRotatingWriter_OversizedFirstWriteDoesNotRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	w, err := newRotatingWriter(path, 4, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("a line longer than the limit\n"))
	require.NoError(t, err)

	assert.NoFileExists(t, path+".1.gz")
}

func TestRotatingWriter_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "r.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	// Given: many goroutines sharing one writer without per-write fsync
	path := filepath.Join(t.TempDir(), "r.log")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)
	w.SetSyncEach(false)

	// When
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	// Then: no line was torn or lost
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "line\n"))
}
