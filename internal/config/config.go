package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the project-level config file.
const ProjectConfigName = ".postindex.yaml"

// Config is the complete postindex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Content ContentConfig `yaml:"content" json:"content"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Daemon  DaemonConfig  `yaml:"daemon" json:"daemon"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ContentConfig configures the index build.
type ContentConfig struct {
	// Dir holds the markdown articles.
	Dir string `yaml:"dir" json:"dir"`
	// OutDir receives search-index.bin and filter-index.bin.
	OutDir string `yaml:"out_dir" json:"out_dir"`
	// Extensions selects article files (default: .md, .mdx).
	Extensions []string `yaml:"extensions" json:"extensions"`
	// IncludeDrafts indexes articles marked draft: true.
	IncludeDrafts bool `yaml:"include_drafts" json:"include_drafts"`
	// Compress zstd-compresses the index blobs.
	Compress bool `yaml:"compress" json:"compress"`
	// WatchDebounce coalesces file events in build --watch (e.g. "300ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// IndexConfig tells clients where the published blobs live.
type IndexConfig struct {
	SearchURL string `yaml:"search_url" json:"search_url"`
	FilterURL string `yaml:"filter_url" json:"filter_url"`
	// BaseURL resolves relative index URLs. Empty reads them from disk.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// FetchTimeout bounds one blob download (e.g. "30s").
	FetchTimeout string `yaml:"fetch_timeout" json:"fetch_timeout"`
	// MaxBytes caps a blob. Zero uses the fetcher default.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// EngineConfig selects the engines a worker loads.
type EngineConfig struct {
	// Backend is the search text index: "sqlite" or "bleve".
	Backend string `yaml:"backend" json:"backend"`
	// CacheSize bounds the search query cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// NativeLib loads engines from a shared library instead of the builtin ones.
	NativeLib string `yaml:"native_lib" json:"native_lib"`
}

// ServerConfig configures `postindex serve`.
type ServerConfig struct {
	Addr            string `yaml:"addr" json:"addr"`
	AllowOrigin     string `yaml:"allow_origin" json:"allow_origin"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DaemonConfig overrides the daemon socket and PID file.
type DaemonConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

var validBackends = map[string]bool{"sqlite": true, "bleve": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Content: ContentConfig{
			Dir:           "content/articles",
			OutDir:        "public",
			Extensions:    []string{".md", ".mdx"},
			Compress:      true,
			WatchDebounce: "300ms",
		},
		Index: IndexConfig{
			SearchURL:    "/search-index.bin",
			FilterURL:    "/filter-index.bin",
			FetchTimeout: "30s",
		},
		Engine: EngineConfig{
			Backend:   "sqlite",
			CacheSize: 256,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/postindex/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/postindex/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "postindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "postindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "postindex", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir, in increasing precedence:
//  1. Defaults
//  2. User config (~/.config/postindex/config.yaml)
//  3. Project config (.postindex.yaml in dir)
//  4. Environment variables (POSTINDEX_*)
//
// Relative content paths in the project config are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	projectPath := filepath.Join(dir, ProjectConfigName)
	if !fileExists(projectPath) {
		projectPath = filepath.Join(dir, ".postindex.yml")
	}
	if fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their value, so false booleans and empty lists can be set explicitly.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"POSTINDEX_CONTENT_DIR":      &c.Content.Dir,
		"POSTINDEX_OUT_DIR":          &c.Content.OutDir,
		"POSTINDEX_SEARCH_INDEX_URL": &c.Index.SearchURL,
		"POSTINDEX_FILTER_INDEX_URL": &c.Index.FilterURL,
		"POSTINDEX_BASE_URL":         &c.Index.BaseURL,
		"POSTINDEX_BACKEND":          &c.Engine.Backend,
		"POSTINDEX_NATIVE_LIB":       &c.Engine.NativeLib,
		"POSTINDEX_SERVER_ADDR":      &c.Server.Addr,
		"POSTINDEX_ALLOW_ORIGIN":     &c.Server.AllowOrigin,
		"POSTINDEX_LOG_LEVEL":        &c.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("POSTINDEX_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POSTINDEX_CACHE_SIZE must be an integer, got %q", v)
		}
		c.Engine.CacheSize = n
	}
	if v := os.Getenv("POSTINDEX_COMPRESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POSTINDEX_COMPRESS must be a boolean, got %q", v)
		}
		c.Content.Compress = b
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Content.Dir, &c.Content.OutDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !validBackends[strings.ToLower(c.Engine.Backend)] {
		return fmt.Errorf("engine.backend must be 'sqlite' or 'bleve', got %q", c.Engine.Backend)
	}
	if c.Engine.CacheSize < 0 {
		return fmt.Errorf("engine.cache_size must be non-negative, got %d", c.Engine.CacheSize)
	}
	if c.Index.MaxBytes < 0 {
		return fmt.Errorf("index.max_bytes must be non-negative, got %d", c.Index.MaxBytes)
	}
	for _, ext := range c.Content.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("content.extensions entries must start with '.', got %q", ext)
		}
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxFiles <= 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be positive")
	}

	durations := map[string]string{
		"content.watch_debounce":  c.Content.WatchDebounce,
		"index.fetch_timeout":     c.Index.FetchTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	}
	for name, v := range durations {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// WatchDebounce returns Content.WatchDebounce as a duration.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := parseDuration(c.Content.WatchDebounce)
	return d
}

// FetchTimeout returns Index.FetchTimeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	d, _ := parseDuration(c.Index.FetchTimeout)
	return d
}

// ShutdownTimeout returns Server.ShutdownTimeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// parseDuration accepts "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be non-negative, got %q", s)
	}
	return d, nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir to the first directory holding
// .postindex.yaml or .git. It returns startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if fileExists(filepath.Join(current, ProjectConfigName)) ||
			fileExists(filepath.Join(current, ".postindex.yml")) ||
			dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
