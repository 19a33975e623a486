// Package logging configures slog for postindex.
//
// Commands log JSON to stderr by default. With --debug, or when running as a
// daemon or MCP server, logs also go to a size-rotated file under
// ~/.postindex/logs/. Rotated segments are gzip-compressed.
package logging
