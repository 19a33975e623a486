// Package configs embeds the configuration templates written by
// `postindex config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults (internal/config NewConfig)
//  2. User config (~/.config/postindex/config.yaml)
//  3. Project config (.postindex.yaml)
//  4. Environment variables (POSTINDEX_*)
package configs

import _ "embed"

// UserConfigTemplate is written to ~/.config/postindex/config.yaml by
// `postindex config init --user`. It holds machine-wide settings such as the
// engine backend and log rotation.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to .postindex.yaml by
// `postindex config init`. It holds the content layout and index URLs of
// one site.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
