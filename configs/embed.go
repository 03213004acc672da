// Package configs embeds the configuration template written by
// `docindex config init`.
//
// Configuration precedence (see internal/config Load):
//  1. Defaults (internal/config NewConfig)
//  2. User config (~/.config/docindex/config.yaml)
//  3. Project config (.docindex.yaml, .docindex.yml or .docindex.toml)
//  4. .env in the project directory
//  5. DOCINDEX_* environment variables
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration. Every key is
// optional; values shown are the defaults.
//
//go:embed docindex.example.yaml
var ConfigTemplate string
