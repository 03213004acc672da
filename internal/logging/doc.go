// Package logging configures structured slog logging for docindex.
//
// Without --debug, the CLI logs warnings to stderr only. With --debug, or
// when serving MCP over stdio, JSON logs go to a size-rotated file under
// ~/.docindex/logs/ so stdout stays clean.
package logging
