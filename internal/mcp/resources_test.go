package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegisterResources_TextOnlyAndIdempotent(t *testing.T) {
	// Given: indexed text documents and a PDF
	docs := newDocSet("/docs/a.md", "/docs/b.txt", "/docs/scan.pdf")
	srv := newTestServer(t, ServerConfig{Documents: docs})

	// When: resources are registered twice
	first := srv.RegisterResources()
	second := srv.RegisterResources()

	// Then: only text documents are exposed, once
	assert.Equal(t, 2, first)
	assert.Zero(t, second)

	// And: documents added by a later index update are picked up
	docs["/docs/c.md"] = struct{}{}
	assert.Equal(t, 1, srv.RegisterResources())
}

func TestHandleReadResource_ReturnsContent(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "notes.md", "# Notes\n\nbody")
	srv := newTestServer(t, ServerConfig{Documents: newDocSet(path)})

	result, err := srv.handleReadResource(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "# Notes\n\nbody", result.Contents[0].Text)
	assert.Equal(t, "text/markdown", result.Contents[0].MIMEType)
	assert.Equal(t, "file://"+filepath.ToSlash(path), result.Contents[0].URI)
}

func TestHandleReadResource_NotIndexed(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "notes.md", "x")
	srv := newTestServer(t, ServerConfig{Documents: newDocSet()})

	_, err := srv.handleReadResource(context.Background(), path)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestHandleReadResource_PolicyRechecked(t *testing.T) {
	// Given: an indexed document the policy now denies
	dir := t.TempDir()
	path := writeDoc(t, dir, "notes.md", "x")
	deny := policy.OracleFunc(func(string, string) policy.Decision { return policy.Deny(policy.ReasonManualPolicy) })
	srv := newTestServer(t, ServerConfig{Documents: newDocSet(path), Oracle: deny, Agent: "mcp"})

	// When: a client reads it
	_, err := srv.handleReadResource(context.Background(), path)

	// Then: access is refused
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeAccessDenied, mcpErr.Code)
}

func TestHandleReadResource_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.md")
	srv := newTestServer(t, ServerConfig{Documents: newDocSet(path)})

	_, err := srv.handleReadResource(context.Background(), path)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
}

func TestHandleReadResource_TooLarge(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "big.txt", strings.Repeat("a", MaxResourceSize+1))
	srv := newTestServer(t, ServerConfig{Documents: newDocSet(path)})

	_, err := srv.handleReadResource(context.Background(), path)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileTooLarge, mcpErr.Code)
}
