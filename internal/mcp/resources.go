package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// MaxResourceSize is the largest file returned as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources exposes every indexed text document as a file://
// resource. Paths already registered are skipped, so it can be called
// after every index update.
func (s *Server) RegisterResources() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documents == nil {
		return 0
	}

	added := 0
	for _, path := range s.documents.Paths() {
		if _, ok := s.resources[path]; ok {
			continue
		}
		mime := MimeTypeForPath(path)
		if !isTextMIME(mime) {
			continue
		}
		s.resources[path] = struct{}{}
		s.mcp.AddResource(&mcp.Resource{
			Name:     filepath.Base(path),
			URI:      resourceURI(path),
			MIMEType: mime,
		}, s.makeFileHandler(path))
		added++
	}
	if added > 0 {
		s.logger.Info("mcp_resources_registered", slog.Int("added", added), slog.Int("total", len(s.resources)))
	}
	return added
}

func resourceURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

func (s *Server) makeFileHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(ctx, path)
	}
}

// handleReadResource returns the content of an indexed document. The
// access policy is consulted again on every read, so a path denied after
// indexing is no longer served.
func (s *Server) handleReadResource(_ context.Context, path string) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	docs := s.documents
	s.mu.RUnlock()
	if docs == nil || !docs.HasPath(path) {
		return nil, NewResourceNotFoundError(resourceURI(path))
	}

	if d := s.oracle.Check(path, s.agent); !d.Allowed {
		s.logger.Warn("mcp_resource_denied", slog.String("path", path), slog.String("reason", d.Reason.String()))
		return nil, MapError(docerrors.PolicyViolationError(path, d.Reason.String()))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", path)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %s (max %s)", ui.FormatBytes(info.Size()), ui.FormatBytes(MaxResourceSize)),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      resourceURI(path),
			MIMEType: MimeTypeForPath(path),
			Text:     string(content),
		}},
	}, nil
}
