package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"index not found", ErrIndexNotFound, ErrCodeIndexNotFound},
		{"wrapped index not found", fmt.Errorf("load: %w", ErrIndexNotFound), ErrCodeIndexNotFound},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"tool", ErrToolNotFound, ErrCodeMethodNotFound},
		{"resource", ErrResourceNotFound, ErrCodeMethodNotFound},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
		{"corrupt index", docerrors.CorruptIndexError("bad pair", nil), ErrCodeIndexNotFound},
		{"policy", docerrors.PolicyViolationError("/x", "sensitive_path"), ErrCodeAccessDenied},
		{"embedding", docerrors.EmbeddingError("offline", nil), ErrCodeEmbeddingFailed},
		{"empty query", docerrors.New(docerrors.ErrCodeQueryEmpty, "query is empty", nil), ErrCodeInvalidParams},
		{"network", docerrors.New(docerrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"config", docerrors.ConfigError("bad", nil), ErrCodeInternalError},
		{"passthrough", NewInvalidParamsError("x"), ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.code, got.Code)
			}
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := docerrors.CorruptIndexError("index is damaged", nil).WithSuggestion("Run 'docindex index --force'.")

	got := MapError(err)

	assert.Equal(t, "index is damaged Run 'docindex index --force'.", got.Message)
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32602: bad", NewInvalidParamsError("bad").Error())
	assert.Contains(t, NewResourceNotFoundError("file:///x").Message, "file:///x")
	assert.Contains(t, NewMethodNotFoundError("nope").Message, "nope")
}
