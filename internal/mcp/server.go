package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/telemetry"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
	"github.com/NOVA-ALLRounder/main-sub002/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "docindex"

// Limit bounds for search_documents.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Searcher answers ranked queries. *search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, opts search.Options) ([]search.Hit, error)
}

// StatusProvider reports on the index. *index.Runner implements it.
type StatusProvider interface {
	Status() ui.StatusInfo
}

// DocumentSet lists the indexed documents. *store.Index implements it.
type DocumentSet interface {
	Paths() []string
	HasPath(path string) bool
}

// ServerConfig holds the collaborators of a Server.
type ServerConfig struct {
	// Status is required.
	Status StatusProvider

	// Searcher and Documents may be nil until an index exists; see
	// SetIndex.
	Searcher  Searcher
	Documents DocumentSet

	// Oracle guards resource reads. Nil allows every indexed path.
	Oracle policy.Oracle
	Agent  string

	// SearchOptions are the ranking defaults for every query.
	SearchOptions search.Options

	// Metrics, when set, records every successful search.
	Metrics *telemetry.QueryMetrics

	Logger *slog.Logger
}

// Server bridges MCP clients with the retriever.
type Server struct {
	mcp     *mcp.Server
	status  StatusProvider
	oracle  policy.Oracle
	agent   string
	opts    search.Options
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics

	mu        sync.RWMutex
	searcher  Searcher
	documents DocumentSet
	resources map[string]struct{}
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSearchDocuments,
		Description: "Search the indexed documents by meaning and keywords. Returns ranked chunks with their file path, " +
			"section heading and a preview. Quoted phrases, names and numbers in the query are boosted when they appear verbatim.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether the document index is built, how many documents and chunks it holds, and which embedding model produced it.",
	},
}

// NewServer creates a Server and registers its tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Status == nil {
		return nil, errors.New("status provider is required")
	}
	if cfg.Oracle == nil {
		cfg.Oracle = policy.AllowAll
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		status:    cfg.Status,
		oracle:    cfg.Oracle,
		agent:     cfg.Agent,
		opts:      cfg.SearchOptions,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		searcher:  cfg.Searcher,
		documents: cfg.Documents,
		resources: make(map[string]struct{}),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// SetIndex installs the searcher and document set after an index is built
// or replaced, and registers resources for new documents.
func (s *Server) SetIndex(searcher Searcher, docs DocumentSet) {
	s.mu.Lock()
	s.searcher = searcher
	s.documents = docs
	s.mu.Unlock()
	s.RegisterResources()
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool with loosely typed arguments, as a text client
// would. search_documents returns markdown and index_status a struct.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchDocuments:
		in := SearchDocumentsInput{}
		in.Query, _ = args["query"].(string)
		if l, ok := args["limit"].(float64); ok {
			in.Limit = int(l)
		}
		if r, ok := args["rerank"].(bool); ok {
			in.Rerank = &r
		}
		out, hits, err := s.searchDocuments(ctx, in)
		if err != nil {
			return "", err
		}
		return FormatSearchResults(out.Query, hits), nil
	case ToolIndexStatus:
		return s.indexStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) searchDocuments(ctx context.Context, in SearchDocumentsInput) (SearchDocumentsOutput, []search.Hit, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchDocumentsOutput{}, nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	s.mu.RLock()
	searcher := s.searcher
	s.mu.RUnlock()
	if searcher == nil {
		return SearchDocumentsOutput{}, nil, MapError(ErrIndexNotFound)
	}

	limit := clampLimit(in.Limit, DefaultLimit, 1, MaxLimit)
	opts := s.opts
	if in.Rerank != nil {
		opts.UseRerank = *in.Rerank
	}

	start := time.Now()
	requestID := uuid.NewString()[:8]
	s.logger.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.Int("query_len", len([]rune(query))),
		slog.Int("limit", limit),
		slog.Bool("rerank", opts.UseRerank))

	hits, err := searcher.Search(ctx, query, limit, opts)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchDocumentsOutput{}, nil, MapError(err)
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.Record(telemetry.QueryEvent{Query: query, ResultCount: len(hits), Latency: elapsed, Timestamp: start})
	}
	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", elapsed),
		slog.Int("result_count", len(hits)))
	return SearchDocumentsOutput{Query: query, Hits: toHitOutputs(hits)}, hits, nil
}

func (s *Server) indexStatus() *IndexStatusOutput {
	info := s.status.Status()
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		info.Queries = snap.TotalQueries
		info.ZeroResultQueries = snap.ZeroResultCount
	}
	s.mu.RLock()
	ready := s.searcher != nil && info.Indexed
	s.mu.RUnlock()
	return &IndexStatusOutput{Ready: ready, Status: info}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (
	*mcp.CallToolResult,
	SearchDocumentsOutput,
	error,
) {
	out, _, err := s.searchDocuments(ctx, input)
	if err != nil {
		return nil, SearchDocumentsOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(), nil
}

// Serve runs the server on the named transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
