// Package mcpadapter exposes chunk search as an MCP tool over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
)

const (
	ToolSearchChunks = "search_chunks"
	maxK             = 50
)

type Server struct {
	searcher ports.ChunkSearcher
	defaultK int
	mcp      *server.MCPServer
}

func NewServer(searcher ports.ChunkSearcher, version string, defaultK int) *Server {
	if defaultK <= 0 {
		defaultK = 3
	}
	s := &Server{
		searcher: searcher,
		defaultK: defaultK,
		mcp:      server.NewMCPServer("webrag", version, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(mcp.NewTool(ToolSearchChunks,
		mcp.WithDescription("Search the crawled web pages for the chunks most similar to a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("k", mcp.Description(fmt.Sprintf("Number of chunks to return (default %d, max %d)", defaultK, maxK))),
	), s.handleSearch)
	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type searchOutput struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []domain.QueryResult `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := request.GetInt("k", s.defaultK)
	if k < 0 || k > maxK {
		return mcp.NewToolResultError(fmt.Sprintf("k must be between 0 and %d", maxK)), nil
	}

	results, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		slog.Warn("mcp_search_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []domain.QueryResult{}
	}

	raw, err := json.Marshal(searchOutput{Query: query, Count: len(results), Results: results})
	if err != nil {
		return nil, fmt.Errorf("marshal search output: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
