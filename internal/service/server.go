package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"docsearch/internal/observability"
	"docsearch/internal/version"
)

const (
	initTimeout      = 30 * time.Second
	maxInitPeekBytes = 64 * 1024
)

// NewMCPServer builds the protocol server with all six tools registered.
func NewMCPServer(h *Handlers) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "docsearch", Version: version.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_docs",
		Description: "Answer a question about a package using its indexed documentation",
	}, h.queryDocs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_package",
		Description: "Register a package for documentation ingestion and start ingesting it",
	}, h.addPackage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_packages",
		Description: "Register and ingest multiple packages in one call",
	}, h.addPackages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_packages",
		Description: "List configured packages and their tracking state",
	}, h.listPackages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_status",
		Description: "Check whether a package's documentation is available for search",
	}, h.checkStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_package",
		Description: "Stop tracking a package; its stored embeddings are kept",
	}, h.removePackage)

	return server
}

// NewProtocolMux mounts the SSE transport's downstream at GET /sse and
// upstream at POST /message, assigning each accepted transport a
// connection id that is logged when the session is accepted; later log
// lines for the session do not carry it. GET /sse is the
// long-lived stream a session lives on for as long as the client keeps it
// open, so it is mounted unbounded; only the initialize request on
// POST /message is time-boxed, via withInitTimeout.
func NewProtocolMux(server *mcp.Server) *http.ServeMux {
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		connID := observability.NextConnID()
		log.Info().Int64("conn_id", connID).Str("remote", r.RemoteAddr).Msg("service: mcp session accepted")
		return server
	})

	mux := http.NewServeMux()
	mux.Handle("GET /sse", handler)
	mux.Handle("POST /message", withInitTimeout(handler))
	return mux
}

// withInitTimeout bounds only the "initialize" JSON-RPC request to
// initTimeout. Every other message on this endpoint — tool calls,
// notifications, anything after the handshake completes — passes through
// unbounded, so a session that does initialize is driven to completion
// rather than cut off partway through its lifetime.
func withInitTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peek, err := io.ReadAll(io.LimitReader(r.Body, maxInitPeekBytes))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(peek), r.Body))

		var probe struct {
			Method string `json:"method"`
		}
		if json.Unmarshal(peek, &probe) == nil && probe.Method == "initialize" {
			ctx, cancel := context.WithTimeout(r.Context(), initTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
