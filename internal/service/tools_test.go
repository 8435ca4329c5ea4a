package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"docsearch/internal/crawler"
	"docsearch/internal/embedding"
	"docsearch/internal/ingest"
	"docsearch/internal/store"
)

func newTestHandlers(t *testing.T) (*Handlers, store.Store) {
	t.Helper()
	_ = embedding.Install(embedding.NewDeterministic(8, 3))

	st := store.NewMemory()
	pipe := ingest.New(st, crawler.New("http://example.invalid"), 2)
	return &Handlers{
		Store:         st,
		Pipeline:      pipe,
		Availability:  NewAvailability(nil),
		MaxPagesAdmin: 5,
	}, st
}

func TestQueryDocs_UnavailablePackage(t *testing.T) {
	h, _ := newTestHandlers(t)
	res, _, err := h.queryDocs(context.Background(), nil, queryDocsArgs{PackageName: "ghost", Question: "how do I use this?"})
	if err != nil {
		t.Fatalf("queryDocs: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result for an unavailable package")
	}
}

func TestQueryDocs_ReturnsFormattedResults(t *testing.T) {
	h, st := newTestHandlers(t)
	pkgID, _ := st.UpsertPackage(context.Background(), "tokio", "1.0.0")
	provider, _ := embedding.Get()
	embedded, _, _ := provider.EmbedDocuments(context.Background(), []embedding.Document{{Path: "intro.html", Content: "tokio is an async runtime"}})
	_ = st.InsertEmbeddingsBatch(context.Background(), pkgID, "tokio", []store.EmbeddingRow{
		{Path: embedded[0].Path, Content: embedded[0].Content, Vector: embedded[0].Vector, TokenCount: 5},
	})
	h.Availability.Add("tokio")

	res, _, err := h.queryDocs(context.Background(), nil, queryDocsArgs{PackageName: "tokio", Question: "what is tokio?"})
	if err != nil {
		t.Fatalf("queryDocs: %v", err)
	}
	if res.IsError {
		t.Fatal("did not expect an error result")
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.HasPrefix(text, "From tokio docs (via vector database search):") || !strings.Contains(text, "intro.html") {
		t.Fatalf("unexpected formatted result: %q", text)
	}
}

func TestAddPackage_ValidatesInput(t *testing.T) {
	h, _ := newTestHandlers(t)

	res, _, _ := h.addPackage(context.Background(), nil, addPackageArgs{Name: "", VersionSpec: "latest"})
	if !res.IsError {
		t.Fatal("expected error for empty name")
	}

	res, _, _ = h.addPackage(context.Background(), nil, addPackageArgs{Name: "tokio", VersionSpec: "not-a-version"})
	if !res.IsError {
		t.Fatal("expected error for invalid version_spec")
	}

	res, _, _ = h.addPackage(context.Background(), nil, addPackageArgs{Name: "tokio", VersionSpec: "latest"})
	if res.IsError {
		t.Fatal("expected success accepting a valid add_package call")
	}

	// Give the background ingestion goroutine a moment to start. The test
	// does not wait for it to finish: its crawl of the unreachable target
	// keeps retrying with backoff well past this sleep.
	time.Sleep(10 * time.Millisecond)
}

func TestCheckStatus_ReflectsDocumentCount(t *testing.T) {
	h, st := newTestHandlers(t)
	pkgID, _ := st.UpsertPackage(context.Background(), "serde", "")
	_ = st.InsertEmbeddingsBatch(context.Background(), pkgID, "serde", []store.EmbeddingRow{{Path: "a", Content: "b", Vector: []float32{1}}})

	_, raw, err := h.checkStatus(context.Background(), nil, checkStatusArgs{Name: "serde"})
	if err != nil {
		t.Fatalf("checkStatus: %v", err)
	}
	status := raw.(statusResult)
	if !status.Available || status.DocumentCount != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRemovePackage_RemovesFromAvailability(t *testing.T) {
	h, st := newTestHandlers(t)
	_, _ = st.UpsertConfig(context.Background(), store.PackageConfig{Name: "tokio", VersionSpec: "latest", Enabled: true})
	h.Availability.Add("tokio")

	res, _, err := h.removePackage(context.Background(), nil, removePackageArgs{Name: "tokio"})
	if err != nil {
		t.Fatalf("removePackage: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected successful removal, got error result: %+v", res)
	}
	if h.Availability.Has("tokio") {
		t.Fatal("expected tokio to be removed from the availability set")
	}
}
