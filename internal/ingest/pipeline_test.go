package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"docsearch/internal/crawler"
	"docsearch/internal/embedding"
	"docsearch/internal/store"
)

func withDeterministicProvider(t *testing.T) {
	t.Helper()
	_ = embedding.Install(embedding.NewDeterministic(8, 7))
	t.Cleanup(func() {})
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/demo/latest/demo/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="version">1.2.3</div>
			<div class="docblock">root docs</div>
			<a href="./child.html">child</a></body></html>`))
	})
	mux.HandleFunc("/demo/latest/demo/child.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="docblock">child docs</div></body></html>`))
	})
	return httptest.NewServer(mux)
}

func TestPipeline_Ingest_HappyPath(t *testing.T) {
	withDeterministicProvider(t)
	srv := newTestServer(t)
	defer srv.Close()

	st := store.NewMemory()
	cr := crawler.New(srv.URL)
	pipe := New(st, cr, 2)

	cfg, err := st.UpsertConfig(context.Background(), store.PackageConfig{Name: "demo", VersionSpec: "latest", Enabled: true})
	if err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}

	result, err := pipe.Ingest(context.Background(), cfg, 10)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.DocumentsLoaded != 2 {
		t.Fatalf("expected 2 documents, got %d", result.DocumentsLoaded)
	}
	if result.EmbeddingsGenerated != 2 {
		t.Fatalf("expected 2 embeddings, got %d", result.EmbeddingsGenerated)
	}
	if result.Version != "1.2.3" {
		t.Fatalf("expected resolved version 1.2.3, got %q", result.Version)
	}

	count, err := st.CountDocuments(context.Background(), "demo")
	if err != nil || count != 2 {
		t.Fatalf("expected 2 persisted documents, got %d err=%v", count, err)
	}

	got, ok, err := st.GetConfig(context.Background(), "demo", "latest")
	if err != nil || !ok {
		t.Fatalf("GetConfig: ok=%v err=%v", ok, err)
	}
	if got.LastPopulated == nil {
		t.Fatal("expected LastPopulated to be set after a successful ingest")
	}
}

func TestPipeline_Ingest_NoDocumentsIsReportedAsError(t *testing.T) {
	withDeterministicProvider(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st := store.NewMemory()
	cr := crawler.New(srv.URL)
	pipe := New(st, cr, 2)

	cfg, _ := st.UpsertConfig(context.Background(), store.PackageConfig{Name: "ghost", VersionSpec: "latest", Enabled: true})

	_, err := pipe.Ingest(context.Background(), cfg, 10)
	if err == nil {
		t.Fatal("expected an error when zero documents are found")
	}
}
