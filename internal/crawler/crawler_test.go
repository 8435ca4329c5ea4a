package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCrawl_ExtractsContentAndFollowsLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<span class="version">1.2.3</span>
			<div class="docblock">root content</div>
			<a href="./sub.html">sub</a>
		</body></html>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/sub.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="docblock">sub content</div></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Crawl(context.Background(), "alpha", "latest", nil, 10)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if res.ResolvedVersion != "1.2.3" {
		t.Errorf("expected resolved version 1.2.3, got %q", res.ResolvedVersion)
	}
	if len(res.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(res.Documents), res.Documents)
	}
	if res.Documents[0].Content != "root content" {
		t.Errorf("unexpected first document content: %q", res.Documents[0].Content)
	}
	found := false
	for _, d := range res.Documents {
		if strings.Contains(d.Content, "sub content") {
			found = true
		}
	}
	if !found {
		t.Error("expected the followed sub page's content to be present")
	}
}

func TestCrawl_HonoursMaxPages(t *testing.T) {
	var hits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<html><body><div class="docblock">x</div><a href="./next` + r.URL.Path + `.html">n</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Crawl(context.Background(), "alpha", "latest", nil, 2)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if hits > 2 {
		t.Errorf("expected at most 2 page fetches, got %d", hits)
	}
}

func TestCrawl_SkipsPermanentlyFailingPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha/latest/alpha/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="docblock">ok</div><a href="./missing.html">m</a></body></html>`))
	})
	mux.HandleFunc("/alpha/latest/alpha/missing.html", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Crawl(context.Background(), "alpha", "latest", nil, 10)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("expected 1 document (the failing page is skipped), got %d", len(res.Documents))
	}
}

func TestPassesURLPolicy(t *testing.T) {
	cases := map[string]bool{
		"https://docs.rs/alpha/latest/alpha/src/lib.rs.html": false,
		"https://docs.rs/alpha/latest/alpha/struct.Foo.html#method.bar": false,
		"https://docs.rs/alpha/latest/alpha/struct.Foo.html":            true,
	}
	for url, want := range cases {
		if got := passesURLPolicy(url); got != want {
			t.Errorf("passesURLPolicy(%q) = %v, want %v", url, got, want)
		}
	}
}
