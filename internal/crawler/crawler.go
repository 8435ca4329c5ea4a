// Package crawler implements the bounded breadth-first documentation
// crawler: it fetches HTML pages from a documentation host, extracts the
// visible text of their documentation blocks with CSS selectors, and
// follows same-package relative links up to a page budget.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"docsearch/internal/apperr"
)

// Document is one logical page of extracted documentation.
type Document struct {
	Path    string
	Content string
}

const (
	contentSelector = "div.docblock, section.docblock, .rustdoc .docblock"
	versionSelector = ".version"
	maxAttempts     = 3
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
	politenessDelay = 500 * time.Millisecond
)

// Crawler fetches and extracts documentation pages for one package at a
// time from a single documentation host.
type Crawler struct {
	client  *http.Client
	baseURL string // e.g. "https://docs.rs"
}

// New constructs a Crawler against the given documentation host base URL.
func New(baseURL string) *Crawler {
	return &Crawler{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Result is the outcome of a bounded crawl.
type Result struct {
	Documents       []Document
	ResolvedVersion string
}

// Crawl performs the bounded BFS traversal described by the service's
// ingestion contract. features is passed through unused by this
// implementation (it is opaque to the crawler per the contract) but kept
// in the signature so callers need not special-case it.
func (c *Crawler) Crawl(ctx context.Context, packageName, versionSpec string, features []string, maxPages int) (Result, error) {
	if maxPages <= 0 {
		maxPages = 10000
	}
	seed := fmt.Sprintf("%s/%s/%s/%s/", c.baseURL, packageName, versionSpec, packageName)

	frontier := []string{seed}
	visited := make(map[string]struct{})
	var documents []Document
	var resolvedVersion string
	processed := 0
	linkBudget := (maxPages * 3) / 4

	for len(frontier) > 0 {
		if processed >= maxPages {
			break
		}
		select {
		case <-ctx.Done():
			return Result{Documents: documents, ResolvedVersion: resolvedVersion}, ctx.Err()
		default:
		}

		u := frontier[0]
		frontier = frontier[1:]
		if _, ok := visited[u]; ok {
			continue
		}
		if !passesURLPolicy(u) {
			visited[u] = struct{}{}
			continue
		}
		visited[u] = struct{}{}
		processed++

		body, err := fetchWithRetry(ctx, c.client, u, maxAttempts)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("crawler: page fetch failed, skipping")
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("crawler: parse failed, skipping")
			continue
		}

		if resolvedVersion == "" && processed == 1 {
			resolvedVersion = extractVersion(doc, u)
		}

		if content := extractContent(doc); content != "" {
			documents = append(documents, Document{
				Path:    strings.TrimPrefix(u, c.baseURL+"/"),
				Content: content,
			})
		}

		if processed < linkBudget {
			for _, next := range discoverLinks(doc, u, packageName, c.baseURL) {
				if _, ok := visited[next]; !ok {
					frontier = append(frontier, next)
				}
			}
		}

		select {
		case <-ctx.Done():
			return Result{Documents: documents, ResolvedVersion: resolvedVersion}, ctx.Err()
		case <-time.After(politenessDelay):
		}
	}

	return Result{Documents: documents, ResolvedVersion: resolvedVersion}, nil
}

func passesURLPolicy(rawURL string) bool {
	if strings.Contains(rawURL, "/src/") {
		return false
	}
	rejectFragments := []string{"#method.", "#impl-", "#associatedtype.", "#associatedconstant."}
	for _, frag := range rejectFragments {
		if strings.Contains(rawURL, frag) {
			return false
		}
	}
	return true
}

func extractVersion(doc *goquery.Document, pageURL string) string {
	if sel := doc.Find(versionSelector).First(); sel.Length() > 0 {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return text
		}
	}
	segments := strings.Split(strings.TrimRight(pageURL, "/"), "/")
	if len(segments) >= 2 {
		candidate := segments[len(segments)-2]
		if candidate != "latest" && strings.ContainsFunc(candidate, isDigit) {
			return candidate
		}
	}
	return ""
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func extractContent(doc *goquery.Document) string {
	var blocks []string
	doc.Find(contentSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	return strings.Join(blocks, "\n\n")
}

func discoverLinks(doc *goquery.Document, pageURL, packageName, baseURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if !shouldFollow(href) {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := resolved.String()
		if strings.Contains(abs, baseURL) && strings.Contains(abs, packageName) && passesURLPolicy(abs) {
			out = append(out, abs)
		}
	})
	return out
}

func shouldFollow(href string) bool {
	if strings.HasPrefix(href, "./") || strings.HasPrefix(href, "../") {
		return true
	}
	if !strings.HasPrefix(href, "http") && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "/") && strings.HasSuffix(href, ".html") {
		return true
	}
	return false
}

func fetchWithRetry(ctx context.Context, client *http.Client, rawURL string, maxAttempts int) (string, error) {
	delay := initialBackoff
	for attempt := 0; ; attempt++ {
		body, retryable, permErr := fetchOnce(ctx, client, rawURL)
		if permErr != nil {
			return "", permErr
		}
		if retryable == nil {
			return body, nil
		}
		if attempt+1 >= maxAttempts {
			return "", retryable
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// fetchOnce performs a single attempt. It returns (body, nil, nil) on
// success, (_, retryableErr, nil) when the caller should back off and
// retry, and (_, _, permanentErr) when the failure must not be retried
// (404/4xx other than 429).
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (string, error, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, apperr.New(apperr.NetworkErr, "crawler.fetch", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.New(apperr.NetworkErr, "crawler.fetch", err), nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", apperr.New(apperr.NetworkErr, "crawler.readbody", readErr), nil
		}
		return string(b), nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperr.New(apperr.RateLimited, "crawler.fetch", fmt.Errorf("http 429 for %s", rawURL)), nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", nil, apperr.New(apperr.NotFound, "crawler.fetch", fmt.Errorf("http %d for %s", resp.StatusCode, rawURL))
	default:
		return "", apperr.New(apperr.NetworkErr, "crawler.fetch", fmt.Errorf("http %d for %s", resp.StatusCode, rawURL)), nil
	}
}

// ParseMaxPages parses a page budget given as a string (e.g. from an env
// var), returning fallback for an empty, non-numeric or non-positive value.
func ParseMaxPages(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
