// Package embedding provides the pluggable embedding provider capability:
// a uniform interface over the OpenAI-style and Voyage-style backends, a
// deterministic test double, and a process-wide install-once singleton.
package embedding

import (
	"context"
	"sync"

	"docsearch/internal/apperr"
)

// Document pairs a documentation path with its extracted text, the shape
// the ingestion pipeline passes in and the provider echoes back alongside
// each generated vector.
type Document struct {
	Path    string
	Content string
}

// EmbeddedDocument is a Document with its generated vector attached.
type EmbeddedDocument struct {
	Path    string
	Content string
	Vector  []float32
}

// Provider is the capability every embedding backend implements.
type Provider interface {
	// EmbedTexts embeds arbitrary strings, preserving input order.
	EmbedTexts(ctx context.Context, texts []string) (vectors [][]float32, tokensUsed int, err error)
	// EmbedDocuments embeds documents, preserving path/content alongside
	// each vector and input order.
	EmbedDocuments(ctx context.Context, docs []Document) (results []EmbeddedDocument, tokensUsed int, err error)
	// Name identifies the provider/model pair, e.g. "openai:text-embedding-3-small".
	Name() string
	// Dimension reports the fixed vector width this provider produces.
	Dimension() int
}

var (
	installOnce sync.Once
	installed   Provider
)

// Install sets the process-wide provider. It may be called exactly once;
// subsequent calls return an error without replacing the installed
// instance.
func Install(p Provider) error {
	didInstall := false
	installOnce.Do(func() {
		installed = p
		didInstall = true
	})
	if !didInstall {
		return apperr.New(apperr.Configuration, "embedding.Install", errAlreadyInstalled)
	}
	return nil
}

// Get returns the installed provider, or an error if none has been
// installed yet.
func Get() (Provider, error) {
	if installed == nil {
		return nil, apperr.New(apperr.Configuration, "embedding.Get", errNotInstalled)
	}
	return installed, nil
}

// resetForTest clears the singleton; only used by this package's own tests.
func resetForTest() {
	installOnce = sync.Once{}
	installed = nil
}

var (
	errAlreadyInstalled = providerError("embedding provider already installed")
	errNotInstalled     = providerError("embedding provider not installed")
)

type providerError string

func (e providerError) Error() string { return string(e) }
