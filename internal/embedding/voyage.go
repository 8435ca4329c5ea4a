package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docsearch/internal/apperr"
)

const (
	defaultVoyageBatchSize = 128
	voyageEndpoint         = "https://api.voyageai.com/v1/embeddings"
)

// voyageProvider is embedding Provider Variant B: a raw HTTP POST with an
// API-key bearer header.
type voyageProvider struct {
	client    *http.Client
	apiKey    string
	model     string
	dimension int
	batchSize int
}

// NewVoyage constructs Variant B.
func NewVoyage(apiKey, model string, dimension int) Provider {
	return &voyageProvider{
		client:    &http.Client{},
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		batchSize: defaultVoyageBatchSize,
	}
}

func (p *voyageProvider) Name() string   { return "voyage:" + p.model }
func (p *voyageProvider) Dimension() int { return p.dimension }

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *voyageProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error) {
	var (
		vectors   [][]float32
		totalUsed int
	)
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, used, err := p.fetchBatch(ctx, texts[start:end])
		if err != nil {
			return nil, totalUsed, err
		}
		vectors = append(vectors, batch...)
		totalUsed += used
	}
	return vectors, totalUsed, nil
}

func (p *voyageProvider) fetchBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	payload, err := json.Marshal(voyageRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, 0, apperr.New(apperr.Internal, "embedding.voyage.marshal", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, apperr.New(apperr.NetworkErr, "embedding.voyage.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, apperr.New(apperr.NetworkErr, "embedding.voyage.do", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, apperr.New(apperr.RateLimited, "embedding.voyage.do", fmt.Errorf("voyage rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, apperr.New(apperr.NetworkErr, "embedding.voyage.do", fmt.Errorf("voyage returned status %d", resp.StatusCode))
	}

	var parsed voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, apperr.New(apperr.Parsing, "embedding.voyage.decode", err)
	}
	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, parsed.Usage.TotalTokens, nil
}

func (p *voyageProvider) EmbedDocuments(ctx context.Context, docs []Document) ([]EmbeddedDocument, int, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, tokensUsed, err := p.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, tokensUsed, err
	}
	out := make([]EmbeddedDocument, len(docs))
	for i, d := range docs {
		out[i] = EmbeddedDocument{Path: d.Path, Content: d.Content, Vector: vectors[i]}
	}
	return out, tokensUsed, nil
}
