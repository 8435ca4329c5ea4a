package embedding

import (
	"context"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"docsearch/internal/apperr"
)

const defaultOpenAIBatchSize = 96

// openAIProvider is embedding Provider Variant A: a chat-completion-style
// embeddings endpoint accessed through the official client.
type openAIProvider struct {
	client    sdk.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAI constructs Variant A. apiBase overrides the default endpoint
// when non-empty (e.g. a self-hosted OpenAI-compatible gateway).
func NewOpenAI(apiKey, model, apiBase string, dimension int) Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &openAIProvider{
		client:    sdk.NewClient(opts...),
		model:     model,
		dimension: dimension,
		batchSize: defaultOpenAIBatchSize,
	}
}

func (p *openAIProvider) Name() string   { return "openai:" + p.model }
func (p *openAIProvider) Dimension() int { return p.dimension }

func (p *openAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, int, error) {
	var (
		vectors   [][]float32
		totalUsed int
	)
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		resp, err := p.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
			Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: sdk.EmbeddingModel(p.model),
		})
		if err != nil {
			return nil, totalUsed, apperr.New(apperr.NetworkErr, "embedding.openai.EmbedTexts", err)
		}
		for _, d := range resp.Data {
			vectors = append(vectors, toFloat32(d.Embedding))
		}
		totalUsed += int(resp.Usage.TotalTokens)
	}
	return vectors, totalUsed, nil
}

func (p *openAIProvider) EmbedDocuments(ctx context.Context, docs []Document) ([]EmbeddedDocument, int, error) {
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

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
