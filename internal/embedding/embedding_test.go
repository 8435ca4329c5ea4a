package embedding

import (
	"context"
	"testing"
)

func TestDeterministicProvider_OrderPreserved(t *testing.T) {
	p := NewDeterministic(16, 42)
	vectors, tokens, err := p.EmbedTexts(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if tokens <= 0 {
		t.Errorf("expected positive token count, got %d", tokens)
	}
	again, _, _ := p.EmbedTexts(context.Background(), []string{"alpha"})
	for i := range again[0] {
		if again[0][i] != vectors[0][i] {
			t.Fatalf("deterministic provider produced different vectors for the same input")
		}
	}
}

func TestEmbedDocuments_PreservesPathAndContent(t *testing.T) {
	p := NewDeterministic(8, 1)
	docs := []Document{{Path: "a.html", Content: "hello"}, {Path: "b.html", Content: "world"}}
	out, _, err := p.EmbedDocuments(context.Background(), docs)
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if len(out) != 2 || out[0].Path != "a.html" || out[1].Path != "b.html" {
		t.Fatalf("unexpected output ordering or path mismatch: %+v", out)
	}
}

func TestInstall_SecondCallFails(t *testing.T) {
	resetForTest()
	defer resetForTest()

	if err := Install(NewDeterministic(4, 0)); err != nil {
		t.Fatalf("first install should succeed: %v", err)
	}
	if err := Install(NewDeterministic(4, 0)); err == nil {
		t.Fatal("second install should fail")
	}
	got, err := Get()
	if err != nil {
		t.Fatalf("Get after install: %v", err)
	}
	if got.Name() != "deterministic" {
		t.Errorf("unexpected installed provider: %s", got.Name())
	}
}

func TestGet_BeforeInstall(t *testing.T) {
	resetForTest()
	defer resetForTest()

	if _, err := Get(); err == nil {
		t.Fatal("expected error before any provider is installed")
	}
}
