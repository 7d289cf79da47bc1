package rag

import (
	"context"
	"fmt"
	"testing"
)

// fakeEmbedder returns a fixed vector per input.
type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

// fakeStore records searches and serves fixed documents.
type fakeStore struct {
	VectorStore
	docs    []Document
	err     error
	vectors [][]float32
	topKs   []int
}

func (s *fakeStore) Search(_ context.Context, queryVector []float32, topK int) ([]Document, error) {
	s.vectors = append(s.vectors, queryVector)
	s.topKs = append(s.topKs, topK)
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func Test_NewRetriever_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewRetriever(nil, &fakeStore{}, 5); err == nil {
		t.Error("want error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 5); err == nil {
		t.Error("want error for nil store")
	}
}

func Test_Retrieve_EmbedsQueryAndSearches(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	store := &fakeStore{docs: []Document{{ID: "1", Content: "hit"}}}
	r, err := NewRetriever(emb, store, 5)
	if err != nil {
		t.Fatal(err)
	}

	docs, err := r.Retrieve(context.Background(), "kv cache compression", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "1" {
		t.Errorf("unexpected docs: %v", docs)
	}
	if len(emb.texts) != 1 || emb.texts[0] != "kv cache compression" {
		t.Errorf("query not embedded: %v", emb.texts)
	}
	if store.topKs[0] != 3 {
		t.Errorf("topK = %d, want 3", store.topKs[0])
	}
	if len(store.vectors[0]) != 2 {
		t.Errorf("query vector not forwarded: %v", store.vectors)
	}
}

func Test_Retrieve_DefaultTopK(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	r, err := NewRetriever(&fakeEmbedder{vector: []float32{1}}, store, 7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatal(err)
	}
	if store.topKs[0] != 7 {
		t.Errorf("topK = %d, want the configured default 7", store.topKs[0])
	}
}

func Test_Retrieve_EmbedderFailure(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(&fakeEmbedder{err: fmt.Errorf("api down")}, &fakeStore{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 5); err == nil {
		t.Fatal("want embedding error surfaced")
	}
}
