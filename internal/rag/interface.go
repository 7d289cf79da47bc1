// Package rag defines the retrieval contracts the graph nodes consume:
// vector storage, embedding, and query-time retrieval. Concrete backends
// (Qdrant, OpenAI-compatible embedders) satisfy these interfaces so the
// pipelines never depend on a specific service.
package rag

import (
	"context"
)

// Document is a unit of stored or retrieved knowledge — for paperflow, one
// synthetic summary document per ingested paper.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// Content is the text of the document.
	Content string

	// Source is the origin of the document (a file path for ingested
	// papers, "web_search" or "uploaded" for transient passages).
	Source string

	// Metadata holds arbitrary key-value pairs (title, venue, year,
	// content_type, ...).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval. Zero means
	// the score was not computed.
	Score float32
}

// ScrollPoint is one record returned by a full-collection export, carrying
// the stored vector alongside the document payload.
type ScrollPoint struct {
	// Document is the stored payload.
	Document Document

	// Vector is the stored embedding.
	Vector []float32
}

// VectorStore persists and searches document embeddings. Implementations
// must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates documents with their pre-computed embeddings.
	// vectors must be parallel to docs — vectors[i] embeds docs[i].
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error

	// Search returns the top-k most similar documents for the query
	// embedding, ranked descending by similarity.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Document, error)

	// Scroll pages through the whole collection. cursor is the opaque value
	// returned by the previous call ("" starts from the beginning); a ""
	// next cursor means the export is complete.
	Scroll(ctx context.Context, batchSize int, cursor string) (points []ScrollPoint, next string, err error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (uint64, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings. The embedding
// dimensionality is a fixed contract with the vector store; substituting a
// model with a different output size requires recreating the collection.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings. The returned
	// slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches relevant documents for a query, combining embedding and
// vector search. Implementations must be safe to call from multiple
// goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
