package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/rag"
	"github.com/paperflow/paperflow-go/internal/search"
)

// stubModel replays canned responses and records the requests it saw.
type stubModel struct {
	responses []string
	err       error
	calls     [][]*schema.Message
}

func (m *stubModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls = append(m.calls, msgs)
	if m.err != nil {
		return nil, m.err
	}
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return schema.AssistantMessage(m.responses[i], nil), nil
}

func (m *stubModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("stub: streaming not supported")
}

// stubRaster returns fixed page images.
type stubRaster struct {
	images []string
	err    error
	calls  int
}

func (r *stubRaster) RenderPages(string, int) ([]string, error) {
	r.calls++
	return r.images, r.err
}

// stubEmbedder returns one fixed vector per input text.
type stubEmbedder struct {
	err   error
	texts []string
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// stubStore records upserts.
type stubStore struct {
	rag.VectorStore
	err  error
	docs []rag.Document
}

func (s *stubStore) Upsert(_ context.Context, docs []rag.Document, _ [][]float32) error {
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, docs...)
	return nil
}

// stubSearcher returns fixed results and records queries.
type stubSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

const completeMetadataJSON = `{
	"title": "Attention Is All You Need",
	"authors": ["Vaswani"],
	"year": "2017",
	"venue": "NeurIPS",
	"abstract": "Abs.",
	"introduction_summary": "Sum."
}`

func Test_ExtractMetadata_Complete(t *testing.T) {
	t.Parallel()
	raster := &stubRaster{images: []string{"img1", "img2"}}
	extractor := &stubModel{responses: []string{completeMetadataJSON}}
	n := NewNodes(extractor, raster, nil, nil, nil)

	update, err := n.ExtractMetadata(context.Background(), graph.State{
		KeyDocumentPath: "/papers/a.pdf",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(update.Strings(KeyMissingFields)) != 0 {
		t.Errorf("complete metadata should have no missing fields: %v", update)
	}
	meta := metadataFromState(update)
	if meta == nil || meta.Title != "Attention Is All You Need" {
		t.Errorf("metadata not stored: %v", update)
	}
	if len(update.Strings(KeyPageImages)) != 2 {
		t.Errorf("rendered images should be cached in state: %v", update)
	}
	// The extraction request must carry the page images as parts.
	req := extractor.calls[0]
	if len(req) != 2 || len(req[1].MultiContent) != 3 {
		t.Errorf("want 1 text part + 2 image parts, got %+v", req)
	}
}

func Test_ExtractMetadata_ReusesCachedImages(t *testing.T) {
	t.Parallel()
	raster := &stubRaster{images: []string{"fresh"}}
	extractor := &stubModel{responses: []string{completeMetadataJSON}}
	n := NewNodes(extractor, raster, nil, nil, nil)

	_, err := n.ExtractMetadata(context.Background(), graph.State{
		KeyDocumentPath: "/papers/a.pdf",
		KeyPageImages:   []string{"cached"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if raster.calls != 0 {
		t.Errorf("cached images should skip rendering, raster called %d times", raster.calls)
	}
}

func Test_ExtractMetadata_ArxivVenueTriggersRepair(t *testing.T) {
	t.Parallel()
	raster := &stubRaster{images: []string{"img"}}
	extractor := &stubModel{responses: []string{`{"title": "T", "year": "2023", "venue": "arXiv preprint"}`}}
	n := NewNodes(extractor, raster, nil, nil, nil)

	update, err := n.ExtractMetadata(context.Background(), graph.State{KeyDocumentPath: "/p.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	missing := update.Strings(KeyMissingFields)
	if len(missing) != 1 || missing[0] != "venue" {
		t.Errorf("arXiv venue should be flagged for repair, got %v", missing)
	}
}

func Test_ExtractMetadata_FailSoft(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		raster    *stubRaster
		extractor *stubModel
	}{
		{"render failure", &stubRaster{err: fmt.Errorf("broken pdf")}, &stubModel{responses: []string{"{}"}}},
		{"model failure", &stubRaster{images: []string{"img"}}, &stubModel{err: fmt.Errorf("api down")}},
		{"unparseable response", &stubRaster{images: []string{"img"}}, &stubModel{responses: []string{"sorry, no JSON"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := NewNodes(tc.extractor, tc.raster, nil, nil, nil)
			update, err := n.ExtractMetadata(context.Background(), graph.State{KeyDocumentPath: "/p.pdf"})
			if err != nil {
				t.Fatalf("failures must be recorded in state, not returned: %v", err)
			}
			if update.String(KeyStatus) != StatusFailed {
				t.Errorf("want failed status, got %v", update)
			}
			if update.String(KeyErrorMessage) == "" {
				t.Error("want an error message in state")
			}
		})
	}
}

func Test_WebFixer_RepairsAndIncrements(t *testing.T) {
	t.Parallel()
	searcher := &stubSearcher{results: []search.Result{{URL: "https://dblp.org/t", Content: "ICLR 2021"}}}
	extractor := &stubModel{responses: []string{`{"venue": "ICLR", "year": "2021"}`}}
	n := NewNodes(extractor, nil, nil, nil, searcher)

	update, err := n.WebFixer(context.Background(), graph.State{
		KeyMetadata:      &Metadata{Title: "T", Venue: "arXiv"},
		KeyMissingFields: []string{"venue"},
		KeyRetryCount:    1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.Int(KeyRetryCount) != 2 {
		t.Errorf("retry count must advance, got %d", update.Int(KeyRetryCount))
	}
	meta := metadataFromState(update)
	if meta.Venue != "ICLR" || meta.Year != "2021" {
		t.Errorf("repair not merged: %+v", meta)
	}
	if len(update.Strings(KeyMissingFields)) != 0 {
		t.Errorf("repaired fields should clear the missing set: %v", update)
	}
	if want := "T paper conference year bibtex"; searcher.queries[0] != want {
		t.Errorf("query = %q, want %q", searcher.queries[0], want)
	}
}

func Test_WebFixer_SearchFailureStillCountsAttempt(t *testing.T) {
	t.Parallel()
	searcher := &stubSearcher{err: fmt.Errorf("api down")}
	n := NewNodes(&stubModel{responses: []string{"{}"}}, nil, nil, nil, searcher)

	update, err := n.WebFixer(context.Background(), graph.State{
		KeyMetadata:      &Metadata{Title: "T"},
		KeyMissingFields: []string{"year", "venue"},
		KeyRetryCount:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.Int(KeyRetryCount) != 1 {
		t.Errorf("a failed attempt still consumes a retry, got %d", update.Int(KeyRetryCount))
	}
	if len(update.Strings(KeyMissingFields)) != 2 {
		t.Errorf("nothing repaired, missing set should persist: %v", update)
	}
}

func Test_WebFixer_EmptyRepairKeepsMetadata(t *testing.T) {
	t.Parallel()
	searcher := &stubSearcher{results: []search.Result{{URL: "u", Content: "c"}}}
	extractor := &stubModel{responses: []string{"{}"}}
	n := NewNodes(extractor, nil, nil, nil, searcher)

	update, err := n.WebFixer(context.Background(), graph.State{
		KeyMetadata:      &Metadata{Title: "T", Year: "2020"},
		KeyMissingFields: []string{"venue"},
		KeyRetryCount:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	meta := metadataFromState(update)
	if meta.Title != "T" || meta.Year != "2020" {
		t.Errorf("empty repair must not clobber metadata: %+v", meta)
	}
}

func Test_Ingest_SingleDocument(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	embedder := &stubEmbedder{}
	n := NewNodes(nil, nil, embedder, store, nil)

	update, err := n.Ingest(context.Background(), graph.State{
		KeyDocumentPath: "/papers/a.pdf",
		KeyMetadata: &Metadata{
			Title: "T", Year: "2020", Venue: "ICML",
			Authors: []string{"A"}, Abstract: "Abs.", Summary: "Sum.",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.String(KeyStatus) != StatusSuccess {
		t.Fatalf("want success, got %v", update)
	}
	if len(store.docs) != 1 {
		t.Fatalf("one paper must produce exactly one document, got %d", len(store.docs))
	}
	doc := store.docs[0]
	if doc.Source != "/papers/a.pdf" {
		t.Errorf("source = %q", doc.Source)
	}
	if doc.Metadata["content_type"] != "ai_generated_summary" {
		t.Errorf("content_type = %q", doc.Metadata["content_type"])
	}
	if doc.Metadata["venue"] != "ICML" || doc.Metadata["year"] != "2020" {
		t.Errorf("metadata payload incomplete: %v", doc.Metadata)
	}
	if !strings.Contains(doc.Content, "--- Abstract ---") {
		t.Errorf("document should use labeled sections:\n%s", doc.Content)
	}
	if len(embedder.texts) != 1 {
		t.Errorf("one document, one embedding; embedded %d texts", len(embedder.texts))
	}
}

func Test_Ingest_FailSoft(t *testing.T) {
	t.Parallel()
	n := NewNodes(nil, nil, &stubEmbedder{err: fmt.Errorf("api down")}, &stubStore{}, nil)
	update, err := n.Ingest(context.Background(), graph.State{
		KeyMetadata: &Metadata{Title: "T"},
	})
	if err != nil {
		t.Fatalf("failures must be recorded in state: %v", err)
	}
	if update.String(KeyStatus) != StatusFailed {
		t.Errorf("want failed status, got %v", update)
	}
}

func Test_DecideNextStep(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		state graph.State
		want  string
	}{
		{"failed extraction", graph.State{KeyStatus: StatusFailed}, decisionFail},
		{"complete metadata", graph.State{KeyMissingFields: []string{}}, decisionIngest},
		{"nothing extracted yet is complete", graph.State{}, decisionIngest},
		{"missing with retries left", graph.State{KeyMissingFields: []string{"venue"}, KeyRetryCount: 2}, decisionWebFixer},
		{"missing but retries exhausted", graph.State{KeyMissingFields: []string{"venue"}, KeyRetryCount: 3}, decisionIngest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DecideNextStep(tc.state); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func Test_IngestionGraph_CompleteMetadataSkipsRepair(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	searcher := &stubSearcher{}
	n := NewNodes(
		&stubModel{responses: []string{completeMetadataJSON}},
		&stubRaster{images: []string{"img"}},
		&stubEmbedder{}, store, searcher,
	)
	cg, err := BuildGraph(n)
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), graph.State{KeyDocumentPath: "/p.pdf"}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.String(KeyStatus) != StatusSuccess {
		t.Errorf("want success, got %v", final)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("complete metadata must not hit the web, got %v", searcher.queries)
	}
	if len(store.docs) != 1 {
		t.Errorf("want one stored document, got %d", len(store.docs))
	}
}

func Test_IngestionGraph_RepairLoopGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	// Extraction misses the year; every repair attempt finds nothing. The
	// loop must run exactly maxRetries times and then store best-effort.
	store := &stubStore{}
	searcher := &stubSearcher{results: []search.Result{{URL: "u", Content: "nothing"}}}
	extractor := &stubModel{responses: []string{
		`{"title": "T", "venue": "ICML"}`, // extraction: year missing
		"{}", "{}", "{}",                  // repairs find nothing
	}}
	n := NewNodes(extractor, &stubRaster{images: []string{"img"}}, &stubEmbedder{}, store, searcher)
	cg, err := BuildGraph(n)
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), graph.State{KeyDocumentPath: "/p.pdf"}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(searcher.queries) != maxRetries {
		t.Errorf("want %d repair attempts, got %d", maxRetries, len(searcher.queries))
	}
	if final.String(KeyStatus) != StatusSuccess {
		t.Errorf("exhausted retries should still store best-effort, got %v", final)
	}
	if len(store.docs) != 1 {
		t.Errorf("want one stored document, got %d", len(store.docs))
	}
}

func Test_IngestionGraph_FailedExtractionEndsRun(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	searcher := &stubSearcher{}
	n := NewNodes(
		&stubModel{responses: []string{"not json"}},
		&stubRaster{images: []string{"img"}},
		&stubEmbedder{}, store, searcher,
	)
	cg, err := BuildGraph(n)
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), graph.State{KeyDocumentPath: "/p.pdf"}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.String(KeyStatus) != StatusFailed {
		t.Errorf("want failed status, got %v", final)
	}
	if len(store.docs) != 0 {
		t.Errorf("a failed extraction must never be ingested, got %d docs", len(store.docs))
	}
	if len(searcher.queries) != 0 {
		t.Errorf("a failed extraction must not trigger repair, got %v", searcher.queries)
	}
}
