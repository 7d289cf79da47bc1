package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/pdf"
	"github.com/paperflow/paperflow-go/internal/rag"
	"github.com/paperflow/paperflow-go/internal/search"
)

// defaultMaxPages caps how many leading pages are rendered for the vision
// model. Title, authors, abstract, and introduction fit in the first five
// pages of essentially every paper.
const defaultMaxPages = 5

// maxRetries bounds the web repair loop. After this many attempts the paper
// is stored with whatever metadata it has.
const maxRetries = 3

// extractSystemPrompt instructs the vision model to read the rendered pages
// and return structured bibliographic metadata.
const extractSystemPrompt = `You are a meticulous research librarian. You read the rendered pages of an
academic paper and extract its bibliographic metadata.

Return ONLY a JSON object with exactly these keys:
  "title": the full paper title
  "authors": list of author names in paper order
  "year": publication year as a string, or "" if not visible
  "venue": the conference or journal name, or "" if not visible
  "abstract": the paper abstract, verbatim
  "introduction_summary": a 3-5 sentence summary of the introduction and
  background sections

Do not guess a year or venue that is not visible on the pages. Do not wrap
the JSON in markdown fences.`

// extractUserPrompt accompanies the page images in the extraction request.
const extractUserPrompt = `Here are the leading pages of the paper. Extract the metadata.`

// repairSystemPrompt instructs the model to correct metadata from web search
// snippets. The current venue is injected so the model knows what it is
// replacing.
const repairSystemPrompt = `You are a research librarian correcting incomplete bibliographic metadata
using web search results. The currently recorded venue is: %s

Return ONLY a JSON object containing the fields you can now fill or correct
(any of "title", "authors", "year", "venue"). If the search results answer
nothing, return an empty JSON object {}. Prefer the official publication
venue over preprint servers. Do not wrap the JSON in markdown fences.`

// repairUserPrompt carries the paper identity, the gaps, and the evidence.
const repairUserPrompt = `Paper title: %s
Currently recorded venue: %s
Missing or unusable fields: %s

Web search results:
%s`

// Nodes bundles the collaborators the ingestion nodes need. The zero value is
// not usable; construct with NewNodes.
type Nodes struct {
	extractor model.BaseChatModel
	raster    pdf.Rasterizer
	embedder  rag.Embedder
	store     rag.VectorStore
	search    search.Searcher
	maxPages  int
}

// NewNodes constructs the ingestion node set.
func NewNodes(extractor model.BaseChatModel, raster pdf.Rasterizer, embedder rag.Embedder, store rag.VectorStore, searcher search.Searcher) *Nodes {
	return &Nodes{
		extractor: extractor,
		raster:    raster,
		embedder:  embedder,
		store:     store,
		search:    searcher,
		maxPages:  defaultMaxPages,
	}
}

// ExtractMetadata renders the document's leading pages (unless a prior step
// already did), sends them to the vision model, and reflects on the result to
// find unusable fields. All failures are recorded in state rather than
// returned: a bad PDF must not abort the engine, it must route to the fail
// branch.
func (n *Nodes) ExtractMetadata(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	path := s.String(KeyDocumentPath)
	log.Info("ingest: extracting metadata", slog.String("document", path))

	images := s.Strings(KeyPageImages)
	if len(images) == 0 {
		rendered, err := n.raster.RenderPages(path, n.maxPages)
		if err != nil {
			log.Error("ingest: page rendering failed", slog.Any("error", err))
			return graph.State{KeyStatus: StatusFailed, KeyErrorMessage: err.Error()}, nil
		}
		images = rendered
	}

	parts := []schema.ChatMessagePart{
		{Type: schema.ChatMessagePartTypeText, Text: extractUserPrompt},
	}
	for _, img := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL: "data:image/png;base64," + img,
			},
		})
	}
	messages := []*schema.Message{
		schema.SystemMessage(extractSystemPrompt),
		{Role: schema.User, MultiContent: parts},
	}

	resp, err := n.extractor.Generate(ctx, messages)
	if err != nil {
		log.Error("ingest: extraction model call failed", slog.Any("error", err))
		return graph.State{KeyStatus: StatusFailed, KeyErrorMessage: err.Error()}, nil
	}

	meta, err := parseMetadata(resp.Content)
	if err != nil {
		log.Error("ingest: extraction response unparseable", slog.Any("error", err))
		return graph.State{KeyStatus: StatusFailed, KeyErrorMessage: err.Error()}, nil
	}

	missing := missingAfterExtraction(meta)
	if len(missing) > 0 {
		log.Warn("ingest: incomplete metadata, web repair needed",
			slog.String("title", meta.Title),
			slog.Any("missing", missing),
		)
	} else {
		log.Info("ingest: metadata complete", slog.String("title", meta.Title))
	}

	return graph.State{
		KeyPageImages:    images,
		KeyMetadata:      meta,
		KeyMissingFields: missing,
		KeyRetryCount:    s.Int(KeyRetryCount),
	}, nil
}

// WebFixer runs one repair attempt: search the web for the paper's
// publication record and let the model merge what it finds into the metadata.
// The retry counter advances unconditionally — a fruitless attempt still
// consumed one of the bounded tries, which is what guarantees the loop
// terminates.
func (n *Nodes) WebFixer(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	retries := s.Int(KeyRetryCount)
	meta := metadataFromState(s)
	if meta == nil {
		meta = &Metadata{}
	}
	missing := s.Strings(KeyMissingFields)

	log.Info("ingest: web repair attempt",
		slog.Int("attempt", retries+1),
		slog.String("title", meta.Title),
		slog.Any("missing", missing),
	)

	query := meta.Title + " paper conference year bibtex"

	results, err := n.search.Search(ctx, query)
	if err != nil {
		// A dead search API is indistinguishable from an unanswerable
		// query: count the attempt and let the router decide.
		log.Error("ingest: web search failed", slog.Any("error", err))
		return graph.State{
			KeyMetadata:      meta,
			KeyMissingFields: missingAfterRepair(meta),
			KeyRetryCount:    retries + 1,
		}, nil
	}

	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(repairSystemPrompt, orUnknown(meta.Venue))),
		schema.UserMessage(fmt.Sprintf(repairUserPrompt,
			meta.Title,
			orUnknown(meta.Venue),
			strings.Join(missing, ", "),
			search.FormatResults(results),
		)),
	}

	resp, err := n.extractor.Generate(ctx, messages)
	if err != nil {
		log.Error("ingest: repair model call failed", slog.Any("error", err))
	} else if fix, perr := parseRepair(resp.Content); perr != nil {
		log.Error("ingest: repair response unparseable", slog.Any("error", perr))
	} else if len(fix) > 0 {
		applyRepair(meta, fix)
		log.Info("ingest: metadata repaired", slog.Any("fields", fix))
	} else {
		log.Info("ingest: web had nothing useful")
	}

	return graph.State{
		KeyMetadata:      meta,
		KeyMissingFields: missingAfterRepair(meta),
		KeyRetryCount:    retries + 1,
	}, nil
}

// Ingest builds one synthetic labeled-section document from the metadata,
// embeds it, and upserts it. One paper, one document, one vector: chunking a
// summary this small would only multiply records sharing identical metadata.
func (n *Nodes) Ingest(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	meta := metadataFromState(s)
	if meta == nil {
		meta = &Metadata{}
	}

	content := buildSummaryDocument(meta)

	doc := rag.Document{
		ID:      uuid.NewString(),
		Content: content,
		Source:  s.String(KeyDocumentPath),
		Metadata: map[string]string{
			"title":        meta.Title,
			"authors":      strings.Join(meta.Authors, ", "),
			"year":         meta.Year,
			"venue":        meta.Venue,
			"content_type": "ai_generated_summary",
		},
	}

	vectors, err := n.embedder.Embed(ctx, []string{content})
	if err != nil {
		log.Error("ingest: embedding failed", slog.Any("error", err))
		return graph.State{KeyStatus: StatusFailed, KeyErrorMessage: err.Error()}, nil
	}

	if err := n.store.Upsert(ctx, []rag.Document{doc}, vectors); err != nil {
		log.Error("ingest: vector store write failed", slog.Any("error", err))
		return graph.State{KeyStatus: StatusFailed, KeyErrorMessage: err.Error()}, nil
	}

	log.Info("ingest: document stored",
		slog.String("title", meta.Title),
		slog.Int("length", len(content)),
	)
	return graph.State{KeyStatus: StatusSuccess}, nil
}

// buildSummaryDocument renders the metadata as one labeled-section text block,
// the unit of storage and retrieval for a paper.
func buildSummaryDocument(m *Metadata) string {
	parts := []string{
		"Title: " + orUnknown(m.Title),
		"Year: " + orUnknown(m.Year),
		"Venue: " + orUnknown(m.Venue),
		"Authors: " + orUnknown(strings.Join(m.Authors, ", ")),
		"--- Abstract ---",
		orDefault(m.Abstract, "No abstract extracted."),
		"--- Core Introduction & Background ---",
		orDefault(m.Summary, "No summary provided."),
	}
	return strings.Join(parts, "\n\n")
}

// orUnknown substitutes "Unknown" for an empty value.
func orUnknown(s string) string {
	return orDefault(s, "Unknown")
}

// orDefault substitutes def for an empty value.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
