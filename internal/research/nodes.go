package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/paperflow/paperflow-go/internal/budget"
	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/pdf"
	"github.com/paperflow/paperflow-go/internal/rag"
	"github.com/paperflow/paperflow-go/internal/search"
)

// defaultWriterTemperature is the sampling temperature for answer writing
// when the caller does not set one. Synthesis benefits from some variety;
// routing decisions never do (those run at zero).
const defaultWriterTemperature = 0.7

// uploadMaxPages caps how many pages of an uploaded document are summarised
// into the context.
const uploadMaxPages = 5

// NoMaterialAnswer is returned without a model call when nothing was
// retrieved and nothing was found on the web.
const NoMaterialAnswer = "I could not find any relevant material to answer your question, " +
	"neither in the paper library nor on the web."

// routerSystemPrompt frames the web-or-local decision.
const routerSystemPrompt = `You decide whether answering a research question requires live web search in
addition to a local library of academic paper summaries.

Choose "web_search" when the question concerns recent events, needs
information newer than typical published papers, or asks about things a
paper library would not contain. Choose "retrieve" when the local library
plausibly suffices.

Return ONLY a JSON object: {"decision": "web_search"} or
{"decision": "retrieve"}. Do not wrap it in markdown fences.`

// routerUserPrompt carries the question to the router.
const routerUserPrompt = `Question: %s`

// querySystemPrompt frames web query generation.
const querySystemPrompt = `You turn a research question into effective web search queries. Return 1-3
short queries separated by commas, nothing else. Put the best query first.`

// queryUserPrompt carries the question to the query generator.
const queryUserPrompt = `Question: %s`

// writerSystemPrompt frames answer synthesis over the numbered references.
const writerSystemPrompt = `You are a research assistant writing a grounded answer from the numbered
reference material below. Rules:
- base every claim on the references; say so when they do not cover something
- cite references inline as [1], [2], ...
- be precise about which paper said what; never conflate sources
- answer in the language of the question

Reference material:
%s`

// Nodes bundles the collaborators the research nodes need. The extractor
// model and rasterizer serve uploaded-document summaries only; agent is the
// reasoning model behind routing, query generation, and writing.
type Nodes struct {
	agent     model.BaseChatModel
	extractor model.BaseChatModel
	raster    pdf.Rasterizer
	retriever rag.Retriever
	search    search.Searcher
}

// NewNodes constructs the research node set.
func NewNodes(agent, extractor model.BaseChatModel, raster pdf.Rasterizer, retriever rag.Retriever, searcher search.Searcher) *Nodes {
	return &Nodes{
		agent:     agent,
		extractor: extractor,
		raster:    raster,
		retriever: retriever,
		search:    searcher,
	}
}

// Retrieve gathers local context: an uploaded document's summary first (when
// one was provided), then the top-k most similar library documents. Failures
// degrade to fewer passages — an empty library must not kill the run, the
// writer handles having nothing.
func (n *Nodes) Retrieve(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	question := s.String(KeyQuestion)
	passages := passagesFromState(s)

	if uploaded := s.String(KeyUploadedDocumentPath); uploaded != "" {
		if p, err := n.summariseUpload(ctx, uploaded); err != nil {
			log.Error("research: uploaded document summary failed", slog.Any("error", err))
		} else {
			passages = append(passages, p)
		}
	}

	docs, err := n.retriever.Retrieve(ctx, question, s.Int(KeyTopK))
	if err != nil {
		log.Error("research: retrieval failed", slog.Any("error", err))
		return graph.State{KeyRetrievedContext: passages}, nil
	}

	for _, d := range docs {
		passages = append(passages, Passage{
			Text:   d.Content,
			Source: d.Source,
			Title:  d.Metadata["title"],
			Venue:  d.Metadata["venue"],
			Year:   d.Metadata["year"],
		})
	}
	log.Info("research: local retrieval complete", slog.Int("passages", len(passages)))
	return graph.State{KeyRetrievedContext: passages}, nil
}

// summariseUpload renders an uploaded PDF and has the vision model produce a
// comprehensive summary passage for the writer's context.
func (n *Nodes) summariseUpload(ctx context.Context, path string) (Passage, error) {
	images, err := n.raster.RenderPages(path, uploadMaxPages)
	if err != nil {
		return Passage{}, fmt.Errorf("research: render uploaded document: %w", err)
	}

	parts := []schema.ChatMessagePart{
		{Type: schema.ChatMessagePartTypeText, Text: "Summarise this document comprehensively: " +
			"its topic, approach, key findings, and conclusions."},
	}
	for _, img := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL: "data:image/png;base64," + img,
			},
		})
	}

	resp, err := n.extractor.Generate(ctx, []*schema.Message{
		{Role: schema.User, MultiContent: parts},
	})
	if err != nil {
		return Passage{}, fmt.Errorf("research: summarise uploaded document: %w", err)
	}
	return Passage{Text: resp.Content, Source: "uploaded", Title: path}, nil
}

// Router decides whether the web is needed. When the caller disabled web
// search the decision is forced to local-only without spending a model call;
// otherwise the model decides at temperature zero. Any failure falls toward
// "web_search" — an unnecessary search costs little, a missed one costs the
// answer.
func (n *Nodes) Router(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)

	if !s.Bool(KeyAllowWebSearch) {
		log.Info("research: web search disabled, routing local-only")
		return graph.State{KeyRoutingDecision: DecisionRetrieve}, nil
	}

	messages := []*schema.Message{
		schema.SystemMessage(routerSystemPrompt),
		schema.UserMessage(fmt.Sprintf(routerUserPrompt, s.String(KeyQuestion))),
	}
	resp, err := n.agent.Generate(ctx, messages, model.WithTemperature(0))
	if err != nil {
		log.Error("research: router model call failed, falling back to web search", slog.Any("error", err))
		return graph.State{KeyRoutingDecision: DecisionWebSearch}, nil
	}

	var verdict struct {
		Decision string `json:"decision"`
	}
	content := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(resp.Content, "```json", ""), "```", ""))
	if err := json.Unmarshal([]byte(content), &verdict); err != nil || verdict.Decision == "" {
		log.Error("research: router verdict unparseable, falling back to web search",
			slog.String("content", resp.Content))
		return graph.State{KeyRoutingDecision: DecisionWebSearch}, nil
	}

	log.Info("research: routing decision", slog.String("decision", verdict.Decision))
	return graph.State{KeyRoutingDecision: verdict.Decision}, nil
}

// WebSearch generates search queries from the question and runs the best one,
// appending the result block as one passage. Only the first query is spent:
// one good query beats three mediocre ones for both latency and API budget.
func (n *Nodes) WebSearch(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	passages := passagesFromState(s)

	messages := []*schema.Message{
		schema.SystemMessage(querySystemPrompt),
		schema.UserMessage(fmt.Sprintf(queryUserPrompt, s.String(KeyQuestion))),
	}
	resp, err := n.agent.Generate(ctx, messages)
	if err != nil {
		log.Error("research: query generation failed", slog.Any("error", err))
		return graph.State{KeyRetrievedContext: passages}, nil
	}

	var queries []string
	for _, q := range strings.Split(resp.Content, ",") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		log.Error("research: query generation returned nothing usable")
		return graph.State{KeyRetrievedContext: passages}, nil
	}
	log.Info("research: generated web queries", slog.Any("queries", queries))

	query := queries[0]
	results, err := n.search.Search(ctx, query)
	if err != nil {
		log.Error("research: web search failed", slog.Any("error", err))
		return graph.State{
			KeyRetrievedContext: passages,
			KeyGeneratedQueries: queries,
		}, nil
	}

	passages = append(passages, Passage{
		Text:   search.FormatResults(results),
		Source: "web_search",
		Query:  query,
	})
	return graph.State{
		KeyRetrievedContext: passages,
		KeyGeneratedQueries: queries,
	}, nil
}

// Writer synthesises the answer from the accumulated passages and the
// conversation so far. With no material at all it answers honestly without
// spending a model call. The answer gets a machine-built references section,
// and both the question and the answer are appended to the conversation
// history through the reducer.
func (n *Nodes) Writer(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	question := s.String(KeyQuestion)
	passages := passagesFromState(s)

	if len(passages) == 0 {
		log.Warn("research: no material retrieved, answering without a model call")
		return graph.State{KeyAnswer: NoMaterialAnswer}, nil
	}

	fixed := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(writerSystemPrompt, formatPassages(passages))),
		schema.UserMessage(question),
	}

	var history []*schema.Message
	for _, t := range TurnsFromState(s) {
		if t.Role == "assistant" {
			history = append(history, schema.AssistantMessage(t.Content, nil))
		} else {
			history = append(history, schema.UserMessage(t.Content))
		}
	}
	history = budget.TrimHistory(fixed, history, budget.DefaultMaxContextTokens)

	// system, then trimmed history, then the current question.
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, fixed[0])
	messages = append(messages, history...)
	messages = append(messages, fixed[1])

	// Absence selects the default; a caller-supplied 0 is a valid setting.
	temp := defaultWriterTemperature
	if _, ok := s[KeyTemperature]; ok {
		temp = s.Float64(KeyTemperature)
	}

	resp, err := n.agent.Generate(ctx, messages, model.WithTemperature(float32(temp)))
	if err != nil {
		log.Error("research: answer generation failed", slog.Any("error", err))
		return graph.State{KeyAnswer: "Error generating answer."}, nil
	}

	answer := resp.Content + "\n\n" + formatReferences(passages)
	log.Info("research: answer generated", slog.Int("length", len(answer)))

	return graph.State{
		KeyAnswer: answer,
		KeyConversationHistory: []Turn{
			{Role: "user", Content: question},
			{Role: "assistant", Content: answer},
		},
	}, nil
}

// formatPassages renders the context as numbered labeled blocks for the
// writer prompt, matching the [n] citation scheme it is told to use.
func formatPassages(passages []Passage) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "\n--- Reference %d (%s) ---\n%s\n", i+1, passageLabel(p), p.Text)
	}
	return b.String()
}

// formatReferences builds the references section appended to every answer.
func formatReferences(passages []Passage) string {
	var b strings.Builder
	b.WriteString("References:")
	for i, p := range passages {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, passageLabel(p))
	}
	return b.String()
}

// passageLabel renders a human-readable identity for one passage.
func passageLabel(p Passage) string {
	switch p.Source {
	case "web_search":
		if p.Query != "" {
			return fmt.Sprintf("web search: %q", p.Query)
		}
		return "web search"
	case "uploaded":
		return "uploaded document"
	}
	label := p.Title
	if label == "" {
		label = p.Source
	}
	var extras []string
	if p.Venue != "" {
		extras = append(extras, p.Venue)
	}
	if p.Year != "" {
		extras = append(extras, p.Year)
	}
	if len(extras) > 0 {
		return fmt.Sprintf("%s (%s)", label, strings.Join(extras, " "))
	}
	return label
}
