// Package research implements the question-answering pipeline over the paper
// knowledge base: retrieve locally, decide whether the web is needed, search
// if so, and write a grounded answer with references.
package research

import (
	"encoding/json"

	"github.com/paperflow/paperflow-go/internal/graph"
)

// State field keys for the research graph.
const (
	// KeyConversationHistory accumulates prior turns across a thread. It is
	// reducer-merged: nodes append turns, they never rewrite the transcript.
	KeyConversationHistory = "conversation_history"
	// KeyQuestion is the input: the user's current question.
	KeyQuestion = "question"
	// KeyRoutingDecision records the router's verdict ("retrieve" or
	// "web_search").
	KeyRoutingDecision = "routing_decision"
	// KeyGeneratedQueries holds the web queries the model proposed.
	KeyGeneratedQueries = "generated_queries"
	// KeyRetrievedContext accumulates the passages feeding the writer.
	KeyRetrievedContext = "retrieved_context"
	// KeyAllowWebSearch gates the web: false short-circuits the router to
	// local-only with no model call.
	KeyAllowWebSearch = "allow_web_search"
	// KeyTopK is the local retrieval depth (0 = retriever default).
	KeyTopK = "top_k"
	// KeyTemperature is the writer's sampling temperature.
	KeyTemperature = "temperature"
	// KeyUploadedDocumentPath optionally names a PDF to summarise into the
	// context ahead of retrieval.
	KeyUploadedDocumentPath = "uploaded_document_path"
	// KeyAnswer is the output: the written answer with references.
	KeyAnswer = "answer"
)

// Routing decisions stored under KeyRoutingDecision.
const (
	DecisionRetrieve  = "retrieve"
	DecisionWebSearch = "web_search"
)

// Turn is one conversation entry: who spoke and what they said.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the turn text.
	Content string `json:"content"`
}

// Passage is one unit of writer context: a local summary document, a web
// search result, or an uploaded-document summary.
type Passage struct {
	// Text is the passage content.
	Text string `json:"text"`
	// Source identifies the origin: a document path, "web_search", or
	// "uploaded".
	Source string `json:"source"`
	// Query is the web query that produced this passage, if any.
	Query string `json:"query,omitempty"`
	// Title is the paper title, when known.
	Title string `json:"title,omitempty"`
	// Venue is the publication venue, when known.
	Venue string `json:"venue,omitempty"`
	// Year is the publication year, when known.
	Year string `json:"year,omitempty"`
}

// TurnsFromState recovers the conversation history from graph state. Within a
// run the value is a []Turn; after a checkpoint reload it is generic JSON, so
// both shapes are accepted.
func TurnsFromState(s graph.State) []Turn {
	switch v := s[KeyConversationHistory].(type) {
	case []Turn:
		return v
	case []any:
		return decodeVia[[]Turn](v)
	}
	return nil
}

// passagesFromState recovers the accumulated context, tolerating the generic
// shape produced by a checkpoint reload.
func passagesFromState(s graph.State) []Passage {
	switch v := s[KeyRetrievedContext].(type) {
	case []Passage:
		return v
	case []any:
		return decodeVia[[]Passage](v)
	}
	return nil
}

// decodeVia converts a generic JSON-shaped value into T by re-marshalling.
func decodeVia[T any](v any) T {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero
	}
	return out
}
