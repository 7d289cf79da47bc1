package research

import (
	"github.com/paperflow/paperflow-go/internal/graph"
)

// Node names in the research graph.
const (
	NodeRetrieve  = "retrieve"
	NodeRouter    = "router"
	NodeWebSearch = "web_search"
	NodeWriter    = "writer"
)

// DecideToWebSearch translates the router node's verdict into the next node:
// only an explicit web_search decision goes to the web, everything else
// proceeds straight to writing.
func DecideToWebSearch(s graph.State) string {
	if s.String(KeyRoutingDecision) == DecisionWebSearch {
		return DecisionWebSearch
	}
	return NodeWriter
}

// BuildGraph wires the research pipeline:
//
//	retrieve ──▶ router ──┬── web_search ──▶ writer ──▶ END
//	                      └──────────────────▲
//
// Local retrieval always runs first: even when the router sends the run to
// the web, the library passages remain in the context as supporting material.
// The conversation history field is reducer-merged so the writer's appended
// turns accumulate across a thread instead of replacing it.
func BuildGraph(n *Nodes, opts ...graph.Option) (*graph.CompiledGraph, error) {
	g := graph.New().
		AddNode(NodeRetrieve, n.Retrieve).
		AddNode(NodeRouter, n.Router).
		AddNode(NodeWebSearch, n.WebSearch).
		AddNode(NodeWriter, n.Writer).
		SetEntryPoint(NodeRetrieve).
		AddEdge(NodeRetrieve, NodeRouter).
		AddConditionalEdge(NodeRouter, DecideToWebSearch, map[string]string{
			DecisionWebSearch: NodeWebSearch,
			NodeWriter:        NodeWriter,
		}).
		AddEdge(NodeWebSearch, NodeWriter).
		AddEdge(NodeWriter, graph.END).
		RegisterReducer(KeyConversationHistory, graph.AppendReducer)

	return g.Compile(opts...)
}
