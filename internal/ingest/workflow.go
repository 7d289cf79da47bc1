package ingest

import (
	"github.com/paperflow/paperflow-go/internal/graph"
)

// Node names in the ingestion graph.
const (
	NodeExtractMetadata = "extract_metadata"
	NodeWebFixer        = "web_fixer"
	NodeIngest          = "ingest"
)

// Router decisions.
const (
	decisionIngest   = "ingest"
	decisionWebFixer = "web_fixer"
	decisionFail     = "fail"
)

// DecideNextStep routes after extraction and after each repair attempt:
//   - a failed extraction ends the run — there is nothing to store or repair
//   - complete metadata goes straight to ingestion
//   - exhausted retries store the paper best-effort with what it has
//   - otherwise another repair attempt runs
func DecideNextStep(s graph.State) string {
	if s.String(KeyStatus) == StatusFailed {
		return decisionFail
	}
	if len(s.Strings(KeyMissingFields)) == 0 {
		return decisionIngest
	}
	if s.Int(KeyRetryCount) >= maxRetries {
		return decisionIngest
	}
	return decisionWebFixer
}

// BuildGraph wires the ingestion pipeline:
//
//	extract_metadata ──┬── fail ──────────────▶ END
//	                   ├── ingest ──▶ ingest ──▶ END
//	                   └── web_fixer ──▶ web_fixer ──┐
//	                                       ▲─────────┘ (bounded loop)
//
// The web_fixer loop re-consults the same router, so a repaired record or an
// exhausted retry budget both drain into ingestion.
func BuildGraph(n *Nodes, opts ...graph.Option) (*graph.CompiledGraph, error) {
	routes := map[string]string{
		decisionWebFixer: NodeWebFixer,
		decisionIngest:   NodeIngest,
		decisionFail:     graph.END,
	}

	g := graph.New().
		AddNode(NodeExtractMetadata, n.ExtractMetadata).
		AddNode(NodeWebFixer, n.WebFixer).
		AddNode(NodeIngest, n.Ingest).
		SetEntryPoint(NodeExtractMetadata).
		AddConditionalEdge(NodeExtractMetadata, DecideNextStep, routes).
		AddConditionalEdge(NodeWebFixer, DecideNextStep, routes).
		AddEdge(NodeIngest, graph.END)

	return g.Compile(opts...)
}
