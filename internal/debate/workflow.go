package debate

import (
	"github.com/paperflow/paperflow-go/internal/graph"
)

// Node names in the debate graph.
const (
	NodeBuilder = "builder"
	NodeCritic  = "critic"
)

// Router decisions.
const (
	decisionContinue = "continue"
	decisionDone     = "done"
)

// DecideNextRound routes after each critique: an approval or an exhausted
// round budget ends the debate, anything else sends the critique back to the
// builder for another refinement pass.
func (n *Nodes) DecideNextRound(s graph.State) string {
	if s.Bool(KeyConverged) {
		return decisionDone
	}
	if s.Int(KeyRound) >= n.maxRounds {
		return decisionDone
	}
	return decisionContinue
}

// BuildGraph wires the debate loop:
//
//	builder ──▶ critic ──┬── done ──▶ END
//	   ▲─────────────────┘ (bounded loop)
//
// The transcript field is reducer-merged so each turn's entry accumulates
// instead of replacing the exchange. The round budget makes the loop finite;
// the engine step cap stays a backstop, never the terminator.
func BuildGraph(n *Nodes, opts ...graph.Option) (*graph.CompiledGraph, error) {
	g := graph.New().
		AddNode(NodeBuilder, n.Builder).
		AddNode(NodeCritic, n.Critic).
		SetEntryPoint(NodeBuilder).
		AddEdge(NodeBuilder, NodeCritic).
		AddConditionalEdge(NodeCritic, n.DecideNextRound, map[string]string{
			decisionContinue: NodeBuilder,
			decisionDone:     graph.END,
		}).
		RegisterReducer(KeyTranscript, graph.AppendReducer)

	return g.Compile(opts...)
}
