// Package debate implements the adversarial refinement pipeline: a builder
// model proposes a solution to a research goal, a critic model stress-tests
// it, and the loop repeats until the critic approves or the round budget
// runs out. The goal itself is frozen; only the proposal evolves.
package debate

import (
	"encoding/json"

	"github.com/paperflow/paperflow-go/internal/graph"
)

// State field keys for the debate graph.
const (
	// KeyGoal is the input: the frozen research goal under debate.
	KeyGoal = "goal"
	// KeyRound is the 1-based round counter, advanced by the builder.
	KeyRound = "round"
	// KeyProposal holds the builder's latest proposal.
	KeyProposal = "proposal"
	// KeyCritique holds the critic's latest review.
	KeyCritique = "critique"
	// KeyConverged is set true when the critic approves the proposal.
	KeyConverged = "converged"
	// KeyTranscript accumulates the full exchange. It is reducer-merged:
	// nodes append their own entries, they never rewrite the record.
	KeyTranscript = "transcript"
)

// Debate roles recorded in transcript entries.
const (
	RoleBuilder = "builder"
	RoleCritic  = "critic"
)

// Entry is one transcript record: who spoke, in which round, and what.
type Entry struct {
	// Role is RoleBuilder or RoleCritic.
	Role string `json:"role"`
	// Round is the 1-based round the entry belongs to.
	Round int `json:"round"`
	// Content is the proposal or critique text.
	Content string `json:"content"`
}

// TranscriptFromState recovers the exchange from graph state. Within a run
// the value is an []Entry; after a checkpoint reload it is generic JSON, so
// both shapes are accepted.
func TranscriptFromState(s graph.State) []Entry {
	switch v := s[KeyTranscript].(type) {
	case []Entry:
		return v
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []Entry
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	}
	return nil
}
