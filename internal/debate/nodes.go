package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/logging"
)

// defaultMaxRounds bounds the debate when the caller does not set a budget.
const defaultMaxRounds = 8

// maxRoundsCeiling is the hard upper bound on the round budget.
const maxRoundsCeiling = 20

// builderTemperature and criticTemperature are fixed per role: the builder
// benefits from variety when refining, the critic reviews more evenly.
const (
	builderTemperature = float32(0.7)
	criticTemperature  = float32(0.5)
)

// approvalThreshold is the maximum critique length that can count as an
// approval. A long critique that merely mentions "pass" is still a critique.
const approvalThreshold = 50

// builderSystemPrompt frames the proposer. The goal is injected once and
// declared frozen so refinement cannot drift into a different problem.
const builderSystemPrompt = `You are the Builder. Your goal is to design the strongest possible
research or technical solution.

Core objective (frozen, never change it):
"%s"

Rules:
1. On the first turn, propose a comprehensive plan.
2. When you receive criticism, refine your solution to address every flaw.
3. Do not change the core objective.
4. Be highly technical, precise, and logical.
5. Answer in the language of the objective.`

// criticSystemPrompt frames the reviewer, including the exact approval token
// the loop terminates on.
const criticSystemPrompt = `You are the Critic. Your job is to stress-test the Builder's proposal.

Rules:
1. Identify fatal logic gaps, feasibility issues, or security risks.
2. Be harsh but fair.
3. Termination condition: if the proposal is flawless and meets all
   constraints effectively, output EXACTLY the word: "PASS".
4. Otherwise, list 1-3 specific criticisms.
5. Answer in the language of the proposal.`

// criticUserPrompt carries the proposal under review.
const criticUserPrompt = `Here is the Builder's latest proposal (Round %d):

%s

Evaluate it.`

// builderFeedbackPrompt wraps a critique when it is fed back to the builder.
const builderFeedbackPrompt = `Critic's Feedback: %s

Please refine the solution.`

// Nodes bundles the two debating models. The zero value is not usable;
// construct with NewNodes.
type Nodes struct {
	builder   model.BaseChatModel
	critic    model.BaseChatModel
	maxRounds int
}

// NewNodes constructs the debate node set. maxRounds <= 0 selects the
// default budget; the ceiling is enforced either way.
func NewNodes(builder, critic model.BaseChatModel, maxRounds int) *Nodes {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	if maxRounds > maxRoundsCeiling {
		maxRounds = maxRoundsCeiling
	}
	return &Nodes{builder: builder, critic: critic, maxRounds: maxRounds}
}

// Builder proposes a solution, or refines the previous one when critiques
// exist in the transcript. It sees the full exchange: its own proposals as
// assistant turns and every critique wrapped as feedback.
func (n *Nodes) Builder(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	round := s.Int(KeyRound) + 1

	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(builderSystemPrompt, s.String(KeyGoal))),
	}
	for _, e := range TranscriptFromState(s) {
		switch e.Role {
		case RoleBuilder:
			messages = append(messages, schema.AssistantMessage(e.Content, nil))
		case RoleCritic:
			messages = append(messages, schema.UserMessage(fmt.Sprintf(builderFeedbackPrompt, e.Content)))
		}
	}

	log.Info("debate: builder turn", slog.Int("round", round))
	resp, err := n.builder.Generate(ctx, messages, model.WithTemperature(builderTemperature))
	if err != nil {
		return nil, fmt.Errorf("debate: builder round %d: %w", round, err)
	}

	return graph.State{
		KeyRound:    round,
		KeyProposal: resp.Content,
		KeyTranscript: []Entry{
			{Role: RoleBuilder, Round: round, Content: resp.Content},
		},
	}, nil
}

// Critic reviews the latest proposal in isolation: it sees only the current
// round's text, which keeps the review focused on the proposal at hand
// rather than the argument's history.
func (n *Nodes) Critic(ctx context.Context, s graph.State) (graph.State, error) {
	log := logging.FromContext(ctx)
	round := s.Int(KeyRound)

	messages := []*schema.Message{
		schema.SystemMessage(criticSystemPrompt),
		schema.UserMessage(fmt.Sprintf(criticUserPrompt, round, s.String(KeyProposal))),
	}

	log.Info("debate: critic turn", slog.Int("round", round))
	resp, err := n.critic.Generate(ctx, messages, model.WithTemperature(criticTemperature))
	if err != nil {
		return nil, fmt.Errorf("debate: critic round %d: %w", round, err)
	}

	converged := isApproval(resp.Content)
	if converged {
		log.Info("debate: critic approved the proposal", slog.Int("round", round))
	}

	return graph.State{
		KeyCritique:  resp.Content,
		KeyConverged: converged,
		KeyTranscript: []Entry{
			{Role: RoleCritic, Round: round, Content: resp.Content},
		},
	}, nil
}

// isApproval reports whether a critique is the approval token. Only a short
// response counts: a substantive critique mentioning "pass" in passing must
// not end the debate.
func isApproval(critique string) bool {
	if len(critique) >= approvalThreshold {
		return false
	}
	return strings.Contains(strings.ToLower(critique), "pass")
}
