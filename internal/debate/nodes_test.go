package debate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/paperflow/paperflow-go/internal/graph"
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

func Test_Builder_FirstTurn(t *testing.T) {
	t.Parallel()
	builder := &stubModel{responses: []string{"Initial plan."}}
	n := NewNodes(builder, nil, 8)

	update, err := n.Builder(context.Background(), graph.State{
		KeyGoal: "optimize SQL queries with reinforcement learning",
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.Int(KeyRound) != 1 {
		t.Errorf("first turn is round 1, got %d", update.Int(KeyRound))
	}
	if update.String(KeyProposal) != "Initial plan." {
		t.Errorf("proposal not stored: %v", update)
	}

	msgs := builder.calls[0]
	if len(msgs) != 1 || msgs[0].Role != schema.System {
		t.Fatalf("first turn sees only the system prompt, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "optimize SQL queries") {
		t.Errorf("goal missing from system prompt:\n%s", msgs[0].Content)
	}

	entries := TranscriptFromState(update)
	if len(entries) != 1 || entries[0].Role != RoleBuilder || entries[0].Round != 1 {
		t.Errorf("transcript entry malformed: %+v", entries)
	}
}

func Test_Builder_RefinementSeesFeedback(t *testing.T) {
	t.Parallel()
	builder := &stubModel{responses: []string{"Refined plan."}}
	n := NewNodes(builder, nil, 8)

	update, err := n.Builder(context.Background(), graph.State{
		KeyGoal:  "goal",
		KeyRound: 1,
		KeyTranscript: []Entry{
			{Role: RoleBuilder, Round: 1, Content: "Initial plan."},
			{Role: RoleCritic, Round: 1, Content: "The reward signal is underspecified."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.Int(KeyRound) != 2 {
		t.Errorf("round must advance, got %d", update.Int(KeyRound))
	}

	msgs := builder.calls[0]
	// system, own prior proposal, wrapped critique.
	if len(msgs) != 3 {
		t.Fatalf("want 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != schema.Assistant || msgs[1].Content != "Initial plan." {
		t.Errorf("prior proposal must appear as an assistant turn: %+v", msgs[1])
	}
	if msgs[2].Role != schema.User || !strings.Contains(msgs[2].Content, "The reward signal is underspecified.") {
		t.Errorf("critique must be fed back as a user turn: %+v", msgs[2])
	}
	if !strings.Contains(msgs[2].Content, "refine the solution") {
		t.Errorf("feedback wrapper missing: %q", msgs[2].Content)
	}
}

func Test_Critic_SeesOnlyLatestProposal(t *testing.T) {
	t.Parallel()
	critic := &stubModel{responses: []string{"1. No evaluation baseline."}}
	n := NewNodes(nil, critic, 8)

	update, err := n.Critic(context.Background(), graph.State{
		KeyRound:    2,
		KeyProposal: "Refined plan.",
		KeyTranscript: []Entry{
			{Role: RoleBuilder, Round: 1, Content: "Initial plan."},
			{Role: RoleCritic, Round: 1, Content: "Old critique."},
			{Role: RoleBuilder, Round: 2, Content: "Refined plan."},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if update.Bool(KeyConverged) {
		t.Error("a substantive critique is not an approval")
	}

	msgs := critic.calls[0]
	if len(msgs) != 2 {
		t.Fatalf("critic sees system + proposal only, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Refined plan.") || !strings.Contains(msgs[1].Content, "Round 2") {
		t.Errorf("proposal prompt malformed: %q", msgs[1].Content)
	}
	if strings.Contains(msgs[1].Content, "Old critique.") {
		t.Errorf("critic must not see the argument's history: %q", msgs[1].Content)
	}
}

func Test_IsApproval(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		critique string
		want     bool
	}{
		{"exact token", "PASS", true},
		{"lowercase", "pass", true},
		{"short with punctuation", "PASS.", true},
		{"substantive critique", "1. The plan passes no review: the baseline is missing entirely.", false},
		{"long mention of pass", strings.Repeat("This could pass with changes. ", 4), false},
		{"ordinary rejection", "1. No baseline. 2. No ablation.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isApproval(tc.critique); got != tc.want {
				t.Errorf("isApproval(%q) = %v, want %v", tc.critique, got, tc.want)
			}
		})
	}
}

func Test_DecideNextRound(t *testing.T) {
	t.Parallel()
	n := NewNodes(nil, nil, 3)
	cases := []struct {
		name  string
		state graph.State
		want  string
	}{
		{"approved", graph.State{KeyConverged: true, KeyRound: 1}, decisionDone},
		{"rounds left", graph.State{KeyConverged: false, KeyRound: 2}, decisionContinue},
		{"budget exhausted", graph.State{KeyConverged: false, KeyRound: 3}, decisionDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := n.DecideNextRound(tc.state); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func Test_NewNodes_RoundBudget(t *testing.T) {
	t.Parallel()
	if n := NewNodes(nil, nil, 0); n.maxRounds != defaultMaxRounds {
		t.Errorf("zero budget should take the default, got %d", n.maxRounds)
	}
	if n := NewNodes(nil, nil, 100); n.maxRounds != maxRoundsCeiling {
		t.Errorf("budget must respect the ceiling, got %d", n.maxRounds)
	}
}

func Test_DebateGraph_ConvergesOnApproval(t *testing.T) {
	t.Parallel()
	builder := &stubModel{responses: []string{"Initial plan.", "Refined plan."}}
	critic := &stubModel{responses: []string{"1. Missing baseline.", "PASS"}}
	cg, err := BuildGraph(NewNodes(builder, critic, 8))
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), graph.State{KeyGoal: "goal"}, "debate-1")
	if err != nil {
		t.Fatal(err)
	}
	if !final.Bool(KeyConverged) {
		t.Error("want convergence after approval")
	}
	if final.Int(KeyRound) != 2 {
		t.Errorf("want 2 rounds, got %d", final.Int(KeyRound))
	}
	entries := TranscriptFromState(final)
	if len(entries) != 4 {
		t.Fatalf("two rounds own four transcript entries, got %d", len(entries))
	}
	if entries[3].Role != RoleCritic || entries[3].Content != "PASS" {
		t.Errorf("final entry should be the approval: %+v", entries[3])
	}
}

func Test_DebateGraph_StopsAtRoundBudget(t *testing.T) {
	t.Parallel()
	builder := &stubModel{responses: []string{"Plan."}}
	critic := &stubModel{responses: []string{"1. Still not good enough."}}
	cg, err := BuildGraph(NewNodes(builder, critic, 3))
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), graph.State{KeyGoal: "goal"}, "debate-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.Bool(KeyConverged) {
		t.Error("exhausted budget is not convergence")
	}
	if final.Int(KeyRound) != 3 {
		t.Errorf("want exactly 3 rounds, got %d", final.Int(KeyRound))
	}
	if len(builder.calls) != 3 || len(critic.calls) != 3 {
		t.Errorf("want 3 turns each, got builder=%d critic=%d", len(builder.calls), len(critic.calls))
	}
}

func Test_DebateGraph_BuilderFailureAbortsRun(t *testing.T) {
	t.Parallel()
	builder := &stubModel{err: fmt.Errorf("api down")}
	critic := &stubModel{responses: []string{"PASS"}}
	cg, err := BuildGraph(NewNodes(builder, critic, 8))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cg.Invoke(context.Background(), graph.State{KeyGoal: "goal"}, "debate-1"); err == nil {
		t.Fatal("a dead builder model must abort the debate")
	}
}
