package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"Q", 1},    // < 4 chars still costs a token
		{"MQA?", 1}, // exactly 4 chars
		{"What is KV-cache compression?", 7}, // 29 chars
		{strings.Repeat("attention ", 40), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		// 4 overhead + Estimate("user")=1 + Estimate(24 chars)=6 = 11
		schema.UserMessage("what did the paper find?"),
		// 4 overhead + Estimate("assistant")=2 + Estimate(24 chars)=6 = 12
		schema.AssistantMessage("It reports a 2x speedup.", nil),
	}
	got := EstimateMessages(msgs)
	if got != 23 {
		t.Errorf("EstimateMessages = %d, want 23", got)
	}
}

func Test_TrimHistory_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{
		schema.SystemMessage("Answer from the retrieved papers only."),
	}
	history := []*schema.Message{
		schema.UserMessage("summarise the attention papers"),
		schema.AssistantMessage("The library holds three [1][2][3].", nil),
	}
	got := TrimHistory(fixed, history, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 history messages, got %d", len(got))
	}
}

func Test_TrimHistory_DropsOldest(t *testing.T) {
	t.Parallel()
	history := []*schema.Message{
		schema.UserMessage("MQA?"),
		schema.UserMessage("GQA?"),
	}
	// Each turn costs 4 overhead + Estimate("user")=1 + Estimate(content)=1,
	// so 6 tokens apiece. A budget of 7 fits exactly one turn, and the older
	// question must be the one to go.
	fixed := []*schema.Message{}
	got := TrimHistory(fixed, history, 7)
	if len(got) != 1 {
		t.Errorf("want 1 history message after trim, got %d", len(got))
	}
	if got[0].Content != "GQA?" {
		t.Errorf("want newest question retained, got %q", got[0].Content)
	}
}

func Test_TrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{
		schema.SystemMessage("Answer from the retrieved papers only."),
	}
	got := TrimHistory(fixed, nil, DefaultMaxContextTokens)
	if len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimHistory_AllDroppedWhenFixedExceedsBudget(t *testing.T) {
	t.Parallel()
	// A retrieval context around 7000 tokens exceeds the budget on its own,
	// so every prior turn must be dropped.
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("the paper proposes sparse attention over long contexts ", 500)),
	}
	history := []*schema.Message{
		schema.UserMessage("and the ablations?"),
		schema.UserMessage("which baseline wins?"),
	}
	got := TrimHistory(fixed, history, 6000)
	if len(got) != 0 {
		t.Errorf("want 0 history messages, got %d", len(got))
	}
}
