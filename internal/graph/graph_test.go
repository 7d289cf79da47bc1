package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// passthrough returns a node that writes marker fields into state.
func passthrough(update State) NodeFunc {
	return func(_ context.Context, _ State) (State, error) {
		return update, nil
	}
}

func Test_Compile_NoEntryPoint(t *testing.T) {
	t.Parallel()
	g := New().AddNode("a", passthrough(nil)).AddEdge("a", END)
	_, err := g.Compile()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func Test_Compile_UndeclaredEntryPoint(t *testing.T) {
	t.Parallel()
	g := New().AddNode("a", passthrough(nil)).AddEdge("a", END).SetEntryPoint("ghost")
	if _, err := g.Compile(); err == nil {
		t.Fatal("want error for undeclared entry point")
	}
}

func Test_Compile_EdgeToUndeclaredNode(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("a", passthrough(nil)).
		SetEntryPoint("a").
		AddEdge("a", "ghost")
	if _, err := g.Compile(); err == nil {
		t.Fatal("want error for edge to undeclared node")
	}
}

func Test_Compile_ConditionalMappingToUndeclaredNode(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("a", passthrough(nil)).
		SetEntryPoint("a").
		AddConditionalEdge("a", func(State) string { return "x" }, map[string]string{"x": "ghost"})
	if _, err := g.Compile(); err == nil {
		t.Fatal("want error for conditional mapping to undeclared node")
	}
}

func Test_Compile_NodeWithoutOutgoingEdge(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("a", passthrough(nil)).
		AddNode("stranded", passthrough(nil)).
		SetEntryPoint("a").
		AddEdge("a", END)
	if _, err := g.Compile(); err == nil {
		t.Fatal("want error for node with no outgoing edge")
	}
}

func Test_Compile_DualEdges(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("a", passthrough(nil)).
		SetEntryPoint("a").
		AddEdge("a", END).
		AddConditionalEdge("a", func(State) string { return "x" }, map[string]string{"x": END})
	if _, err := g.Compile(); err == nil {
		t.Fatal("want error for node with both edge kinds")
	}
}

func Test_Invoke_LinearRun(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("first", passthrough(State{"a": 1})).
		AddNode("second", passthrough(State{"b": 2})).
		SetEntryPoint("first").
		AddEdge("first", "second").
		AddEdge("second", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), State{"seed": "x"}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.Int("a") != 1 || final.Int("b") != 2 {
		t.Errorf("missing node updates in final state: %v", final)
	}
	if final.String("seed") != "x" {
		t.Errorf("seed field lost: %v", final)
	}
}

func Test_Stream_EmitsOneEventPerNode(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("first", passthrough(State{"a": 1})).
		AddNode("second", passthrough(State{"b": 2})).
		SetEntryPoint("first").
		AddEdge("first", "second").
		AddEdge("second", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	var seen []string
	for ev, err := range cg.Stream(context.Background(), State{}, "run-1") {
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, ev.Node)
	}
	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Errorf("want [first second], got %v", seen)
	}
}

func Test_Stream_ConditionalRouting(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("decide", passthrough(State{"flag": true})).
		AddNode("yes", passthrough(State{"path": "yes"})).
		AddNode("no", passthrough(State{"path": "no"})).
		SetEntryPoint("decide").
		AddConditionalEdge("decide", func(s State) string {
			if s.Bool("flag") {
				return "yes"
			}
			return "no"
		}, map[string]string{"yes": "yes", "no": "no"}).
		AddEdge("yes", END).
		AddEdge("no", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), State{}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.String("path") != "yes" {
		t.Errorf("router took the wrong branch: %v", final)
	}
}

func Test_Stream_RouterSeesMergedState(t *testing.T) {
	t.Parallel()
	// The router must observe the node's update, not the pre-node state.
	routed := ""
	g := New().
		AddNode("n", passthrough(State{"decision": "b"})).
		AddNode("b", passthrough(nil)).
		SetEntryPoint("n").
		AddConditionalEdge("n", func(s State) string {
			routed = s.String("decision")
			return routed
		}, map[string]string{"b": "b"}).
		AddEdge("b", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cg.Invoke(context.Background(), State{}, "run-1"); err != nil {
		t.Fatal(err)
	}
	if routed != "b" {
		t.Errorf("router saw %q, want the merged update", routed)
	}
}

func Test_Stream_StepCapExceeded(t *testing.T) {
	t.Parallel()
	// A self-loop that never terminates must be cut off by the cap.
	g := New().
		AddNode("loop", passthrough(State{})).
		SetEntryPoint("loop").
		AddConditionalEdge("loop", func(State) string { return "again" },
			map[string]string{"again": "loop"})
	cg, err := g.Compile(WithMaxSteps(7))
	if err != nil {
		t.Fatal(err)
	}

	steps := 0
	var finalErr error
	for _, err := range cg.Stream(context.Background(), State{}, "run-1") {
		if err != nil {
			finalErr = err
			break
		}
		steps++
	}
	if steps != 7 {
		t.Errorf("want 7 completed steps before the cap, got %d", steps)
	}
	var execErr *ExecutionError
	if !errors.As(finalErr, &execErr) {
		t.Fatalf("want ExecutionError, got %v", finalErr)
	}
}

func Test_Stream_UnknownRouterDecision(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("n", passthrough(nil)).
		SetEntryPoint("n").
		AddConditionalEdge("n", func(State) string { return "surprise" },
			map[string]string{"known": END})
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	var finalErr error
	for _, err := range cg.Stream(context.Background(), State{}, "run-1") {
		if err != nil {
			finalErr = err
		}
	}
	var execErr *ExecutionError
	if !errors.As(finalErr, &execErr) {
		t.Fatalf("want ExecutionError for unmapped decision, got %v", finalErr)
	}
}

func Test_Stream_NodeError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	g := New().
		AddNode("n", func(context.Context, State) (State, error) { return nil, boom }).
		SetEntryPoint("n").
		AddEdge("n", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	_, err = cg.Invoke(context.Background(), State{}, "run-1")
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped node error, got %v", err)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("want ExecutionError, got %T", err)
	}
	if execErr.Node != "n" {
		t.Errorf("error should name the failing node, got %q", execErr.Node)
	}
}

func Test_Stream_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	g := New().
		AddNode("loop", func(context.Context, State) (State, error) {
			cancel()
			return State{}, nil
		}).
		SetEntryPoint("loop").
		AddConditionalEdge("loop", func(State) string { return "again" },
			map[string]string{"again": "loop"})
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	var finalErr error
	for _, err := range cg.Stream(ctx, State{}, "run-1") {
		if err != nil {
			finalErr = err
		}
	}
	var execErr *ExecutionError
	if !errors.As(finalErr, &execErr) {
		t.Fatalf("want ExecutionError after cancellation, got %v", finalErr)
	}
	if !errors.Is(finalErr, context.Canceled) {
		t.Errorf("want context.Canceled in chain, got %v", finalErr)
	}
}

func Test_Merge_AbsentKeysUntouched(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("n", passthrough(State{"touched": "new"})).
		SetEntryPoint("n").
		AddEdge("n", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), State{"touched": "old", "untouched": "keep"}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.String("touched") != "new" {
		t.Errorf("plain field should replace: %v", final)
	}
	if final.String("untouched") != "keep" {
		t.Errorf("absent key must be untouched: %v", final)
	}
}

func Test_Merge_ReducerAppends(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("first", passthrough(State{"log": []string{"a"}})).
		AddNode("second", passthrough(State{"log": []string{"b"}})).
		SetEntryPoint("first").
		AddEdge("first", "second").
		AddEdge("second", END).
		RegisterReducer("log", AppendReducer)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), State{}, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	log := final.Strings("log")
	if len(log) != 2 || log[0] != "a" || log[1] != "b" {
		t.Errorf("reducer field should accumulate, got %v", log)
	}
}

// recordingSaver captures checkpoints in memory for assertions.
type recordingSaver struct {
	mu  sync.Mutex
	cks []*Checkpoint
	err error
}

func (r *recordingSaver) Save(_ context.Context, ck *Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cks = append(r.cks, ck)
	return nil
}

func Test_Stream_CheckpointsEveryStep(t *testing.T) {
	t.Parallel()
	saver := &recordingSaver{}
	g := New().
		AddNode("first", passthrough(State{"a": 1})).
		AddNode("second", passthrough(State{"b": 2})).
		SetEntryPoint("first").
		AddEdge("first", "second").
		AddEdge("second", END)
	cg, err := g.Compile(WithCheckpointer(saver))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cg.Invoke(context.Background(), State{}, "run-42"); err != nil {
		t.Fatal(err)
	}
	if len(saver.cks) != 2 {
		t.Fatalf("want 2 checkpoints, got %d", len(saver.cks))
	}
	last := saver.cks[1]
	if last.RunID != "run-42" || last.Node != "second" || last.Step != 2 {
		t.Errorf("unexpected final checkpoint: %+v", last)
	}
	if last.State.Int("a") != 1 || last.State.Int("b") != 2 {
		t.Errorf("checkpoint must hold the full merged state: %v", last.State)
	}
}

func Test_Stream_CheckpointFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	saver := &recordingSaver{err: fmt.Errorf("disk full")}
	g := New().
		AddNode("n", passthrough(State{"a": 1})).
		SetEntryPoint("n").
		AddEdge("n", END)
	cg, err := g.Compile(WithCheckpointer(saver))
	if err != nil {
		t.Fatal(err)
	}

	final, err := cg.Invoke(context.Background(), State{}, "run-1")
	if err != nil {
		t.Fatalf("checkpoint failure must not abort the run: %v", err)
	}
	if final.Int("a") != 1 {
		t.Errorf("run should complete normally: %v", final)
	}
}

func Test_Stream_InitialStateNotMutated(t *testing.T) {
	t.Parallel()
	g := New().
		AddNode("n", passthrough(State{"a": 1})).
		SetEntryPoint("n").
		AddEdge("n", END)
	cg, err := g.Compile()
	if err != nil {
		t.Fatal(err)
	}

	initial := State{"seed": "x"}
	if _, err := cg.Invoke(context.Background(), initial, "run-1"); err != nil {
		t.Fatal(err)
	}
	if len(initial) != 1 {
		t.Errorf("initial state must not be mutated: %v", initial)
	}
}
