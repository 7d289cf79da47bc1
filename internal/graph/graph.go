// Package graph implements the workflow orchestration engine at the heart of
// paperflow: a directed graph of stateful nodes with conditional routing,
// bounded cycles, and accumulating state. Two pipelines (paper ingestion and
// research Q&A) are each compiled from this engine over their own state
// schema and node set.
//
// A node is a function State -> partial State performing one unit of work; a
// router is a pure function State -> decision selecting the next node. The
// engine sequences nodes per the declared edges, merges each partial result
// into the run's state (field-replace, except reducer-marked fields which
// append), persists a checkpoint after every node, and yields one event per
// node completion.
//
// Termination is the responsibility of node/router logic (a bounded retry
// counter driving a router toward END); the engine's step cap is a safety
// net against contract violations, not the primary termination mechanism.
package graph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/paperflow/paperflow-go/internal/logging"
)

// END is the terminal marker. Routing to END completes the run.
const END = "__end__"

// defaultMaxSteps bounds the number of node executions per run. Well-formed
// graphs terminate long before this; hitting the cap is always a bug.
const defaultMaxSteps = 50

// NodeFunc performs one unit of work. It receives the full merged state and
// returns only the fields it changed. Transient failures (model, search,
// storage) must be recorded in the returned state, not returned as an error;
// a non-nil error aborts the run with an ExecutionError.
type NodeFunc func(ctx context.Context, s State) (State, error)

// RouterFunc inspects accumulated state and returns a decision string, which
// the conditional edge's mapping translates into the next node name.
type RouterFunc func(s State) string

// Checkpoint is a snapshot of a run persisted after each node completion.
type Checkpoint struct {
	// RunID is the opaque identifier the caller supplied to Stream.
	RunID string
	// Node is the name of the last completed node.
	Node string
	// Step is the 1-based count of completed node executions.
	Step int
	// State is the full merged state after the node's partial was applied.
	State State
	// UpdatedAt is when the checkpoint was written.
	UpdatedAt time.Time
}

// Saver persists checkpoints keyed by run identifier. Implementations must
// serialize concurrent writes per run identifier; concurrent writers to the
// same identifier are a caller error.
type Saver interface {
	Save(ctx context.Context, ck *Checkpoint) error
}

// Event is emitted once per node completion: the node's name and the partial
// result it returned (not the full merged state).
type Event struct {
	// Node is the name of the node that just completed.
	Node string
	// Update is the partial state the node returned.
	Update State
}

// conditionalEdge pairs a router with its declared decision → node mapping.
type conditionalEdge struct {
	router  RouterFunc
	mapping map[string]string
}

// Graph is a mutable graph definition. Declare nodes and edges, then Compile.
type Graph struct {
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]*conditionalEdge
	entry    string
	reducers map[string]Reducer
}

// New returns an empty graph definition.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]NodeFunc),
		edges:    make(map[string]string),
		branches: make(map[string]*conditionalEdge),
		reducers: make(map[string]Reducer),
	}
}

// AddNode declares a named node. Redeclaring a name overwrites the previous
// function; Compile rejects graphs whose edges reference undeclared names.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	return g
}

// SetEntryPoint declares the node every run starts at.
func (g *Graph) SetEntryPoint(name string) *Graph {
	g.entry = name
	return g
}

// AddEdge declares an unconditional edge: after from completes, to runs next.
// Use END as the destination to terminate the run.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// AddConditionalEdge declares a routed edge: after from completes, router is
// invoked on the merged state and its decision is looked up in mapping to
// find the next node. Mapping values may include END.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc, mapping map[string]string) *Graph {
	g.branches[from] = &conditionalEdge{router: router, mapping: mapping}
	return g
}

// RegisterReducer marks a state field as reducer-merged: partial updates to
// the field are combined with the existing value by fn (e.g. AppendReducer)
// instead of replacing it.
func (g *Graph) RegisterReducer(field string, fn Reducer) *Graph {
	g.reducers[field] = fn
	return g
}

// Option configures a compiled graph.
type Option func(*CompiledGraph)

// WithCheckpointer persists a checkpoint under the run identifier after every
// node completion. Without it, runs are not resumable or inspectable.
func WithCheckpointer(s Saver) Option {
	return func(cg *CompiledGraph) { cg.saver = s }
}

// WithMaxSteps overrides the engine step cap (default 50).
func WithMaxSteps(n int) Option {
	return func(cg *CompiledGraph) {
		if n > 0 {
			cg.maxSteps = n
		}
	}
}

// WithMetrics attaches Prometheus instrumentation under the given graph name.
func WithMetrics(m *Metrics, graphName string) Option {
	return func(cg *CompiledGraph) {
		cg.metrics = m
		cg.name = graphName
	}
}

// CompiledGraph is an immutable, validated graph ready to execute runs.
// It is safe for concurrent use: each Stream call owns an independent state.
type CompiledGraph struct {
	nodes    map[string]NodeFunc
	edges    map[string]string
	branches map[string]*conditionalEdge
	entry    string
	reducers map[string]Reducer
	maxSteps int
	saver    Saver
	metrics  *Metrics
	name     string
}

// Compile validates the graph definition and returns an executable form.
// All wiring errors are reported here, never at run time.
func (g *Graph) Compile(opts ...Option) (*CompiledGraph, error) {
	if g.entry == "" {
		return nil, &ConfigError{Reason: "no entry point set"}
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("entry point %q is not a declared node", g.entry)}
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("edge from undeclared node %q", from)}
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("edge %q -> %q targets an undeclared node", from, to)}
			}
		}
		if _, dup := g.branches[from]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("node %q has both an unconditional and a conditional edge", from)}
		}
	}
	for from, br := range g.branches {
		if _, ok := g.nodes[from]; !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("conditional edge from undeclared node %q", from)}
		}
		if br.router == nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("conditional edge from %q has a nil router", from)}
		}
		if len(br.mapping) == 0 {
			return nil, &ConfigError{Reason: fmt.Sprintf("conditional edge from %q has an empty mapping", from)}
		}
		for decision, dest := range br.mapping {
			if dest == END {
				continue
			}
			if _, ok := g.nodes[dest]; !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("conditional edge from %q maps decision %q to undeclared node %q", from, decision, dest)}
			}
		}
	}
	// Every node needs a way out — a node with no outgoing edge would strand
	// the run without reaching END.
	for name := range g.nodes {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		if !hasEdge && !hasBranch {
			return nil, &ConfigError{Reason: fmt.Sprintf("node %q has no outgoing edge", name)}
		}
	}

	cg := &CompiledGraph{
		nodes:    g.nodes,
		edges:    g.edges,
		branches: g.branches,
		entry:    g.entry,
		reducers: g.reducers,
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(cg)
	}
	return cg, nil
}

// Stream executes a run and yields one (event, nil) pair per node completion,
// lazily: the next node does not execute until the consumer advances the
// iterator. The sequence is finite and non-restartable. A fatal engine error
// (step cap, unknown router decision, node contract violation) is yielded as
// the final (zero event, error) pair.
func (cg *CompiledGraph) Stream(ctx context.Context, initial State, runID string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		log := logging.FromContext(ctx)
		state := initial.Clone()
		current := cg.entry

		for step := 1; ; step++ {
			if step > cg.maxSteps {
				cg.observeRun("cap_exceeded")
				yield(Event{}, &ExecutionError{
					RunID: runID, Node: current, Step: step,
					Reason: fmt.Sprintf("step cap %d exceeded", cg.maxSteps),
				})
				return
			}
			if err := ctx.Err(); err != nil {
				cg.observeRun("canceled")
				yield(Event{}, &ExecutionError{RunID: runID, Node: current, Step: step, Reason: "context done", Err: err})
				return
			}

			started := time.Now()
			update, err := cg.nodes[current](ctx, state)
			cg.observeNode(current, time.Since(started))
			if err != nil {
				cg.observeRun("error")
				yield(Event{}, &ExecutionError{RunID: runID, Node: current, Step: step, Reason: "node returned an error", Err: err})
				return
			}

			cg.merge(state, update)

			if cg.saver != nil {
				ck := &Checkpoint{RunID: runID, Node: current, Step: step, State: state.Clone(), UpdatedAt: time.Now()}
				if err := cg.saver.Save(ctx, ck); err != nil {
					// A checkpoint write failure must not lose the run's
					// progress; the run continues without resumability.
					log.Warn("graph: checkpoint write failed",
						slog.String("run_id", runID),
						slog.String("node", current),
						slog.Any("error", err),
					)
				}
			}

			if !yield(Event{Node: current, Update: update}, nil) {
				cg.observeRun("abandoned")
				return
			}

			next, err := cg.route(current, state)
			if err != nil {
				cg.observeRun("error")
				yield(Event{}, &ExecutionError{RunID: runID, Node: current, Step: step, Reason: err.Error()})
				return
			}
			if next == END {
				cg.observeRun("ok")
				return
			}
			current = next
		}
	}
}

// Invoke drains the stream and returns the final merged state. Callers that
// do not need per-node progress use this.
func (cg *CompiledGraph) Invoke(ctx context.Context, initial State, runID string) (State, error) {
	state := initial.Clone()
	for ev, err := range cg.Stream(ctx, initial, runID) {
		if err != nil {
			return state, err
		}
		cg.merge(state, ev.Update)
	}
	return state, nil
}

// merge applies a node's partial result to the authoritative state:
// field-replace for plain fields, the registered reducer for marked fields.
// Keys absent from the update are left untouched.
func (cg *CompiledGraph) merge(state, update State) {
	for k, v := range update {
		if r, ok := cg.reducers[k]; ok {
			state[k] = r(state[k], v)
			continue
		}
		state[k] = v
	}
}

// route determines the node after current, consulting the unconditional edge
// or invoking the conditional edge's router on the merged state.
func (cg *CompiledGraph) route(current string, state State) (string, error) {
	if next, ok := cg.edges[current]; ok {
		return next, nil
	}
	br := cg.branches[current]
	decision := br.router(state)
	dest, ok := br.mapping[decision]
	if !ok {
		return "", fmt.Errorf("router for %q returned decision %q with no mapping entry", current, decision)
	}
	return dest, nil
}

// observeNode records a node execution if metrics are attached.
func (cg *CompiledGraph) observeNode(node string, d time.Duration) {
	if cg.metrics == nil {
		return
	}
	cg.metrics.nodeSteps.WithLabelValues(cg.name, node).Inc()
	cg.metrics.nodeDuration.WithLabelValues(cg.name, node).Observe(d.Seconds())
}

// observeRun records a run completion outcome if metrics are attached.
func (cg *CompiledGraph) observeRun(outcome string) {
	if cg.metrics == nil {
		return
	}
	cg.metrics.runsTotal.WithLabelValues(cg.name, outcome).Inc()
}
