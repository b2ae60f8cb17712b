package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// End is the terminal routing target. Edges and router mappings may point
// to it; it is never a step name.
const End = "__end__"

// Graph construction and validation errors.
var (
	// ErrMalformedGraph indicates the graph failed compile-time validation.
	ErrMalformedGraph = errors.New("malformed graph")

	// ErrRouteOutsideDomain indicates a router returned a value it never
	// declared. This is a routing-function bug, not a state condition.
	ErrRouteOutsideDomain = errors.New("route outside declared domain")

	// ErrStepLimit indicates the executor's safety valve tripped. Business
	// loops terminate through state counters; hitting this limit means the
	// graph cycles without one.
	ErrStepLimit = errors.New("step limit exceeded")
)

// NodeFunc executes one step. It receives the current state and returns a
// partial update; it must not retain or mutate the state it was given.
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// MergeFunc folds a partial update into a state, producing the next state.
// It must be pure: merging the zero update returns the state unchanged.
type MergeFunc[S, U any] func(state S, update U) S

// Router picks the next step after a node runs. Route is evaluated against
// the post-merge state and must return one of the values in Domain.
type Router[S any] struct {
	Name   string
	Domain []string
	Route  func(state S) string
}

type routerEdge[S any] struct {
	router Router[S]
	edges  map[string]string
}

// Graph is a workflow graph under construction. Builder methods record
// problems instead of failing; Compile reports all of them at once.
type Graph[S, U any] struct {
	merge   MergeFunc[S, U]
	nodes   map[string]NodeFunc[S, U]
	order   []string
	edges   map[string]string
	routers map[string]routerEdge[S]
	entry   string
	probs   []string
}

// NewGraph creates an empty graph whose executor folds updates into state
// with merge.
func NewGraph[S, U any](merge MergeFunc[S, U]) *Graph[S, U] {
	return &Graph[S, U]{
		merge:   merge,
		nodes:   make(map[string]NodeFunc[S, U]),
		edges:   make(map[string]string),
		routers: make(map[string]routerEdge[S]),
	}
}

// AddNode registers a named step.
func (g *Graph[S, U]) AddNode(name string, fn NodeFunc[S, U]) *Graph[S, U] {
	switch {
	case name == "" || name == End:
		g.problemf("invalid node name %q", name)
	case fn == nil:
		g.problemf("node %q has nil function", name)
	default:
		if _, dup := g.nodes[name]; dup {
			g.problemf("duplicate node %q", name)
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge registers an unconditional edge from one step to another, or to
// End.
func (g *Graph[S, U]) AddEdge(from, to string) *Graph[S, U] {
	if _, dup := g.edges[from]; dup {
		g.problemf("node %q has multiple unconditional edges", from)
		return g
	}
	g.edges[from] = to
	return g
}

// AddRouter registers a conditional transition. After the step runs, router
// is evaluated against the merged state and its result is looked up in
// edges. Every value in the router's domain must appear in edges, and
// edges must not map values outside the domain.
func (g *Graph[S, U]) AddRouter(from string, router Router[S], edges map[string]string) *Graph[S, U] {
	if _, dup := g.routers[from]; dup {
		g.problemf("node %q has multiple routers", from)
		return g
	}
	g.routers[from] = routerEdge[S]{router: router, edges: edges}
	return g
}

// SetEntry names the step execution starts from.
func (g *Graph[S, U]) SetEntry(name string) *Graph[S, U] {
	g.entry = name
	return g
}

func (g *Graph[S, U]) problemf(format string, args ...any) {
	g.probs = append(g.probs, fmt.Sprintf(format, args...))
}

// Compile validates the graph and returns an executable form. All
// validation problems are reported together, wrapped in ErrMalformedGraph.
func (g *Graph[S, U]) Compile() (*Compiled[S, U], error) {
	probs := append([]string(nil), g.probs...)

	if g.merge == nil {
		probs = append(probs, "nil merge function")
	}
	switch {
	case g.entry == "":
		probs = append(probs, "entry point not set")
	case !g.hasNode(g.entry):
		probs = append(probs, fmt.Sprintf("entry point %q is not a node", g.entry))
	}

	for from, to := range g.edges {
		if !g.hasNode(from) {
			probs = append(probs, fmt.Sprintf("edge from unknown node %q", from))
		}
		if to != End && !g.hasNode(to) {
			probs = append(probs, fmt.Sprintf("edge from %q to unknown node %q", from, to))
		}
	}

	for from, re := range g.routers {
		if !g.hasNode(from) {
			probs = append(probs, fmt.Sprintf("router on unknown node %q", from))
		}
		if _, both := g.edges[from]; both {
			probs = append(probs, fmt.Sprintf("node %q has both an edge and a router", from))
		}
		if re.router.Route == nil {
			probs = append(probs, fmt.Sprintf("router %q on node %q has nil route function", re.router.Name, from))
		}
		if len(re.router.Domain) == 0 {
			probs = append(probs, fmt.Sprintf("router %q on node %q declares an empty domain", re.router.Name, from))
		}

		domain := make(map[string]bool, len(re.router.Domain))
		for _, v := range re.router.Domain {
			if domain[v] {
				probs = append(probs, fmt.Sprintf("router %q declares %q twice", re.router.Name, v))
			}
			domain[v] = true
			if _, mapped := re.edges[v]; !mapped {
				probs = append(probs, fmt.Sprintf("router %q value %q has no edge mapping on node %q", re.router.Name, v, from))
			}
		}
		for v, to := range re.edges {
			if !domain[v] {
				probs = append(probs, fmt.Sprintf("node %q maps value %q outside router %q domain", from, v, re.router.Name))
			}
			if to != End && !g.hasNode(to) {
				probs = append(probs, fmt.Sprintf("node %q routes value %q to unknown node %q", from, v, to))
			}
		}
	}

	for _, name := range g.order {
		_, hasEdge := g.edges[name]
		_, hasRouter := g.routers[name]
		if !hasEdge && !hasRouter {
			probs = append(probs, fmt.Sprintf("node %q has no outgoing transition", name))
		}
	}

	if len(probs) > 0 {
		sort.Strings(probs)
		return nil, fmt.Errorf("%w: %s", ErrMalformedGraph, strings.Join(probs, "; "))
	}

	return &Compiled[S, U]{graph: g, maxSteps: DefaultMaxSteps}, nil
}

func (g *Graph[S, U]) hasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}
