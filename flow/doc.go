// Package flow provides a typed workflow graph engine.
//
// A Graph is a set of named steps connected by unconditional edges and
// routers. Each step receives the current state and returns a partial
// update; the engine folds the update into the state with the graph's
// merge function, then consults the outgoing edge or router of the step
// to pick the next one. Execution ends when routing reaches flow.End.
//
//	g := flow.NewGraph[State, Update](applyUpdate).
//	    AddNode("draft", draftNode).
//	    AddNode("review", reviewNode).
//	    AddEdge("draft", "review").
//	    AddRouter("review", reviewRouter, map[string]string{
//	        "approved": flow.End,
//	        "drafting": "draft",
//	    }).
//	    SetEntry("draft")
//
//	compiled, err := g.Compile()
//	final, err := compiled.Run(ctx, initial)
//
// Compile validates the whole graph up front: every edge target must
// exist, and every value a router declares must be mapped to a step.
// A graph that fails validation never runs.
package flow
