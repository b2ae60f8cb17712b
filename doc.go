// Package factoryflow is a multi-stage pipeline that turns engineering
// tasks into reviewed, published code changes using LLM agents.
//
// The root package holds the pipeline itself: the State/Update model, the
// agent nodes, the routers, and the graph variants assembled by Build. The
// supporting packages provide the services nodes depend on:
//
//   - flow: the generic workflow graph engine (nodes, routers, bounded runs)
//   - tracker: issue tracker integration (Linear)
//   - forge: pull request providers (GitHub, GitLab)
//   - git: repository operations and branch naming
//   - llm: text generation via the Claude CLI
//   - prompt: prompt template loading with embedded defaults
//   - task: task-based model selection
//   - deploy: ephemeral databases (Neon) and preview deploys (Vercel)
//   - telemetry: production error monitoring (Sentry)
//   - notify: run event notifications (Slack, webhooks)
//   - config: layered configuration resolution
//   - http: shared HTTP client plumbing for the service adapters
//
// # Quick Start
//
//	settings, _ := config.Load()
//	services, _ := factoryflow.NewServices(settings)
//
//	compiled, _ := factoryflow.Build(factoryflow.PhaseDirect)
//
//	ctx := services.InjectAll(context.Background())
//	final, err := compiled.Run(ctx, factoryflow.NewState("Add rate limiting to the API"))
//
// Nodes receive services through the context, so tests swap in mocks with
// the same WithTracker/WithForge/WithLLM helpers production uses.
package factoryflow
