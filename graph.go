package factoryflow

import (
	"fmt"

	"github.com/randalmurphal/factoryflow/flow"
)

// Build compiles the pipeline graph for a phase. Each phase is a separate
// graph with its own entry point; a run executes exactly one phase and the
// poller decides which phase an issue enters.
func Build(phase Phase) (*flow.Compiled[State, Update], error) {
	switch phase {
	case PhaseDirect:
		return buildDirect()
	case PhasePRD:
		return buildPRD()
	case PhaseSpec:
		return buildSpec()
	case PhaseImplement:
		return buildImplement()
	default:
		return nil, fmt.Errorf("unknown pipeline phase %q", phase)
	}
}

// buildDirect is the full task-to-production pipeline: classify, break
// down, draft and review on a branch stack, publish, deploy, test, watch
// telemetry, and revert if production burns.
func buildDirect() (*flow.Compiled[State, Update], error) {
	g := flow.NewGraph[State, Update](State.Apply)

	addNode(g, NodeClassifier, ClassifierNode)
	addNode(g, NodeArchitect, ArchitectNode)
	addNode(g, NodeStackManager, StackManagerNode)
	addNode(g, NodeContractor, ContractorNode)
	addNode(g, NodeInfraEngineer, InfraEngineerNode)
	addNode(g, NodeSoftwareEngineer, SoftwareEngineerNode)
	addReviewChain(g)
	addNode(g, NodePublisher, PublisherNode)
	addPostPublish(g)

	g.SetEntry(NodeClassifier).
		AddRouter(NodeClassifier, RouteFromClassifier(), selfEdges(NodeArchitect, NodeInfraEngineer, NodeSoftwareEngineer)).
		AddRouter(NodeArchitect, RouteFromArchitect(), selfEdges(NodeStackManager, routeEnd)).
		AddRouter(NodeStackManager, RouteFromStackManager(), selfEdges(NodeContractor, NodeDeployer, routeEnd)).
		AddRouter(NodeContractor, RouteToFirstReviewer(), selfEdges(NodeSecurity, NodeCompliance, NodeDesign)).
		AddRouter(NodeInfraEngineer, RouteToFirstReviewer(), selfEdges(NodeSecurity, NodeCompliance, NodeDesign)).
		AddRouter(NodeSoftwareEngineer, RouteToFirstReviewer(), selfEdges(NodeSecurity, NodeCompliance, NodeDesign)).
		AddRouter(NodeSupervisor, RouteFromSupervisor(), selfEdges(NodePublisher, NodeContractor, NodeInfraEngineer, NodeSoftwareEngineer, routeEnd)).
		AddRouter(NodePublisher, RouteFromPublisher(), selfEdges(NodeStackManager, NodeDeployer))

	return g.Compile()
}

// buildPRD drafts a product requirements document and parks it for human
// review. The run always ends at the approval gate; a human moves the
// issue onward.
func buildPRD() (*flow.Compiled[State, Update], error) {
	g := flow.NewGraph[State, Update](State.Apply)

	addNode(g, NodeProductManager, ProductManagerNode)
	addNode(g, NodeApprovalGate, ApprovalGateNode)

	g.SetEntry(NodeProductManager).
		AddEdge(NodeProductManager, NodeApprovalGate).
		AddEdge(NodeApprovalGate, flow.End)

	return g.Compile()
}

// buildSpec turns an approved PRD into a technical specification filed as
// a review sub-issue.
func buildSpec() (*flow.Compiled[State, Update], error) {
	g := flow.NewGraph[State, Update](State.Apply)

	addNode(g, NodeClassifier, ClassifierNode)
	addNode(g, NodeContractPlan, ContractPlannerNode)
	addNode(g, NodeSoftwarePlan, SoftwarePlannerNode)
	addNode(g, NodeInfraPlan, InfraPlannerNode)
	addNode(g, NodeSubIssue, SubIssueHandlerNode)

	g.SetEntry(NodeClassifier).
		AddRouter(NodeClassifier, RouteFromPlannerClassifier(), selfEdges(NodeContractPlan, NodeInfraPlan, NodeSoftwarePlan)).
		AddRouter(NodeContractPlan, RouteFromPlanner(), selfEdges(NodeSubIssue, routeEnd)).
		AddRouter(NodeSoftwarePlan, RouteFromPlanner(), selfEdges(NodeSubIssue, routeEnd)).
		AddRouter(NodeInfraPlan, RouteFromPlanner(), selfEdges(NodeSubIssue, routeEnd)).
		AddEdge(NodeSubIssue, flow.End)

	return g.Compile()
}

// buildImplement generates code from an approved specification, loops it
// through validation and correction, then reviews and publishes like the
// direct pipeline. Implementation runs carry no work-item stack, so the
// publisher goes straight to deployment.
func buildImplement() (*flow.Compiled[State, Update], error) {
	g := flow.NewGraph[State, Update](State.Apply)

	addNode(g, NodeImplementer, ImplementerNode)
	addNode(g, NodeValidator, ValidatorNode)
	addNode(g, NodeCorrector, CorrectorNode)
	addReviewChain(g)
	addNode(g, NodePublisher, PublisherNode)
	addPostPublish(g)

	g.SetEntry(NodeImplementer).
		AddEdge(NodeImplementer, NodeValidator).
		AddRouter(NodeValidator, RouteFromValidator(), selfEdges(NodeCorrector, NodeSecurity, NodeCompliance, NodeDesign)).
		AddEdge(NodeCorrector, NodeValidator).
		AddRouter(NodeSupervisor, RouteFromImplementSupervisor(), selfEdges(NodePublisher, NodeImplementer, routeEnd)).
		AddEdge(NodePublisher, NodeDeployer)

	return g.Compile()
}

// addReviewChain registers the reviewer fan-in: compliance and design each
// feed security, and security hands the round to the supervisor.
func addReviewChain(g *flow.Graph[State, Update]) {
	addNode(g, NodeSecurity, SecurityNode)
	addNode(g, NodeCompliance, ComplianceNode)
	addNode(g, NodeDesign, DesignNode)
	addNode(g, NodeSupervisor, SupervisorNode)

	g.AddEdge(NodeCompliance, NodeSecurity).
		AddEdge(NodeDesign, NodeSecurity).
		AddEdge(NodeSecurity, NodeSupervisor)
}

// addPostPublish registers the deploy/test/telemetry/revert tail shared by
// the publishing pipelines.
func addPostPublish(g *flow.Graph[State, Update]) {
	addNode(g, NodeDeployer, DeployerNode)
	addNode(g, NodeTestAgent, TestAgentNode)
	addNode(g, NodeTelemetry, TelemetryNode)
	addNode(g, NodeReverter, ReverterNode)

	g.AddEdge(NodeDeployer, NodeTestAgent).
		AddRouter(NodeTestAgent, RouteFromTestAgent(), selfEdges(NodeTelemetry, routeEnd)).
		AddRouter(NodeTelemetry, RouteFromTelemetry(), selfEdges(NodeReverter, routeEnd)).
		AddEdge(NodeReverter, flow.End)
}

func addNode(g *flow.Graph[State, Update], name string, fn NodeFunc) {
	g.AddNode(name, WithTiming(name, fn))
}

// selfEdges maps each routing value to the node of the same name, with the
// end sentinel mapped to graph termination.
func selfEdges(values ...string) map[string]string {
	m := make(map[string]string, len(values))
	for _, v := range values {
		if v == routeEnd {
			m[v] = flow.End
			continue
		}
		m[v] = v
	}
	return m
}
