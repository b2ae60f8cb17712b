package factoryflow

import (
	"strings"

	"github.com/randalmurphal/factoryflow/flow"
)

// Step names used across graph variants.
const (
	NodeClassifier       = "classifier"
	NodeArchitect        = "architect"
	NodeStackManager     = "stack_manager"
	NodeContractor       = "contractor"
	NodeInfraEngineer    = "infra_engineer"
	NodeSoftwareEngineer = "software_engineer"
	NodeSecurity         = "security"
	NodeCompliance       = "compliance"
	NodeDesign           = "design"
	NodeSupervisor       = "supervisor"
	NodePublisher        = "publisher"
	NodeDeployer         = "deployer"
	NodeTestAgent        = "test_agent"
	NodeTelemetry        = "telemetry"
	NodeReverter         = "reverter"

	NodeProductManager = "product_manager"
	NodeApprovalGate   = "approval_gate"
	NodeContractPlan   = "contract_planner"
	NodeSoftwarePlan   = "software_planner"
	NodeInfraPlan      = "infrastructure_planner"
	NodeSubIssue       = "sub_issue_handler"
	NodeImplementer    = "implementer"
	NodeValidator      = "validator"
	NodeCorrector      = "corrector"
)

// Routing values shared by several routers.
const (
	routeEnd = "end"
)

// All routers below are total functions of the state with no side effects.
// Each declares its full output domain so graph compilation can prove every
// value it may return has a destination.

// RouteFromClassifier picks the first worker from the request type.
func RouteFromClassifier() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_classifier",
		Domain: []string{NodeArchitect, NodeInfraEngineer, NodeSoftwareEngineer},
		Route: func(s State) string {
			switch s.RequestType {
			case RequestRequiresContract:
				return NodeArchitect
			case RequestInfrastructure:
				return NodeInfraEngineer
			default:
				return NodeSoftwareEngineer
			}
		},
	}
}

// RouteFromSupervisor continues the draft/review loop, releases approved
// work to the publisher, or ends a failed run.
func RouteFromSupervisor() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_supervisor",
		Domain: []string{NodePublisher, NodeContractor, NodeInfraEngineer, NodeSoftwareEngineer, routeEnd},
		Route: func(s State) string {
			switch s.Status {
			case StatusApproved:
				return NodePublisher
			case StatusDrafting:
				if len(s.WorkItems) > 0 {
					return NodeContractor
				}
				switch s.RequestType {
				case RequestRequiresContract:
					return NodeContractor
				case RequestInfrastructure:
					return NodeInfraEngineer
				default:
					return NodeSoftwareEngineer
				}
			default:
				return routeEnd
			}
		},
	}
}

// RouteFromStackManager dispatches the current work item to the contractor
// or hands the finished stack to the deployer.
func RouteFromStackManager() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_stack_manager",
		Domain: []string{NodeContractor, NodeDeployer, routeEnd},
		Route: func(s State) string {
			switch {
			case strings.HasPrefix(string(s.Status), "working_"):
				return NodeContractor
			case s.Status == StatusStackComplete:
				return NodeDeployer
			default:
				return routeEnd
			}
		},
	}
}

// RouteToFirstReviewer picks the reviewer chain entry for the current work
// item: backend work starts at compliance, frontend at design, everything
// else goes straight to security.
func RouteToFirstReviewer() flow.Router[State] {
	return flow.Router[State]{
		Name:   "to_first_reviewer",
		Domain: []string{NodeSecurity, NodeCompliance, NodeDesign},
		Route: func(s State) string {
			if item, ok := s.CurrentWorkItem(); ok {
				switch item.Kind {
				case KindBackend:
					return NodeCompliance
				case KindFrontend:
					return NodeDesign
				}
			}
			return NodeSecurity
		},
	}
}

// RouteFromPublisher continues through the remaining stack or moves on to
// deployment once every work item is published.
func RouteFromPublisher() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_publisher",
		Domain: []string{NodeStackManager, NodeDeployer},
		Route: func(s State) string {
			if len(s.WorkItems) > 0 && s.CurrentWorkIndex < len(s.WorkItems) {
				return NodeStackManager
			}
			return NodeDeployer
		},
	}
}

// RouteFromTestAgent proceeds to telemetry only on a green run.
func RouteFromTestAgent() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_test_agent",
		Domain: []string{NodeTelemetry, routeEnd},
		Route: func(s State) string {
			if s.TestStatus == OutcomeOK {
				return NodeTelemetry
			}
			return routeEnd
		},
	}
}

// RouteFromTelemetry triggers a revert on an error spike.
func RouteFromTelemetry() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_telemetry",
		Domain: []string{NodeReverter, routeEnd},
		Route: func(s State) string {
			if s.TelemetryStatus == TelemetryErrorSpike {
				return NodeReverter
			}
			return routeEnd
		},
	}
}

// RouteFromPlannerClassifier picks a planner from the request type in the
// specification phase.
func RouteFromPlannerClassifier() flow.Router[State] {
	return flow.Router[State]{
		Name:   "to_planner",
		Domain: []string{NodeContractPlan, NodeInfraPlan, NodeSoftwarePlan},
		Route: func(s State) string {
			switch s.RequestType {
			case RequestRequiresContract:
				return NodeContractPlan
			case RequestInfrastructure:
				return NodeInfraPlan
			default:
				return NodeSoftwarePlan
			}
		},
	}
}

// RouteFromPlanner forwards a finished specification to sub-issue creation
// and ends the run when planning failed.
func RouteFromPlanner() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_planner",
		Domain: []string{NodeSubIssue, routeEnd},
		Route: func(s State) string {
			if s.Status == StatusSpecReady {
				return NodeSubIssue
			}
			return routeEnd
		},
	}
}

// RouteFromArchitect proceeds to branch setup only when the breakdown
// succeeded.
func RouteFromArchitect() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_architect",
		Domain: []string{NodeStackManager, routeEnd},
		Route: func(s State) string {
			if s.Status == StatusArchitected {
				return NodeStackManager
			}
			return routeEnd
		},
	}
}

// RouteFromImplementSupervisor is the supervisor routing for implementation
// runs, where a rejected round goes back through code generation rather
// than drafting.
func RouteFromImplementSupervisor() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_supervisor",
		Domain: []string{NodePublisher, NodeImplementer, routeEnd},
		Route: func(s State) string {
			switch s.Status {
			case StatusApproved:
				return NodePublisher
			case StatusDrafting:
				return NodeImplementer
			default:
				return routeEnd
			}
		},
	}
}

// RouteFromValidator loops implementation output back through the corrector
// until it is clean or the correction ceiling forces it onward to review.
func RouteFromValidator() flow.Router[State] {
	return flow.Router[State]{
		Name:   "from_validator",
		Domain: []string{NodeCorrector, NodeSecurity, NodeCompliance, NodeDesign},
		Route: func(s State) string {
			if s.Status == StatusNeedsCorrection {
				return NodeCorrector
			}
			return RouteToFirstReviewer().Route(s)
		},
	}
}
