package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	flowhttp "github.com/randalmurphal/factoryflow/http"
)

// DefaultLinearURL is the Linear GraphQL endpoint.
const DefaultLinearURL = "https://api.linear.app/graphql"

// Linear is a Service backed by the Linear GraphQL API.
type Linear struct {
	client *flowhttp.Client
}

// LinearConfig configures the Linear client.
type LinearConfig struct {
	APIKey  string
	BaseURL string       // default DefaultLinearURL
	Client  *http.Client // optional custom transport
}

// NewLinear creates a Linear tracker client.
func NewLinear(cfg LinearConfig) (*Linear, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("linear: api key required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultLinearURL
	}
	return &Linear{
		client: flowhttp.NewClient(flowhttp.ClientConfig{
			Client:      cfg.Client,
			BaseURL:     baseURL,
			ServiceName: "linear",
			BeforeRequest: func(req *http.Request) {
				req.Header.Set("Authorization", cfg.APIKey)
			},
		}),
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (l *Linear) query(ctx context.Context, query string, variables map[string]any, out any) error {
	var resp graphQLResponse
	err := l.client.Post(ctx, "", graphQLRequest{Query: query, Variables: variables}, &resp)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("linear: %s", resp.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("linear: decode response: %w", err)
		}
	}
	return nil
}

// issueNode is the GraphQL shape of an issue.
type issueNode struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       struct {
		Name string `json:"name"`
	} `json:"state"`
	Priority float64 `json:"priority"`
	Parent   *struct {
		ID string `json:"id"`
	} `json:"parent"`
}

func (n issueNode) toIssue() Issue {
	issue := Issue{
		ID:          n.ID,
		Identifier:  n.Identifier,
		Title:       n.Title,
		Description: n.Description,
		State:       n.State.Name,
		Priority:    int(n.Priority),
	}
	if n.Parent != nil {
		issue.ParentID = n.Parent.ID
	}
	return issue
}

const issueFields = `
    id
    identifier
    title
    description
    state { name }
    priority
    parent { id }
`

// IssuesInState lists a team's issues sitting in a workflow state.
func (l *Linear) IssuesInState(ctx context.Context, teamKey, stateName string) ([]Issue, error) {
	query := `
    query IssuesInState($teamKey: String!, $stateName: String!) {
        issues(filter: {
            team: { key: { eq: $teamKey } }
            state: { name: { eq: $stateName } }
        }) {
            nodes {` + issueFields + `}
        }
    }`

	var data struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	if err := l.query(ctx, query, map[string]any{"teamKey": teamKey, "stateName": stateName}, &data); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		issues = append(issues, n.toIssue())
	}
	return issues, nil
}

// IssueByID fetches a single issue.
func (l *Linear) IssueByID(ctx context.Context, id string) (*Issue, error) {
	query := `
    query IssueByID($id: String!) {
        issue(id: $id) {` + issueFields + `}
    }`

	var data struct {
		Issue *issueNode `json:"issue"`
	}
	if err := l.query(ctx, query, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	issue := data.Issue.toIssue()
	return &issue, nil
}

// SubIssues lists the children of a parent issue.
func (l *Linear) SubIssues(ctx context.Context, parentID string) ([]Issue, error) {
	query := `
    query SubIssues($parentID: ID) {
        issues(filter: { parent: { id: { eq: $parentID } } }) {
            nodes {` + issueFields + `}
        }
    }`

	var data struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	if err := l.query(ctx, query, map[string]any{"parentID": parentID}, &data); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		issues = append(issues, n.toIssue())
	}
	return issues, nil
}

// stateID resolves a workflow state name to its ID.
func (l *Linear) stateID(ctx context.Context, stateName string) (string, error) {
	query := `
    query StateID($name: String!) {
        workflowStates(filter: { name: { eq: $name } }) {
            nodes { id }
        }
    }`

	var data struct {
		WorkflowStates struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"workflowStates"`
	}
	if err := l.query(ctx, query, map[string]any{"name": stateName}, &data); err != nil {
		return "", err
	}
	if len(data.WorkflowStates.Nodes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrStateNotFound, stateName)
	}
	return data.WorkflowStates.Nodes[0].ID, nil
}

// Transition moves an issue to the named workflow state.
func (l *Linear) Transition(ctx context.Context, issueID, stateName string) error {
	stateID, err := l.stateID(ctx, stateName)
	if err != nil {
		return err
	}

	mutation := `
    mutation Transition($id: String!, $stateId: String!) {
        issueUpdate(id: $id, input: { stateId: $stateId }) {
            success
        }
    }`

	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := l.query(ctx, mutation, map[string]any{"id": issueID, "stateId": stateID}, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("%w: transition %s to %q", ErrMutationFailed, issueID, stateName)
	}
	return nil
}

// UpdateDescription replaces the issue description.
func (l *Linear) UpdateDescription(ctx context.Context, issueID, description string) error {
	mutation := `
    mutation UpdateDescription($id: String!, $description: String!) {
        issueUpdate(id: $id, input: { description: $description }) {
            success
        }
    }`

	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := l.query(ctx, mutation, map[string]any{"id": issueID, "description": description}, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("%w: update description of %s", ErrMutationFailed, issueID)
	}
	return nil
}

// AddComment posts a markdown comment on an issue.
func (l *Linear) AddComment(ctx context.Context, issueID, body string) error {
	mutation := `
    mutation AddComment($issueId: String!, $body: String!) {
        commentCreate(input: { issueId: $issueId, body: $body }) {
            success
        }
    }`

	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	if err := l.query(ctx, mutation, map[string]any{"issueId": issueID, "body": body}, &data); err != nil {
		return err
	}
	if !data.CommentCreate.Success {
		return fmt.Errorf("%w: comment on %s", ErrMutationFailed, issueID)
	}
	return nil
}

// Comments returns the comment bodies on an issue, oldest first.
func (l *Linear) Comments(ctx context.Context, issueID string) ([]string, error) {
	query := `
    query Comments($id: String!) {
        issue(id: $id) {
            comments {
                nodes { body }
            }
        }
    }`

	var data struct {
		Issue *struct {
			Comments struct {
				Nodes []struct {
					Body string `json:"body"`
				} `json:"nodes"`
			} `json:"comments"`
		} `json:"issue"`
	}
	if err := l.query(ctx, query, map[string]any{"id": issueID}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
	}

	bodies := make([]string, 0, len(data.Issue.Comments.Nodes))
	for _, n := range data.Issue.Comments.Nodes {
		bodies = append(bodies, n.Body)
	}
	return bodies, nil
}

// CreateSubIssue creates a child issue under a parent.
func (l *Linear) CreateSubIssue(ctx context.Context, input SubIssueInput) (*Issue, error) {
	parent, err := l.IssueByID(ctx, input.ParentID)
	if err != nil {
		return nil, err
	}

	teamQuery := `
    query IssueTeam($id: String!) {
        issue(id: $id) { team { id } }
    }`
	var teamData struct {
		Issue *struct {
			Team struct {
				ID string `json:"id"`
			} `json:"team"`
		} `json:"issue"`
	}
	if err := l.query(ctx, teamQuery, map[string]any{"id": parent.ID}, &teamData); err != nil {
		return nil, err
	}
	if teamData.Issue == nil {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, parent.ID)
	}

	vars := map[string]any{
		"input": map[string]any{
			"teamId":      teamData.Issue.Team.ID,
			"parentId":    parent.ID,
			"title":       input.Title,
			"description": input.Description,
		},
	}
	if input.StateName != "" {
		stateID, err := l.stateID(ctx, input.StateName)
		if err != nil {
			return nil, err
		}
		vars["input"].(map[string]any)["stateId"] = stateID
	}

	mutation := `
    mutation CreateSubIssue($input: IssueCreateInput!) {
        issueCreate(input: $input) {
            success
            issue {` + issueFields + `}
        }
    }`

	var data struct {
		IssueCreate struct {
			Success bool       `json:"success"`
			Issue   *issueNode `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := l.query(ctx, mutation, vars, &data); err != nil {
		return nil, err
	}
	if !data.IssueCreate.Success || data.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("%w: create sub-issue under %s", ErrMutationFailed, input.ParentID)
	}
	issue := data.IssueCreate.Issue.toIssue()
	return &issue, nil
}
