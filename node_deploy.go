package factoryflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/factoryflow/deploy"
	"github.com/randalmurphal/factoryflow/forge"
	"github.com/randalmurphal/factoryflow/git"
	"github.com/randalmurphal/factoryflow/telemetry"
	"github.com/randalmurphal/factoryflow/tracker"
)

// testTimeout bounds the end-to-end test run against a preview deployment.
const testTimeout = 5 * time.Minute

// DeployerNode provisions an ephemeral database branch and deploys a
// preview environment for the published work. Both stages are optional:
// a missing or unconfigured provider degrades to skipped, never to a
// failed run.
//
// Prerequisites: a published branch
// Updates: state.EphemeralDBURL, state.EphemeralStatus, state.PreviewURL, state.Status
func DeployerNode(ctx context.Context, s State) (Update, error) {
	branch := deployBranch(s)
	if branch == "" {
		u := Update{EphemeralStatus: ptr(OutcomeSkipped)}
		u.AppendMessages = []string{"Deployment skipped: no published branch"}
		return u, nil
	}

	var u Update

	if db := DatabaseProvisionerFromContext(ctx); db == nil {
		u.EphemeralStatus = ptr(OutcomeSkipped)
		u.AppendMessages = append(u.AppendMessages, "Ephemeral database skipped: not configured")
	} else if url, err := db.Provision(ctx, branch); err != nil {
		if errors.Is(err, deploy.ErrNotConfigured) {
			u.EphemeralStatus = ptr(OutcomeSkipped)
			u.AppendMessages = append(u.AppendMessages, "Ephemeral database skipped: not configured")
		} else {
			slog.Warn("database provisioning failed", "runId", s.RunID, "branch", branch, "error", err)
			u.EphemeralStatus = ptr(OutcomeFailed)
			u.AppendMessages = append(u.AppendMessages, fmt.Sprintf("Ephemeral database failed: %v", err))
		}
	} else {
		u.EphemeralStatus = ptr(OutcomeOK)
		u.EphemeralDBURL = ptr(url)
		u.AppendMessages = append(u.AppendMessages, fmt.Sprintf("Ephemeral database ready: %s", url))
	}

	deployer := PreviewDeployerFromContext(ctx)
	if deployer == nil {
		u.AppendMessages = append(u.AppendMessages, "Preview deployment skipped: not configured")
		return u, nil
	}
	previewURL, err := deployer.Deploy(ctx, branch)
	if err != nil {
		slog.Warn("preview deployment failed", "runId", s.RunID, "branch", branch, "error", err)
		u.AppendMessages = append(u.AppendMessages, fmt.Sprintf("Preview deployment failed: %v", err))
		return u, nil
	}

	u.Status = ptr(StatusDeployed)
	u.PreviewURL = ptr(previewURL)
	u.AppendMessages = append(u.AppendMessages, fmt.Sprintf("Preview deployed: %s", previewURL))
	return u, nil
}

// deployBranch finds the branch to deploy: the most recently branched work
// item, or the single task branch when the run had no stack.
func deployBranch(s State) string {
	for i := len(s.WorkItems) - 1; i >= 0; i-- {
		if s.WorkItems[i].BranchName != "" {
			return s.WorkItems[i].BranchName
		}
	}
	if s.PRURL != "" {
		return git.TaskBranch(s.TaskDescription)
	}
	return ""
}

// TestAgentNode runs the end-to-end suite against the preview deployment.
//
// Prerequisites: state.PreviewURL, state.Workspace
// Updates: state.TestStatus, state.TestDetail
func TestAgentNode(ctx context.Context, s State) (Update, error) {
	if s.PreviewURL == "" {
		return Update{
			TestStatus:     ptr(OutcomeSkipped),
			TestDetail:     ptr("no preview deployment to test against"),
			AppendMessages: []string{"Tests skipped: no preview deployment"},
		}, nil
	}

	runner := GetCommandRunner(ctx)
	runCtx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	output, err := runner.Run(runCtx, s.Workspace,
		"env", "BASE_URL="+s.PreviewURL, "npx", "playwright", "test")
	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		slog.Warn("test run timed out", "runId", s.RunID)
		return Update{
			TestStatus:     ptr(OutcomeTimeout),
			TestDetail:     ptr(fmt.Sprintf("tests exceeded %s", testTimeout)),
			AppendMessages: []string{"Tests timed out"},
		}, nil
	case err != nil:
		detail := output
		if len(detail) > 1000 {
			detail = detail[:1000]
		}
		return Update{
			TestStatus:     ptr(OutcomeFailed),
			TestDetail:     ptr(detail),
			AppendMessages: []string{"Tests failed"},
		}, nil
	default:
		return Update{
			TestStatus:     ptr(OutcomeOK),
			AppendMessages: []string{"Tests passed"},
		}, nil
	}
}

// TelemetryNode checks recent production error counts after a deployment
// and flags an error spike for the reverter.
//
// Prerequisites: none
// Updates: state.TelemetryStatus, state.ErrorCount
func TelemetryNode(ctx context.Context, s State) (Update, error) {
	svc := TelemetryFromContext(ctx)
	if svc == nil {
		return Update{
			TelemetryStatus: ptr(TelemetrySkipped),
			AppendMessages:  []string{"Telemetry check skipped: not configured"},
		}, nil
	}

	count, err := svc.RecentErrorCount(ctx)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotConfigured) {
			return Update{
				TelemetryStatus: ptr(TelemetrySkipped),
				AppendMessages:  []string{"Telemetry check skipped: not configured"},
			}, nil
		}
		slog.Warn("telemetry fetch failed", "runId", s.RunID, "error", err)
		return Update{
			TelemetryStatus: ptr("error"),
			AppendMessages:  []string{fmt.Sprintf("Telemetry check errored: %v", err)},
		}, nil
	}

	if count > telemetry.ErrorSpikeThreshold {
		slog.Error("error spike after deployment", "runId", s.RunID, "errors", count)
		return Update{
			TelemetryStatus: ptr(TelemetryErrorSpike),
			ErrorCount:      ptr(count),
			AppendMessages:  []string{fmt.Sprintf("Error spike detected (%d errors); reverting", count)},
		}, nil
	}
	return Update{
		TelemetryStatus: ptr(TelemetryHealthy),
		ErrorCount:      ptr(count),
		AppendMessages:  []string{fmt.Sprintf("Telemetry healthy (%d errors)", count)},
	}, nil
}

// ReverterNode rolls back a merged pull request after an error spike. An
// unmerged or missing PR leaves nothing to revert.
//
// Prerequisites: state.PRURL
// Updates: state.RevertStatus, state.RevertDetail, state.Status
func ReverterNode(ctx context.Context, s State) (Update, error) {
	if s.PRURL == "" {
		return Update{
			RevertStatus:   ptr(OutcomeSkipped),
			RevertDetail:   ptr("no pull request to revert"),
			AppendMessages: []string{"Revert skipped: no pull request"},
		}, nil
	}
	provider := ForgeFromContext(ctx)
	if provider == nil {
		return Update{}, fmt.Errorf("forge.Provider not found in context")
	}
	repo := RepoFromContext(ctx)
	if repo == nil {
		return Update{}, fmt.Errorf("git.Repo not found in context")
	}

	_, _, number, err := forge.ParsePRURL(s.PRURL)
	if err != nil {
		return Update{}, fmt.Errorf("parse pull request URL: %w", err)
	}
	pr, err := provider.GetPR(ctx, number)
	if err != nil {
		return Update{}, fmt.Errorf("fetch pull request %d: %w", number, err)
	}
	if !pr.Merged() || pr.MergeCommitSHA == "" {
		return Update{
			RevertStatus:   ptr(OutcomeSkipped),
			RevertDetail:   ptr("pull request is not merged"),
			AppendMessages: []string{"Revert skipped: pull request not merged"},
		}, nil
	}

	if err := repo.RevertMerge(ctx, defaultBaseBranch, pr.MergeCommitSHA); err != nil {
		slog.Error("revert failed", "runId", s.RunID, "pr", s.PRURL, "error", err)
		return Update{
			RevertStatus:   ptr(OutcomeFailed),
			RevertDetail:   ptr(err.Error()),
			AppendMessages: []string{fmt.Sprintf("Revert failed: %v", err)},
		}, nil
	}

	notice := fmt.Sprintf("⚠️ **Auto-Reverted**\n\nThis change was reverted after a production error spike (%d errors in the last 5 minutes).", s.ErrorCount)
	if err := provider.AddComment(ctx, number, notice); err != nil {
		slog.Warn("failed to comment on reverted PR", "pr", number, "error", err)
	}
	if svc := TrackerFromContext(ctx); svc != nil && s.Issue != nil {
		if err := svc.AddComment(ctx, s.Issue.ID, notice); err != nil {
			slog.Warn("failed to comment revert on issue", "issue", s.Issue.Identifier, "error", err)
		}
		if err := svc.Transition(ctx, s.Issue.ID, tracker.StateFailed); err != nil {
			slog.Warn("failed to transition issue after revert", "issue", s.Issue.Identifier, "error", err)
		}
	}

	slog.Info("merge reverted", "runId", s.RunID, "pr", s.PRURL, "sha", pr.MergeCommitSHA)
	u := statusUpdate(StatusReverted, fmt.Sprintf("Reverted merge %s", pr.MergeCommitSHA))
	u.RevertStatus = ptr(OutcomeOK)
	return u, nil
}
