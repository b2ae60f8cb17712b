// Command factoryd polls the issue tracker and drives issues through the
// pipeline. Workflow columns prefixed "AI:" trigger runs; "Human:" columns
// wait for a person, and the poller notices when they move on (a merged
// pull request completes the issue, a completed set of sub-issues
// completes the parent).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	factoryflow "github.com/randalmurphal/factoryflow"
	"github.com/randalmurphal/factoryflow/config"
	"github.com/randalmurphal/factoryflow/flow"
	"github.com/randalmurphal/factoryflow/forge"
	"github.com/randalmurphal/factoryflow/notify"
	"github.com/randalmurphal/factoryflow/tracker"
)

// actionPhases maps the workflow columns the poller acts on to the pipeline
// phase each one triggers.
var actionPhases = []struct {
	column string
	phase  factoryflow.Phase
}{
	{tracker.StateCreatePRD, factoryflow.PhasePRD},
	{tracker.StateCreateERD, factoryflow.PhaseSpec},
	{tracker.StateImplement, factoryflow.PhaseImplement},
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "factoryd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	services, err := factoryflow.NewServices(settings)
	if err != nil {
		return err
	}
	if services.Tracker == nil {
		return fmt.Errorf("factoryd requires a tracker; set %s", config.KeyLinearAPIKey)
	}

	p, err := newPoller(settings, services)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("factoryd started",
		"team", settings.LinearTeamKey,
		"interval", time.Duration(settings.PollIntervalSeconds)*time.Second)
	return p.loop(ctx)
}

type poller struct {
	settings *config.Settings
	services *factoryflow.Services
	graphs   map[factoryflow.Phase]*flow.Compiled[factoryflow.State, factoryflow.Update]
}

func newPoller(settings *config.Settings, services *factoryflow.Services) (*poller, error) {
	graphs := make(map[factoryflow.Phase]*flow.Compiled[factoryflow.State, factoryflow.Update])
	for _, ap := range actionPhases {
		compiled, err := factoryflow.Build(ap.phase)
		if err != nil {
			return nil, fmt.Errorf("compile %s pipeline: %w", ap.phase, err)
		}
		graphs[ap.phase] = compiled
	}
	return &poller{settings: settings, services: services, graphs: graphs}, nil
}

func (p *poller) loop(ctx context.Context) error {
	interval := time.Duration(p.settings.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *poller) pollOnce(ctx context.Context) {
	svc := p.services.Tracker
	for _, ap := range actionPhases {
		issues, err := svc.IssuesInState(ctx, p.settings.LinearTeamKey, ap.column)
		if err != nil {
			slog.Error("failed to list issues", "column", ap.column, "error", err)
			continue
		}
		for i := range issues {
			if ctx.Err() != nil {
				return
			}
			p.processIssue(ctx, &issues[i], ap.phase)
		}
	}
	p.completeMergedPRs(ctx)
	p.completeFinishedParents(ctx)
}

// processIssue runs one issue through its phase. The PRD phase leaves the
// issue in place until the approval gate moves it; later phases claim the
// issue up front so a slow run is not picked up twice.
func (p *poller) processIssue(ctx context.Context, issue *tracker.Issue, phase factoryflow.Phase) {
	svc := p.services.Tracker
	slog.Info("processing issue", "issue", issue.Identifier, "phase", phase)

	if phase == factoryflow.PhaseSpec || phase == factoryflow.PhaseImplement {
		if err := svc.Transition(ctx, issue.ID, tracker.StateInProgress); err != nil {
			slog.Error("failed to claim issue", "issue", issue.Identifier, "error", err)
			return
		}
	}

	task := issue.Title
	if issue.Description != "" {
		task += "\n\n" + issue.Description
	}
	initial := factoryflow.NewState(task).
		WithIssue(issue).
		WithPhase(phase).
		WithWorkspace(p.settings.Workspace)

	runCtx := p.services.InjectAll(ctx)
	final, err := p.graphs[phase].Run(runCtx, initial)
	if err != nil {
		slog.Error("pipeline run failed", "issue", issue.Identifier, "error", err)
		p.failIssue(ctx, issue, fmt.Sprintf("Error: %v", err))
		p.notify(ctx, initial, notify.EventRunFailed, notify.SeverityError, err.Error())
		return
	}

	switch final.Status {
	case factoryflow.StatusFailed:
		p.failIssue(ctx, issue, failureSummary(final))
		p.notify(ctx, final, notify.EventRunFailed, notify.SeverityError, failureSummary(final))
	case factoryflow.StatusReverted:
		slog.Warn("pipeline run reverted", "issue", issue.Identifier)
		p.notify(ctx, final, notify.EventReverted, notify.SeverityWarning,
			fmt.Sprintf("Change for %s was auto-reverted.", issue.Identifier))
	default:
		slog.Info("pipeline run finished", "issue", issue.Identifier, "status", final.Status)
		if final.PRURL != "" {
			p.notify(ctx, final, notify.EventPRPublished, notify.SeverityInfo,
				"Pull request ready for review: "+final.PRURL)
		}
	}
}

// notify emits a pipeline event; notifier failures are logged, never fatal.
func (p *poller) notify(ctx context.Context, s factoryflow.State, eventType notify.EventType, severity, message string) {
	if p.services.Notifier == nil {
		return
	}
	issue := ""
	if s.Issue != nil {
		issue = s.Issue.Identifier
	}
	event := notify.Event{
		Type:      eventType,
		RunID:     s.RunID,
		Phase:     string(s.Phase),
		Issue:     issue,
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now(),
	}
	if err := p.services.Notifier.Notify(ctx, event); err != nil {
		slog.Warn("failed to send notification", "type", eventType, "error", err)
	}
}

func (p *poller) failIssue(ctx context.Context, issue *tracker.Issue, detail string) {
	svc := p.services.Tracker
	if err := svc.Transition(ctx, issue.ID, tracker.StateFailed); err != nil {
		slog.Error("failed to transition failed issue", "issue", issue.Identifier, "error", err)
	}
	if len(detail) > 500 {
		detail = detail[:500]
	}
	if err := svc.AddComment(ctx, issue.ID, "❌ Failed: "+detail); err != nil {
		slog.Error("failed to comment on failed issue", "issue", issue.Identifier, "error", err)
	}
}

// failureSummary collects the run's progress log and outstanding reviewer
// concerns into the failure comment.
func failureSummary(s factoryflow.State) string {
	var parts []string
	if len(s.Messages) > 0 {
		parts = append(parts, strings.Join(s.Messages, "; "))
	}
	for _, fb := range s.UnapprovedFeedback() {
		if len(fb.Concerns) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", fb.Agent, strings.Join(fb.Concerns, ", ")))
		}
	}
	if len(parts) == 0 {
		return "No details"
	}
	return strings.Join(parts, "; ")
}

// completeMergedPRs walks issues awaiting PR review and closes the ones
// whose pull request has merged.
func (p *poller) completeMergedPRs(ctx context.Context) {
	if p.services.Forge == nil {
		return
	}
	svc := p.services.Tracker
	issues, err := svc.IssuesInState(ctx, p.settings.LinearTeamKey, tracker.StateReviewPR)
	if err != nil {
		slog.Error("failed to list issues awaiting PR review", "error", err)
		return
	}
	for i := range issues {
		issue := &issues[i]
		comments, err := svc.Comments(ctx, issue.ID)
		if err != nil {
			slog.Error("failed to fetch comments", "issue", issue.Identifier, "error", err)
			continue
		}
		prURL, ok := forge.FindPRURL(comments)
		if !ok {
			continue
		}
		_, _, number, err := forge.ParsePRURL(prURL)
		if err != nil {
			continue
		}
		pr, err := p.services.Forge.GetPR(ctx, number)
		if err != nil {
			slog.Error("failed to fetch PR", "issue", issue.Identifier, "pr", number, "error", err)
			continue
		}
		if !pr.Merged() {
			continue
		}

		slog.Info("pull request merged, completing issue", "issue", issue.Identifier, "pr", prURL)
		if err := svc.Transition(ctx, issue.ID, tracker.StateDone); err != nil {
			slog.Error("failed to complete issue", "issue", issue.Identifier, "error", err)
			continue
		}
		if err := svc.AddComment(ctx, issue.ID, "🎉 PR merged! Issue completed."); err != nil {
			slog.Warn("failed to comment completion", "issue", issue.Identifier, "error", err)
		}
		if issue.ParentID != "" {
			p.completeParentIfDone(ctx, issue.ParentID)
		}
	}
}

// completeFinishedParents closes in-progress parent issues once every
// sub-issue is done.
func (p *poller) completeFinishedParents(ctx context.Context) {
	svc := p.services.Tracker
	issues, err := svc.IssuesInState(ctx, p.settings.LinearTeamKey, tracker.StateInProgress)
	if err != nil {
		slog.Error("failed to list in-progress issues", "error", err)
		return
	}
	for i := range issues {
		if issues[i].ParentID != "" {
			continue
		}
		p.completeParentIfDone(ctx, issues[i].ID)
	}
}

func (p *poller) completeParentIfDone(ctx context.Context, parentID string) {
	svc := p.services.Tracker
	done, err := tracker.AllSubIssuesDone(ctx, svc, parentID)
	if err != nil {
		slog.Error("failed to check sub-issues", "parent", parentID, "error", err)
		return
	}
	if !done {
		return
	}
	slog.Info("all sub-issues complete, closing parent", "parent", parentID)
	if err := svc.Transition(ctx, parentID, tracker.StateDone); err != nil {
		slog.Error("failed to complete parent", "parent", parentID, "error", err)
		return
	}
	if err := svc.AddComment(ctx, parentID, "🎉 All sub-issues completed! Parent issue marked as done."); err != nil {
		slog.Warn("failed to comment parent completion", "parent", parentID, "error", err)
	}
}
