package factoryflow

import (
	"context"
	"time"

	"github.com/randalmurphal/factoryflow/config"
	"github.com/randalmurphal/factoryflow/deploy"
	"github.com/randalmurphal/factoryflow/forge"
	"github.com/randalmurphal/factoryflow/git"
	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/notify"
	"github.com/randalmurphal/factoryflow/prompt"
	"github.com/randalmurphal/factoryflow/telemetry"
	"github.com/randalmurphal/factoryflow/tracker"
)

// =============================================================================
// Context Injection Helpers
// =============================================================================
// Nodes receive their dependencies through context.Context so graph wiring
// stays independent of service construction.

// serviceContextKey is a private type for context keys to avoid collisions
type serviceContextKey string

// Context keys for pipeline services
const (
	trackerServiceKey   serviceContextKey = "factory.tracker"
	forgeServiceKey     serviceContextKey = "factory.forge"
	llmServiceKey       serviceContextKey = "factory.llm"
	repoServiceKey      serviceContextKey = "factory.repo"
	dbServiceKey        serviceContextKey = "factory.db"
	deployServiceKey    serviceContextKey = "factory.deploy"
	telemetryServiceKey serviceContextKey = "factory.telemetry"
	promptServiceKey    serviceContextKey = "factory.prompts"
	runnerServiceKey    serviceContextKey = "factory.runner"
	notifierServiceKey  serviceContextKey = "factory.notifier"
)

// WithTracker adds a tracker Service to the context
func WithTracker(ctx context.Context, svc tracker.Service) context.Context {
	return context.WithValue(ctx, trackerServiceKey, svc)
}

// TrackerFromContext extracts the tracker Service from context
func TrackerFromContext(ctx context.Context) tracker.Service {
	if svc, ok := ctx.Value(trackerServiceKey).(tracker.Service); ok {
		return svc
	}
	return nil
}

// WithForge adds a forge Provider to the context
func WithForge(ctx context.Context, provider forge.Provider) context.Context {
	return context.WithValue(ctx, forgeServiceKey, provider)
}

// ForgeFromContext extracts the forge Provider from context
func ForgeFromContext(ctx context.Context) forge.Provider {
	if provider, ok := ctx.Value(forgeServiceKey).(forge.Provider); ok {
		return provider
	}
	return nil
}

// WithLLM adds a text Generator to the context
func WithLLM(ctx context.Context, gen llm.Generator) context.Context {
	return context.WithValue(ctx, llmServiceKey, gen)
}

// LLMFromContext extracts the Generator from context
func LLMFromContext(ctx context.Context) llm.Generator {
	if gen, ok := ctx.Value(llmServiceKey).(llm.Generator); ok {
		return gen
	}
	return nil
}

// MustLLMFromContext extracts the Generator or panics
func MustLLMFromContext(ctx context.Context) llm.Generator {
	gen := LLMFromContext(ctx)
	if gen == nil {
		panic("factory: llm.Generator not found in context")
	}
	return gen
}

// WithRepo adds the git repository to the context
func WithRepo(ctx context.Context, repo *git.Repo) context.Context {
	return context.WithValue(ctx, repoServiceKey, repo)
}

// RepoFromContext extracts the git repository from context
func RepoFromContext(ctx context.Context) *git.Repo {
	if repo, ok := ctx.Value(repoServiceKey).(*git.Repo); ok {
		return repo
	}
	return nil
}

// WithDatabaseProvisioner adds an ephemeral DB provisioner to the context
func WithDatabaseProvisioner(ctx context.Context, db deploy.DatabaseProvisioner) context.Context {
	return context.WithValue(ctx, dbServiceKey, db)
}

// DatabaseProvisionerFromContext extracts the provisioner from context.
// Returns nil when deploys are not configured.
func DatabaseProvisionerFromContext(ctx context.Context) deploy.DatabaseProvisioner {
	if db, ok := ctx.Value(dbServiceKey).(deploy.DatabaseProvisioner); ok {
		return db
	}
	return nil
}

// WithPreviewDeployer adds a preview deployer to the context
func WithPreviewDeployer(ctx context.Context, d deploy.PreviewDeployer) context.Context {
	return context.WithValue(ctx, deployServiceKey, d)
}

// PreviewDeployerFromContext extracts the deployer from context.
// Returns nil when deploys are not configured.
func PreviewDeployerFromContext(ctx context.Context) deploy.PreviewDeployer {
	if d, ok := ctx.Value(deployServiceKey).(deploy.PreviewDeployer); ok {
		return d
	}
	return nil
}

// WithTelemetry adds a telemetry Service to the context
func WithTelemetry(ctx context.Context, svc telemetry.Service) context.Context {
	return context.WithValue(ctx, telemetryServiceKey, svc)
}

// TelemetryFromContext extracts the telemetry Service from context.
// Returns nil when telemetry is not configured.
func TelemetryFromContext(ctx context.Context) telemetry.Service {
	if svc, ok := ctx.Value(telemetryServiceKey).(telemetry.Service); ok {
		return svc
	}
	return nil
}

// WithPromptLoader adds a prompt Loader to the context
func WithPromptLoader(ctx context.Context, loader *prompt.Loader) context.Context {
	return context.WithValue(ctx, promptServiceKey, loader)
}

// PromptLoaderFromContext extracts the prompt Loader from context
func PromptLoaderFromContext(ctx context.Context) *prompt.Loader {
	if loader, ok := ctx.Value(promptServiceKey).(*prompt.Loader); ok {
		return loader
	}
	return nil
}

// MustPromptLoaderFromContext extracts the prompt Loader or panics
func MustPromptLoaderFromContext(ctx context.Context) *prompt.Loader {
	loader := PromptLoaderFromContext(ctx)
	if loader == nil {
		panic("factory: prompt.Loader not found in context")
	}
	return loader
}

// WithCommandRunner adds a CommandRunner to the context.
// This allows nodes to execute shell commands through a mockable interface.
func WithCommandRunner(ctx context.Context, runner git.CommandRunner) context.Context {
	return context.WithValue(ctx, runnerServiceKey, runner)
}

// CommandRunnerFromContext extracts the CommandRunner from context.
// Returns nil if not set - callers should fall back to ExecRunner.
func CommandRunnerFromContext(ctx context.Context) git.CommandRunner {
	if runner, ok := ctx.Value(runnerServiceKey).(git.CommandRunner); ok {
		return runner
	}
	return nil
}

// WithNotifier adds a notify.Notifier to the context
func WithNotifier(ctx context.Context, n notify.Notifier) context.Context {
	return context.WithValue(ctx, notifierServiceKey, n)
}

// NotifierFromContext extracts the Notifier from context.
// Returns a NopNotifier when none is configured so callers can always emit.
func NotifierFromContext(ctx context.Context) notify.Notifier {
	if n, ok := ctx.Value(notifierServiceKey).(notify.Notifier); ok {
		return n
	}
	return notify.NopNotifier{}
}

// GetCommandRunner returns the CommandRunner from context, or a default
// ExecRunner. Always returns a usable runner.
func GetCommandRunner(ctx context.Context) git.CommandRunner {
	if runner := CommandRunnerFromContext(ctx); runner != nil {
		return runner
	}
	return git.NewExecRunner()
}

// Services wraps all pipeline services for convenient initialization
type Services struct {
	Tracker   tracker.Service
	Forge     forge.Provider
	LLM       llm.Generator
	Repo      *git.Repo
	DB        deploy.DatabaseProvisioner // Optional; nil skips ephemeral DBs
	Deployer  deploy.PreviewDeployer     // Optional; nil skips preview deploys
	Telemetry telemetry.Service          // Optional; nil skips spike detection
	Prompts   *prompt.Loader
	Runner    git.CommandRunner // Optional; defaults to ExecRunner
	Notifier  notify.Notifier   // Optional; defaults to logging
}

// InjectAll adds all configured services to the context
func (s *Services) InjectAll(ctx context.Context) context.Context {
	if s.Tracker != nil {
		ctx = WithTracker(ctx, s.Tracker)
	}
	if s.Forge != nil {
		ctx = WithForge(ctx, s.Forge)
	}
	if s.LLM != nil {
		ctx = WithLLM(ctx, s.LLM)
	}
	if s.Repo != nil {
		ctx = WithRepo(ctx, s.Repo)
	}
	if s.DB != nil {
		ctx = WithDatabaseProvisioner(ctx, s.DB)
	}
	if s.Deployer != nil {
		ctx = WithPreviewDeployer(ctx, s.Deployer)
	}
	if s.Telemetry != nil {
		ctx = WithTelemetry(ctx, s.Telemetry)
	}
	if s.Prompts != nil {
		ctx = WithPromptLoader(ctx, s.Prompts)
	}
	if s.Runner != nil {
		ctx = WithCommandRunner(ctx, s.Runner)
	}
	if s.Notifier != nil {
		ctx = WithNotifier(ctx, s.Notifier)
	}
	return ctx
}

// NewServices builds production services from resolved settings. Optional
// integrations (deploy, telemetry) are left nil when unconfigured so the
// corresponding stages skip.
func NewServices(settings *config.Settings) (*Services, error) {
	s := &Services{}

	if settings.LinearAPIKey != "" {
		linear, err := tracker.NewLinear(tracker.LinearConfig{APIKey: settings.LinearAPIKey})
		if err != nil {
			return nil, err
		}
		s.Tracker = linear
	}

	switch settings.Forge {
	case "gitlab":
		if settings.GitLabToken != "" {
			gl, err := forge.NewGitLab(settings.GitLabToken, "", settings.GitLabProject)
			if err != nil {
				return nil, err
			}
			s.Forge = gl
		}
	default:
		if settings.GitHubToken != "" && settings.GitHubOwner != "" {
			gh, err := forge.NewGitHub(settings.GitHubToken, settings.GitHubOwner, settings.GitHubRepo)
			if err != nil {
				return nil, err
			}
			s.Forge = gh
		}
	}

	gen, err := llm.NewClaudeCLI(llm.ClaudeConfig{
		Model:   settings.Model,
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	s.LLM = gen

	repo, err := git.NewRepo(settings.Workspace)
	if err != nil {
		return nil, err
	}
	s.Repo = repo

	if db, err := deploy.NewNeon(deploy.NeonConfig{
		APIKey:    settings.NeonAPIKey,
		ProjectID: settings.NeonProjectID,
	}); err == nil {
		s.DB = db
	}
	if d, err := deploy.NewVercel(deploy.VercelConfig{
		Token:   settings.VercelToken,
		Project: settings.VercelProject,
		Dir:     settings.Workspace,
	}); err == nil {
		s.Deployer = d
	}
	if t, err := telemetry.NewSentry(telemetry.SentryConfig{
		AuthToken: settings.SentryToken,
		Org:       settings.SentryOrg,
		Project:   settings.SentryProject,
	}); err == nil {
		s.Telemetry = t
	}

	if settings.SlackWebhookURL != "" {
		var opts []notify.SlackOption
		if settings.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(settings.SlackChannel))
		}
		s.Notifier = notify.NewMultiNotifier(
			notify.NewSlackNotifier(settings.SlackWebhookURL, opts...),
			notify.NewLogNotifier(nil),
		)
	} else {
		s.Notifier = notify.NewLogNotifier(nil)
	}

	s.Prompts = prompt.NewLoader(settings.Workspace)
	return s, nil
}
