package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Pipeline configuration keys. Environment overrides use the FACTORY_
// prefix, e.g. FACTORY_LINEAR_API_KEY.
const (
	KeyLinearAPIKey  = "linear_api_key"
	KeyLinearTeamKey = "linear_team_key"

	KeyForge         = "forge" // "github" or "gitlab"
	KeyGitHubToken   = "github_token"
	KeyGitHubOwner   = "github_owner"
	KeyGitHubRepo    = "github_repo"
	KeyGitLabToken   = "gitlab_token"
	KeyGitLabProject = "gitlab_project"

	KeyNeonAPIKey    = "neon_api_key"
	KeyNeonProjectID = "neon_project_id"
	KeyVercelToken   = "vercel_token"
	KeyVercelProject = "vercel_project"

	KeySentryToken   = "sentry_token"
	KeySentryOrg     = "sentry_org"
	KeySentryProject = "sentry_project"

	KeySlackWebhookURL = "slack_webhook_url"
	KeySlackChannel    = "slack_channel"

	KeyWorkspace    = "workspace"
	KeyBaseBranch   = "base_branch"
	KeyPollInterval = "poll_interval_seconds"
	KeyModel        = "model"
)

// allKeys lists every key the pipeline understands, for save validation.
var allKeys = []string{
	KeyLinearAPIKey, KeyLinearTeamKey,
	KeyForge, KeyGitHubToken, KeyGitHubOwner, KeyGitHubRepo,
	KeyGitLabToken, KeyGitLabProject,
	KeyNeonAPIKey, KeyNeonProjectID, KeyVercelToken, KeyVercelProject,
	KeySentryToken, KeySentryOrg, KeySentryProject,
	KeySlackWebhookURL, KeySlackChannel,
	KeyWorkspace, KeyBaseBranch, KeyPollInterval, KeyModel,
}

// defaults provides built-in values for optional keys.
var defaults = map[string]string{
	KeyForge:         "github",
	KeyLinearTeamKey: "ENG",
	KeyBaseBranch:    "main",
	KeyWorkspace:     ".",
	KeyPollInterval:  "30",
}

// Settings is the resolved pipeline configuration.
type Settings struct {
	LinearAPIKey  string
	LinearTeamKey string

	Forge         string
	GitHubToken   string
	GitHubOwner   string
	GitHubRepo    string
	GitLabToken   string
	GitLabProject string

	NeonAPIKey    string
	NeonProjectID string
	VercelToken   string
	VercelProject string

	SentryToken   string
	SentryOrg     string
	SentryProject string

	SlackWebhookURL string
	SlackChannel    string

	Workspace           string
	BaseBranch          string
	PollIntervalSeconds int
	Model               string
}

// NewPipelineResolver creates the resolver for pipeline configuration:
// defaults < ~/.config/factory/config.yaml < .factory.yaml < FACTORY_* env.
func NewPipelineResolver() *Resolver {
	return NewResolver(ResolverConfig{
		EnvPrefix:       "FACTORY_",
		GlobalConfigDir: "factory",
		LocalConfigName: ".factory.yaml",
		Defaults:        defaults,
		ValidGlobalKeys: allKeys,
		ValidLocalKeys:  allKeys,
	})
}

// NewPipelineSaver creates the saver matching NewPipelineResolver.
func NewPipelineSaver() SaveConfig {
	return SaveConfig{
		GlobalConfigDir: "factory",
		LocalConfigName: ".factory.yaml",
		ValidGlobalKeys: allKeys,
		ValidLocalKeys:  allKeys,
	}
}

// Load resolves pipeline settings from all sources.
func Load() (*Settings, error) {
	return FromResolved(NewPipelineResolver().Resolve())
}

// FromResolved converts resolved key-value config into typed Settings.
func FromResolved(resolved *Resolved) (*Settings, error) {
	s := &Settings{
		LinearAPIKey:  resolved.Get(KeyLinearAPIKey),
		LinearTeamKey: resolved.Get(KeyLinearTeamKey),
		Forge:         strings.ToLower(resolved.Get(KeyForge)),
		GitHubToken:   resolved.Get(KeyGitHubToken),
		GitHubOwner:   resolved.Get(KeyGitHubOwner),
		GitHubRepo:    resolved.Get(KeyGitHubRepo),
		GitLabToken:   resolved.Get(KeyGitLabToken),
		GitLabProject: resolved.Get(KeyGitLabProject),
		NeonAPIKey:    resolved.Get(KeyNeonAPIKey),
		NeonProjectID: resolved.Get(KeyNeonProjectID),
		VercelToken:   resolved.Get(KeyVercelToken),
		VercelProject: resolved.Get(KeyVercelProject),
		SentryToken:   resolved.Get(KeySentryToken),
		SentryOrg:     resolved.Get(KeySentryOrg),
		SentryProject: resolved.Get(KeySentryProject),

		SlackWebhookURL: resolved.Get(KeySlackWebhookURL),
		SlackChannel:    resolved.Get(KeySlackChannel),

		Workspace:     resolved.Get(KeyWorkspace),
		BaseBranch:    resolved.Get(KeyBaseBranch),
		Model:         resolved.Get(KeyModel),
	}

	if raw := resolved.Get(KeyPollInterval); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", KeyPollInterval, raw)
		}
		s.PollIntervalSeconds = n
	}

	return s, s.Validate()
}

// Validate checks cross-field consistency. Missing credentials for optional
// integrations (deploy, telemetry) are allowed; those stages degrade to
// skips at runtime.
func (s *Settings) Validate() error {
	switch s.Forge {
	case "github":
		// Token may come from a GitHub App instead; owner/repo are
		// required either way.
		if (s.GitHubOwner == "") != (s.GitHubRepo == "") {
			return fmt.Errorf("github_owner and github_repo must be set together")
		}
	case "gitlab":
		if s.GitLabToken != "" && s.GitLabProject == "" {
			return fmt.Errorf("gitlab_project required when gitlab_token is set")
		}
	default:
		return fmt.Errorf("unknown forge %q (want github or gitlab)", s.Forge)
	}
	return nil
}
