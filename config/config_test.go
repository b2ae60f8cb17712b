package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_Defaults(t *testing.T) {
	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults: map[string]string{
			KeyForge:      "github",
			KeyBaseBranch: "main",
		},
	}, "", "")

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyForge); got != "github" {
		t.Errorf("forge = %q, want github", got)
	}
	if got := cfg.Source(KeyForge); got != SourceDefault {
		t.Errorf("source = %q, want %q", got, SourceDefault)
	}
}

func TestResolver_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("TESTFACTORY_BASE_BRANCH", "develop")

	resolver := NewResolverWithPaths(ResolverConfig{
		EnvPrefix: "TESTFACTORY_",
		Defaults: map[string]string{
			KeyBaseBranch: "main",
		},
	}, "", "")

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyBaseBranch); got != "develop" {
		t.Errorf("base_branch = %q, want develop", got)
	}
	if got := cfg.Source(KeyBaseBranch); got != SourceEnv {
		t.Errorf("source = %q, want %q", got, SourceEnv)
	}
}

func TestResolver_EnvForKeyWithoutDefault(t *testing.T) {
	t.Setenv("TESTFACTORY_LINEAR_API_KEY", "lin_api_test")

	resolver := NewResolverWithPaths(ResolverConfig{
		EnvPrefix:       "TESTFACTORY_",
		ValidGlobalKeys: []string{KeyLinearAPIKey},
	}, "", "")

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyLinearAPIKey); got != "lin_api_test" {
		t.Errorf("linear_api_key = %q, want lin_api_test", got)
	}
}

func TestResolver_GlobalConfig(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalPath, "linear_team_key: PLAT\n")

	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults: map[string]string{
			KeyLinearTeamKey: "ENG",
		},
	}, globalPath, "")

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyLinearTeamKey); got != "PLAT" {
		t.Errorf("linear_team_key = %q, want PLAT", got)
	}
	if got := cfg.Source(KeyLinearTeamKey); got != SourceGlobal {
		t.Errorf("source = %q, want %q", got, SourceGlobal)
	}
}

func TestResolver_Priority(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "config.yaml")
	localPath := filepath.Join(dir, ".factory.yaml")
	writeFile(t, globalPath, "base_branch: global\n")
	writeFile(t, localPath, "base_branch: local\n")
	t.Setenv("TESTFACTORY_BASE_BRANCH", "env")

	resolver := NewResolverWithPaths(ResolverConfig{
		EnvPrefix: "TESTFACTORY_",
		Defaults: map[string]string{
			KeyBaseBranch: "main",
		},
	}, globalPath, localPath)

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyBaseBranch); got != "env" {
		t.Errorf("base_branch = %q, want env (highest priority)", got)
	}
}

func TestResolver_LocalOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "config.yaml")
	localPath := filepath.Join(dir, ".factory.yaml")
	writeFile(t, globalPath, "workspace: /global\n")
	writeFile(t, localPath, "workspace: /local\n")

	resolver := NewResolverWithPaths(ResolverConfig{}, globalPath, localPath)
	cfg := resolver.Resolve()

	if got := cfg.Get(KeyWorkspace); got != "/local" {
		t.Errorf("workspace = %q, want /local", got)
	}
	if got := cfg.Source(KeyWorkspace); got != SourceLocal {
		t.Errorf("source = %q, want %q", got, SourceLocal)
	}
}

func TestResolver_IgnoresUnknownKeys(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalPath, "base_branch: main\nbogus_key: value\n")

	resolver := NewResolverWithPaths(ResolverConfig{
		ValidGlobalKeys: []string{KeyBaseBranch},
	}, globalPath, "")

	cfg := resolver.Resolve()

	if got := cfg.Get(KeyBaseBranch); got != "main" {
		t.Errorf("base_branch = %q, want main", got)
	}
	if got := cfg.Get("bogus_key"); got != "" {
		t.Errorf("bogus_key = %q, want empty", got)
	}
}

func TestResolver_WarnsOnMalformedFile(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalPath, "{{not yaml")

	resolver := NewResolverWithPaths(ResolverConfig{
		ErrWriter: io.Discard,
	}, globalPath, "")
	resolver.Resolve()

	if len(resolver.Warnings) == 0 {
		t.Error("expected a warning for malformed config")
	}
}

func TestResolver_BoolValues(t *testing.T) {
	globalPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalPath, "draft: true\n")

	resolver := NewResolverWithPaths(ResolverConfig{}, globalPath, "")
	cfg := resolver.Resolve()

	if got := cfg.Get("draft"); got != "true" {
		t.Errorf("draft = %q, want %q", got, "true")
	}
}

func TestResolved_All(t *testing.T) {
	resolver := NewResolverWithPaths(ResolverConfig{
		Defaults: map[string]string{
			KeyForge:      "github",
			KeyBaseBranch: "main",
		},
	}, "", "")

	all := resolver.Resolve().All()
	if len(all) != 2 {
		t.Errorf("got %d keys, want 2", len(all))
	}
	if all[KeyForge] != "github" {
		t.Errorf("forge = %q, want github", all[KeyForge])
	}
}

func TestFindGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	if root := findGitRoot(nested); root != tmpDir {
		t.Errorf("findGitRoot() = %q, want %q", root, tmpDir)
	}
}

func TestFindGitRoot_NotFound(t *testing.T) {
	if root := findGitRoot(t.TempDir()); root != "" {
		t.Errorf("findGitRoot() = %q, want empty", root)
	}
}
