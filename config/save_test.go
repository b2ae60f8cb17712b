package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func readSaved(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("parse saved config: %v", err)
	}
	return m
}

func TestSaveConfig_SaveGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := SaveConfig{
		GlobalConfigDir: "factorytest",
		ValidGlobalKeys: []string{KeyLinearAPIKey, KeyBaseBranch},
	}

	if err := cfg.SaveGlobal(KeyLinearAPIKey, "lin_api_abc"); err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}

	path := filepath.Join(home, ".config", "factorytest", "config.yaml")
	saved := readSaved(t, path)
	if saved[KeyLinearAPIKey] != "lin_api_abc" {
		t.Errorf("linear_api_key = %v", saved[KeyLinearAPIKey])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestSaveConfig_SaveGlobal_PreservesExistingKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := SaveConfig{GlobalConfigDir: "factorytest"}
	if err := cfg.SaveGlobal(KeyBaseBranch, "main"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SaveGlobal(KeyWorkspace, "/srv/repo"); err != nil {
		t.Fatal(err)
	}

	saved := readSaved(t, filepath.Join(home, ".config", "factorytest", "config.yaml"))
	if saved[KeyBaseBranch] != "main" {
		t.Errorf("base_branch = %v, want main", saved[KeyBaseBranch])
	}
	if saved[KeyWorkspace] != "/srv/repo" {
		t.Errorf("workspace = %v, want /srv/repo", saved[KeyWorkspace])
	}
}

func TestSaveConfig_SaveGlobal_RejectsUnknownKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := SaveConfig{
		GlobalConfigDir: "factorytest",
		ValidGlobalKeys: []string{KeyBaseBranch},
	}
	if err := cfg.SaveGlobal("bogus", "value"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSaveConfig_SaveGlobal_BoolValue(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := SaveConfig{GlobalConfigDir: "factorytest"}
	if err := cfg.SaveGlobal("draft", "true"); err != nil {
		t.Fatal(err)
	}

	saved := readSaved(t, filepath.Join(home, ".config", "factorytest", "config.yaml"))
	if saved["draft"] != true {
		t.Errorf("draft = %v (%T), want true bool", saved["draft"], saved["draft"])
	}
}

func TestSaveConfig_SaveLocal(t *testing.T) {
	gitRoot := t.TempDir()
	cfg := SaveConfig{LocalConfigName: ".factory.yaml"}

	if err := cfg.SaveLocal(gitRoot, KeyBaseBranch, "develop"); err != nil {
		t.Fatalf("SaveLocal: %v", err)
	}

	saved := readSaved(t, filepath.Join(gitRoot, ".factory.yaml"))
	if saved[KeyBaseBranch] != "develop" {
		t.Errorf("base_branch = %v, want develop", saved[KeyBaseBranch])
	}
}

func TestSaveConfig_SaveLocal_RequiresGitRoot(t *testing.T) {
	cfg := SaveConfig{LocalConfigName: ".factory.yaml"}
	if err := cfg.SaveLocal("", KeyBaseBranch, "main"); err == nil {
		t.Error("expected error for missing git root")
	}
}

func TestSaveConfig_DeleteGlobalKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := SaveConfig{GlobalConfigDir: "factorytest"}
	if err := cfg.SaveGlobal(KeyBaseBranch, "main"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SaveGlobal(KeyWorkspace, "/srv/repo"); err != nil {
		t.Fatal(err)
	}

	if err := cfg.DeleteGlobalKey(KeyBaseBranch); err != nil {
		t.Fatalf("DeleteGlobalKey: %v", err)
	}

	saved := readSaved(t, filepath.Join(home, ".config", "factorytest", "config.yaml"))
	if _, ok := saved[KeyBaseBranch]; ok {
		t.Error("base_branch still present after delete")
	}
	if saved[KeyWorkspace] != "/srv/repo" {
		t.Error("unrelated key lost during delete")
	}
}

func TestSaveConfig_DeleteGlobalKey_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := SaveConfig{GlobalConfigDir: "factorytest"}
	if err := cfg.DeleteGlobalKey(KeyBaseBranch); err != nil {
		t.Errorf("DeleteGlobalKey on missing file: %v", err)
	}
}
