package forge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseRepoFromURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"https", "https://github.com/acme/widgets.git", "acme", "widgets", false},
		{"https no suffix", "https://github.com/acme/widgets", "acme", "widgets", false},
		{"ssh", "git@github.com:acme/widgets.git", "acme", "widgets", false},
		{"self-hosted gitlab", "https://git.example.com/acme/widgets.git", "acme", "widgets", false},
		{"garbage", "not-a-url", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoFromURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoFromURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("ParseRepoFromURL(%q) = %q/%q, want %q/%q", tt.url, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestParsePRURL(t *testing.T) {
	owner, repo, number, err := ParsePRURL("https://github.com/acme/widgets/pull/42")
	if err != nil {
		t.Fatalf("ParsePRURL() error = %v", err)
	}
	if owner != "acme" || repo != "widgets" || number != 42 {
		t.Errorf("ParsePRURL() = %q/%q #%d, want acme/widgets #42", owner, repo, number)
	}

	if _, _, _, err := ParsePRURL("https://github.com/acme/widgets"); err == nil {
		t.Error("ParsePRURL() = nil error for non-PR URL")
	}
}

func TestFindPRURL(t *testing.T) {
	comments := []string{
		"Working on it.",
		"PR created: https://github.com/acme/widgets/pull/7 please review",
	}
	url, ok := FindPRURL(comments)
	if !ok || url != "https://github.com/acme/widgets/pull/7" {
		t.Errorf("FindPRURL() = %q, %v", url, ok)
	}

	if _, ok := FindPRURL([]string{"no links here"}); ok {
		t.Error("FindPRURL() found a URL in plain text")
	}
}

func TestMock_CreateAndGet(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	pr, err := m.CreatePR(ctx, Options{Title: "Add login", Head: "ai/ENG-1/backend"})
	if err != nil {
		t.Fatalf("CreatePR() error = %v", err)
	}
	if pr.Base != "main" {
		t.Errorf("Base = %q, want main", pr.Base)
	}

	got, err := m.GetPR(ctx, pr.Number)
	if err != nil {
		t.Fatalf("GetPR() error = %v", err)
	}
	if got.Title != "Add login" || got.State != StateOpen {
		t.Errorf("GetPR() = %+v", got)
	}

	// Second PR from the same open branch is a duplicate.
	if _, err := m.CreatePR(ctx, Options{Title: "again", Head: "ai/ENG-1/backend"}); !errors.Is(err, ErrPRExists) {
		t.Errorf("CreatePR() error = %v, want ErrPRExists", err)
	}
}

func TestPullRequest_Merged(t *testing.T) {
	now := time.Now()
	if (&PullRequest{State: StateOpen}).Merged() {
		t.Error("open PR reported merged")
	}
	if !(&PullRequest{State: StateMerged}).Merged() {
		t.Error("merged state not reported")
	}
	if !(&PullRequest{State: StateClosed, MergedAt: &now}).Merged() {
		t.Error("MergedAt not reported")
	}
}
