package git

import (
	"regexp"
	"strings"
)

// =============== Branch Naming ===============

// branchPrefix namespaces every branch the pipeline creates so that
// human branches are never touched by automation.
const branchPrefix = "ai"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts free text into a branch-safe slug: lowercase,
// hyphen-separated, at most 40 characters, never ending in a hyphen.
func Slugify(s string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}

// WorkItemBranch returns the branch name for one item of a stacked
// pull-request chain, e.g. "ai/eng-421/contract".
func WorkItemBranch(issueID, kind string) string {
	return branchPrefix + "/" + strings.ToLower(issueID) + "/" + strings.ToLower(kind)
}

// TaskBranch returns the branch name for a run that has no tracker
// issue, derived from the task description.
func TaskBranch(description string) string {
	slug := Slugify(description)
	if slug == "" {
		slug = "task"
	}
	return branchPrefix + "/" + slug
}

var branchRe = regexp.MustCompile(`^` + branchPrefix + `/([a-z0-9-]+)/([a-z0-9-]+)$`)

// ParseBranch extracts the issue identifier and kind from a pipeline
// branch name. Returns ok=false for branches the pipeline did not create.
func ParseBranch(branch string) (issueID, kind string, ok bool) {
	m := branchRe.FindStringSubmatch(branch)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsPipelineBranch reports whether the branch was created by the pipeline.
func IsPipelineBranch(branch string) bool {
	return strings.HasPrefix(branch, branchPrefix+"/")
}
