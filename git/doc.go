// Package git wraps the git CLI for the operations the pipeline needs:
// branch creation, committing, pushing, and merge reverts.
//
// Core types:
//   - Repo: a working copy bound to a directory and a remote
//   - CommandRunner: interface for executing git commands (with mock for testing)
//
// Example usage:
//
//	repo, err := git.NewRepo("/path/to/repo")
//	if err != nil {
//		return err
//	}
//	if err := repo.CheckoutOrCreate(ctx, "ai/eng-421/backend", "main"); err != nil {
//		return err
//	}
//	err = repo.CommitAll(ctx, "Implement backend for ENG-421")
package git
