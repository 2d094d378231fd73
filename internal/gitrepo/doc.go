// Package gitrepo contains helpers for interrogating Git repositories.
//
// It exposes RepositoryManager for checking working-tree membership, worktree
// cleanliness, and the current branch, consumed by the updater service that
// needs structured Git operations.
package gitrepo
