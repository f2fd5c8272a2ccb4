// Package vcsinfo resolves branch and commit identity for a working tree,
// enriching Observation/Provenance records (spec.md §3's "branch, commit")
// and backing the `vcs` tool (spec.md §4.7). Built on go-git/go-git/v5
// rather than shelling out to git, matching how the rest of the module
// favors Go-native libraries over exec.Command.
package vcsinfo

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

// Info is the resolved VCS identity of a working tree at a point in time.
type Info struct {
	Branch    string
	CommitSHA string
	Dirty     bool
	RemoteURL string
}

// Resolver resolves Info for repository paths.
type Resolver struct{}

// NewResolver builds a Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve opens the git repository at repoPath and reads its current
// branch, HEAD commit, remote URL, and worktree dirtiness.
func (r *Resolver) Resolve(repoPath string) (Info, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return Info{}, mcberrors.VcsError("failed to open repository at "+repoPath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, mcberrors.VcsError("failed to resolve HEAD", err)
	}

	info := Info{CommitSHA: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	if remotes, err := repo.Remotes(); err == nil {
		for _, remote := range remotes {
			if remote.Config().Name == "origin" && len(remote.Config().URLs) > 0 {
				info.RemoteURL = remote.Config().URLs[0]
				break
			}
		}
	}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			info.Dirty = !status.IsClean()
		}
	}

	return info, nil
}

// ResolveCommit resolves a ref (branch, tag, or partial SHA) to its full
// commit SHA.
func ResolveCommit(repoPath, ref string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", mcberrors.VcsError("failed to open repository at "+repoPath, err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", mcberrors.VcsError("failed to resolve revision "+ref, err)
	}
	return hash.String(), nil
}
