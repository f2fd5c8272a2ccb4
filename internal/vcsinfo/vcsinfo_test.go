package vcsinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	filePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(t, err)

	return dir
}

func TestResolver_ResolveReturnsBranchAndCommit(t *testing.T) {
	dir := initTestRepo(t)
	r := NewResolver()

	info, err := r.Resolve(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, info.CommitSHA)
	assert.False(t, info.Dirty)
}

func TestResolver_ResolveNonRepoFails(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(t.TempDir())
	assert.Error(t, err)
}

func TestResolveCommit_ResolvesHEAD(t *testing.T) {
	dir := initTestRepo(t)
	sha, err := ResolveCommit(dir, "HEAD")
	require.NoError(t, err)
	assert.Len(t, sha, 40)
}
