// Package workspace prepares the local repository for a fix: it syncs the
// base branch, cuts a fix branch, and commits and pushes the result.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

// ErrNothingToCommit is returned by Commit when the worktree has no changes.
var ErrNothingToCommit = errors.New("nothing to commit")

// Options configures a Workspace.
type Options struct {
	RepoPath    string
	BaseBranch  string
	Remote      string
	Pull        bool
	Push        bool
	AuthorName  string
	AuthorEmail string
	Username    string
	Token       string
	Logger      *zap.Logger
}

// Workspace wraps a local git repository.
type Workspace struct {
	opts   Options
	auth   transport.AuthMethod
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Workspace. The repository is opened lazily per operation.
func New(opts Options) *Workspace {
	if opts.BaseBranch == "" {
		opts.BaseBranch = "master"
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	w := &Workspace{opts: opts, logger: opts.Logger, now: time.Now}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if opts.Token != "" {
		user := opts.Username
		if user == "" {
			user = "sonarfix"
		}
		w.auth = &githttp.BasicAuth{Username: user, Password: opts.Token}
	}
	return w
}

// Root returns the absolute repository path.
func (w *Workspace) Root() string {
	abs, err := filepath.Abs(w.opts.RepoPath)
	if err != nil {
		return w.opts.RepoPath
	}
	return abs
}

// Prepare checks out the base branch, pulls it from the remote when enabled,
// and switches to branch, creating it from the base if it does not exist.
func (w *Workspace) Prepare(ctx context.Context, branch string) error {
	if strings.TrimSpace(branch) == "" {
		return fmt.Errorf("prepare workspace: empty branch name")
	}
	repo, wt, err := w.open()
	if err != nil {
		return err
	}

	base := plumbing.NewBranchReferenceName(w.opts.BaseBranch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: base}); err != nil {
		return fmt.Errorf("checkout %s: %w", w.opts.BaseBranch, err)
	}

	if w.opts.Pull {
		err := wt.PullContext(ctx, &git.PullOptions{
			RemoteName:    w.opts.Remote,
			ReferenceName: base,
			SingleBranch:  true,
			Auth:          w.auth,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("pull %s %s: %w", w.opts.Remote, w.opts.BaseBranch, err)
		}
	}

	ref := plumbing.NewBranchReferenceName(branch)
	_, err = repo.Reference(ref, true)
	switch {
	case err == nil:
		// Resumed run: the branch was cut before the crash.
		w.logger.Info("reusing existing branch", zap.String("branch", branch))
		if err := wt.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
			return fmt.Errorf("checkout %s: %w", branch, err)
		}
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true}); err != nil {
			return fmt.Errorf("create branch %s: %w", branch, err)
		}
	default:
		return fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	return nil
}

// CurrentBranch returns the short name of HEAD, or "" when detached.
func (w *Workspace) CurrentBranch() (string, error) {
	repo, err := git.PlainOpen(w.opts.RepoPath)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", w.opts.RepoPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// Commit stages the given paths (relative to the repository root) and
// commits them. It returns the new commit hash.
func (w *Workspace) Commit(paths []string, message string) (string, error) {
	_, wt, err := w.open()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		rel, err := w.relative(p)
		if err != nil {
			return "", err
		}
		if _, err := wt.Add(rel); err != nil {
			return "", fmt.Errorf("git add %s: %w", rel, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	staged := false
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return "", ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  w.opts.AuthorName,
			Email: w.opts.AuthorEmail,
			When:  w.now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return hash.String(), nil
}

// Push publishes branch to the remote. It is a no-op when push is disabled.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	if !w.opts.Push {
		return nil
	}
	repo, err := git.PlainOpen(w.opts.RepoPath)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", w.opts.RepoPath, err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: w.opts.Remote,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       w.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s %s: %w", w.opts.Remote, branch, err)
	}
	return nil
}

func (w *Workspace) open() (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpen(w.opts.RepoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open repository %s: %w", w.opts.RepoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("open worktree: %w", err)
	}
	return repo, wt, nil
}

func (w *Workspace) relative(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(w.Root(), p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside repository %s", p, w.Root())
	}
	return filepath.ToSlash(rel), nil
}
