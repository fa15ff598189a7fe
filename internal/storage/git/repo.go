// Package git keeps a commit history of backup snapshots using go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is one entry of the history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"` // Subject line.
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// Repo is a git repository in a plain directory.
type Repo struct {
	dir   string
	name  string
	email string

	mu   sync.Mutex
	repo *gogit.Repository
}

// Open opens the repository in dir, initializing it when needed.
func Open(dir, name, email string) (*Repo, error) {
	if name == "" {
		name = "typeimage"
	}
	if email == "" {
		email = "typeimage@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directories are user readable.
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &Repo{dir: dir, name: name, email: email, repo: repo}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Commit stages files (relative to the working directory) and commits them.
//
// Nothing is committed when the files are unchanged. Returns whether a commit
// was created.
func (r *Repo) Commit(_ context.Context, msg string, files ...string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(f); err != nil {
			return false, fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	// Other untracked files in the directory do not count.
	staged := false
	for _, f := range files {
		if fs, ok := status[f]; ok && fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			staged = true
		}
	}
	if !staged {
		return false, nil
	}
	sig := &object.Signature{Name: r.name, Email: r.email, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// History returns up to n commits touching path, newest first.
//
// An empty repository has no history; that is not an error.
func (r *Repo) History(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, &Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			Date:    c.Author.When,
		})
	}
	return commits, nil
}

// FileAt returns the content of path at the commit; "HEAD" is accepted.
func (r *Repo) FileAt(_ context.Context, hash, path string) ([]byte, error) {
	h := plumbing.NewHash(hash)
	if hash == "HEAD" {
		ref, err := r.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		h = ref.Hash()
	}
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	f, err := c.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file at commit: %w", err)
	}
	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}
