package source

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
)

// GitRepository is a struct that implements the Repository interface for
// entries kept in a Git worktree. Every write or delete is committed, so the
// history of a layout can be inspected or restored with plain git.
type GitRepository struct {
	sync.Mutex                    // Serializes worktree access
	Name          string          // Name of the storage area
	Path          string          // Worktree directory; empty keeps everything in memory
	AuthorName    string          // Commit author, defaults to "fieldview"
	AuthorEmail   string          // Commit author email
	gitRepository *git.Repository // Opened or initialized repository
	fs            billy.Filesystem
}

// Revision is one commit touching an entry.
type Revision struct {
	Hash    string
	When    time.Time
	Message string
}

func (g *GitRepository) GetName() string {
	return g.Name
}

func (g *GitRepository) GetType() string {
	return "git"
}

// open initializes the repository on first use. Callers hold the lock.
func (g *GitRepository) open() error {
	if g.gitRepository != nil {
		return nil
	}
	if g.Path == "" {
		fs := memfs.New()
		r, err := git.Init(memory.NewStorage(), fs)
		if err != nil {
			return errors.Wrap(err, "initializing in-memory repository")
		}
		g.gitRepository, g.fs = r, fs
		return nil
	}

	r, err := git.PlainOpen(g.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logrus.WithField("repository", g.Name).Debugf("initializing %s", g.Path)
		r, err = git.PlainInit(g.Path, false)
	}
	if err != nil {
		return errors.Wrapf(err, "opening git repository %s", g.Path)
	}
	w, err := r.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}
	g.gitRepository, g.fs = r, w.Filesystem
	return nil
}

func (g *GitRepository) signature() *object.Signature {
	name := g.AuthorName
	if name == "" {
		name = "fieldview"
	}
	return &object.Signature{Name: name, Email: g.AuthorEmail, When: time.Now()}
}

// Read returns the entry content from the worktree.
func (g *GitRepository) Read(_ context.Context, entry string) ([]byte, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	g.Lock()
	defer g.Unlock()
	if err := g.open(); err != nil {
		return nil, err
	}

	file, err := g.fs.Open(objectName("", entry))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(entry)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening entry %q", entry)
	}
	defer func(file billy.File) {
		err := file.Close()
		if err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrapf(err, "reading entry %q", entry)
	}
	return data, nil
}

// Write stores the entry and commits it. Writing identical content creates no commit.
func (g *GitRepository) Write(_ context.Context, entry string, data []byte) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	g.Lock()
	defer g.Unlock()
	if err := g.open(); err != nil {
		return err
	}

	name := objectName("", entry)
	file, err := g.fs.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating entry %q", entry)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "writing entry %q", entry)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "closing entry %q", entry)
	}

	w, err := g.gitRepository.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}
	if _, err := w.Add(name); err != nil {
		return errors.Wrapf(err, "staging entry %q", entry)
	}
	return g.commit(w, "update "+entry)
}

// Delete removes the entry and commits the removal.
func (g *GitRepository) Delete(_ context.Context, entry string) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	g.Lock()
	defer g.Unlock()
	if err := g.open(); err != nil {
		return err
	}

	name := objectName("", entry)
	if _, err := g.fs.Stat(name); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	w, err := g.gitRepository.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}
	if _, err := w.Remove(name); err != nil {
		// Never committed: drop the stray file only.
		if rmErr := g.fs.Remove(name); rmErr != nil {
			return errors.Wrapf(rmErr, "removing entry %q", entry)
		}
		return nil
	}
	return g.commit(w, "delete "+entry)
}

func (g *GitRepository) commit(w *git.Worktree, message string) error {
	status, err := w.Status()
	if err != nil {
		return errors.Wrap(err, "reading worktree status")
	}
	if status.IsClean() {
		logrus.WithField("repository", g.Name).Debug("nothing to commit")
		return nil
	}
	// Removing the last entry leaves an empty index, which go-git refuses
	// without AllowEmptyCommits. Unchanged trees were caught by the status check.
	hash, err := w.Commit(message, &git.CommitOptions{Author: g.signature(), AllowEmptyCommits: true})
	if err != nil {
		return errors.Wrap(err, "committing")
	}
	logrus.WithField("repository", g.Name).Debugf("committed %s: %s", hash.String()[:7], message)
	return nil
}

// History lists the commits that touched entry, newest first.
func (g *GitRepository) History(_ context.Context, entry string) ([]Revision, error) {
	if err := checkEntry(entry); err != nil {
		return nil, err
	}
	g.Lock()
	defer g.Unlock()
	if err := g.open(); err != nil {
		return nil, err
	}
	if _, err := g.gitRepository.Head(); err != nil {
		// No commits yet.
		return nil, nil
	}

	name := objectName("", entry)
	iter, err := g.gitRepository.Log(&git.LogOptions{FileName: &name})
	if err != nil {
		return nil, errors.Wrap(err, "reading log")
	}
	defer iter.Close()

	var revisions []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		revisions = append(revisions, Revision{
			Hash:    c.Hash.String(),
			When:    c.Author.When,
			Message: c.Message,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking log")
	}
	return revisions, nil
}
