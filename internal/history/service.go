// Package history keeps every saved snapshot as a commit in a local git
// repository so earlier revisions can be listed and restored.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"folio/internal/content"
)

var (
	ErrNoHistory = errors.New("no revisions recorded")
	ErrNotFound  = errors.New("revision not found")
)

// One file per part so a revision shows which parts it touched.
var partFiles = []struct {
	part string
	file string
}{
	{"content", "content.json"},
	{"styles", "styles.json"},
	{"sections", "sections.json"},
}

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Changed   []string  `json:"changed"`
}

type Service struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) *Service {
	return &Service{dir: dir, now: time.Now}
}

// Record commits snap. A snapshot identical to the head revision is not
// committed again; the head is returned with created=false.
func (s *Service) Record(snap content.Snapshot, author, message string) (Revision, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.openOrInit()
	if err != nil {
		return Revision{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}

	snap = snap.Normalize()
	parts := map[string]any{
		"content":  snap.Content,
		"styles":   snap.Styles,
		"sections": snap.Sections,
	}
	for _, pf := range partFiles {
		payload, err := json.MarshalIndent(parts[pf.part], "", "  ")
		if err != nil {
			return Revision{}, false, fmt.Errorf("marshal %s: %w", pf.part, err)
		}
		if err := os.WriteFile(filepath.Join(s.dir, pf.file), append(payload, '\n'), 0o644); err != nil {
			return Revision{}, false, fmt.Errorf("write %s: %w", pf.file, err)
		}
		if _, err := worktree.Add(pf.file); err != nil {
			return Revision{}, false, fmt.Errorf("git add %s: %w", pf.file, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return Revision{}, false, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		head, err := headCommit(repo)
		if err != nil {
			return Revision{}, false, err
		}
		return toRevision(head), false, nil
	}

	if strings.TrimSpace(message) == "" {
		message = "Update content"
	}
	if strings.TrimSpace(author) == "" {
		author = "editor"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@folio.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj), true, nil
}

// List returns up to limit revisions, newest first. limit <= 0 means all.
func (s *Service) List(limit int) ([]Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Revision{}, nil
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Snapshot reads the state recorded at hash, which may be abbreviated.
func (s *Service) Snapshot(hash string) (content.Snapshot, Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return content.Snapshot{}, Revision{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return content.Snapshot{}, Revision{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return content.Snapshot{}, Revision{}, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}

	var snap content.Snapshot
	targets := map[string]any{
		"content":  &snap.Content,
		"styles":   &snap.Styles,
		"sections": &snap.Sections,
	}
	for _, pf := range partFiles {
		if err := readJSONFromCommit(commitObj, pf.file, targets[pf.part]); err != nil {
			return content.Snapshot{}, Revision{}, err
		}
	}
	snap.UpdatedAt = commitObj.Author.When.UTC()
	return snap.Normalize(), toRevision(commitObj), nil
}

func (s *Service) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(s.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readJSONFromCommit(commitObj *object.Commit, name string, target any) error {
	file, err := commitObj.File(name)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s from commit: %w", name, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return fmt.Errorf("open %s reader: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// changedParts compares each part's blob with the first parent's.
func changedParts(commitObj *object.Commit) []string {
	var parentTree *object.Tree
	if parent, err := commitObj.Parent(0); err == nil {
		parentTree, _ = parent.Tree()
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil
	}

	changed := make([]string, 0, len(partFiles))
	for _, pf := range partFiles {
		current, err := tree.File(pf.file)
		if err != nil {
			continue
		}
		if parentTree == nil {
			changed = append(changed, pf.part)
			continue
		}
		previous, err := parentTree.File(pf.file)
		if err != nil || previous.Hash != current.Hash {
			changed = append(changed, pf.part)
		}
	}
	return changed
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When.UTC(),
		Changed:   changedParts(commitObj),
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return *resolved, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "editor"
	}
	return string(out)
}
