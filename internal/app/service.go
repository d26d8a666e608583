package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"folio/internal/auth"
	"folio/internal/content"
	"folio/internal/history"
	"folio/internal/search"
	"folio/internal/upload"
	"folio/internal/visit"
)

// Repository holds the stored snapshot and the visitor log.
type Repository interface {
	LoadSnapshot(ctx context.Context) (content.Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap content.Snapshot) error
	AppendVisit(ctx context.Context, entry visit.Entry) error
	ListVisits(ctx context.Context, limit int) ([]visit.Entry, error)
	Ping(ctx context.Context) error
}

type credentialVerifier interface {
	Verify(credential string) error
}

type historyService interface {
	Record(snap content.Snapshot, author, message string) (history.Revision, bool, error)
	List(limit int) ([]history.Revision, error)
	Snapshot(hash string) (content.Snapshot, history.Revision, error)
}

type searchIndex interface {
	Index(snap content.Snapshot)
	Search(q search.Query) search.Response
	Healthy() bool
}

type uploader interface {
	Upload(ctx context.Context, img upload.Image, preferred string, onFailure func(upload.Failure)) (upload.Result, error)
}

type Options struct {
	History historyService
	Search  searchIndex
	Uploads uploader
	Logger  *zap.Logger
	Now     func() time.Time
}

type Service struct {
	repo     Repository
	verifier credentialVerifier
	history  historyService
	search   searchIndex
	uploads  uploader
	logger   *zap.Logger
	now      func() time.Time

	// writes serialises snapshot writes so history follows store order.
	writes sync.Mutex
}

func New(repo Repository, verifier credentialVerifier, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Uploads == nil {
		opts.Uploads = upload.NewChain(opts.Logger.Named("upload"))
	}
	return &Service{
		repo:     repo,
		verifier: verifier,
		history:  opts.History,
		search:   opts.Search,
		uploads:  opts.Uploads,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Bootstrap seeds the search index from the stored snapshot.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	snap, err := s.Content(ctx)
	if err != nil {
		return err
	}
	s.search.Index(snap)
	return nil
}

func (s *Service) authorize(credential string) error {
	if err := s.verifier.Verify(credential); err != nil {
		if errors.Is(err, auth.ErrMissingCredential) || errors.Is(err, auth.ErrInvalidCredential) {
			return errUnauthorized
		}
		return fmt.Errorf("verify credential: %w", err)
	}
	return nil
}

// Content returns the stored snapshot, or an empty one when nothing has
// been saved yet.
func (s *Service) Content(ctx context.Context) (content.Snapshot, error) {
	snap, found, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return content.Snapshot{}, fmt.Errorf("load content: %w", err)
	}
	if !found {
		return content.EmptySnapshot(), nil
	}
	return snap.Normalize(), nil
}

// SaveContent replaces the stored snapshot with the JSON body data. Missing
// parts are stored empty.
func (s *Service) SaveContent(ctx context.Context, credential string, data []byte) (time.Time, error) {
	if err := s.authorize(credential); err != nil {
		return time.Time{}, err
	}
	var body struct {
		Content  map[string]content.Value    `json:"content"`
		Styles   map[string]content.StyleMap `json:"styles"`
		Sections []content.Section           `json:"sections"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return time.Time{}, errInvalidBody
	}
	snap := content.Snapshot{Content: body.Content, Styles: body.Styles, Sections: body.Sections}
	return s.save(ctx, credential, snap, "Update content")
}

func (s *Service) save(ctx context.Context, credential string, snap content.Snapshot, message string) (time.Time, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	snap = snap.Clone().Normalize()
	snap.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
		return time.Time{}, fmt.Errorf("save content: %w", err)
	}

	if s.history != nil {
		author := "editor-" + auth.Fingerprint(credential)
		if rev, created, err := s.history.Record(snap, author, message); err != nil {
			s.logger.Warn("record history", zap.Error(err))
		} else if created {
			s.logger.Info("content revision recorded", zap.String("hash", rev.Hash), zap.Strings("changed", rev.Changed))
		}
	}
	if s.search != nil {
		s.search.Index(snap)
	}
	return snap.UpdatedAt, nil
}

// Export renders the stored snapshot as a downloadable document.
func (s *Service) Export(ctx context.Context) (content.ExportDocument, error) {
	snap, err := s.Content(ctx)
	if err != nil {
		return content.ExportDocument{}, err
	}
	return content.Export(snap, s.now()), nil
}

// Import validates data like the editor does and replaces only the parts
// that are well formed.
func (s *Service) Import(ctx context.Context, credential string, data []byte) (content.Import, time.Time, error) {
	if err := s.authorize(credential); err != nil {
		return content.Import{}, time.Time{}, err
	}
	imp, err := content.ParseImport(data)
	if err != nil {
		return content.Import{}, time.Time{}, err
	}
	current, err := s.Content(ctx)
	if err != nil {
		return content.Import{}, time.Time{}, err
	}
	if imp.HasContent() {
		current.Content = imp.Content
	}
	if imp.HasStyles() {
		current.Styles = imp.Styles
	}
	if imp.HasSections() {
		current.Sections = imp.Sections
	}
	updatedAt, err := s.save(ctx, credential, current, "Import content")
	if err != nil {
		return content.Import{}, time.Time{}, err
	}
	return imp, updatedAt, nil
}

// LogVisit appends a page view to the visitor log.
func (s *Service) LogVisit(ctx context.Context, entry visit.Entry) error {
	if err := s.repo.AppendVisit(ctx, entry); err != nil {
		return fmt.Errorf("log visit: %w", err)
	}
	return nil
}

// Visits lists the most recent page views, newest first.
func (s *Service) Visits(ctx context.Context, credential string, limit int) ([]visit.Entry, error) {
	if err := s.authorize(credential); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = visit.DefaultLimit
	}
	limit = min(limit, visit.MaxEntries)
	entries, err := s.repo.ListVisits(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	if entries == nil {
		entries = []visit.Entry{}
	}
	return entries, nil
}

// History lists recorded revisions, newest first.
func (s *Service) History(limit int) ([]history.Revision, error) {
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History is not enabled", nil)
	}
	revisions, err := s.history.List(limit)
	if errors.Is(err, history.ErrNoHistory) {
		return []history.Revision{}, nil
	}
	if err != nil {
		return nil, err
	}
	return revisions, nil
}

// Restore makes the snapshot recorded at hash current again.
func (s *Service) Restore(ctx context.Context, credential, hash string) (content.Snapshot, error) {
	if err := s.authorize(credential); err != nil {
		return content.Snapshot{}, err
	}
	if s.history == nil {
		return content.Snapshot{}, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History is not enabled", nil)
	}
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return content.Snapshot{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "hash is required", nil)
	}
	snap, rev, err := s.history.Snapshot(hash)
	if errors.Is(err, history.ErrNoHistory) {
		return content.Snapshot{}, history.ErrNotFound
	}
	if err != nil {
		return content.Snapshot{}, err
	}
	updatedAt, err := s.save(ctx, credential, snap, "Restore "+rev.Hash)
	if err != nil {
		return content.Snapshot{}, err
	}
	snap.UpdatedAt = updatedAt
	return snap, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// Upload stores an image through the provider chain.
func (s *Service) Upload(ctx context.Context, credential string, img upload.Image, preferred string) (upload.Result, error) {
	if err := s.authorize(credential); err != nil {
		return upload.Result{}, err
	}
	return s.uploads.Upload(ctx, img, preferred, func(f upload.Failure) {
		s.logger.Info("upload fallback", zap.String("provider", f.Provider))
	})
}

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready probes the storage backend and the search index concurrently. Only
// storage failures make the service not ready.
func (s *Service) Ready(ctx context.Context) (bool, map[string]CheckResult) {
	var (
		mu     sync.Mutex
		checks = map[string]CheckResult{}
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = CheckResult{Status: "error", Error: err.Error()}
			return
		}
		checks[name] = CheckResult{Status: "ok"}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.repo.Ping(gctx)
		record("storage", err)
		return err
	})
	if s.search != nil {
		g.Go(func() error {
			if s.search.Healthy() {
				record("search", nil)
			} else {
				mu.Lock()
				checks["search"] = CheckResult{Status: "degraded"}
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return err == nil, checks
}
