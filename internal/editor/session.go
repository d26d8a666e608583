// Package editor ties the pieces of an editing session together: the
// content store, its persistence bridge, the access gate and the remote
// client. A Session has an explicit Open and Close; nothing is global.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"folio/internal/bridge"
	"folio/internal/content"
	"folio/internal/gate"
	"folio/internal/localstore"
	"folio/internal/schedule"
	"folio/internal/upload"
	"folio/internal/visit"
)

var (
	ErrLocked  = errors.New("edit mode requires an unlocked session")
	ErrOffline = errors.New("no remote endpoint configured")
)

// Remote is the content API as seen by a session.
type Remote interface {
	bridge.Remote
	Visits(ctx context.Context, credential string, limit int) ([]visit.Entry, error)
	Upload(ctx context.Context, credential string, img upload.Image, preferred string) (upload.Result, error)
}

type Options struct {
	Clock         schedule.Clock
	LocalDelay    time.Duration
	RemoteDelay   time.Duration
	MaxLocalBytes int
	MaxAttempts   int
	Lockout       time.Duration
	Logger        *zap.Logger
	OnSyncStatus  func(bridge.Status)
}

type Session struct {
	store  *content.Store
	cache  *localstore.Cache
	bridge *bridge.Bridge
	gate   *gate.Gate
	remote Remote
	logger *zap.Logger

	mu       sync.Mutex
	editMode bool
	opened   bool
}

// New builds a session over backend. rem may be nil for an offline session.
func New(backend localstore.Backend, rem Remote, checker gate.Checker, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger
	store := content.NewStore(logger.Named("content"))
	cache := localstore.NewCache(backend, opts.MaxLocalBytes, logger.Named("localstore"))

	var bridgeRemote bridge.Remote
	if rem != nil {
		bridgeRemote = rem
	}
	return &Session{
		store: store,
		cache: cache,
		bridge: bridge.New(store, cache, bridgeRemote, bridge.Options{
			Clock:       opts.Clock,
			LocalDelay:  opts.LocalDelay,
			RemoteDelay: opts.RemoteDelay,
			Logger:      logger.Named("bridge"),
			OnStatus:    opts.OnSyncStatus,
		}),
		gate: gate.New(checker, gate.Options{
			Clock:       opts.Clock,
			MaxAttempts: opts.MaxAttempts,
			Lockout:     opts.Lockout,
		}),
		remote: rem,
		logger: logger,
	}
}

// Open loads persisted state and re-admits a cached credential that still
// matches.
func (s *Session) Open(ctx context.Context) bridge.Source {
	source := s.bridge.Load(ctx)

	var cached string
	if s.cache.Load(ctx, localstore.KeyCredential, &cached) {
		if s.gate.Restore(ctx, cached) {
			s.bridge.SetCredential(cached)
		} else {
			s.logger.Info("discarding stale cached credential")
			_ = s.cache.Remove(ctx, localstore.KeyCredential)
		}
	}
	var attempts gate.Attempts
	if s.cache.Load(ctx, localstore.KeyAttempts, &attempts) {
		s.gate.RestoreAttempts(attempts)
	}

	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	s.logger.Info("session opened", zap.String("source", string(source)))
	return source
}

// Close flushes pending writes and detaches the bridge from the store.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.editMode = false
	s.opened = false
	s.mu.Unlock()
	return s.bridge.Close(ctx)
}

// Unlock submits candidate to the gate and stores the attempt count. On
// success it hands the credential to the bridge and caches it locally.
func (s *Session) Unlock(ctx context.Context, candidate string) error {
	err := s.gate.Submit(ctx, candidate)
	s.saveAttempts(ctx)
	if err != nil {
		return err
	}
	s.bridge.SetCredential(candidate)
	if err := s.cache.Save(ctx, localstore.KeyCredential, candidate); err != nil {
		s.logger.Warn("could not cache credential", zap.Error(err))
	}
	return nil
}

// saveAttempts keeps the gate's failure count so a lock-out outlives the
// process.
func (s *Session) saveAttempts(ctx context.Context) {
	attempts := s.gate.Attempts()
	var err error
	if attempts.IsZero() {
		err = s.cache.Remove(ctx, localstore.KeyAttempts)
	} else {
		err = s.cache.Save(ctx, localstore.KeyAttempts, attempts)
	}
	if err != nil {
		s.logger.Warn("could not store unlock attempts", zap.Error(err))
	}
}

// Lock leaves edit mode and forgets the credential everywhere.
func (s *Session) Lock(ctx context.Context) error {
	s.ExitEditMode()
	s.gate.Lock()
	s.bridge.SetCredential("")
	return s.cache.Remove(ctx, localstore.KeyCredential)
}

func (s *Session) EnterEditMode() error {
	if !s.gate.Unlocked() {
		return ErrLocked
	}
	s.mu.Lock()
	s.editMode = true
	s.mu.Unlock()
	s.bridge.SetSyncEnabled(true)
	return nil
}

func (s *Session) ExitEditMode() {
	s.mu.Lock()
	s.editMode = false
	s.mu.Unlock()
	s.bridge.SetSyncEnabled(false)
}

func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

func (s *Session) Store() *content.Store  { return s.store }
func (s *Session) Bridge() *bridge.Bridge { return s.bridge }
func (s *Session) Gate() *gate.Gate       { return s.gate }

// Upload sends an image through the server's provider chain. Without a
// remote endpoint the image is inlined as a data URL.
func (s *Session) Upload(ctx context.Context, img upload.Image, preferred string) (upload.Result, error) {
	if !s.gate.Unlocked() {
		return upload.Result{}, ErrLocked
	}
	if s.remote == nil {
		return upload.NewChain(s.logger.Named("upload")).Upload(ctx, img, upload.ProviderDataURL, nil)
	}
	result, err := s.remote.Upload(ctx, s.gate.Credential(), img, preferred)
	if err != nil {
		return upload.Result{}, fmt.Errorf("upload %s: %w", img.Name, err)
	}
	return result, nil
}

// Visits lists the most recent visitor log entries.
func (s *Session) Visits(ctx context.Context, limit int) ([]visit.Entry, error) {
	if !s.gate.Unlocked() {
		return nil, ErrLocked
	}
	if s.remote == nil {
		return nil, ErrOffline
	}
	return s.remote.Visits(ctx, s.gate.Credential(), limit)
}
