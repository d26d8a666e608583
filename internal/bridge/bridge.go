// Package bridge keeps a content.Store in step with local storage and the
// remote content endpoint. Local writes trail each edit by a short debounce
// window; remote saves trail by a longer one and only run while an
// authenticated editing session has sync enabled.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"folio/internal/content"
	"folio/internal/localstore"
	"folio/internal/remote"
	"folio/internal/schedule"
)

const (
	DefaultLocalDelay  = 500 * time.Millisecond
	DefaultRemoteDelay = 2 * time.Second
	DefaultSyncTimeout = 15 * time.Second
)

// Source says where Load found the state it adopted.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceDefaults Source = "defaults"
)

// Status is the remote sync indicator.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusSyncing      Status = "syncing"
	StatusSynced       Status = "synced"
	StatusError        Status = "error"
	StatusUnauthorized Status = "unauthorized"
)

// ErrSyncUnavailable means there is no remote, no credential or sync is
// switched off.
var ErrSyncUnavailable = errors.New("remote sync is not available in this session")

// Remote is the subset of the content API the bridge needs.
type Remote interface {
	Fetch(ctx context.Context) (content.Snapshot, error)
	Save(ctx context.Context, snap content.Snapshot, credential string) (time.Time, error)
}

type Options struct {
	Clock       schedule.Clock
	LocalDelay  time.Duration
	RemoteDelay time.Duration
	SyncTimeout time.Duration
	Logger      *zap.Logger
	// OnStatus is called after every sync status change.
	OnStatus func(Status)
}

var channelKeys = map[content.Channel]string{
	content.ChannelContent:  localstore.KeyContent,
	content.ChannelStyles:   localstore.KeyStyles,
	content.ChannelSections: localstore.KeySections,
}

var channels = []content.Channel{content.ChannelContent, content.ChannelStyles, content.ChannelSections}

type Bridge struct {
	store  *content.Store
	cache  *localstore.Cache
	remote Remote
	clock  schedule.Clock
	logger *zap.Logger

	syncTimeout time.Duration
	onStatus    func(Status)

	local map[content.Channel]*schedule.Debouncer
	sync  *schedule.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	// syncMu orders remote saves so a slower earlier save can never land
	// after a later one. Close holds it to wait out a save in flight.
	syncMu sync.Mutex

	mu          sync.Mutex
	loaded      bool
	closed      bool
	credential  string
	syncEnabled bool
	status      Status
	lastSaved   time.Time
	lastErr     error
	// edits counts mutations; attempted is its value at the last remote save.
	edits     uint64
	attempted uint64
}

// New wires a bridge to store. remote may be nil for an offline session.
func New(store *content.Store, cache *localstore.Cache, remote Remote, opts Options) *Bridge {
	if opts.Clock == nil {
		opts.Clock = schedule.Real()
	}
	if opts.LocalDelay <= 0 {
		opts.LocalDelay = DefaultLocalDelay
	}
	if opts.RemoteDelay <= 0 {
		opts.RemoteDelay = DefaultRemoteDelay
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		store:       store,
		cache:       cache,
		remote:      remote,
		clock:       opts.Clock,
		logger:      opts.Logger,
		syncTimeout: opts.SyncTimeout,
		onStatus:    opts.OnStatus,
		local:       make(map[content.Channel]*schedule.Debouncer, len(channels)),
		sync:        schedule.NewDebouncer(opts.Clock, opts.RemoteDelay),
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusIdle,
	}
	for _, ch := range channels {
		b.local[ch] = schedule.NewDebouncer(opts.Clock, opts.LocalDelay)
	}
	store.Subscribe(b.onChange)
	return b
}

// Load fills the store: the remote snapshot when it is reachable and
// non-empty, else local storage, else the built-in defaults. Edits made
// before Load returns are not persisted.
func (b *Bridge) Load(ctx context.Context) Source {
	defer b.markLoaded()

	if b.remote != nil {
		snap, err := b.remote.Fetch(ctx)
		switch {
		case err != nil:
			b.logger.Warn("remote load failed, using local storage", zap.Error(err))
		case !snap.IsEmpty():
			b.store.Replace(snap)
			for _, ch := range channels {
				// mirror as a cache; failures only cost the offline fallback
				_ = b.writeLocal(ctx, ch)
			}
			b.logger.Info("loaded content from remote",
				zap.Int("content", len(snap.Content)), zap.Int("styles", len(snap.Styles)))
			return SourceRemote
		}
	}

	b.store.Reset()
	source := SourceDefaults

	var values map[string]content.Value
	if b.cache.Load(ctx, localstore.KeyContent, &values) {
		b.store.ReplaceContent(values)
		source = SourceLocal
	}
	var styles map[string]content.StyleMap
	if b.cache.Load(ctx, localstore.KeyStyles, &styles) {
		b.store.ReplaceStyles(styles)
		source = SourceLocal
	}
	var sections []content.Section
	if b.cache.Load(ctx, localstore.KeySections, &sections) {
		if len(sections) > 0 && content.ValidSections(sections) {
			b.store.ReplaceSections(sections)
			source = SourceLocal
		} else {
			b.logger.Warn("stored sections invalid, using defaults", zap.Int("count", len(sections)))
		}
	}
	return source
}

func (b *Bridge) markLoaded() {
	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()
}

func (b *Bridge) onChange(ch content.Channel) {
	b.mu.Lock()
	active := b.loaded && !b.closed
	b.mu.Unlock()
	if !active {
		return
	}
	b.markDirty()
	b.scheduleLocal(ch)
	b.scheduleSync()
}

func (b *Bridge) scheduleLocal(ch content.Channel) {
	debouncer, ok := b.local[ch]
	if !ok {
		return
	}
	debouncer.Trigger(func() {
		_ = b.writeLocal(b.ctx, ch)
	})
}

func (b *Bridge) scheduleSync() {
	if !b.canSync() {
		return
	}
	b.sync.Trigger(func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.syncTimeout)
		defer cancel()
		_ = b.syncRemote(ctx)
	})
}

func (b *Bridge) markDirty() {
	b.mu.Lock()
	b.edits++
	b.mu.Unlock()
}

func (b *Bridge) canSync() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remote != nil && b.syncEnabled && b.credential != "" && !b.closed
}

// writeLocal serialises one channel to its local key.
func (b *Bridge) writeLocal(ctx context.Context, ch content.Channel) error {
	key := channelKeys[ch]
	var value any
	switch ch {
	case content.ChannelContent:
		value = b.store.Content()
	case content.ChannelStyles:
		value = b.store.Styles()
	case content.ChannelSections:
		value = b.store.Sections()
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
	return b.cache.Save(ctx, key, value)
}

func (b *Bridge) syncRemote(ctx context.Context) error {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}
	return b.saveLocked(ctx)
}

// saveLocked posts the current snapshot. The caller holds syncMu.
func (b *Bridge) saveLocked(ctx context.Context) error {
	b.mu.Lock()
	credential := b.credential
	enabled := b.syncEnabled && b.remote != nil
	b.attempted = b.edits
	b.mu.Unlock()
	if !enabled || credential == "" {
		return nil
	}

	b.setStatus(StatusSyncing, nil)
	updatedAt, err := b.remote.Save(ctx, b.store.Snapshot(), credential)
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		b.logger.Warn("remote sync rejected credential")
		b.setStatus(StatusUnauthorized, err)
		return err
	case err != nil:
		b.logger.Error("remote sync failed", zap.Error(err))
		b.setStatus(StatusError, err)
		return err
	}

	if updatedAt.IsZero() {
		updatedAt = b.clock.Now()
	}
	b.mu.Lock()
	b.lastSaved = updatedAt
	b.mu.Unlock()
	b.setStatus(StatusSynced, nil)
	b.logger.Debug("remote sync complete", zap.Time("updated_at", updatedAt))
	return nil
}

func (b *Bridge) setStatus(status Status, err error) {
	b.mu.Lock()
	b.status = status
	b.lastErr = err
	observer := b.onStatus
	b.mu.Unlock()
	if observer != nil {
		observer(status)
	}
}

// SetCredential stores the credential used for remote saves. An empty
// credential drops any pending save.
func (b *Bridge) SetCredential(credential string) {
	b.mu.Lock()
	b.credential = credential
	b.mu.Unlock()
	if credential == "" {
		b.sync.Cancel()
	}
}

func (b *Bridge) Credential() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credential
}

// SetSyncEnabled turns remote saving on for an editing session. Disabling
// drops any pending save.
func (b *Bridge) SetSyncEnabled(enabled bool) {
	b.mu.Lock()
	b.syncEnabled = enabled
	b.mu.Unlock()
	if !enabled {
		b.sync.Cancel()
	}
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// LastSaved is the server timestamp of the last successful remote save.
func (b *Bridge) LastSaved() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSaved
}

func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Export captures the current state as a downloadable document.
func (b *Bridge) Export() content.ExportDocument {
	return content.Export(b.store.Snapshot(), b.clock.Now())
}

// Import validates data, applies its well-formed parts and writes them to
// local storage straight away. Nothing changes when validation fails.
func (b *Bridge) Import(ctx context.Context, data []byte) (content.Import, error) {
	parsed, err := content.ParseImport(data)
	if err != nil {
		return content.Import{}, err
	}
	parsed.Apply(b.store)
	b.markDirty()

	var errs []error
	write := func(ch content.Channel) {
		b.local[ch].Cancel()
		if err := b.writeLocal(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	if parsed.HasContent() {
		write(content.ChannelContent)
	}
	if parsed.HasStyles() {
		write(content.ChannelStyles)
	}
	if parsed.HasSections() {
		write(content.ChannelSections)
	}
	b.scheduleSync()
	return parsed, errors.Join(errs...)
}

// Reset clears every override, deletes the local keys and, in an
// authenticated session, schedules a remote save of the empty state.
func (b *Bridge) Reset(ctx context.Context) error {
	var errs []error
	for _, ch := range channels {
		b.local[ch].Cancel()
	}
	b.store.Reset()
	b.markDirty()
	for _, ch := range channels {
		if err := b.cache.Remove(ctx, channelKeys[ch]); err != nil {
			errs = append(errs, err)
		}
	}
	b.scheduleSync()
	return errors.Join(errs...)
}

// Flush runs every pending local write and remote save now.
func (b *Bridge) Flush(ctx context.Context) error {
	err := b.flushLocal(ctx)
	if b.sync.Cancel() {
		err = errors.Join(err, b.syncRemote(ctx))
	}
	return err
}

func (b *Bridge) flushLocal(ctx context.Context) error {
	var errs []error
	for _, ch := range channels {
		if b.local[ch].Cancel() {
			if err := b.writeLocal(ctx, ch); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SyncNow saves the current state remotely without waiting for the
// debounce window.
func (b *Bridge) SyncNow(ctx context.Context) error {
	b.sync.Cancel()
	if !b.canSync() {
		return ErrSyncUnavailable
	}
	return b.syncRemote(ctx)
}

// Close flushes pending local writes, waits for a remote save already in
// flight and saves any edit that no save has picked up yet. It then stops
// reacting to store mutations. When the session syncs and the last remote
// save failed, Close returns that error.
func (b *Bridge) Close(ctx context.Context) error {
	b.sync.Cancel()
	errs := []error{b.flushLocal(ctx)}

	b.syncMu.Lock()
	syncing := b.canSync()
	b.mu.Lock()
	unsaved := b.edits != b.attempted
	b.mu.Unlock()
	if syncing && unsaved {
		_ = b.saveLocked(ctx)
	}

	b.mu.Lock()
	b.closed = true
	if syncing && (b.status == StatusError || b.status == StatusUnauthorized) {
		errs = append(errs, fmt.Errorf("last remote save failed: %w", b.lastErr))
	}
	b.mu.Unlock()
	b.syncMu.Unlock()

	b.cancel()
	return errors.Join(errs...)
}
