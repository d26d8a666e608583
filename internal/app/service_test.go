package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"folio/internal/auth"
	"folio/internal/content"
	"folio/internal/history"
	"folio/internal/visit"
)

type recordedRevision struct {
	author  string
	message string
}

type fakeHistory struct {
	records []recordedRevision
}

func (f *fakeHistory) Record(_ content.Snapshot, author, message string) (history.Revision, bool, error) {
	f.records = append(f.records, recordedRevision{author: author, message: message})
	return history.Revision{Hash: "abc1234"}, true, nil
}

func (f *fakeHistory) List(int) ([]history.Revision, error) {
	return nil, history.ErrNoHistory
}

func (f *fakeHistory) Snapshot(string) (content.Snapshot, history.Revision, error) {
	return content.Snapshot{}, history.Revision{}, history.ErrNotFound
}

func newTestService(t *testing.T, repo Repository, hist historyService) *Service {
	t.Helper()
	verifier, err := auth.NewVerifier(testPassword, "")
	require.NoError(t, err)
	return New(repo, verifier, Options{
		History: hist,
		Now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)) },
	})
}

func TestSaveContentStoresEmptyPartsAndUTC(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	hist := &fakeHistory{}
	svc := newTestService(t, repo, hist)

	updatedAt, err := svc.SaveContent(ctx, testPassword, []byte(`{"sections":[{"id":"about","name":"About"}]}`))
	require.NoError(t, err)
	require.Equal(t, time.UTC, updatedAt.Location())

	snap, err := svc.Content(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Content)
	require.NotNil(t, snap.Styles)
	want := []content.Section{{ID: "about", Name: "About", Visible: true}}
	if diff := cmp.Diff(want, snap.Sections); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, hist.records, 1)
	require.Equal(t, "Update content", hist.records[0].message)
	require.Equal(t, "editor-"+auth.Fingerprint(testPassword), hist.records[0].author)
}

func TestImportKeepsPartsThatWereNotValid(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryRepository(), nil)

	_, err := svc.SaveContent(ctx, testPassword, []byte(`{"content":{"hero.title":"Kept"},"styles":{"hero.title":{"color":"red"}}}`))
	require.NoError(t, err)

	imp, _, err := svc.Import(ctx, testPassword, []byte(`{"styles":{"hero.title":{"color":"blue"}},"sections":[{"id":"x"}]}`))
	require.NoError(t, err)
	require.True(t, imp.HasStyles())
	require.False(t, imp.HasSections())

	snap, err := svc.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, "Kept", snap.Content["hero.title"].String())
	require.Equal(t, "blue", snap.Styles["hero.title"]["color"])
	require.Empty(t, snap.Sections)
}

func TestVisitsLimitDefaultsAndCap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := newTestService(t, repo, nil)

	for i := 0; i < visit.MaxEntries+5; i++ {
		require.NoError(t, svc.LogVisit(ctx, visit.Entry{Path: "/"}))
	}
	all, err := repo.ListVisits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, visit.MaxEntries)

	entries, err := svc.Visits(ctx, testPassword, 0)
	require.NoError(t, err)
	require.Len(t, entries, visit.DefaultLimit)

	entries, err = svc.Visits(ctx, testPassword, 5000)
	require.NoError(t, err)
	require.Len(t, entries, visit.MaxEntries)

	_, err = svc.Visits(ctx, "nope", 10)
	require.ErrorIs(t, err, errUnauthorized)
}

func TestHistoryWithoutCommitsIsEmpty(t *testing.T) {
	svc := newTestService(t, NewMemoryRepository(), &fakeHistory{})
	revisions, err := svc.History(10)
	require.NoError(t, err)
	require.Empty(t, revisions)

	_, err = svc.Restore(context.Background(), testPassword, "abc1234")
	require.ErrorIs(t, err, history.ErrNotFound)
}
