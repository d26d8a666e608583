package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"folio/internal/content"
	"folio/internal/visit"
)

// rowID is the single row holding the site's content.
const rowID = "main"

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) (content.Snapshot, bool, error) {
	var (
		rawContent, rawStyles, rawSections []byte
		updatedAt                          time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT content, styles, sections, updated_at
		FROM portfolio_content
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&rawContent, &rawStyles, &rawSections, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return content.EmptySnapshot(), false, nil
	}
	if err != nil {
		return content.Snapshot{}, false, fmt.Errorf("load content: %w", err)
	}

	snap := content.Snapshot{UpdatedAt: updatedAt.UTC()}
	if err := json.Unmarshal(rawContent, &snap.Content); err != nil {
		return content.Snapshot{}, false, fmt.Errorf("decode content column: %w", err)
	}
	if err := json.Unmarshal(rawStyles, &snap.Styles); err != nil {
		return content.Snapshot{}, false, fmt.Errorf("decode styles column: %w", err)
	}
	if err := json.Unmarshal(rawSections, &snap.Sections); err != nil {
		return content.Snapshot{}, false, fmt.Errorf("decode sections column: %w", err)
	}
	return snap.Normalize(), true, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap content.Snapshot) error {
	snap = snap.Normalize()
	rawContent, err := json.Marshal(snap.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	rawStyles, err := json.Marshal(snap.Styles)
	if err != nil {
		return fmt.Errorf("encode styles: %w", err)
	}
	rawSections, err := json.Marshal(snap.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO portfolio_content (id, content, styles, sections, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    styles = EXCLUDED.styles,
		    sections = EXCLUDED.sections,
		    updated_at = EXCLUDED.updated_at
	`, rowID, rawContent, rawStyles, rawSections, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

// AppendVisit inserts entry and prunes the log down to visit.MaxEntries.
func (s *PostgresStore) AppendVisit(ctx context.Context, entry visit.Entry) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin visit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO visitor_logs (id, ip, location, path, user_agent, device, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, entry.IP, entry.Location, entry.Path, entry.UserAgent, entry.Device, entry.Timestamp.UTC()); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM visitor_logs
		WHERE id IN (
			SELECT id FROM visitor_logs ORDER BY created_at DESC OFFSET $1
		)
	`, visit.MaxEntries); err != nil {
		return fmt.Errorf("prune visits: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVisits(ctx context.Context, limit int) ([]visit.Entry, error) {
	if limit <= 0 {
		limit = visit.DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ip, location, path, user_agent, device, created_at
		FROM visitor_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	entries := make([]visit.Entry, 0, limit)
	for rows.Next() {
		var entry visit.Entry
		if err := rows.Scan(&entry.ID, &entry.IP, &entry.Location, &entry.Path, &entry.UserAgent, &entry.Device, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
