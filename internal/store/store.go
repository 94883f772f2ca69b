// Package store persists per-work translation state in sqlite.
// Chapter status is recorded explicitly rather than inferred from
// file presence, so an empty translation and a not-yet-attempted
// chapter can never be confused, and a re-run can skip completed
// chapters without re-issuing provider calls.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okovalov/seritran/internal/novel"
)

// ErrChapterLocked is returned when a caller tries to overwrite a
// chapter that is already translated. Completed translations are
// immutable.
var ErrChapterLocked = errors.New("chapter already translated")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS works (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		title_translated TEXT DEFAULT '',
		description TEXT DEFAULT '',
		description_translated TEXT DEFAULT '',
		published_id INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chapters (
		work_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		title TEXT DEFAULT '',
		title_translated TEXT DEFAULT '',
		body_translated TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		method TEXT DEFAULT '',
		published_id INTEGER DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (work_id, idx),
		FOREIGN KEY (work_id) REFERENCES works(id)
	);

	-- translation_attempts is an observability log, not pipeline state.
	CREATE TABLE IF NOT EXISTS translation_attempts (
		id TEXT PRIMARY KEY,
		work_id TEXT NOT NULL,
		chapter_idx INTEGER NOT NULL,
		provider TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chapters_status ON chapters(work_id, status);
	CREATE INDEX IF NOT EXISTS idx_attempts_work ON translation_attempts(work_id, chapter_idx);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WorkRecord is a row from the works table.
type WorkRecord struct {
	ID                    string
	Title                 string
	TitleTranslated       string
	Description           string
	DescriptionTranslated string
	PublishedID           int64
}

// ChapterState is a row from the chapters table.
type ChapterState struct {
	Index           int
	Title           string
	TitleTranslated string
	BodyTranslated  string
	Status          novel.Status
	Method          novel.Method
	PublishedID     int64
	UpdatedAt       time.Time
}

// EnsureWork inserts the work if missing and refreshes its source
// fields, leaving any existing translated fields untouched.
func (s *Store) EnsureWork(ctx context.Context, id, title, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO works (id, title, description) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP`,
		id, title, description)
	return err
}

// GetWork returns the stored work record, or (nil, nil) when the work
// has never been seen.
func (s *Store) GetWork(ctx context.Context, id string) (*WorkRecord, error) {
	var rec WorkRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, title_translated, description, description_translated, published_id
		FROM works WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Title, &rec.TitleTranslated, &rec.Description, &rec.DescriptionTranslated, &rec.PublishedID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetWorkTranslation stores the translated title and description.
func (s *Store) SetWorkTranslation(ctx context.Context, id, titleTranslated, descriptionTranslated string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE works SET title_translated = ?, description_translated = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		titleTranslated, descriptionTranslated, id)
	return err
}

// SetWorkPublishedID records the platform-side story ID.
func (s *Store) SetWorkPublishedID(ctx context.Context, id string, publishedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE works SET published_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		publishedID, id)
	return err
}

// SeedChapters registers raw chapters as pending without touching
// rows that already exist, so re-seeding after a partial run never
// resets progress.
func (s *Store) SeedChapters(ctx context.Context, workID string, chapters []novel.Chapter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ch := range chapters {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chapters (work_id, idx, title, status) VALUES (?, ?, ?, ?)`,
			workID, ch.Index, ch.Title, novel.StatusPending); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChapterStates returns all chapter rows for a work in ascending
// index order.
func (s *Store) ChapterStates(ctx context.Context, workID string) ([]ChapterState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, title, title_translated, body_translated, status, method, published_id, updated_at
		FROM chapters WHERE work_id = ? ORDER BY idx`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []ChapterState
	for rows.Next() {
		var cs ChapterState
		if err := rows.Scan(&cs.Index, &cs.Title, &cs.TitleTranslated, &cs.BodyTranslated,
			&cs.Status, &cs.Method, &cs.PublishedID, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		states = append(states, cs)
	}
	return states, rows.Err()
}

// SaveChapterResult persists a chapter's translation outcome. A row
// whose status is already translated is immutable: the update is
// refused with ErrChapterLocked.
func (s *Store) SaveChapterResult(ctx context.Context, workID string, ch novel.Chapter) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET
			title_translated = ?,
			body_translated = ?,
			status = ?,
			method = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE work_id = ? AND idx = ? AND status != ?`,
		ch.TitleTranslated, ch.BodyTranslated, ch.Status, ch.Method,
		workID, ch.Index, novel.StatusTranslated)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var status novel.Status
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM chapters WHERE work_id = ? AND idx = ?`,
			workID, ch.Index).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("chapter %d of work %s not seeded", ch.Index, workID)
		}
		if err != nil {
			return err
		}
		if status == novel.StatusTranslated {
			return fmt.Errorf("%w: work %s chapter %d", ErrChapterLocked, workID, ch.Index)
		}
	}
	return nil
}

// SetChapterPublishedID records the platform-side chapter ID.
func (s *Store) SetChapterPublishedID(ctx context.Context, workID string, idx int, publishedID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET published_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE work_id = ? AND idx = ?`,
		publishedID, workID, idx)
	return err
}

// ResetFailed flips failed chapters back to pending so a later run
// reconsiders them. This is the only path by which a failed chapter
// becomes retryable; it is never automatic.
func (s *Store) ResetFailed(ctx context.Context, workID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chapters SET status = ?, method = '', updated_at = CURRENT_TIMESTAMP
		WHERE work_id = ? AND status = ?`,
		novel.StatusPending, workID, novel.StatusFailed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Attempt is one provider call's outcome, kept for observability.
type Attempt struct {
	ID         string
	WorkID     string
	ChapterIdx int
	Provider   string
	Outcome    string
	Error      string
	CreatedAt  time.Time
}

// RecordAttempt appends to the attempt log. Failures to log are
// returned but are safe for callers to ignore.
func (s *Store) RecordAttempt(ctx context.Context, workID string, chapterIdx int, provider, outcome, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translation_attempts (id, work_id, chapter_idx, provider, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), workID, chapterIdx, provider, outcome, errText)
	return err
}

// ListAttempts returns the attempt log for a work, newest first.
func (s *Store) ListAttempts(ctx context.Context, workID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, chapter_idx, provider, outcome, error, created_at
		FROM translation_attempts WHERE work_id = ? ORDER BY created_at DESC`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.WorkID, &a.ChapterIdx, &a.Provider, &a.Outcome, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
