package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/taxonomia/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		instrument_title TEXT NOT NULL,
		subject TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		items TEXT NOT NULL,
		textual_summary TEXT NOT NULL,
		original_text TEXT,
		analysis_date INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_date ON analyses(analysis_date);
	CREATE INDEX IF NOT EXISTS idx_analyses_subject_grade ON analyses(subject, grade_level);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateAnalysis inserts a with a fresh ID and the current UTC time.
func (s *SQLiteStorage) CreateAnalysis(ctx context.Context, a *models.InstrumentAnalysis) error {
	items := a.Items
	if items == nil {
		items = []models.AnalysisItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	id := uuid.New().String()
	// Stored with millisecond precision; the returned value matches what a later read sees.
	at := s.now().UTC().Truncate(time.Millisecond)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, instrument_title, subject, grade_level, items, textual_summary, original_text, analysis_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.InstrumentTitle, string(a.Subject), string(a.GradeLevel), string(itemsJSON),
		a.TextualSummary, a.OriginalDocumentText, at.UnixMilli(),
	)
	if err != nil {
		return err
	}
	a.ID = id
	a.AnalysisDate = at
	a.Items = items
	return nil
}

const selectAnalysis = `SELECT id, instrument_title, subject, grade_level, items, textual_summary, original_text, analysis_date FROM analyses`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*models.InstrumentAnalysis, error) {
	var (
		a         models.InstrumentAnalysis
		subject   string
		grade     string
		itemsJSON string
		original  sql.NullString
		millis    int64
	)
	if err := row.Scan(&a.ID, &a.InstrumentTitle, &subject, &grade, &itemsJSON, &a.TextualSummary, &original, &millis); err != nil {
		return nil, err
	}
	a.Subject = models.Subject(subject)
	a.GradeLevel = models.GradeLevel(grade)
	a.OriginalDocumentText = original.String
	a.AnalysisDate = time.UnixMilli(millis).UTC()
	if err := json.Unmarshal([]byte(itemsJSON), &a.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items of %s: %w", a.ID, err)
	}
	return &a, nil
}

// GetAnalysis returns an analysis by ID.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, id string) (*models.InstrumentAnalysis, error) {
	a, err := scanAnalysis(s.db.QueryRowContext(ctx, selectAnalysis+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnalyses returns all analyses ordered by analysis date, newest first.
func (s *SQLiteStorage) ListAnalyses(ctx context.Context) ([]*models.InstrumentAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, selectAnalysis+` ORDER BY analysis_date DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.InstrumentAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes an analysis by ID.
func (s *SQLiteStorage) DeleteAnalysis(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	return err
}

// CountAnalyses returns the number of stored analyses.
func (s *SQLiteStorage) CountAnalyses(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
