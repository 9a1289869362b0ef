package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tests (
	id               TEXT PRIMARY KEY,
	position         INTEGER NOT NULL DEFAULT 0,
	title            TEXT NOT NULL,
	course_id        TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL,
	questions        TEXT NOT NULL,
	created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id             TEXT PRIMARY KEY,
	test_id        TEXT NOT NULL,
	taker_id       TEXT NOT NULL,
	score          INTEGER NOT NULL,
	total          INTEGER NOT NULL,
	answers        TEXT NOT NULL,
	auto_submitted INTEGER NOT NULL DEFAULT 0,
	submitted_at   INTEGER NOT NULL,
	UNIQUE (test_id, taker_id)
);

CREATE INDEX IF NOT EXISTS idx_results_taker ON results (taker_id);
`

// SQLiteStore is a single-file Test Catalog and Result Store for local and
// small deployments. Questions are stored as a JSON column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the schema exists and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// PutTest inserts or replaces a test definition at position.
func (s *SQLiteStore) PutTest(ctx context.Context, t *model.Test, position int) error {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tests (id, position, title, course_id, duration_minutes, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET position = excluded.position,
		     title = excluded.title,
		     course_id = excluded.course_id,
		     duration_minutes = excluded.duration_minutes,
		     questions = excluded.questions`,
		t.ID.String(), position, t.Title, t.CourseID, t.DurationMinutes, string(questions), time.Now().UnixNano())
	return err
}

// GetTest retrieves a test by id.
func (s *SQLiteStore) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, course_id, duration_minutes, questions
		 FROM tests WHERE id = ?`, id.String())
	t, err := scanSQLiteTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListTests returns every test in catalog order.
func (s *SQLiteStore) ListTests(ctx context.Context) ([]model.Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, course_id, duration_minutes, questions
		 FROM tests ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		t, err := scanSQLiteTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTest(row rowScanner) (*model.Test, error) {
	var (
		t         model.Test
		id        string
		questions string
	)
	if err := row.Scan(&id, &t.Title, &t.CourseID, &t.DurationMinutes, &questions); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse test id %q: %w", id, err)
	}
	t.ID = parsed
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of %s: %w", id, err)
	}
	return &t, nil
}

// Append inserts a result, rejecting a second one for the same pair.
func (s *SQLiteStore) Append(ctx context.Context, res *model.Result) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	out, err := s.db.ExecContext(ctx,
		`INSERT INTO results (id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (test_id, taker_id) DO NOTHING`,
		res.ID.String(), res.TestID.String(), res.TakerID, res.Score, res.Total,
		string(answers), res.AutoSubmitted, res.SubmittedAt.UnixNano())
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrDuplicateResult
	}
	return nil
}

// Query returns results matching filter, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, filter model.ResultFilter) ([]model.Result, error) {
	query := `SELECT id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at
	          FROM results WHERE 1 = 1`
	var args []any
	if filter.TestID != nil {
		query += " AND test_id = ?"
		args = append(args, filter.TestID.String())
	}
	if filter.TakerID != nil {
		query += " AND taker_id = ?"
		args = append(args, *filter.TakerID)
	}
	query += " ORDER BY submitted_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var (
			res         model.Result
			id, testID  string
			answers     string
			submittedAt int64
		)
		if err := rows.Scan(&id, &testID, &res.TakerID, &res.Score, &res.Total,
			&answers, &res.AutoSubmitted, &submittedAt); err != nil {
			return nil, err
		}
		if res.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse result id %q: %w", id, err)
		}
		if res.TestID, err = uuid.Parse(testID); err != nil {
			return nil, fmt.Errorf("parse test id %q: %w", testID, err)
		}
		if err := json.Unmarshal([]byte(answers), &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", id, err)
		}
		res.SubmittedAt = time.Unix(0, submittedAt).UTC()
		results = append(results, res)
	}
	return results, rows.Err()
}
