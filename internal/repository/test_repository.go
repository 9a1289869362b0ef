package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-academy/internal/model"
)

// TestRepository is the PostgreSQL Test Catalog.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetTest retrieves a test and its questions by id.
func (r *TestRepository) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, course_id, duration_minutes
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.CourseID, &t.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}

	questions, err := r.listQuestions(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	t.Questions = questions[id]
	return t, nil
}

// ListTests returns every test in catalog order.
func (r *TestRepository) ListTests(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, course_id, duration_minutes
		 FROM tests
		 ORDER BY position, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	var ids []uuid.UUID
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.CourseID, &t.DurationMinutes); err != nil {
			return nil, err
		}
		tests = append(tests, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return tests, nil
	}

	questions, err := r.listQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tests {
		tests[i].Questions = questions[tests[i].ID]
	}
	return tests, nil
}

// listQuestions loads the questions of several tests in one round trip.
func (r *TestRepository) listQuestions(ctx context.Context, testIDs []uuid.UUID) (map[uuid.UUID][]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT test_id, id, prompt, options, correct_answer
		 FROM test_questions
		 WHERE test_id = ANY($1)
		 ORDER BY test_id, position`, testIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Question, len(testIDs))
	for rows.Next() {
		var (
			testID uuid.UUID
			qID    uuid.UUID
			q      model.Question
		)
		if err := rows.Scan(&testID, &qID, &q.Prompt, &q.Options, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		q.ID = &qID
		out[testID] = append(out[testID], q)
	}
	return out, rows.Err()
}

// Upsert writes a test definition and replaces its questions in one
// transaction. Used by the catalog seeder, never by the engine.
func (r *TestRepository) Upsert(ctx context.Context, t *model.Test, position int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO tests (id, title, course_id, duration_minutes, position)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title,
		     course_id = EXCLUDED.course_id,
		     duration_minutes = EXCLUDED.duration_minutes,
		     position = EXCLUDED.position,
		     updated_at = NOW()`,
		t.ID, t.Title, t.CourseID, t.DurationMinutes, position)
	if err != nil {
		return fmt.Errorf("upsert test: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM test_questions WHERE test_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	batch := &pgx.Batch{}
	for i, q := range t.Questions {
		qID := uuid.New()
		if q.ID != nil {
			qID = *q.ID
		}
		batch.Queue(
			`INSERT INTO test_questions (id, test_id, position, prompt, options, correct_answer)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			qID, t.ID, i, q.Prompt, q.Options, q.CorrectAnswer)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}
