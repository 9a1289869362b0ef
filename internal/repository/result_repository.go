package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-academy/internal/model"
)

// ResultRepository is the PostgreSQL Result Store. Rows are only ever
// inserted; UNIQUE (test_id, taker_id) keeps one result per pair.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Append inserts a result. ErrDuplicateResult is returned when the pair
// already has one.
func (r *ResultRepository) Append(ctx context.Context, res *model.Result) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO results (id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		 ON CONFLICT (test_id, taker_id) DO NOTHING
		 RETURNING id`,
		res.ID, res.TestID, res.TakerID, res.Score, res.Total, string(answers), res.AutoSubmitted, res.SubmittedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrDuplicateResult
		}
		return err
	}
	return nil
}

// AppendBatch inserts many results in one statement, skipping pairs that
// already have a result. Returns the ids of the rows inserted.
func (r *ResultRepository) AppendBatch(ctx context.Context, batch []*model.Result) ([]uuid.UUID, error) {
	n := len(batch)
	if n == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, n)
	testIDs := make([]uuid.UUID, n)
	takers := make([]string, n)
	scores := make([]int32, n)
	totals := make([]int32, n)
	answers := make([]string, n)
	autos := make([]bool, n)
	submittedAts := make([]time.Time, n)

	for i, res := range batch {
		raw, err := json.Marshal(res.Answers)
		if err != nil {
			return nil, fmt.Errorf("marshal answers: %w", err)
		}
		ids[i] = res.ID
		testIDs[i] = res.TestID
		takers[i] = res.TakerID
		scores[i] = int32(res.Score)
		totals[i] = int32(res.Total)
		answers[i] = string(raw)
		autos[i] = res.AutoSubmitted
		submittedAts[i] = res.SubmittedAt
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO results (id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at)
		SELECT u.id, u.test_id, u.taker_id, u.score, u.total, u.answers::jsonb, u.auto_submitted, u.submitted_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::text[],
			$4::int[],
			$5::int[],
			$6::text[],
			$7::bool[],
			$8::timestamptz[]
		) AS u (id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at)
		ON CONFLICT (test_id, taker_id) DO NOTHING
		RETURNING id
	`, ids, testIDs, takers, scores, totals, answers, autos, submittedAts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inserted := make([]uuid.UUID, 0, n)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan inserted id: %w", err)
		}
		inserted = append(inserted, id)
	}
	return inserted, rows.Err()
}

// Query returns results matching filter, oldest first.
func (r *ResultRepository) Query(ctx context.Context, filter model.ResultFilter) ([]model.Result, error) {
	query := `SELECT id, test_id, taker_id, score, total, answers, auto_submitted, submitted_at
	          FROM results WHERE TRUE`
	var args []any

	if filter.TestID != nil {
		args = append(args, *filter.TestID)
		query += fmt.Sprintf(" AND test_id = $%d", len(args))
	}
	if filter.TakerID != nil {
		args = append(args, *filter.TakerID)
		query += fmt.Sprintf(" AND taker_id = $%d", len(args))
	}
	query += " ORDER BY submitted_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var (
			res model.Result
			raw []byte
		)
		if err := rows.Scan(&res.ID, &res.TestID, &res.TakerID, &res.Score, &res.Total,
			&raw, &res.AutoSubmitted, &res.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", res.ID, err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
