// Package catalog lists the assessments offered to a taker together with
// their completion status, derived from the Test Catalog and the Result Store.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/scoring"
)

// Status is the completion status of an assessment for one taker.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// StatusFilter selects one of the catalog views.
type StatusFilter string

const (
	FilterAll       StatusFilter = "all"
	FilterPending   StatusFilter = "pending"
	FilterCompleted StatusFilter = "completed"
)

// ParseStatusFilter parses a view name. An empty string means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// TestLister is the read side of the Test Catalog used here.
type TestLister interface {
	ListTests(ctx context.Context) ([]model.Test, error)
}

// ResultQuerier is the read side of the Result Store used here.
type ResultQuerier interface {
	Query(ctx context.Context, filter model.ResultFilter) ([]model.Result, error)
}

// Assessment is one catalog row.
type Assessment struct {
	TestID          uuid.UUID        `json:"test_id"`
	Title           string           `json:"title"`
	CourseID        string           `json:"course_id"`
	DurationMinutes int              `json:"duration_minutes"`
	QuestionCount   int              `json:"question_count"`
	Status          Status           `json:"status"`
	Summary         *scoring.Summary `json:"summary,omitempty"`
}

// Catalog joins test definitions with recorded results.
type Catalog struct {
	tests   TestLister
	results ResultQuerier
	log     zerolog.Logger
}

// New creates a Catalog.
func New(tests TestLister, results ResultQuerier, log zerolog.Logger) *Catalog {
	return &Catalog{
		tests:   tests,
		results: results,
		log:     log.With().Str("component", "catalog").Logger(),
	}
}

// ListAssessments returns every deliverable test in catalog order with the
// taker's status. Tests that fail validation, including tests without
// questions, are never offered.
func (c *Catalog) ListAssessments(ctx context.Context, takerID string) ([]Assessment, error) {
	tests, err := c.tests.ListTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}

	results, err := c.results.Query(ctx, model.ForTaker(takerID))
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	// Earliest submission wins if the one-result-per-pair rule was ever broken.
	byTest := make(map[uuid.UUID]*model.Result, len(results))
	for i := range results {
		r := &results[i]
		if r.TakerID != takerID {
			continue
		}
		prev, ok := byTest[r.TestID]
		if !ok {
			byTest[r.TestID] = r
			continue
		}
		c.log.Warn().
			Str("test_id", r.TestID.String()).
			Str("taker_id", takerID).
			Msg("Multiple results recorded for one test")
		if r.SubmittedAt.Before(prev.SubmittedAt) {
			byTest[r.TestID] = r
		}
	}

	list := make([]Assessment, 0, len(tests))
	for i := range tests {
		t := &tests[i]
		if err := t.Validate(); err != nil {
			c.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("Test not offered")
			continue
		}

		a := Assessment{
			TestID:          t.ID,
			Title:           t.Title,
			CourseID:        t.CourseID,
			DurationMinutes: t.DurationMinutes,
			QuestionCount:   len(t.Questions),
			Status:          StatusPending,
		}

		if r, ok := byTest[t.ID]; ok {
			sum, err := scoring.Summarize(r.Score, r.Total)
			if err != nil {
				c.log.Warn().Err(err).Str("result_id", r.ID.String()).Msg("Result has no total")
			} else {
				a.Summary = &sum
			}
			a.Status = StatusCompleted
		}

		list = append(list, a)
	}
	return list, nil
}

// Filter keeps the assessments for which keep returns true, preserving order.
func Filter(list []Assessment, keep func(Assessment) bool) []Assessment {
	out := make([]Assessment, 0, len(list))
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// FilterByStatus applies one of the all/pending/completed views.
func FilterByStatus(list []Assessment, f StatusFilter) []Assessment {
	switch f {
	case FilterPending:
		return Filter(list, func(a Assessment) bool { return a.Status == StatusPending })
	case FilterCompleted:
		return Filter(list, func(a Assessment) bool { return a.Status == StatusCompleted })
	default:
		return Filter(list, func(Assessment) bool { return true })
	}
}
