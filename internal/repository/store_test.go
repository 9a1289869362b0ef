package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/model"

	_ "modernc.org/sqlite"
)

// backend is the union the engine needs from a storage driver.
type backend interface {
	GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListTests(ctx context.Context) ([]model.Test, error)
	Append(ctx context.Context, r *model.Result) error
	Query(ctx context.Context, filter model.ResultFilter) ([]model.Result, error)
}

func sampleTest(title string) model.Test {
	return model.Test{
		ID:              uuid.New(),
		Title:           title,
		CourseID:        "c1",
		DurationMinutes: 1,
		Questions: []model.Question{
			{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
			{Prompt: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
		},
	}
}

func sampleResult(testID uuid.UUID, taker string, at time.Time) *model.Result {
	return &model.Result{
		ID:          uuid.New(),
		TestID:      testID,
		TakerID:     taker,
		Score:       1,
		Total:       2,
		Answers:     map[int]string{0: "4", 1: "Rome"},
		SubmittedAt: at,
	}
}

func newSQLiteBackend(t *testing.T, tests ...model.Test) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	for i := range tests {
		if err := store.PutTest(ctx, &tests[i], i); err != nil {
			t.Fatalf("PutTest: %v", err)
		}
	}
	return store
}

func runBackendSuite(t *testing.T, open func(t *testing.T, tests ...model.Test) backend) {
	ctx := context.Background()

	t.Run("catalog order and lookup", func(t *testing.T) {
		a, b := sampleTest("Algebra"), sampleTest("Biology")
		s := open(t, a, b)

		list, err := s.ListTests(ctx)
		if err != nil {
			t.Fatalf("ListTests: %v", err)
		}
		if len(list) != 2 || list[0].Title != "Algebra" || list[1].Title != "Biology" {
			t.Fatalf("ListTests = %+v", list)
		}

		got, err := s.GetTest(ctx, b.ID)
		if err != nil {
			t.Fatalf("GetTest: %v", err)
		}
		if got.Title != "Biology" || len(got.Questions) != 2 || got.Questions[1].CorrectAnswer != "Paris" {
			t.Fatalf("GetTest = %+v", got)
		}
	})

	t.Run("unknown test", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetTest(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("append and query", func(t *testing.T) {
		tt := sampleTest("Algebra")
		s := open(t, tt)
		now := time.Now().UTC().Truncate(time.Millisecond)

		if err := s.Append(ctx, sampleResult(tt.ID, "u1", now)); err != nil {
			t.Fatalf("Append u1: %v", err)
		}
		if err := s.Append(ctx, sampleResult(tt.ID, "u2", now.Add(time.Second))); err != nil {
			t.Fatalf("Append u2: %v", err)
		}

		all, err := s.Query(ctx, model.ResultFilter{TestID: &tt.ID})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(all) != 2 || all[0].TakerID != "u1" {
			t.Fatalf("Query = %+v", all)
		}

		mine, err := s.Query(ctx, model.ForPair(tt.ID, "u2"))
		if err != nil {
			t.Fatalf("Query pair: %v", err)
		}
		if len(mine) != 1 {
			t.Fatalf("pair results = %d, want 1", len(mine))
		}
		r := mine[0]
		if r.Score != 1 || r.Total != 2 || r.Answers[1] != "Rome" || r.AutoSubmitted {
			t.Fatalf("round trip mismatch: %+v", r)
		}
		if !r.SubmittedAt.Equal(now.Add(time.Second)) {
			t.Fatalf("SubmittedAt = %v, want %v", r.SubmittedAt, now.Add(time.Second))
		}
	})

	t.Run("duplicate pair rejected", func(t *testing.T) {
		tt := sampleTest("Algebra")
		s := open(t, tt)
		now := time.Now()

		if err := s.Append(ctx, sampleResult(tt.ID, "u1", now)); err != nil {
			t.Fatalf("first Append: %v", err)
		}
		if err := s.Append(ctx, sampleResult(tt.ID, "u1", now)); !errors.Is(err, model.ErrDuplicateResult) {
			t.Fatalf("second Append err = %v, want ErrDuplicateResult", err)
		}
		got, _ := s.Query(ctx, model.ForTaker("u1"))
		if len(got) != 1 {
			t.Fatalf("results = %d, want 1", len(got))
		}
	})

	t.Run("auto submitted flag", func(t *testing.T) {
		tt := sampleTest("Algebra")
		s := open(t, tt)
		r := sampleResult(tt.ID, "u1", time.Now())
		r.AutoSubmitted = true
		r.Answers = map[int]string{}
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, _ := s.Query(ctx, model.ForTaker("u1"))
		if len(got) != 1 || !got[0].AutoSubmitted || len(got[0].Answers) != 0 {
			t.Fatalf("got %+v", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runBackendSuite(t, func(_ *testing.T, tests ...model.Test) backend {
		return NewMemoryStore(tests...)
	})
}

func TestSQLiteStore(t *testing.T) {
	runBackendSuite(t, func(t *testing.T, tests ...model.Test) backend {
		return newSQLiteBackend(t, tests...)
	})
}

func TestMemoryStoreQueryIsolation(t *testing.T) {
	tt := sampleTest("Algebra")
	s := NewMemoryStore(tt)
	ctx := context.Background()
	if err := s.Append(ctx, sampleResult(tt.ID, "u1", time.Now())); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Query(ctx, model.ForTaker("u1"))
	got[0].Answers[0] = "tampered"

	again, _ := s.Query(ctx, model.ForTaker("u1"))
	if again[0].Answers[0] != "4" {
		t.Fatalf("stored result mutated through query: %q", again[0].Answers[0])
	}
}

func TestSQLitePutTestReplaces(t *testing.T) {
	tt := sampleTest("Algebra")
	s := newSQLiteBackend(t, tt)
	ctx := context.Background()

	tt.Title = "Algebra II"
	tt.Questions = tt.Questions[:1]
	if err := s.PutTest(ctx, &tt, 0); err != nil {
		t.Fatalf("PutTest: %v", err)
	}
	got, err := s.GetTest(ctx, tt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Algebra II" || len(got.Questions) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadTestsFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "tests.json")
	body := `{"tests":[{"title":"Quiz","course_id":"c1","duration_minutes":5,
		"questions":[{"prompt":"2+2?","options":["3","4"],"correct_answer":"4"}]}]}`
	if err := os.WriteFile(good, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	tests, err := LoadTestsFile(good)
	if err != nil {
		t.Fatalf("LoadTestsFile: %v", err)
	}
	if len(tests) != 1 || tests[0].ID == uuid.Nil || tests[0].Questions[0].CorrectAnswer != "4" {
		t.Fatalf("tests = %+v", tests)
	}

	bad := filepath.Join(dir, "bad.json")
	body = `{"tests":[{"title":"Broken","duration_minutes":5,
		"questions":[{"prompt":"?","options":["a","b"],"correct_answer":"c"}]}]}`
	if err := os.WriteFile(bad, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTestsFile(bad); !errors.Is(err, model.ErrInvalidTest) {
		t.Fatalf("err = %v, want ErrInvalidTest", err)
	}

	if _, err := LoadTestsFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
