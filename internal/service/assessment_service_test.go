package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/catalog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/review"
	"github.com/stemsi/exstem-academy/internal/scheduler"
	"github.com/stemsi/exstem-academy/internal/session"
)

func quiz(title string, minutes int) model.Test {
	return model.Test{
		ID:              uuid.New(),
		Title:           title,
		CourseID:        "math",
		DurationMinutes: minutes,
		Questions: []model.Question{
			{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
			{Prompt: "3*3?", Options: []string{"6", "9"}, CorrectAnswer: "9"},
			{Prompt: "10-7?", Options: []string{"3", "4"}, CorrectAnswer: "3"},
		},
	}
}

type fixture struct {
	svc   *AssessmentService
	store *repository.MemoryStore
	clock *scheduler.Manual
}

// newFixture hosts tests on a memory store. wrap, when set, replaces the
// append path.
func newFixture(t *testing.T, wrap func(*repository.MemoryStore) session.ResultStore, tests ...model.Test) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(tests...)
	clock := scheduler.NewManual()

	var app session.ResultStore = store
	if wrap != nil {
		app = wrap(store)
	}

	svc := NewAssessmentService(store, store, app, clock, SessionSettings{
		TickInterval:  time.Second,
		AppendTimeout: time.Second,
		Retention:     10 * time.Minute,
	}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return &fixture{svc: svc, store: store, clock: clock}
}

func TestStartIsIdempotentPerPair(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.Status != model.AttemptStatusInProgress || first.RemainingSeconds != 60 || first.Clock != "01:00" {
		t.Fatalf("state = %+v", first)
	}

	f.clock.Tick(5)
	again, err := f.svc.Start(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again.RemainingSeconds != 55 {
		t.Errorf("rejoined remaining = %d, want 55", again.RemainingSeconds)
	}
	if f.svc.LiveSessions() != 1 || f.clock.Scheduled() != 1 {
		t.Errorf("sessions = %d, scheduled = %d; want 1, 1", f.svc.LiveSessions(), f.clock.Scheduled())
	}

	if _, err := f.svc.Start(ctx, "u2", q.ID); err != nil {
		t.Fatalf("Start u2: %v", err)
	}
	if f.svc.LiveSessions() != 2 {
		t.Errorf("sessions = %d, want 2", f.svc.LiveSessions())
	}
}

func TestStartErrors(t *testing.T) {
	empty := model.Test{ID: uuid.New(), Title: "Empty", DurationMinutes: 5}
	f := newFixture(t, nil, empty)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown test err = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Start(ctx, "u1", empty.ID); !errors.Is(err, model.ErrNoQuestions) {
		t.Errorf("empty test err = %v, want ErrNoQuestions", err)
	}
	if f.svc.LiveSessions() != 0 || f.clock.Scheduled() != 0 {
		t.Errorf("failed starts left sessions=%d scheduled=%d", f.svc.LiveSessions(), f.clock.Scheduled())
	}
}

func TestNoSession(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)

	if _, err := f.svc.SelectAnswer("u1", q.ID, 0, "4"); !errors.Is(err, model.ErrNoSession) {
		t.Errorf("SelectAnswer err = %v, want ErrNoSession", err)
	}
	if _, _, err := f.svc.Submit(context.Background(), "u1", q.ID); !errors.Is(err, model.ErrNoSession) {
		t.Errorf("Submit err = %v, want ErrNoSession", err)
	}
	if err := f.svc.Abandon("u1", q.ID); !errors.Is(err, model.ErrNoSession) {
		t.Errorf("Abandon err = %v, want ErrNoSession", err)
	}
}

func TestManualSubmitFlow(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		index  int
		option string
	}{{0, "4"}, {1, "6"}, {2, "3"}}
	for _, s := range steps {
		if _, err := f.svc.SelectAnswer("u1", q.ID, s.index, s.option); err != nil {
			t.Fatalf("SelectAnswer(%d): %v", s.index, err)
		}
	}

	if _, err := f.svc.SelectAnswer("u1", q.ID, 7, "4"); !errors.Is(err, model.ErrInvalidIndex) {
		t.Errorf("out of range err = %v, want ErrInvalidIndex", err)
	}
	if _, err := f.svc.SelectAnswer("u1", q.ID, 0, "5"); !errors.Is(err, model.ErrInvalidOption) {
		t.Errorf("foreign option err = %v, want ErrInvalidOption", err)
	}

	submitted, state, err := f.svc.Submit(ctx, "u1", q.ID)
	if err != nil || !submitted {
		t.Fatalf("Submit = %v, %v", submitted, err)
	}
	if state.Result == nil || state.Result.Score != 2 || state.Result.Percentage != 67 {
		t.Fatalf("result = %+v, want 2/3 at 67%%", state.Result)
	}
	if f.clock.Active() != 0 {
		t.Errorf("tick still active after submit")
	}

	submitted, _, err = f.svc.Submit(ctx, "u1", q.ID)
	if err != nil || submitted {
		t.Errorf("second Submit = %v, %v; want false, nil", submitted, err)
	}

	stored, _ := f.store.Query(ctx, model.ForPair(q.ID, "u1"))
	if len(stored) != 1 {
		t.Fatalf("stored results = %d, want 1", len(stored))
	}

	list, err := f.svc.ListAssessments(ctx, "u1", catalog.FilterCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Summary == nil || list[0].Summary.Percentage != 67 {
		t.Fatalf("completed list = %+v", list)
	}
}

func TestTimeoutAutoSubmits(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	f.clock.Tick(59)
	state, _ := f.svc.State("u1", q.ID)
	if state.Status != model.AttemptStatusInProgress || state.Clock != "00:01" {
		t.Fatalf("state after 59 ticks = %s %s", state.Status, state.Clock)
	}

	f.clock.Tick(1)
	state, _ = f.svc.State("u1", q.ID)
	if state.Status != model.AttemptStatusSubmitted || !state.AutoSubmitted {
		t.Fatalf("state after timeout = %+v", state)
	}
	if state.Result == nil || state.Result.Score != 0 || state.Result.Total != 3 {
		t.Fatalf("result = %+v", state.Result)
	}

	submitted, _, err := f.svc.Submit(ctx, "u1", q.ID)
	if err != nil || submitted {
		t.Errorf("Submit after timeout = %v, %v; want false, nil", submitted, err)
	}
	stored, _ := f.store.Query(ctx, model.ForTaker("u1"))
	if len(stored) != 1 || !stored[0].AutoSubmitted {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCompletedTestOpensReview(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Review(ctx, "u1", q.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("Review while in progress err = %v, want ErrInvalidTransition", err)
	}

	if _, err := f.svc.SelectAnswer("u1", q.ID, 0, "4"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.Submit(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	state, err := f.svc.EnterReview("u1", q.ID)
	if err != nil || state.Review == nil {
		t.Fatalf("EnterReview = %+v, %v", state.Review, err)
	}
	if _, err := f.svc.ExitReview("u1", q.ID); err != nil {
		t.Fatalf("ExitReview: %v", err)
	}

	if err := f.svc.Abandon("u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Start(ctx, "u1", q.ID); !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Fatalf("restart err = %v, want ErrAlreadyCompleted", err)
	}

	r, err := f.svc.Review(ctx, "u1", q.ID)
	if err != nil {
		t.Fatalf("Review from store: %v", err)
	}
	if r.Summary.Score != 1 || r.Questions[0].Outcome != review.OutcomeCorrect || r.Questions[1].Outcome != review.OutcomeUnanswered {
		t.Fatalf("review = %+v", r)
	}

	if _, err := f.svc.CompletedReview(ctx, "u2", q.ID); !errors.Is(err, model.ErrNoSession) {
		t.Errorf("CompletedReview without result err = %v, want ErrNoSession", err)
	}
}

func TestAbandonDiscardsAttempt(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, nil, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	ch, stop, err := f.svc.Watch("u1", q.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()
	<-ch

	if err := f.svc.Abandon("u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Error("watch channel still open after abandon")
	}
	if f.clock.Active() != 0 {
		t.Error("tick still active after abandon")
	}
	stored, _ := f.store.Query(ctx, model.ForTaker("u1"))
	if len(stored) != 0 {
		t.Fatalf("abandoned attempt persisted %d results", len(stored))
	}

	// Nothing was recorded, so the taker may start again.
	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatalf("Start after abandon: %v", err)
	}
}

func TestReapFinished(t *testing.T) {
	a, b := quiz("A", 1), quiz("B", 1)
	f := newFixture(t, nil, a, b)
	ctx := context.Background()

	for _, q := range []model.Test{a, b} {
		if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := f.svc.Submit(ctx, "u1", a.ID); err != nil {
		t.Fatal(err)
	}

	if n := f.svc.ReapFinished(time.Now()); n != 0 {
		t.Errorf("reaped %d inside retention, want 0", n)
	}
	if n := f.svc.ReapFinished(time.Now().Add(11 * time.Minute)); n != 1 {
		t.Errorf("reaped %d after retention, want 1", n)
	}
	if _, err := f.svc.State("u1", a.ID); !errors.Is(err, model.ErrNoSession) {
		t.Errorf("finished session still live: %v", err)
	}
	if _, err := f.svc.State("u1", b.ID); err != nil {
		t.Errorf("in-progress session reaped: %v", err)
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Append(context.Context, *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("connection refused")
}

func TestSubmitPersistFailure(t *testing.T) {
	q := quiz("Arithmetic", 1)
	failing := &failingStore{}
	queue := &fakeReconciler{}
	f := newFixture(t, func(*repository.MemoryStore) session.ResultStore {
		return NewRetryingResultStore(failing, queue, 2, 0, zerolog.Nop())
	}, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	submitted, state, err := f.svc.Submit(ctx, "u1", q.ID)
	if !submitted || !errors.Is(err, model.ErrPersist) {
		t.Fatalf("Submit = %v, %v; want true, ErrPersist", submitted, err)
	}
	if state.Status != model.AttemptStatusSubmitted || !state.PersistPending {
		t.Fatalf("state = %s pending=%v", state.Status, state.PersistPending)
	}
	if failing.calls != 3 {
		t.Errorf("append calls = %d, want 3", failing.calls)
	}
	if len(queue.results) != 1 {
		t.Errorf("reconciled = %d, want 1", len(queue.results))
	}
}

func TestUnconfirmedResultBlocksRetake(t *testing.T) {
	q := quiz("Arithmetic", 1)
	queue := &fakeReconciler{}
	f := newFixture(t, func(*repository.MemoryStore) session.ResultStore {
		return NewRetryingResultStore(&failingStore{}, queue, 0, 0, zerolog.Nop())
	}, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SelectAnswer("u1", q.ID, 0, "4"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.Submit(ctx, "u1", q.ID); !errors.Is(err, model.ErrPersist) {
		t.Fatalf("Submit err = %v, want ErrPersist", err)
	}

	if n := f.svc.ReapFinished(time.Now().Add(11 * time.Minute)); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if f.svc.PendingResults() != 1 {
		t.Fatalf("pending = %d, want 1", f.svc.PendingResults())
	}

	if _, err := f.svc.Start(ctx, "u1", q.ID); !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Fatalf("restart after eviction err = %v, want ErrAlreadyCompleted", err)
	}
	if f.svc.LiveSessions() != 0 {
		t.Errorf("restart opened a session")
	}

	list, err := f.svc.ListAssessments(ctx, "u1", catalog.FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Status != catalog.StatusCompleted || list[0].Summary == nil || list[0].Summary.Score != 1 {
		t.Fatalf("catalog = %+v", list)
	}

	r, err := f.svc.Review(ctx, "u1", q.ID)
	if err != nil || r.Summary.Score != 1 {
		t.Fatalf("Review = %+v, %v", r, err)
	}

	// Nothing reached the store yet, so nothing is confirmed.
	if n := f.svc.ConfirmPending(ctx); n != 0 {
		t.Fatalf("confirmed %d before delivery", n)
	}

	// The reconciliation worker delivers the original submission.
	if len(queue.results) != 1 {
		t.Fatalf("queued = %d, want 1", len(queue.results))
	}
	if err := f.store.Append(ctx, queue.results[0]); err != nil {
		t.Fatal(err)
	}
	if n := f.svc.ConfirmPending(ctx); n != 1 || f.svc.PendingResults() != 0 {
		t.Fatalf("confirmed %d, pending %d; want 1, 0", n, f.svc.PendingResults())
	}
	if _, err := f.svc.Start(ctx, "u1", q.ID); !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Fatalf("restart after delivery err = %v, want ErrAlreadyCompleted", err)
	}
}

func TestAbandonKeepsUnconfirmedResult(t *testing.T) {
	q := quiz("Arithmetic", 1)
	f := newFixture(t, func(*repository.MemoryStore) session.ResultStore {
		return NewRetryingResultStore(&failingStore{}, nil, 0, 0, zerolog.Nop())
	}, q)
	ctx := context.Background()

	if _, err := f.svc.Start(ctx, "u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.Submit(ctx, "u1", q.ID); !errors.Is(err, model.ErrPersist) {
		t.Fatalf("Submit err = %v, want ErrPersist", err)
	}
	if err := f.svc.Abandon("u1", q.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Start(ctx, "u1", q.ID); !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Fatalf("restart after abandon err = %v, want ErrAlreadyCompleted", err)
	}
}
