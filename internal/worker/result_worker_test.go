package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
)

type chanSource struct {
	ch       chan *model.Result
	mu       sync.Mutex
	requeued []*model.Result
}

func (s *chanSource) Pop(ctx context.Context, timeout time.Duration) (*model.Result, error) {
	select {
	case r := <-s.ch:
		return r, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Requeue(_ context.Context, r *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, r)
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	failFor  map[uuid.UUID]error
	appended []*model.Result
}

func (s *recordingSink) Append(_ context.Context, r *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[r.ID]; err != nil {
		return err
	}
	s.appended = append(s.appended, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

type batchSink struct {
	recordingSink
	batchErr error
	batches  int
	// stored marks pairs that already have a result; the batch skips them.
	stored map[uuid.UUID]bool
}

func (s *batchSink) AppendBatch(_ context.Context, rs []*model.Result) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	var inserted []uuid.UUID
	for _, r := range rs {
		if s.stored[r.ID] {
			continue
		}
		s.appended = append(s.appended, r)
		inserted = append(inserted, r.ID)
	}
	return inserted, nil
}

// warnLines returns the warn-level entries written to buf.
func warnLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if entry["level"] == "warn" {
			out = append(out, entry)
		}
	}
	return out
}

func result() *model.Result {
	return &model.Result{ID: uuid.New(), TestID: uuid.New(), TakerID: "u1", Total: 1, SubmittedAt: time.Now()}
}

func TestFlushSafeUsesBatch(t *testing.T) {
	sink := &batchSink{}
	w := NewResultWorker(&chanSource{}, sink, zerolog.Nop())

	w.flushSafe(context.Background(), []*model.Result{result(), result()})
	if sink.batches != 1 || len(sink.appended) != 2 {
		t.Fatalf("batches=%d appended=%d, want 1, 2", sink.batches, len(sink.appended))
	}
}

func TestFlushSafeWarnsOnSkippedDuplicate(t *testing.T) {
	fresh, late := result(), result()
	sink := &batchSink{stored: map[uuid.UUID]bool{late.ID: true}}
	var buf bytes.Buffer
	w := NewResultWorker(&chanSource{}, sink, zerolog.New(&buf))

	w.flushSafe(context.Background(), []*model.Result{fresh, late})

	if len(sink.appended) != 1 || sink.appended[0].ID != fresh.ID {
		t.Fatalf("appended = %v", sink.appended)
	}
	warns := warnLines(t, &buf)
	if len(warns) != 1 {
		t.Fatalf("warn entries = %d, want 1: %s", len(warns), buf.String())
	}
	if warns[0]["result_id"] != late.ID.String() ||
		warns[0]["test_id"] != late.TestID.String() ||
		warns[0]["taker_id"] != late.TakerID {
		t.Errorf("warn entry = %v", warns[0])
	}
}

func TestFlushSafeFallback(t *testing.T) {
	ok, dup, broken := result(), result(), result()
	sink := &batchSink{
		recordingSink: recordingSink{failFor: map[uuid.UUID]error{
			dup.ID:    model.ErrDuplicateResult,
			broken.ID: errors.New("db down"),
		}},
		batchErr: errors.New("batch failed"),
	}
	source := &chanSource{}
	var buf bytes.Buffer
	w := NewResultWorker(source, sink, zerolog.New(&buf))

	w.flushSafe(context.Background(), []*model.Result{ok, dup, broken})

	dupWarned := false
	for _, e := range warnLines(t, &buf) {
		if e["result_id"] == dup.ID.String() && e["taker_id"] == dup.TakerID {
			dupWarned = true
		}
	}
	if !dupWarned {
		t.Errorf("duplicate not reported at warn: %s", buf.String())
	}

	if len(sink.appended) != 1 || sink.appended[0].ID != ok.ID {
		t.Fatalf("appended = %v", sink.appended)
	}
	if len(source.requeued) != 1 || source.requeued[0].ID != broken.ID {
		t.Fatalf("requeued = %v, want only the failed result", source.requeued)
	}
}

func TestStartDrainsAndFlushesOnShutdown(t *testing.T) {
	source := &chanSource{ch: make(chan *model.Result, 4)}
	sink := &recordingSink{}
	w := NewResultWorker(source, sink, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		source.ch <- result()
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(source.ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	if sink.count() != 3 {
		t.Fatalf("appended = %d, want 3", sink.count())
	}
}

// TestResultQueueRedis needs a Redis server; set REDIS_TEST_URL to run it.
func TestResultQueueRedis(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	q := NewResultQueue(rdb)
	q.key = "test:" + uuid.NewString()
	defer rdb.Del(ctx, q.key)

	in := result()
	in.Answers = map[int]string{0: "4"}
	if err := q.Enqueue(ctx, in); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}

	out, err := q.Pop(ctx, time.Second)
	if err != nil || out == nil {
		t.Fatalf("Pop = %v, %v", out, err)
	}
	if out.ID != in.ID || out.Answers[0] != "4" {
		t.Fatalf("popped %+v", out)
	}

	empty, err := q.Pop(ctx, time.Second)
	if err != nil || empty != nil {
		t.Fatalf("Pop on empty queue = %v, %v", empty, err)
	}
}
