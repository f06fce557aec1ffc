package survey

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/stimulus"
	"github.com/pavelanni/trivia/internal/store"
)

type recordingSink struct {
	batches [][]model.Record
	fail    error
}

func (s *recordingSink) Append(_ context.Context, batch []model.Record) error {
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, append([]model.Record(nil), batch...))
	return nil
}

func corpus(nTrue, nFalse int) []model.Stimulus {
	var out []model.Stimulus
	for i := 0; i < nTrue; i++ {
		out = append(out, model.Stimulus{ID: fmt.Sprintf("t%d", i), Text: fmt.Sprintf("true %d", i), Truth: true, Photo: fmt.Sprintf("t%d.png", i)})
	}
	for i := 0; i < nFalse; i++ {
		out = append(out, model.Stimulus{ID: fmt.Sprintf("f%d", i), Text: fmt.Sprintf("false %d", i), Photo: fmt.Sprintf("f%d.png", i)})
	}
	return out
}

func newTestService(t *testing.T, sink Sink) (*Service, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q := stimulus.DefaultQuota
	pool, err := stimulus.Partition(corpus(20, 20), q.NTrue, q.NFalse)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	svc, err := NewService(st, sink, pool, q)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	clock := t0
	svc.now = func() time.Time {
		clock = clock.Add(750 * time.Millisecond)
		return clock
	}
	seed := uint64(0)
	svc.newRand = func() *rand.Rand {
		seed++
		return rand.New(rand.NewPCG(seed, 99))
	}
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("participant-%d", n)
	}
	return svc, st
}

func TestNewServiceInvalidPool(t *testing.T) {
	pool, _ := stimulus.Partition(corpus(3, 20), 0, 0)
	_, err := NewService(&store.Store{}, &recordingSink{}, pool, stimulus.DefaultQuota)
	var ipe *stimulus.InvalidPoolError
	if !errors.As(err, &ipe) {
		t.Fatalf("expected InvalidPoolError, got %v", err)
	}
}

func TestServiceEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	svc, st := newTestService(t, sink)
	ctx := context.Background()

	sess, err := svc.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Phase != model.PhaseInstructions {
		t.Fatalf("expected instructions, got %q", sess.Phase)
	}
	if len(sess.Sequence) != 16 {
		t.Fatalf("expected 16 stimuli, got %d", len(sess.Sequence))
	}
	pt, pf := stimulus.CountPhotos(sess.Sequence)
	if pt != 4 || pf != 4 {
		t.Fatalf("expected 4/4 photos, got %d/%d", pt, pf)
	}

	if sess, err = svc.Acknowledge(ctx, sess.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	for i := 0; i < 16; i++ {
		cur, err := svc.Current(sess.ID)
		if err != nil {
			t.Fatalf("Current %d: %v", i, err)
		}
		if cur.PresentedAt == nil {
			t.Fatalf("stimulus %d not stamped as presented", i)
		}
		sess, err = svc.Submit(ctx, sess.ID, i, model.AnswerTrue, fmt.Sprintf("because %d", i))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	if sess.Phase != model.PhaseComplete || !sess.Persisted {
		t.Fatalf("expected complete and persisted, got %q persisted=%v", sess.Phase, sess.Persisted)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected exactly one batch, got %d", len(sink.batches))
	}
	batch := sink.batches[0]
	if len(batch) != 16 {
		t.Fatalf("expected 16 rows, got %d", len(batch))
	}
	for i, row := range batch {
		if row.StimulusID != sess.Sequence[i].ID {
			t.Errorf("row %d stimulus %s, want %s", i, row.StimulusID, sess.Sequence[i].ID)
		}
		if row.ResponseTime != 0.75 {
			t.Errorf("row %d response time %v, want 0.75", i, row.ResponseTime)
		}
	}

	stored, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !stored.Persisted || len(stored.Responses) != 16 {
		t.Errorf("stored session not final: persisted=%v responses=%d", stored.Persisted, len(stored.Responses))
	}

	if _, err := svc.Submit(ctx, sess.ID, 16, model.AnswerTrue, "again"); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("expected ErrSessionComplete, got %v", err)
	}
	if _, err := svc.RetryPersist(ctx, sess.ID); !errors.Is(err, ErrAlreadyPersisted) {
		t.Errorf("expected ErrAlreadyPersisted, got %v", err)
	}
}

func TestServicePlaceholderAnswer(t *testing.T) {
	svc, st := newTestService(t, &recordingSink{})
	ctx := context.Background()

	sess, _ := svc.Start()
	_, _ = svc.Acknowledge(ctx, sess.ID)
	_, _ = svc.Current(sess.ID)

	got, err := svc.Submit(ctx, sess.ID, 0, model.ParseAnswer("-- Select an answer --"), "some text")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got.Phase != model.PhaseAnswering || got.Position != 0 {
		t.Errorf("expected answering at 0, got %q at %d", got.Phase, got.Position)
	}

	stored, _ := st.GetSession(sess.ID)
	if stored.Position != 0 || len(stored.Responses) != 0 {
		t.Errorf("stored session changed: position=%d responses=%d", stored.Position, len(stored.Responses))
	}
}

func TestServicePersistenceFailureAndRetry(t *testing.T) {
	sink := &recordingSink{fail: errors.New("sheet unavailable")}
	svc, st := newTestService(t, sink)
	ctx := context.Background()

	sess, _ := svc.Start()
	if _, err := svc.RetryPersist(ctx, sess.ID); !errors.Is(err, ErrNotComplete) {
		t.Errorf("expected ErrNotComplete before completion, got %v", err)
	}
	_, _ = svc.Acknowledge(ctx, sess.ID)

	var err error
	for i := 0; i < 16; i++ {
		sess, err = svc.Submit(ctx, sess.ID, i, model.AnswerFalse, "meh")
	}
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Rows != 16 {
		t.Errorf("expected 16 rows in failed batch, got %d", perr.Rows)
	}
	if sess.Phase != model.PhaseComplete || sess.Persisted {
		t.Fatalf("expected complete and unpersisted, got %q persisted=%v", sess.Phase, sess.Persisted)
	}

	stored, _ := st.GetSession(sess.ID)
	if len(stored.Responses) != 16 {
		t.Fatalf("batch must be kept after failure, got %d responses", len(stored.Responses))
	}

	sink.fail = nil
	sess, err = svc.RetryPersist(ctx, sess.ID)
	if err != nil {
		t.Fatalf("RetryPersist: %v", err)
	}
	if !sess.Persisted || len(sink.batches) != 1 || len(sink.batches[0]) != 16 {
		t.Errorf("retry did not deliver the batch: persisted=%v batches=%d", sess.Persisted, len(sink.batches))
	}
}

func TestServiceUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &recordingSink{})
	if _, err := svc.Current("nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceConditionAssignment(t *testing.T) {
	svc, _ := newTestService(t, &recordingSink{})
	seen := make(map[model.Condition]bool)
	for i := 0; i < 20; i++ {
		sess, err := svc.Start()
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if !sess.Condition.Valid() {
			t.Fatalf("invalid condition %q", sess.Condition)
		}
		seen[sess.Condition] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both conditions across 20 sessions, got %v", seen)
	}
}

func TestServiceRepeatedSubmission(t *testing.T) {
	svc, st := newTestService(t, &recordingSink{})
	ctx := context.Background()

	sess, _ := svc.Start()
	_, _ = svc.Acknowledge(ctx, sess.ID)
	_, _ = svc.Current(sess.ID)

	if _, err := svc.Submit(ctx, sess.ID, 0, model.AnswerTrue, "about the first"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := svc.Submit(ctx, sess.ID, 0, model.AnswerTrue, "about the first")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for a repeated position, got %v", err)
	}
	if got.Position != 1 {
		t.Errorf("expected session left at position 1, got %d", got.Position)
	}

	stored, err := st.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if stored.Position != 1 || len(stored.Responses) != 1 {
		t.Errorf("repeated submission was recorded: position=%d responses=%d", stored.Position, len(stored.Responses))
	}
	if stored.Responses[0].StimulusID != sess.Sequence[0].ID {
		t.Errorf("response attached to %q, want %q", stored.Responses[0].StimulusID, sess.Sequence[0].ID)
	}
}
