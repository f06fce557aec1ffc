package survey

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/trivia/internal/model"
)

var t0 = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func testSequence(n int) []model.Stimulus {
	seq := make([]model.Stimulus, n)
	for i := range seq {
		seq[i] = model.Stimulus{
			ID:        fmt.Sprintf("s%d", i),
			Text:      fmt.Sprintf("statement %d", i),
			Truth:     i%2 == 0,
			Photo:     fmt.Sprintf("p%d.png", i),
			ShowPhoto: i < 2,
		}
	}
	return seq
}

func answering(t *testing.T, n int) *model.Session {
	t.Helper()
	s := NewSession("pid", model.ConditionExplain, testSequence(n), t0)
	if err := Acknowledge(s, t0); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	return s
}

func TestNewSession(t *testing.T) {
	s := NewSession("pid", model.ConditionEmotion, testSequence(3), t0)
	if s.Phase != model.PhaseInstructions {
		t.Errorf("expected instructions phase, got %q", s.Phase)
	}
	if s.Position != 0 || len(s.Responses) != 0 {
		t.Errorf("expected empty progress, got position=%d responses=%d", s.Position, len(s.Responses))
	}
	if _, ok := s.Current(); ok {
		t.Error("no stimulus should be pending before acknowledgement")
	}
}

func TestAcknowledge(t *testing.T) {
	s := NewSession("pid", model.ConditionEmotion, testSequence(3), t0)
	if err := Acknowledge(s, t0); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if s.Phase != model.PhaseAnswering {
		t.Errorf("expected answering phase, got %q", s.Phase)
	}
	if len(s.Responses) != 0 {
		t.Errorf("acknowledge must not touch responses")
	}
	if err := Acknowledge(s, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second acknowledge, got %v", err)
	}
}

func TestAcknowledgeEmptySequence(t *testing.T) {
	s := NewSession("pid", model.ConditionEmotion, nil, t0)
	if err := Acknowledge(s, t0); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if s.Phase != model.PhaseComplete {
		t.Errorf("expected empty session to complete, got %q", s.Phase)
	}
	rows, err := Batch(s)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected empty batch, got %d rows, %v", len(rows), err)
	}
}

func TestSubmitBeforeAcknowledge(t *testing.T) {
	s := NewSession("pid", model.ConditionEmotion, testSequence(3), t0)
	_, err := Submit(s, model.AnswerTrue, "because", t0)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCheckPosition(t *testing.T) {
	s := NewSession("pid", model.ConditionExplain, testSequence(3), t0)
	if err := CheckPosition(s, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("before acknowledge: expected ErrInvalidTransition, got %v", err)
	}
	if err := Acknowledge(s, t0); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	tests := []struct {
		name     string
		position int
		wantErr  bool
	}{
		{"pending", 0, false},
		{"already answered", -1, true},
		{"ahead", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPosition(s, tt.position)
			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error %v", err)
			}
		})
	}

	for i := 0; i < 3; i++ {
		if _, err := Submit(s, model.AnswerTrue, "x", t0); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := CheckPosition(s, 3); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("after completion: expected ErrSessionComplete, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name        string
		answer      model.Answer
		text        string
		wantAnswer  bool
		wantMissing bool
	}{
		{"placeholder answer", model.AnswerUnset, "a reason", true, false},
		{"unknown answer", model.ParseAnswer("Maybe"), "a reason", true, false},
		{"empty text", model.AnswerTrue, "", false, true},
		{"whitespace text", model.AnswerFalse, " \n\t ", false, true},
		{"both missing", model.AnswerUnset, "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := answering(t, 3)
			Present(s, t0)
			before := *s
			before.Responses = append([]model.Response(nil), s.Responses...)

			resp, err := Submit(s, tt.answer, tt.text, t0.Add(time.Second))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if resp != nil {
				t.Error("no response expected on validation failure")
			}
			if verr.MissingAnswer != tt.wantAnswer || verr.MissingText != tt.wantMissing {
				t.Errorf("got %+v", verr)
			}
			if diff := cmp.Diff(&before, s); diff != "" {
				t.Errorf("session mutated (-before +after):\n%s", diff)
			}
		})
	}
}

func TestSubmitAdvances(t *testing.T) {
	s := answering(t, 3)

	for i := 0; i < 3; i++ {
		Present(s, t0.Add(time.Duration(i)*time.Minute))
		// A reload must not reset the presentation time.
		if Present(s, t0.Add(time.Hour)) {
			t.Fatal("second Present should not change the session")
		}
		resp, err := Submit(s, model.AnswerFalse, fmt.Sprintf("reason %d", i), t0.Add(time.Duration(i)*time.Minute+1500*time.Millisecond))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if resp.StimulusID != s.Sequence[i].ID {
			t.Errorf("response %d for %s, want %s", i, resp.StimulusID, s.Sequence[i].ID)
		}
		if resp.ResponseTime != 1.5 {
			t.Errorf("response %d time = %v, want 1.5", i, resp.ResponseTime)
		}
		if len(s.Responses) != s.Position {
			t.Fatalf("responses (%d) out of step with position (%d)", len(s.Responses), s.Position)
		}
	}

	if s.Phase != model.PhaseComplete {
		t.Fatalf("expected complete, got %q", s.Phase)
	}
	if s.CompletedAt == nil {
		t.Error("expected completed_at")
	}
	for i, r := range s.Responses {
		if r.StimulusID != s.Sequence[i].ID {
			t.Errorf("response %d stimulus %s, want %s", i, r.StimulusID, s.Sequence[i].ID)
		}
	}

	if _, err := Submit(s, model.AnswerTrue, "late", t0); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("expected ErrSessionComplete, got %v", err)
	}
	if err := Acknowledge(s, t0); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("expected ErrSessionComplete, got %v", err)
	}
}

func TestSubmitWithoutPresentation(t *testing.T) {
	s := answering(t, 1)
	resp, err := Submit(s, model.AnswerTrue, "quick", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.ResponseTime != 0 {
		t.Errorf("expected 0 response time, got %v", resp.ResponseTime)
	}
}

func TestBatch(t *testing.T) {
	s := answering(t, 2)
	if _, err := Batch(s); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("expected ErrNotComplete, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := Submit(s, model.AnswerTrue, "x", t0); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	rows, err := Batch(s)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Group != "Explain" || rows[0].ParticipantID != "pid" || rows[0].Answer != "True" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if !rows[0].ShowPhoto || !rows[1].ShowPhoto {
		t.Errorf("show_photo flags not carried into rows")
	}
}

func TestPickCondition(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	counts := make(map[model.Condition]int)
	for i := 0; i < 2000; i++ {
		counts[PickCondition(r)]++
	}
	for _, c := range model.Conditions {
		if counts[c] < 900 || counts[c] > 1100 {
			t.Errorf("condition %s picked %d times of 2000", c, counts[c])
		}
	}
}

func TestNewResponse(t *testing.T) {
	stim := model.Stimulus{ID: "9", Text: "Bananas are berries.", Truth: true, Photo: "b.png", ShowPhoto: true}
	got := NewResponse(stim, "pid", model.ConditionEmotion, model.AnswerFalse, "surprised", 2346*time.Millisecond)
	want := model.Response{
		ParticipantID: "pid",
		Condition:     model.ConditionEmotion,
		StimulusID:    "9",
		Text:          "Bananas are berries.",
		Truth:         true,
		Photo:         "b.png",
		ShowPhoto:     true,
		Answer:        model.AnswerFalse,
		ResponseText:  "surprised",
		ResponseTime:  2.35,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	if neg := NewResponse(stim, "pid", model.ConditionEmotion, model.AnswerFalse, "x", -time.Second); neg.ResponseTime != 0 {
		t.Errorf("negative elapsed should clamp to 0, got %v", neg.ResponseTime)
	}
}
