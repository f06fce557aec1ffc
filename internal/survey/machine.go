// Package survey drives a participant session through instructions, answering
// and completion.
package survey

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pavelanni/trivia/internal/model"
)

// PickCondition chooses an experimental arm uniformly at random.
func PickCondition(r *rand.Rand) model.Condition {
	return model.Conditions[r.IntN(len(model.Conditions))]
}

// NewSession creates a session in the instructions phase.
func NewSession(id string, cond model.Condition, seq []model.Stimulus, now time.Time) *model.Session {
	return &model.Session{
		ID:        id,
		Condition: cond,
		Sequence:  seq,
		Phase:     model.PhaseInstructions,
		Responses: make([]model.Response, 0, len(seq)),
		CreatedAt: now,
	}
}

// Acknowledge moves a session past the instructions.
// An empty sequence has nothing to answer and completes immediately.
func Acknowledge(s *model.Session, now time.Time) error {
	switch s.Phase {
	case model.PhaseInstructions:
	case model.PhaseComplete:
		return ErrSessionComplete
	default:
		return ErrInvalidTransition
	}
	s.Phase = model.PhaseAnswering
	if len(s.Sequence) == 0 {
		complete(s, now)
	}
	return nil
}

// Present records when the current stimulus was first shown. Repeat calls for
// the same stimulus keep the first time. It reports whether the session changed.
func Present(s *model.Session, now time.Time) bool {
	if _, ok := s.Current(); !ok || s.PresentedAt != nil {
		return false
	}
	t := now
	s.PresentedAt = &t
	return true
}

// Validate checks a candidate submission without touching any session.
func Validate(answer model.Answer, text string) error {
	verr := &ValidationError{
		MissingAnswer: answer != model.AnswerTrue && answer != model.AnswerFalse,
		MissingText:   strings.TrimSpace(text) == "",
	}
	if verr.MissingAnswer || verr.MissingText {
		return verr
	}
	return nil
}

// CheckPosition rejects a response meant for a stimulus other than the pending
// one, such as a form posted twice.
func CheckPosition(s *model.Session, position int) error {
	switch s.Phase {
	case model.PhaseAnswering:
	case model.PhaseComplete:
		return ErrSessionComplete
	default:
		return ErrInvalidTransition
	}
	if position != s.Position {
		return fmt.Errorf("%w: response for position %d, session at %d", ErrInvalidTransition, position, s.Position)
	}
	return nil
}

// Submit records a response for the current stimulus and advances the session.
// On validation failure the session is left exactly as it was.
func Submit(s *model.Session, answer model.Answer, text string, now time.Time) (*model.Response, error) {
	switch s.Phase {
	case model.PhaseAnswering:
	case model.PhaseComplete:
		return nil, ErrSessionComplete
	default:
		return nil, ErrInvalidTransition
	}
	stim, ok := s.Current()
	if !ok {
		return nil, ErrInvalidTransition
	}
	if err := Validate(answer, text); err != nil {
		return nil, err
	}

	var elapsed time.Duration
	if s.PresentedAt != nil {
		elapsed = now.Sub(*s.PresentedAt)
	}
	resp := NewResponse(stim, s.ID, s.Condition, answer, text, elapsed)

	s.Responses = append(s.Responses, resp)
	s.Position++
	s.PresentedAt = nil
	if s.Position == len(s.Sequence) {
		complete(s, now)
	}
	return &resp, nil
}

func complete(s *model.Session, now time.Time) {
	t := now
	s.Phase = model.PhaseComplete
	s.CompletedAt = &t
	s.PresentedAt = nil
}

// Batch returns the flat records of a completed session in presentation order.
func Batch(s *model.Session) ([]model.Record, error) {
	if s.Phase != model.PhaseComplete {
		return nil, ErrNotComplete
	}
	rows := make([]model.Record, 0, len(s.Responses))
	for _, r := range s.Responses {
		rows = append(rows, r.Record())
	}
	return rows, nil
}

// roundSeconds converts d to seconds rounded to hundredths, never negative.
func roundSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return math.Round(d.Seconds()*100) / 100
}
