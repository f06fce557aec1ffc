package model

import (
	"context"
	"time"
)

// Condition is the experimental arm a participant is assigned to.
type Condition string

const (
	ConditionExplain Condition = "Explain"
	ConditionEmotion Condition = "Emotion"
)

// Conditions lists every arm in a stable order.
var Conditions = []Condition{ConditionExplain, ConditionEmotion}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	return c == ConditionExplain || c == ConditionEmotion
}

// Phase is the position of a session in its lifecycle.
type Phase string

const (
	PhaseInstructions Phase = "instructions"
	PhaseAnswering    Phase = "answering"
	PhaseComplete     Phase = "complete"
)

// Answer is a participant's truth judgment.
type Answer string

const (
	AnswerUnset Answer = "-- Select an answer --"
	AnswerTrue  Answer = "True"
	AnswerFalse Answer = "False"
)

// AnswerChoices is the option list shown to participants, placeholder first.
var AnswerChoices = []Answer{AnswerUnset, AnswerTrue, AnswerFalse}

// ParseAnswer maps form input to an Answer. Anything unknown is AnswerUnset.
func ParseAnswer(s string) Answer {
	switch Answer(s) {
	case AnswerTrue:
		return AnswerTrue
	case AnswerFalse:
		return AnswerFalse
	default:
		return AnswerUnset
	}
}

// Stimulus is one trivia statement.
type Stimulus struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Truth     bool   `json:"truth"`
	Photo     string `json:"photo,omitempty"`
	ShowPhoto bool   `json:"show_photo"`
}

// Session is one participant's pass through the survey.
// ID doubles as the participant identifier.
type Session struct {
	ID          string
	Condition   Condition
	Sequence    []Stimulus
	Position    int
	Phase       Phase
	Responses   []Response
	PresentedAt *time.Time // first presentation of Sequence[Position]
	Persisted   bool
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Current returns the stimulus awaiting a response, or false when none is pending.
func (s *Session) Current() (Stimulus, bool) {
	if s.Phase != PhaseAnswering || s.Position >= len(s.Sequence) {
		return Stimulus{}, false
	}
	return s.Sequence[s.Position], true
}

// Response is one completed judgment.
type Response struct {
	ParticipantID string    `json:"participant_id"`
	Condition     Condition `json:"group"`
	StimulusID    string    `json:"stimulus_id"`
	Text          string    `json:"text"`
	Truth         bool      `json:"truth"`
	Photo         string    `json:"photo"`
	ShowPhoto     bool      `json:"show_photo"`
	Answer        Answer    `json:"answer"`
	ResponseText  string    `json:"response_text"`
	ResponseTime  float64   `json:"response_time"`
}

// SurveyConfig holds runtime survey parameters set via CLI flags.
type SurveyConfig struct {
	NTrue         int
	NFalse        int
	NPhotoEach    int
	BasePath      string // URL prefix for sub-path deployments (e.g. "/study")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Contact       string // Research team address shown on the debrief page
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// CorpusInfo identifies the stimulus corpus a server instance was started with.
type CorpusInfo struct {
	Path   string
	SHA256 string
	Count  int
}
