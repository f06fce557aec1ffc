package survey

import (
	"time"

	"github.com/pavelanni/trivia/internal/model"
)

// NewResponse builds the immutable record of one judgment.
func NewResponse(stim model.Stimulus, participantID string, cond model.Condition, answer model.Answer, text string, elapsed time.Duration) model.Response {
	return model.Response{
		ParticipantID: participantID,
		Condition:     cond,
		StimulusID:    stim.ID,
		Text:          stim.Text,
		Truth:         stim.Truth,
		Photo:         stim.Photo,
		ShowPhoto:     stim.ShowPhoto,
		Answer:        answer,
		ResponseText:  text,
		ResponseTime:  roundSeconds(elapsed),
	}
}
