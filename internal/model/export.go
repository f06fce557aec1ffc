package model

import (
	"strconv"
	"time"
)

// RecordHeader is the column order of a flat response row.
var RecordHeader = []string{
	"participant_id",
	"group",
	"stimulus_id",
	"text",
	"truth",
	"photo",
	"show_photo",
	"answer",
	"response_text",
	"response_time",
}

// Record is a flat response row handed to persistence sinks.
type Record struct {
	ParticipantID string  `json:"participant_id"`
	Group         string  `json:"group"`
	StimulusID    string  `json:"stimulus_id"`
	Text          string  `json:"text"`
	Truth         bool    `json:"truth"`
	Photo         string  `json:"photo"`
	ShowPhoto     bool    `json:"show_photo"`
	Answer        string  `json:"answer"`
	ResponseText  string  `json:"response_text"`
	ResponseTime  float64 `json:"response_time"`
}

// Record flattens a response into a sink row.
func (r Response) Record() Record {
	return Record{
		ParticipantID: r.ParticipantID,
		Group:         string(r.Condition),
		StimulusID:    r.StimulusID,
		Text:          r.Text,
		Truth:         r.Truth,
		Photo:         r.Photo,
		ShowPhoto:     r.ShowPhoto,
		Answer:        string(r.Answer),
		ResponseText:  r.ResponseText,
		ResponseTime:  r.ResponseTime,
	}
}

// Strings renders the row as text cells in RecordHeader order.
func (r Record) Strings() []string {
	return []string{
		r.ParticipantID,
		r.Group,
		r.StimulusID,
		r.Text,
		formatBool(r.Truth),
		r.Photo,
		formatBool(r.ShowPhoto),
		r.Answer,
		r.ResponseText,
		strconv.FormatFloat(r.ResponseTime, 'f', -1, 64),
	}
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// SurveyExport is the top-level JSON structure for response export.
type SurveyExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	CorpusHash string          `json:"corpus_sha256,omitempty"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult holds one participant's session for export.
type SessionResult struct {
	ParticipantID string     `json:"participant_id"`
	Group         Condition  `json:"group"`
	Phase         Phase      `json:"phase"`
	Persisted     bool       `json:"persisted"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Responses     []Record   `json:"responses"`
}
