package store

import (
	"fmt"

	"github.com/pavelanni/trivia/internal/model"
)

// ExportSessions builds export-ready results from stored sessions in creation order.
// With onlyComplete set, sessions still in progress are skipped.
func (s *Store) ExportSessions(onlyComplete bool) ([]model.SessionResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var results []model.SessionResult
	// ListSessions is newest first; exports read oldest first like the master CSV.
	for i := len(sessions) - 1; i >= 0; i-- {
		summary := sessions[i]
		if onlyComplete && summary.Phase != model.PhaseComplete {
			continue
		}

		sess, err := s.GetSession(summary.ID)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", summary.ID, err)
		}

		rows := make([]model.Record, 0, len(sess.Responses))
		for _, r := range sess.Responses {
			rows = append(rows, r.Record())
		}

		results = append(results, model.SessionResult{
			ParticipantID: sess.ID,
			Group:         sess.Condition,
			Phase:         sess.Phase,
			Persisted:     sess.Persisted,
			StartedAt:     sess.CreatedAt,
			CompletedAt:   sess.CompletedAt,
			Responses:     rows,
		})
	}

	return results, nil
}

// ExportRecords flattens ExportSessions into sink rows.
func (s *Store) ExportRecords(onlyComplete bool) ([]model.Record, error) {
	results, err := s.ExportSessions(onlyComplete)
	if err != nil {
		return nil, err
	}
	var rows []model.Record
	for _, r := range results {
		rows = append(rows, r.Responses...)
	}
	return rows, nil
}
