// Package stimulus loads the statement corpus and draws balanced per-session sequences.
package stimulus

import (
	"fmt"

	"github.com/pavelanni/trivia/internal/model"
)

// InvalidPoolError reports a corpus side too small for the requested draw.
type InvalidPoolError struct {
	Label string // "true" or "false"
	Have  int
	Need  int
}

func (e *InvalidPoolError) Error() string {
	return fmt.Sprintf("invalid stimulus pool: %d %s-labeled stimuli available, %d required", e.Have, e.Label, e.Need)
}

// Pool is a corpus partitioned by truth label.
type Pool struct {
	True  []model.Stimulus
	False []model.Stimulus
}

// Partition splits stimuli by truth label and checks that each side can supply
// nTrue and nFalse draws. The source slice is not modified.
func Partition(stimuli []model.Stimulus, nTrue, nFalse int) (Pool, error) {
	var p Pool
	for _, s := range stimuli {
		if s.Truth {
			p.True = append(p.True, s)
		} else {
			p.False = append(p.False, s)
		}
	}
	if err := p.Check(nTrue, nFalse); err != nil {
		return Pool{}, err
	}
	return p, nil
}

// Check verifies the pool can satisfy the requested draw counts.
func (p Pool) Check(nTrue, nFalse int) error {
	if nTrue < 0 {
		return &InvalidPoolError{Label: "true", Have: len(p.True), Need: nTrue}
	}
	if nFalse < 0 {
		return &InvalidPoolError{Label: "false", Have: len(p.False), Need: nFalse}
	}
	if len(p.True) < nTrue {
		return &InvalidPoolError{Label: "true", Have: len(p.True), Need: nTrue}
	}
	if len(p.False) < nFalse {
		return &InvalidPoolError{Label: "false", Have: len(p.False), Need: nFalse}
	}
	return nil
}

// Size returns the total number of stimuli in the pool.
func (p Pool) Size() int {
	return len(p.True) + len(p.False)
}
