package stimulus

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/pavelanni/trivia/internal/model"
)

// PhotoExtension is the only suffix that makes a photo eligible for display.
const PhotoExtension = ".png"

// Quota is the per-session draw configuration.
type Quota struct {
	NTrue      int
	NFalse     int
	NPhotoEach int
}

// DefaultQuota is eight true and eight false statements, four of each with a photo.
var DefaultQuota = Quota{NTrue: 8, NFalse: 8, NPhotoEach: 4}

// Len is the length of a sequence drawn with this quota.
func (q Quota) Len() int {
	return q.NTrue + q.NFalse
}

// IsPhotoEligible reports whether a photo filename may be shown.
func IsPhotoEligible(photo string) bool {
	return photo != "" && strings.HasSuffix(photo, PhotoExtension)
}

// Sample draws a balanced, shuffled sequence and assigns photo flags.
func Sample(r *rand.Rand, pool Pool, q Quota) ([]model.Stimulus, error) {
	if err := pool.Check(q.NTrue, q.NFalse); err != nil {
		return nil, err
	}
	seq := DrawBalanced(r, pool, q.NTrue, q.NFalse)
	return AssignPhotos(r, seq, q.NPhotoEach), nil
}

// DrawBalanced picks nTrue and nFalse distinct stimuli uniformly without
// replacement and returns them in a uniformly random presentation order.
// Callers must check the pool first; counts larger than a side are truncated.
func DrawBalanced(r *rand.Rand, pool Pool, nTrue, nFalse int) []model.Stimulus {
	seq := make([]model.Stimulus, 0, nTrue+nFalse)
	seq = append(seq, draw(r, pool.True, nTrue)...)
	seq = append(seq, draw(r, pool.False, nFalse)...)
	r.Shuffle(len(seq), func(i, j int) {
		seq[i], seq[j] = seq[j], seq[i]
	})
	return seq
}

func draw(r *rand.Rand, from []model.Stimulus, n int) []model.Stimulus {
	n = min(max(n, 0), len(from))
	out := make([]model.Stimulus, 0, n)
	for _, i := range r.Perm(len(from))[:n] {
		out = append(out, from[i])
	}
	return out
}

// AssignPhotos returns a copy of seq with ShowPhoto set on up to nPhotoEach
// eligible stimuli of each truth label and cleared everywhere else.
//
// Eligible stimuli are ordered by ID before selection, so which stimuli get a
// photo depends only on r and the set of stimuli, never on presentation order.
func AssignPhotos(r *rand.Rand, seq []model.Stimulus, nPhotoEach int) []model.Stimulus {
	var eligibleTrue, eligibleFalse []string
	for _, s := range seq {
		if !IsPhotoEligible(s.Photo) {
			continue
		}
		if s.Truth {
			eligibleTrue = append(eligibleTrue, s.ID)
		} else {
			eligibleFalse = append(eligibleFalse, s.ID)
		}
	}

	chosen := make(map[string]bool)
	for _, id := range pick(r, eligibleTrue, nPhotoEach) {
		chosen[id] = true
	}
	for _, id := range pick(r, eligibleFalse, nPhotoEach) {
		chosen[id] = true
	}

	out := make([]model.Stimulus, len(seq))
	for i, s := range seq {
		s.ShowPhoto = chosen[s.ID]
		out[i] = s
	}
	return out
}

func pick(r *rand.Rand, ids []string, n int) []string {
	slices.Sort(ids)
	n = min(max(n, 0), len(ids))
	out := make([]string, 0, n)
	for _, i := range r.Perm(len(ids))[:n] {
		out = append(out, ids[i])
	}
	return out
}

// CountPhotos returns how many true- and false-labeled stimuli show a photo.
func CountPhotos(seq []model.Stimulus) (trueCount, falseCount int) {
	for _, s := range seq {
		if !s.ShowPhoto {
			continue
		}
		if s.Truth {
			trueCount++
		} else {
			falseCount++
		}
	}
	return trueCount, falseCount
}
