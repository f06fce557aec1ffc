package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/stimulus"
)

// Repository abstracts session persistence required by Service.
type Repository interface {
	CreateSession(s *model.Session) error
	GetSession(id string) (*model.Session, error)
	SaveProgress(s *model.Session, appended *model.Response) error
	MarkPersisted(id string) error
}

// Sink receives a completed batch for append-only storage.
type Sink interface {
	Append(ctx context.Context, batch []model.Record) error
}

// Service applies one transition per call: load the session, mutate it, save it.
type Service struct {
	repo    Repository
	sink    Sink
	pool    stimulus.Pool
	quota   stimulus.Quota
	now     func() time.Time
	newRand func() *rand.Rand
	newID   func() string
}

// NewService binds the driver to its store, sink and stimulus pool.
// It fails with *stimulus.InvalidPoolError when the pool cannot satisfy the quota.
func NewService(repo Repository, sink Sink, pool stimulus.Pool, quota stimulus.Quota) (*Service, error) {
	if repo == nil || sink == nil {
		return nil, errors.New("survey service requires a repository and a sink")
	}
	if err := pool.Check(quota.NTrue, quota.NFalse); err != nil {
		return nil, err
	}
	return &Service{
		repo:  repo,
		sink:  sink,
		pool:  pool,
		quota: quota,
		now:   time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		newID: uuid.NewString,
	}, nil
}

// Quota returns the per-session draw configuration.
func (svc *Service) Quota() stimulus.Quota {
	return svc.quota
}

// Start creates a new session with a freshly sampled sequence and a random condition.
func (svc *Service) Start() (*model.Session, error) {
	r := svc.newRand()
	seq, err := stimulus.Sample(r, svc.pool, svc.quota)
	if err != nil {
		return nil, err
	}
	sess := NewSession(svc.newID(), PickCondition(r), seq, svc.now())
	if err := svc.repo.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	pt, pf := stimulus.CountPhotos(seq)
	slog.Info("session started",
		"session_id", sess.ID,
		"condition", sess.Condition,
		"stimuli", len(seq),
		"photos_true", pt,
		"photos_false", pf,
	)
	return sess, nil
}

// Get loads a session without changing it.
func (svc *Service) Get(id string) (*model.Session, error) {
	return svc.repo.GetSession(id)
}

// Acknowledge ends the instructions phase.
func (svc *Service) Acknowledge(ctx context.Context, id string) (*model.Session, error) {
	sess, err := svc.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	if err := Acknowledge(sess, svc.now()); err != nil {
		return sess, err
	}
	if err := svc.repo.SaveProgress(sess, nil); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if sess.Phase == model.PhaseComplete {
		return sess, svc.persist(ctx, sess)
	}
	return sess, nil
}

// Current loads a session for display, stamping the first presentation time of
// the pending stimulus.
func (svc *Service) Current(id string) (*model.Session, error) {
	sess, err := svc.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	if Present(sess, svc.now()) {
		if err := svc.repo.SaveProgress(sess, nil); err != nil {
			return nil, fmt.Errorf("save presentation time: %w", err)
		}
	}
	return sess, nil
}

// Submit records one judgment for the stimulus at position. A response for any
// other position fails with ErrInvalidTransition and a *ValidationError leaves
// the stored session untouched. When the last stimulus is answered the batch
// is handed to the sink; a failure there is returned as *PersistenceError
// alongside the completed session.
func (svc *Service) Submit(ctx context.Context, id string, position int, answer model.Answer, text string) (*model.Session, error) {
	sess, err := svc.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	if err := CheckPosition(sess, position); err != nil {
		return sess, err
	}
	resp, err := Submit(sess, answer, text, svc.now())
	if err != nil {
		return sess, err
	}
	if err := svc.repo.SaveProgress(sess, resp); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	slog.Debug("response recorded",
		"session_id", sess.ID,
		"position", sess.Position,
		"stimulus_id", resp.StimulusID,
		"response_time", resp.ResponseTime,
	)
	if sess.Phase == model.PhaseComplete {
		return sess, svc.persist(ctx, sess)
	}
	return sess, nil
}

// RetryPersist appends the batch of a completed session whose earlier append failed.
// Retries are never automatic; duplicates are possible if an earlier append
// partially succeeded.
func (svc *Service) RetryPersist(ctx context.Context, id string) (*model.Session, error) {
	sess, err := svc.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.Phase != model.PhaseComplete {
		return sess, ErrNotComplete
	}
	if sess.Persisted {
		return sess, ErrAlreadyPersisted
	}
	return sess, svc.persist(ctx, sess)
}

func (svc *Service) persist(ctx context.Context, sess *model.Session) error {
	batch, err := Batch(sess)
	if err != nil {
		return err
	}
	if err := svc.sink.Append(ctx, batch); err != nil {
		slog.Error("persist responses failed", "session_id", sess.ID, "rows", len(batch), "error", err)
		return &PersistenceError{SessionID: sess.ID, Rows: len(batch), Err: err}
	}
	if err := svc.repo.MarkPersisted(sess.ID); err != nil {
		// The rows are already in the sink; only the local flag is stale.
		slog.Warn("failed to mark session persisted", "session_id", sess.ID, "error", err)
	}
	sess.Persisted = true
	slog.Info("responses persisted", "session_id", sess.ID, "rows", len(batch))
	return nil
}
