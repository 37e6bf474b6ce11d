// Package session drives an application's interview session through its
// lifecycle and keeps the session snapshot up to date.
package session

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultProgressBaseline = 10

// errUnchanged tells mutate to return the loaded session without saving it.
var errUnchanged = errors.New("session unchanged")

type Service struct {
	tx       repository.Transactor
	log      *zap.Logger
	timeout  time.Duration
	baseline int
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how new session ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(tx repository.Transactor, log *zap.Logger, timeout time.Duration, baseline int, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if baseline <= 0 {
		baseline = DefaultProgressBaseline
	}
	s := &Service{
		tx:       tx,
		log:      log,
		timeout:  timeout,
		baseline: baseline,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the application's session, creating it on first use.
// An existing session has its last activity refreshed.
func (s *Service) GetOrCreate(ctx context.Context, applicationID int64) (model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out model.Session
	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		sess, found, err := s.touchExisting(ctx, st, applicationID)
		if err != nil || found {
			out = sess
			return err
		}

		if _, err := st.FindApplication(ctx, applicationID); err != nil {
			return applicationError(err, applicationID)
		}
		questions, err := st.FindQuestionsByApplication(ctx, applicationID)
		if err != nil {
			return apperr.Infrastructure("find questions", err)
		}

		now := s.now()
		sess = model.Session{
			ID:             s.newID(),
			ApplicationID:  applicationID,
			Status:         model.SessionStatusInitiated,
			StartedAt:      now,
			LastActivityAt: now,
			Snapshot:       model.NewSessionSnapshot(questions),
		}
		if err := st.CreateSession(ctx, sess); err != nil {
			return err
		}
		if err := st.AttachSession(ctx, applicationID, sess.ID); err != nil {
			return apperr.Infrastructure("attach session", err)
		}
		out = sess
		s.log.Info("get_or_create: session created",
			zap.Int64("application_id", applicationID),
			zap.String("session_id", sess.ID),
			zap.Int("questions", len(questions)),
		)
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the create race; the transaction is aborted so read the winner in a new one.
		s.log.Info("get_or_create: concurrent create, using existing session",
			zap.Int64("application_id", applicationID))
		err = s.tx.WithinTx(ctx, func(st repository.Store) error {
			sess, found, err := s.touchExisting(ctx, st, applicationID)
			if err != nil {
				return err
			}
			if !found {
				return apperr.New(apperr.CodeInfrastructure, "session vanished after concurrent create").
					With("application_id", strconv.FormatInt(applicationID, 10))
			}
			out = sess
			return nil
		})
	}
	if err != nil {
		return model.Session{}, apperr.Infrastructure("get or create session", err)
	}
	return out, nil
}

func (s *Service) touchExisting(ctx context.Context, st repository.Store, applicationID int64) (model.Session, bool, error) {
	sess, err := st.FindSessionByApplication(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, sessionError(err, "application_id", strconv.FormatInt(applicationID, 10))
	}
	sess.LastActivityAt = s.now()
	if err := st.SaveSession(ctx, sess); err != nil {
		return model.Session{}, false, apperr.Infrastructure("save session", err)
	}
	return sess, true, nil
}

// UpdateProgress sets the session's progress. Values of 100 complete the
// session; a completed session never moves back.
func (s *Service) UpdateProgress(ctx context.Context, sessionID string, progress int) (model.Session, error) {
	if progress < 0 || progress > 100 {
		return model.Session{}, apperr.New(apperr.CodeInvalidArgument, "progress must be between 0 and 100").
			With("session_id", sessionID).
			With("progress", strconv.Itoa(progress))
	}
	return s.mutate(ctx, sessionID, "update_progress", func(_ repository.Store, sess *model.Session, now time.Time) error {
		switch {
		case sess.Status == model.SessionStatusCompleted && progress == 100:
			return errUnchanged
		case sess.Status == model.SessionStatusCompleted:
			return precondition(sess, "completed session cannot move back")
		case sess.Status.Terminal():
			return precondition(sess, "session no longer accepts progress")
		}
		target := model.SessionStatusInProgress
		if progress == 100 {
			target = model.SessionStatusCompleted
		}
		if err := transition(sess, target); err != nil {
			return err
		}
		if target == model.SessionStatusCompleted {
			markCompleted(sess, now)
		} else {
			sess.Progress = progress
		}
		sess.LastActivityAt = now
		return nil
	})
}

// RecordAnswer stores the candidate's answer for a question in the snapshot.
// Progress is recomputed from the evaluated questions.
func (s *Service) RecordAnswer(ctx context.Context, sessionID string, questionID int64, text string) (model.Session, error) {
	if strings.TrimSpace(text) == "" {
		return model.Session{}, apperr.New(apperr.CodeInvalidArgument, "answer must not be empty").
			With("session_id", sessionID)
	}
	return s.mutate(ctx, sessionID, "record_answer", func(st repository.Store, sess *model.Session, now time.Time) error {
		if err := s.acceptRecord(ctx, st, sess, questionID); err != nil {
			return err
		}
		sess.Snapshot.Answers[questionID] = model.SnapshotAnswer{Text: text, AnsweredAt: now}
		sess.LastActivityAt = now
		if err := s.resumeForActivity(sess); err != nil {
			return err
		}
		s.refreshProgress(sess)
		return nil
	})
}

// RecordEvaluation stores an evaluation and mirrors it into the snapshot.
// Progress follows the number of evaluated questions.
func (s *Service) RecordEvaluation(ctx context.Context, sessionID string, e model.Evaluation) (model.Session, error) {
	return s.mutate(ctx, sessionID, "record_evaluation", func(st repository.Store, sess *model.Session, now time.Time) error {
		if err := s.acceptRecord(ctx, st, sess, e.QuestionID); err != nil {
			return err
		}
		e.ApplicationID = sess.ApplicationID
		if e.EvaluatedAt.IsZero() {
			e.EvaluatedAt = now
		}
		if strings.TrimSpace(e.Answer) == "" {
			e.Answer = sess.Snapshot.Answers[e.QuestionID].Text
		}
		if err := st.CreateEvaluation(ctx, &e); err != nil {
			return apperr.Infrastructure("create evaluation", err)
		}
		sess.Snapshot.Evaluations[e.QuestionID] = e
		sess.LastActivityAt = now
		if err := s.resumeForActivity(sess); err != nil {
			return err
		}
		s.refreshProgress(sess)
		return nil
	})
}

// Finalize completes the session and records the mean evaluation percentage
// as its total score. Finalizing twice returns the session unchanged.
func (s *Service) Finalize(ctx context.Context, sessionID string) (model.Session, error) {
	return s.mutate(ctx, sessionID, "finalize", func(_ repository.Store, sess *model.Session, now time.Time) error {
		if sess.Completed {
			return errUnchanged
		}
		total := meanPercentage(sess.Snapshot)
		markCompleted(sess, now)
		sess.Completed = true
		sess.TotalScore = &total
		sess.LastActivityAt = now
		return nil
	})
}

func (s *Service) Pause(ctx context.Context, sessionID string) (model.Session, error) {
	return s.moveTo(ctx, sessionID, "pause", model.SessionStatusPaused)
}

func (s *Service) Resume(ctx context.Context, sessionID string) (model.Session, error) {
	return s.moveTo(ctx, sessionID, "resume", model.SessionStatusInProgress)
}

func (s *Service) Abandon(ctx context.Context, sessionID string) (model.Session, error) {
	return s.moveTo(ctx, sessionID, "abandon", model.SessionStatusAbandoned)
}

func (s *Service) Expire(ctx context.Context, sessionID string) (model.Session, error) {
	return s.moveTo(ctx, sessionID, "expire", model.SessionStatusExpired)
}

func (s *Service) moveTo(ctx context.Context, sessionID, op string, target model.SessionStatus) (model.Session, error) {
	return s.mutate(ctx, sessionID, op, func(_ repository.Store, sess *model.Session, now time.Time) error {
		if target == model.SessionStatusInProgress && sess.Status != model.SessionStatusPaused {
			return precondition(sess, "session is not paused")
		}
		if err := transition(sess, target); err != nil {
			return err
		}
		if target.Terminal() {
			sess.FinishedAt = &now
		}
		sess.LastActivityAt = now
		return nil
	})
}

// mutate loads a session, applies fn and saves the result in one transaction.
// The owning application's state follows the session into IN_PROGRESS and
// COMPLETED.
func (s *Service) mutate(ctx context.Context, sessionID, op string, fn func(repository.Store, *model.Session, time.Time) error) (model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out model.Session
	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		sess, err := st.FindSession(ctx, sessionID)
		if err != nil {
			return sessionError(err, "session_id", sessionID)
		}
		before := sess.Status

		if err := fn(st, &sess, s.now()); err != nil {
			if errors.Is(err, errUnchanged) {
				out = sess
				return nil
			}
			return err
		}
		if err := st.SaveSession(ctx, sess); err != nil {
			return apperr.Infrastructure("save session", err)
		}
		if sess.Status != before {
			if err := mirrorApplication(ctx, st, sess); err != nil {
				return err
			}
			s.log.Info(op+": session status changed",
				zap.String("session_id", sess.ID),
				zap.Int64("application_id", sess.ApplicationID),
				zap.String("from", string(before)),
				zap.String("to", string(sess.Status)),
			)
		}
		out = sess
		return nil
	})
	if err != nil {
		if apperr.GetCode(err) == apperr.CodeUnknown || apperr.IsCode(err, apperr.CodeInfrastructure) {
			s.log.Error(op+": failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return model.Session{}, apperr.Infrastructure(op, err)
	}
	return out, nil
}

// acceptRecord rejects writes to sessions that are finalized or closed and
// makes sure the question is part of the snapshot.
func (s *Service) acceptRecord(ctx context.Context, st repository.Store, sess *model.Session, questionID int64) error {
	if sess.Completed {
		return precondition(sess, "session is finalized")
	}
	if sess.Status == model.SessionStatusAbandoned || sess.Status == model.SessionStatusExpired {
		return precondition(sess, "session is closed")
	}
	if _, ok := sess.Snapshot.Questions[questionID]; ok {
		return nil
	}

	// Questions generated after the session started are picked up here.
	questions, err := st.FindQuestionsByApplication(ctx, sess.ApplicationID)
	if err != nil {
		return apperr.Infrastructure("find questions", err)
	}
	for _, q := range questions {
		sess.Snapshot.Questions[q.ID] = q
	}
	if _, ok := sess.Snapshot.Questions[questionID]; !ok {
		return apperr.New(apperr.CodeNotFound, "question not found for application").
			With("session_id", sess.ID).
			With("question_id", strconv.FormatInt(questionID, 10))
	}
	return nil
}

func (s *Service) resumeForActivity(sess *model.Session) error {
	if sess.Status == model.SessionStatusInitiated || sess.Status == model.SessionStatusPaused {
		return transition(sess, model.SessionStatusInProgress)
	}
	return nil
}

// refreshProgress derives progress from the snapshot's evaluations. A
// completed session keeps its progress.
func (s *Service) refreshProgress(sess *model.Session) {
	if sess.Status != model.SessionStatusCompleted {
		sess.Progress = s.progressFor(len(sess.Snapshot.Evaluations))
	}
}

func (s *Service) progressFor(evaluations int) int {
	return min(100, evaluations*100/s.baseline)
}

func transition(sess *model.Session, to model.SessionStatus) error {
	if !CanTransition(sess.Status, to) {
		return precondition(sess, "invalid transition to "+string(to))
	}
	sess.Status = to
	return nil
}

func markCompleted(sess *model.Session, now time.Time) {
	sess.Status = model.SessionStatusCompleted
	sess.Progress = 100
	if sess.FinishedAt == nil {
		sess.FinishedAt = &now
	}
}

func meanPercentage(snapshot model.SessionSnapshot) float64 {
	var sum float64
	n := 0
	for _, e := range snapshot.Evaluations {
		if e.Percentage == nil {
			continue
		}
		sum += *e.Percentage
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(sum/float64(n)*100) / 100
}

func mirrorApplication(ctx context.Context, st repository.Store, sess model.Session) error {
	var state model.ApplicationState
	switch sess.Status {
	case model.SessionStatusInProgress:
		state = model.ApplicationStateInProgress
	case model.SessionStatusCompleted:
		state = model.ApplicationStateCompleted
	default:
		return nil
	}
	if err := st.UpdateApplicationState(ctx, sess.ApplicationID, state); err != nil {
		return apperr.Infrastructure("update application state", err)
	}
	return nil
}

func precondition(sess *model.Session, message string) error {
	return apperr.New(apperr.CodePreconditionFailed, message).
		With("session_id", sess.ID).
		With("status", string(sess.Status))
}

func sessionError(err error, key, value string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "session not found", err).With(key, value)
	case errors.Is(err, repository.ErrMalformedSnapshot):
		return apperr.Wrap(apperr.CodeMalformedSessionState, "session state could not be decoded", err).With(key, value)
	default:
		return apperr.Infrastructure("find session", err)
	}
}

func applicationError(err error, applicationID int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, "application not found", err).
			With("application_id", strconv.FormatInt(applicationID, 10))
	}
	return apperr.Infrastructure("find application", err)
}
