package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/internal/repository/sqlite"
	"github.com/abhishek622/evalengine/pkg/model"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store *sqlite.Store
	clock *fakeClock
	svc   *Service
	app   model.Application
	qs    []model.Question
}

func newFixture(t *testing.T, questionCount, baseline int) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	app := model.Application{CandidateID: "cand", PostingID: 3, QuestionsGenerated: true}
	if err := store.CreateApplication(ctx, &app); err != nil {
		t.Fatalf("create application: %v", err)
	}
	qs := make([]model.Question, questionCount)
	for i := range qs {
		qs[i] = model.Question{ApplicationID: app.ID, Ordinal: i + 1, Text: fmt.Sprintf("q%d", i+1), Type: "technical", Weight: 10}
	}
	if err := store.CreateQuestions(ctx, qs); err != nil {
		t.Fatalf("create questions: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	seq := 0
	svc := NewService(store, zaptest.NewLogger(t), 5*time.Second, baseline,
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("sess-%d", seq)
		}),
	)
	return &fixture{store: store, clock: clock, svc: svc, app: app, qs: qs}
}

func (f *fixture) start(t *testing.T) model.Session {
	t.Helper()
	sess, err := f.svc.GetOrCreate(context.Background(), f.app.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	return sess
}

func (f *fixture) applicationState(t *testing.T) model.ApplicationState {
	t.Helper()
	app, err := f.store.FindApplication(context.Background(), f.app.ID)
	if err != nil {
		t.Fatalf("find application: %v", err)
	}
	return app.State
}

func evaluationFor(q model.Question, pct float64) model.Evaluation {
	fb := model.Feedback{StructureClarity: 4, TechnicalMastery: 3, Relevance: 4, Communication: 5, Percentage: pct}
	return fb.Evaluation(q.ApplicationID, q.ID, "answer", `{"percentage":1}`, time.Time{})
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t, 3, 10)
	ctx := context.Background()

	sess := f.start(t)
	if sess.Status != model.SessionStatusInitiated || sess.Progress != 0 {
		t.Fatalf("expected fresh INITIATED session, got %+v", sess)
	}
	if len(sess.Snapshot.Questions) != 3 {
		t.Fatalf("expected 3 snapshot questions, got %d", len(sess.Snapshot.Questions))
	}

	app, err := f.store.FindApplication(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("find application: %v", err)
	}
	if app.SessionID == nil || *app.SessionID != sess.ID {
		t.Fatalf("expected session attached to application, got %v", app.SessionID)
	}

	f.clock.Advance(time.Minute)
	again, err := f.svc.GetOrCreate(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("expected same session %s, got %s", sess.ID, again.ID)
	}
	if !again.LastActivityAt.Equal(sess.LastActivityAt.Add(time.Minute)) {
		t.Fatalf("expected last activity refreshed, got %v", again.LastActivityAt)
	}
	stored, err := f.store.FindSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if !stored.LastActivityAt.Equal(again.LastActivityAt) {
		t.Fatalf("expected refreshed activity persisted, got %v", stored.LastActivityAt)
	}
}

func TestGetOrCreateUnknownApplication(t *testing.T) {
	f := newFixture(t, 1, 10)
	_, err := f.svc.GetOrCreate(context.Background(), 404)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t, 2, 10)
	svc := NewService(f.store, zaptest.NewLogger(t), 5*time.Second, 10)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := svc.GetOrCreate(context.Background(), f.app.ID)
			ids[i], errs[i] = sess.ID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected one session, got %s and %s", ids[0], ids[i])
		}
	}
}

// staleTx hides the existing session from the first lookup so the create
// path runs into the uniqueness constraint.
type staleTx struct {
	inner repository.Transactor
	stale bool
}

type staleStore struct {
	repository.Store
	tx *staleTx
}

func (s staleStore) FindSessionByApplication(ctx context.Context, applicationID int64) (model.Session, error) {
	if s.tx.stale {
		s.tx.stale = false
		return model.Session{}, repository.ErrNotFound
	}
	return s.Store.FindSessionByApplication(ctx, applicationID)
}

func (t *staleTx) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return t.inner.WithinTx(ctx, func(st repository.Store) error {
		return fn(staleStore{Store: st, tx: t})
	})
}

func TestGetOrCreateLosesRace(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	winner := f.start(t)

	svc := NewService(&staleTx{inner: f.store, stale: true}, zaptest.NewLogger(t), 5*time.Second, 10,
		WithIDGenerator(func() string { return "loser" }))
	got, err := svc.GetOrCreate(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected winner %s, got %s", winner.ID, got.ID)
	}
	if _, err := f.store.FindSession(ctx, "loser"); err == nil {
		t.Fatal("expected losing session not persisted")
	}
}

func TestUpdateProgress(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	sess := f.start(t)

	for _, bad := range []int{-1, 101, 250} {
		if _, err := f.svc.UpdateProgress(ctx, sess.ID, bad); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("progress %d: expected INVALID_ARGUMENT, got %v", bad, err)
		}
	}

	updated, err := f.svc.UpdateProgress(ctx, sess.ID, 40)
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if updated.Status != model.SessionStatusInProgress || updated.Progress != 40 {
		t.Fatalf("expected IN_PROGRESS at 40, got %+v", updated)
	}
	if state := f.applicationState(t); state != model.ApplicationStateInProgress {
		t.Fatalf("expected application IN_PROGRESS, got %s", state)
	}

	f.clock.Advance(time.Minute)
	done, err := f.svc.UpdateProgress(ctx, sess.ID, 100)
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if done.Status != model.SessionStatusCompleted || done.Progress != 100 || done.FinishedAt == nil {
		t.Fatalf("expected COMPLETED at 100, got %+v", done)
	}
	if state := f.applicationState(t); state != model.ApplicationStateCompleted {
		t.Fatalf("expected application COMPLETED, got %s", state)
	}

	if _, err := f.svc.UpdateProgress(ctx, sess.ID, 50); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED moving back, got %v", err)
	}
	f.clock.Advance(time.Minute)
	same, err := f.svc.UpdateProgress(ctx, sess.ID, 100)
	if err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
	if !same.LastActivityAt.Equal(done.LastActivityAt) || !same.FinishedAt.Equal(*done.FinishedAt) {
		t.Fatalf("expected repeat completion to be a no-op, got %+v", same)
	}
}

func TestUpdateProgressUnknownSession(t *testing.T) {
	f := newFixture(t, 1, 10)
	_, err := f.svc.UpdateProgress(context.Background(), "missing", 10)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRecordEvaluationProgress(t *testing.T) {
	f := newFixture(t, 5, 10)
	ctx := context.Background()
	sess := f.start(t)

	var err error
	for _, q := range f.qs[:3] {
		if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(q, 8)); err != nil {
			t.Fatalf("record evaluation: %v", err)
		}
	}
	if sess.Progress != 30 || sess.Status != model.SessionStatusInProgress {
		t.Fatalf("expected IN_PROGRESS at 30, got status %s progress %d", sess.Status, sess.Progress)
	}

	// Re-evaluating a question replaces the snapshot entry.
	if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(f.qs[0], 9)); err != nil {
		t.Fatalf("record evaluation: %v", err)
	}
	if sess.Progress != 30 || len(sess.Snapshot.Evaluations) != 3 {
		t.Fatalf("expected 3 evaluations at 30, got %d at %d", len(sess.Snapshot.Evaluations), sess.Progress)
	}
	if got := *sess.Snapshot.Evaluations[f.qs[0].ID].Percentage; got != 9 {
		t.Fatalf("expected last write to win, got %v", got)
	}

	n, err := f.store.CountEvaluationsByApplication(ctx, f.app.ID)
	if err != nil {
		t.Fatalf("count evaluations: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 stored evaluations, got %d", n)
	}
}

func TestRecordEvaluationProgressCapped(t *testing.T) {
	f := newFixture(t, 3, 2)
	ctx := context.Background()
	sess := f.start(t)

	var err error
	for _, q := range f.qs {
		if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(q, 10)); err != nil {
			t.Fatalf("record evaluation: %v", err)
		}
	}
	if sess.Progress != 100 {
		t.Fatalf("expected progress capped at 100, got %d", sess.Progress)
	}
	if sess.Status != model.SessionStatusInProgress {
		t.Fatalf("expected IN_PROGRESS until finalized, got %s", sess.Status)
	}
}

func TestRecordAnswer(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	sess := f.start(t)

	if _, err := f.svc.RecordAnswer(ctx, sess.ID, f.qs[0].ID, "  "); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT for empty answer, got %v", err)
	}
	if _, err := f.svc.RecordAnswer(ctx, sess.ID, 9999, "text"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown question, got %v", err)
	}

	updated, err := f.svc.RecordAnswer(ctx, sess.ID, f.qs[1].ID, "first")
	if err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if updated.Status != model.SessionStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", updated.Status)
	}
	if updated, err = f.svc.RecordAnswer(ctx, sess.ID, f.qs[1].ID, "second"); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if got := updated.Snapshot.Answers[f.qs[1].ID].Text; got != "second" {
		t.Fatalf("expected last answer to win, got %q", got)
	}

	late := []model.Question{{ApplicationID: f.app.ID, Ordinal: 3, Text: "late", Type: "behavioral", Weight: 10}}
	if err := f.store.CreateQuestions(ctx, late); err != nil {
		t.Fatalf("create question: %v", err)
	}
	if updated, err = f.svc.RecordAnswer(ctx, sess.ID, late[0].ID, "late answer"); err != nil {
		t.Fatalf("record answer for late question: %v", err)
	}
	if _, ok := updated.Snapshot.Questions[late[0].ID]; !ok {
		t.Fatal("expected late question added to snapshot")
	}
}

func TestRecordAnswerRecomputesProgress(t *testing.T) {
	f := newFixture(t, 3, 10)
	ctx := context.Background()
	sess := f.start(t)

	var err error
	if sess, err = f.svc.UpdateProgress(ctx, sess.ID, 50); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if sess, err = f.svc.RecordAnswer(ctx, sess.ID, f.qs[0].ID, "hello"); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if sess.Progress != 0 {
		t.Fatalf("expected progress 0 with no evaluations, got %d", sess.Progress)
	}

	if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(f.qs[0], 7)); err != nil {
		t.Fatalf("record evaluation: %v", err)
	}
	if sess, err = f.svc.UpdateProgress(ctx, sess.ID, 80); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if sess, err = f.svc.RecordAnswer(ctx, sess.ID, f.qs[1].ID, "second"); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if sess.Progress != 10 {
		t.Fatalf("expected progress 10 with one evaluation, got %d", sess.Progress)
	}
}

func TestFinalize(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	sess := f.start(t)

	var err error
	if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(f.qs[0], 80)); err != nil {
		t.Fatalf("record evaluation: %v", err)
	}
	if sess, err = f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(f.qs[1], 65)); err != nil {
		t.Fatalf("record evaluation: %v", err)
	}

	f.clock.Advance(time.Minute)
	final, err := f.svc.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !final.Completed || final.Status != model.SessionStatusCompleted || final.Progress != 100 {
		t.Fatalf("expected completed session, got %+v", final)
	}
	if final.TotalScore == nil || *final.TotalScore != 72.5 {
		t.Fatalf("expected total score 72.5, got %v", final.TotalScore)
	}
	if state := f.applicationState(t); state != model.ApplicationStateCompleted {
		t.Fatalf("expected application COMPLETED, got %s", state)
	}

	f.clock.Advance(time.Minute)
	again, err := f.svc.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("finalize again: %v", err)
	}
	if !again.FinishedAt.Equal(*final.FinishedAt) || *again.TotalScore != *final.TotalScore {
		t.Fatalf("expected second finalize to change nothing, got %+v", again)
	}

	if _, err := f.svc.RecordEvaluation(ctx, sess.ID, evaluationFor(f.qs[0], 10)); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED after finalize, got %v", err)
	}
	if _, err := f.svc.RecordAnswer(ctx, sess.ID, f.qs[0].ID, "late"); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED after finalize, got %v", err)
	}
}

func TestFinalizeWithoutEvaluations(t *testing.T) {
	f := newFixture(t, 2, 10)
	sess := f.start(t)

	final, err := f.svc.Finalize(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.TotalScore == nil || *final.TotalScore != 0 {
		t.Fatalf("expected zero total score, got %v", final.TotalScore)
	}
}

func TestSideTransitions(t *testing.T) {
	f := newFixture(t, 2, 10)
	ctx := context.Background()
	sess := f.start(t)

	if _, err := f.svc.Pause(ctx, sess.ID); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED pausing INITIATED, got %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, sess.ID, 10); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if _, err := f.svc.Resume(ctx, sess.ID); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED resuming IN_PROGRESS, got %v", err)
	}

	paused, err := f.svc.Pause(ctx, sess.ID)
	if err != nil || paused.Status != model.SessionStatusPaused {
		t.Fatalf("expected PAUSED, got %v, %v", paused.Status, err)
	}
	resumed, err := f.svc.RecordAnswer(ctx, sess.ID, f.qs[0].ID, "back again")
	if err != nil || resumed.Status != model.SessionStatusInProgress {
		t.Fatalf("expected activity to resume session, got %v, %v", resumed.Status, err)
	}

	abandoned, err := f.svc.Abandon(ctx, sess.ID)
	if err != nil || abandoned.Status != model.SessionStatusAbandoned || abandoned.FinishedAt == nil {
		t.Fatalf("expected ABANDONED with finish time, got %+v, %v", abandoned, err)
	}
	if _, err := f.svc.UpdateProgress(ctx, sess.ID, 20); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED on abandoned session, got %v", err)
	}
	if _, err := f.svc.RecordAnswer(ctx, sess.ID, f.qs[0].ID, "again"); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED on abandoned session, got %v", err)
	}
	if _, err := f.svc.Expire(ctx, sess.ID); !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED expiring abandoned session, got %v", err)
	}
}

func TestMalformedSnapshot(t *testing.T) {
	f := newFixture(t, 1, 10)
	ctx := context.Background()
	sess := f.start(t)

	if err := f.store.CorruptSnapshot(ctx, sess.ID, `{"version":99}`); err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, sess.ID, 10); !apperr.IsCode(err, apperr.CodeMalformedSessionState) {
		t.Fatalf("expected MALFORMED_SESSION_STATE, got %v", err)
	}
	if _, err := f.svc.GetOrCreate(ctx, f.app.ID); !apperr.IsCode(err, apperr.CodeMalformedSessionState) {
		t.Fatalf("expected MALFORMED_SESSION_STATE, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.SessionStatus
		want     bool
	}{
		{model.SessionStatusInitiated, model.SessionStatusInProgress, true},
		{model.SessionStatusInitiated, model.SessionStatusPaused, false},
		{model.SessionStatusInProgress, model.SessionStatusExpired, true},
		{model.SessionStatusPaused, model.SessionStatusInProgress, true},
		{model.SessionStatusCompleted, model.SessionStatusInProgress, false},
		{model.SessionStatusAbandoned, model.SessionStatusInProgress, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}
