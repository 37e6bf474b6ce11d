package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/evaluation"
	"github.com/abhishek622/evalengine/internal/repository/sqlite"
	"github.com/abhishek622/evalengine/pkg/model"
	"go.uber.org/zap/zaptest"
)

type memoryCache struct {
	values map[string][]byte
	gets   int
	sets   int
	failed bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.gets++
	if c.failed {
		return false, errors.New("cache unavailable")
	}
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memoryCache) Set(_ context.Context, key string, value any) error {
	c.sets++
	if c.failed {
		return errors.New("cache unavailable")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "diagnostics.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedApplication creates an application with the given question weights and
// evaluates the first evaluated questions.
func seedApplication(t *testing.T, store *sqlite.Store, weights []float64, evaluated int, createdAt time.Time) model.Application {
	t.Helper()
	ctx := context.Background()
	app := model.Application{CandidateID: "cand", PostingID: 1, CreatedAt: createdAt, UpdatedAt: createdAt}
	if err := store.CreateApplication(ctx, &app); err != nil {
		t.Fatalf("create application: %v", err)
	}
	qs := make([]model.Question, len(weights))
	for i, w := range weights {
		qs[i] = model.Question{ApplicationID: app.ID, Ordinal: i + 1, Text: "q", Type: "technical", Weight: w}
	}
	if err := store.CreateQuestions(ctx, qs); err != nil {
		t.Fatalf("create questions: %v", err)
	}
	for _, q := range qs[:evaluated] {
		e := model.Evaluation{
			ApplicationID:    app.ID,
			QuestionID:       q.ID,
			StructureClarity: intPtr(3),
			TechnicalMastery: intPtr(3),
			Relevance:        intPtr(3),
			Communication:    intPtr(3),
			Percentage:       floatPtr(q.Weight / 2),
			Answer:           "answer",
			Feedback:         `{"strengths":["ok"],"improvements":[]}`,
			EvaluatedAt:      createdAt,
		}
		if err := store.CreateEvaluation(ctx, &e); err != nil {
			t.Fatalf("create evaluation: %v", err)
		}
	}
	return app
}

func TestInspect(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	complete := seedApplication(t, store, []float64{50, 50}, 2, base)
	partial := seedApplication(t, store, []float64{30, 30, 30}, 1, base.Add(time.Hour))
	svc := NewService(store, nil, zaptest.NewLogger(t), 5*time.Second)
	ctx := context.Background()

	r, err := svc.Inspect(ctx, complete.ID)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !r.Complete || len(r.Problems) != 0 || len(r.Warnings) != 0 {
		t.Fatalf("expected clean report, got %+v", r)
	}
	if r.WeightTotal != 100 || r.EvaluatedQuestions != 2 {
		t.Fatalf("unexpected counts %+v", r)
	}

	r, err = svc.Inspect(ctx, partial.ID)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if r.Complete || r.QuestionCount != 3 || r.EvaluationCount != 1 {
		t.Fatalf("unexpected report %+v", r)
	}
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "90.00") {
		t.Fatalf("expected weight warning, got %v", r.Warnings)
	}

	if _, err := svc.Inspect(ctx, 12345); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedApplication(t, store, []float64{50, 50}, 2, base)
	partial := seedApplication(t, store, []float64{40, 60}, 1, base.Add(time.Hour))
	empty := seedApplication(t, store, []float64{100}, 0, base.Add(2*time.Hour))
	svc := NewService(store, nil, zaptest.NewLogger(t), 5*time.Second)

	report, err := svc.Health(context.Background(), 0)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Checked != 3 || report.Complete != 1 || report.Incomplete != 2 {
		t.Fatalf("unexpected totals %+v", report)
	}
	if report.ProblemCounts[evaluation.ProblemNoEvaluations] != 1 || report.ProblemCounts[evaluation.ProblemCountMismatch] != 1 {
		t.Fatalf("unexpected problem counts %v", report.ProblemCounts)
	}
	if len(report.IncompleteApplications) != 2 {
		t.Fatalf("expected 2 incomplete applications, got %d", len(report.IncompleteApplications))
	}
	if report.IncompleteApplications[0].ApplicationID != empty.ID || report.IncompleteApplications[1].ApplicationID != partial.ID {
		t.Fatalf("expected newest first, got %+v", report.IncompleteApplications)
	}

	limited, err := svc.Health(context.Background(), 1)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if limited.Checked != 1 {
		t.Fatalf("expected 1 checked, got %d", limited.Checked)
	}

	for _, bad := range []int{-1, MaxHealthLimit + 1} {
		if _, err := svc.Health(context.Background(), bad); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
			t.Fatalf("limit %d: expected INVALID_ARGUMENT, got %v", bad, err)
		}
	}
}

func TestHealthDoesNotMutate(t *testing.T) {
	store := openStore(t)
	app := seedApplication(t, store, []float64{50, 50}, 1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(store, nil, zaptest.NewLogger(t), 5*time.Second)

	if _, err := svc.Health(context.Background(), 10); err != nil {
		t.Fatalf("health: %v", err)
	}
	loaded, err := store.FindApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("find application: %v", err)
	}
	if loaded.State != model.ApplicationStatePending || loaded.SessionID != nil {
		t.Fatalf("expected application untouched, got %+v", loaded)
	}
}

func TestReportsAreCached(t *testing.T) {
	store := openStore(t)
	app := seedApplication(t, store, []float64{100}, 1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := newMemoryCache()
	svc := NewService(store, cache, zaptest.NewLogger(t), 5*time.Second)
	ctx := context.Background()

	first, err := svc.Inspect(ctx, app.ID)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("expected report cached, got %d sets", cache.sets)
	}

	// Served from cache even though the store is gone.
	_ = store.Close()
	second, err := svc.Inspect(ctx, app.ID)
	if err != nil {
		t.Fatalf("cached inspect: %v", err)
	}
	if second.Complete != first.Complete || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("expected cached report, got %+v", second)
	}
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	store := openStore(t)
	seedApplication(t, store, []float64{100}, 1, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := newMemoryCache()
	cache.failed = true
	svc := NewService(store, cache, zaptest.NewLogger(t), 5*time.Second)

	report, err := svc.Health(context.Background(), 5)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Checked != 1 || report.Complete != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}
