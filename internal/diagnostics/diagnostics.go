// Package diagnostics reports on dataset integrity across applications
// without changing any records.
package diagnostics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/evaluation"
	"github.com/abhishek622/evalengine/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultHealthLimit = 100
	MaxHealthLimit     = 1000
)

// Cache stores computed reports. Implementations encode values themselves.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Report struct {
	ApplicationID       int64                `json:"application_id"`
	Complete            bool                 `json:"complete"`
	Problems            []evaluation.Problem `json:"problems"`
	QuestionCount       int                  `json:"question_count"`
	EvaluationCount     int                  `json:"evaluation_count"`
	EvaluatedQuestions  int                  `json:"evaluated_questions"`
	DiscardedDuplicates int                  `json:"discarded_duplicates"`
	WeightTotal         float64              `json:"weight_total"`
	Warnings            []string             `json:"warnings"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

type IncompleteApplication struct {
	ApplicationID int64    `json:"application_id"`
	Problems      []string `json:"problems"`
}

type HealthReport struct {
	Checked                int                            `json:"checked"`
	Complete               int                            `json:"complete"`
	Incomplete             int                            `json:"incomplete"`
	ProblemCounts          map[evaluation.ProblemKind]int `json:"problem_counts"`
	IncompleteApplications []IncompleteApplication        `json:"incomplete_applications"`
	Warnings               []string                       `json:"warnings"`
	GeneratedAt            time.Time                      `json:"generated_at"`
}

type Service struct {
	tx      repository.Transactor
	cache   Cache
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewService builds the diagnostics service. cache may be nil.
func NewService(tx repository.Transactor, cache Cache, log *zap.Logger, timeout time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tx:      tx,
		cache:   cache,
		log:     log,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Inspect validates one application and reports counts and soft warnings.
func (s *Service) Inspect(ctx context.Context, applicationID int64) (Report, error) {
	key := "diagnostics:application:" + strconv.FormatInt(applicationID, 10)
	var report Report
	if s.cached(ctx, key, &report) {
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		b, err := evaluation.LoadBundle(ctx, st, s.log, applicationID)
		if err != nil {
			return err
		}
		report = s.inspectBundle(b)
		return nil
	})
	if err != nil {
		return Report{}, apperr.Infrastructure("inspect application", err)
	}

	s.store(ctx, key, report)
	return report, nil
}

// Health validates up to limit applications, newest first.
func (s *Service) Health(ctx context.Context, limit int) (HealthReport, error) {
	if limit == 0 {
		limit = DefaultHealthLimit
	}
	if limit < 0 || limit > MaxHealthLimit {
		return HealthReport{}, apperr.New(apperr.CodeInvalidArgument,
			fmt.Sprintf("limit must be between 1 and %d", MaxHealthLimit)).
			With("limit", strconv.Itoa(limit))
	}

	key := "diagnostics:health:" + strconv.Itoa(limit)
	var report HealthReport
	if s.cached(ctx, key, &report) {
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report = HealthReport{
		ProblemCounts:          map[evaluation.ProblemKind]int{},
		IncompleteApplications: []IncompleteApplication{},
		Warnings:               []string{},
		GeneratedAt:            s.now(),
	}
	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		ids, err := st.ListApplicationIDs(ctx, limit)
		if err != nil {
			return apperr.Infrastructure("list applications", err)
		}
		for _, id := range ids {
			b, err := evaluation.LoadBundle(ctx, st, s.log, id)
			if err != nil {
				return err
			}
			r := s.inspectBundle(b)
			report.Checked++
			if r.Complete {
				report.Complete++
			} else {
				report.Incomplete++
				messages := make([]string, len(r.Problems))
				for i, p := range r.Problems {
					report.ProblemCounts[p.Kind]++
					messages[i] = p.Message
				}
				report.IncompleteApplications = append(report.IncompleteApplications,
					IncompleteApplication{ApplicationID: id, Problems: messages})
			}
			for _, w := range r.Warnings {
				report.Warnings = append(report.Warnings, fmt.Sprintf("application %d: %s", id, w))
			}
		}
		return nil
	})
	if err != nil {
		return HealthReport{}, apperr.Infrastructure("health report", err)
	}

	s.log.Info("health: report built",
		zap.Int("checked", report.Checked),
		zap.Int("complete", report.Complete),
		zap.Int("incomplete", report.Incomplete),
	)
	s.store(ctx, key, report)
	return report, nil
}

func (s *Service) inspectBundle(b evaluation.Bundle) Report {
	v := evaluation.Validate(b)
	r := Report{
		ApplicationID:       b.Application.ID,
		Complete:            v.Complete,
		Problems:            v.Problems,
		QuestionCount:       len(b.Questions),
		EvaluationCount:     len(b.Evaluations),
		EvaluatedQuestions:  len(b.Index),
		DiscardedDuplicates: len(b.Discarded),
		Warnings:            []string{},
		GeneratedAt:         s.now(),
	}
	for _, q := range b.Questions {
		r.WeightTotal += q.Weight
	}
	r.WeightTotal = math.Round(r.WeightTotal*100) / 100
	if len(b.Questions) > 0 && r.WeightTotal != 100 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("question weights sum to %.2f, expected 100", r.WeightTotal))
	}
	if len(b.Discarded) > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d duplicate evaluation(s) superseded", len(b.Discarded)))
	}
	return r
}

// cached reads key from the cache. Cache failures are logged and treated as
// misses.
func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("diagnostics: cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.log.Warn("diagnostics: cache write failed", zap.String("key", key), zap.Error(err))
	}
}
