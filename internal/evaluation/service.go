package evaluation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
	"go.uber.org/zap"
)

// Service exposes the read operations over one application's results. Every
// call runs in a single store transaction bounded by the configured timeout.
type Service struct {
	tx      repository.Transactor
	agg     *Aggregator
	log     *zap.Logger
	timeout time.Duration
}

func NewService(tx repository.Transactor, log *zap.Logger, timeout time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{tx: tx, agg: NewAggregator(log), log: log, timeout: timeout}
}

// Check loads a bundle and validates it.
func (s *Service) Check(ctx context.Context, applicationID int64) (Bundle, Verdict, error) {
	var (
		b Bundle
		v Verdict
	)
	err := s.withBundle(ctx, applicationID, func(loaded Bundle) error {
		b = loaded
		v = Validate(loaded)
		return nil
	})
	return b, v, err
}

func (s *Service) GetSummary(ctx context.Context, applicationID int64) (Summary, error) {
	var out Summary
	err := s.withCompleteBundle(ctx, applicationID, func(b Bundle) error {
		var err error
		out, err = s.agg.Summarize(b)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	s.log.Info("get_summary: summary built",
		zap.Int64("application_id", applicationID),
		zap.Int("evaluations", out.EvaluationCount),
		zap.Float64("total_score", out.TotalScore),
	)
	return out, nil
}

func (s *Service) GetDetail(ctx context.Context, applicationID int64) ([]QuestionDetail, error) {
	var out []QuestionDetail
	err := s.withCompleteBundle(ctx, applicationID, func(b Bundle) error {
		var err error
		out, err = s.agg.Detail(b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CanGenerateResults reports whether the application's dataset is complete.
func (s *Service) CanGenerateResults(ctx context.Context, applicationID int64) (bool, error) {
	_, v, err := s.Check(ctx, applicationID)
	if err != nil {
		return false, err
	}
	return v.Complete, nil
}

// QuickStats reports record counts without requiring a complete dataset.
func (s *Service) QuickStats(ctx context.Context, applicationID int64) (model.QuickStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats := model.QuickStats{ApplicationID: applicationID}
	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		if _, err := st.FindApplication(ctx, applicationID); err != nil {
			return notFoundOr(err, applicationID, "find application")
		}
		var err error
		if stats.QuestionCount, err = st.CountQuestionsByApplication(ctx, applicationID); err != nil {
			return apperr.Infrastructure("count questions", err)
		}
		if stats.EvaluationCount, err = st.CountEvaluationsByApplication(ctx, applicationID); err != nil {
			return apperr.Infrastructure("count evaluations", err)
		}
		evaluations, err := st.FindEvaluationsByApplication(ctx, applicationID)
		if err != nil {
			return apperr.Infrastructure("find evaluations", err)
		}
		for _, e := range evaluations {
			if e.IsComplete() {
				stats.CompleteEvaluationCount++
			}
		}
		return nil
	})
	if err != nil {
		return model.QuickStats{}, apperr.Infrastructure("quick stats", err)
	}
	return stats, nil
}

func (s *Service) withCompleteBundle(ctx context.Context, applicationID int64, fn func(Bundle) error) error {
	return s.withBundle(ctx, applicationID, func(b Bundle) error {
		if v := Validate(b); !v.Complete {
			s.log.Info("integrity: application incomplete",
				zap.Int64("application_id", applicationID),
				zap.Strings("problems", v.Messages()),
			)
			return apperr.New(apperr.CodeIntegrityViolation, "application results are incomplete").
				With("application_id", strconv.FormatInt(applicationID, 10)).
				WithProblems(v.Messages())
		}
		return fn(b)
	})
}

func (s *Service) withBundle(ctx context.Context, applicationID int64, fn func(Bundle) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(st repository.Store) error {
		b, err := LoadBundle(ctx, st, s.log, applicationID)
		if err != nil {
			return err
		}
		return fn(b)
	})
	return apperr.Infrastructure("load bundle", err)
}

func notFoundOr(err error, applicationID int64, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, "application not found", err).
			With("application_id", strconv.FormatInt(applicationID, 10))
	}
	return apperr.Infrastructure(op, err)
}
