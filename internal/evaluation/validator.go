package evaluation

import "fmt"

type ProblemKind string

const (
	ProblemNoQuestions          ProblemKind = "no_questions"
	ProblemNoEvaluations        ProblemKind = "no_evaluations"
	ProblemCountMismatch        ProblemKind = "count_mismatch"
	ProblemIncompleteEvaluation ProblemKind = "incomplete_evaluations"
	ProblemMisaligned           ProblemKind = "misaligned"
)

type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Message string      `json:"message"`
}

// Verdict is the completeness decision for one bundle.
type Verdict struct {
	Complete bool      `json:"complete"`
	Problems []Problem `json:"problems"`
}

func (v Verdict) Messages() []string {
	out := make([]string, len(v.Problems))
	for i, p := range v.Problems {
		out[i] = p.Message
	}
	return out
}

// Validate checks a bundle and reports every problem found. It has no side
// effects. Counts and alignment are computed on the deduplicated evaluations.
func Validate(b Bundle) Verdict {
	problems := []Problem{}
	add := func(kind ProblemKind, format string, args ...any) {
		problems = append(problems, Problem{Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if len(b.Questions) == 0 {
		add(ProblemNoQuestions, "no questions associated")
	}

	resolved := b.Resolved()
	if len(resolved) == 0 {
		add(ProblemNoEvaluations, "no evaluations recorded")
		return Verdict{Complete: false, Problems: problems}
	}

	if len(b.Questions) != len(resolved) {
		add(ProblemCountMismatch, "question count (%d) does not match evaluation count (%d)",
			len(b.Questions), len(resolved))
	}

	incomplete := 0
	for _, e := range resolved {
		if !e.IsComplete() {
			incomplete++
		}
	}
	if incomplete > 0 {
		add(ProblemIncompleteEvaluation, "%d incomplete evaluation(s)", incomplete)
	}

	if !sameQuestionSet(b) {
		add(ProblemMisaligned, "questions and evaluations misaligned")
	}

	return Verdict{Complete: len(problems) == 0, Problems: problems}
}

func sameQuestionSet(b Bundle) bool {
	ids := make(map[int64]struct{}, len(b.Questions))
	for _, q := range b.Questions {
		ids[q.ID] = struct{}{}
	}
	if len(ids) != len(b.Index) {
		return false
	}
	for qid := range b.Index {
		if _, ok := ids[qid]; !ok {
			return false
		}
	}
	return true
}
