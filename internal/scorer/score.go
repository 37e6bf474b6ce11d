package scorer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/pkg/model"
)

const systemPrompt = `You are a strict technical interviewer grading one answer.

Return ONLY a JSON object with these keys and no other text:
- "structure_clarity": integer 1-100
- "technical_mastery": integer 1-100
- "relevance": integer 1-100
- "communication": integer 1-100
- "percentage": number between 0 and the question weight, the points earned
- "strengths": array of short strings
- "improvements": array of short strings

Grade only what the candidate wrote. Never invent content for them.`

const maxAnswerLength = 8000

// Score grades an answer and returns the parsed feedback together with the
// raw payload the model produced.
func (c *Client) Score(ctx context.Context, q model.Question, answer string) (model.Feedback, string, error) {
	answer = truncate(answer, maxAnswerLength)
	user := fmt.Sprintf("Question type: %s\nQuestion weight: %s\nQuestion:\n%s\n\nAnswer:\n%s",
		q.Type, strconv.FormatFloat(q.Weight, 'f', -1, 64), q.Text, answer)

	raw, err := c.Chat(ctx, ChatRequest{
		Messages: []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": user},
		},
		MaxTokens:      800,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return model.Feedback{}, "", apperr.Infrastructure("scorer request", err)
	}

	raw = stripFences(raw)
	fb, err := model.ParseFeedback(raw)
	if err != nil {
		return model.Feedback{}, raw, apperr.Wrap(apperr.CodeMalformedPayload, "scorer returned an unreadable payload", err).
			With("question_id", strconv.FormatInt(q.ID, 10))
	}
	if err := checkRanges(fb, q.Weight); err != nil {
		return model.Feedback{}, raw, apperr.Wrap(apperr.CodeMalformedPayload, "scorer payload out of range", err).
			With("question_id", strconv.FormatInt(q.ID, 10))
	}
	return fb, raw, nil
}

func checkRanges(fb model.Feedback, weight float64) error {
	criteria := map[string]int{
		"structure_clarity": fb.StructureClarity,
		"technical_mastery": fb.TechnicalMastery,
		"relevance":         fb.Relevance,
		"communication":     fb.Communication,
	}
	for name, v := range criteria {
		if v < 1 || v > 100 {
			return fmt.Errorf("%s=%d outside 1-100", name, v)
		}
	}
	if fb.Percentage < 0 || (weight > 0 && fb.Percentage > weight) {
		return fmt.Errorf("percentage=%v outside 0-%v", fb.Percentage, weight)
	}
	return nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
