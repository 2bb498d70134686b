package grading

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

// Answer is one submitted response. Selected is an option index for
// multiple-choice, an index, bool or "true"/"false" for true-false and free
// text for fill-in-blank.
type Answer struct {
	QuestionID string `json:"question_id"`
	Selected   any    `json:"selected"`
}

// QuestionResult is the outcome for a single question of the quiz.
type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Selected   any    `json:"selected,omitempty"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
	// Expected is the answer key: an option index, or the accepted texts for
	// fill-in-blank. Callers clear it when answers must stay hidden.
	Expected any `json:"expected,omitempty"`
}

// Result is the score of one submission. Scoring is count-based: every
// graded question is worth one point.
type Result struct {
	Score      int              `json:"score"`
	MaxScore   int              `json:"max_score"`
	Percentage int              `json:"percentage"`
	Questions  []QuestionResult `json:"questions"`
}

// Strategy decides whether a response answers a question correctly. A
// malformed response is reported as an error and graded as incorrect.
type Strategy interface {
	Check(q course.Question, response any) (bool, error)
	Key(q course.Question) any
}

var errResponseType = errors.New("unexpected response type")

// Engine routes each question to the strategy for its type.
type Engine struct {
	strategies map[course.QuestionType]Strategy
}

// Engine options

type Option func(*config)

type config struct {
	MaxEditDistance  int     // fill-in-blank fuzzy match
	NumericTolerance float64 // fill-in-blank numeric answers
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }

func WithNumericTolerance(t float64) Option { return func(c *config) { c.NumericTolerance = t } }

// New installs the built-in strategies. Fill-in-blank matching is exact after
// normalization unless WithMaxEditDistance is given.
func New(opts ...Option) *Engine {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &Engine{
		strategies: map[course.QuestionType]Strategy{
			course.MultipleChoice: choiceStrategy{},
			course.TrueFalse:      trueFalseStrategy{},
			course.FillInBlank:    blankStrategy{maxEdit: cfg.MaxEditDistance, tol: cfg.NumericTolerance},
		},
	}
}

// Grade scores answers against the quiz's questions. Questions that belong to
// another quiz are skipped, answers for unknown questions are ignored and a
// missing answer counts as incorrect. Grade has no side effects.
func (e *Engine) Grade(quiz course.Quiz, questions []course.Question, answers []Answer) (Result, error) {
	byQuestion := make(map[string]any, len(answers))
	for _, a := range answers {
		if a.QuestionID == "" {
			continue
		}
		if _, dup := byQuestion[a.QuestionID]; dup {
			return Result{}, course.Validation("question %s answered more than once", a.QuestionID)
		}
		byQuestion[a.QuestionID] = a.Selected
	}

	res := Result{Questions: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		if q.QuizID != "" && q.QuizID != quiz.ID {
			continue
		}
		s, ok := e.strategies[q.Type]
		if !ok {
			continue
		}
		res.MaxScore++
		qr := QuestionResult{QuestionID: q.ID, Expected: s.Key(q)}
		if resp, answered := byQuestion[q.ID]; answered && resp != nil {
			qr.Selected = resp
			if correct, err := s.Check(q, resp); err == nil && correct {
				qr.Correct = true
				qr.Points = 1
				res.Score++
			}
		}
		res.Questions = append(res.Questions, qr)
	}
	res.Percentage = Percentage(res.Score, res.MaxScore)
	return res, nil
}

// Percentage returns round(score/total*100) clamped to 0..100, or 0 when
// total is 0.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(score) / float64(total) * 100))
	return min(max(p, 0), 100)
}

// --- Strategies ---

type choiceStrategy struct{}

func (choiceStrategy) Check(q course.Question, response any) (bool, error) {
	idx, ok := toIndex(response)
	if !ok {
		return false, errResponseType
	}
	return isCorrectIndex(q, idx), nil
}

func (choiceStrategy) Key(q course.Question) any { return correctIndex(q) }

type trueFalseStrategy struct{}

func (trueFalseStrategy) Check(q course.Question, response any) (bool, error) {
	switch v := response.(type) {
	case bool:
		return isCorrectIndex(q, boolIndex(q, v)), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return isCorrectIndex(q, boolIndex(q, true)), nil
		case "false":
			return isCorrectIndex(q, boolIndex(q, false)), nil
		}
		return false, errResponseType
	}
	idx, ok := toIndex(response)
	if !ok {
		return false, errResponseType
	}
	return isCorrectIndex(q, idx), nil
}

func (trueFalseStrategy) Key(q course.Question) any { return correctIndex(q) }

type blankStrategy struct {
	maxEdit int
	tol     float64
}

func (s blankStrategy) Check(q course.Question, response any) (bool, error) {
	resp, ok := response.(string)
	if !ok {
		return false, errResponseType
	}
	normResp := normalize(resp)
	if normResp == "" {
		return false, nil
	}
	for _, k := range acceptedAnswers(q) {
		nk := normalize(k)
		if nk == normResp || numericMatch(resp, k, s.tol) {
			return true, nil
		}
		if s.maxEdit > 0 && levenshtein(nk, normResp) <= s.maxEdit {
			return true, nil
		}
	}
	return false, nil
}

func (blankStrategy) Key(q course.Question) any { return acceptedAnswers(q) }

// helpers

// correctIndex returns the answer key index, preferring CorrectAnswer over
// the first flagged option. -1 means no key.
func correctIndex(q course.Question) int {
	if q.CorrectAnswer != nil {
		return *q.CorrectAnswer
	}
	for i, o := range q.Options {
		if o.IsCorrect {
			return i
		}
	}
	return -1
}

func isCorrectIndex(q course.Question, idx int) bool {
	if idx < 0 || idx >= len(q.Options) {
		return false
	}
	if q.CorrectAnswer != nil {
		return *q.CorrectAnswer == idx
	}
	return q.Options[idx].IsCorrect
}

// boolIndex maps a boolean answer onto the option labelled true or false,
// falling back to the conventional True/False layout.
func boolIndex(q course.Question, v bool) int {
	want := "false"
	if v {
		want = "true"
	}
	for i, o := range q.Options {
		if strings.EqualFold(strings.TrimSpace(o.Text), want) {
			return i
		}
	}
	if v {
		return 0
	}
	return 1
}

func acceptedAnswers(q course.Question) []string {
	var out []string
	for i, o := range q.Options {
		if o.IsCorrect || (q.CorrectAnswer != nil && *q.CorrectAnswer == i) {
			out = append(out, o.Text)
		}
	}
	return out
}

func toIndex(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
