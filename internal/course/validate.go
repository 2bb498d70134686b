package course

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(questionRules, Question{})
	return v
}

// questionRules enforces the per-type option layout.
func questionRules(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			sl.ReportError(q.Options, "options", "Options", "min_options", "2")
		}
		if q.CorrectAnswer == nil && !anyCorrect(q.Options) {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "required", "")
		}
		if q.CorrectAnswer != nil && *q.CorrectAnswer >= len(q.Options) {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "out_of_range", "")
		}
	case TrueFalse:
		if len(q.Options) != 2 {
			sl.ReportError(q.Options, "options", "Options", "len", "2")
		}
		if q.CorrectAnswer == nil && !anyCorrect(q.Options) {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "required", "")
		}
		if q.CorrectAnswer != nil && *q.CorrectAnswer > 1 {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "out_of_range", "")
		}
	case FillInBlank:
		if q.CorrectAnswer == nil && !anyCorrect(q.Options) {
			sl.ReportError(q.Options, "options", "Options", "accepted_answer", "")
		}
		if q.CorrectAnswer != nil && *q.CorrectAnswer >= len(q.Options) {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "out_of_range", "")
		}
	}
}

func anyCorrect(opts []Option) bool {
	for _, o := range opts {
		if o.IsCorrect {
			return true
		}
	}
	return false
}

// Validate checks struct tags and entity rules and returns a ValidationError
// listing the offending fields.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("%v", err)
	}
	out := &Error{Kind: KindValidation, Msg: "invalid input"}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Error: describe(fe)})
	}
	if len(out.Fields) > 0 {
		out.Msg = "invalid " + out.Fields[0].Field + ": " + out.Fields[0].Error
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min_options":
		return "needs at least " + fe.Param() + " options"
	case "len":
		return "needs exactly " + fe.Param() + " options"
	case "out_of_range":
		return "is out of range"
	case "accepted_answer":
		return "needs at least one accepted answer"
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag()
	}
}

// NormalizeQuestion applies defaults. For choice questions with a
// CorrectAnswer, the option flags are rewritten so only that option is correct.
func NormalizeQuestion(q Question) Question {
	if q.Type == "" {
		q.Type = MultipleChoice
	}
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	if q.Type == TrueFalse && len(q.Options) == 0 {
		q.Options = []Option{{Text: "True"}, {Text: "False"}}
	}
	if q.Type != FillInBlank && q.CorrectAnswer != nil && *q.CorrectAnswer >= 0 && *q.CorrectAnswer < len(q.Options) {
		opts := make([]Option, len(q.Options))
		copy(opts, q.Options)
		for i := range opts {
			opts[i].IsCorrect = i == *q.CorrectAnswer
		}
		q.Options = opts
	}
	return q
}

// QuizFields carries caller-supplied quiz settings. A nil field takes the
// creation default in NormalizeQuiz and is left alone by Apply, so an
// explicit 0 or false survives.
type QuizFields struct {
	Title              *string `json:"title"`
	Description        *string `json:"description"`
	TimeLimitMin       *int    `json:"time_limit_min"`
	PassingScore       *int    `json:"passing_score"`
	MaxAttempts        *int    `json:"max_attempts"`
	ShowCorrectAnswers *bool   `json:"show_correct_answers"`
	ShuffleQuestions   *bool   `json:"shuffle_questions"`
	AllowReview        *bool   `json:"allow_review"`
}

// Apply overlays the set fields onto q.
func (f QuizFields) Apply(q Quiz) Quiz {
	if f.Title != nil {
		q.Title = strings.TrimSpace(*f.Title)
	}
	if f.Description != nil {
		q.Description = *f.Description
	}
	if f.TimeLimitMin != nil {
		q.TimeLimitMin = *f.TimeLimitMin
	}
	if f.PassingScore != nil {
		q.PassingScore = *f.PassingScore
	}
	if f.MaxAttempts != nil {
		q.MaxAttempts = *f.MaxAttempts
	}
	if f.ShowCorrectAnswers != nil {
		q.ShowCorrectAnswers = *f.ShowCorrectAnswers
	}
	if f.ShuffleQuestions != nil {
		q.ShuffleQuestions = *f.ShuffleQuestions
	}
	if f.AllowReview != nil {
		q.AllowReview = *f.AllowReview
	}
	return q
}

// NormalizeQuiz builds a new quiz for courseID with creation defaults for
// every field f leaves unset.
func NormalizeQuiz(courseID string, f QuizFields) Quiz {
	return f.Apply(Quiz{
		CourseID:           courseID,
		PassingScore:       DefaultPassingScore,
		MaxAttempts:        DefaultMaxAttempts,
		ShowCorrectAnswers: true,
		AllowReview:        true,
	})
}

// NormalizeCourse applies creation defaults.
func NormalizeCourse(c Course) Course {
	if c.MaxStudents == 0 {
		c.MaxStudents = DefaultMaxStudents
	}
	return c
}
