package grading_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
)

func idx(i int) *int { return &i }

func choice(id string, correct int) course.Question {
	return course.Question{
		ID: id, QuizID: "qz1", Type: course.MultipleChoice,
		Options:       []course.Option{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		CorrectAnswer: idx(correct), Points: 1,
	}
}

func fourQuestionQuiz() (course.Quiz, []course.Question) {
	quiz := course.Quiz{ID: "qz1", PassingScore: 60, MaxAttempts: 3}
	qs := []course.Question{choice("q1", 0), choice("q2", 1), choice("q3", 2), choice("q4", 0)}
	return quiz, qs
}

func TestGrade_ThreeOfFourIsSeventyFive(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	res, err := grading.New().Grade(quiz, qs, []grading.Answer{
		{QuestionID: "q1", Selected: float64(0)},
		{QuestionID: "q2", Selected: float64(1)},
		{QuestionID: "q3", Selected: float64(2)},
		{QuestionID: "q4", Selected: float64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 4, res.MaxScore)
	assert.Equal(t, 75, res.Percentage)
	require.Len(t, res.Questions, 4)
	assert.False(t, res.Questions[3].Correct)
	assert.Equal(t, 0, res.Questions[3].Points)
	assert.Equal(t, 1, res.Questions[0].Points)
}

func TestGrade_MissingAndUnknownAnswers(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	res, err := grading.New().Grade(quiz, qs, []grading.Answer{
		{QuestionID: "q1", Selected: 0},
		{QuestionID: "does-not-exist", Selected: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 4, res.MaxScore)
	assert.Equal(t, 25, res.Percentage)
	assert.Nil(t, res.Questions[1].Selected)
}

func TestGrade_DuplicateAnswerIsValidationError(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	_, err := grading.New().Grade(quiz, qs, []grading.Answer{
		{QuestionID: "q1", Selected: 0},
		{QuestionID: "q1", Selected: 1},
	})
	require.Error(t, err)
	assert.True(t, course.IsKind(err, course.KindValidation))
}

func TestGrade_SkipsQuestionsFromOtherQuiz(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	stray := choice("x1", 0)
	stray.QuizID = "other"
	res, err := grading.New().Grade(quiz, append(qs, stray), []grading.Answer{{QuestionID: "x1", Selected: 0}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.MaxScore)
	assert.Equal(t, 0, res.Score)
}

func TestGrade_WrongTypeIsIncorrect(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	res, err := grading.New().Grade(quiz, qs, []grading.Answer{
		{QuestionID: "q1", Selected: "0"},
		{QuestionID: "q2", Selected: 1.5},
		{QuestionID: "q3", Selected: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}

func TestGrade_FlaggedOptionWithoutIndex(t *testing.T) {
	q := course.Question{ID: "q1", QuizID: "qz1", Type: course.MultipleChoice,
		Options: []course.Option{{Text: "a"}, {Text: "b", IsCorrect: true}}}
	res, err := grading.New().Grade(course.Quiz{ID: "qz1"}, []course.Question{q},
		[]grading.Answer{{QuestionID: "q1", Selected: 1}})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, 1, res.Questions[0].Expected)
}

func TestGrade_TrueFalseForms(t *testing.T) {
	q := course.NormalizeQuestion(course.Question{ID: "tf", QuizID: "qz1", Type: course.TrueFalse, CorrectAnswer: idx(1)})
	quiz := course.Quiz{ID: "qz1"}
	eng := grading.New()

	for _, sel := range []any{false, "false", " FALSE ", 1, float64(1)} {
		res, err := eng.Grade(quiz, []course.Question{q}, []grading.Answer{{QuestionID: "tf", Selected: sel}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Score, "selected %v", sel)
	}
	for _, sel := range []any{true, "true", 0, "maybe"} {
		res, err := eng.Grade(quiz, []course.Question{q}, []grading.Answer{{QuestionID: "tf", Selected: sel}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Score, "selected %v", sel)
	}
}

func TestGrade_FillInBlank(t *testing.T) {
	q := course.Question{ID: "fb", QuizID: "qz1", Type: course.FillInBlank,
		Options: []course.Option{{Text: "Mitochondria", IsCorrect: true}, {Text: "3", IsCorrect: true}}}
	quiz := course.Quiz{ID: "qz1"}

	exact := grading.New()
	cases := map[string]bool{
		"  the MITOCHONDRIA. ": false,
		"mitochondria!":        true,
		"3.0":                  true,
		"mitochondrea":         false,
		"":                     false,
	}
	for in, want := range cases {
		res, err := exact.Grade(quiz, []course.Question{q}, []grading.Answer{{QuestionID: "fb", Selected: in}})
		require.NoError(t, err)
		assert.Equal(t, want, res.Questions[0].Correct, "input %q", in)
	}

	fuzzy := grading.New(grading.WithMaxEditDistance(1))
	res, err := fuzzy.Grade(quiz, []course.Question{q}, []grading.Answer{{QuestionID: "fb", Selected: "mitochondrea"}})
	require.NoError(t, err)
	assert.True(t, res.Questions[0].Correct)
	assert.Equal(t, []string{"Mitochondria", "3"}, res.Questions[0].Expected)
}

func TestGrade_Deterministic(t *testing.T) {
	quiz, qs := fourQuestionQuiz()
	answers := []grading.Answer{
		{QuestionID: "q4", Selected: 0},
		{QuestionID: "q2", Selected: 2},
		{QuestionID: "q1", Selected: 0},
	}
	eng := grading.New()
	first, err := eng.Grade(quiz, qs, answers)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := eng.Grade(quiz, qs, answers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, grading.Percentage(0, 0))
	assert.Equal(t, 67, grading.Percentage(2, 3))
	assert.Equal(t, 33, grading.Percentage(1, 3))
	assert.Equal(t, 100, grading.Percentage(3, 3))
}

func TestGrade_CorrectAnswerIsTheOnlyKey(t *testing.T) {
	q := course.Question{ID: "q1", QuizID: "qz1", Type: course.MultipleChoice, Points: 1,
		CorrectAnswer: idx(2),
		Options:       []course.Option{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}}}
	quiz := course.Quiz{ID: "qz1"}
	eng := grading.New()

	for sel, want := range map[int]int{0: 0, 1: 0, 2: 1} {
		res, err := eng.Grade(quiz, []course.Question{q}, []grading.Answer{{QuestionID: "q1", Selected: sel}})
		require.NoError(t, err)
		assert.Equal(t, want, res.Score, "selected %d", sel)
	}

	normalized := course.NormalizeQuestion(q)
	res, err := eng.Grade(quiz, []course.Question{normalized}, []grading.Answer{{QuestionID: "q1", Selected: 0}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
}

func TestGrade_NumericTolerance(t *testing.T) {
	q := course.Question{ID: "fb", QuizID: "qz1", Type: course.FillInBlank,
		Options: []course.Option{{Text: "3.14", IsCorrect: true}}}
	quiz := course.Quiz{ID: "qz1"}
	answer := []grading.Answer{{QuestionID: "fb", Selected: "3.1416"}}

	res, err := grading.New().Grade(quiz, []course.Question{q}, answer)
	require.NoError(t, err)
	assert.False(t, res.Questions[0].Correct)

	res, err = grading.New(grading.WithNumericTolerance(0.01)).Grade(quiz, []course.Question{q}, answer)
	require.NoError(t, err)
	assert.True(t, res.Questions[0].Correct)
}
