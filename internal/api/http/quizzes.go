package http

import (
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type quizStore interface {
	course.CourseStore
	course.QuizStore
}

type questionRequest struct {
	Text          string              `json:"text"`
	Type          course.QuestionType `json:"type"`
	Options       []course.Option     `json:"options"`
	CorrectAnswer *int                `json:"correct_answer"`
	Points        int                 `json:"points"`
	Explanation   string              `json:"explanation"`
	Difficulty    string              `json:"difficulty"`
}

func (q questionRequest) question() course.Question {
	return course.NormalizeQuestion(course.Question{
		Text:          strings.TrimSpace(q.Text),
		Type:          q.Type,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Points:        q.Points,
		Explanation:   q.Explanation,
		Difficulty:    q.Difficulty,
	})
}

type quizRequest struct {
	course.QuizFields
	Questions []questionRequest `json:"questions"`
}

type quizView struct {
	Quiz      course.Quiz       `json:"quiz"`
	Questions []course.Question `json:"questions"`
}

// POST /courses/{courseID}/quizzes  quiz fields plus its questions
func CreateQuizHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := managedCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		var req quizRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		quiz := course.NormalizeQuiz(c.ID, req.QuizFields)
		if err := course.Validate(quiz); err != nil {
			writeError(w, r, log, err)
			return
		}
		questions := make([]course.Question, 0, len(req.Questions))
		for i, qr := range req.Questions {
			q := qr.question()
			if err := course.Validate(q); err != nil {
				writeError(w, r, log, course.Validation("question %d: %v", i+1, err))
				return
			}
			questions = append(questions, q)
		}
		out, qs, err := store.CreateQuiz(r.Context(), quiz, questions)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, quizView{Quiz: out, Questions: qs})
	}
}

func ListQuizzesHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _, ok := visibleCourse(w, r, log, store, chi.URLParam(r, "courseID"))
		if !ok {
			return
		}
		out, err := store.ListQuizzes(r.Context(), c.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /quizzes/{quizID}
// Learners get questions without answer keys, shuffled when the quiz asks
// for it.
func GetQuizHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quiz, qs, err := store.GetQuizWithQuestions(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		_, manager, ok := visibleCourse(w, r, log, store, quiz.CourseID)
		if !ok {
			return
		}
		if !manager {
			stripped := make([]course.Question, len(qs))
			for i, q := range qs {
				stripped[i] = q.StripAnswers()
			}
			if quiz.ShuffleQuestions {
				rand.Shuffle(len(stripped), func(i, j int) { stripped[i], stripped[j] = stripped[j], stripped[i] })
			}
			qs = stripped
		}
		writeJSON(w, http.StatusOK, quizView{Quiz: quiz, Questions: qs})
	}
}

// managedQuiz loads a quiz whose course the caller manages.
func managedQuiz(w http.ResponseWriter, r *http.Request, log *logger.Logger, store quizStore) (course.Quiz, bool) {
	q, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, log, err)
		return course.Quiz{}, false
	}
	if _, ok := managedCourse(w, r, log, store, q.CourseID); !ok {
		return course.Quiz{}, false
	}
	return q, true
}

func DeleteQuizHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := managedQuiz(w, r, log, store)
		if !ok {
			return
		}
		if err := store.DeleteQuiz(r.Context(), q.ID); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddQuestionHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quiz, ok := managedQuiz(w, r, log, store)
		if !ok {
			return
		}
		var req questionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		q := req.question()
		if err := course.Validate(q); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.AddQuestion(r.Context(), quiz.ID, q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// PUT /quizzes/{quizID}  only the settings present in the body change
func UpdateQuizHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := managedQuiz(w, r, log, store)
		if !ok {
			return
		}
		var req course.QuizFields
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		q = req.Apply(q)
		if err := course.Validate(q); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.UpdateQuiz(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// managedQuestion loads a question whose course the caller manages.
func managedQuestion(w http.ResponseWriter, r *http.Request, log *logger.Logger, store quizStore) (course.Question, bool) {
	qq, err := store.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, r, log, err)
		return course.Question{}, false
	}
	q, err := store.GetQuiz(r.Context(), qq.QuizID)
	if err != nil {
		writeError(w, r, log, err)
		return course.Question{}, false
	}
	if _, ok := managedCourse(w, r, log, store, q.CourseID); !ok {
		return course.Question{}, false
	}
	return qq, true
}

// PUT /questions/{questionID}  replaces the question body
func UpdateQuestionHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		old, ok := managedQuestion(w, r, log, store)
		if !ok {
			return
		}
		var req questionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		q := req.question()
		q.ID = old.ID
		if err := course.Validate(q); err != nil {
			writeError(w, r, log, err)
			return
		}
		out, err := store.UpdateQuestion(r.Context(), q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func DeleteQuestionHandler(store quizStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := managedQuestion(w, r, log, store)
		if !ok {
			return
		}
		if err := store.DeleteQuestion(r.Context(), q.ID); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
