package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/mind-engage/mindengage-coursework/internal/api/http"
	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/coursework"
	"github.com/mind-engage/mindengage-coursework/internal/enrollment"
	"github.com/mind-engage/mindengage-coursework/internal/grading"
	"github.com/mind-engage/mindengage-coursework/internal/ledger"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
	"github.com/mind-engage/mindengage-coursework/internal/storage"
)

type server struct {
	h      http.Handler
	store  course.Store
	events *fakeEventLog
}

type fakeEventLog struct {
	mu    sync.Mutex
	after int64
	limit int
}

func (f *fakeEventLog) Since(_ context.Context, after int64, limit int) ([]notify.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after, f.limit = after, limit
	return []notify.LogEntry{{Seq: after + 1, SiteID: "test", Type: notify.EventEnrolled, Key: "ev-1", DataJSON: "{}"}}, nil
}

func newServer(t *testing.T) server {
	t.Helper()
	st := course.NewInMemoryStore()
	log := logger.Nop()
	metrics := analytics.NewCounters()
	enroll := enrollment.New(st, nil, log, enrollment.WithMetrics(metrics))
	rec := progress.New(st, enroll, log)
	cw := coursework.New(st, grading.New(), ledger.New(st, log), rec, log, coursework.WithMetrics(metrics))
	blobs, err := storage.NewFSStore(t.TempDir(), "/files")
	require.NoError(t, err)

	events := &fakeEventLog{}
	h := api.NewRouter(api.Deps{
		Store:              st,
		Enrollment:         enroll,
		Coursework:         cw,
		Progress:           rec,
		Events:             events,
		Reporter:           analytics.NewReporter(st),
		Blobs:              blobs,
		Auth:               authmw.NewAuthService("test-secret", time.Hour),
		Log:                log,
		EnableRegistration: true,
	})
	return server{h: h, store: st, events: events}
}

func (s server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func kindOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorEnvelope](t, rec).Error.Kind
}

func (s server) register(t *testing.T, email, role string) (string, string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "name": email, "password": "correct-horse", "role": role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[struct {
		AccessToken string      `json:"access_token"`
		User        course.User `json:"user"`
	}](t, rec)
	return out.AccessToken, out.User.ID
}

type quizView struct {
	Quiz      course.Quiz       `json:"quiz"`
	Questions []course.Question `json:"questions"`
}

// seedCourse creates a published course with one lesson and a two-question
// quiz owned by the instructor token.
func (s server) seedCourse(t *testing.T, instructor string) (course.Course, course.Lesson, quizView) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/courses", instructor, map[string]any{
		"title": "Operating Systems", "published": true, "max_students": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[course.Course](t, rec)

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/lessons", instructor, map[string]any{
		"title": "Processes", "published": true, "estimated_minutes": 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	l := decode[course.Lesson](t, rec)

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/quizzes", instructor, map[string]any{
		"title": "Scheduling", "passing_score": 50, "max_attempts": 2,
		"questions": []map[string]any{
			{"text": "Round robin uses a quantum", "type": "true-false", "correct_answer": 0},
			{"text": "Pick the preemptive one", "type": "multiple-choice", "correct_answer": 1,
				"options": []map[string]any{{"text": "FCFS"}, {"text": "SRTF"}, {"text": "SJF"}}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return c, l, decode[quizView](t, rec)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/courses", "", nil).Code)
}

func TestLearnerJourney(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "ada@example.com", "instructor")
	student, studentID := s.register(t, "linus@example.com", "student")
	c, l, qv := s.seedCourse(t, instructor)

	// answer keys stay hidden from learners
	rec := s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID, student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "correct_answer")
	assert.NotContains(t, rec.Body.String(), "is_correct")

	answers := map[string]any{"answers": []map[string]any{
		{"question_id": qv.Questions[0].ID, "selected": true},
		{"question_id": qv.Questions[1].ID, "selected": 1},
	}}
	rec = s.do(t, http.MethodPost, "/quizzes/"+qv.Quiz.ID+"/attempts", student, answers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NotEnrolled", kindOf(t, rec))

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/enroll", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	e := decode[course.Enrollment](t, rec)
	assert.Equal(t, studentID, e.UserID)

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/enroll", student, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyEnrolled", kindOf(t, rec))

	rec = s.do(t, http.MethodPost, "/lessons/"+l.ID+"/complete", student, map[string]int{"time_spent": 600})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lr := decode[coursework.LessonResult](t, rec)
	assert.Equal(t, course.ProgressCompleted, lr.Lesson.Status)
	require.NotNil(t, lr.Course)
	assert.Equal(t, 50, lr.Course.Percentage)

	rec = s.do(t, http.MethodPost, "/quizzes/"+qv.Quiz.ID+"/attempts", student, answers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sr := decode[coursework.SubmitResult](t, rec)
	assert.Equal(t, 100, sr.Result.Percentage)
	assert.True(t, sr.Passed)
	require.NotNil(t, sr.Progress)
	assert.Equal(t, course.EnrollmentCompleted, sr.Progress.Enrollment.Status)

	rec = s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID+"/grade", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[course.Grade](t, rec).TotalAttempts)

	rec = s.do(t, http.MethodGet, "/courses/"+c.ID+"/progress", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, decode[coursework.CourseView](t, rec).Percentage)

	rec = s.do(t, http.MethodPost, "/enrollments/"+e.ID+"/drop", student, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyCompleted", kindOf(t, rec))

	rec = s.do(t, http.MethodGet, "/me/enrollments", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]course.Enrollment](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/courses/"+c.ID, instructor, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CourseInUse", kindOf(t, rec))

	rec = s.do(t, http.MethodGet, "/courses/"+c.ID+"/analytics", instructor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[analytics.CourseReport](t, rec)
	assert.Equal(t, 100.0, rep.CompletionRate)

	rec = s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID+"/grades", instructor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]course.Grade](t, rec), 1)
}

func TestAuthorization(t *testing.T) {
	s := newServer(t)
	owner, _ := s.register(t, "owner@example.com", "instructor")
	other, _ := s.register(t, "other@example.com", "instructor")
	student, _ := s.register(t, "student@example.com", "student")
	c, _, qv := s.seedCourse(t, owner)

	rec := s.do(t, http.MethodPost, "/courses", student, map[string]any{"title": "Sneaky", "published": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", kindOf(t, rec))

	rec = s.do(t, http.MethodPatch, "/courses/"+c.ID, other, map[string]any{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID+"/grades", other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, "/courses/"+c.ID, owner, map[string]any{"published": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/courses/"+c.ID, student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/enroll", student, nil)
	assert.Equal(t, "CourseUnpublished", kindOf(t, rec))

	rec = s.do(t, http.MethodGet, "/quizzes/"+qv.Quiz.ID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "is_correct")
}

func TestValidationAndNotFound(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "v@example.com", "instructor")

	rec := s.do(t, http.MethodPost, "/courses", instructor, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", kindOf(t, rec))

	rec = s.do(t, http.MethodGet, "/courses/nope", instructor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", kindOf(t, rec))

	c, l, _ := s.seedCourse(t, instructor)
	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/lessons", instructor, map[string]any{"title": "Clash", "order": l.Order})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/courses/"+c.ID+"/quizzes", instructor, map[string]any{
		"title": "Broken", "questions": []map[string]any{{"text": "one option", "type": "multiple-choice",
			"correct_answer": 0, "options": []map[string]any{{"text": "only"}}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReorderLessons(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "r@example.com", "instructor")
	c, first, _ := s.seedCourse(t, instructor)
	rec := s.do(t, http.MethodPost, "/courses/"+c.ID+"/lessons", instructor, map[string]any{"title": "Threads", "published": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[course.Lesson](t, rec)
	assert.Equal(t, 2, second.Order)

	rec = s.do(t, http.MethodPut, "/courses/"+c.ID+"/lessons/order", instructor, map[string]any{
		"lesson_ids": []string{second.ID, first.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[[]course.Lesson](t, rec)
	require.Len(t, out, 2)
	assert.Equal(t, second.ID, out[0].ID)
	assert.Equal(t, 1, out[0].Order)
}

func TestUploadResource(t *testing.T) {
	s := newServer(t)
	instructor, _ := s.register(t, "u@example.com", "instructor")
	_, l, _ := s.seedCourse(t, instructor)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes week1.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("context switches"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", "Week 1 notes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/lessons/"+l.ID+"/resources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+instructor)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[course.Resource](t, rec)
	assert.Equal(t, "Week 1 notes", res.Name)

	rec = s.do(t, http.MethodGet, res.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "context switches", rec.Body.String())

	got, err := s.store.GetLesson(req.Context(), l.ID)
	require.NoError(t, err)
	require.Len(t, got.Resources, 1)
	assert.Equal(t, res.URL, got.Resources[0].URL)
}
