package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-coursework/internal/analytics"
	authmw "github.com/mind-engage/mindengage-coursework/internal/auth/middleware"
	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/coursework"
	"github.com/mind-engage/mindengage-coursework/internal/enrollment"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/progress"
	"github.com/mind-engage/mindengage-coursework/internal/rbac"
	"github.com/mind-engage/mindengage-coursework/internal/storage"
)

// Deps is everything the REST surface needs.
type Deps struct {
	Store      course.Store
	Enrollment *enrollment.Service
	Coursework *coursework.Service
	Progress   *progress.Reconciler
	Reporter   *analytics.Reporter
	Blobs      storage.BlobStore
	Auth       *authmw.AuthService
	Log        *logger.Logger

	// Events backs GET /events; nil leaves the route unmounted.
	Events EventLog

	CORSOrigins        []string
	EnableRegistration bool
	// AllowClaimFallback keeps the token role for subjects with no user
	// record (offline/dev).
	AllowClaimFallback bool
	RequestTimeout     time.Duration
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	st := d.Store

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				log.Warn("not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if d.EnableRegistration {
		r.Post("/auth/register", authmw.RegisterHandler(d.Auth, st, log))
	}
	r.Post("/auth/login", authmw.LoginHandler(d.Auth, st))
	if d.Blobs != nil {
		r.Get("/files/*", FilesHandler(d.Blobs, log))
	}

	// Protected API (JWT → role from store → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		pr.Use(authmw.AttachRoleFromStore(st, log, d.AllowClaimFallback))

		// Account
		pr.With(rbac.Require("user:self")).Get("/me", MeHandler(st, log))
		pr.With(rbac.Require("user:self")).Post("/me/password", ChangePasswordHandler(st, log))
		pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(st, log))
		pr.With(rbac.Require("users:update-role")).Put("/users/{userID}/role", UpdateUserRoleHandler(st, log))
		if d.Events != nil {
			pr.With(rbac.Require("events:list")).Get("/events", ListEventsHandler(d.Events, log))
		}

		// Courses
		pr.With(rbac.Require("course:create")).Post("/courses", CreateCourseHandler(st, log))
		pr.With(rbac.Require("course:view")).Get("/courses", ListCoursesHandler(st, log))
		pr.With(rbac.Require("course:view")).Get("/courses/{courseID}", GetCourseHandler(st, log))
		pr.With(rbac.Require("course:update")).Patch("/courses/{courseID}", UpdateCourseHandler(st, log))
		pr.With(rbac.Require("course:delete")).Delete("/courses/{courseID}", DeleteCourseHandler(st, log))
		pr.With(rbac.Require("course:analytics")).Get("/courses/{courseID}/analytics", CourseAnalyticsHandler(st, d.Reporter, log))

		// Lessons
		pr.With(rbac.Require("lesson:create")).Post("/courses/{courseID}/lessons", CreateLessonHandler(st, log))
		pr.With(rbac.Require("lesson:view")).Get("/courses/{courseID}/lessons", ListLessonsHandler(st, log))
		pr.With(rbac.Require("lesson:reorder")).Put("/courses/{courseID}/lessons/order", ReorderLessonsHandler(st, log))
		pr.With(rbac.Require("lesson:update")).Patch("/lessons/{lessonID}", UpdateLessonHandler(st, log))
		pr.With(rbac.Require("lesson:delete")).Delete("/lessons/{lessonID}", DeleteLessonHandler(st, log))
		if d.Blobs != nil {
			pr.With(rbac.Require("lesson:update")).Post("/lessons/{lessonID}/resources", UploadResourceHandler(st, d.Blobs, log))
		}

		// Quizzes
		pr.With(rbac.Require("quiz:create")).Post("/courses/{courseID}/quizzes", CreateQuizHandler(st, log))
		pr.With(rbac.Require("quiz:view")).Get("/courses/{courseID}/quizzes", ListQuizzesHandler(st, log))
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", GetQuizHandler(st, log))
		pr.With(rbac.Require("quiz:update")).Put("/quizzes/{quizID}", UpdateQuizHandler(st, log))
		pr.With(rbac.Require("quiz:delete")).Delete("/quizzes/{quizID}", DeleteQuizHandler(st, log))
		pr.With(rbac.Require("quiz:update")).Post("/quizzes/{quizID}/questions", AddQuestionHandler(st, log))
		pr.With(rbac.Require("quiz:update")).Put("/questions/{questionID}", UpdateQuestionHandler(st, log))
		pr.With(rbac.Require("quiz:update")).Delete("/questions/{questionID}", DeleteQuestionHandler(st, log))

		// Attempts and grades
		pr.With(rbac.Require("quiz:attempt")).Post("/quizzes/{quizID}/attempts", SubmitAttemptHandler(d.Coursework, log))
		pr.With(rbac.Require("grade:view-own")).Get("/quizzes/{quizID}/grade", MyGradeHandler(st, log))
		pr.With(rbac.Require("grade:view-all")).Get("/quizzes/{quizID}/grades", QuizGradesHandler(st, log))
		pr.With(rbac.Require("grade:view-own")).Get("/me/grades", MyGradesHandler(st, log))

		// Enrollments
		pr.With(rbac.Require("enrollment:create")).Post("/courses/{courseID}/enroll", EnrollHandler(d.Enrollment, log))
		pr.With(rbac.RequireAny("enrollment:drop-own", "enrollment:manage")).Post("/enrollments/{enrollmentID}/drop", DropEnrollmentHandler(d.Enrollment, st, log))
		pr.With(rbac.Require("enrollment:manage")).Post("/enrollments/{enrollmentID}/suspend", SuspendEnrollmentHandler(d.Enrollment, st, log))
		pr.With(rbac.Require("enrollment:manage")).Post("/enrollments/{enrollmentID}/reinstate", ReinstateEnrollmentHandler(d.Enrollment, st, log))
		pr.With(rbac.Require("enrollment:manage")).Put("/enrollments/{enrollmentID}/manual-progress", ManualProgressHandler(d.Enrollment, st, log))
		pr.With(rbac.Require("enrollment:manage")).Put("/enrollments/{enrollmentID}/payment", PaymentStatusHandler(d.Enrollment, st, log))
		pr.With(rbac.Require("enrollment:view-own")).Get("/me/enrollments", MyEnrollmentsHandler(st, log))
		pr.With(rbac.Require("enrollment:manage")).Get("/courses/{courseID}/enrollments", CourseEnrollmentsHandler(st, log))

		// Progress
		pr.With(rbac.Require("progress:write-own")).Put("/lessons/{lessonID}/progress", UpdateLessonProgressHandler(d.Coursework, log))
		pr.With(rbac.Require("progress:write-own")).Post("/lessons/{lessonID}/complete", CompleteLessonHandler(d.Coursework, log))
		pr.With(rbac.Require("progress:view-own")).Get("/lessons/{lessonID}/progress", GetLessonProgressHandler(d.Progress, log))
		pr.With(rbac.Require("progress:view-own")).Get("/courses/{courseID}/progress", CourseProgressHandler(d.Coursework, st, log))
	})
	return r
}
