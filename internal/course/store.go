package course

import "context"

type CourseListOpts struct {
	Q             string
	InstructorID  string
	PublishedOnly bool
	Limit         int
	Offset        int
}

type CourseStore interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context, opts CourseListOpts) ([]Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	// DeleteCourse refuses with CourseInUse while active or completed
	// enrollments exist, and otherwise removes the course with its lessons,
	// quizzes, questions, grades, lesson progress and remaining enrollments.
	DeleteCourse(ctx context.Context, id string) error
	// AdjustEnrollmentCount atomically adds delta to currentEnrollments,
	// never going below zero.
	AdjustEnrollmentCount(ctx context.Context, courseID string, delta int) (Course, error)
}

type LessonStore interface {
	// CreateLesson appends the lesson when Order is 0; an occupied order is a
	// ValidationError.
	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	ListLessons(ctx context.Context, courseID string, publishedOnly bool) ([]Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
	DeleteLesson(ctx context.Context, id string) error
	// ReorderLessons assigns orders 1..n following lessonIDs, which must list
	// every lesson of the course exactly once.
	ReorderLessons(ctx context.Context, courseID string, lessonIDs []string) ([]Lesson, error)
}

type QuizStore interface {
	CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, []Question, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	// GetQuizWithQuestions returns the quiz and its questions in quiz order.
	GetQuizWithQuestions(ctx context.Context, id string) (Quiz, []Question, error)
	ListQuizzes(ctx context.Context, courseID string) ([]Quiz, error)
	AddQuestion(ctx context.Context, quizID string, q Question) (Question, error)
	// UpdateQuiz rewrites the quiz settings. Questions are untouched.
	UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	// UpdateQuestion replaces the question body, keeping its quiz and position.
	UpdateQuestion(ctx context.Context, q Question) (Question, error)
	// DeleteQuestion removes the question and closes the gap in the quiz order.
	DeleteQuestion(ctx context.Context, id string) error
}

type EnrollmentStore interface {
	GetEnrollment(ctx context.Context, id string) (Enrollment, error)
	FindEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
	// SaveEnrollment inserts when expectedVersion is 0 and otherwise updates
	// only if the stored version still matches. A lost race (including a
	// duplicate user+course insert) returns ErrConflict.
	SaveEnrollment(ctx context.Context, e Enrollment, expectedVersion int64) (Enrollment, error)
	ListEnrollmentsByUser(ctx context.Context, userID string) ([]Enrollment, error)
	ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]Enrollment, error)
	ListStaleEnrollments(ctx context.Context, limit int) ([]Enrollment, error)
	MarkProgressStale(ctx context.Context, userID, courseID string) error
}

type GradeStore interface {
	GetGrade(ctx context.Context, userID, quizID string) (Grade, error)
	// AppendAttempt persists the recomputed grade summary together with the
	// new attempt in one atomic step. expectedVersion 0 creates the grade;
	// otherwise the write only applies if the stored version matches.
	// Losing the race returns ErrConflict and writes nothing.
	AppendAttempt(ctx context.Context, g Grade, a Attempt, expectedVersion int64) (Grade, error)
	ListGradesByQuiz(ctx context.Context, quizID string) ([]Grade, error)
	ListGradesByUser(ctx context.Context, userID string) ([]Grade, error)
}

type ProgressStore interface {
	GetLessonProgress(ctx context.Context, userID, lessonID string) (LessonProgress, error)
	// UpsertLessonProgress merges the update atomically following
	// MergeLessonProgress.
	UpsertLessonProgress(ctx context.Context, p LessonProgress) (LessonProgress, error)
	ListLessonProgress(ctx context.Context, userID, courseID string) ([]LessonProgress, error)
}

// UnitCounter answers the joined counts the reconciler needs.
type UnitCounter interface {
	// CountCourseUnits returns the number of published lessons and quizzes.
	CountCourseUnits(ctx context.Context, courseID string) (lessons, quizzes int, err error)
	CountCompletedLessons(ctx context.Context, userID, courseID string) (int, error)
	CountPassedQuizzes(ctx context.Context, userID, courseID string) (int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// ListUsers filters by role when role is non-empty, newest first.
	ListUsers(ctx context.Context, role Role, limit, offset int) ([]User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	// SetUserRole refuses with InvalidState when it would leave no admin.
	SetUserRole(ctx context.Context, id string, role Role) (User, error)
}

type Store interface {
	CourseStore
	LessonStore
	QuizStore
	EnrollmentStore
	GradeStore
	ProgressStore
	UnitCounter
	UserStore
}
