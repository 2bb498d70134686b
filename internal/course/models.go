package course

import "time"

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	FillInBlank    QuestionType = "fill-in-blank"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFree      PaymentStatus = "free"
)

type GradeStatus string

const (
	GradeInProgress GradeStatus = "in-progress"
	GradePassed     GradeStatus = "passed"
	GradeFailed     GradeStatus = "failed"
)

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not-started"
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// Defaults applied when a field is left zero on creation.
const (
	DefaultPassingScore = 60
	DefaultMaxAttempts  = 3
	DefaultPoints       = 1
	DefaultMaxStudents  = 1000
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email" validate:"required,email"`
	Name         string    `json:"name" validate:"required,max=100"`
	Role         Role      `json:"role" validate:"required,oneof=student instructor admin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Course struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title" validate:"required,min=3,max=100"`
	Description        string    `json:"description,omitempty" validate:"max=1000"`
	InstructorID       string    `json:"instructor_id" validate:"required"`
	Level              string    `json:"level,omitempty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price              float64   `json:"price" validate:"gte=0"`
	Published          bool      `json:"published"`
	MaxStudents        int       `json:"max_students" validate:"gte=1"`
	CurrentEnrollments int       `json:"current_enrollments" validate:"gte=0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Full reports whether the soft capacity has been reached.
func (c Course) Full() bool { return c.CurrentEnrollments >= c.MaxStudents }

type Resource struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}

type Lesson struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id" validate:"required"`
	Title            string     `json:"title" validate:"required,max=200"`
	Description      string     `json:"description,omitempty"`
	Content          string     `json:"content,omitempty"`
	VideoURL         string     `json:"video_url,omitempty" validate:"omitempty,url"`
	Order            int        `json:"order" validate:"gte=0"`
	Published        bool       `json:"published"`
	EstimatedMinutes int        `json:"estimated_minutes" validate:"gte=0"`
	Resources        []Resource `json:"resources,omitempty" validate:"dive"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Quiz struct {
	ID                 string    `json:"id"`
	CourseID           string    `json:"course_id" validate:"required"`
	Title              string    `json:"title" validate:"required,min=3,max=100"`
	Description        string    `json:"description,omitempty" validate:"max=500"`
	TimeLimitMin       int       `json:"time_limit_min,omitempty" validate:"gte=0,lte=480"`
	QuestionIDs        []string  `json:"question_ids"`
	PassingScore       int       `json:"passing_score" validate:"gte=0,lte=100"`
	MaxAttempts        int       `json:"max_attempts" validate:"gte=1"`
	ShowCorrectAnswers bool      `json:"show_correct_answers"`
	ShuffleQuestions   bool      `json:"shuffle_questions"`
	AllowReview        bool      `json:"allow_review"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Option struct {
	Text      string `json:"text" validate:"required,max=200"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quiz_id"`
	Text          string       `json:"text" validate:"required,max=1000"`
	Type          QuestionType `json:"type" validate:"required,oneof=multiple-choice true-false fill-in-blank"`
	Options       []Option     `json:"options" validate:"dive"`
	CorrectAnswer *int         `json:"correct_answer,omitempty" validate:"omitempty,gte=0"`
	Points        int          `json:"points" validate:"gte=1"`
	Explanation   string       `json:"explanation,omitempty" validate:"max=500"`
	Difficulty    string       `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Order         int          `json:"order"`
}

// StripAnswers hides answer keys for student-facing views.
func (q Question) StripAnswers() Question {
	out := q
	out.CorrectAnswer = nil
	out.Explanation = ""
	out.Options = make([]Option, len(q.Options))
	for i, o := range q.Options {
		out.Options[i] = Option{Text: o.Text}
	}
	if q.Type == FillInBlank {
		out.Options = nil
	}
	return out
}

type Enrollment struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	CourseID       string           `json:"course_id"`
	Progress       int              `json:"progress"`
	ManualProgress *int             `json:"manual_progress,omitempty"`
	Status         EnrollmentStatus `json:"status"`
	PaymentStatus  PaymentStatus    `json:"payment_status"`
	PaymentAmount  float64          `json:"payment_amount"`
	EnrolledAt     time.Time        `json:"enrolled_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	ProgressStale  bool             `json:"-"`
	Version        int64            `json:"-"`
}

// EffectiveProgress combines the computed progress with an instructor override.
func (e Enrollment) EffectiveProgress() int {
	if e.ManualProgress != nil && *e.ManualProgress > e.Progress {
		return *e.ManualProgress
	}
	return e.Progress
}

type AttemptAnswer struct {
	QuestionID string `json:"question_id"`
	Selected   any    `json:"selected,omitempty"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
}

type Attempt struct {
	Seq         int             `json:"seq"`
	Score       int             `json:"score"`
	MaxScore    int             `json:"max_score"`
	Percentage  int             `json:"percentage"`
	Answers     []AttemptAnswer `json:"answers"`
	TimeSpent   int             `json:"time_spent"`
	SubmittedAt time.Time       `json:"submitted_at"`
	IPAddress   string          `json:"-"`
	UserAgent   string          `json:"-"`
}

type Grade struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	QuizID         string      `json:"quiz_id"`
	Attempts       []Attempt   `json:"attempts"`
	BestScore      int         `json:"best_score"`
	BestPercentage int         `json:"best_percentage"`
	TotalAttempts  int         `json:"total_attempts"`
	Status         GradeStatus `json:"status"`
	FirstAttemptAt time.Time   `json:"first_attempt_at"`
	LastAttemptAt  time.Time   `json:"last_attempt_at"`
	Version        int64       `json:"-"`
}

type LessonProgress struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	LessonID       string         `json:"lesson_id"`
	CourseID       string         `json:"course_id"`
	Status         ProgressStatus `json:"status"`
	Progress       int            `json:"progress"`
	TimeSpent      int            `json:"time_spent"`
	Notes          string         `json:"notes,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
}

// ProgressStatusFor derives the lesson status from a 0-100 progress value.
func ProgressStatusFor(progress int) ProgressStatus {
	switch {
	case progress >= 100:
		return ProgressCompleted
	case progress > 0:
		return ProgressInProgress
	default:
		return ProgressNotStarted
	}
}

// MergeLessonProgress folds an update into the stored record. Progress only
// moves forward, time spent accumulates and a completed lesson stays completed.
// The SQL store implements the same rule inside its upsert.
func MergeLessonProgress(old, upd LessonProgress, now time.Time) LessonProgress {
	out := old
	if out.ID == "" {
		out = upd
		out.Progress = clamp(upd.Progress)
		out.StartedAt = now
		out.TimeSpent = max(upd.TimeSpent, 0)
	} else {
		if p := clamp(upd.Progress); p > out.Progress {
			out.Progress = p
		}
		out.TimeSpent += max(upd.TimeSpent, 0)
		if upd.Notes != "" {
			out.Notes = upd.Notes
		}
	}
	out.Status = ProgressStatusFor(out.Progress)
	if out.Status == ProgressCompleted && out.CompletedAt == nil {
		t := now
		out.CompletedAt = &t
	}
	out.LastAccessedAt = now
	return out
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
