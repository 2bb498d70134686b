package course

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	courses     map[string]Course
	lessons     map[string]Lesson
	quizzes     map[string]Quiz
	questions   map[string]Question
	enrollments map[string]Enrollment
	grades      map[string]Grade
	progress    map[string]LessonProgress
	users       map[string]User
}

// NewInMemoryStore returns a Store kept in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		now:         time.Now,
		courses:     map[string]Course{},
		lessons:     map[string]Lesson{},
		quizzes:     map[string]Quiz{},
		questions:   map[string]Question{},
		enrollments: map[string]Enrollment{},
		grades:      map[string]Grade{},
		progress:    map[string]LessonProgress{},
		users:       map[string]User{},
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func newID() string { return uuid.NewString() }

// ---- courses ----

func (m *memoryStore) CreateCourse(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if _, ok := m.courses[c.ID]; ok {
		return Course{}, Duplicate("course %s already exists", c.ID)
	}
	now := m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	m.courses[c.ID] = c
	return c, nil
}

func (m *memoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, NotFound("course")
	}
	return c, nil
}

func (m *memoryStore) ListCourses(_ context.Context, opts CourseListOpts) ([]Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	out := []Course{}
	for _, c := range m.courses {
		if opts.PublishedOnly && !c.Published {
			continue
		}
		if opts.InstructorID != "" && c.InstructorID != opts.InstructorID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Title), q) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts.Limit, opts.Offset), nil
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (m *memoryStore) UpdateCourse(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.courses[c.ID]
	if !ok {
		return Course{}, NotFound("course")
	}
	c.CreatedAt = old.CreatedAt
	c.CurrentEnrollments = old.CurrentEnrollments
	c.UpdatedAt = m.now()
	m.courses[c.ID] = c
	return c, nil
}

func (m *memoryStore) DeleteCourse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return NotFound("course")
	}
	for _, e := range m.enrollments {
		if e.CourseID == id && (e.Status == EnrollmentActive || e.Status == EnrollmentCompleted) {
			return CourseInUse()
		}
	}
	for k, e := range m.enrollments {
		if e.CourseID == id {
			delete(m.enrollments, k)
		}
	}
	for k, l := range m.lessons {
		if l.CourseID == id {
			m.deleteLessonLocked(k)
		}
	}
	for k, q := range m.quizzes {
		if q.CourseID == id {
			m.deleteQuizLocked(k)
		}
	}
	delete(m.courses, id)
	return nil
}

func (m *memoryStore) AdjustEnrollmentCount(_ context.Context, courseID string, delta int) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return Course{}, NotFound("course")
	}
	c.CurrentEnrollments = max(c.CurrentEnrollments+delta, 0)
	c.UpdatedAt = m.now()
	m.courses[courseID] = c
	return c, nil
}

// ---- lessons ----

func (m *memoryStore) CreateLesson(_ context.Context, l Lesson) (Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[l.CourseID]; !ok {
		return Lesson{}, NotFound("course")
	}
	maxOrder := 0
	for _, o := range m.lessons {
		if o.CourseID != l.CourseID {
			continue
		}
		if l.Order > 0 && o.Order == l.Order {
			return Lesson{}, Validation("lesson order %d already used in this course", l.Order)
		}
		maxOrder = max(maxOrder, o.Order)
	}
	if l.Order == 0 {
		l.Order = maxOrder + 1
	}
	if l.ID == "" {
		l.ID = newID()
	}
	now := m.now()
	l.CreatedAt, l.UpdatedAt = now, now
	l.Resources = append([]Resource(nil), l.Resources...)
	m.lessons[l.ID] = l
	return l, nil
}

func (m *memoryStore) GetLesson(_ context.Context, id string) (Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return Lesson{}, NotFound("lesson")
	}
	return l, nil
}

func (m *memoryStore) ListLessons(_ context.Context, courseID string, publishedOnly bool) ([]Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Lesson{}
	for _, l := range m.lessons {
		if l.CourseID == courseID && (!publishedOnly || l.Published) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *memoryStore) UpdateLesson(_ context.Context, l Lesson) (Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.lessons[l.ID]
	if !ok {
		return Lesson{}, NotFound("lesson")
	}
	l.CourseID = old.CourseID
	if l.Order <= 0 {
		l.Order = old.Order
	}
	for _, o := range m.lessons {
		if o.ID != l.ID && o.CourseID == l.CourseID && o.Order == l.Order {
			return Lesson{}, Validation("lesson order %d already used in this course", l.Order)
		}
	}
	l.CreatedAt = old.CreatedAt
	l.UpdatedAt = m.now()
	l.Resources = append([]Resource(nil), l.Resources...)
	m.lessons[l.ID] = l
	return l, nil
}

func (m *memoryStore) DeleteLesson(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lessons[id]; !ok {
		return NotFound("lesson")
	}
	m.deleteLessonLocked(id)
	return nil
}

func (m *memoryStore) deleteLessonLocked(id string) {
	for k, p := range m.progress {
		if p.LessonID == id {
			delete(m.progress, k)
		}
	}
	delete(m.lessons, id)
}

func (m *memoryStore) ReorderLessons(_ context.Context, courseID string, lessonIDs []string) ([]Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.lessons {
		if l.CourseID == courseID {
			count++
		}
	}
	if err := checkReorder(lessonIDs, count, func(id string) bool {
		l, ok := m.lessons[id]
		return ok && l.CourseID == courseID
	}); err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]Lesson, 0, len(lessonIDs))
	for i, id := range lessonIDs {
		l := m.lessons[id]
		l.Order = i + 1
		l.UpdatedAt = now
		m.lessons[id] = l
		out = append(out, l)
	}
	return out, nil
}

// checkReorder verifies lessonIDs is a permutation of the course's lessons.
func checkReorder(lessonIDs []string, count int, belongs func(string) bool) error {
	if len(lessonIDs) != count {
		return Validation("reorder must list all %d lessons of the course", count)
	}
	seen := make(map[string]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		if _, dup := seen[id]; dup {
			return Validation("lesson %s listed twice", id)
		}
		seen[id] = struct{}{}
		if !belongs(id) {
			return Validation("lesson %s does not belong to this course", id)
		}
	}
	return nil
}

// ---- quizzes ----

func (m *memoryStore) CreateQuiz(_ context.Context, q Quiz, questions []Question) (Quiz, []Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[q.CourseID]; !ok {
		return Quiz{}, nil, NotFound("course")
	}
	if q.ID == "" {
		q.ID = newID()
	}
	now := m.now()
	q.CreatedAt, q.UpdatedAt = now, now
	q.QuestionIDs = nil
	out := make([]Question, 0, len(questions))
	for i, qq := range questions {
		if qq.ID == "" {
			qq.ID = newID()
		}
		qq.QuizID = q.ID
		qq.Order = i + 1
		qq.Options = append([]Option(nil), qq.Options...)
		m.questions[qq.ID] = qq
		q.QuestionIDs = append(q.QuestionIDs, qq.ID)
		out = append(out, qq)
	}
	m.quizzes[q.ID] = q
	return copyQuiz(q), out, nil
}

func copyQuiz(q Quiz) Quiz {
	q.QuestionIDs = append([]string(nil), q.QuestionIDs...)
	return q
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, NotFound("quiz")
	}
	return copyQuiz(q), nil
}

func (m *memoryStore) GetQuizWithQuestions(_ context.Context, id string) (Quiz, []Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, nil, NotFound("quiz")
	}
	qs := make([]Question, 0, len(q.QuestionIDs))
	for _, qid := range q.QuestionIDs {
		if qq, ok := m.questions[qid]; ok {
			qs = append(qs, qq)
		}
	}
	return copyQuiz(q), qs, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, courseID string) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Quiz{}
	for _, q := range m.quizzes {
		if q.CourseID == courseID {
			out = append(out, copyQuiz(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryStore) AddQuestion(_ context.Context, quizID string, qq Question) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[quizID]
	if !ok {
		return Question{}, NotFound("quiz")
	}
	if qq.ID == "" {
		qq.ID = newID()
	}
	qq.QuizID = quizID
	qq.Order = len(q.QuestionIDs) + 1
	qq.Options = append([]Option(nil), qq.Options...)
	m.questions[qq.ID] = qq
	q.QuestionIDs = append(append([]string(nil), q.QuestionIDs...), qq.ID)
	q.UpdatedAt = m.now()
	m.quizzes[quizID] = q
	return qq, nil
}

func (m *memoryStore) UpdateQuiz(_ context.Context, q Quiz) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.quizzes[q.ID]
	if !ok {
		return Quiz{}, NotFound("quiz")
	}
	q.CourseID = old.CourseID
	q.QuestionIDs = old.QuestionIDs
	q.CreatedAt = old.CreatedAt
	q.UpdatedAt = m.now()
	m.quizzes[q.ID] = q
	return copyQuiz(q), nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, NotFound("question")
	}
	q.Options = append([]Option(nil), q.Options...)
	return q, nil
}

func (m *memoryStore) UpdateQuestion(_ context.Context, qq Question) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.questions[qq.ID]
	if !ok {
		return Question{}, NotFound("question")
	}
	qq.QuizID, qq.Order = old.QuizID, old.Order
	qq.Options = append([]Option(nil), qq.Options...)
	m.questions[qq.ID] = qq
	if q, ok := m.quizzes[qq.QuizID]; ok {
		q.UpdatedAt = m.now()
		m.quizzes[q.ID] = q
	}
	return qq, nil
}

func (m *memoryStore) DeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qq, ok := m.questions[id]
	if !ok {
		return NotFound("question")
	}
	delete(m.questions, id)
	q, ok := m.quizzes[qq.QuizID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(q.QuestionIDs))
	for _, qid := range q.QuestionIDs {
		if qid == id {
			continue
		}
		ids = append(ids, qid)
		if other, ok := m.questions[qid]; ok {
			other.Order = len(ids)
			m.questions[qid] = other
		}
	}
	q.QuestionIDs = ids
	q.UpdatedAt = m.now()
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return NotFound("quiz")
	}
	m.deleteQuizLocked(id)
	return nil
}

func (m *memoryStore) deleteQuizLocked(id string) {
	q := m.quizzes[id]
	for _, qid := range q.QuestionIDs {
		delete(m.questions, qid)
	}
	for k, g := range m.grades {
		if g.QuizID == id {
			delete(m.grades, k)
		}
	}
	delete(m.quizzes, id)
}

// ---- enrollments ----

func copyEnrollment(e Enrollment) Enrollment {
	if e.ManualProgress != nil {
		v := *e.ManualProgress
		e.ManualProgress = &v
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		e.CompletedAt = &t
	}
	return e
}

func (m *memoryStore) GetEnrollment(_ context.Context, id string) (Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.enrollments {
		if e.ID == id {
			return copyEnrollment(e), nil
		}
	}
	return Enrollment{}, NotFound("enrollment")
}

func (m *memoryStore) FindEnrollment(_ context.Context, userID, courseID string) (Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[pairKey(userID, courseID)]
	if !ok {
		return Enrollment{}, NotFound("enrollment")
	}
	return copyEnrollment(e), nil
}

func (m *memoryStore) SaveEnrollment(_ context.Context, e Enrollment, expectedVersion int64) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(e.UserID, e.CourseID)
	cur, exists := m.enrollments[key]
	if expectedVersion == 0 {
		if exists {
			return Enrollment{}, ErrConflict
		}
		if e.ID == "" {
			e.ID = newID()
		}
	} else {
		if !exists || cur.Version != expectedVersion || cur.ID != e.ID {
			return Enrollment{}, ErrConflict
		}
	}
	e.Version = expectedVersion + 1
	m.enrollments[key] = copyEnrollment(e)
	return copyEnrollment(e), nil
}

func (m *memoryStore) listEnrollments(match func(Enrollment) bool) []Enrollment {
	out := []Enrollment{}
	for _, e := range m.enrollments {
		if match(e) {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnrolledAt.After(out[j].EnrolledAt)
	})
	return out
}

func (m *memoryStore) ListEnrollmentsByUser(_ context.Context, userID string) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEnrollments(func(e Enrollment) bool { return e.UserID == userID }), nil
}

func (m *memoryStore) ListEnrollmentsByCourse(_ context.Context, courseID string) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEnrollments(func(e Enrollment) bool { return e.CourseID == courseID }), nil
}

func (m *memoryStore) ListStaleEnrollments(_ context.Context, limit int) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.listEnrollments(func(e Enrollment) bool { return e.ProgressStale })
	return paginate(out, limit, 0), nil
}

func (m *memoryStore) MarkProgressStale(_ context.Context, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(userID, courseID)
	e, ok := m.enrollments[key]
	if !ok {
		return NotFound("enrollment")
	}
	if !e.ProgressStale {
		e.ProgressStale = true
		e.Version++
		m.enrollments[key] = e
	}
	return nil
}

// ---- grades ----

func copyGrade(g Grade) Grade {
	atts := make([]Attempt, len(g.Attempts))
	for i, a := range g.Attempts {
		a.Answers = append([]AttemptAnswer(nil), a.Answers...)
		atts[i] = a
	}
	g.Attempts = atts
	return g
}

func (m *memoryStore) GetGrade(_ context.Context, userID, quizID string) (Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grades[pairKey(userID, quizID)]
	if !ok {
		return Grade{}, NotFound("grade")
	}
	return copyGrade(g), nil
}

func (m *memoryStore) AppendAttempt(_ context.Context, g Grade, a Attempt, expectedVersion int64) (Grade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(g.UserID, g.QuizID)
	cur, exists := m.grades[key]
	switch {
	case expectedVersion == 0 && exists:
		return Grade{}, ErrConflict
	case expectedVersion != 0 && (!exists || cur.Version != expectedVersion):
		return Grade{}, ErrConflict
	}
	if expectedVersion == 0 && g.ID == "" {
		g.ID = newID()
	}
	if a.Seq != len(cur.Attempts)+1 {
		return Grade{}, ErrConflict
	}
	g.Attempts = append(copyGrade(cur).Attempts, a)
	g.Version = expectedVersion + 1
	m.grades[key] = copyGrade(g)
	return copyGrade(g), nil
}

func (m *memoryStore) listGrades(match func(Grade) bool) []Grade {
	out := []Grade{}
	for _, g := range m.grades {
		if match(g) {
			out = append(out, copyGrade(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstAttemptAt.Equal(out[j].FirstAttemptAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FirstAttemptAt.Before(out[j].FirstAttemptAt)
	})
	return out
}

func (m *memoryStore) ListGradesByQuiz(_ context.Context, quizID string) ([]Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listGrades(func(g Grade) bool { return g.QuizID == quizID }), nil
}

func (m *memoryStore) ListGradesByUser(_ context.Context, userID string) ([]Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listGrades(func(g Grade) bool { return g.UserID == userID }), nil
}

// ---- lesson progress ----

func (m *memoryStore) GetLessonProgress(_ context.Context, userID, lessonID string) (LessonProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[pairKey(userID, lessonID)]
	if !ok {
		return LessonProgress{}, NotFound("lesson progress")
	}
	return p, nil
}

func (m *memoryStore) UpsertLessonProgress(_ context.Context, p LessonProgress) (LessonProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[p.LessonID]
	if !ok {
		return LessonProgress{}, NotFound("lesson")
	}
	key := pairKey(p.UserID, p.LessonID)
	cur := m.progress[key]
	p.CourseID = l.CourseID
	if cur.ID == "" && p.ID == "" {
		p.ID = newID()
	}
	merged := MergeLessonProgress(cur, p, m.now())
	m.progress[key] = merged
	return merged, nil
}

func (m *memoryStore) ListLessonProgress(_ context.Context, userID, courseID string) ([]LessonProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []LessonProgress{}
	for _, p := range m.progress {
		if p.UserID == userID && p.CourseID == courseID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.lessons[out[i].LessonID].Order < m.lessons[out[j].LessonID].Order
	})
	return out, nil
}

// ---- joined counts ----

func (m *memoryStore) CountCourseUnits(_ context.Context, courseID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lessons, quizzes := 0, 0
	for _, l := range m.lessons {
		if l.CourseID == courseID && l.Published {
			lessons++
		}
	}
	for _, q := range m.quizzes {
		if q.CourseID == courseID {
			quizzes++
		}
	}
	return lessons, quizzes, nil
}

func (m *memoryStore) CountCompletedLessons(_ context.Context, userID, courseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.progress {
		if p.UserID != userID || p.Status != ProgressCompleted {
			continue
		}
		if l, ok := m.lessons[p.LessonID]; ok && l.CourseID == courseID && l.Published {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) CountPassedQuizzes(_ context.Context, userID, courseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, g := range m.grades {
		if g.UserID != userID || g.Status != GradePassed {
			continue
		}
		if q, ok := m.quizzes[g.QuizID]; ok && q.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

// ---- users ----

func (m *memoryStore) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	for _, o := range m.users {
		if o.Email == email {
			return User{}, Duplicate("email already registered")
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = email
	u.CreatedAt = m.now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, NotFound("user")
	}
	return u, nil
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, NotFound("user")
}

func (m *memoryStore) ListUsers(_ context.Context, role Role, limit, offset int) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []User{}
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, offset), nil
}

func (m *memoryStore) SetPasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return NotFound("user")
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memoryStore) SetUserRole(_ context.Context, id string, role Role) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, NotFound("user")
	}
	if u.Role == RoleAdmin && role != RoleAdmin {
		admins := 0
		for _, o := range m.users {
			if o.Role == RoleAdmin {
				admins++
			}
		}
		if admins <= 1 {
			return User{}, InvalidState("cannot demote the last admin")
		}
	}
	u.Role = role
	m.users[id] = u
	return u, nil
}
