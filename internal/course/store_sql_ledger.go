package course

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ---- enrollments ----

const enrollmentCols = `id,user_id,course_id,progress,manual_progress,status,payment_status,payment_amount,enrolled_at,completed_at,last_accessed_at,progress_stale,version`

func scanEnrollment(sc scanner) (Enrollment, error) {
	var e Enrollment
	var manual, completed sql.NullInt64
	var enrolled, accessed int64
	var stale int
	if err := sc.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Progress, &manual, &e.Status, &e.PaymentStatus,
		&e.PaymentAmount, &enrolled, &completed, &accessed, &stale, &e.Version); err != nil {
		return Enrollment{}, err
	}
	e.ManualProgress = fromNullInt(manual)
	e.CompletedAt = fromNullMS(completed)
	e.EnrolledAt, e.LastAccessedAt = fromMS(enrolled), fromMS(accessed)
	e.ProgressStale = stale != 0
	return e, nil
}

func (s *SQLStore) queryEnrollments(ctx context.Context, query string, args ...any) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, NotFound("enrollment")
	}
	return e, err
}

func (s *SQLStore) FindEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx, `SELECT `+enrollmentCols+` FROM enrollments
		WHERE user_id=$1 AND course_id=$2`, userID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, NotFound("enrollment")
	}
	return e, err
}

func (s *SQLStore) SaveEnrollment(ctx context.Context, e Enrollment, expectedVersion int64) (Enrollment, error) {
	next := expectedVersion + 1
	if expectedVersion == 0 {
		if e.ID == "" {
			e.ID = newID()
		}
		_, err := s.db.ExecContext(ctx, `INSERT INTO enrollments (`+enrollmentCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			e.ID, e.UserID, e.CourseID, e.Progress, nullInt(e.ManualProgress), string(e.Status),
			string(e.PaymentStatus), e.PaymentAmount, ms(e.EnrolledAt), nullMS(e.CompletedAt),
			ms(e.LastAccessedAt), b2i(e.ProgressStale), next)
		if isUniqueViolation(err) {
			return Enrollment{}, ErrConflict
		}
		if err != nil {
			return Enrollment{}, err
		}
	} else {
		res, err := s.db.ExecContext(ctx, `UPDATE enrollments SET progress=$1, manual_progress=$2, status=$3,
			payment_status=$4, payment_amount=$5, completed_at=$6, last_accessed_at=$7, progress_stale=$8, version=$9
			WHERE id=$10 AND version=$11`,
			e.Progress, nullInt(e.ManualProgress), string(e.Status), string(e.PaymentStatus), e.PaymentAmount,
			nullMS(e.CompletedAt), ms(e.LastAccessedAt), b2i(e.ProgressStale), next, e.ID, expectedVersion)
		if err != nil {
			return Enrollment{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Enrollment{}, ErrConflict
		}
	}
	e.Version = next
	return e, nil
}

func (s *SQLStore) ListEnrollmentsByUser(ctx context.Context, userID string) ([]Enrollment, error) {
	return s.queryEnrollments(ctx, `SELECT `+enrollmentCols+` FROM enrollments
		WHERE user_id=$1 ORDER BY enrolled_at DESC, id`, userID)
}

func (s *SQLStore) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	return s.queryEnrollments(ctx, `SELECT `+enrollmentCols+` FROM enrollments
		WHERE course_id=$1 ORDER BY enrolled_at DESC, id`, courseID)
}

func (s *SQLStore) ListStaleEnrollments(ctx context.Context, limit int) ([]Enrollment, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.queryEnrollments(ctx, `SELECT `+enrollmentCols+` FROM enrollments
		WHERE progress_stale=1 ORDER BY enrolled_at DESC, id LIMIT $1`, limit)
}

func (s *SQLStore) MarkProgressStale(ctx context.Context, userID, courseID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE enrollments SET progress_stale=1, version=version+1
		WHERE user_id=$1 AND course_id=$2 AND progress_stale=0`, userID, courseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.FindEnrollment(ctx, userID, courseID)
	return err
}

// ---- grades ----

const gradeCols = `id,user_id,quiz_id,best_score,best_percentage,total_attempts,status,first_attempt_at,last_attempt_at,version`

func scanGrade(sc scanner) (Grade, error) {
	var g Grade
	var first, last int64
	if err := sc.Scan(&g.ID, &g.UserID, &g.QuizID, &g.BestScore, &g.BestPercentage, &g.TotalAttempts,
		&g.Status, &first, &last, &g.Version); err != nil {
		return Grade{}, err
	}
	g.FirstAttemptAt, g.LastAttemptAt = fromMS(first), fromMS(last)
	return g, nil
}

// loadAttempts fills in the attempt history of each grade. Rows from the
// grade query must already be closed.
func (s *SQLStore) loadAttempts(ctx context.Context, grades []Grade) error {
	for i := range grades {
		rows, err := s.db.QueryContext(ctx, `SELECT seq,score,max_score,percentage,answers_json,time_spent,
			submitted_at,ip_address,user_agent FROM grade_attempts WHERE grade_id=$1 ORDER BY seq`, grades[i].ID)
		if err != nil {
			return err
		}
		atts := []Attempt{}
		for rows.Next() {
			var a Attempt
			var answers string
			var submitted int64
			if err := rows.Scan(&a.Seq, &a.Score, &a.MaxScore, &a.Percentage, &answers, &a.TimeSpent,
				&submitted, &a.IPAddress, &a.UserAgent); err != nil {
				rows.Close()
				return err
			}
			a.SubmittedAt = fromMS(submitted)
			if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
				rows.Close()
				return err
			}
			atts = append(atts, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		grades[i].Attempts = atts
	}
	return nil
}

func (s *SQLStore) queryGrades(ctx context.Context, query string, args ...any) ([]Grade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := []Grade{}
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadAttempts(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) GetGrade(ctx context.Context, userID, quizID string) (Grade, error) {
	gs, err := s.queryGrades(ctx, `SELECT `+gradeCols+` FROM grades WHERE user_id=$1 AND quiz_id=$2`, userID, quizID)
	if err != nil {
		return Grade{}, err
	}
	if len(gs) == 0 {
		return Grade{}, NotFound("grade")
	}
	return gs[0], nil
}

func (s *SQLStore) AppendAttempt(ctx context.Context, g Grade, a Attempt, expectedVersion int64) (Grade, error) {
	answers := a.Answers
	if answers == nil {
		answers = []AttemptAnswer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return Grade{}, err
	}
	next := expectedVersion + 1
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if expectedVersion == 0 {
			if g.ID == "" {
				g.ID = newID()
			}
			res, err := tx.ExecContext(ctx, `INSERT INTO grades (`+gradeCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (user_id, quiz_id) DO NOTHING`,
				g.ID, g.UserID, g.QuizID, g.BestScore, g.BestPercentage, g.TotalAttempts, string(g.Status),
				ms(g.FirstAttemptAt), ms(g.LastAttemptAt), next)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrConflict
			}
		} else {
			res, err := tx.ExecContext(ctx, `UPDATE grades SET best_score=$1, best_percentage=$2, total_attempts=$3,
				status=$4, first_attempt_at=$5, last_attempt_at=$6, version=$7 WHERE id=$8 AND version=$9`,
				g.BestScore, g.BestPercentage, g.TotalAttempts, string(g.Status), ms(g.FirstAttemptAt),
				ms(g.LastAttemptAt), next, g.ID, expectedVersion)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrConflict
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO grade_attempts (grade_id,seq,score,max_score,percentage,
			answers_json,time_spent,submitted_at,ip_address,user_agent) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			g.ID, a.Seq, a.Score, a.MaxScore, a.Percentage, string(answersJSON), a.TimeSpent, ms(a.SubmittedAt),
			a.IPAddress, a.UserAgent)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return Grade{}, err
	}
	return s.GetGrade(ctx, g.UserID, g.QuizID)
}

func (s *SQLStore) ListGradesByQuiz(ctx context.Context, quizID string) ([]Grade, error) {
	return s.queryGrades(ctx, `SELECT `+gradeCols+` FROM grades WHERE quiz_id=$1 ORDER BY first_attempt_at, id`, quizID)
}

func (s *SQLStore) ListGradesByUser(ctx context.Context, userID string) ([]Grade, error) {
	return s.queryGrades(ctx, `SELECT `+gradeCols+` FROM grades WHERE user_id=$1 ORDER BY first_attempt_at, id`, userID)
}

// ---- lesson progress ----

const progressCols = `id,user_id,lesson_id,course_id,status,progress,time_spent,notes,started_at,completed_at,last_accessed_at`

func scanProgress(sc scanner) (LessonProgress, error) {
	var p LessonProgress
	var started, accessed int64
	var completed sql.NullInt64
	if err := sc.Scan(&p.ID, &p.UserID, &p.LessonID, &p.CourseID, &p.Status, &p.Progress, &p.TimeSpent,
		&p.Notes, &started, &completed, &accessed); err != nil {
		return LessonProgress{}, err
	}
	p.StartedAt, p.LastAccessedAt = fromMS(started), fromMS(accessed)
	p.CompletedAt = fromNullMS(completed)
	return p, nil
}

func (s *SQLStore) GetLessonProgress(ctx context.Context, userID, lessonID string) (LessonProgress, error) {
	p, err := scanProgress(s.db.QueryRowContext(ctx, `SELECT `+progressCols+` FROM lesson_progress
		WHERE user_id=$1 AND lesson_id=$2`, userID, lessonID))
	if errors.Is(err, sql.ErrNoRows) {
		return LessonProgress{}, NotFound("lesson progress")
	}
	return p, err
}

// UpsertLessonProgress applies the MergeLessonProgress rules in a single
// statement so concurrent updates for the same lesson never lose time spent
// or move progress backwards.
func (s *SQLStore) UpsertLessonProgress(ctx context.Context, p LessonProgress) (LessonProgress, error) {
	var courseID string
	err := s.db.QueryRowContext(ctx, `SELECT course_id FROM lessons WHERE id=$1`, p.LessonID).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return LessonProgress{}, NotFound("lesson")
	}
	if err != nil {
		return LessonProgress{}, err
	}
	if p.ID == "" {
		p.ID = newID()
	}
	now := s.now()
	progress := clamp(p.Progress)
	var completedAt *time.Time
	if progress >= 100 {
		completedAt = &now
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO lesson_progress (`+progressCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
		  progress = CASE WHEN excluded.progress > lesson_progress.progress THEN excluded.progress ELSE lesson_progress.progress END,
		  time_spent = lesson_progress.time_spent + excluded.time_spent,
		  notes = CASE WHEN excluded.notes <> '' THEN excluded.notes ELSE lesson_progress.notes END,
		  status = CASE
		    WHEN excluded.progress >= 100 OR lesson_progress.progress >= 100 THEN 'completed'
		    WHEN excluded.progress > 0 OR lesson_progress.progress > 0 THEN 'in-progress'
		    ELSE 'not-started' END,
		  completed_at = CASE
		    WHEN lesson_progress.completed_at IS NOT NULL THEN lesson_progress.completed_at
		    WHEN excluded.progress >= 100 THEN excluded.last_accessed_at
		    ELSE NULL END,
		  last_accessed_at = excluded.last_accessed_at`,
		p.ID, p.UserID, p.LessonID, courseID, string(ProgressStatusFor(progress)), progress, max(p.TimeSpent, 0),
		p.Notes, ms(now), nullMS(completedAt), ms(now))
	if err != nil {
		return LessonProgress{}, err
	}
	return s.GetLessonProgress(ctx, p.UserID, p.LessonID)
}

func (s *SQLStore) ListLessonProgress(ctx context.Context, userID, courseID string) ([]LessonProgress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lp.id,lp.user_id,lp.lesson_id,lp.course_id,lp.status,lp.progress,
		lp.time_spent,lp.notes,lp.started_at,lp.completed_at,lp.last_accessed_at
		FROM lesson_progress lp JOIN lessons l ON l.id=lp.lesson_id
		WHERE lp.user_id=$1 AND l.course_id=$2 ORDER BY l.ord`, userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LessonProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- joined counts ----

func (s *SQLStore) CountCourseUnits(ctx context.Context, courseID string) (int, int, error) {
	var lessons, quizzes int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lessons WHERE course_id=$1 AND published=1`,
		courseID).Scan(&lessons); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quizzes WHERE course_id=$1`,
		courseID).Scan(&quizzes); err != nil {
		return 0, 0, err
	}
	return lessons, quizzes, nil
}

func (s *SQLStore) CountCompletedLessons(ctx context.Context, userID, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lesson_progress lp
		JOIN lessons l ON l.id=lp.lesson_id
		WHERE lp.user_id=$1 AND l.course_id=$2 AND l.published=1 AND lp.status='completed'`,
		userID, courseID).Scan(&n)
	return n, err
}

func (s *SQLStore) CountPassedQuizzes(ctx context.Context, userID, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grades g
		JOIN quizzes q ON q.id=g.quiz_id
		WHERE g.user_id=$1 AND q.course_id=$2 AND g.status='passed'`,
		userID, courseID).Scan(&n)
	return n, err
}
