package course

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLStore implements Store over database/sql. Queries use $n placeholders,
// which both pgx and modernc sqlite accept. Times are unix milliseconds and
// flags are 0/1 integers so one set of statements serves both drivers.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

var _ Store = (*SQLStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMS(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMS(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ---- courses ----

const courseCols = `id,title,description,instructor_id,level,price,published,max_students,current_enrollments,created_at,updated_at`

func scanCourse(sc scanner) (Course, error) {
	var c Course
	var published int
	var created, updated int64
	if err := sc.Scan(&c.ID, &c.Title, &c.Description, &c.InstructorID, &c.Level, &c.Price,
		&published, &c.MaxStudents, &c.CurrentEnrollments, &created, &updated); err != nil {
		return Course{}, err
	}
	c.Published = published != 0
	c.CreatedAt, c.UpdatedAt = fromMS(created), fromMS(updated)
	return c, nil
}

func (s *SQLStore) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `INSERT INTO courses (`+courseCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Title, c.Description, c.InstructorID, c.Level, c.Price, b2i(c.Published),
		c.MaxStudents, c.CurrentEnrollments, ms(now), ms(now))
	if isUniqueViolation(err) {
		return Course{}, Duplicate("course %s already exists", c.ID)
	}
	if err != nil {
		return Course{}, err
	}
	return s.GetCourse(ctx, c.ID)
}

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseCols+` FROM courses WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, NotFound("course")
	}
	return c, err
}

func (s *SQLStore) ListCourses(ctx context.Context, opts CourseListOpts) ([]Course, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.PublishedOnly {
		where = append(where, "published=1")
	}
	if opts.InstructorID != "" {
		where = append(where, "instructor_id="+arg(opts.InstructorID))
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Q)); q != "" {
		where = append(where, "LOWER(title) LIKE "+arg("%"+q+"%"))
	}
	query := `SELECT ` + courseCols + ` FROM courses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	limit := opts.Limit
	if limit <= 0 && opts.Offset > 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += " LIMIT " + arg(limit) + " OFFSET " + arg(max(opts.Offset, 0))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateCourse(ctx context.Context, c Course) (Course, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE courses SET title=$1, description=$2, instructor_id=$3, level=$4,
		price=$5, published=$6, max_students=$7, updated_at=$8 WHERE id=$9`,
		c.Title, c.Description, c.InstructorID, c.Level, c.Price, b2i(c.Published), c.MaxStudents, ms(s.now()), c.ID)
	if err != nil {
		return Course{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, NotFound("course")
	}
	return s.GetCourse(ctx, c.ID)
}

func (s *SQLStore) DeleteCourse(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("course")
		}
		if err != nil {
			return err
		}
		var inUse int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments
			WHERE course_id=$1 AND status IN ('active','completed')`, id).Scan(&inUse); err != nil {
			return err
		}
		if inUse > 0 {
			return CourseInUse()
		}
		// explicit so the cascade holds even without foreign_keys enabled
		stmts := []string{
			`DELETE FROM lesson_progress WHERE lesson_id IN (SELECT id FROM lessons WHERE course_id=$1)`,
			`DELETE FROM grade_attempts WHERE grade_id IN (SELECT g.id FROM grades g JOIN quizzes q ON q.id=g.quiz_id WHERE q.course_id=$1)`,
			`DELETE FROM grades WHERE quiz_id IN (SELECT id FROM quizzes WHERE course_id=$1)`,
			`DELETE FROM questions WHERE quiz_id IN (SELECT id FROM quizzes WHERE course_id=$1)`,
			`DELETE FROM quizzes WHERE course_id=$1`,
			`DELETE FROM lessons WHERE course_id=$1`,
			`DELETE FROM enrollments WHERE course_id=$1`,
			`DELETE FROM courses WHERE id=$1`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) AdjustEnrollmentCount(ctx context.Context, courseID string, delta int) (Course, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE courses SET
		current_enrollments = CASE WHEN current_enrollments + $1 < 0 THEN 0 ELSE current_enrollments + $1 END,
		updated_at=$2 WHERE id=$3`, delta, ms(s.now()), courseID)
	if err != nil {
		return Course{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, NotFound("course")
	}
	return s.GetCourse(ctx, courseID)
}

// ---- lessons ----

const lessonCols = `id,course_id,title,description,content,video_url,ord,published,estimated_minutes,resources_json,created_at,updated_at`

func scanLesson(sc scanner) (Lesson, error) {
	var l Lesson
	var published int
	var resJSON string
	var created, updated int64
	if err := sc.Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.Content, &l.VideoURL, &l.Order,
		&published, &l.EstimatedMinutes, &resJSON, &created, &updated); err != nil {
		return Lesson{}, err
	}
	l.Published = published != 0
	l.CreatedAt, l.UpdatedAt = fromMS(created), fromMS(updated)
	if resJSON != "" {
		if err := json.Unmarshal([]byte(resJSON), &l.Resources); err != nil {
			return Lesson{}, err
		}
	}
	return l, nil
}

func marshalResources(rs []Resource) (string, error) {
	if rs == nil {
		rs = []Resource{}
	}
	b, err := json.Marshal(rs)
	return string(b), err
}

func (s *SQLStore) CreateLesson(ctx context.Context, l Lesson) (Lesson, error) {
	resJSON, err := marshalResources(l.Resources)
	if err != nil {
		return Lesson{}, err
	}
	if l.ID == "" {
		l.ID = newID()
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, l.CourseID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("course")
		}
		if err != nil {
			return err
		}
		if l.Order == 0 {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ord),0)+1 FROM lessons WHERE course_id=$1`,
				l.CourseID).Scan(&l.Order); err != nil {
				return err
			}
		}
		now := ms(s.now())
		_, err = tx.ExecContext(ctx, `INSERT INTO lessons (`+lessonCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			l.ID, l.CourseID, l.Title, l.Description, l.Content, l.VideoURL, l.Order, b2i(l.Published),
			l.EstimatedMinutes, resJSON, now, now)
		if isUniqueViolation(err) {
			return Validation("lesson order %d already used in this course", l.Order)
		}
		return err
	})
	if err != nil {
		return Lesson{}, err
	}
	return s.GetLesson(ctx, l.ID)
}

func (s *SQLStore) GetLesson(ctx context.Context, id string) (Lesson, error) {
	l, err := scanLesson(s.db.QueryRowContext(ctx, `SELECT `+lessonCols+` FROM lessons WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Lesson{}, NotFound("lesson")
	}
	return l, err
}

func (s *SQLStore) ListLessons(ctx context.Context, courseID string, publishedOnly bool) ([]Lesson, error) {
	query := `SELECT ` + lessonCols + ` FROM lessons WHERE course_id=$1`
	if publishedOnly {
		query += ` AND published=1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY ord`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateLesson(ctx context.Context, l Lesson) (Lesson, error) {
	old, err := s.GetLesson(ctx, l.ID)
	if err != nil {
		return Lesson{}, err
	}
	if l.Order <= 0 {
		l.Order = old.Order
	}
	resJSON, err := marshalResources(l.Resources)
	if err != nil {
		return Lesson{}, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE lessons SET title=$1, description=$2, content=$3, video_url=$4, ord=$5,
		published=$6, estimated_minutes=$7, resources_json=$8, updated_at=$9 WHERE id=$10`,
		l.Title, l.Description, l.Content, l.VideoURL, l.Order, b2i(l.Published), l.EstimatedMinutes,
		resJSON, ms(s.now()), l.ID)
	if isUniqueViolation(err) {
		return Lesson{}, Validation("lesson order %d already used in this course", l.Order)
	}
	if err != nil {
		return Lesson{}, err
	}
	return s.GetLesson(ctx, l.ID)
}

func (s *SQLStore) DeleteLesson(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM lesson_progress WHERE lesson_id=$1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return NotFound("lesson")
		}
		return nil
	})
}

func (s *SQLStore) ReorderLessons(ctx context.Context, courseID string, lessonIDs []string) ([]Lesson, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM lessons WHERE course_id=$1`, courseID)
		if err != nil {
			return err
		}
		owned := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			owned[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if err := checkReorder(lessonIDs, len(owned), func(id string) bool { return owned[id] }); err != nil {
			return err
		}
		now := ms(s.now())
		// park every order on its negation first so the unique (course_id, ord)
		// index never sees two lessons on the same slot mid-update
		if _, err := tx.ExecContext(ctx, `UPDATE lessons SET ord = -ord WHERE course_id=$1`, courseID); err != nil {
			return err
		}
		for i, id := range lessonIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE lessons SET ord=$1, updated_at=$2 WHERE id=$3`, i+1, now, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListLessons(ctx, courseID, false)
}

// ---- quizzes ----

const quizCols = `id,course_id,title,description,time_limit_min,passing_score,max_attempts,show_correct_answers,shuffle_questions,allow_review,created_at,updated_at`

func scanQuiz(sc scanner) (Quiz, error) {
	var q Quiz
	var show, shuffle, review int
	var created, updated int64
	if err := sc.Scan(&q.ID, &q.CourseID, &q.Title, &q.Description, &q.TimeLimitMin, &q.PassingScore,
		&q.MaxAttempts, &show, &shuffle, &review, &created, &updated); err != nil {
		return Quiz{}, err
	}
	q.ShowCorrectAnswers, q.ShuffleQuestions, q.AllowReview = show != 0, shuffle != 0, review != 0
	q.CreatedAt, q.UpdatedAt = fromMS(created), fromMS(updated)
	return q, nil
}

const questionCols = `id,quiz_id,position,text,typ,options_json,correct_answer,points,explanation,difficulty`

func scanQuestion(sc scanner) (Question, error) {
	var q Question
	var optJSON string
	var correct sql.NullInt64
	if err := sc.Scan(&q.ID, &q.QuizID, &q.Order, &q.Text, &q.Type, &optJSON, &correct, &q.Points,
		&q.Explanation, &q.Difficulty); err != nil {
		return Question{}, err
	}
	q.CorrectAnswer = fromNullInt(correct)
	if err := json.Unmarshal([]byte(optJSON), &q.Options); err != nil {
		return Question{}, err
	}
	return q, nil
}

func insertQuestion(ctx context.Context, tx querier, q Question) error {
	opts := q.Options
	if opts == nil {
		opts = []Option{}
	}
	optJSON, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		q.ID, q.QuizID, q.Order, q.Text, string(q.Type), string(optJSON), nullInt(q.CorrectAnswer), q.Points,
		q.Explanation, q.Difficulty)
	return err
}

func (s *SQLStore) CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, []Question, error) {
	if q.ID == "" {
		q.ID = newID()
	}
	out := make([]Question, 0, len(questions))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id=$1`, q.CourseID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("course")
		}
		if err != nil {
			return err
		}
		now := ms(s.now())
		if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes (`+quizCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			q.ID, q.CourseID, q.Title, q.Description, q.TimeLimitMin, q.PassingScore, q.MaxAttempts,
			b2i(q.ShowCorrectAnswers), b2i(q.ShuffleQuestions), b2i(q.AllowReview), now, now); err != nil {
			return err
		}
		for i, qq := range questions {
			if qq.ID == "" {
				qq.ID = newID()
			}
			qq.QuizID = q.ID
			qq.Order = i + 1
			if err := insertQuestion(ctx, tx, qq); err != nil {
				return err
			}
			out = append(out, qq)
		}
		return nil
	})
	if err != nil {
		return Quiz{}, nil, err
	}
	created, err := s.GetQuiz(ctx, q.ID)
	return created, out, err
}

func (s *SQLStore) questionIDs(ctx context.Context, quizID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM questions WHERE quiz_id=$1 ORDER BY position`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, NotFound("quiz")
	}
	if err != nil {
		return Quiz{}, err
	}
	q.QuestionIDs, err = s.questionIDs(ctx, id)
	return q, err
}

func (s *SQLStore) GetQuizWithQuestions(ctx context.Context, id string) (Quiz, []Question, error) {
	q, err := s.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionCols+` FROM questions WHERE quiz_id=$1 ORDER BY position`, id)
	if err != nil {
		return Quiz{}, nil, err
	}
	defer rows.Close()
	qs := []Question{}
	for rows.Next() {
		qq, err := scanQuestion(rows)
		if err != nil {
			return Quiz{}, nil, err
		}
		qs = append(qs, qq)
	}
	return q, qs, rows.Err()
}

func (s *SQLStore) ListQuizzes(ctx context.Context, courseID string) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE course_id=$1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, err
	}
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].QuestionIDs, err = s.questionIDs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) AddQuestion(ctx context.Context, quizID string, q Question) (Question, error) {
	if q.ID == "" {
		q.ID = newID()
	}
	q.QuizID = quizID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id=$1`, quizID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("quiz")
		}
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),0)+1 FROM questions WHERE quiz_id=$1`,
			quizID).Scan(&q.Order); err != nil {
			return err
		}
		if err := insertQuestion(ctx, tx, q); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE quizzes SET updated_at=$1 WHERE id=$2`, ms(s.now()), quizID)
		return err
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET title=$1, description=$2, time_limit_min=$3,
		passing_score=$4, max_attempts=$5, show_correct_answers=$6, shuffle_questions=$7, allow_review=$8,
		updated_at=$9 WHERE id=$10`,
		q.Title, q.Description, q.TimeLimitMin, q.PassingScore, q.MaxAttempts,
		b2i(q.ShowCorrectAnswers), b2i(q.ShuffleQuestions), b2i(q.AllowReview), ms(s.now()), q.ID)
	if err != nil {
		return Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, NotFound("quiz")
	}
	return s.GetQuiz(ctx, q.ID)
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, NotFound("question")
	}
	return q, err
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) (Question, error) {
	opts := q.Options
	if opts == nil {
		opts = []Option{}
	}
	optJSON, err := json.Marshal(opts)
	if err != nil {
		return Question{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT quiz_id, position FROM questions WHERE id=$1`, q.ID).
			Scan(&q.QuizID, &q.Order)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("question")
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET text=$1, typ=$2, options_json=$3, correct_answer=$4,
			points=$5, explanation=$6, difficulty=$7 WHERE id=$8`,
			q.Text, string(q.Type), string(optJSON), nullInt(q.CorrectAnswer), q.Points,
			q.Explanation, q.Difficulty, q.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE quizzes SET updated_at=$1 WHERE id=$2`, ms(s.now()), q.QuizID)
		return err
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var quizID string
		var pos int
		err := tx.QueryRowContext(ctx, `SELECT quiz_id, position FROM questions WHERE id=$1`, id).Scan(&quizID, &pos)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("question")
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET position=position-1 WHERE quiz_id=$1 AND position>$2`,
			quizID, pos); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE quizzes SET updated_at=$1 WHERE id=$2`, ms(s.now()), quizID)
		return err
	})
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM grade_attempts WHERE grade_id IN (SELECT id FROM grades WHERE quiz_id=$1)`,
			`DELETE FROM grades WHERE quiz_id=$1`,
			`DELETE FROM questions WHERE quiz_id=$1`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return NotFound("quiz")
		}
		return nil
	})
}

// ---- users ----

const userCols = `id,email,name,role,password_hash,created_at`

func scanUser(sc scanner) (User, error) {
	var u User
	var created int64
	if err := sc.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &created); err != nil {
		return User{}, err
	}
	u.CreatedAt = fromMS(created)
	return u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, ms(u.CreatedAt))
	if isUniqueViolation(err) {
		return User{}, Duplicate("email already registered")
	}
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, NotFound("user")
	}
	return u, err
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, NotFound("user")
	}
	return u, err
}

func (s *SQLStore) ListUsers(ctx context.Context, role Role, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	q := `SELECT ` + userCols + ` FROM users`
	args := []any{}
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, string(role))
	}
	q += ` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, max(offset, 0))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("user")
	}
	return nil
}

func (s *SQLStore) SetUserRole(ctx context.Context, id string, role Role) (User, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("user")
		}
		if err != nil {
			return err
		}
		if u.Role == RoleAdmin && role != RoleAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role='admin'`).Scan(&admins); err != nil {
				return err
			}
			if admins <= 1 {
				return InvalidState("cannot demote the last admin")
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, string(role), id)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, id)
}
