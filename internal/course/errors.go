package course

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound             Kind = "NotFound"
	KindAttemptLimitExceeded Kind = "AttemptLimitExceeded"
	KindAlreadyEnrolled      Kind = "AlreadyEnrolled"
	KindAlreadyCompleted     Kind = "AlreadyCompleted"
	KindCourseFull           Kind = "CourseFull"
	KindCourseUnpublished    Kind = "CourseUnpublished"
	KindValidation           Kind = "ValidationError"
	KindConcurrencyConflict  Kind = "ConcurrencyConflict"
	KindNotEnrolled          Kind = "NotEnrolled"
	KindCourseInUse          Kind = "CourseInUse"
	KindInvalidState         Kind = "InvalidState"
	KindDuplicate            Kind = "Duplicate"
)

// ErrConflict is returned by stores when a conditional write loses a race.
var ErrConflict = errors.New("course: version conflict")

// FieldError points a validation failure at one field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *Error { return newError(KindNotFound, "%s not found", what) }

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func AttemptLimitExceeded(max int) *Error {
	return newError(KindAttemptLimitExceeded, "maximum of %d attempts reached", max)
}

func AlreadyEnrolled() *Error { return newError(KindAlreadyEnrolled, "already enrolled in this course") }

func AlreadyCompleted() *Error { return newError(KindAlreadyCompleted, "course already completed") }

func CourseFull() *Error { return newError(KindCourseFull, "course has reached its enrollment limit") }

func CourseUnpublished() *Error { return newError(KindCourseUnpublished, "course is not published") }

func NotEnrolled() *Error {
	return newError(KindNotEnrolled, "an active enrollment in this course is required")
}

func CourseInUse() *Error {
	return newError(KindCourseInUse, "course has active or completed enrollments")
}

func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

func Duplicate(format string, args ...any) *Error { return newError(KindDuplicate, format, args...) }

func ConcurrencyConflict(err error) *Error {
	return &Error{Kind: KindConcurrencyConflict, Msg: "concurrent update, please retry", Err: err}
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
