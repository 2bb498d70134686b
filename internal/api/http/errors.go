package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

const maxJSONBody = 1 << 20

// Kinds produced by the HTTP layer itself.
const (
	kindForbidden = "Forbidden"
	kindInternal  = "Internal"
)

type errorBody struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Fields  []course.FieldError `json:"fields,omitempty"`
}

func statusFor(k course.Kind) int {
	switch k {
	case course.KindNotFound:
		return http.StatusNotFound
	case course.KindValidation:
		return http.StatusBadRequest
	case course.KindNotEnrolled, course.KindCourseUnpublished:
		return http.StatusForbidden
	case course.KindAttemptLimitExceeded, course.KindAlreadyEnrolled, course.KindAlreadyCompleted,
		course.KindCourseFull, course.KindConcurrencyConflict, course.KindCourseInUse,
		course.KindInvalidState, course.KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its status and the error envelope. Errors without a
// domain kind are logged and reported as a bare internal error.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var de *course.Error
	if !errors.As(err, &de) {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorBody{Kind: kindInternal, Message: "internal error"},
		})
		return
	}
	status := statusFor(de.Kind)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", de.Kind, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"error": errorBody{Kind: string(de.Kind), Message: de.Error(), Fields: de.Fields},
	})
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"error": errorBody{Kind: kindForbidden, Message: "forbidden"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v and runs its validation tags.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return course.Validation("bad json: %v", err)
	}
	return course.Validate(v)
}

func queryInt(r *http.Request, key string, def, maxVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
