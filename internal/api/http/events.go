package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
)

// EventLog is the replayable event history, satisfied by notify.Outbox.
type EventLog interface {
	Since(ctx context.Context, after int64, limit int) ([]notify.LogEntry, error)
}

// GET /events?after=&limit=  outbox entries with seq above after, oldest first
func ListEventsHandler(events EventLog, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after int64
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeError(w, r, log, course.Validation("after must be a non-negative integer"))
				return
			}
			after = n
		}
		out, err := events.Since(r.Context(), after, queryInt(r, "limit", 100, 500))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if out == nil {
			out = []notify.LogEntry{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
