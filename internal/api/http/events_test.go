package http_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/notify"
)

func TestListEvents(t *testing.T) {
	s := newServer(t)
	admin := s.seedAdmin(t)
	student, _ := s.register(t, "alan@example.com", "student")

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/events", student, nil).Code)

	rec := s.do(t, http.MethodGet, "/events?after=41&limit=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]notify.LogEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].Seq)
	assert.Equal(t, notify.EventEnrolled, entries[0].Type)
	assert.Equal(t, int64(41), s.events.after)
	assert.Equal(t, 5, s.events.limit)

	rec = s.do(t, http.MethodGet, "/events?after=-1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
