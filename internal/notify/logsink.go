package notify

import (
	"context"

	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

type LogSink struct{ log *logger.Logger }

func NewLogSink(log *logger.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.log.Info("event", "type", ev.Type, "event_id", ev.ID, "user_id", ev.UserID, "course_id", ev.CourseID)
	return nil
}
