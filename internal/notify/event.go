// Package notify dispatches fire-and-forget domain events to a set of sinks:
// the event_log outbox, a Redis channel, email and the log.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventEnrolled            = "enrollment.created"
	EventDropped             = "enrollment.dropped"
	EventCourseCompleted     = "course.completed"
	EventCertificateEligible = "certificate.eligible"
	EventQuizPassed          = "quiz.passed"
	EventQuizFailed          = "quiz.failed"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	CourseID  string         `json:"course_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewEvent(typ, userID, courseID string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    userID,
		CourseID:  courseID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Publisher accepts events without blocking the caller. Delivery problems
// are never reported back.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
