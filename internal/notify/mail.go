package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mind-engage/mindengage-coursework/internal/course"
)

// SendFunc hands a prepared message to the mail provider and returns the
// HTTP status it answered with.
type SendFunc func(ctx context.Context, m *sgmail.SGMailV3) (int, error)

// Mailer emails learners about completion and certificate eligibility.
// Other events are ignored.
type Mailer struct {
	users   course.UserStore
	courses course.CourseStore
	from    *sgmail.Email
	send    SendFunc
}

type MailerOption func(*Mailer)

func WithSendFunc(f SendFunc) MailerOption { return func(m *Mailer) { m.send = f } }

func NewMailer(apiKey, fromEmail, fromName string, users course.UserStore, courses course.CourseStore, opts ...MailerOption) *Mailer {
	client := sendgrid.NewSendClient(apiKey)
	m := &Mailer{
		users:   users,
		courses: courses,
		from:    sgmail.NewEmail(fromName, fromEmail),
		send: func(ctx context.Context, msg *sgmail.SGMailV3) (int, error) {
			res, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, err
			}
			return res.StatusCode, nil
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mailer) Name() string { return "sendgrid" }

func (m *Mailer) Deliver(ctx context.Context, ev Event) error {
	var subject, body string
	switch ev.Type {
	case EventCourseCompleted:
		subject, body = "Course completed: %s", "Congratulations, you have completed %s."
	case EventCertificateEligible:
		subject, body = "Your certificate for %s", "You are now eligible for a certificate for %s."
	default:
		return nil
	}
	u, err := m.users.GetUser(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	title := ev.CourseID
	if c, err := m.courses.GetCourse(ctx, ev.CourseID); err == nil {
		title = c.Title
	}
	msg := m.prepare(u, fmt.Sprintf(subject, title), fmt.Sprintf(body, title))
	status, err := m.send(ctx, msg)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid answered %d", status)
	}
	return nil
}

func (m *Mailer) prepare(to course.User, subject, text string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail(to.Name, to.Email))

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(sgmail.NewContent("text/plain", text))
	return msg
}
