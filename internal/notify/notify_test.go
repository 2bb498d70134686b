package notify_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-coursework/internal/course"
	"github.com/mind-engage/mindengage-coursework/internal/db"
	"github.com/mind-engage/mindengage-coursework/internal/logger"
	"github.com/mind-engage/mindengage-coursework/internal/notify"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []notify.Event
	err  error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
	return r.err
}

func (r *recordingSink) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.seen...)
}

func TestQueue_FansOutAndDrainsOnClose(t *testing.T) {
	failing := &recordingSink{err: errors.New("smtp down")}
	ok := &recordingSink{}
	q := notify.NewQueue(logger.Nop(), notify.QueueOptions{Workers: 3, Buffer: 50}, failing, ok)

	for i := 0; i < 20; i++ {
		q.Publish(context.Background(), notify.Event{Type: notify.EventQuizPassed, UserID: "u1"})
	}
	require.NoError(t, q.Close())

	assert.Len(t, ok.events(), 20)
	assert.Len(t, failing.events(), 20)
	for _, ev := range ok.events() {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}

	// publishing after close is dropped, not a panic
	q.Publish(context.Background(), notify.NewEvent(notify.EventQuizFailed, "u1", "", nil))
	assert.Len(t, ok.events(), 20)
}

type blockingSink struct{ release chan struct{} }

func (b *blockingSink) Name() string { return "blocking" }

func (b *blockingSink) Deliver(context.Context, notify.Event) error {
	<-b.release
	return nil
}

func TestQueue_PublishNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	q := notify.NewQueue(logger.Nop(), notify.QueueOptions{Workers: 1, Buffer: 1}, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Publish(context.Background(), notify.NewEvent(notify.EventEnrolled, "u", "c", nil))
		}
		close(done)
	}()
	<-done
	close(sink.release)
	require.NoError(t, q.Close())
}

func TestOutbox_AppendsAndReplays(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, db.SQLiteDSN(filepath.Join(t.TempDir(), "outbox.db")))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ob := notify.NewOutbox(conn, "")
	first := notify.NewEvent(notify.EventCourseCompleted, "u1", "c1", map[string]any{"progress": 100})
	second := notify.NewEvent(notify.EventCertificateEligible, "u1", "c1", nil)
	require.NoError(t, ob.Deliver(ctx, first))
	require.NoError(t, ob.Deliver(ctx, second))

	all, err := ob.Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, notify.EventCourseCompleted, all[0].Type)
	assert.Equal(t, first.ID, all[0].Key)
	assert.Equal(t, "local", all[0].SiteID)
	assert.Contains(t, all[0].DataJSON, `"progress":100`)

	rest, err := ob.Since(ctx, all[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, second.ID, rest[0].Key)
}

func TestMailer_SendsCompletionMail(t *testing.T) {
	ctx := context.Background()
	st := course.NewInMemoryStore()
	u, err := st.CreateUser(ctx, course.User{Email: "Ada@Example.com", Name: "Ada", Role: course.RoleStudent})
	require.NoError(t, err)
	c, err := st.CreateCourse(ctx, course.Course{Title: "Intro to Go", InstructorID: "i", MaxStudents: 5})
	require.NoError(t, err)

	var sent []*sgmail.SGMailV3
	m := notify.NewMailer("key", "noreply@example.com", "LMS", st, st,
		notify.WithSendFunc(func(_ context.Context, msg *sgmail.SGMailV3) (int, error) {
			sent = append(sent, msg)
			return 202, nil
		}))

	require.NoError(t, m.Deliver(ctx, notify.NewEvent(notify.EventCourseCompleted, u.ID, c.ID, nil)))
	require.NoError(t, m.Deliver(ctx, notify.NewEvent(notify.EventQuizPassed, u.ID, c.ID, nil)))
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Personalizations, 1)
	assert.Equal(t, "Course completed: Intro to Go", sent[0].Personalizations[0].Subject)
	assert.Equal(t, "ada@example.com", sent[0].Personalizations[0].To[0].Address)
}

func TestMailer_ProviderErrorIsReported(t *testing.T) {
	ctx := context.Background()
	st := course.NewInMemoryStore()
	u, err := st.CreateUser(ctx, course.User{Email: "b@example.com", Name: "B", Role: course.RoleStudent})
	require.NoError(t, err)

	m := notify.NewMailer("key", "noreply@example.com", "LMS", st, st,
		notify.WithSendFunc(func(context.Context, *sgmail.SGMailV3) (int, error) { return 401, nil }))
	err = m.Deliver(ctx, notify.NewEvent(notify.EventCertificateEligible, u.ID, "missing-course", nil))
	require.Error(t, err)

	err = m.Deliver(ctx, notify.NewEvent(notify.EventCertificateEligible, "nobody", "c", nil))
	require.Error(t, err)
}

func TestRedisPublisher_RequiresClient(t *testing.T) {
	var p *notify.RedisPublisher
	assert.Error(t, p.Deliver(context.Background(), notify.NewEvent(notify.EventEnrolled, "u", "c", nil)))
	assert.NoError(t, p.Close())
}
