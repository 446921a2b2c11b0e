package notification_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

// failingMailService always errors; outbox retry tests use it.
type failingMailService struct{ calls int }

func (svc *failingMailService) Send(*core.EmailMessage) error {
	svc.calls++
	return errors.New("provider unavailable")
}

type notifFixture struct {
	conf *core.Config
	repo notification.Repository
	svc  *notification.Service
	mock interface{ SentMessages() []core.EmailMessage }
	usr  user.User
}

func newNotifFixture(t *testing.T, mailSvc core.EmailService) *notifFixture {
	t.Helper()

	conf := testutil.NewConfig()
	conf.SendgridAPIKey = "test-key" // pretend a provider is configured
	logger := &logsvc.TestLogger{}
	core.ParseEmailTemplates(conf, logger)

	d := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(d)
	notifRepo := inmemdb.NewNotificationRepository(d)

	f := &notifFixture{conf: conf, repo: notifRepo}
	if mailSvc == nil {
		mock := emailsvc.NewConsoleServiceMock(conf)
		f.mock = mock
		mailSvc = mock
	}
	f.svc = notification.NewService(nil, notifRepo, usrRepo, mailSvc, logger, conf)
	f.usr = testutil.CreateUser(t, usrRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	return f
}

func TestService_EnqueueAndProcess(t *testing.T) {
	f := newNotifFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Enqueue(ctx, f.usr.ID, notification.Welcome{})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, n.Status)
	assert.Equal(t, f.usr.Email, n.Email)
	assert.Equal(t, "Welcome to AI Masterclass!", n.Subject)

	outbox := notification.NewOutbox(f.svc)
	delivered, err := outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.False(t, n.SentAt.IsZero())
	assert.Equal(t, 1, n.Attempts)

	msgs := f.mock.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, f.usr.Email, msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "Jane")

	// queue is now empty
	delivered, err = outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestService_Enqueue_unknownUser(t *testing.T) {
	f := newNotifFixture(t, nil)

	_, err := f.svc.Enqueue(context.Background(), "a9b55f31-41a5-4f5d-a345-8a7b2b2e12e0", notification.Welcome{})
	require.Error(t, err)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Send_milestoneDedupe(t *testing.T) {
	f := newNotifFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Send(ctx, f.usr, notification.Milestone{Percent: 50})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, n.Status)
	assert.Equal(t, "Halfway there! 🚀", n.Subject)

	_, err = f.svc.Send(ctx, f.usr, notification.Milestone{Percent: 50})
	assert.Equal(t, notification.ErrAlreadySent, errors.Cause(err))

	// a different threshold still goes out
	_, err = f.svc.Send(ctx, f.usr, notification.Milestone{Percent: 75})
	assert.NoError(t, err)
}

func TestService_Send_providerUnconfigured(t *testing.T) {
	f := newNotifFixture(t, nil)
	f.conf.SendgridAPIKey = "" // no provider

	n, err := f.svc.Send(context.Background(), f.usr, notification.Reminder{})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusLogged, n.Status)
	assert.Empty(t, f.mock.SentMessages())
}

func TestOutbox_failuresAreTerminalAfterRetries(t *testing.T) {
	mailSvc := &failingMailService{}
	f := newNotifFixture(t, mailSvc)
	ctx := context.Background()

	n, err := f.svc.Enqueue(ctx, f.usr.ID, notification.Reminder{})
	require.NoError(t, err)

	outbox := notification.NewOutbox(f.svc)

	// first two attempts leave the row pending for a later tick
	for attempt := 1; attempt <= 2; attempt++ {
		delivered, err := outbox.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, delivered)

		n, err = f.svc.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, n.Status)
		assert.Equal(t, attempt, n.Attempts)
	}

	// third failure is terminal
	_, err = outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Equal(t, 3, n.Attempts)
	assert.Equal(t, 3, mailSvc.calls)

	// failed rows are no longer picked up
	delivered, err := outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 3, mailSvc.calls)
}

func TestOutbox_dropsUnrebuildableRows(t *testing.T) {
	f := newNotifFixture(t, nil)
	ctx := context.Background()

	// offers carry a custom message and are always sent inline; a pending
	// one can only come from a bug or manual insert
	n, err := f.repo.CreateNotification(ctx, notification.Notification{
		UserID: f.usr.ID,
		Email:  f.usr.Email,
		Type:   notification.TypeOffer,
		Status: notification.StatusPending,
	})
	require.NoError(t, err)

	outbox := notification.NewOutbox(f.svc)
	delivered, err := outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
}

func TestOutbox_dropsRowsForDeletedUsers(t *testing.T) {
	f := newNotifFixture(t, nil)
	ctx := context.Background()

	n, err := f.repo.CreateNotification(ctx, notification.Notification{
		UserID: "11111111-2222-3333-4444-555555555555",
		Email:  "ghost@test.test",
		Type:   notification.TypeWelcome,
		Status: notification.StatusPending,
	})
	require.NoError(t, err)

	outbox := notification.NewOutbox(f.svc)
	delivered, err := outbox.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, n.Status)
	assert.Empty(t, f.mock.SentMessages())
}

func TestService_tracking(t *testing.T) {
	f := newNotifFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Send(ctx, f.usr, notification.Welcome{})
	require.NoError(t, err)
	require.Equal(t, notification.StatusSent, n.Status)

	require.NoError(t, f.svc.MarkOpened(ctx, n.ID))
	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusOpened, n.Status)
	require.False(t, n.OpenedAt.IsZero())
	openedAt := n.OpenedAt

	// opens are idempotent
	require.NoError(t, f.svc.MarkOpened(ctx, n.ID))
	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, openedAt, n.OpenedAt)

	require.NoError(t, f.svc.MarkClicked(ctx, n.ID))
	n, err = f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusClicked, n.Status)
	assert.False(t, n.ClickedAt.IsZero())

	counts, err := f.svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.Sent) // clicked rows still count as sent
	assert.Equal(t, 1, counts.Opened)
}
