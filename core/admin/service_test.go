package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/admin"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

// seededFixture builds a populated store: two users, one finished module
// each plus one in flight, a few raw player events, a pending discount and
// a sent email.
func seededFixture(t *testing.T) (*admin.Service, user.User, user.User) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	d := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(d)
	courseRepo := inmemdb.NewCourseRepository(d)
	courseRepo.SeedModules(testutil.Modules()...)

	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@corp.test", user.TierPaid, user.RoleUser)
	joe := testutil.CreateUser(t, usrRepo, "Joe", "joe@test.test", user.TierFree, user.RoleUser, now.AddDate(0, 0, -30))

	courseSvc := course.NewService(nil, courseRepo, noopNotifier{}, &logsvc.TestLogger{})
	save := func(ev course.WatchEvent) {
		_, err := courseSvc.SaveProgress(ctx, ev)
		require.NoError(t, err)
	}
	save(course.WatchEvent{UserID: jane.ID, ModuleID: "intro-to-ai", EventType: course.EventPlay})
	save(course.WatchEvent{UserID: jane.ID, ModuleID: "intro-to-ai", EventType: course.EventEnded, WatchedSeconds: 700})
	save(course.WatchEvent{UserID: jane.ID, ModuleID: "prompt-engineering", EventType: course.EventPlay})
	save(course.WatchEvent{UserID: jane.ID, ModuleID: "prompt-engineering", EventType: course.EventPause, Position: 95, WatchedSeconds: 90})
	save(course.WatchEvent{UserID: joe.ID, ModuleID: "intro-to-ai", EventType: course.EventPlay})
	save(course.WatchEvent{UserID: joe.ID, ModuleID: "intro-to-ai", EventType: course.EventPause, Position: 92, WatchedSeconds: 90})

	_, err := inmemdb.NewDiscountRepository(d).CreateRequest(ctx, discount.Request{
		Name: "Ada", Email: "ada@corp.test", Company: "Corp", Status: discount.StatusPending,
	})
	require.NoError(t, err)

	_, err = inmemdb.NewNotificationRepository(d).CreateNotification(ctx, notification.Notification{
		UserID: jane.ID, Email: jane.Email, Type: notification.TypeWelcome,
		Status: notification.StatusSent, SentAt: now,
	})
	require.NoError(t, err)

	return admin.NewService(inmemdb.NewAdminRepository(d), &logsvc.TestLogger{}), jane, joe
}

// noopNotifier satisfies the course service without queueing anything.
type noopNotifier struct{}

func (noopNotifier) AlreadySent(context.Context, string, notification.Kind, ...core.DBExecutor) (bool, error) {
	return true, nil
}

func (noopNotifier) Enqueue(context.Context, string, notification.Kind, ...core.DBExecutor) (notification.Notification, error) {
	return notification.Notification{}, nil
}

func TestService_Dashboard(t *testing.T) {
	svc, _, _ := seededFixture(t)

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.NewThisWeek) // joe signed up a month ago
	assert.Equal(t, 3, stats.TotalPlays)
	assert.Equal(t, 1, stats.PendingDiscounts)
	assert.Equal(t, 1, stats.EmailsSentThisMonth)
	// 1 completed row out of 3 progress rows
	assert.InDelta(t, 33.3, stats.CompletionRate, 0.5)
	assert.NotEmpty(t, stats.RecentUsers)
	assert.NotEmpty(t, stats.RecentActivity)
}

func TestService_Users(t *testing.T) {
	svc, jane, _ := seededFixture(t)
	ctx := context.Background()

	rows, total, tiers, err := svc.Users(ctx, "", "all", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, tiers.Free)
	assert.Equal(t, 1, tiers.Paid)

	rows, total, _, err = svc.Users(ctx, "corp", "", 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, jane.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].CompletedModules)
	assert.Equal(t, 16, rows[0].OverallPercent) // 1/6, truncated
	assert.Equal(t, 790, rows[0].WatchTimeSeconds)
	assert.NotNil(t, rows[0].LastWatchedAt)

	_, total, _, err = svc.Users(ctx, "", user.TierPaid, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestService_VideoAnalytics(t *testing.T) {
	svc, _, _ := seededFixture(t)

	stats, err := svc.VideoAnalytics(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 6)

	// intro-to-ai has the most plays and sorts first
	intro := stats[0]
	assert.Equal(t, "intro-to-ai", intro.ModuleID)
	assert.Equal(t, 2, intro.Plays)
	assert.Equal(t, 2, intro.UniqueViewers)
	assert.Equal(t, 1, intro.Completions)
	assert.InDelta(t, 50.0, intro.CompletionRate, 0.01)
	// joe paused at 92s, bucketed to 90
	require.NotEmpty(t, intro.DropOffPoints)
	assert.Equal(t, 90, intro.DropOffPoints[0].PositionSeconds)
}
