package course_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

type courseFixture struct {
	svc       *course.Service
	notifRepo notification.Repository
	usr       user.User
}

func newCourseFixture(t *testing.T, seedModules bool) *courseFixture {
	t.Helper()

	conf := testutil.NewConfig()
	logger := &logsvc.TestLogger{}

	d := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(d)
	notifRepo := inmemdb.NewNotificationRepository(d)
	courseRepo := inmemdb.NewCourseRepository(d)
	if seedModules {
		courseRepo.SeedModules(testutil.Modules()...)
	}

	notifSvc := notification.NewService(nil, notifRepo, usrRepo, emailsvc.NewConsoleServiceMock(conf), logger, conf)
	svc := course.NewService(nil, courseRepo, notifSvc, logger)

	usr := testutil.CreateUser(t, usrRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	return &courseFixture{svc: svc, notifRepo: notifRepo, usr: usr}
}

func (f *courseFixture) milestoneTypes(t *testing.T) []string {
	t.Helper()

	rows, err := f.notifRepo.QueryNotifications(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	var types []string
	for _, n := range rows {
		if n.UserID == f.usr.ID && len(n.Type) > len("milestone_") && n.Type[:len("milestone_")] == "milestone_" {
			types = append(types, n.Type)
		}
	}
	sort.Strings(types)
	return types
}

func (f *courseFixture) completeModule(t *testing.T, slug string) course.ProgressResult {
	t.Helper()

	res, err := f.svc.SaveProgress(context.Background(), course.WatchEvent{
		UserID:    f.usr.ID,
		ModuleID:  slug,
		EventType: course.EventEnded,
		Position:  720,
	})
	require.NoError(t, err)
	return res
}

func TestService_SaveProgress_monotonic(t *testing.T) {
	f := newCourseFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.SaveProgress(ctx, course.WatchEvent{
		UserID:         f.usr.ID,
		ModuleID:       "intro-to-ai",
		WatchedSeconds: 120,
		Position:       130,
		CompletionPct:  18,
	})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Progress.WatchedSeconds)
	assert.Equal(t, float64(130), res.Progress.MaxPosition)
	assert.False(t, res.Progress.Completed)

	// a seek backwards must not regress any counter
	res, err = f.svc.SaveProgress(ctx, course.WatchEvent{
		UserID:         f.usr.ID,
		ModuleID:       "intro-to-ai",
		EventType:      course.EventSeek,
		WatchedSeconds: 60,
		Position:       40,
		CompletionPct:  6,
	})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Progress.WatchedSeconds)
	assert.Equal(t, float64(130), res.Progress.MaxPosition)
	assert.Equal(t, float64(18), res.Progress.CompletionPct)
}

func TestService_SaveProgress_completion(t *testing.T) {
	f := newCourseFixture(t, true)
	ctx := context.Background()

	res := f.completeModule(t, "intro-to-ai")
	require.True(t, res.Progress.Completed)
	require.False(t, res.Progress.CompletedAt.IsZero())
	completedAt := res.Progress.CompletedAt

	// replaying the ended event keeps the original completion time
	res = f.completeModule(t, "intro-to-ai")
	assert.True(t, res.Progress.Completed)
	assert.Equal(t, completedAt, res.Progress.CompletedAt)

	// 100% watched implies completion even without an ended event
	res2, err := f.svc.SaveProgress(ctx, course.WatchEvent{
		UserID:        f.usr.ID,
		ModuleID:      "prompt-engineering",
		CompletionPct: 100,
	})
	require.NoError(t, err)
	assert.True(t, res2.Progress.Completed)
}

func TestService_SaveProgress_milestones(t *testing.T) {
	f := newCourseFixture(t, true)

	mods := testutil.Modules()

	// 2 of 6 modules (33%) crosses the 25% threshold only
	f.completeModule(t, mods[0].Slug)
	res := f.completeModule(t, mods[1].Slug)
	assert.Equal(t, 33, res.OverallPercent)
	assert.Equal(t, []string{"milestone_25"}, f.milestoneTypes(t))

	// 3 of 6 (50%)
	f.completeModule(t, mods[2].Slug)
	assert.Equal(t, []string{"milestone_25", "milestone_50"}, f.milestoneTypes(t))

	// 5 of 6 (83%) jumps over 75%
	f.completeModule(t, mods[3].Slug)
	f.completeModule(t, mods[4].Slug)
	assert.Equal(t, []string{"milestone_25", "milestone_50", "milestone_75"}, f.milestoneTypes(t))

	// 6 of 6
	res = f.completeModule(t, mods[5].Slug)
	assert.Equal(t, 100, res.OverallPercent)
	assert.Equal(t, 6, res.CompletedModules)
	want := []string{"milestone_100", "milestone_25", "milestone_50", "milestone_75"}
	assert.Equal(t, want, f.milestoneTypes(t))

	// replays never duplicate milestone rows
	f.completeModule(t, mods[5].Slug)
	assert.Equal(t, want, f.milestoneTypes(t))
}

func TestService_SaveProgress_defaultModuleCount(t *testing.T) {
	f := newCourseFixture(t, false) // module table empty

	res, err := f.svc.SaveProgress(context.Background(), course.WatchEvent{
		UserID:    f.usr.ID,
		ModuleID:  "intro-to-ai",
		EventType: course.EventEnded,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, res.TotalModules)
	assert.Equal(t, 17, res.OverallPercent) // 1/6 rounded
}

func TestService_Summary(t *testing.T) {
	f := newCourseFixture(t, true)
	ctx := context.Background()

	f.completeModule(t, "intro-to-ai")
	f.completeModule(t, "prompt-engineering")
	_, err := f.svc.SaveProgress(ctx, course.WatchEvent{
		UserID:         f.usr.ID,
		ModuleID:       "ai-for-productivity",
		WatchedSeconds: 300,
		Position:       310,
	})
	require.NoError(t, err)

	s, err := f.svc.Summary(ctx, f.usr.ID)
	require.NoError(t, err)
	assert.Equal(t, f.usr.ID, s.UserID)
	assert.Equal(t, 6, s.TotalModules)
	assert.Equal(t, 2, s.CompletedModules)
	assert.Equal(t, 1, s.InProgressModules)
	assert.Equal(t, 33, s.CompletionPercentage)
	assert.Equal(t, 300, s.WatchTimeSeconds)
	require.NotNil(t, s.LastWatchedAt)
	assert.Len(t, s.Modules, 3)
}

func TestService_CheckMilestones(t *testing.T) {
	f := newCourseFixture(t, true)
	ctx := context.Background()

	queued, err := f.svc.CheckMilestones(ctx, f.usr.ID, 30)
	require.NoError(t, err)
	assert.False(t, queued) // not an exact threshold

	queued, err = f.svc.CheckMilestones(ctx, f.usr.ID, 50)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, []string{"milestone_50"}, f.milestoneTypes(t))

	// second hit is deduped
	queued, err = f.svc.CheckMilestones(ctx, f.usr.ID, 50)
	require.NoError(t, err)
	assert.False(t, queued)
}

// lostRaceNotifier reports no prior milestone row but rejects the queue
// insert, the way a concurrent writer that got there first would.
type lostRaceNotifier struct{}

func (lostRaceNotifier) AlreadySent(context.Context, string, notification.Kind, ...core.DBExecutor) (bool, error) {
	return false, nil
}

func (lostRaceNotifier) Enqueue(context.Context, string, notification.Kind, ...core.DBExecutor) (notification.Notification, error) {
	return notification.Notification{}, notification.ErrAlreadySent
}

func TestService_SaveProgress_milestoneQueueLost(t *testing.T) {
	d := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(d)
	courseRepo := inmemdb.NewCourseRepository(d)
	courseRepo.SeedModules(testutil.Modules()...)

	svc := course.NewService(nil, courseRepo, lostRaceNotifier{}, &logsvc.TestLogger{})
	usr := testutil.CreateUser(t, usrRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	ctx := context.Background()

	// the second completion crosses 25%; the notifier refuses the queue
	// insert, and the progress write must still succeed
	for _, slug := range []string{"intro-to-ai", "prompt-engineering"} {
		res, err := svc.SaveProgress(ctx, course.WatchEvent{
			UserID:    usr.ID,
			ModuleID:  slug,
			EventType: course.EventEnded,
			Position:  720,
		})
		require.NoError(t, err)
		assert.True(t, res.Progress.Completed)
	}

	rows, overall, err := svc.GetProgress(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 33, overall)
}

func TestService_SaveProgress_concurrentMilestoneCrossing(t *testing.T) {
	f := newCourseFixture(t, true)

	f.completeModule(t, "intro-to-ai")
	f.completeModule(t, "prompt-engineering") // 33%, milestone_25 queued

	// both writers cross 50% at the same time; neither may fail and only
	// one milestone_50 row may exist afterwards
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i, slug := range []string{"ai-for-productivity", "building-with-llms"} {
		wg.Add(1)
		go func(i int, slug string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.SaveProgress(context.Background(), course.WatchEvent{
				UserID:    f.usr.ID,
				ModuleID:  slug,
				EventType: course.EventEnded,
				Position:  720,
			})
		}(i, slug)
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var fifties int
	for _, typ := range f.milestoneTypes(t) {
		if typ == "milestone_50" {
			fifties++
		}
	}
	assert.Equal(t, 1, fifties)
}
