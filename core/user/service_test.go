package user_test

import (
	"context"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/user"
	analyticssvc "github.com/intellibus/aimasterclass/services/analytics"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	ratelimitsvc "github.com/intellibus/aimasterclass/services/ratelimit"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

var linkPattern = regexp.MustCompile(`http://\S+/auth/verify\?\S+`)

// denyAllLimiter rejects every request.
type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

type userFixture struct {
	svc  *user.Service
	repo user.Repository
	mock interface{ SentMessages() []core.EmailMessage }
}

func newUserFixture(t *testing.T, limiter core.RateLimiter) *userFixture {
	t.Helper()

	conf := testutil.NewConfig()
	conf.AdminEmails = []string{"boss@test.test"}
	logger := &logsvc.TestLogger{}
	core.ParseEmailTemplates(conf, logger)

	if limiter == nil {
		limiter = ratelimitsvc.NewNoopLimiter()
	}
	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	mock := emailsvc.NewConsoleServiceMock(conf)
	svc := user.NewService(nil, repo, mock, analyticssvc.NewNoopService(), limiter, logger, conf)
	return &userFixture{svc: svc, repo: repo, mock: mock}
}

// requestLink asks for a magic link and parses the uid/token pair out of
// the email that went out.
func (f *userFixture) requestLink(t *testing.T, email string) user.VerifyMagicLink {
	t.Helper()

	require.NoError(t, f.svc.RequestMagicLink(context.Background(), user.MagicLinkRequest{Email: email}))

	msgs := f.mock.SentMessages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, email, last.To[0].Address)

	link := linkPattern.FindString(last.TextContent)
	require.NotEmpty(t, link, "no magic link in email body")
	u, err := url.Parse(link)
	require.NoError(t, err)
	return user.VerifyMagicLink{
		UID:   u.Query().Get("uid"),
		Token: u.Query().Get("token"),
	}
}

func TestService_magicLinkSignup(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	data := f.requestLink(t, "new@test.test")

	usr, created, err := f.svc.VerifyMagicLink(ctx, data)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new@test.test", usr.Email)
	assert.Equal(t, user.TierFree, usr.Tier)
	assert.Equal(t, user.RoleUser, usr.Role)
	assert.True(t, usr.EmailVerified)
	assert.False(t, usr.LastLoginAt.IsZero())

	// the sign-in bump invalidates the used token
	_, _, err = f.svc.VerifyMagicLink(ctx, data)
	assert.Error(t, err)
}

func TestService_magicLinkLogin(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	existing := testutil.CreateUser(t, f.repo, "Jane", "jane@test.test", user.TierPaid, user.RoleUser)

	data := f.requestLink(t, existing.Email)
	usr, created, err := f.svc.VerifyMagicLink(ctx, data)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, usr.ID)
	assert.Equal(t, user.TierPaid, usr.Tier) // tier untouched by login
	assert.True(t, usr.LastLoginAt.After(existing.LastLoginAt))
}

func TestService_magicLinkAdminAllowlist(t *testing.T) {
	f := newUserFixture(t, nil)

	data := f.requestLink(t, "boss@test.test")
	usr, created, err := f.svc.VerifyMagicLink(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, user.RoleAdmin, usr.Role)
}

func TestService_magicLinkRateLimited(t *testing.T) {
	f := newUserFixture(t, denyAllLimiter{})

	err := f.svc.RequestMagicLink(context.Background(), user.MagicLinkRequest{Email: "new@test.test"})
	assert.Equal(t, user.ErrRateLimited, err)
	assert.Empty(t, f.mock.SentMessages())
}

func TestService_verifyRejectsGarbage(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.svc.VerifyMagicLink(ctx, user.VerifyMagicLink{UID: "!!!", Token: "x"})
	assert.Equal(t, user.ErrInvalidToken, err)

	data := f.requestLink(t, "new@test.test")
	data.Token = "AAAAA-bbbbb-ccc"
	_, _, err = f.svc.VerifyMagicLink(ctx, data)
	assert.Error(t, err)
}

func TestService_PromoteAdminAndMarkPaid(t *testing.T) {
	f := newUserFixture(t, nil)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.repo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)

	promoted, err := f.svc.PromoteAdmin(ctx, usr.Email)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, promoted.Role)

	paid, err := f.svc.MarkPaid(ctx, usr.ID, 19900)
	require.NoError(t, err)
	assert.Equal(t, user.TierPaid, paid.Tier)
	assert.Equal(t, 19900, paid.AmountPaid)
	assert.False(t, paid.PaidAt.IsZero())
}
