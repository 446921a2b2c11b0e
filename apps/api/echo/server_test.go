package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/admin"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	analyticssvc "github.com/intellibus/aimasterclass/services/analytics"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	ratelimitsvc "github.com/intellibus/aimasterclass/services/ratelimit"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

type apiFixture struct {
	server Server
	conf   *core.Config

	userRepo  user.Repository
	notifRepo notification.Repository
	notifSvc  *notification.Service
	mock      interface{ SentMessages() []core.EmailMessage }
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	conf := testutil.NewConfig()
	conf.SendgridAPIKey = "test-key" // deliver through the console mock
	logger := &logsvc.TestLogger{}
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	d := inmemdb.NewDB()
	userRepo := inmemdb.NewUserRepository(d)
	notifRepo := inmemdb.NewNotificationRepository(d)
	courseRepo := inmemdb.NewCourseRepository(d)
	courseRepo.SeedModules(testutil.Modules()...)

	mock := emailsvc.NewConsoleServiceMock(conf)
	noLimit := ratelimitsvc.NewNoopLimiter()
	noTrack := analyticssvc.NewNoopService()

	usrSvc := user.NewService(nil, userRepo, mock, noTrack, noLimit, logger, conf)
	notifSvc := notification.NewService(nil, notifRepo, userRepo, mock, logger, conf)
	courseSvc := course.NewService(nil, courseRepo, notifSvc, logger)
	discountSvc := discount.NewService(inmemdb.NewDiscountRepository(d), notifSvc, logger)
	adminSvc := admin.NewService(inmemdb.NewAdminRepository(d), logger)

	server := NewServer(&Options{
		Address:         "localhost:0",
		DisableReqLogs:  true,
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		CourseSvc:       courseSvc,
		NotificationSvc: notifSvc,
		DiscountSvc:     discountSvc,
		AdminSvc:        adminSvc,
	})

	return &apiFixture{
		server:    server,
		conf:      conf,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		notifSvc:  notifSvc,
		mock:      mock,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) token(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := GenerateToken(f.conf, GetUserClaims(f.conf, usr))
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestAPI_health(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to AI Masterclass API!", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

var apiLinkPattern = regexp.MustCompile(`http://\S+/auth/verify\?\S+`)

func TestAPI_magicLinkFlow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/auth/magic-link", `{"email":"new@test.test"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	msgs := f.mock.SentMessages()
	require.Len(t, msgs, 1)
	link := apiLinkPattern.FindString(msgs[0].TextContent)
	require.NotEmpty(t, link)
	u, err := url.Parse(link)
	require.NoError(t, err)

	verifyPath := "/v1/auth/verify?uid=" + u.Query().Get("uid") + "&token=" + u.Query().Get("token")
	rec = f.do(t, http.MethodGet, verifyPath, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var auth authResponse
	decodeBody(t, rec, &auth)
	assert.True(t, auth.IsNew)
	assert.Equal(t, "new@test.test", auth.User.Email)
	require.NotEmpty(t, auth.Token)

	// welcome email is queued for the outbox
	pending, err := f.notifRepo.QueryPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, notification.TypeWelcome, pending[0].Type)

	// the issued token works
	rec = f.do(t, http.MethodGet, "/v1/users/me", "", auth.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	decodeBody(t, rec, &me)
	assert.Equal(t, auth.User.ID, me.ID)

	// tokens are single-use: the login bump invalidated this one
	rec = f.do(t, http.MethodGet, verifyPath, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_verifyRejectsGarbage(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/auth/verify?uid=bm9wZQ&token=AAAAA-bbbbb-ccc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_authRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/users/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/users/me", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_progressFlow(t *testing.T) {
	f := newAPIFixture(t)

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	token := f.token(t, usr)

	rec := f.do(t, http.MethodPost, "/v1/course/progress",
		`{"moduleId":"intro-to-ai","eventType":"ended","watchedSeconds":700,"position":720}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var res course.ProgressResult
	decodeBody(t, rec, &res)
	assert.True(t, res.Progress.Completed)
	assert.Equal(t, usr.ID, res.Progress.UserID)
	assert.Equal(t, 1, res.CompletedModules)
	assert.Equal(t, 6, res.TotalModules)
	assert.Equal(t, 17, res.OverallPercent)

	rec = f.do(t, http.MethodGet, "/v1/course/progress", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Progress       []course.Progress `json:"progress"`
		OverallPercent int               `json:"overallPercent"`
	}
	decodeBody(t, rec, &got)
	assert.Len(t, got.Progress, 1)
	assert.Equal(t, 17, got.OverallPercent)

	// module list is public to signed-in users
	rec = f.do(t, http.MethodGet, "/v1/course/modules", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var mods []course.Module
	decodeBody(t, rec, &mods)
	assert.Len(t, mods, 6)
}

func TestAPI_milestoneCheck(t *testing.T) {
	f := newAPIFixture(t)

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	token := f.token(t, usr)

	rec := f.do(t, http.MethodPost, "/v1/course/milestones", `{"percent":50}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Queued bool `json:"queued"`
	}
	decodeBody(t, rec, &res)
	assert.True(t, res.Queued)

	// the second report is deduped
	rec = f.do(t, http.MethodPost, "/v1/course/milestones", `{"percent":50}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &res)
	assert.False(t, res.Queued)
}

func TestAPI_adminAuthz(t *testing.T) {
	f := newAPIFixture(t)

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	boss := testutil.CreateUser(t, f.userRepo, "Boss", "boss@test.test", user.TierPaid, user.RoleAdmin)

	for _, path := range []string{"/v1/admin/stats", "/v1/admin/users", "/v1/admin/video-analytics", "/v1/admin/emails"} {
		rec := f.do(t, http.MethodGet, path, "", f.token(t, usr))
		assert.Equal(t, http.StatusForbidden, rec.Code, path)

		rec = f.do(t, http.MethodGet, path, "", f.token(t, boss))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// plain users may read their own summary but nobody else's
	rec := f.do(t, http.MethodGet, "/v1/course/summary/"+usr.ID, "", f.token(t, usr))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/course/summary/"+boss.ID, "", f.token(t, usr))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/course/summary/"+usr.ID, "", f.token(t, boss))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_discountFlow(t *testing.T) {
	f := newAPIFixture(t)

	boss := testutil.CreateUser(t, f.userRepo, "Boss", "boss@test.test", user.TierPaid, user.RoleAdmin)
	adminToken := f.token(t, boss)

	// the landing page form posts anonymously
	rec := f.do(t, http.MethodPost, "/v1/discount-requests",
		`{"name":"Ada","email":"ada@corp.test","company":"Corp","jobTitle":"CTO"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var req discount.Request
	decodeBody(t, rec, &req)
	assert.Equal(t, discount.StatusPending, req.Status)

	// a partial form is rejected
	rec = f.do(t, http.MethodPost, "/v1/discount-requests", `{"email":"ada@corp.test"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// listing needs admin
	rec = f.do(t, http.MethodGet, "/v1/discount-requests", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/discount-requests", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var page PagedResponse
	decodeBody(t, rec, &page)
	assert.Equal(t, 1, page.Total)

	// issue the code
	rec = f.do(t, http.MethodPost, "/v1/discount-requests/"+req.ID+"/send-code", "", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var sent discount.Request
	decodeBody(t, rec, &sent)
	assert.Equal(t, discount.StatusSent, sent.Status)
	assert.NotEmpty(t, sent.Code)

	// re-issuing conflicts
	rec = f.do(t, http.MethodPost, "/v1/discount-requests/"+req.ID+"/send-code", "", adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_adminSendEmail(t *testing.T) {
	f := newAPIFixture(t)

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	boss := testutil.CreateUser(t, f.userRepo, "Boss", "boss@test.test", user.TierPaid, user.RoleAdmin)
	adminToken := f.token(t, boss)

	body := fmt.Sprintf(`{"userId":%q,"type":"reminder"}`, usr.ID)
	rec := f.do(t, http.MethodPost, "/v1/admin/send-email", body, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var n notification.Notification
	decodeBody(t, rec, &n)
	assert.Equal(t, notification.TypeReminder, n.Type)
	assert.Equal(t, usr.ID, n.UserID)

	// by email, with a custom offer
	body = `{"email":"jane@test.test","type":"offer","subject":"Teams launch","message":"We just launched teams."}`
	rec = f.do(t, http.MethodPost, "/v1/admin/send-email", body, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &n)
	assert.Equal(t, "Teams launch", n.Subject)

	// unknown type is a validation error
	body = fmt.Sprintf(`{"userId":%q,"type":"nonsense"}`, usr.ID)
	rec = f.do(t, http.MethodPost, "/v1/admin/send-email", body, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// milestone re-sends conflict
	body = fmt.Sprintf(`{"userId":%q,"type":"milestone_50"}`, usr.ID)
	rec = f.do(t, http.MethodPost, "/v1/admin/send-email", body, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/v1/admin/send-email", body, adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_tracking(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	n, err := f.notifSvc.Send(ctx, usr, notification.Welcome{})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/track/open/"+n.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, trackingPixel, rec.Body.Bytes())

	got, err := f.notifSvc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.OpenedAt.IsZero())

	// same-site click targets are honored
	target := f.conf.FrontendBaseURL + "/course"
	rec = f.do(t, http.MethodGet, "/v1/track/click/"+n.ID+"?url="+url.QueryEscape(target), "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target, rec.Header().Get("Location"))

	// cross-site targets bounce to the frontend root
	rec = f.do(t, http.MethodGet, "/v1/track/click/"+n.ID+"?url="+url.QueryEscape("https://evil.test/phish"), "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, f.conf.FrontendBaseURL, rec.Header().Get("Location"))

	// unknown ids still serve the pixel
	rec = f.do(t, http.MethodGet, "/v1/track/open/does-not-exist", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_userUpdateGuards(t *testing.T) {
	f := newAPIFixture(t)

	usr := testutil.CreateUser(t, f.userRepo, "Jane", "jane@test.test", user.TierFree, user.RoleUser)
	boss := testutil.CreateUser(t, f.userRepo, "Boss", "boss@test.test", user.TierPaid, user.RoleAdmin)

	// users cannot grant themselves a tier or role
	rec := f.do(t, http.MethodPut, "/v1/users/me", `{"name":"Jane X","tier":"paid","role":"admin"}`, f.token(t, usr))
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	decodeBody(t, rec, &me)
	assert.Equal(t, "Jane X", me.Name)
	assert.Equal(t, user.TierFree, me.Tier)
	assert.Equal(t, user.RoleUser, me.Role)

	// admins can
	rec = f.do(t, http.MethodPut, "/v1/users/"+usr.ID, `{"tier":"paid"}`, f.token(t, boss))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &me)
	assert.Equal(t, user.TierPaid, me.Tier)

	// the user list is admin-only
	rec = f.do(t, http.MethodGet, "/v1/users", "", f.token(t, usr))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/users", "", f.token(t, boss))
	assert.Equal(t, http.StatusOK, rec.Code)
}
