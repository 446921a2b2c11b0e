package discount_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/notification"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	inmemdb "github.com/intellibus/aimasterclass/storage/database/inmem"
	testutil "github.com/intellibus/aimasterclass/tests"
)

var codeFormat = regexp.MustCompile(`^AIMC-[A-HJ-NP-Z2-9]{6}$`)

type discountFixture struct {
	svc  *discount.Service
	mock interface{ SentMessages() []core.EmailMessage }
}

func newDiscountFixture(t *testing.T) *discountFixture {
	t.Helper()

	conf := testutil.NewConfig()
	conf.SendgridAPIKey = "test-key"
	logger := &logsvc.TestLogger{}
	core.ParseEmailTemplates(conf, logger)

	d := inmemdb.NewDB()
	mock := emailsvc.NewConsoleServiceMock(conf)
	notifSvc := notification.NewService(nil, inmemdb.NewNotificationRepository(d), inmemdb.NewUserRepository(d), mock, logger, conf)
	svc := discount.NewService(inmemdb.NewDiscountRepository(d), notifSvc, logger)
	return &discountFixture{svc: svc, mock: mock}
}

func newRequest(t *testing.T, f *discountFixture) discount.Request {
	t.Helper()

	nr := discount.NewRequest{
		Name:     "Ada",
		Email:    "ada@corp.test",
		Company:  "Corp",
		JobTitle: "CTO",
	}
	require.NoError(t, nr.Validate(validator.New()))

	req, err := f.svc.Create(context.Background(), nr)
	require.NoError(t, err)
	return req
}

func TestService_Create(t *testing.T) {
	f := newDiscountFixture(t)

	req := newRequest(t, f)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, discount.StatusPending, req.Status)
	assert.Empty(t, req.Code)

	got, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

func TestNewRequest_Validate(t *testing.T) {
	validate := validator.New()

	nr := discount.NewRequest{Name: "Ada", Email: "not-an-email", Company: "Corp", JobTitle: "CTO"}
	assert.Error(t, nr.Validate(validate))

	nr.Email = "ada@corp.test"
	nr.Company = ""
	assert.Error(t, nr.Validate(validate))
}

func TestService_SendCode(t *testing.T) {
	f := newDiscountFixture(t)
	ctx := context.Background()

	req := newRequest(t, f)

	sent, err := f.svc.SendCode(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, discount.StatusSent, sent.Status)
	assert.Regexp(t, codeFormat, sent.Code)

	msgs := f.mock.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, req.Email, msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, sent.Code)
	assert.Contains(t, msgs[0].TextContent, "Corp")

	// a code goes out once
	_, err = f.svc.SendCode(ctx, req.ID)
	assert.Equal(t, discount.ErrAlreadySent, err)
}

func TestService_UpdateStatus(t *testing.T) {
	f := newDiscountFixture(t)
	ctx := context.Background()

	req := newRequest(t, f)

	updated, err := f.svc.UpdateStatus(ctx, req.ID, discount.UpdateStatus{Status: discount.StatusExpired})
	require.NoError(t, err)
	assert.Equal(t, discount.StatusExpired, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, "missing-id", discount.UpdateStatus{Status: discount.StatusExpired})
	assert.Equal(t, discount.ErrNotFound, err)
}

func TestService_Query(t *testing.T) {
	f := newDiscountFixture(t)
	ctx := context.Background()

	a := newRequest(t, f)
	b := newRequest(t, f)
	_, err := f.svc.SendCode(ctx, b.ID)
	require.NoError(t, err)

	rows, total, err := f.svc.Query(ctx, &discount.QueryFilter{Status: discount.StatusPending}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	// "all" means no status filter
	_, total, err = f.svc.Query(ctx, &discount.QueryFilter{Status: "all"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
