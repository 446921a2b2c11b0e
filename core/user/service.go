package user

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrRateLimited = errors.New("too many magic link requests, try again later")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND on set QueryFilter fields; Search matches
		// name, email or company case-insensitively. limit <= 0 means no limit.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, limit, offset int, exec ...core.DBExecutor) ([]User, error)
		CountUsers(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		mailSvc   core.EmailService
		analytics core.Analytics
		limiter   core.RateLimiter
		logger    core.Logger
		conf      *core.Config
	}

	magicLinkEmailData struct {
		MagicLink string
		Email     string
	}
)

func NewService(
	db core.DB,
	repo Repository,
	mailSvc core.EmailService,
	analytics core.Analytics,
	limiter core.RateLimiter,
	logger core.Logger,
	conf *core.Config,
) *Service {
	secretKey = conf.SecretKey
	magicLinkTimeout = conf.MagicLinkTimeout
	return &Service{
		db:        db,
		repo:      repo,
		mailSvc:   mailSvc,
		analytics: analytics,
		limiter:   limiter,
		logger:    logger,
		conf:      conf,
	}
}

// RequestMagicLink emails a single-use sign-in link to the given address.
// It deliberately does not reveal whether an account exists, and a mail
// provider failure is logged rather than surfaced: the caller always gets
// the same "check your inbox" outcome unless rate limited.
func (svc *Service) RequestMagicLink(ctx context.Context, req MagicLinkRequest) error {
	allowed, err := svc.limiter.Allow(ctx, "magic-link:"+req.Email)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("magic link rate limiter: %v", err), err)
	}
	if !allowed {
		return ErrRateLimited
	}

	usr, err := svc.repo.GetUserByEmail(ctx, req.Email)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "finding user by email")
	}

	token := makeToken(req.Email, usr)
	link := svc.magicLinkURL(req.Email, token)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: req.Email}},
		Subject:      "Your AI Masterclass Access Link",
		TemplateName: "magic_link",
		TemplateData: magicLinkEmailData{MagicLink: link, Email: req.Email},
	}
	if err = msg.Render(svc.conf); err != nil {
		return errors.Wrap(err, "rendering magic link email")
	}

	if err = svc.mailSvc.Send(msg); err != nil {
		svc.logger.Error(fmt.Sprintf("sending magic link to %s: %v", req.Email, err), err)
		svc.logger.Info(fmt.Sprintf("magic link for %s: %s", req.Email, link))
		svc.analytics.Capture(req.Email, "magic_link_email_failed", core.Properties{
			"email": req.Email,
			"error": err.Error(),
		})
		return nil
	}

	svc.analytics.Capture(req.Email, "magic_link_email_sent", core.Properties{
		"email":  req.Email,
		"course": "free_course",
	})
	return nil
}

// VerifyMagicLink validates a uid/token pair. The account is created on
// first successful verification; subsequent verifications bump LastLoginAt,
// which invalidates all previously issued tokens.
func (svc *Service) VerifyMagicLink(ctx context.Context, data VerifyMagicLink) (usr User, created bool, err error) {
	email, err := decodeUID(data.UID)
	if err != nil {
		return User{}, false, ErrInvalidToken
	}
	email = core.CleanString(email, true /* lower */)

	usr, err = svc.repo.GetUserByEmail(ctx, email)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return User{}, false, errors.Wrap(err, "finding user by email")
	}

	if err = verifyToken(email, usr, data.Token); err != nil {
		return User{}, false, err
	}

	now := time.Now().UTC()
	if usr.ID == "" {
		role := RoleUser
		if svc.conf.IsAdminEmail(email) {
			role = RoleAdmin
		}
		usr, err = svc.repo.CreateUser(ctx, User{
			Email:         email,
			Tier:          TierFree,
			Role:          role,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
			LastLoginAt:   now,
		})
		if err != nil {
			return User{}, false, errors.Wrap(err, "creating user")
		}
		created = true
	} else {
		if usr, err = svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
			return User{}, false, errors.Wrap(err, "setting last login")
		}
	}

	svc.analytics.Capture(usr.ID, "magic_link_verified", core.Properties{
		"email":    email,
		"new_user": created,
	})
	return usr, created, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// Query returns a page of users plus the unpaged total.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, limit, offset int) ([]User, int, error) {
	users, err := svc.repo.QueryUsers(ctx, filter, ordering, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	total, err := svc.repo.CountUsers(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}
	return users, total, nil
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if uu.Name != "" {
		usr.Name = uu.Name
	}
	if uu.Company != "" {
		usr.Company = uu.Company
	}
	if uu.JobTitle != "" {
		usr.JobTitle = uu.JobTitle
	}
	if uu.Tier != "" {
		usr.Tier = uu.Tier
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// PromoteAdmin grants the admin role to an existing account.
func (svc *Service) PromoteAdmin(ctx context.Context, email string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if usr.IsAdmin() {
		return usr, nil
	}
	usr.Role = RoleAdmin
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// MarkPaid upgrades the account after a successful checkout.
func (svc *Service) MarkPaid(ctx context.Context, id string, amountCents int) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	now := time.Now().UTC()
	usr.Tier = TierPaid
	usr.PaidAt = now
	usr.AmountPaid = amountCents
	usr.UpdatedAt = now

	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user tier")
	}
	svc.analytics.Capture(usr.ID, "order_paid", core.Properties{
		"email":    usr.Email,
		"amount":   amountCents,
		"currency": "USD",
	})
	return usr, nil
}

func (svc *Service) magicLinkURL(email, token string) string {
	q := make(url.Values)
	q.Set("uid", EncodeUID(email))
	q.Set("token", token)
	q.Set("utm_source", "magic_link_email")
	q.Set("utm_medium", "email")
	q.Set("utm_campaign", "free_course_signup")
	return svc.conf.FrontendBaseURL + "/auth/verify?" + q.Encode()
}
