package notification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/user"
)

var (
	// errors
	ErrNotFound    = errors.New("notification not found")
	ErrAlreadySent = errors.New("milestone email already sent")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		// ExistsOfType reports whether the user already has a row of the
		// given type, regardless of status.
		ExistsOfType(ctx context.Context, userID, typ string, exec ...core.DBExecutor) (bool, error)
		QueryPending(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Notification, error)
		UpdateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotifications(ctx context.Context, filter *QueryFilter, limit, offset int, exec ...core.DBExecutor) ([]Notification, error)
		CountNotifications(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		CountByStatus(ctx context.Context, exec ...core.DBExecutor) (StatusCounts, error)
		CountSentSince(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db      core.DB
		repo    Repository
		users   user.Repository
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(
	db core.DB,
	repo Repository,
	users user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// AlreadySent reports whether a row of kind's type exists for the user.
// Milestone kinds use it as their uniqueness guard.
func (svc *Service) AlreadySent(ctx context.Context, userID string, kind Kind, exec ...core.DBExecutor) (bool, error) {
	return svc.repo.ExistsOfType(ctx, userID, kind.Type(), exec...)
}

// Enqueue writes a pending row for the outbox worker to deliver. Callers
// pass their open transaction so the row commits or rolls back together
// with the write that triggered it.
func (svc *Service) Enqueue(ctx context.Context, userID string, kind Kind, exec ...core.DBExecutor) (Notification, error) {
	usr, err := svc.users.GetUserByID(ctx, userID, exec...)
	if err != nil {
		return Notification{}, errors.Wrap(err, "finding user for notification")
	}
	return svc.repo.CreateNotification(ctx, Notification{
		UserID:    usr.ID,
		Email:     usr.Email,
		Type:      kind.Type(),
		Subject:   kind.Subject(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, exec...)
}

// Send renders and delivers kind to usr inline, recording exactly one row
// whatever the outcome. The provider error is returned so that admin
// callers can surface it; the row status already reflects it.
func (svc *Service) Send(ctx context.Context, usr user.User, kind Kind) (Notification, error) {
	if _, isMilestone := kind.(Milestone); isMilestone {
		sent, err := svc.AlreadySent(ctx, usr.ID, kind)
		if err != nil {
			return Notification{}, errors.Wrap(err, "checking existing milestone email")
		}
		if sent {
			return Notification{}, ErrAlreadySent
		}
	}

	n := Notification{
		UserID:    usr.ID,
		Email:     usr.Email,
		Type:      kind.Type(),
		Subject:   kind.Subject(),
		CreatedAt: time.Now().UTC(),
	}

	sendErr := svc.deliver(&n, usr, kind)

	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "recording notification")
	}
	return n, sendErr
}

// deliver renders and sends, mutating n's status fields. A nil error with
// StatusLogged means the provider is unconfigured and the send was skipped.
func (svc *Service) deliver(n *Notification, usr user.User, kind Kind) error {
	n.Attempts++

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: n.Email}},
		Subject:      kind.Subject(),
		TemplateName: kind.template(),
		TemplateData: kind.data(usr),
	}
	if err := msg.Render(svc.conf); err != nil {
		n.Status = StatusFailed
		return errors.Wrap(err, "rendering email")
	}

	if !svc.conf.EmailEnabled() {
		svc.logger.Info(fmt.Sprintf("email disabled: would send %s to %s", n.Type, n.Email))
		n.Status = StatusLogged
		return nil
	}

	if err := svc.mailSvc.Send(msg); err != nil {
		n.Status = StatusFailed
		return errors.Wrapf(err, "sending %s email", n.Type)
	}
	n.Status = StatusSent
	n.SentAt = time.Now().UTC()
	svc.logger.Info(fmt.Sprintf("sent %s email to %s", n.Type, n.Email))
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotification(ctx, id)
}

// Query returns a page of notification rows plus the unpaged total.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, limit, offset int) ([]Notification, int, error) {
	rows, err := svc.repo.QueryNotifications(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	total, err := svc.repo.CountNotifications(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}
	return rows, total, nil
}

func (svc *Service) StatusCounts(ctx context.Context) (StatusCounts, error) {
	return svc.repo.CountByStatus(ctx)
}

// MarkOpened records the tracking-pixel hit for a notification.
func (svc *Service) MarkOpened(ctx context.Context, id string) error {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if !n.OpenedAt.IsZero() {
		return nil
	}
	n.OpenedAt = time.Now().UTC()
	if n.Status == StatusSent {
		n.Status = StatusOpened
	}
	_, err = svc.repo.UpdateNotification(ctx, n)
	return errors.Wrap(err, "marking notification opened")
}

// MarkClicked records a tracked link click for a notification.
func (svc *Service) MarkClicked(ctx context.Context, id string) error {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if !n.ClickedAt.IsZero() {
		return nil
	}
	now := time.Now().UTC()
	n.ClickedAt = now
	if n.OpenedAt.IsZero() {
		n.OpenedAt = now // a click implies an open
	}
	if n.Status == StatusSent || n.Status == StatusOpened {
		n.Status = StatusClicked
	}
	_, err = svc.repo.UpdateNotification(ctx, n)
	return errors.Wrap(err, "marking notification clicked")
}
