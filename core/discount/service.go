package discount

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadySent = errors.New("code already sent")
)

type Repository interface {
	CreateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) (Request, error)
	GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
	UpdateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) (Request, error)
	QueryRequests(ctx context.Context, filter *QueryFilter, limit, offset int, exec ...core.DBExecutor) ([]Request, error)
	CountRequests(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
	CountPendingRequests(ctx context.Context, exec ...core.DBExecutor) (int, error)
}

// CodeSender delivers an issued discount code. Satisfied by the
// notification service.
type CodeSender interface {
	Send(ctx context.Context, usr user.User, kind notification.Kind) (notification.Notification, error)
}

type Service struct {
	repo   Repository
	sender CodeSender
	logger core.Logger
}

func NewService(repo Repository, sender CodeSender, logger core.Logger) *Service {
	return &Service{repo: repo, sender: sender, logger: logger}
}

func (svc *Service) Create(ctx context.Context, nr NewRequest) (Request, error) {
	now := time.Now().UTC()
	req := Request{
		Name:      nr.Name,
		Email:     nr.Email,
		Company:   nr.Company,
		JobTitle:  nr.JobTitle,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req, err := svc.repo.CreateRequest(ctx, req)
	if err != nil {
		return Request{}, errors.Wrap(err, "recording discount request")
	}
	svc.logger.Info(fmt.Sprintf("discount request from %s (%s)", req.Email, req.Company))
	return req, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, id)
}

// Query returns a page of requests plus the unpaged total.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, limit, offset int) ([]Request, int, error) {
	filter.Clean()
	rows, err := svc.repo.QueryRequests(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying discount requests")
	}
	total, err := svc.repo.CountRequests(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting discount requests")
	}
	return rows, total, nil
}

func (svc *Service) UpdateStatus(ctx context.Context, id string, us UpdateStatus) (Request, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	req.Status = us.Status
	req.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateRequest(ctx, req)
}

// SendCode issues a fresh code for a pending request and emails it. The
// request flips to sent; re-sending an already-sent request is rejected.
func (svc *Service) SendCode(ctx context.Context, id string) (Request, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status == StatusSent {
		return Request{}, ErrAlreadySent
	}

	code, err := generateCode()
	if err != nil {
		return Request{}, errors.Wrap(err, "generating discount code")
	}

	// Requesters are usually not account holders; build a transient user
	// so the email renders with their name.
	usr := user.User{Email: req.Email, Name: req.Name, Company: req.Company}
	kind := notification.DiscountCode{Code: code, Company: req.Company}
	if _, err = svc.sender.Send(ctx, usr, kind); err != nil {
		return Request{}, errors.Wrap(err, "sending discount code email")
	}

	req.Code = code
	req.Status = StatusSent
	req.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateRequest(ctx, req)
}

// generateCode returns a code like AIMC-7K2P9X.
func generateCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return "AIMC-" + string(buf), nil
}
