package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/admin"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
)

type adminApi struct {
	svc       *admin.Service
	userSvc   *user.Service
	courseSvc *course.Service
	notifSvc  *notification.Service
	validate  *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := adminApi{
		svc:       opts.AdminSvc,
		userSvc:   opts.UserSvc,
		courseSvc: opts.CourseSvc,
		notifSvc:  opts.NotificationSvc,
		validate:  opts.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/stats", api.stats)
	ag.GET("/users", api.users)
	ag.GET("/video-analytics", api.videoAnalytics)
	ag.GET("/emails", api.emails)
	ag.POST("/send-email", api.sendEmail)
}

func (api *adminApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Dashboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building dashboard stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) users(ctx echo.Context) error {
	var page Pagination
	page.Bind(ctx)

	rows, total, tiers, err := api.svc.Users(
		ctx.Request().Context(),
		ctx.QueryParam("search"),
		ctx.QueryParam("tier"),
		page.Limit(), page.Offset(),
	)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"items":    rows,
		"total":    total,
		"page":     page.Page,
		"pageSize": page.PageSize,
		"tiers":    tiers,
	})
}

func (api *adminApi) videoAnalytics(ctx echo.Context) error {
	stats, err := api.svc.VideoAnalytics(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building video analytics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) emails(ctx echo.Context) error {
	var filter notification.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	var page Pagination
	page.Bind(ctx)

	rows, total, err := api.notifSvc.Query(ctx.Request().Context(), &filter, page.Limit(), page.Offset())
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	counts, err := api.notifSvc.StatusCounts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"items":    rows,
		"total":    total,
		"page":     page.Page,
		"pageSize": page.PageSize,
		"counts":   counts,
	})
}

type sendEmailRequest struct {
	UserID  string `json:"userId" validate:"required_without=Email"`
	Email   string `json:"email" validate:"omitempty,email"`
	Type    string `json:"type" validate:"required"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// sendEmail fires a one-off email at a user from the dashboard. Progress
// reports pull the user's live numbers; offers carry the custom copy.
func (api *adminApi) sendEmail(ctx echo.Context) error {
	var data sendEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to sendEmailRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	rctx := ctx.Request().Context()

	var usr user.User
	var err error
	if data.UserID != "" {
		usr, err = api.userSvc.GetByID(rctx, data.UserID)
	} else {
		usr, err = api.userSvc.GetByEmail(rctx, data.Email)
	}
	if err != nil {
		return errors.Wrap(err, "finding recipient")
	}

	var stats notification.ProgressStats
	if data.Type == notification.TypeProgress {
		summary, err := api.courseSvc.Summary(rctx, usr.ID)
		if err != nil {
			return errors.Wrap(err, "summarizing progress")
		}
		stats = notification.ProgressStats{
			Completed:        summary.CompletedModules,
			Total:            summary.TotalModules,
			WatchTimeSeconds: summary.WatchTimeSeconds,
			Percentage:       summary.CompletionPercentage,
		}
	}

	kind, err := notification.KindForAdminSend(data.Type, data.Subject, data.Message, stats)
	if err != nil {
		return core.NewValidationError(err)
	}

	n, err := api.notifSvc.Send(rctx, usr, kind)
	if err != nil {
		if errors.Cause(err) == notification.ErrAlreadySent {
			return err
		}
		// the audit row exists either way; report the delivery status
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "sending admin email"))
	}
	return ctx.JSON(http.StatusOK, n)
}
