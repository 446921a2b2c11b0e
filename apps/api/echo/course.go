package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core/course"
)

type courseApi struct {
	svc      *course.Service
	outbox   *notificationOutboxKicker
	validate *validator.Validate
}

// notificationOutboxKicker narrows the outbox to the one call handlers need.
type notificationOutboxKicker struct {
	kick func()
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	kicker := &notificationOutboxKicker{kick: func() {}}
	if opts.Outbox != nil {
		kicker.kick = opts.Outbox.Kick
	}
	api := courseApi{
		svc:      opts.CourseSvc,
		outbox:   kicker,
		validate: opts.Validate,
	}

	cg := g.Group("/course", jwt)
	cg.GET("/modules", api.modules)
	cg.POST("/progress", api.saveProgress)
	cg.GET("/progress", api.myProgress)
	cg.POST("/milestones", api.checkMilestones)

	sg := cg.Group("/summary/:id", selfOrAdminMiddleware())
	sg.GET("", api.summary)
}

func (api *courseApi) modules(ctx echo.Context) error {
	mods, err := api.svc.Modules(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying modules")
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *courseApi) saveProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var ev course.WatchEvent
	if err = ctx.Bind(&ev); err != nil {
		return errors.Wrap(err, "binding to WatchEvent")
	}
	// the player reports for the signed-in user only
	ev.UserID = claims.Subject
	if err = ev.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.SaveProgress(ctx.Request().Context(), ev)
	if err != nil {
		return errors.Wrap(err, "saving progress")
	}
	api.outbox.kick()
	return ctx.JSON(http.StatusOK, res)
}

func (api *courseApi) myProgress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	rows, overall, err := api.svc.GetProgress(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"progress":       rows,
		"overallPercent": overall,
	})
}

func (api *courseApi) summary(ctx echo.Context) error {
	s, err := api.svc.Summary(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "summarizing progress")
	}
	return ctx.JSON(http.StatusOK, s)
}

type milestoneCheckRequest struct {
	Percent int `json:"percent" validate:"min=0,max=100"`
}

// checkMilestones lets the player report an overall percentage directly;
// the matching milestone email is queued if it has not gone out yet.
func (api *courseApi) checkMilestones(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data milestoneCheckRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to milestone check")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	queued, err := api.svc.CheckMilestones(ctx.Request().Context(), claims.Subject, data.Percent)
	if err != nil {
		return errors.Wrap(err, "checking milestones")
	}
	if queued {
		api.outbox.kick()
	}
	return ctx.JSON(http.StatusOK, echo.Map{"queued": queued})
}
