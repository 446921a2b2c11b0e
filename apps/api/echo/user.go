package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
)

type userApi struct {
	svc        *user.Service
	notifSvc   *notification.Service
	outbox     *notification.Outbox
	conf       *core.Config
	validate   *validator.Validate
	translator ut.Translator
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := userApi{
		svc:        opts.UserSvc,
		notifSvc:   opts.NotificationSvc,
		outbox:     opts.Outbox,
		conf:       opts.Conf,
		validate:   opts.Validate,
		translator: opts.Translator,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/magic-link", api.requestMagicLink)
	ag.GET("/verify", api.verifyMagicLink)
	ag.POST("/verify", api.verifyMagicLink)

	// authed endpoints
	tg := ag.Group("", jwt)
	tg.POST("/token-refresh", api.refreshToken)

	ug := g.Group("/users", jwt)
	ug.GET("/me", api.retrieveSelf)
	ug.PUT("/me", api.updateSelf)
	ug.GET("", api.query, adminMiddleware())

	dg := ug.Group("/:id", selfOrAdminMiddleware())
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
}

// Handlers

func (api *userApi) requestMagicLink(ctx echo.Context) error {
	var data user.MagicLinkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MagicLinkRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestMagicLink(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "requesting magic link")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": "Check your inbox! If the address is valid, a sign-in link is on its way.",
	})
}

type authResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
	IsNew bool      `json:"isNew"`
}

func (api *userApi) verifyMagicLink(ctx echo.Context) error {
	var data user.VerifyMagicLink
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyMagicLink")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, created, err := api.svc.VerifyMagicLink(ctx.Request().Context(), data)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrNotFound, user.ErrInvalidToken, user.ErrTokenExpired:
			return errLinkInvalid
		}
		return errors.Wrap(err, "verifying magic link")
	}

	// first sign-in gets the welcome email, off the request path
	if created && api.notifSvc != nil {
		if _, err = api.notifSvc.Enqueue(ctx.Request().Context(), usr.ID, notification.Welcome{}); err != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(err, "queueing welcome email"))
		} else if api.outbox != nil {
			api.outbox.Kick()
		}
	}

	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, authResponse{Token: token, User: usr, IsNew: created})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"token": token})
}

func (api *userApi) retrieveSelf(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateSelf(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return api.doUpdate(ctx, claims.Subject, false)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return api.doUpdate(ctx, ctx.Param("id"), claims.IsAdmin)
}

func (api *userApi) doUpdate(ctx echo.Context, id string, isAdmin bool) error {
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// tier and role changes are operator-only
	if !isAdmin {
		data.Tier = ""
		data.Role = ""
	}

	usr, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	var ordering Ordering
	ordering.Bind(ctx)
	var page Pagination
	page.Bind(ctx)

	users, total, err := api.svc.Query(ctx.Request().Context(), &filter, ordering.Orderings, page.Limit(), page.Offset())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, newPagedResponse(users, total, page))
}
