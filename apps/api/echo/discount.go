package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core/discount"
)

type discountApi struct {
	svc      *discount.Service
	validate *validator.Validate
}

func registerDiscountAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := discountApi{
		svc:      opts.DiscountSvc,
		validate: opts.Validate,
	}

	dg := g.Group("/discount-requests")

	// operator endpoints
	ag := dg.Group("", jwt, adminMiddleware())

	// the landing page form posts without an account; registered after the
	// admin subgroup so its route is not shadowed by the subgroup's
	// catch-all Any("") registration
	dg.POST("", api.create)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/status", api.updateStatus)
	ag.POST("/:id/send-code", api.sendCode)
}

func (api *discountApi) create(ctx echo.Context) error {
	var data discount.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating discount request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *discountApi) query(ctx echo.Context) error {
	filter := discount.QueryFilter{
		Status: ctx.QueryParam("status"),
		Search: ctx.QueryParam("search"),
	}
	var page Pagination
	page.Bind(ctx)

	rows, total, err := api.svc.Query(ctx.Request().Context(), &filter, page.Limit(), page.Offset())
	if err != nil {
		return errors.Wrap(err, "querying discount requests")
	}
	return ctx.JSON(http.StatusOK, newPagedResponse(rows, total, page))
}

func (api *discountApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding discount request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *discountApi) updateStatus(ctx echo.Context) error {
	var data discount.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating discount request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *discountApi) sendCode(ctx echo.Context) error {
	req, err := api.svc.SendCode(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending discount code")
	}
	return ctx.JSON(http.StatusOK, req)
}
