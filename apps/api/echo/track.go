package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
)

// trackingPixel is a transparent 1x1 GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type trackApi struct {
	svc  *notification.Service
	conf *core.Config
}

func registerTrackingAPI(g *echo.Group, opts *Options) {
	api := trackApi{svc: opts.NotificationSvc, conf: opts.Conf}

	tg := g.Group("/track")
	tg.GET("/open/:id", api.open)
	tg.GET("/click/:id", api.click)
}

// open serves the email tracking pixel. Failures are swallowed; a broken
// image in someone's inbox helps no one.
func (api *trackApi) open(ctx echo.Context) error {
	if err := api.svc.MarkOpened(ctx.Request().Context(), ctx.Param("id")); err != nil {
		ctx.Logger().Warnf("%+v", errors.Wrap(err, "recording email open"))
	}
	ctx.Response().Header().Set("Cache-Control", "no-store")
	return ctx.Blob(http.StatusOK, "image/gif", trackingPixel)
}

// click records the click then bounces to the requested frontend page.
// Only same-site targets are honored.
func (api *trackApi) click(ctx echo.Context) error {
	if err := api.svc.MarkClicked(ctx.Request().Context(), ctx.Param("id")); err != nil {
		ctx.Logger().Warnf("%+v", errors.Wrap(err, "recording email click"))
	}

	target := ctx.QueryParam("url")
	if target == "" || !strings.HasPrefix(target, api.conf.FrontendBaseURL) {
		target = api.conf.FrontendBaseURL
	}
	return ctx.Redirect(http.StatusFound, target)
}
