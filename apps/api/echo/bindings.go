package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/intellibus/aimasterclass/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Pagination reads page/pageSize query params; page is 1-based.
type Pagination struct {
	Page     int
	PageSize int
}

func (p *Pagination) Bind(ctx echo.Context) {
	p.Page = 1
	p.PageSize = defaultPageSize

	if v, err := strconv.Atoi(ctx.QueryParam("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(ctx.QueryParam("pageSize")); err == nil && v > 0 {
		p.PageSize = v
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

func (p Pagination) Limit() int  { return p.PageSize }
func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// PagedResponse wraps list endpoints with the unpaged total.
type PagedResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func newPagedResponse(items interface{}, total int, p Pagination) PagedResponse {
	return PagedResponse{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}
}
