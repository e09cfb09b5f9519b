package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rehmanpranto/QuizFlow/core"
)

var (
	pageParam    = "page"
	perPageParam = "per_page"
)

// bindPagination reads `page` and `per_page` from the query string.
func bindPagination(ctx echo.Context, defaultPerPage int) core.Pagination {
	page, _ := strconv.Atoi(ctx.QueryParam(pageParam))
	perPage, _ := strconv.Atoi(ctx.QueryParam(perPageParam))
	return core.NewPagination(page, perPage, defaultPerPage)
}

// bindID reads the integer path parameter name.
func bindID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// success wraps a successful response body.
func success(data echo.Map) echo.Map {
	if data == nil {
		data = echo.Map{}
	}
	data["success"] = true
	return data
}
