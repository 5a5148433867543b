package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/freetutor/freetutor/core/matching"
)

// RequestFilter binds the browse query params.
type RequestFilter struct {
	Filter matching.QueryFilter
}

func (f *RequestFilter) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	if val, ok := data["status"]; ok && len(val) > 0 {
		f.Filter.Status = matching.RequestStatus(strings.ToUpper(strings.TrimSpace(val[0])))
	}
	if val, ok := data["subject"]; ok && len(val) > 0 {
		f.Filter.Subject = strings.TrimSpace(val[0])
	}
	if val, ok := data["gradeLevel"]; ok && len(val) > 0 {
		f.Filter.GradeLevel = strings.TrimSpace(val[0])
	}
}
