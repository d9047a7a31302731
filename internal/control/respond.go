package control

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Default and maximum page sizes for list endpoints.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type listResponse struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrUnknownJob),
		errors.Is(err, model.ErrUnknownBucket):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrConfigurationMissing):
		return http.StatusNotFound, "configuration_missing"
	case errors.Is(err, model.ErrJobBusy):
		return http.StatusConflict, "job_busy"
	case errors.Is(err, model.ErrRateLimitTimeout):
		return http.StatusTooManyRequests, "rate_limit_timeout"
	case errors.Is(err, model.ErrExternalAPI):
		return http.StatusBadGateway, "external_api_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("control request error", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: err.Error()})
}

func badRequest(c *gin.Context, field, reason string) {
	err := model.NewValidationError(field, reason)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()})
}

func respondData(c *gin.Context, status int, data any, message string) {
	c.JSON(status, dataResponse{Data: data, Message: message})
}

func respondList(c *gin.Context, items any, total, page, pageSize int) {
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "id", "must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads page and page_size. Zero values select the defaults.
func pageParams(c *gin.Context) (page, pageSize int, ok bool) {
	var err error
	if s := c.Query("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			badRequest(c, "page", "must be a positive integer")
			return 0, 0, false
		}
	}
	if s := c.Query("page_size"); s != "" {
		if pageSize, err = strconv.Atoi(s); err != nil || pageSize < 1 {
			badRequest(c, "page_size", "must be a positive integer")
			return 0, 0, false
		}
	}
	if page > math.MaxInt/effectivePageSize(pageSize) {
		badRequest(c, "page", "is too large")
		return 0, 0, false
	}
	return page, pageSize, true
}

func effectivePageSize(pageSize int) int {
	if pageSize == 0 {
		return defaultPageSize
	}
	return min(pageSize, maxPageSize)
}

// paginate slices an in-memory list.
func paginate[T any](items []T, page, pageSize int) ([]T, int, int) {
	if page == 0 {
		page = 1
	}
	pageSize = effectivePageSize(pageSize)
	// Compare page counts rather than offsets so a huge page cannot overflow.
	if page-1 >= (len(items)+pageSize-1)/pageSize {
		return []T{}, page, pageSize
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	return items[start:end], page, pageSize
}
