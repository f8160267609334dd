package api

import (
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps a list page. HasMore is a hint: a full page
// means another request may return rows.
type PaginatedResponse struct {
	Data       any            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// ParsePagination extracts page and limit from query params with defaults.
// maxLimit caps the maximum allowed limit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// NewPaginatedResponse builds a PaginatedResponse from a page of n rows.
func NewPaginatedResponse(data any, params PaginationParams, n int) PaginatedResponse {
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:    params.Page,
			Limit:   params.Limit,
			HasMore: n == params.Limit,
		},
	}
}
