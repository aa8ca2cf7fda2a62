// Package pagination parses limit/offset query parameters and builds list metadata.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit  = 20
	MaxLimit      = 100
	DefaultOffset = 0
)

// Params is a parsed limit/offset window
type Params struct {
	Limit  int
	Offset int
}

// Meta describes a page of a larger list
type Meta struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
	HasMore    bool  `json:"has_more"`
}

// ParseParams reads limit and offset from the query string.
// Missing or invalid values fall back to the defaults; limit is capped at MaxLimit.
func ParseParams(c *gin.Context) Params {
	params := Params{Limit: DefaultLimit, Offset: DefaultOffset}

	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		params.Limit = limit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset > 0 {
		params.Offset = offset
	}

	return params
}

// BuildMeta builds page metadata for a list of total items
func BuildMeta(limit, offset int, total int64) *Meta {
	totalPages := 0
	if limit > 0 && total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return &Meta{
		Limit:      limit,
		Offset:     offset,
		Total:      total,
		TotalPages: totalPages,
		Page:       GetCurrentPage(offset, limit),
		HasMore:    HasMore(offset, limit, total),
	}
}

// HasMore reports whether items remain after the current page
func HasMore(offset, limit int, total int64) bool {
	return int64(offset+limit) < total
}

// GetCurrentPage returns the 1-based page number for offset
func GetCurrentPage(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}

// Window returns the [start, end) bounds of params within n items
func (p Params) Window(n int) (int, int) {
	start := p.Offset
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}
