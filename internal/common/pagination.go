package common

import (
	"net/http"
	"strconv"
)

// maxPerPage keeps a single page from returning an unbounded list.
const maxPerPage = 100

// Pagination is the metadata block attached to paginated list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
}

// ParsePagination reads the page and limit query parameters. Missing or
// nonsense values fall back to page 1 and defaultPerPage; limit is clamped.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		perPage = l
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
