package utils

import (
	"net/http"
	"strconv"

	"github.com/go-chi/render"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// PaginatedResponse is the envelope for list responses.
type PaginatedResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination extracts limit and offset from the query string, silently falling
// back to the defaults for missing or malformed values.
func ParsePagination(r *http.Request) PaginationParams {
	limit := defaultPageLimit
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}

	return PaginationParams{Limit: limit, Offset: offset}
}

func WritePage(w http.ResponseWriter, r *http.Request, items interface{}, total int64, page PaginationParams) {
	WriteJsonResponse(w, r, PaginatedResponse{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset})
}

type ErrorResponse struct {
	HTTPStatusCode int `json:"-"`

	ErrorText string `json:"error"`
	Rule      string `json:"rule,omitempty"`
}

func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// WriteError writes a json error body. rule is optional and names the policy rule
// that caused a denial.
func WriteError(w http.ResponseWriter, r *http.Request, status int, err error, rule string) {
	resp := &ErrorResponse{HTTPStatusCode: status, ErrorText: err.Error(), Rule: rule}
	if renderErr := render.Render(w, r, resp); renderErr != nil {
		http.Error(w, err.Error(), status)
	}
}
