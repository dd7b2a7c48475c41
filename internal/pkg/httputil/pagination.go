package httputil

import (
	"errors"
	"net/http"
	"strconv"
)

// Pagination parsing errors.
var (
	ErrInvalidLimit  = errors.New("limit must be a positive integer")
	ErrInvalidOffset = errors.New("offset must be a non-negative integer")
)

// Page holds offset/limit query parameters.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ParsePage reads "offset" (alias "skip") and "limit" from the query string.
// Limit defaults to defaultLimit and is capped at maxLimit.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) (Page, error) {
	page := Page{Limit: defaultLimit}
	q := r.URL.Query()

	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return Page{}, ErrInvalidLimit
		}
		page.Limit = min(parsed, maxLimit)
	}

	o := q.Get("offset")
	if o == "" {
		o = q.Get("skip")
	}
	if o != "" {
		parsed, err := strconv.Atoi(o)
		if err != nil || parsed < 0 {
			return Page{}, ErrInvalidOffset
		}
		page.Offset = parsed
	}

	return page, nil
}
