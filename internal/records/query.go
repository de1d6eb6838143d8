package records

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ListQuery selects a page of records. Filters match columns for equality;
// a comma separated value matches any of its parts. Sort names a column,
// prefixed with "-" for descending order.
type ListQuery struct {
	Search  string
	Filters map[string]string
	Sort    string
	Limit   int
	Offset  int
}

var reservedParams = map[string]bool{"q": true, "sort": true, "limit": true, "offset": true}

// ParseListQuery reads q, sort, limit and offset from values; every other
// parameter becomes a filter.
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := ListQuery{
		Search:  strings.TrimSpace(values.Get("q")),
		Sort:    values.Get("sort"),
		Filters: map[string]string{},
	}

	var err error
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("%w: limit must be an integer", ErrInvalid)
		}
	}
	if v := values.Get("offset"); v != "" {
		if q.Offset, err = strconv.Atoi(v); err != nil {
			return q, fmt.Errorf("%w: offset must be an integer", ErrInvalid)
		}
	}

	for key, vals := range values {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		q.Filters[key] = strings.Join(vals, ",")
	}
	return q, q.normalize()
}

func (q *ListQuery) normalize() error {
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", ErrInvalid)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
