package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	StatusFilterAll = "All"
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ListQuery struct {
	SearchText   string `json:"search"`
	StatusFilter string `json:"status"`
	Page         int    `json:"page"`
	PageSize     int    `json:"limit"`
}

// FilterSignature is a ListQuery without its page. Two queries with equal
// signatures address the same result set.
type FilterSignature struct {
	SearchText   string
	StatusFilter string
	PageSize     int
}

func (q ListQuery) Signature() FilterSignature {
	n := q.Normalize()
	return FilterSignature{
		SearchText:   n.SearchText,
		StatusFilter: n.StatusFilter,
		PageSize:     n.PageSize,
	}
}

// Normalize trims and NFC-normalizes the search text, maps the "All" status
// filter to empty and clamps page and page size.
func (q ListQuery) Normalize() ListQuery {
	q.SearchText = NormalizeSearch(q.SearchText)
	q.StatusFilter = NormalizeStatusFilter(q.StatusFilter)
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize < 1:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q
}

func (q ListQuery) WithPage(page int) ListQuery {
	q.Page = page
	return q
}

func (q ListQuery) SameFilter(other ListQuery) bool {
	return q.Signature() == other.Signature()
}

func NormalizeSearch(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}

func NormalizeStatusFilter(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, StatusFilterAll) {
		return ""
	}
	return v
}
