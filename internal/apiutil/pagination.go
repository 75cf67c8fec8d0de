package apiutil

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/aristath/minerva/internal/domain"
)

// Paginator parses pagination parameters and renders pages.
type Paginator struct {
	DefaultSize int
	MaxSize     int
}

// Parse reads page, page_size, search and ordering from the query string.
func (p Paginator) Parse(r *http.Request) (domain.ListParams, error) {
	q := r.URL.Query()
	params := domain.ListParams{
		Page:     1,
		PageSize: p.DefaultSize,
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if params.PageSize <= 0 {
		params.PageSize = 10
	}

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return params, domain.NotFoundf("Invalid page.")
		}
		params.Page = n
	}
	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n > 0 {
			params.PageSize = n
		}
	}
	if p.MaxSize > 0 && params.PageSize > p.MaxSize {
		params.PageSize = p.MaxSize
	}
	return params, nil
}

// Page is the paginated list envelope.
type Page struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

// NewPage builds the envelope with next/previous links derived from r.
func NewPage(r *http.Request, params domain.ListParams, total int, results interface{}) Page {
	page := Page{Count: total, Results: results}
	if params.Page*params.PageSize < total {
		link := pageLink(r, params.Page+1)
		page.Next = &link
	}
	if params.Page > 1 {
		link := pageLink(r, params.Page-1)
		page.Previous = &link
	}
	return page
}

func pageLink(r *http.Request, page int) string {
	u := url.URL{Path: r.URL.Path}
	if r.Host != "" {
		u.Host = r.Host
		u.Scheme = "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			u.Scheme = "https"
		}
	}
	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
