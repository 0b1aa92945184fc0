// blog/pager.go
package blog

import (
	"strconv"
	"strings"
)

// PaginationData holds all the necessary info for rendering pagination
// controls.
type PaginationData struct {
	CurrentPage int
	TotalPages  int
	NextPage    int
	PrevPage    int
	HasNext     bool
	HasPrev     bool
}

// Page is one fixed-size slice of a materialized listing.
type Page struct {
	Items []Post
	Count int // total items across all pages
	PaginationData
}

// Paginate slices an ordered, materialized listing. The page parameter is
// whatever arrived on the query string: missing or non-numeric falls back
// to page 1, and a number past the end clamps to the last page. An empty
// listing still yields one (empty) page, so no request ever fails here.
func Paginate(posts []Post, pageParam string, perPage int) Page {
	if perPage < 1 {
		perPage = 1
	}
	count := len(posts)
	totalPages := (count + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}

	page, err := strconv.Atoi(strings.TrimSpace(pageParam))
	if err != nil || page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > count {
		end = count
	}

	return Page{
		Items: posts[start:end],
		Count: count,
		PaginationData: PaginationData{
			CurrentPage: page,
			TotalPages:  totalPages,
			NextPage:    page + 1,
			PrevPage:    page - 1,
			HasNext:     page < totalPages,
			HasPrev:     page > 1,
		},
	}
}
