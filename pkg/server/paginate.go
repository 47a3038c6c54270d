package server

import (
	"net/url"
	"strconv"
)

const (
	defaultPerPage = 5
	maxPerPage     = 50
)

// pagination is a window over a ranked list.
type pagination struct {
	Page    int
	PerPage int
	Pages   int
	Total   int
	Start   int
	End     int
}

// paginate clamps page and perPage and returns the slice bounds. Pages are
// 1-based; a page past the end selects the last page.
func paginate(total, page, perPage, fallback int) pagination {
	if perPage <= 0 {
		perPage = fallback
	}
	perPage = min(perPage, maxPerPage)

	pages := (total + perPage - 1) / perPage
	page = min(max(page, 1), max(pages, 1))

	start := min((page-1)*perPage, total)
	return pagination{
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
		Total:   total,
		Start:   start,
		End:     min(start+perPage, total),
	}
}

func (p pagination) links(query string) []pageLink {
	if p.Pages <= 1 {
		return nil
	}
	links := make([]pageLink, 0, p.Pages)
	for n := 1; n <= p.Pages; n++ {
		v := url.Values{
			"query":    {query},
			"page":     {strconv.Itoa(n)},
			"per_page": {strconv.Itoa(p.PerPage)},
		}
		links = append(links, pageLink{Number: n, URL: "/?" + v.Encode(), Current: n == p.Page})
	}
	return links
}

// atoi parses a form value, returning 0 for anything that is not an integer.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
