// Package pagination reads limit/offset query parameters and writes the list
// envelope shared by the patient and discharge report listings.
package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromQuery reads ?limit and ?offset. Missing or malformed values fall back
// to the defaults; limit is capped at MaxLimit.
func FromQuery(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = n
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// JSON writes one page of data with self/next/previous links built from the
// request path.
func JSON(c echo.Context, data interface{}, total int, p Params) error {
	return c.JSON(http.StatusOK, &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
		Links:   p.Links(c.Request().URL.Path, total),
	})
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) Links(path string, total int) []Link {
	links := []Link{{Relation: "self", URL: p.url(path, p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: p.url(path, p.Offset+p.Limit)})
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, Link{Relation: "previous", URL: p.url(path, prev)})
	}
	return links
}

func (p Params) url(path string, offset int) string {
	return fmt.Sprintf("%s?limit=%d&offset=%d", path, p.Limit, offset)
}
