package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func NewPagination(page, perPage int, total int64) Pagination {
	page, perPage = NormalizePage(page, perPage)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + int64(perPage) - 1) / int64(perPage),
	}
}

// PageParams reads page and per_page from the query string. Missing or bad
// values fall back to defaults and per_page is capped at MaxPerPage.
func PageParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.Query("page"))
	perPage, _ = strconv.Atoi(c.Query("per_page"))
	return NormalizePage(page, perPage)
}

// Offset is the row offset of the first item on page.
func Offset(page, perPage int) int {
	page, perPage = NormalizePage(page, perPage)
	return (page - 1) * perPage
}

func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
