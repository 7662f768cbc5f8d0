package models

type Pagination struct {
	Page  int64 `json:"page"`
	Limit int64 `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func NewPagination(page, limit, total int64) Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// maxSkip bounds the offset handed to the store.
const maxSkip = 1 << 31

// PageParams clamps page and limit and returns the offset to skip.
func PageParams(page, limit, defaultLimit, maxLimit int64) (int64, int64, int64) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if limit > maxSkip {
		limit = maxSkip
	}
	if limit > 0 && page-1 > maxSkip/limit {
		page = maxSkip/limit + 1
	}
	return page, limit, (page - 1) * limit
}
