package rowquery

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes page counts for total items. Page and size below 1
// are treated as 1.
func NewPagination(total, page, size int) Pagination {
	if size < 1 {
		size = 1
	}
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	return Pagination{
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}
}

// Offset is the number of items before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Bounds returns the slice bounds of the page within TotalItems items.
// Pages past the end yield an empty range.
func (p Pagination) Bounds() (start, end int) {
	start = min(p.Offset(), p.TotalItems)
	end = min(start+p.PageSize, p.TotalItems)
	return start, end
}
