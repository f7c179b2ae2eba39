package market

const (
	// DefaultPageLimit is used when a filter carries no limit
	DefaultPageLimit = 10
	// MaxPageLimit caps the page size of list queries
	MaxPageLimit = 100
)

// NormalizePage clamps offset and limit to sane values
func NormalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return offset, limit
}

// TotalPages returns the number of pages needed for total items
func TotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
