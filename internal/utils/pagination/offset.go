package pagination

// Page is a normalised limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps client supplied paging input.
//
// Behavior:
//   - limit <= 0 → def; limit > max → max (max <= 0 disables the cap).
//   - offset < 0 → 0. A negative offset is tolerated, never an error.
func Normalize(limit, offset, def, max int) Page {
	if def <= 0 {
		def = 20
	}
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// HasMore reports whether rows exist past the page that returned n rows.
func (p Page) HasMore(n int, total int64) bool {
	return int64(p.Offset+n) < total
}
