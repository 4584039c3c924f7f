package option

import (
	"time"

	"github.com/spokeworks/chainline/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm statement before execution.
type Option interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination applies cursor pagination to a query ordered by
// (created_at desc, id desc). The query fetches one extra row so the
// caller can detect whether more pages exist.
func ApplyPagination(page pagination.Pagination) Option {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 50
	}

	if token := o.page.PageToken; token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil {
			if ts, terr := time.Parse(time.RFC3339, cursor.CreatedAt); terr == nil {
				stmt = stmt.Where(
					"(created_at < ?) OR (created_at = ? AND id < ?)",
					ts, ts, cursor.ID,
				)
			}
		}
	}

	return stmt.Limit(size + 1)
}
