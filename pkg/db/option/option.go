package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/purchasesync/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption decorates a statement built by a repository.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single column comparison. Field must come from code,
// never from request input.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		op := cond.Operator
		if op == "" {
			op = EQ
		}
		if op == IN {
			return db.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		}
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, op), cond.Value)
	})
}

// QuerySortBy orders by a whitelisted column.
type QuerySortBy struct {
	Allow map[string]bool
	By    string
	Desc  bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		by := strings.TrimSpace(sort.By)
		if by == "" || !sort.Allow[by] {
			return db
		}
		dir := "asc"
		if sort.Desc {
			dir = "desc"
		}
		return db.Order(by + " " + dir)
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination pages by descending id using a keyset cursor. One extra
// row is fetched so pagination.Page can tell whether more remain.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err != nil {
				_ = db.AddError(err)
				return db
			}
			db = db.Where("id < ?", cursor.ID)
		}
		return db.Order("id desc").Limit(page.Size() + 1)
	})
}
