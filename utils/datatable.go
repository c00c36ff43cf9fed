package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnknownColumn is returned for a sort or filter key outside the allow-list.
var ErrUnknownColumn = errors.New("unknown column")

const filterPrefix = "filter_"

// DataTable describes which request keys an admin listing accepts. Request
// keys are looked up in these maps and only the mapped column names ever
// reach SQL.
type DataTable struct {
	Sortable    map[string]string
	Filterable  map[string]string
	Searchable  []string
	DefaultSort string
	DefaultDesc bool
	MaxPageSize int
}

// DataTableQuery is a parsed listing request.
type DataTableQuery struct {
	Page     int
	PageSize int
	Sort     string
	Desc     bool
	Search   string
	Filters  map[string]string
}

// DataTablePage is the JSON envelope of a listing.
type DataTablePage struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// ParseDataTableQuery reads page, page_size, sort, order, search and filter_<key>.
func ParseDataTableQuery(c *fiber.Ctx) DataTableQuery {
	q := DataTableQuery{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
		Sort:     c.Query("sort"),
		Desc:     strings.EqualFold(c.Query("order"), "desc"),
		Search:   strings.TrimSpace(c.Query("search")),
		Filters:  map[string]string{},
	}
	for k, v := range c.Queries() {
		if key, ok := strings.CutPrefix(k, filterPrefix); ok && v != "" {
			q.Filters[key] = v
		}
	}
	return q
}

// Scope validates q against the table and returns the filtered, unpaginated query.
func (t DataTable) Scope(db *gorm.DB, q DataTableQuery) (*gorm.DB, error) {
	for key, value := range q.Filters {
		col, ok := t.Filterable[key]
		if !ok {
			return nil, fmt.Errorf("%w: filter %q", ErrUnknownColumn, key)
		}
		db = db.Where(clause.Eq{Column: clause.Column{Name: col}, Value: value})
	}

	if q.Search != "" && len(t.Searchable) > 0 {
		like := "%" + escapeLike(q.Search) + "%"
		exprs := make([]clause.Expression, 0, len(t.Searchable))
		for _, col := range t.Searchable {
			exprs = append(exprs, clause.Like{Column: clause.Column{Name: col}, Value: like})
		}
		db = db.Where(clause.Or(exprs...))
	}
	return db, nil
}

// Order resolves the sort key, falling back to the default sort.
func (t DataTable) Order(q DataTableQuery) (clause.OrderByColumn, error) {
	if q.Sort == "" {
		return clause.OrderByColumn{Column: clause.Column{Name: t.DefaultSort}, Desc: t.DefaultDesc}, nil
	}
	col, ok := t.Sortable[q.Sort]
	if !ok {
		return clause.OrderByColumn{}, fmt.Errorf("%w: sort %q", ErrUnknownColumn, q.Sort)
	}
	return clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Desc}, nil
}

// Fetch runs the listing into dest (a pointer to a slice).
func (t DataTable) Fetch(db *gorm.DB, q DataTableQuery, dest interface{}) (*DataTablePage, error) {
	scoped, err := t.Scope(db, q)
	if err != nil {
		return nil, err
	}
	order, err := t.Order(q)
	if err != nil {
		return nil, err
	}

	size := q.PageSize
	maxSize := t.MaxPageSize
	if maxSize <= 0 {
		maxSize = 100
	}
	if size <= 0 || size > maxSize {
		size = maxSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	var total int64
	if err := scoped.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := scoped.Order(order).Limit(size).Offset((page - 1) * size).Find(dest).Error; err != nil {
		return nil, err
	}

	return &DataTablePage{
		Data:       dest,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ParseID reads a positive numeric route parameter.
func ParseID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}
