package data

import "sort"

// DefaultPageSize is the page size assumed for an offset without limit
const DefaultPageSize = 10

// Row is one row of a result set, mapping column names to values. Being a map, it
// does not keep the order of the requested projection. Use Values for that.
type Row map[string]interface{}

// Values returns the values of columns in the given order, typically the columns of
// the query. Columns missing in the row yield nil.
func (r Row) Values(columns ...string) []interface{} {
	values := make([]interface{}, len(columns))
	for i, column := range columns {
		values[i] = r[column]
	}
	return values
}

// Rows is the result set of an operation, in the order reported by the backend
type Rows []Row

// Filter is an equality predicate on a column. A nil value matches NULL.
type Filter struct {
	Column string
	Value  interface{}
}

// Order is a sort clause
type Order struct {
	Column     string
	Descending bool
}

// Query describes the filters, projection, sort and pagination of one operation.
// It is built from options by every Store call and used exactly once.
type Query struct {
	// Columns is the projection of a select. Empty means all columns.
	Columns []string
	// Filters are ANDed, in the order they were added
	Filters []Filter
	Orders  []Order
	// Limit and Offset are unset when zero
	Limit  int
	Offset int
	// Returning is the projection of the rows returned by a write. Empty means all columns.
	Returning []string
	// OnConflict are the conflict columns of an upsert. Empty means the primary key.
	OnConflict []string
}

// Option configures a Query
type Option func(*Query)

// NewQuery returns a query with all options applied
func NewQuery(options ...Option) *Query {
	q := &Query{}
	for _, o := range options {
		o(q)
	}
	return q
}

// Columns selects the columns of a select
func Columns(columns ...string) Option {
	return func(q *Query) {
		q.Columns = append(q.Columns, columns...)
	}
}

// Eq adds the filter column = value
func Eq(column string, value interface{}) Option {
	return func(q *Query) {
		q.Filters = append(q.Filters, Filter{Column: column, Value: value})
	}
}

// Match adds one equality filter per entry of filters. The filters are added in
// sorted column order, so the resulting request does not depend on map iteration.
func Match(filters map[string]interface{}) Option {
	return func(q *Query) {
		columns := make([]string, 0, len(filters))
		for column := range filters {
			columns = append(columns, column)
		}
		sort.Strings(columns)
		for _, column := range columns {
			q.Filters = append(q.Filters, Filter{Column: column, Value: filters[column]})
		}
	}
}

// OrderBy sorts ascending by column
func OrderBy(column string) Option {
	return func(q *Query) {
		q.Orders = append(q.Orders, Order{Column: column})
	}
}

// OrderByDesc sorts descending by column
func OrderByDesc(column string) Option {
	return func(q *Query) {
		q.Orders = append(q.Orders, Order{Column: column, Descending: true})
	}
}

// Limit sets the maximum number of rows
func Limit(limit int) Option {
	return func(q *Query) {
		q.Limit = limit
	}
}

// Offset skips the first offset rows
func Offset(offset int) Option {
	return func(q *Query) {
		q.Offset = offset
	}
}

// Returning selects the columns of the rows returned by insert, update and upsert
func Returning(columns ...string) Option {
	return func(q *Query) {
		q.Returning = append(q.Returning, columns...)
	}
}

// OnConflict sets the conflict columns of an upsert
func OnConflict(columns ...string) Option {
	return func(q *Query) {
		q.OnConflict = append(q.OnConflict, columns...)
	}
}

// Range returns the pagination of the query as number of rows to skip and maximum
// number of rows. An offset without limit is bounded by DefaultPageSize. ok is false
// if the query is not paginated.
func (q *Query) Range() (offset, limit int, ok bool) {
	switch {
	case q.Limit > 0:
		offset = q.Offset
		if offset < 0 {
			offset = 0
		}
		return offset, q.Limit, true
	case q.Offset > 0:
		return q.Offset, DefaultPageSize, true
	default:
		return 0, 0, false
	}
}

// Record is one record to be written
type Record map[string]interface{}

// Records is a batch of records, written with one request
type Records []Record

// Payload is the data of insert and upsert, either a Record or Records
type Payload interface {
	records() []Record
	batch() bool
}

func (r Record) records() []Record { return []Record{r} }
func (r Record) batch() bool       { return false }

func (r Records) records() []Record { return r }
func (r Records) batch() bool       { return true }
