package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/relabs-tech/profilegate/core/supabase"
)

// DataClientProvider provides the client for the Supabase REST gateway
type DataClientProvider interface {
	DataClient() (*supabase.Client, error)
}

// RestDriver executes queries through the PostgREST API of the Supabase gateway
type RestDriver struct {
	clients DataClientProvider
	schema  string
}

// NewRestDriver returns a driver which requests clients from provider for every
// call. A schema other than "public" is selected with the profile headers.
func NewRestDriver(provider DataClientProvider, schema string) *RestDriver {
	return &RestDriver{clients: provider, schema: schema}
}

// queryBuilder builds a PostgREST query string, keeping the order of parameters
type queryBuilder []string

func (b *queryBuilder) add(key, value string) {
	*b = append(*b, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (b queryBuilder) String() string {
	return strings.Join(b, "&")
}

func projection(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	return strings.Join(columns, ",")
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (b *queryBuilder) addFilters(filters []Filter) {
	for _, f := range filters {
		if f.Value == nil {
			b.add(f.Column, "is.null")
			continue
		}
		b.add(f.Column, "eq."+formatValue(f.Value))
	}
}

func (b *queryBuilder) addOrder(orders []Order) {
	if len(orders) == 0 {
		return
	}
	clauses := make([]string, len(orders))
	for i, o := range orders {
		if o.Descending {
			clauses[i] = o.Column + ".desc"
		} else {
			clauses[i] = o.Column + ".asc"
		}
	}
	b.add("order", strings.Join(clauses, ","))
}

func (b *queryBuilder) addRange(q *Query) {
	if offset, limit, ok := q.Range(); ok {
		b.add("limit", strconv.Itoa(limit))
		if offset > 0 {
			b.add("offset", strconv.Itoa(offset))
		}
	}
}

func (d *RestDriver) do(ctx context.Context, method, collection string, qb queryBuilder, body interface{}, prefer string, result interface{}) error {
	client, err := d.clients.DataClient()
	if err != nil {
		return err
	}
	r, err := client.NewRequest(ctx, method, supabase.RestPath+"/"+url.PathEscape(collection), qb.String(), body)
	if err != nil {
		return err
	}
	r.Header.Set("Accept", "application/json")
	if prefer != "" {
		r.Header.Set("Prefer", prefer)
	}
	if d.schema != "" && d.schema != "public" {
		if method == http.MethodGet {
			r.Header.Set("Accept-Profile", d.schema)
		} else {
			r.Header.Set("Content-Profile", d.schema)
		}
	}
	return client.DoJSON(r, result)
}

// Select implements Driver
func (d *RestDriver) Select(ctx context.Context, collection string, q *Query) (Rows, error) {
	qb := queryBuilder{}
	qb.add("select", projection(q.Columns))
	qb.addFilters(q.Filters)
	qb.addOrder(q.Orders)
	qb.addRange(q)
	rows := Rows{}
	err := d.do(ctx, http.MethodGet, collection, qb, nil, "", &rows)
	return rows, err
}

func body(records []Record, batch bool) interface{} {
	if batch {
		return records
	}
	return records[0]
}

// Insert implements Driver
func (d *RestDriver) Insert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error) {
	if len(records) == 0 {
		return Rows{}, nil
	}
	qb := queryBuilder{}
	qb.add("select", projection(q.Returning))
	if batch {
		qb.add("columns", strings.Join(columnUnion(records), ","))
	}
	rows := Rows{}
	err := d.do(ctx, http.MethodPost, collection, qb, body(records, batch), "return=representation", &rows)
	return rows, err
}

// Update implements Driver
func (d *RestDriver) Update(ctx context.Context, collection string, record Record, q *Query) (Rows, error) {
	qb := queryBuilder{}
	qb.addFilters(q.Filters)
	qb.add("select", projection(q.Returning))
	rows := Rows{}
	err := d.do(ctx, http.MethodPatch, collection, qb, record, "return=representation", &rows)
	return rows, err
}

// Delete implements Driver
func (d *RestDriver) Delete(ctx context.Context, collection string, q *Query) error {
	qb := queryBuilder{}
	qb.addFilters(q.Filters)
	return d.do(ctx, http.MethodDelete, collection, qb, nil, "return=minimal", nil)
}

// Upsert implements Driver
func (d *RestDriver) Upsert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error) {
	if len(records) == 0 {
		return Rows{}, nil
	}
	qb := queryBuilder{}
	if len(q.OnConflict) > 0 {
		qb.add("on_conflict", strings.Join(q.OnConflict, ","))
	}
	qb.add("select", projection(q.Returning))
	if batch {
		qb.add("columns", strings.Join(columnUnion(records), ","))
	}
	rows := Rows{}
	err := d.do(ctx, http.MethodPost, collection, qb, body(records, batch), "resolution=merge-duplicates,return=representation", &rows)
	return rows, err
}
