// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/profilegate/core/csql"
	"github.com/relabs-tech/profilegate/core/errs"
)

// DatabaseProvider provides the postgres database
type DatabaseProvider interface {
	Database() (*csql.DB, error)
}

// PostgresDriver executes queries as SQL directly against the postgres database
// behind the Supabase gateway.
type PostgresDriver struct {
	databases DatabaseProvider
}

// NewPostgresDriver returns a driver which requests the database from provider for
// every call
func NewPostgresDriver(provider DatabaseProvider) *PostgresDriver {
	return &PostgresDriver{databases: provider}
}

// statement collects SQL text and its positional parameters
type statement struct {
	strings.Builder
	args []interface{}
}

// param adds value as next parameter and returns its placeholder
func (s *statement) param(value interface{}) string {
	s.args = append(s.args, sqlValue(value))
	return fmt.Sprintf("$%d", len(s.args))
}

// sqlValue encodes maps and slices as JSON for json and jsonb columns
func sqlValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}, []interface{}, Record:
		j, err := json.Marshal(v)
		if err != nil {
			return value
		}
		return string(j)
	default:
		return value
	}
}

func quoteColumns(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if c == "*" {
			quoted[i] = c
		} else {
			quoted[i] = pq.QuoteIdentifier(c)
		}
	}
	return strings.Join(quoted, ", ")
}

func (s *statement) where(filters []Filter) {
	for i, f := range filters {
		if i == 0 {
			s.WriteString(" WHERE ")
		} else {
			s.WriteString(" AND ")
		}
		if f.Value == nil {
			s.WriteString(pq.QuoteIdentifier(f.Column) + " IS NULL")
			continue
		}
		s.WriteString(pq.QuoteIdentifier(f.Column) + " = " + s.param(f.Value))
	}
}

func (s *statement) returning(columns []string) {
	s.WriteString(" RETURNING " + quoteColumns(columns))
}

// columnUnion returns the sorted union of the columns of all records
func columnUnion(records []Record) []string {
	seen := map[string]bool{}
	columns := []string{}
	for _, r := range records {
		for c := range r {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// values writes the VALUES clause. Columns missing in a record get their default.
func (s *statement) values(columns []string, records []Record) {
	s.WriteString(" VALUES ")
	for i, r := range records {
		if i > 0 {
			s.WriteString(", ")
		}
		s.WriteString("(")
		for j, c := range columns {
			if j > 0 {
				s.WriteString(", ")
			}
			if v, ok := r[c]; ok {
				s.WriteString(s.param(v))
			} else {
				s.WriteString("DEFAULT")
			}
		}
		s.WriteString(")")
	}
}

func (d *PostgresDriver) query(ctx context.Context, s *statement) (Rows, error) {
	db, err := d.databases.Database()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.String(), s.args...)
	if err != nil {
		return nil, backendError(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) (Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := Rows{}
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError(err)
	}
	return result, nil
}

// Select implements Driver
func (d *PostgresDriver) Select(ctx context.Context, collection string, q *Query) (Rows, error) {
	db, err := d.databases.Database()
	if err != nil {
		return nil, err
	}
	s := &statement{}
	s.WriteString("SELECT " + quoteColumns(q.Columns) + " FROM " + db.QualifiedName(collection))
	s.where(q.Filters)
	for i, o := range q.Orders {
		if i == 0 {
			s.WriteString(" ORDER BY ")
		} else {
			s.WriteString(", ")
		}
		s.WriteString(pq.QuoteIdentifier(o.Column))
		if o.Descending {
			s.WriteString(" DESC")
		} else {
			s.WriteString(" ASC")
		}
	}
	if offset, limit, ok := q.Range(); ok {
		s.WriteString(" LIMIT " + s.param(limit) + " OFFSET " + s.param(offset))
	}
	return d.query(ctx, s)
}

func (d *PostgresDriver) insert(ctx context.Context, collection string, records []Record, q *Query, upsert bool) (Rows, error) {
	if len(records) == 0 {
		return Rows{}, nil
	}
	db, err := d.databases.Database()
	if err != nil {
		return nil, err
	}
	columns := columnUnion(records)
	s := &statement{}
	s.WriteString("INSERT INTO " + db.QualifiedName(collection))
	if len(columns) == 0 {
		s.WriteString(" DEFAULT VALUES")
	} else {
		s.WriteString(" (" + quoteColumns(columns) + ")")
		s.values(columns, records)
	}
	if upsert && len(columns) > 0 {
		if len(q.OnConflict) > 0 {
			s.WriteString(" ON CONFLICT (" + quoteColumns(q.OnConflict) + ")")
		} else {
			s.WriteString(" ON CONFLICT ON CONSTRAINT " + pq.QuoteIdentifier(collection+"_pkey"))
		}
		s.WriteString(" DO UPDATE SET ")
		for i, c := range columns {
			if i > 0 {
				s.WriteString(", ")
			}
			s.WriteString(pq.QuoteIdentifier(c) + " = EXCLUDED." + pq.QuoteIdentifier(c))
		}
	}
	s.returning(q.Returning)
	return d.query(ctx, s)
}

// Insert implements Driver
func (d *PostgresDriver) Insert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error) {
	return d.insert(ctx, collection, records, q, false)
}

// Upsert implements Driver
func (d *PostgresDriver) Upsert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error) {
	return d.insert(ctx, collection, records, q, true)
}

// Update implements Driver
func (d *PostgresDriver) Update(ctx context.Context, collection string, record Record, q *Query) (Rows, error) {
	db, err := d.databases.Database()
	if err != nil {
		return nil, err
	}
	columns := columnUnion([]Record{record})
	if len(columns) == 0 {
		return nil, fmt.Errorf("nothing to update")
	}
	s := &statement{}
	s.WriteString("UPDATE " + db.QualifiedName(collection) + " SET ")
	for i, c := range columns {
		if i > 0 {
			s.WriteString(", ")
		}
		s.WriteString(pq.QuoteIdentifier(c) + " = " + s.param(record[c]))
	}
	s.where(q.Filters)
	s.returning(q.Returning)
	return d.query(ctx, s)
}

// Delete implements Driver
func (d *PostgresDriver) Delete(ctx context.Context, collection string, q *Query) error {
	db, err := d.databases.Database()
	if err != nil {
		return err
	}
	s := &statement{}
	s.WriteString("DELETE FROM " + db.QualifiedName(collection))
	s.where(q.Filters)
	if _, err := db.ExecContext(ctx, s.String(), s.args...); err != nil {
		return backendError(err)
	}
	return nil
}

// backendError turns errors reported by postgres into *errs.BackendError, with the
// status PostgREST would have answered. Other errors are returned unchanged.
func backendError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	status := http.StatusBadRequest
	switch pqErr.Code {
	case "23505", "23503":
		status = http.StatusConflict
	case "42P01", "42883":
		status = http.StatusNotFound
	case "42501":
		status = http.StatusForbidden
	}
	if pqErr.Code.Class() == "08" {
		status = http.StatusServiceUnavailable
	}
	return &errs.BackendError{
		Status:  status,
		Code:    string(pqErr.Code),
		Message: pqErr.Message,
		Details: pqErr.Detail,
		Hint:    pqErr.Hint,
	}
}
