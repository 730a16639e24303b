// Package csql wraps a postgres database handle together with the schema all
// collections live in.
package csql

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq" // load database driver for postgres
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// Open opens a postgres database with a schema. An empty schema selects "public".
//
// Open does not connect. The first query does, so a wrong password surfaces there.
func Open(dataSourceName, schema string) (*DB, error) {
	if dataSourceName == "" {
		return nil, fmt.Errorf("data source name must not be empty")
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		schema = "public"
	}
	return &DB{DB: db, Schema: schema}, nil
}

// QualifiedName returns the quoted, schema qualified name of a collection
func (db *DB) QualifiedName(collection string) string {
	return pq.QuoteIdentifier(db.Schema) + "." + pq.QuoteIdentifier(collection)
}
