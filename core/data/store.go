/*
Package data provides generic access to the collections of the database.

A Store executes select, insert, update, delete and upsert against named
collections. Filters, projection, sort and pagination are passed as options:

	rows, err := store.Select(ctx, "user_profile",
		data.Columns("id", "name"),
		data.Eq("name", "jane"),
		data.OrderBy("name"),
		data.Limit(20))

Every call sends exactly one request to the backend and is never retried. Errors
are *errs.Error of kind data access, naming the collection. Failures reported by the
backend read "failed to <operation> <collection>", everything else reads
"unexpected error". The cause is kept for logging only. Missing credentials are
passed on as configuration errors.

The actual requests are made by a Driver. NewRestDriver talks to PostgREST,
NewPostgresDriver talks SQL to the database directly.
*/
package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/relabs-tech/profilegate/core"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
)

// UsersCollection is the collection of registered users
const UsersCollection = "users"

// ErrEmptyFilter is the cause of update and delete calls without filter
var ErrEmptyFilter = errors.New("update and delete require at least one filter")

// Driver executes queries against one kind of backend. Drivers return
// *errs.BackendError for failures reported by the backend.
type Driver interface {
	Select(ctx context.Context, collection string, q *Query) (Rows, error)
	Insert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error)
	Update(ctx context.Context, collection string, record Record, q *Query) (Rows, error)
	Delete(ctx context.Context, collection string, q *Query) error
	Upsert(ctx context.Context, collection string, records []Record, batch bool, q *Query) (Rows, error)
}

// Store is the data access layer
type Store struct {
	driver Driver
}

// New returns a store which executes its operations with driver
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Select returns the rows of collection which match all filters
func (s *Store) Select(ctx context.Context, collection string, options ...Option) (Rows, error) {
	q := NewQuery(options...)
	rows, err := s.driver.Select(ctx, collection, q)
	if err != nil {
		return nil, s.translate(ctx, core.OperationSelect, collection, err)
	}
	logger.FromContext(ctx).Infof("selected %d rows from %s", len(rows), collection)
	return rows, nil
}

// Insert inserts a single Record or a batch of Records and returns the inserted rows
func (s *Store) Insert(ctx context.Context, collection string, payload Payload, options ...Option) (Rows, error) {
	q := NewQuery(options...)
	rows, err := s.driver.Insert(ctx, collection, payload.records(), payload.batch(), q)
	if err != nil {
		return nil, s.translate(ctx, core.OperationInsert, collection, err)
	}
	logger.FromContext(ctx).Infof("inserted %d rows into %s", len(rows), collection)
	return rows, nil
}

// Update updates all rows of collection which match the filters and returns them. At
// least one filter is required.
func (s *Store) Update(ctx context.Context, collection string, record Record, options ...Option) (Rows, error) {
	q := NewQuery(options...)
	if len(q.Filters) == 0 {
		return nil, s.refuse(ctx, core.OperationUpdate, collection)
	}
	rows, err := s.driver.Update(ctx, collection, record, q)
	if err != nil {
		return nil, s.translate(ctx, core.OperationUpdate, collection, err)
	}
	logger.FromContext(ctx).Infof("updated %d rows in %s", len(rows), collection)
	return rows, nil
}

// Delete deletes all rows of collection which match the filters. At least one filter
// is required. Deleting no rows at all is a success.
func (s *Store) Delete(ctx context.Context, collection string, options ...Option) (bool, error) {
	q := NewQuery(options...)
	if len(q.Filters) == 0 {
		return false, s.refuse(ctx, core.OperationDelete, collection)
	}
	if err := s.driver.Delete(ctx, collection, q); err != nil {
		return false, s.translate(ctx, core.OperationDelete, collection, err)
	}
	logger.FromContext(ctx).Infof("deleted from %s", collection)
	return true, nil
}

// Upsert inserts or updates a single Record or a batch of Records. Without OnConflict
// the primary key decides about conflicts.
func (s *Store) Upsert(ctx context.Context, collection string, payload Payload, options ...Option) (Rows, error) {
	q := NewQuery(options...)
	rows, err := s.driver.Upsert(ctx, collection, payload.records(), payload.batch(), q)
	if err != nil {
		return nil, s.translate(ctx, core.OperationUpsert, collection, err)
	}
	logger.FromContext(ctx).Infof("upserted %d rows into %s", len(rows), collection)
	return rows, nil
}

// CheckUserExists returns true if there is a user with userID. A failing select
// counts as "does not exist", the error has been logged by Select.
func (s *Store) CheckUserExists(ctx context.Context, userID string) bool {
	rows, err := s.Select(ctx, UsersCollection, Columns("id"), Eq("id", userID), Limit(1))
	if err != nil {
		return false
	}
	return len(rows) > 0
}

func (s *Store) refuse(ctx context.Context, operation core.Operation, collection string) error {
	logger.FromContext(ctx).Errorf("refusing to %s %s without filter", operation, collection)
	return errs.DataAccess(collection, fmt.Sprintf("failed to %s %s: filter required", operation, collection), ErrEmptyFilter)
}

func (s *Store) translate(ctx context.Context, operation core.Operation, collection string, err error) error {
	rlog := logger.FromContext(ctx).WithError(err)
	if errors.Is(err, errs.ErrConfiguration) {
		rlog.Errorf("cannot %s %s", operation, collection)
		return err
	}
	if errs.IsBackendError(err) {
		rlog.Errorf("failed to %s %s", operation, collection)
		return errs.DataAccess(collection, fmt.Sprintf("failed to %s %s", operation, collection), err)
	}
	rlog.Errorf("unexpected error on %s %s", operation, collection)
	return errs.DataAccess(collection, "unexpected error", err)
}
