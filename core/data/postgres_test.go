package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/profilegate/core/csql"
	"github.com/relabs-tech/profilegate/core/errs"
)

type databaseProvider struct {
	db *csql.DB
}

func (p *databaseProvider) Database() (*csql.DB, error) {
	return p.db, nil
}

type PostgresDriverTestSuite struct {
	suite.Suite
	container testcontainers.Container
	db        *csql.DB
	store     *Store
}

// use PROFILEGATE_INTEGRATION=1 to run against a postgres container
func TestPostgresDriver(t *testing.T) {
	if os.Getenv("PROFILEGATE_INTEGRATION") == "" {
		t.Skip("set PROFILEGATE_INTEGRATION to run the postgres integration tests")
	}
	suite.Run(t, new(PostgresDriverTestSuite))
}

func (s *PostgresDriverTestSuite) SetupSuite() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.db, err = csql.Open(fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port()), "public")
	s.Require().NoError(err)

	_, err = s.db.Exec(`CREATE TABLE user_profile (
		id varchar(36) PRIMARY KEY,
		name varchar(50) NOT NULL UNIQUE,
		avatar varchar(255)
	);
	CREATE TABLE users (id varchar(36) PRIMARY KEY);`)
	s.Require().NoError(err)

	s.store = New(NewPostgresDriver(&databaseProvider{db: s.db}))
}

func (s *PostgresDriverTestSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *PostgresDriverTestSuite) SetupTest() {
	_, err := s.db.Exec("TRUNCATE user_profile, users;")
	s.Require().NoError(err)
}

func (s *PostgresDriverTestSuite) TestInsertSelect() {
	ctx := context.Background()

	rows, err := s.store.Insert(ctx, "user_profile", Record{"id": "1", "name": "jane"})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("jane", rows[0]["name"])
	s.Nil(rows[0]["avatar"])

	rows, err = s.store.Insert(ctx, "user_profile", Records{
		{"id": "2", "name": "joe", "avatar": "a.png"},
		{"id": "3", "name": "ann"},
	}, Returning("id"))
	s.Require().NoError(err)
	s.Equal(Rows{{"id": "2"}, {"id": "3"}}, rows)

	rows, err = s.store.Select(ctx, "user_profile", Columns("name"), OrderBy("name"))
	s.Require().NoError(err)
	s.Equal(Rows{{"name": "ann"}, {"name": "jane"}, {"name": "joe"}}, rows)

	rows, err = s.store.Select(ctx, "user_profile", Columns("id"), OrderByDesc("id"), Offset(1))
	s.Require().NoError(err)
	s.Equal(Rows{{"id": "2"}, {"id": "1"}}, rows)

	rows, err = s.store.Select(ctx, "user_profile", Eq("avatar", nil), OrderBy("id"), Limit(1))
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("1", rows[0]["id"])
}

func (s *PostgresDriverTestSuite) TestUpdateDeleteUpsert() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, "user_profile", Record{"id": "1", "name": "jane"})
	s.Require().NoError(err)

	rows, err := s.store.Update(ctx, "user_profile", Record{"avatar": "x.png"}, Eq("id", "1"))
	s.Require().NoError(err)
	s.Equal("x.png", rows[0]["avatar"])

	rows, err = s.store.Upsert(ctx, "user_profile", Record{"id": "1", "name": "janet"})
	s.Require().NoError(err)
	s.Equal("janet", rows[0]["name"])

	rows, err = s.store.Upsert(ctx, "user_profile", Record{"id": "9", "name": "janet"}, OnConflict("name"))
	s.Require().NoError(err)
	s.Equal("9", rows[0]["id"])

	ok, err := s.store.Delete(ctx, "user_profile", Eq("id", "nope"))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.Delete(ctx, "user_profile", Eq("id", "9"))
	s.Require().NoError(err)
	s.True(ok)
	rows, err = s.store.Select(ctx, "user_profile")
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *PostgresDriverTestSuite) TestErrors() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, "user_profile", Record{"id": "1", "name": "jane"})
	s.Require().NoError(err)

	_, err = s.store.Insert(ctx, "user_profile", Record{"id": "2", "name": "jane"})
	s.True(errors.Is(err, errs.ErrDataAccess))
	s.Equal("failed to insert user_profile", err.Error())
	var be *errs.BackendError
	s.Require().True(errors.As(err, &be))
	s.Equal("23505", be.Code)
	s.Equal(http.StatusConflict, be.Status)

	_, err = s.store.Select(ctx, "does_not_exist")
	s.Equal("failed to select does_not_exist", err.Error())
}

func (s *PostgresDriverTestSuite) TestCheckUserExists() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, UsersCollection, Record{"id": "u1"})
	s.Require().NoError(err)

	s.True(s.store.CheckUserExists(ctx, "u1"))
	s.False(s.store.CheckUserExists(ctx, "u2"))
}
