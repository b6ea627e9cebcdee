package pgcheck

import (
	"context"
	"net"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, dephealth.TypePostgres, New().Kind())
}

func TestCheck_PoolMode_DB_OK(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	c := New(WithDB(db))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "ignored", Port: "ignored"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck_PoolMode_DB_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	c := New(WithDB(db))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "h", Port: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pgcheck")
}

func TestCheck_StandaloneMode_ConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, lis.Close())

	c := New()
	err = c.Check(context.Background(), dephealth.Endpoint{Host: host, Port: port})
	require.Error(t, err)
	var connErr *dephealth.ConnectionRefusedError
	assert.ErrorAs(t, err, &connErr)
}

func TestCheck_CustomQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1 FROM pg_catalog.pg_tables LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

	c := New(WithDB(db), WithQuery("SELECT 1 FROM pg_catalog.pg_tables LIMIT 1"))
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{}))
}

func TestCheck_PoolMode_Pgxpool_OK(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	c := New(WithPool(mockPool))
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{Host: "ignored", Port: "ignored"}))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCheck_PoolMode_Pgxpool_Error(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	c := New(WithPool(mockPool))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "h", Port: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pgcheck")
}

func TestCheck_PoolMode_Pgxpool_AuthError(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT 1").WillReturnError(&pgconn.PgError{
		Code:    "28P01",
		Message: "password authentication failed for user \"app\"",
	})

	c := New(WithPool(mockPool))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "h", Port: "p"})
	require.Error(t, err)
	var authErr *dephealth.AuthError
	assert.ErrorAs(t, err, &authErr)
}
