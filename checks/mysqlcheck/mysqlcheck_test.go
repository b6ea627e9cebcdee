package mysqlcheck

import (
	"context"
	"net"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, dephealth.TypeMySQL, New().Kind())
}

func TestCheck_PoolMode_OK(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	c := New(WithDB(db))
	assert.NoError(t, c.Check(context.Background(), dephealth.Endpoint{Host: "ignored", Port: "ignored"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheck_PoolMode_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	c := New(WithDB(db))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "h", Port: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysqlcheck")
}

func TestCheck_PoolMode_AuthError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnError(&mysql.MySQLError{
		Number:  1045,
		Message: "Access denied for user 'app'@'10.0.0.1' (using password: YES)",
	})

	c := New(WithDB(db))
	err = c.Check(context.Background(), dephealth.Endpoint{Host: "h", Port: "p"})
	require.Error(t, err)
	var authErr *dephealth.AuthError
	assert.ErrorAs(t, err, &authErr)
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
