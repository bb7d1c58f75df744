package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"run_actions"}, []string{"id", "status"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "run_actions",
		[]string{"id", "status"},
		[][]any{
			{"a1", "succeeded"},
			{"a2", "failed"},
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// No expectations: an empty batch never reaches the pool.
	n, err := CopyFrom(context.Background(), mock, "run_actions", []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"run_actions"}, []string{"id"}).
		WillReturnError(errors.New("connection lost"))

	_, err = CopyFrom(context.Background(), mock, "run_actions", []string{"id"}, [][]any{{"a1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO run_actions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
