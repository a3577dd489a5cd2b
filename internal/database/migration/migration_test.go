package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("applies every step in order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		for range steps {
			mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
		}

		assert.NoError(t, Run(context.Background(), db, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops at the first failing step", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(".*").WillReturnError(errors.New("syntax error"))

		err = Run(context.Background(), db, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), steps[0].name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
