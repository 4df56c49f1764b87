package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		record := &Record{
			Timestamp:    time.Now().UTC(),
			Action:       "CASE_UPDATE",
			Outcome:      OutcomeGranted,
			Severity:     SeverityMedium,
			EntityType:   EntityCase,
			EntityID:     "case-1",
			UserID:       "user-1",
			DepartmentID: "dept-1",
			IPAddress:    "192.168.1.1",
			UserAgent:    "curl/8.0",
			RequestID:    "01HZY",
			Description:  "status changed",
			Metadata:     map[string]interface{}{"status": "CLOSED"},
		}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(
				record.Timestamp, "CASE_UPDATE", "GRANTED", "MEDIUM",
				"CASE", "case-1",
				"user-1", "dept-1",
				"192.168.1.1", "curl/8.0", "01HZY",
				"status changed", []byte(`{"status":"CLOSED"}`),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		err := logger.Log(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, int64(42), record.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil metadata", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		record := &Record{Timestamp: time.Now().UTC(), Action: ActionLogin, Outcome: OutcomeGranted, Severity: SeverityLow}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(
				sqlmock.AnyArg(), ActionLogin, "GRANTED", "LOW",
				"", "", "", "", "", "", "", "", sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		require.NoError(t, logger.Log(context.Background(), record))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

		err := logger.Log(context.Background(), &Record{Action: "CASE_READ"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit record")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Close(t *testing.T) {
	db, _ := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	assert.NoError(t, logger.Close())
}
