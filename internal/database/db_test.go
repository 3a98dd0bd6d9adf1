package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	db, err := New(Config{Path: ":memory:", Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)

	_, err = db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS test_table (
			id INTEGER PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func TestWithTransactionSuccess(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var result int
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		return tx.QueryRow("SELECT COUNT(*) FROM test_table WHERE value = ?", "test-value").Scan(&result)
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table WHERE value = ?", "test-value").Scan(&count))
	assert.Equal(t, 1, count, "row should persist after commit")
}

func TestWithTransactionRollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	testErr := errors.New("test error")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		return testErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, testErr)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table WHERE value = ?", "test-value").Scan(&count))
	assert.Equal(t, 0, count, "row should not exist after rollback")
}

func TestWithTransactionRollbackOnPanic(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", "test-value"); err != nil {
			return err
		}
		panic("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table WHERE value = ?", "test-value").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionMultipleOperations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		for i := 0; i < 5; i++ {
			if _, err := tx.Exec("INSERT INTO test_table (value) VALUES (?)", fmt.Sprintf("value-%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 5, count)
}

func TestWithTransactionNilDB(t *testing.T) {
	err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestMigrateAppliesTradingSchema(t *testing.T) {
	db, err := New(Config{Path: ":memory:", Profile: ProfileLedger, Name: "trading"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())

	for _, table := range []string{"strategies", "arbitrage_tasks", "trading_signals", "system_status", "fund_allocation_buckets"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist after migrate", table)
	}

	var healthReason string
	require.NoError(t, db.Conn().QueryRow("SELECT health_reason FROM system_status WHERE id = 1").Scan(&healthReason))
	assert.Equal(t, "", healthReason, "system_status seed row should be present")
}

func TestHealthCheck(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.HealthCheck(context.Background()))
}
