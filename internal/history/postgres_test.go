package history

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return store, mock
}

func fixRecordColumns() []string {
	return []string{
		"id", "run_id", "issue_code", "document_type", "document_id", "field",
		"old_value", "new_value", "reason", "created_at", "updated_at",
	}
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fix_history")).
		WithArgs("run-1", "PRIMARY_ENDPOINT_DRIFT", "SAP", "sap-1", "name",
			"old", "new", "reason", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	rec := &FixRecord{
		RunID:        "run-1",
		IssueCode:    "PRIMARY_ENDPOINT_DRIFT",
		DocumentType: "SAP",
		DocumentID:   "sap-1",
		Field:        "name",
		OldValue:     "old",
		NewValue:     "new",
		Reason:       "reason",
	}
	require.NoError(t, store.Save(context.Background(), rec))

	assert.Equal(t, int64(7), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDefaultsEmptyFieldToRoot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fix_history")).
		WithArgs("run-1", "DOSE_INCONSISTENCY", "PROTOCOL", "prot-1", "root",
			"", "new arm", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	rec := &FixRecord{
		RunID:        "run-1",
		IssueCode:    "DOSE_INCONSISTENCY",
		DocumentType: "PROTOCOL",
		DocumentID:   "prot-1",
		NewValue:     "new arm",
	}
	require.NoError(t, store.Save(context.Background(), rec))

	assert.Equal(t, "root", rec.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByRun(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM fix_history")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(fixRecordColumns()).
			AddRow(int64(1), "run-1", "PRIMARY_ENDPOINT_DRIFT", "SAP", "sap-1", "name",
				"old", "new", "reason", now, now).
			AddRow(int64(2), "run-1", "STAT_TEST_MISMATCH", "SAP", "sap-1", "test_name",
				"t-test", "Log-rank test", "reason", now, now))

	records, err := store.GetByRun(context.Background(), "run-1")
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "STAT_TEST_MISMATCH", records[1].IssueCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM fix_history")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fix_history WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportSkipsExistingSlot(t *testing.T) {
	store, mock := newMockStore(t)

	payload := []byte(`{
		"version": "1.0",
		"count": 1,
		"fixes": [
			{"run_id": "run-1", "issue_code": "PRIMARY_ENDPOINT_DRIFT",
			 "document_type": "SAP", "document_id": "sap-1", "field": "name",
			 "new_value": "new"}
		]
	}`)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM fix_history")).
		WithArgs("run-1", "SAP", "sap-1", "name").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	imported, skipped, err := store.ImportJSON(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.Equal(t, 1, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
