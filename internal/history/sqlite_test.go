package history

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(runID, docID, field string) *FixRecord {
	return &FixRecord{
		RunID:        runID,
		IssueCode:    "PRIMARY_ENDPOINT_DRIFT",
		DocumentType: "SAP",
		DocumentID:   docID,
		Field:        field,
		OldValue:     "old wording",
		NewValue:     "new wording",
		Reason:       "Auto-fix for PRIMARY_ENDPOINT_DRIFT: drift",
	}
}

func TestSQLiteStore_SaveAndGetByRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("run-1", "sap-1", "name")
	require.NoError(t, store.Save(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sap-1", records[0].DocumentID)
	assert.Equal(t, "new wording", records[0].NewValue)
}

func TestSQLiteStore_SaveUpsertsSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleRecord("run-1", "sap-1", "name")
	require.NoError(t, store.Save(ctx, first))

	second := sampleRecord("run-1", "sap-1", "name")
	second.NewValue = "revised wording"
	require.NoError(t, store.Save(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "revised wording", records[0].NewValue)
}

func TestSQLiteStore_EmptyFieldDefaultsToRoot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("run-1", "prot-1", "")
	require.NoError(t, store.Save(ctx, rec))

	records, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "root", records[0].Field)
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("run-1", "sap-1", "name")))
	require.NoError(t, store.Save(ctx, sampleRecord("run-1", "sap-1", "description")))
	require.NoError(t, store.Save(ctx, sampleRecord("run-2", "prot-1", "arms")))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := store.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("run-1", "sap-1", "name")
	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStore_ExportImportRoundTrip(t *testing.T) {
	source := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, sampleRecord("run-1", "sap-1", "name")))
	require.NoError(t, source.Save(ctx, sampleRecord("run-2", "prot-1", "arms")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	target := newTestStore(t)
	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Zero(t, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportSkipsExistingSlots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("run-1", "sap-1", "name")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	imported, skipped, err := store.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.Equal(t, 1, skipped)
}

func TestSQLiteStore_ImportMalformedJSON(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))

	assert.Error(t, err)
}
