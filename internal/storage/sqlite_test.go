package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainslog/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	st, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "gainslog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testEntry(id, title string) models.FoodLogEntry {
	cal := 105.0
	return models.FoodLogEntry{
		ID:                   id,
		CreatedAt:            time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
		Date:                 "2026-10-19",
		UserTitle:            title,
		UserCalories:         &cal,
		GeneratedTitle:       title,
		Calories:             cal,
		Protein:              1.3,
		Carbs:                27,
		Fat:                  0.4,
		EstimationConfidence: 72,
		Status:               models.StatusFinal,
		Source:               models.SourceManual,
	}
}

func TestSQLiteStorage_EmptyList(t *testing.T) {
	st := newTestSQLite(t)

	entries, err := st.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStorage_SaveOrReplaceDeduplicates(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	require.NoError(t, st.SaveOrReplace(ctx, testEntry("a", "Apple")))
	require.NoError(t, st.SaveOrReplace(ctx, testEntry("b", "Banana")))

	updated := testEntry("a", "Green apple")
	require.NoError(t, st.SaveOrReplace(ctx, updated))

	entries, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID, "new entries are prepended")
	assert.Equal(t, updated, entries[1], "existing entry is replaced in place")
}

func TestSQLiteStorage_Replace(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	err := st.Replace(ctx, testEntry("missing", "Ghost"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SaveOrReplace(ctx, testEntry("a", "Apple")))
	changed := testEntry("a", "Apple pie")
	changed.Calories = 300
	require.NoError(t, st.Replace(ctx, changed))

	entries, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 300.0, entries[0].Calories)
}

func TestSQLiteStorage_DeleteByID(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	require.NoError(t, st.SaveOrReplace(ctx, testEntry("a", "Apple")))
	require.NoError(t, st.SaveOrReplace(ctx, testEntry("b", "Banana")))

	require.NoError(t, st.DeleteByID(ctx, "a"))
	require.NoError(t, st.DeleteByID(ctx, "a"), "deleting twice is a no-op")

	entries, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gainslog.db")

	st, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveOrReplace(ctx, testEntry("a", "Apple")))
	require.NoError(t, st.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testEntry("a", "Apple"), entries[0])
}

func TestDecodeList_CollapsesDuplicates(t *testing.T) {
	raw := `[{"id":"a","generatedTitle":"new"},{"id":"b"},{"id":"a","generatedTitle":"old"}]`

	entries, err := decodeList(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].GeneratedTitle)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mongo", "x")
	assert.Error(t, err)
}
