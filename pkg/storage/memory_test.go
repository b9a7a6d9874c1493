package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EntityIDsAreSequential(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)
	second, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "sentence", Source: "tex-pipeline"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestMemoryStore_SelectEntitiesFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)
	_, err = store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 2, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)
	_, err = store.InsertEntity(ctx, EntityRow{PaperID: "paper-2", Version: 1, Type: "citation", Source: "tex-pipeline"})
	require.NoError(t, err)

	rows, err := store.SelectEntities(ctx, Filter{"paper_id": "paper-1", "version": 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)

	rows, err = store.SelectEntities(ctx, Filter{"paper_id": "paper-1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.SelectEntities(ctx, Filter{"paper_id": "paper-3"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryStore_FilterSliceMatchesAnyElement(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, entityType := range []string{"symbol", "sentence", "citation"} {
		_, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: entityType, Source: "tex-pipeline"})
		require.NoError(t, err)
	}

	rows, err := store.SelectEntities(ctx, Filter{"type": []string{"symbol", "citation"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "symbol", rows[0].Type)
	assert.Equal(t, "citation", rows[1].Type)

	err = store.BulkInsertData(ctx, []DataRow{
		{EntityID: 1, Source: "tex-pipeline", Key: "tex", ItemType: ItemTypeString},
		{EntityID: 2, Source: "tex-pipeline", Key: "text", ItemType: ItemTypeString},
		{EntityID: 3, Source: "tex-pipeline", Key: "paper_id", ItemType: ItemTypeString},
	})
	require.NoError(t, err)

	data, err := store.SelectData(ctx, Filter{"entity_id": []int64{1, 3}})
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, "tex", data[0].Key)
	assert.Equal(t, "paper_id", data[1].Key)
}

func TestMemoryStore_SelectDataPreservesInsertionOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	keys := []string{"nicknames", "nicknames", "tex", "nicknames"}
	rows := make([]DataRow, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, DataRow{EntityID: 7, Source: "tex-pipeline", Key: key, ItemType: ItemTypeString, OfList: true})
	}
	require.NoError(t, store.BulkInsertData(ctx, rows))

	got, err := store.SelectData(ctx, Filter{"entity_id": int64(7)})
	require.NoError(t, err)
	require.Len(t, got, len(keys))
	for i, row := range got {
		assert.Equal(t, keys[i], row.Key)
	}
}

func TestMemoryStore_UpdateEntities(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)

	err = store.UpdateEntities(ctx, Filter{"id": id}, map[string]any{"source": "human-annotation", "version": 3})
	require.NoError(t, err)

	rows, err := store.SelectEntities(ctx, Filter{"id": id})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "human-annotation", rows[0].Source)
	assert.Equal(t, 3, rows[0].Version)
}

func TestMemoryStore_UpdateEntitiesRejectsUnknownColumn(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)

	err = store.UpdateEntities(ctx, Filter{"paper_id": "paper-1"}, map[string]any{"paper_id": "paper-2"})
	assert.Error(t, err)
}

func TestMemoryStore_DeleteEntityCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	keep, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "symbol", Source: "tex-pipeline"})
	require.NoError(t, err)
	doomed, err := store.InsertEntity(ctx, EntityRow{PaperID: "paper-1", Version: 1, Type: "sentence", Source: "tex-pipeline"})
	require.NoError(t, err)

	require.NoError(t, store.BulkInsertData(ctx, []DataRow{
		{EntityID: keep, Source: "tex-pipeline", Key: "tex", ItemType: ItemTypeString},
		{EntityID: doomed, Source: "tex-pipeline", Key: "text", ItemType: ItemTypeString},
	}))
	require.NoError(t, store.BulkInsertBoxes(ctx, []BoundingBoxRow{
		{EntityID: keep, Source: "tex-pipeline", Page: 0},
		{EntityID: doomed, Source: "tex-pipeline", Page: 1},
	}))

	deleted, err := store.DeleteEntities(ctx, Filter{"id": doomed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	data, err := store.SelectData(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, keep, data[0].EntityID)

	boxes, err := store.SelectBoxes(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, keep, boxes[0].EntityID)
}

func TestMemoryStore_DeleteEntitiesNoMatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	deleted, err := store.DeleteEntities(ctx, Filter{"id": int64(99)})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryStore_DeleteDataByKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.BulkInsertData(ctx, []DataRow{
		{EntityID: 1, Source: "tex-pipeline", Key: "tex", ItemType: ItemTypeString},
		{EntityID: 1, Source: "tex-pipeline", Key: "nicknames", ItemType: ItemTypeString, OfList: true},
		{EntityID: 1, Source: "tex-pipeline", Key: "nicknames", ItemType: ItemTypeString, OfList: true},
	}))

	deleted, err := store.DeleteData(ctx, Filter{"entity_id": int64(1), "key": []string{"nicknames"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.SelectData(ctx, Filter{"entity_id": int64(1)})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "tex", remaining[0].Key)
}

func TestMemoryStore_VersionsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.InsertVersion(ctx, VersionRow{PaperID: "paper-1", Version: 1}))
	require.NoError(t, store.InsertVersion(ctx, VersionRow{PaperID: "paper-1", Version: 3}))
	require.NoError(t, store.InsertVersion(ctx, VersionRow{PaperID: "paper-1", Version: 2}))
	require.NoError(t, store.InsertVersion(ctx, VersionRow{PaperID: "paper-2", Version: 9}))

	rows, err := store.SelectVersions(ctx, Filter{"paper_id": "paper-1"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 3, rows[0].Version)
	assert.Equal(t, 2, rows[1].Version)
	assert.Equal(t, 1, rows[2].Version)
}

func TestMemoryStore_InsertVersionRejectsDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.InsertVersion(ctx, VersionRow{PaperID: "paper-1", Version: 1}))
	err := store.InsertVersion(ctx, VersionRow{PaperID: "paper-1", Version: 1})
	assert.Error(t, err)
}
