package storage

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by unit tests and local tooling.
// It mirrors the Postgres behavior the repositories rely on: monotonically
// increasing row ids, insertion-ordered reads, and cascading entity deletes.
type MemoryStore struct {
	mu sync.Mutex

	entities []EntityRow
	data     []DataRow
	boxes    []BoundingBoxRow
	versions []VersionRow

	nextEntityID int64
	nextDataID   int64
	nextBoxID    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextEntityID: 1,
		nextDataID:   1,
		nextBoxID:    1,
	}
}

func matches(row any, filter Filter) bool {
	value := reflect.ValueOf(row)
	for column, want := range filter {
		field, ok := fieldByColumn(value, column)
		if !ok {
			return false
		}
		if !columnMatches(field, want) {
			return false
		}
	}
	return true
}

func fieldByColumn(value reflect.Value, column string) (any, bool) {
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).Tag.Get("db") == column {
			field := value.Field(i)
			if field.Kind() == reflect.Pointer {
				if field.IsNil() {
					return nil, true
				}
				return field.Elem().Interface(), true
			}
			return field.Interface(), true
		}
	}
	return nil, false
}

func columnMatches(field any, want any) bool {
	switch values := want.(type) {
	case []int64:
		for _, v := range values {
			if equalValues(field, v) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range values {
			if equalValues(field, v) {
				return true
			}
		}
		return false
	}
	return equalValues(field, want)
}

func equalValues(field any, want any) bool {
	if fi, ok := asInt64(field); ok {
		if wi, ok := asInt64(want); ok {
			return fi == wi
		}
		return false
	}
	return reflect.DeepEqual(field, want)
}

func asInt64(v any) (int64, bool) {
	switch typed := v.(type) {
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	}
	return 0, false
}

func (s *MemoryStore) InsertEntity(_ context.Context, row EntityRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row.ID = s.nextEntityID
	s.nextEntityID++
	s.entities = append(s.entities, row)
	return row.ID, nil
}

func (s *MemoryStore) SelectEntities(_ context.Context, filter Filter) ([]EntityRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []EntityRow
	for _, row := range s.entities {
		if matches(row, filter) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *MemoryStore) UpdateEntities(_ context.Context, filter Filter, set map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entities {
		if !matches(s.entities[i], filter) {
			continue
		}
		for column, value := range set {
			switch column {
			case "source":
				s.entities[i].Source = value.(string)
			case "version":
				v, _ := asInt64(value)
				s.entities[i].Version = int(v)
			case "type":
				s.entities[i].Type = value.(string)
			default:
				return fmt.Errorf("memory store cannot update column %q", column)
			}
		}
	}
	return nil
}

func (s *MemoryStore) DeleteEntities(_ context.Context, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []EntityRow
	var deletedIDs []int64
	for _, row := range s.entities {
		if matches(row, filter) {
			deletedIDs = append(deletedIDs, row.ID)
			continue
		}
		kept = append(kept, row)
	}
	s.entities = kept

	if len(deletedIDs) > 0 {
		s.cascadeDelete(deletedIDs)
	}
	return int64(len(deletedIDs)), nil
}

// cascadeDelete mirrors the schema-level ON DELETE CASCADE.
func (s *MemoryStore) cascadeDelete(entityIDs []int64) {
	ids := make(map[int64]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		ids[id] = struct{}{}
	}

	var keptData []DataRow
	for _, row := range s.data {
		if _, gone := ids[row.EntityID]; !gone {
			keptData = append(keptData, row)
		}
	}
	s.data = keptData

	var keptBoxes []BoundingBoxRow
	for _, row := range s.boxes {
		if _, gone := ids[row.EntityID]; !gone {
			keptBoxes = append(keptBoxes, row)
		}
	}
	s.boxes = keptBoxes
}

func (s *MemoryStore) BulkInsertData(_ context.Context, rows []DataRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		row.ID = s.nextDataID
		s.nextDataID++
		s.data = append(s.data, row)
	}
	return nil
}

func (s *MemoryStore) SelectData(_ context.Context, filter Filter) ([]DataRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []DataRow
	for _, row := range s.data {
		if matches(row, filter) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *MemoryStore) DeleteData(_ context.Context, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []DataRow
	var deleted int64
	for _, row := range s.data {
		if matches(row, filter) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.data = kept
	return deleted, nil
}

func (s *MemoryStore) BulkInsertBoxes(_ context.Context, rows []BoundingBoxRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		row.ID = s.nextBoxID
		s.nextBoxID++
		s.boxes = append(s.boxes, row)
	}
	return nil
}

func (s *MemoryStore) SelectBoxes(_ context.Context, filter Filter) ([]BoundingBoxRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []BoundingBoxRow
	for _, row := range s.boxes {
		if matches(row, filter) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *MemoryStore) DeleteBoxes(_ context.Context, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []BoundingBoxRow
	var deleted int64
	for _, row := range s.boxes {
		if matches(row, filter) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.boxes = kept
	return deleted, nil
}

func (s *MemoryStore) InsertVersion(_ context.Context, row VersionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions {
		if existing.PaperID == row.PaperID && existing.Version == row.Version {
			return fmt.Errorf("version %d already registered for paper %s", row.Version, row.PaperID)
		}
	}
	s.versions = append(s.versions, row)
	return nil
}

func (s *MemoryStore) SelectVersions(_ context.Context, filter Filter) ([]VersionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []VersionRow
	for _, row := range s.versions {
		if matches(row, filter) {
			rows = append(rows, row)
		}
	}
	// newest first, matching the SQL implementation
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version > rows[j].Version })
	return rows, nil
}
