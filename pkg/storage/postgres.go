package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
)

// PostgresStore implements Store on top of the shared database layer.
type PostgresStore struct {
	db     database.DB
	logger ectologger.Logger
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

var (
	entityColumns  = []string{"id", "paper_id", "version", "type", "source", "created_at"}
	dataColumns    = []string{"id", "entity_id", "source", "key", "value", "item_type", "of_list", "relation_type"}
	boxColumns     = []string{"id", "entity_id", "source", "page", `"left"`, `"top"`, "width", "height"}
	versionColumns = []string{"paper_id", "version", "created_at"}
)

func applyFilter(sb *sqlbuilder.SelectBuilder, filter Filter) {
	conditions := make([]string, 0, len(filter))
	for _, column := range sortedKeys(filter) {
		value := filter[column]
		if values, ok := value.([]int64); ok {
			conditions = append(conditions, sb.In(column, sqlbuilder.Flatten(values)...))
			continue
		}
		if values, ok := value.([]string); ok {
			conditions = append(conditions, sb.In(column, sqlbuilder.Flatten(values)...))
			continue
		}
		conditions = append(conditions, sb.Equal(column, value))
	}
	sb.Where(conditions...)
}

func applyDeleteFilter(db *sqlbuilder.DeleteBuilder, filter Filter) {
	conditions := make([]string, 0, len(filter))
	for _, column := range sortedKeys(filter) {
		value := filter[column]
		if values, ok := value.([]int64); ok {
			conditions = append(conditions, db.In(column, sqlbuilder.Flatten(values)...))
			continue
		}
		if values, ok := value.([]string); ok {
			conditions = append(conditions, db.In(column, sqlbuilder.Flatten(values)...))
			continue
		}
		conditions = append(conditions, db.Equal(column, value))
	}
	db.Where(conditions...)
}

func sortedKeys(filter Filter) []string {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// InsertEntity inserts an entity row and returns the generated id.
func (s *PostgresStore) InsertEntity(ctx context.Context, row EntityRow) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.InsertEntity")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(TableEntities)
	ib.Cols("paper_id", "version", "type", "source", "created_at")
	ib.Values(row.PaperID, row.Version, row.Type, row.Source, row.CreatedAt)
	ib.Returning("id")

	query, args := ib.Build()
	var id int64
	if err := s.db.GetContext(ctx, &id, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": row.PaperID, "type": row.Type}).Error("Failed to insert entity row")
		return 0, fmt.Errorf("insert entity row: %w", err)
	}
	return id, nil
}

// SelectEntities returns entity rows matching the filter, oldest first.
func (s *PostgresStore) SelectEntities(ctx context.Context, filter Filter) ([]EntityRow, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.SelectEntities")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From(TableEntities)
	applyFilter(sb, filter)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []EntityRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to select entity rows")
		return nil, fmt.Errorf("select entity rows: %w", err)
	}
	return rows, nil
}

// UpdateEntities patches the given columns on all matching entity rows.
func (s *PostgresStore) UpdateEntities(ctx context.Context, filter Filter, set map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.UpdateEntities")
	defer span.End()

	if len(set) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(TableEntities)
	assignments := make([]string, 0, len(set))
	columns := make([]string, 0, len(set))
	for column := range set {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	for _, column := range columns {
		assignments = append(assignments, ub.Assign(column, set[column]))
	}
	ub.Set(assignments...)

	conditions := make([]string, 0, len(filter))
	for _, column := range sortedKeys(filter) {
		conditions = append(conditions, ub.Equal(column, filter[column]))
	}
	ub.Where(conditions...)

	query, args := ub.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to update entity rows")
		return fmt.Errorf("update entity rows: %w", err)
	}
	return nil
}

// DeleteEntities removes matching entity rows. Child data and bounding box
// rows go with them via the schema's ON DELETE CASCADE.
func (s *PostgresStore) DeleteEntities(ctx context.Context, filter Filter) (int64, error) {
	return s.deleteWhere(ctx, TableEntities, filter)
}

// BulkInsertData inserts data rows in order, preserving their relative
// sequence in the generated ids.
func (s *PostgresStore) BulkInsertData(ctx context.Context, rows []DataRow) error {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.BulkInsertData")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(TableEntityData)
	ib.Cols("entity_id", "source", "key", "value", "item_type", "of_list", "relation_type")
	for _, row := range rows {
		ib.Values(row.EntityID, row.Source, row.Key, row.Value, row.ItemType, row.OfList, row.RelationType)
	}

	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("rows", len(rows)).Error("Failed to bulk insert data rows")
		return fmt.Errorf("bulk insert data rows: %w", err)
	}
	return nil
}

// SelectData returns data rows matching the filter ordered by the insertion
// sequence ascending.
func (s *PostgresStore) SelectData(ctx context.Context, filter Filter) ([]DataRow, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.SelectData")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(dataColumns...)
	sb.From(TableEntityData)
	applyFilter(sb, filter)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []DataRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to select data rows")
		return nil, fmt.Errorf("select data rows: %w", err)
	}
	return rows, nil
}

// DeleteData removes matching data rows.
func (s *PostgresStore) DeleteData(ctx context.Context, filter Filter) (int64, error) {
	return s.deleteWhere(ctx, TableEntityData, filter)
}

// BulkInsertBoxes inserts bounding box rows.
func (s *PostgresStore) BulkInsertBoxes(ctx context.Context, rows []BoundingBoxRow) error {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.BulkInsertBoxes")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(TableBoundingBoxes)
	ib.Cols("entity_id", "source", "page", `"left"`, `"top"`, "width", "height")
	for _, row := range rows {
		ib.Values(row.EntityID, row.Source, row.Page, row.Left, row.Top, row.Width, row.Height)
	}

	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("rows", len(rows)).Error("Failed to bulk insert bounding box rows")
		return fmt.Errorf("bulk insert bounding box rows: %w", err)
	}
	return nil
}

// SelectBoxes returns bounding box rows matching the filter in insertion
// order.
func (s *PostgresStore) SelectBoxes(ctx context.Context, filter Filter) ([]BoundingBoxRow, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.SelectBoxes")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(boxColumns...)
	sb.From(TableBoundingBoxes)
	applyFilter(sb, filter)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []BoundingBoxRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to select bounding box rows")
		return nil, fmt.Errorf("select bounding box rows: %w", err)
	}
	return rows, nil
}

// DeleteBoxes removes matching bounding box rows.
func (s *PostgresStore) DeleteBoxes(ctx context.Context, filter Filter) (int64, error) {
	return s.deleteWhere(ctx, TableBoundingBoxes, filter)
}

// InsertVersion registers a data generation for a paper.
func (s *PostgresStore) InsertVersion(ctx context.Context, row VersionRow) error {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.InsertVersion")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(TablePaperVersions)
	ib.Cols("paper_id", "version", "created_at")
	ib.Values(row.PaperID, row.Version, row.CreatedAt)

	query, args := ib.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": row.PaperID, "version": row.Version}).Error("Failed to insert version row")
		return fmt.Errorf("insert version row: %w", err)
	}
	return nil
}

// SelectVersions returns version rows matching the filter, newest first.
func (s *PostgresStore) SelectVersions(ctx context.Context, filter Filter) ([]VersionRow, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.SelectVersions")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(versionColumns...)
	sb.From(TablePaperVersions)
	applyFilter(sb, filter)
	sb.OrderBy("version DESC")

	query, args := sb.Build()
	var rows []VersionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to select version rows")
		return nil, fmt.Errorf("select version rows: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) deleteWhere(ctx context.Context, table string, filter Filter) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "storage.PostgresStore.deleteWhere")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table)
	applyDeleteFilter(db, filter)

	query, args := db.Build()
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to delete rows")
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
