// Package storage defines the row-level persistence boundary for the
// annotation entity store: key-equality filtered inserts, selects and
// deletes over the entity, data, bounding box and version tables. Reads of
// entity and data rows always come back in insertion order, which is what
// list reconstruction in the EAV codec relies on.
package storage

import (
	"context"
	"time"
)

const (
	TableEntities      = "entities"
	TableEntityData    = "entity_data"
	TableBoundingBoxes = "bounding_boxes"
	TablePaperVersions = "paper_versions"
)

// Item type tags stored on data rows.
const (
	ItemTypeBool     = "boolean"
	ItemTypeInt      = "integer"
	ItemTypeFloat    = "float"
	ItemTypeString   = "string"
	ItemTypeNull     = "null"
	ItemTypeRelation = "relation-id"
)

// EntityRow is the fixed-field portion of an entity.
type EntityRow struct {
	ID        int64     `db:"id"`
	PaperID   string    `db:"paper_id"`
	Version   int       `db:"version"`
	Type      string    `db:"type"`
	Source    string    `db:"source"`
	CreatedAt time.Time `db:"created_at"`
}

// DataRow is one EAV record: a single scalar or relationship element under
// an attribute key. ID is the insertion sequence that drives list order.
type DataRow struct {
	ID           int64   `db:"id"`
	EntityID     int64   `db:"entity_id"`
	Source       string  `db:"source"`
	Key          string  `db:"key"`
	Value        *string `db:"value"`
	ItemType     string  `db:"item_type"`
	OfList       bool    `db:"of_list"`
	RelationType *string `db:"relation_type"`
}

// BoundingBoxRow is a flat child row locating an entity on a page. Not part
// of the EAV encoding.
type BoundingBoxRow struct {
	ID       int64   `db:"id"`
	EntityID int64   `db:"entity_id"`
	Source   string  `db:"source"`
	Page     int     `db:"page"`
	Left     float64 `db:"left"`
	Top      float64 `db:"top"`
	Width    float64 `db:"width"`
	Height   float64 `db:"height"`
}

// VersionRow registers one data generation for a paper.
type VersionRow struct {
	PaperID   string    `db:"paper_id"`
	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
}

// Filter is a conjunction of column equality conditions. A slice value
// matches any of its elements.
type Filter map[string]any

// Store is the storage backend consumed by the repositories. Entity and
// data row selects are ordered by the insertion sequence ascending.
// Implementations cascade entity deletion to data and bounding box rows.
type Store interface {
	InsertEntity(ctx context.Context, row EntityRow) (int64, error)
	SelectEntities(ctx context.Context, filter Filter) ([]EntityRow, error)
	UpdateEntities(ctx context.Context, filter Filter, set map[string]any) error
	DeleteEntities(ctx context.Context, filter Filter) (int64, error)

	BulkInsertData(ctx context.Context, rows []DataRow) error
	SelectData(ctx context.Context, filter Filter) ([]DataRow, error)
	DeleteData(ctx context.Context, filter Filter) (int64, error)

	BulkInsertBoxes(ctx context.Context, rows []BoundingBoxRow) error
	SelectBoxes(ctx context.Context, filter Filter) ([]BoundingBoxRow, error)
	DeleteBoxes(ctx context.Context, filter Filter) (int64, error)

	InsertVersion(ctx context.Context, row VersionRow) error
	SelectVersions(ctx context.Context, filter Filter) ([]VersionRow, error)
}
