package entity

import (
	"strconv"
	"time"

	"github.com/Ramsey-B/sage/pkg/eav"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/storage"
)

// entityIDString renders the storage id as the opaque string callers see.
func entityIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// parseEntityID parses a caller-supplied entity id. False when the id could
// never name a stored entity.
func parseEntityID(id string) (int64, bool) {
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

// FromBoundingBoxes converts domain bounding boxes to child rows
func FromBoundingBoxes(entityID int64, source string, boxes []models.BoundingBox) []storage.BoundingBoxRow {
	rows := make([]storage.BoundingBoxRow, 0, len(boxes))
	for _, box := range boxes {
		boxSource := box.Source
		if boxSource == "" {
			boxSource = source
		}
		rows = append(rows, storage.BoundingBoxRow{
			EntityID: entityID,
			Source:   boxSource,
			Page:     box.Page,
			Left:     box.Left,
			Top:      box.Top,
			Width:    box.Width,
			Height:   box.Height,
		})
	}
	return rows
}

// ToBoundingBoxes converts child rows to domain bounding boxes
func ToBoundingBoxes(rows []storage.BoundingBoxRow) []models.BoundingBox {
	boxes := make([]models.BoundingBox, 0, len(rows))
	for _, row := range rows {
		boxes = append(boxes, models.BoundingBox{
			Source: row.Source,
			Page:   row.Page,
			Left:   row.Left,
			Top:    row.Top,
			Width:  row.Width,
			Height: row.Height,
		})
	}
	return boxes
}

// ToEntity assembles a domain entity from its fixed row, data rows and
// bounding box rows. Data rows must arrive in insertion order.
func ToEntity(row storage.EntityRow, dataRows []storage.DataRow, boxRows []storage.BoundingBoxRow) (*models.Entity, []eav.Warning) {
	decoded := eav.Decode(dataRows)
	return &models.Entity{
		ID:            entityIDString(row.ID),
		PaperID:       row.PaperID,
		Version:       row.Version,
		Type:          row.Type,
		Source:        row.Source,
		BoundingBoxes: ToBoundingBoxes(boxRows),
		Attributes:    decoded.Attributes,
		Relationships: decoded.Relationships,
		CreatedAt:     row.CreatedAt,
	}, decoded.Warnings
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
