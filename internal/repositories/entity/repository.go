// Package entity persists paper entities through the EAV mapping: fixed
// fields on the entities table, attributes and relationships flattened to
// entity_data rows, bounding boxes as flat child rows.
package entity

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/sage/internal/repositories/version"
	"github.com/Ramsey-B/sage/pkg/eav"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/schema"
	"github.com/Ramsey-B/sage/pkg/storage"
)

// Repository handles entity persistence for papers
type Repository struct {
	store    storage.Store
	versions version.Resolver
	gate     *schema.Gate
	emitter  *events.Emitter
	logger   ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(store storage.Store, versions version.Resolver, gate *schema.Gate, emitter *events.Emitter, logger ectologger.Logger) *Repository {
	return &Repository{
		store:    store,
		versions: versions,
		gate:     gate,
		emitter:  emitter,
		logger:   logger,
	}
}

// Create stores a new entity for a paper. The version is taken from the
// request when present (and registered for the paper), otherwise the
// paper's latest version is used. A paper with no versions at all cannot
// accept entities.
func (r *Repository) Create(ctx context.Context, paperID string, req *models.CreateEntityRequest) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	ver, err := r.resolveWriteVersion(ctx, paperID, req.Version)
	if err != nil {
		metrics.RecordEntityOperation("create", req.Type, "error")
		return nil, err
	}

	row := storage.EntityRow{
		PaperID:   paperID,
		Version:   ver,
		Type:      req.Type,
		Source:    req.Source,
		CreatedAt: Now(),
	}
	id, err := r.store.InsertEntity(ctx, row)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "entity_type": req.Type}).Error("Failed to insert entity")
		metrics.RecordEntityOperation("create", req.Type, "error")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create entity: %v", err)
	}
	row.ID = id

	encoded := eav.Encode(id, req.Source, req.Attributes, req.Relationships)
	if len(encoded.Rows) > 0 {
		if err := r.store.BulkInsertData(ctx, encoded.Rows); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "entity_id": id}).Error("Failed to insert entity data rows")
			metrics.RecordEntityOperation("create", req.Type, "error")
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create entity: %v", err)
		}
	}

	boxRows := FromBoundingBoxes(id, req.Source, req.BoundingBoxes)
	if len(boxRows) > 0 {
		if err := r.store.BulkInsertBoxes(ctx, boxRows); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "entity_id": id}).Error("Failed to insert bounding boxes")
			metrics.RecordEntityOperation("create", req.Type, "error")
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create entity: %v", err)
		}
	}

	r.reportWarnings(ctx, paperID, entityIDString(id), "create", "encode", encoded.Warnings)

	entity, decodeWarnings := ToEntity(row, encoded.Rows, boxRows)
	r.reportWarnings(ctx, paperID, entity.ID, "create", "decode", decodeWarnings)
	if result := r.gate.Apply(entity); !result.Valid {
		r.logger.WithContext(ctx).WithFields(map[string]any{"paper_id": paperID, "entity_id": entity.ID, "entity_type": entity.Type, "errors": result.Errors}).Warn("Stored entity fails validation")
	}

	if err := r.emitter.EmitEntityCreated(ctx, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entity.ID}).Warn("Entity created event was not emitted")
	}

	metrics.RecordEntityOperation("create", req.Type, "success")
	return entity, nil
}

// GetByPaper returns all entities of a paper at one version. When no
// explicit version is given the paper's latest is used; a paper with no
// versions yields an empty result rather than an error. Entities failing
// validation are dropped from the response.
func (r *Repository) GetByPaper(ctx context.Context, paperID string, explicitVersion *int) (*models.EntityListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByPaper")
	defer span.End()

	start := time.Now()

	var ver int
	if explicitVersion != nil {
		ver = *explicitVersion
	} else {
		latest, ok, err := r.versions.Latest(ctx, paperID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &models.EntityListResponse{PaperID: paperID, Entities: []models.Entity{}}, nil
		}
		ver = latest
	}

	entityRows, err := r.store.SelectEntities(ctx, storage.Filter{"paper_id": paperID, "version": ver})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "version": ver}).Error("Failed to select entities")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entities: %v", err)
	}

	response := &models.EntityListResponse{PaperID: paperID, Version: ver, Entities: []models.Entity{}}
	if len(entityRows) == 0 {
		metrics.RecordBatchRead(0, time.Since(start).Seconds())
		return response, nil
	}

	ids := make([]int64, len(entityRows))
	for i, row := range entityRows {
		ids[i] = row.ID
	}

	dataRows, err := r.store.SelectData(ctx, storage.Filter{"entity_id": ids})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "version": ver}).Error("Failed to select entity data rows")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entities: %v", err)
	}
	boxRows, err := r.store.SelectBoxes(ctx, storage.Filter{"entity_id": ids})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "version": ver}).Error("Failed to select bounding boxes")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entities: %v", err)
	}

	dataByEntity := make(map[int64][]storage.DataRow, len(entityRows))
	for _, row := range dataRows {
		dataByEntity[row.EntityID] = append(dataByEntity[row.EntityID], row)
	}
	boxesByEntity := make(map[int64][]storage.BoundingBoxRow, len(entityRows))
	for _, row := range boxRows {
		boxesByEntity[row.EntityID] = append(boxesByEntity[row.EntityID], row)
	}

	for _, row := range entityRows {
		entity, warnings := ToEntity(row, dataByEntity[row.ID], boxesByEntity[row.ID])
		r.reportWarnings(ctx, paperID, entity.ID, "read", "decode", warnings)
		metrics.RowsDecoded.Add(float64(len(dataByEntity[row.ID])))

		if result := r.gate.Apply(entity); !result.Valid {
			metrics.EntitiesDropped.WithLabelValues(row.Type).Inc()
			r.logger.WithContext(ctx).WithFields(map[string]any{"paper_id": paperID, "entity_id": entity.ID, "entity_type": row.Type, "errors": result.Errors}).Warn("Dropping entity that fails validation")
			continue
		}
		response.Entities = append(response.Entities, *entity)
	}

	metrics.RecordBatchRead(len(response.Entities), time.Since(start).Seconds())
	return response, nil
}

// Update applies a partial update. Only attribute and relationship keys
// named by the patch are rewritten; their old rows are deleted and the new
// encoding inserted. Bounding boxes, when present, replace the existing
// set. Returns the entity as stored after the update.
func (r *Repository) Update(ctx context.Context, paperID, entityID string, patch *models.EntityPatch) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Update")
	defer span.End()

	id, ok := parseEntityID(entityID)
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}

	current, err := r.findEntityRow(ctx, paperID, id)
	if err != nil {
		return nil, err
	}

	source := current.Source
	set := map[string]any{}
	if patch.Source != nil {
		source = *patch.Source
		set["source"] = *patch.Source
	}
	if patch.Version != nil {
		if err := r.versions.Ensure(ctx, paperID, *patch.Version); err != nil {
			return nil, err
		}
		set["version"] = *patch.Version
	}
	if len(set) > 0 {
		if err := r.store.UpdateEntities(ctx, storage.Filter{"id": id}, set); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to update entity row")
			metrics.RecordEntityOperation("update", current.Type, "error")
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update entity: %v", err)
		}
	}

	encoded := eav.Encode(id, source, patch.Attributes, patch.Relationships)
	if len(encoded.TouchedKeys) > 0 {
		if _, err := r.store.DeleteData(ctx, storage.Filter{"entity_id": id, "key": encoded.TouchedKeys}); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to delete stale entity data rows")
			metrics.RecordEntityOperation("update", current.Type, "error")
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update entity: %v", err)
		}
		if len(encoded.Rows) > 0 {
			if err := r.store.BulkInsertData(ctx, encoded.Rows); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to insert entity data rows")
				metrics.RecordEntityOperation("update", current.Type, "error")
				return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update entity: %v", err)
			}
		}
	}
	r.reportWarnings(ctx, paperID, entityID, "update", "encode", encoded.Warnings)

	if patch.BoundingBoxes != nil {
		if _, err := r.store.DeleteBoxes(ctx, storage.Filter{"entity_id": id}); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to delete bounding boxes")
			metrics.RecordEntityOperation("update", current.Type, "error")
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update entity: %v", err)
		}
		boxRows := FromBoundingBoxes(id, source, *patch.BoundingBoxes)
		if len(boxRows) > 0 {
			if err := r.store.BulkInsertBoxes(ctx, boxRows); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to insert bounding boxes")
				metrics.RecordEntityOperation("update", current.Type, "error")
				return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update entity: %v", err)
			}
		}
	}

	entity, err := r.loadEntity(ctx, paperID, id)
	if err != nil {
		return nil, err
	}

	if err := r.emitter.EmitEntityUpdated(ctx, entity); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Warn("Entity updated event was not emitted")
	}

	metrics.RecordEntityOperation("update", current.Type, "success")
	return entity, nil
}

// Delete removes an entity and its data and bounding box rows.
func (r *Repository) Delete(ctx context.Context, paperID, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Delete")
	defer span.End()

	id, ok := parseEntityID(entityID)
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}

	current, err := r.findEntityRow(ctx, paperID, id)
	if err != nil {
		return err
	}

	affected, err := r.store.DeleteEntities(ctx, storage.Filter{"id": id})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to delete entity")
		metrics.RecordEntityOperation("delete", current.Type, "error")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete entity: %v", err)
	}
	if affected == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}

	if err := r.emitter.EmitEntityDeleted(ctx, paperID, entityID, current.Type, current.Version); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Warn("Entity deleted event was not emitted")
	}

	metrics.RecordEntityOperation("delete", current.Type, "success")
	return nil
}

func (r *Repository) resolveWriteVersion(ctx context.Context, paperID string, explicit *int) (int, error) {
	if explicit != nil {
		if err := r.versions.Ensure(ctx, paperID, *explicit); err != nil {
			return 0, err
		}
		return *explicit, nil
	}

	latest, ok, err := r.versions.Latest(ctx, paperID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, httperror.NewHTTPError(http.StatusUnprocessableEntity, "no processing version available for paper")
	}
	return latest, nil
}

func (r *Repository) findEntityRow(ctx context.Context, paperID string, id int64) (storage.EntityRow, error) {
	rows, err := r.store.SelectEntities(ctx, storage.Filter{"id": id, "paper_id": paperID})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "entity_id": id}).Error("Failed to select entity")
		return storage.EntityRow{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entity: %v", err)
	}
	if len(rows) == 0 {
		return storage.EntityRow{}, httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}
	return rows[0], nil
}

func (r *Repository) loadEntity(ctx context.Context, paperID string, id int64) (*models.Entity, error) {
	row, err := r.findEntityRow(ctx, paperID, id)
	if err != nil {
		return nil, err
	}

	dataRows, err := r.store.SelectData(ctx, storage.Filter{"entity_id": id})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to select entity data rows")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entity: %v", err)
	}
	boxRows, err := r.store.SelectBoxes(ctx, storage.Filter{"entity_id": id})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to select bounding boxes")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read entity: %v", err)
	}

	entity, warnings := ToEntity(row, dataRows, boxRows)
	r.reportWarnings(ctx, paperID, entity.ID, "read", "decode", warnings)
	if result := r.gate.Apply(entity); !result.Valid {
		r.logger.WithContext(ctx).WithFields(map[string]any{"entity_id": entity.ID, "errors": result.Errors}).Warn("Stored entity fails validation")
	}
	return entity, nil
}

// reportWarnings forwards codec warnings to metrics and the event stream.
// Warnings never fail the operation they came from.
func (r *Repository) reportWarnings(ctx context.Context, paperID, entityID, operation, direction string, warnings []eav.Warning) {
	if len(warnings) == 0 {
		return
	}
	metrics.RecordValueDrops(direction, len(warnings))
	if err := r.emitter.EmitAnnotationWarnings(ctx, paperID, entityID, operation, warnings); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"paper_id": paperID, "entity_id": entityID, "operation": operation}).Warn("Annotation warning event was not emitted")
	}
}
