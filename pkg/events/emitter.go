// Package events handles event emission for entity lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/eav"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
)

// Emitter publishes entity lifecycle and annotation warning events. A nil
// producer turns the emitter into log-only mode so local setups run
// without a broker.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityCreated emits an entity created event
func (e *Emitter) EmitEntityCreated(ctx context.Context, entity *models.Entity) error {
	return e.emitLifecycle(ctx, "entity.created", entity)
}

// EmitEntityUpdated emits an entity updated event
func (e *Emitter) EmitEntityUpdated(ctx context.Context, entity *models.Entity) error {
	return e.emitLifecycle(ctx, "entity.updated", entity)
}

// EmitEntityDeleted emits an entity deleted event. Only identity fields are
// carried since the entity data is already gone.
func (e *Emitter) EmitEntityDeleted(ctx context.Context, paperID, entityID, entityType string, version int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityDeleted")
	defer span.End()

	event := &kafka.EntityEvent{
		EventID:    uuid.New().String(),
		EventType:  "entity.deleted",
		PaperID:    paperID,
		EntityID:   entityID,
		EntityType: entityType,
		Version:    version,
	}
	return e.publish(ctx, event)
}

func (e *Emitter) emitLifecycle(ctx context.Context, eventType string, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.emitLifecycle")
	defer span.End()

	data, err := json.Marshal(entity)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to marshal entity for event")
		return err
	}

	event := &kafka.EntityEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		PaperID:    entity.PaperID,
		EntityID:   entity.ID,
		EntityType: entity.Type,
		Version:    entity.Version,
		Data:       data,
	}
	return e.publish(ctx, event)
}

func (e *Emitter) publish(ctx context.Context, event *kafka.EntityEvent) error {
	if e.producer == nil {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"event_type":  event.EventType,
			"entity_id":   event.EntityID,
			"entity_type": event.EntityType,
		}).Debug("Event emission skipped, no producer configured")
		return nil
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"entity_id":  event.EntityID,
		}).Error("Failed to emit entity event")
		return err
	}
	return nil
}

// EmitAnnotationWarnings emits one annotation.warning event for the values
// the data mapping dropped during an operation. No-op when the list is
// empty.
func (e *Emitter) EmitAnnotationWarnings(ctx context.Context, paperID, entityID, operation string, warnings []eav.Warning) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAnnotationWarnings")
	defer span.End()

	if len(warnings) == 0 {
		return nil
	}

	if e.producer == nil {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"paper_id":  paperID,
			"entity_id": entityID,
			"operation": operation,
			"warnings":  warnings,
		}).Warn("Annotation values dropped")
		return nil
	}

	payload, err := json.Marshal(warnings)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to marshal annotation warnings")
		return err
	}

	event := &kafka.AnnotationWarningEvent{
		EventID:   uuid.New().String(),
		EventType: "annotation.warning",
		PaperID:   paperID,
		EntityID:  entityID,
		Operation: operation,
		Warnings:  payload,
	}

	if err := e.producer.PublishAnnotationWarning(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"paper_id":  paperID,
			"operation": operation,
		}).Error("Failed to emit annotation warning event")
		return err
	}
	return nil
}
