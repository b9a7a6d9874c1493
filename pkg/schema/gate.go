package schema

import (
	"fmt"

	"github.com/Ramsey-B/sage/pkg/models"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validating a decoded entity
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Stripped []string          `json:"stripped,omitempty"`
}

// Gate validates decoded entities against the type registry.
type Gate struct {
	registry Registry
}

// NewGate creates a gate over the given registry.
func NewGate(registry Registry) *Gate {
	return &Gate{registry: registry}
}

// NewDefaultGate creates a gate over DefaultRegistry.
func NewDefaultGate() *Gate {
	return &Gate{registry: DefaultRegistry()}
}

// Apply validates the entity in place. Known types get defaults for missing
// list fields, required and type checks, and unknown fields stripped.
// Unknown types pass through untouched. The entity is mutated even when
// invalid; callers decide whether to drop it.
func (g *Gate) Apply(entity *models.Entity) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []ValidationError{}}

	ts, known := g.registry[entity.Type]
	if !known {
		return result
	}

	if entity.Attributes == nil {
		entity.Attributes = models.Attributes{}
	}
	if entity.Relationships == nil {
		entity.Relationships = models.Relationships{}
	}

	g.applyDefaults(entity, ts)

	// Check required fields
	for name, spec := range ts.Attributes {
		if !spec.Required {
			continue
		}
		value, exists := entity.Attributes[name]
		if !exists || value.IsNull() {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   name,
				Message: "required field is missing",
			})
		}
	}
	for name, spec := range ts.Relationships {
		if !spec.Required {
			continue
		}
		rel, exists := entity.Relationships[name]
		if !exists || len(rel.Refs()) == 0 {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   name,
				Message: "required relationship is missing",
			})
		}
	}

	// Validate each present field against its spec
	for name, value := range entity.Attributes {
		spec, exists := ts.Attributes[name]
		if !exists {
			delete(entity.Attributes, name)
			result.Stripped = append(result.Stripped, name)
			continue
		}
		if spec.Type == FieldBool {
			if coerced, changed := coerceLegacyBool(value, spec.List); changed {
				entity.Attributes[name] = coerced
				value = coerced
			}
		}
		if errs := validateAttribute(name, value, spec); len(errs) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, errs...)
		}
	}
	for name, rel := range entity.Relationships {
		spec, exists := ts.Relationships[name]
		if !exists {
			delete(entity.Relationships, name)
			result.Stripped = append(result.Stripped, name)
			continue
		}
		if errs := validateRelationship(name, rel, spec); len(errs) > 0 {
			result.Valid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	return result
}

// applyDefaults fills in empty lists for list-valued fields the decode
// produced no rows for, so readers always see a list where one is expected.
func (g *Gate) applyDefaults(entity *models.Entity, ts TypeSchema) {
	for name, spec := range ts.Attributes {
		if !spec.List {
			continue
		}
		if _, exists := entity.Attributes[name]; !exists {
			entity.Attributes[name] = models.List()
		}
	}
	for name, spec := range ts.Relationships {
		if !spec.List {
			continue
		}
		if _, exists := entity.Relationships[name]; !exists {
			entity.Relationships[name] = models.RelList()
		}
	}
}

func validateAttribute(name string, value models.Value, spec AttributeSpec) []ValidationError {
	if spec.List {
		if value.Kind() != models.KindList {
			return []ValidationError{{
				Field:   name,
				Message: fmt.Sprintf("expected list of %s, got %s", spec.Type, kindName(value)),
			}}
		}
		var errors []ValidationError
		for i, item := range value.Items() {
			if !scalarMatches(item, spec.Type) {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", name, i),
					Message: fmt.Sprintf("expected type %s, got %s", spec.Type, kindName(item)),
				})
			}
		}
		return errors
	}

	if value.IsNull() {
		// Null is valid for optional scalars; required is checked separately.
		return nil
	}
	if !scalarMatches(value, spec.Type) {
		return []ValidationError{{
			Field:   name,
			Message: fmt.Sprintf("expected type %s, got %s", spec.Type, kindName(value)),
		}}
	}
	return nil
}

func validateRelationship(name string, rel models.Relationship, spec RelationshipSpec) []ValidationError {
	if spec.List != rel.IsList() {
		shape := "single reference"
		if spec.List {
			shape = "list of references"
		}
		return []ValidationError{{
			Field:   name,
			Message: fmt.Sprintf("expected %s", shape),
		}}
	}

	if spec.TargetType == "" {
		return nil
	}

	var errors []ValidationError
	if rel.IsList() {
		for i, ref := range rel.Refs() {
			if ref.Type != spec.TargetType {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", name, i),
					Message: fmt.Sprintf("expected reference to %s, got %s", spec.TargetType, ref.Type),
				})
			}
		}
		return errors
	}
	if len(rel.Refs()) > 0 {
		if ref := rel.Ref(); ref.Type != spec.TargetType {
			errors = append(errors, ValidationError{
				Field:   name,
				Message: fmt.Sprintf("expected reference to %s, got %s", spec.TargetType, ref.Type),
			})
		}
	}
	return errors
}

// coerceLegacyBool rewrites integer 0/1 values to booleans where a boolean
// field is expected. Rows written before the boolean item type existed
// stored booleans as integers and decode back as KindInt. Other integers
// pass through unchanged and fail the type check.
func coerceLegacyBool(value models.Value, list bool) (models.Value, bool) {
	if !list {
		return intAsBool(value)
	}
	if value.Kind() != models.KindList {
		return value, false
	}
	items := value.Items()
	changed := false
	coerced := make([]models.Value, len(items))
	for i, item := range items {
		if b, ok := intAsBool(item); ok {
			coerced[i] = b
			changed = true
			continue
		}
		coerced[i] = item
	}
	if !changed {
		return value, false
	}
	return models.List(coerced...), true
}

func intAsBool(value models.Value) (models.Value, bool) {
	if value.Kind() != models.KindInt {
		return value, false
	}
	switch value.IntValue() {
	case 0:
		return models.Bool(false), true
	case 1:
		return models.Bool(true), true
	}
	return value, false
}

// scalarMatches checks a scalar value against the expected field type.
// Integers are accepted where floats are expected since whole numbers
// round-trip through storage as integers.
func scalarMatches(value models.Value, expected FieldType) bool {
	switch expected {
	case FieldString:
		return value.Kind() == models.KindString
	case FieldInt:
		return value.Kind() == models.KindInt
	case FieldFloat:
		return value.Kind() == models.KindFloat || value.Kind() == models.KindInt
	case FieldBool:
		return value.Kind() == models.KindBool
	}
	return true
}

func kindName(value models.Value) string {
	switch value.Kind() {
	case models.KindNull:
		return "null"
	case models.KindBool:
		return "boolean"
	case models.KindInt:
		return "integer"
	case models.KindFloat:
		return "float"
	case models.KindString:
		return "string"
	case models.KindList:
		return "list"
	}
	return "unknown"
}
