// Package eav maps typed entity attributes and relationships to and from
// the normalized entity_data rows. Encoding is best-effort: values that
// cannot be classified are dropped, and decoding never fails on malformed
// rows. Every drop or skip is reported as a structured Warning.
package eav

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/storage"
)

// Warning records a value or row the codec dropped.
type Warning struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// EncodeResult carries the rows produced for an entity plus the set of keys
// the input touched. Touched keys include keys whose new value produced no
// rows (an empty list still clears the old rows on update).
type EncodeResult struct {
	Rows        []storage.DataRow
	TouchedKeys []string
	Warnings    []Warning
}

// DecodeResult is the typed reconstruction of an entity's data rows.
type DecodeResult struct {
	Attributes    models.Attributes
	Relationships models.Relationships
	Warnings      []Warning
}

// Encode flattens attributes and relationships into data rows for one
// entity. Reserved keys (source, version, bounding_boxes) are fixed entity
// fields and never become rows. Keys are processed in sorted order so the
// emitted row sequence is deterministic; elements of a list keep their
// input order.
func Encode(entityID int64, source string, attrs models.Attributes, rels models.Relationships) EncodeResult {
	result := EncodeResult{}
	touched := make(map[string]struct{}, len(attrs)+len(rels))

	for _, key := range sortedAttrKeys(attrs) {
		if isReservedKey(key) {
			continue
		}
		touched[key] = struct{}{}
		result.encodeAttribute(entityID, source, key, attrs[key])
	}

	for _, key := range sortedRelKeys(rels) {
		if isReservedKey(key) {
			continue
		}
		if _, conflict := attrs[key]; conflict {
			result.warn(key, "key present as both attribute and relationship", "")
			continue
		}
		touched[key] = struct{}{}
		result.encodeRelationship(entityID, source, key, rels[key])
	}

	result.TouchedKeys = make([]string, 0, len(touched))
	for key := range touched {
		result.TouchedKeys = append(result.TouchedKeys, key)
	}
	sort.Strings(result.TouchedKeys)
	return result
}

func (r *EncodeResult) encodeAttribute(entityID int64, source, key string, value models.Value) {
	if value.Kind() == models.KindList {
		for i, item := range value.Items() {
			if item.IsNull() {
				// nulls cannot be list members; the element is omitted
				continue
			}
			encoded, itemType, ok := encodeScalar(item)
			if !ok {
				r.warn(key, "unrepresentable list element dropped", fmt.Sprintf("index %d, kind %s", i, item.Kind()))
				continue
			}
			r.Rows = append(r.Rows, storage.DataRow{
				EntityID: entityID,
				Source:   source,
				Key:      key,
				Value:    &encoded,
				ItemType: itemType,
				OfList:   true,
			})
		}
		return
	}

	if value.IsNull() {
		r.Rows = append(r.Rows, storage.DataRow{
			EntityID: entityID,
			Source:   source,
			Key:      key,
			Value:    nil,
			ItemType: storage.ItemTypeNull,
		})
		return
	}

	encoded, itemType, ok := encodeScalar(value)
	if !ok {
		r.warn(key, "unrepresentable value dropped", "kind "+value.Kind().String())
		return
	}
	r.Rows = append(r.Rows, storage.DataRow{
		EntityID: entityID,
		Source:   source,
		Key:      key,
		Value:    &encoded,
		ItemType: itemType,
	})
}

func (r *EncodeResult) encodeRelationship(entityID int64, source, key string, rel models.Relationship) {
	if rel.IsList() {
		for _, ref := range rel.Refs() {
			r.Rows = append(r.Rows, relationRow(entityID, source, key, ref, true))
		}
		return
	}
	r.Rows = append(r.Rows, relationRow(entityID, source, key, rel.Ref(), false))
}

func relationRow(entityID int64, source, key string, ref models.Reference, ofList bool) storage.DataRow {
	id := ref.ID
	relType := ref.Type
	return storage.DataRow{
		EntityID:     entityID,
		Source:       source,
		Key:          key,
		Value:        &id,
		ItemType:     storage.ItemTypeRelation,
		OfList:       ofList,
		RelationType: &relType,
	}
}

func encodeScalar(value models.Value) (string, string, bool) {
	switch value.Kind() {
	case models.KindBool:
		if value.BoolValue() {
			return "1", storage.ItemTypeBool, true
		}
		return "0", storage.ItemTypeBool, true
	case models.KindInt:
		return strconv.FormatInt(value.IntValue(), 10), storage.ItemTypeInt, true
	case models.KindFloat:
		return strconv.FormatFloat(value.FloatValue(), 'g', -1, 64), storage.ItemTypeFloat, true
	case models.KindString:
		return value.StringValue(), storage.ItemTypeString, true
	}
	return "", "", false
}

func (r *EncodeResult) warn(key, reason, detail string) {
	r.Warnings = append(r.Warnings, Warning{Key: key, Reason: reason, Detail: detail})
}

// keyState accumulates rows for one key during decode. A key is either
// attribute-valued or relationship-valued, and either single or list; rows
// contradicting the first seen interpretation are skipped.
type keyState struct {
	isRel  bool
	isList bool

	items  []models.Value
	single models.Value
	refs   []models.Reference
	ref    models.Reference
}

// Decode rebuilds typed attributes and relationships from data rows. Rows
// must be pre-ordered by their insertion sequence; list order follows row
// order. Malformed rows are skipped with a warning and never abort the
// decode.
func Decode(rows []storage.DataRow) DecodeResult {
	result := DecodeResult{
		Attributes:    models.Attributes{},
		Relationships: models.Relationships{},
	}

	states := make(map[string]*keyState)
	var order []string

	for _, row := range rows {
		if row.ItemType == storage.ItemTypeRelation {
			decodeRelationRow(&result, states, &order, row)
			continue
		}
		decodeScalarRow(&result, states, &order, row)
	}

	for _, key := range order {
		state := states[key]
		if state.isRel {
			if state.isList {
				result.Relationships[key] = models.RelList(state.refs...)
			} else {
				result.Relationships[key] = models.Rel(state.ref)
			}
			continue
		}
		if state.isList {
			result.Attributes[key] = models.List(state.items...)
		} else {
			result.Attributes[key] = state.single
		}
	}
	return result
}

func decodeRelationRow(result *DecodeResult, states map[string]*keyState, order *[]string, row storage.DataRow) {
	if row.RelationType == nil {
		result.warn(row.Key, "relation row without relation type", "")
		return
	}
	if row.Value == nil {
		result.warn(row.Key, "relation row without target id", "")
		return
	}
	ref := models.Reference{Type: *row.RelationType, ID: *row.Value}

	state, exists := states[row.Key]
	if !exists {
		state = &keyState{isRel: true, isList: row.OfList}
		states[row.Key] = state
		*order = append(*order, row.Key)
	}
	if !state.isRel {
		result.warn(row.Key, "relation row under attribute key", "")
		return
	}
	if state.isList != row.OfList && exists {
		result.warn(row.Key, "list flag changed mid-key", "")
		return
	}
	if state.isList {
		state.refs = append(state.refs, ref)
		return
	}
	// duplicate non-list rows are a data anomaly; the last value wins
	state.ref = ref
}

func decodeScalarRow(result *DecodeResult, states map[string]*keyState, order *[]string, row storage.DataRow) {
	if row.Value == nil {
		if row.OfList {
			result.warn(row.Key, "null list element skipped", "")
			return
		}
		assignScalar(result, states, order, row, models.Null())
		return
	}

	var value models.Value
	switch row.ItemType {
	case storage.ItemTypeBool:
		switch *row.Value {
		case "1":
			value = models.Bool(true)
		case "0":
			value = models.Bool(false)
		default:
			result.warn(row.Key, "unparseable boolean", *row.Value)
			return
		}
	case storage.ItemTypeInt:
		parsed, err := strconv.ParseInt(*row.Value, 10, 64)
		if err != nil {
			result.warn(row.Key, "unparseable integer", *row.Value)
			return
		}
		value = models.Int(parsed)
	case storage.ItemTypeFloat:
		parsed, err := strconv.ParseFloat(*row.Value, 64)
		if err != nil {
			result.warn(row.Key, "unparseable float", *row.Value)
			return
		}
		value = models.Float(parsed)
	case storage.ItemTypeString:
		value = models.String(*row.Value)
	case storage.ItemTypeNull:
		if row.OfList {
			result.warn(row.Key, "null list element skipped", "")
			return
		}
		value = models.Null()
	default:
		result.warn(row.Key, "unknown item type", row.ItemType)
		return
	}

	if row.OfList {
		appendScalar(result, states, order, row, value)
		return
	}
	assignScalar(result, states, order, row, value)
}

func appendScalar(result *DecodeResult, states map[string]*keyState, order *[]string, row storage.DataRow, value models.Value) {
	state, exists := states[row.Key]
	if !exists {
		state = &keyState{isList: true}
		states[row.Key] = state
		*order = append(*order, row.Key)
	}
	if state.isRel {
		result.warn(row.Key, "scalar row under relationship key", "")
		return
	}
	if !state.isList {
		result.warn(row.Key, "list flag changed mid-key", "")
		return
	}
	state.items = append(state.items, value)
}

func assignScalar(result *DecodeResult, states map[string]*keyState, order *[]string, row storage.DataRow, value models.Value) {
	state, exists := states[row.Key]
	if !exists {
		state = &keyState{single: value}
		states[row.Key] = state
		*order = append(*order, row.Key)
		return
	}
	if state.isRel {
		result.warn(row.Key, "scalar row under relationship key", "")
		return
	}
	if state.isList {
		result.warn(row.Key, "list flag changed mid-key", "")
		return
	}
	// duplicate non-list rows are a data anomaly; the last value wins
	state.single = value
}

func (r *DecodeResult) warn(key, reason, detail string) {
	r.Warnings = append(r.Warnings, Warning{Key: key, Reason: reason, Detail: detail})
}

func isReservedKey(key string) bool {
	switch key {
	case models.ReservedKeySource, models.ReservedKeyVersion, models.ReservedKeyBoundingBoxes:
		return true
	}
	return false
}

func sortedAttrKeys(attrs models.Attributes) []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedRelKeys(rels models.Relationships) []string {
	keys := make([]string, 0, len(rels))
	for key := range rels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
