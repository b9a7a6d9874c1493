// Package schema is the post-decode validation gate. Each entity type has a
// schema describing its expected attributes and relationships; decoded
// entities are defaulted, type-checked and stripped of unknown fields
// before they reach callers. A failing entity is dropped from its batch,
// never the batch itself.
package schema

import (
	"github.com/Ramsey-B/sage/pkg/models"
)

// FieldType is the expected scalar type of an attribute.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	}
	return "unknown"
}

// AttributeSpec describes one attribute of an entity type.
type AttributeSpec struct {
	Type     FieldType
	List     bool
	Required bool
}

// RelationshipSpec describes one relationship of an entity type.
// TargetType, when set, constrains the type of referenced entities.
type RelationshipSpec struct {
	TargetType string
	List       bool
	Required   bool
}

// TypeSchema is the full shape of one entity type.
type TypeSchema struct {
	Attributes    map[string]AttributeSpec
	Relationships map[string]RelationshipSpec
}

// Registry maps entity type tags to schemas. Types without a schema are
// validated permissively so new extraction pipelines degrade gracefully.
type Registry map[string]TypeSchema

// DefaultRegistry returns the schemas for the entity types the annotation
// tool renders.
func DefaultRegistry() Registry {
	return Registry{
		models.EntityTypeSymbol: {
			Attributes: map[string]AttributeSpec{
				"tex":                 {Type: FieldString},
				"mathml":              {Type: FieldString},
				"mathml_near_matches": {Type: FieldString, List: true},
				"nicknames":           {Type: FieldString, List: true},
				"definitions":         {Type: FieldString, List: true},
				"defining_formulas":   {Type: FieldString, List: true},
				"snippets":            {Type: FieldString, List: true},
				"is_definition":       {Type: FieldBool},
				"disambiguated_id":    {Type: FieldString},
			},
			Relationships: map[string]RelationshipSpec{
				"sentence":                  {TargetType: models.EntityTypeSentence},
				"parent":                    {TargetType: models.EntityTypeSymbol},
				"children":                  {TargetType: models.EntityTypeSymbol, List: true},
				"nickname_sentences":        {TargetType: models.EntityTypeSentence, List: true},
				"definition_sentences":      {TargetType: models.EntityTypeSentence, List: true},
				"defining_formula_equations": {TargetType: models.EntityTypeEquation, List: true},
				"snippet_sentences":         {TargetType: models.EntityTypeSentence, List: true},
			},
		},
		models.EntityTypeCitation: {
			Attributes: map[string]AttributeSpec{
				"paper_id": {Type: FieldString},
			},
		},
		models.EntityTypeSentence: {
			Attributes: map[string]AttributeSpec{
				"text":      {Type: FieldString, Required: true},
				"tex":       {Type: FieldString},
				"tex_start": {Type: FieldInt},
				"tex_end":   {Type: FieldInt},
			},
		},
		models.EntityTypeTerm: {
			Attributes: map[string]AttributeSpec{
				"name":            {Type: FieldString, Required: true},
				"term_type":       {Type: FieldString},
				"definitions":     {Type: FieldString, List: true},
				"definition_texs": {Type: FieldString, List: true},
				"sources":         {Type: FieldString, List: true},
				"snippets":        {Type: FieldString, List: true},
			},
			Relationships: map[string]RelationshipSpec{
				"definition_sentences": {TargetType: models.EntityTypeSentence, List: true},
				"snippet_sentences":    {TargetType: models.EntityTypeSentence, List: true},
			},
		},
		models.EntityTypeEquation: {
			Attributes: map[string]AttributeSpec{
				"tex": {Type: FieldString, Required: true},
			},
		},
		models.EntityTypeDefinition: {
			Attributes: map[string]AttributeSpec{
				"definiendum":     {Type: FieldString, Required: true},
				"text":            {Type: FieldString},
				"definition_type": {Type: FieldString},
				"intent":          {Type: FieldBool},
				"confidence":      {Type: FieldFloat},
			},
			Relationships: map[string]RelationshipSpec{
				"sentence": {TargetType: models.EntityTypeSentence},
			},
		},
	}
}
