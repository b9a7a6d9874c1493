package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity type tags produced by the extraction pipelines. The set is open;
// unknown tags are accepted and validated permissively.
const (
	EntityTypeSymbol     = "symbol"
	EntityTypeCitation   = "citation"
	EntityTypeSentence   = "sentence"
	EntityTypeTerm       = "term"
	EntityTypeEquation   = "equation"
	EntityTypeDefinition = "definition"
)

// Attribute keys that map to fixed entity fields and are never stored as
// data rows.
const (
	ReservedKeySource        = "source"
	ReservedKeyVersion       = "version"
	ReservedKeyBoundingBoxes = "bounding_boxes"
)

// BoundingBox locates an entity on a PDF page. Coordinates are in PDF
// space, ratios of the page dimensions.
type BoundingBox struct {
	Source string  `json:"source,omitempty"`
	Page   int     `json:"page"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Reference points at another entity.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is either a single reference or an ordered list of them.
type Relationship struct {
	list bool
	refs []Reference
}

// Rel builds a single-valued relationship.
func Rel(ref Reference) Relationship {
	return Relationship{refs: []Reference{ref}}
}

// RelList builds a list-valued relationship.
func RelList(refs ...Reference) Relationship {
	if refs == nil {
		refs = []Reference{}
	}
	return Relationship{list: true, refs: refs}
}

func (r Relationship) IsList() bool { return r.list }

// Ref returns the single reference. Only meaningful when IsList is false.
func (r Relationship) Ref() Reference {
	if len(r.refs) == 0 {
		return Reference{}
	}
	return r.refs[0]
}

// Refs returns all references in order.
func (r Relationship) Refs() []Reference { return r.refs }

func (r Relationship) Equal(other Relationship) bool {
	if r.list != other.list || len(r.refs) != len(other.refs) {
		return false
	}
	for i := range r.refs {
		if r.refs[i] != other.refs[i] {
			return false
		}
	}
	return true
}

func (r Relationship) MarshalJSON() ([]byte, error) {
	if r.list {
		refs := r.refs
		if refs == nil {
			refs = []Reference{}
		}
		return json.Marshal(refs)
	}
	return json.Marshal(r.Ref())
}

func (r *Relationship) UnmarshalJSON(data []byte) error {
	trimmed := bytesTrimLeft(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty relationship value")
	}
	if trimmed[0] == '[' {
		var refs []Reference
		if err := json.Unmarshal(data, &refs); err != nil {
			return err
		}
		*r = RelList(refs...)
		return nil
	}
	var ref Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	*r = Rel(ref)
	return nil
}

func bytesTrimLeft(data []byte) []byte {
	for len(data) > 0 {
		switch data[0] {
		case ' ', '\t', '\n', '\r':
			data = data[1:]
		default:
			return data
		}
	}
	return data
}

// Attributes maps attribute names to values.
type Attributes map[string]Value

// Relationships maps relationship names to typed references.
type Relationships map[string]Relationship

// Entity is a fully materialized annotation entity for one paper version.
type Entity struct {
	ID            string        `json:"id"`
	PaperID       string        `json:"paper_id"`
	Version       int           `json:"version"`
	Type          string        `json:"type"`
	Source        string        `json:"source"`
	BoundingBoxes []BoundingBox `json:"bounding_boxes"`
	Attributes    Attributes    `json:"attributes"`
	Relationships Relationships `json:"relationships"`
	CreatedAt     time.Time     `json:"created_at,omitempty"`
}

// CreateEntityRequest is the payload for creating an entity. Version is
// optional; when absent the latest version registered for the paper is used.
type CreateEntityRequest struct {
	Type          string        `json:"type" validate:"required"`
	Source        string        `json:"source" validate:"required"`
	Version       *int          `json:"version,omitempty" validate:"omitempty,gte=0"`
	BoundingBoxes []BoundingBox `json:"bounding_boxes,omitempty"`
	Attributes    Attributes    `json:"attributes,omitempty"`
	Relationships Relationships `json:"relationships,omitempty"`
}

// EntityPatch is a partial update. Nil fields are left untouched. Attribute
// and relationship maps carry only the keys to rewrite; bounding boxes,
// when present, replace the existing set wholesale.
type EntityPatch struct {
	Source        *string        `json:"source,omitempty"`
	Version       *int           `json:"version,omitempty" validate:"omitempty,gte=0"`
	BoundingBoxes *[]BoundingBox `json:"bounding_boxes,omitempty"`
	Attributes    Attributes     `json:"attributes,omitempty"`
	Relationships Relationships  `json:"relationships,omitempty"`
}

// EntityListResponse is the batch read response.
type EntityListResponse struct {
	PaperID  string   `json:"paper_id"`
	Version  int      `json:"version"`
	Entities []Entity `json:"entities"`
}
