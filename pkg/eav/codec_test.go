package eav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/storage"
)

func strPtr(s string) *string { return &s }

func TestEncode_Scalars(t *testing.T) {
	attrs := models.Attributes{
		"tex":       models.String("$x$"),
		"tex_start": models.Int(120),
		"score":     models.Float(0.75),
		"verified":  models.Bool(true),
		"mathml":    models.Null(),
	}

	result := Encode(7, "tex-pipeline", attrs, nil)
	require.Empty(t, result.Warnings)
	require.Len(t, result.Rows, 5)

	byKey := map[string]storage.DataRow{}
	for _, row := range result.Rows {
		byKey[row.Key] = row
		assert.Equal(t, int64(7), row.EntityID)
		assert.Equal(t, "tex-pipeline", row.Source)
		assert.False(t, row.OfList)
	}

	assert.Equal(t, storage.ItemTypeString, byKey["tex"].ItemType)
	assert.Equal(t, "$x$", *byKey["tex"].Value)

	assert.Equal(t, storage.ItemTypeInt, byKey["tex_start"].ItemType)
	assert.Equal(t, "120", *byKey["tex_start"].Value)

	assert.Equal(t, storage.ItemTypeFloat, byKey["score"].ItemType)
	assert.Equal(t, "0.75", *byKey["score"].Value)

	assert.Equal(t, storage.ItemTypeBool, byKey["verified"].ItemType)
	assert.Equal(t, "1", *byKey["verified"].Value)

	assert.Equal(t, storage.ItemTypeNull, byKey["mathml"].ItemType)
	assert.Nil(t, byKey["mathml"].Value)
}

func TestEncode_ListsPreserveElementOrder(t *testing.T) {
	attrs := models.Attributes{
		"nicknames": models.StringList("the loss", "objective", "L"),
	}

	result := Encode(3, "definitions", attrs, nil)
	require.Len(t, result.Rows, 3)
	for i, want := range []string{"the loss", "objective", "L"} {
		assert.Equal(t, "nicknames", result.Rows[i].Key)
		assert.True(t, result.Rows[i].OfList)
		assert.Equal(t, want, *result.Rows[i].Value)
	}
}

func TestEncode_NullListElementsOmitted(t *testing.T) {
	attrs := models.Attributes{
		"snippets": models.List(models.String("a"), models.Null(), models.String("b")),
	}

	result := Encode(1, "s", attrs, nil)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "a", *result.Rows[0].Value)
	assert.Equal(t, "b", *result.Rows[1].Value)
	// silent omission gets no warning; null is simply not a list member
	assert.Empty(t, result.Warnings)
}

func TestEncode_Relationships(t *testing.T) {
	rels := models.Relationships{
		"sentence": models.Rel(models.Reference{Type: "sentence", ID: "41"}),
		"children": models.RelList(
			models.Reference{Type: "symbol", ID: "8"},
			models.Reference{Type: "symbol", ID: "9"},
		),
	}

	result := Encode(5, "tex-pipeline", nil, rels)
	require.Len(t, result.Rows, 3)

	// keys are emitted in sorted order
	assert.Equal(t, "children", result.Rows[0].Key)
	assert.True(t, result.Rows[0].OfList)
	assert.Equal(t, "8", *result.Rows[0].Value)
	assert.Equal(t, "symbol", *result.Rows[0].RelationType)
	assert.Equal(t, storage.ItemTypeRelation, result.Rows[0].ItemType)

	assert.Equal(t, "9", *result.Rows[1].Value)

	assert.Equal(t, "sentence", result.Rows[2].Key)
	assert.False(t, result.Rows[2].OfList)
	assert.Equal(t, "41", *result.Rows[2].Value)
	assert.Equal(t, "sentence", *result.Rows[2].RelationType)
}

func TestEncode_ReservedKeysSkipped(t *testing.T) {
	attrs := models.Attributes{
		"source":         models.String("sneaky"),
		"version":        models.Int(2),
		"bounding_boxes": models.String("nope"),
		"tex":            models.String("$y$"),
	}

	result := Encode(1, "s", attrs, nil)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "tex", result.Rows[0].Key)
	assert.Equal(t, []string{"tex"}, result.TouchedKeys)
}

func TestEncode_TouchedKeysIncludeEmptyLists(t *testing.T) {
	attrs := models.Attributes{
		"nicknames": models.List(),
		"tex":       models.String("$z$"),
	}
	rels := models.Relationships{
		"children": models.RelList(),
	}

	result := Encode(1, "s", attrs, rels)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, []string{"children", "nicknames", "tex"}, result.TouchedKeys)
}

func TestEncode_AttributeRelationshipConflict(t *testing.T) {
	attrs := models.Attributes{
		"sentence": models.String("text wins"),
	}
	rels := models.Relationships{
		"sentence": models.Rel(models.Reference{Type: "sentence", ID: "2"}),
	}

	result := Encode(1, "s", attrs, rels)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, storage.ItemTypeString, result.Rows[0].ItemType)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "sentence", result.Warnings[0].Key)
	assert.Equal(t, []string{"sentence"}, result.TouchedKeys)
}

func TestDecode_RoundTrip(t *testing.T) {
	attrs := models.Attributes{
		"tex":       models.String("$x_i$"),
		"tex_start": models.Int(44),
		"score":     models.Float(0.5),
		"verified":  models.Bool(false),
		"mathml":    models.Null(),
		"nicknames": models.StringList("feature", "input"),
	}
	rels := models.Relationships{
		"sentence": models.Rel(models.Reference{Type: "sentence", ID: "12"}),
		"children": models.RelList(
			models.Reference{Type: "symbol", ID: "3"},
			models.Reference{Type: "symbol", ID: "4"},
		),
	}

	encoded := Encode(9, "tex-pipeline", attrs, rels)
	require.Empty(t, encoded.Warnings)

	decoded := Decode(encoded.Rows)
	require.Empty(t, decoded.Warnings)

	require.Len(t, decoded.Attributes, len(attrs))
	for key, want := range attrs {
		assert.True(t, decoded.Attributes[key].Equal(want), "attribute %s", key)
	}
	require.Len(t, decoded.Relationships, len(rels))
	for key, want := range rels {
		assert.True(t, decoded.Relationships[key].Equal(want), "relationship %s", key)
	}
}

func TestDecode_ListOrderFollowsRowOrder(t *testing.T) {
	rows := []storage.DataRow{
		{Key: "snippets", Value: strPtr("third"), ItemType: storage.ItemTypeString, OfList: true},
		{Key: "snippets", Value: strPtr("first"), ItemType: storage.ItemTypeString, OfList: true},
		{Key: "snippets", Value: strPtr("second"), ItemType: storage.ItemTypeString, OfList: true},
	}

	decoded := Decode(rows)
	items := decoded.Attributes["snippets"].Items()
	require.Len(t, items, 3)
	assert.Equal(t, "third", items[0].StringValue())
	assert.Equal(t, "first", items[1].StringValue())
	assert.Equal(t, "second", items[2].StringValue())
}

func TestDecode_MalformedRows(t *testing.T) {
	t.Run("unparseable scalars are skipped", func(t *testing.T) {
		rows := []storage.DataRow{
			{Key: "a", Value: strPtr("yes"), ItemType: storage.ItemTypeBool},
			{Key: "b", Value: strPtr("12.5x"), ItemType: storage.ItemTypeInt},
			{Key: "c", Value: strPtr("NaN-ish"), ItemType: storage.ItemTypeFloat},
			{Key: "d", Value: strPtr("x"), ItemType: "blob"},
		}
		decoded := Decode(rows)
		assert.Empty(t, decoded.Attributes)
		assert.Len(t, decoded.Warnings, 4)
	})

	t.Run("relation rows missing fields are skipped", func(t *testing.T) {
		relType := "sentence"
		rows := []storage.DataRow{
			{Key: "sentence", Value: strPtr("4"), ItemType: storage.ItemTypeRelation},
			{Key: "parent", Value: nil, ItemType: storage.ItemTypeRelation, RelationType: &relType},
		}
		decoded := Decode(rows)
		assert.Empty(t, decoded.Relationships)
		assert.Len(t, decoded.Warnings, 2)
	})

	t.Run("null list element is skipped with a warning", func(t *testing.T) {
		rows := []storage.DataRow{
			{Key: "nicknames", Value: strPtr("ok"), ItemType: storage.ItemTypeString, OfList: true},
			{Key: "nicknames", Value: nil, ItemType: storage.ItemTypeNull, OfList: true},
		}
		decoded := Decode(rows)
		items := decoded.Attributes["nicknames"].Items()
		require.Len(t, items, 1)
		assert.Len(t, decoded.Warnings, 1)
	})

	t.Run("list flag change mid-key is skipped", func(t *testing.T) {
		rows := []storage.DataRow{
			{Key: "tex", Value: strPtr("$a$"), ItemType: storage.ItemTypeString},
			{Key: "tex", Value: strPtr("$b$"), ItemType: storage.ItemTypeString, OfList: true},
		}
		decoded := Decode(rows)
		assert.Equal(t, "$a$", decoded.Attributes["tex"].StringValue())
		assert.Len(t, decoded.Warnings, 1)
	})

	t.Run("scalar row under relationship key is skipped", func(t *testing.T) {
		relType := "sentence"
		rows := []storage.DataRow{
			{Key: "sentence", Value: strPtr("4"), ItemType: storage.ItemTypeRelation, RelationType: &relType},
			{Key: "sentence", Value: strPtr("free text"), ItemType: storage.ItemTypeString},
		}
		decoded := Decode(rows)
		require.Contains(t, decoded.Relationships, "sentence")
		assert.Equal(t, "4", decoded.Relationships["sentence"].Ref().ID)
		assert.Len(t, decoded.Warnings, 1)
	})
}

func TestDecode_DuplicateSingleValueLastWins(t *testing.T) {
	rows := []storage.DataRow{
		{Key: "tex", Value: strPtr("$old$"), ItemType: storage.ItemTypeString},
		{Key: "tex", Value: strPtr("$new$"), ItemType: storage.ItemTypeString},
	}
	decoded := Decode(rows)
	assert.Equal(t, "$new$", decoded.Attributes["tex"].StringValue())
	assert.Empty(t, decoded.Warnings)
}

func TestDecode_LegacyNullWithTypedItemType(t *testing.T) {
	// rows written before the null item type existed carry a real item
	// type with no value; they still decode to null
	rows := []storage.DataRow{
		{Key: "mathml", Value: nil, ItemType: storage.ItemTypeString},
	}
	decoded := Decode(rows)
	require.Contains(t, decoded.Attributes, "mathml")
	assert.True(t, decoded.Attributes["mathml"].IsNull())
	assert.Empty(t, decoded.Warnings)
}
