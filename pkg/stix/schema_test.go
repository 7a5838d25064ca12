package stix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFieldsDefaultsSchemaFields(t *testing.T) {
	fields, lists := NormalizeFields("malware", map[string]string{"name": "Poison Ivy"}, nil)

	assert.Equal(t, "Poison Ivy", fields["name"])
	assert.Contains(t, fields, "description")
	assert.Equal(t, "", fields["description"])
	assert.Equal(t, "", fields["is_family"])
	assert.Equal(t, []string{}, lists["aliases"])
	assert.Equal(t, []string{}, lists["malware_types"])
}

func TestNormalizeFieldsKeepsExtras(t *testing.T) {
	fields, lists := NormalizeFields("x-custom-thing",
		map[string]string{"x_score": "7"},
		map[string][]string{"x_tags": {"a", "b"}, "x_empty": nil},
	)

	assert.Equal(t, map[string]string{"x_score": "7"}, fields)
	assert.Equal(t, []string{"a", "b"}, lists["x_tags"])
	assert.Equal(t, []string{}, lists["x_empty"])
}

func TestOptionalHelpers(t *testing.T) {
	yes := true
	seven := 7

	assert.Equal(t, "", Bool(nil))
	assert.Equal(t, "true", Bool(&yes))
	assert.Equal(t, "", Int(nil))
	assert.Equal(t, "7", Int(&seven))
	assert.Equal(t, []string{}, Strings(nil))
	assert.Equal(t, []string{"x"}, Strings([]string{"x"}))
}

func TestKindSetsAreDisjoint(t *testing.T) {
	assert.True(t, DomainKinds.Intersect(ObservableKinds).IsEmpty())
	for _, reserved := range []string{KindRelationship, KindSighting, KindMarkingDefinition, KindLanguageContent} {
		assert.False(t, DomainKinds.Contains(reserved), reserved)
		assert.False(t, ObservableKinds.Contains(reserved), reserved)
	}
}

func TestRecordVariantsExposeCommon(t *testing.T) {
	records := []Record{
		&DomainObject{Common: Common{Type: "malware", ID: "malware--1"}},
		&ObservableObject{Common: Common{Type: "file", ID: "file--1"}},
		&RelationshipObject{Common: Common{Type: KindRelationship, ID: "relationship--1"}},
		&SightingObject{Common: Common{Type: KindSighting, ID: "sighting--1"}},
		&MarkingDefinition{Common: Common{Type: KindMarkingDefinition, ID: "marking-definition--1"}},
		&LanguageContent{Common: Common{Type: KindLanguageContent, ID: "language-content--1"}},
	}
	for _, rec := range records {
		assert.Equal(t, rec.Base().ID, rec.RecordID())
		assert.Equal(t, rec.Base().Type, rec.Kind())
	}
}

func TestMarkingValue(t *testing.T) {
	var m MarkingObject = TLPMarking{TLP: "amber"}
	assert.Equal(t, "amber", m.MarkingValue())
	m = StatementMarking{Statement: "Copyright 2024"}
	assert.Equal(t, "Copyright 2024", m.MarkingValue())
}
