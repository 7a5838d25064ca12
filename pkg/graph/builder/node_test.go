package builder

import (
	"context"
	"testing"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeBuilderIndexesSanitizedLabel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := &stix.DomainObject{Common: stix.Common{Type: "intrusion-set", ID: "intrusion-set--1"}}

	ref, ok := h.nodes.Build(ctx, rec)
	require.True(t, ok)

	got, found := h.gw.Lookup(ctx, "intrusion-set--1")
	require.True(t, found)
	assert.Equal(t, ref, got)

	n, _ := h.snapshot().Node(ref)
	assert.Equal(t, "intrusion_set", n.Label)
	assert.Equal(t, "intrusion-set", n.Properties["type"])
}

func TestNodeBuilderDefaultsOptionalFields(t *testing.T) {
	h := newHarness(t)
	rec := &stix.DomainObject{
		Common: stix.Common{Type: "indicator", ID: "indicator--1", Created: "2024-01-01T00:00:00Z"},
		Fields: map[string]string{"pattern": "[file:name = 'x']"},
	}

	ref, ok := h.nodes.Build(context.Background(), rec)
	require.True(t, ok)
	n, _ := h.snapshot().Node(ref)

	props := n.Properties
	assert.Equal(t, "indicator--1", props["id"])
	assert.Equal(t, "2024-01-01T00:00:00Z", props["created"])
	assert.Equal(t, "", props["modified"])
	assert.Equal(t, "", props["revoked"])
	assert.Equal(t, "", props["confidence"])
	assert.Equal(t, "[file:name = 'x']", props["pattern"])
	assert.Equal(t, "", props["valid_until"])
	assert.Equal(t, []string{}, props["labels"])
	assert.Equal(t, []string{}, props["indicator_types"])
	assert.Equal(t, []string{}, props["object_marking_refs"])
	assert.Equal(t, []string{}, props["external_references"])
	assert.Equal(t, []string{}, props["kill_chain_phases"])
}

func TestNodeBuilderBuildsEmbeddedEntities(t *testing.T) {
	h := newHarness(t)
	rec := &stix.DomainObject{
		Common: stix.Common{
			Type:               "attack-pattern",
			ID:                 "attack-pattern--1",
			ExternalReferences: []stix.ExternalReference{{SourceName: "capec", ExternalID: "CAPEC-1"}},
			GranularMarkings:   []stix.GranularMarking{{MarkingRef: "marking-definition--1", Selectors: []string{"name"}}},
		},
		KillChainPhases: []stix.KillChainPhase{{KillChainName: "mitre-attack", PhaseName: "discovery"}},
	}

	ref, ok := h.nodes.Build(context.Background(), rec)
	require.True(t, ok)

	data := h.snapshot()
	n, _ := data.Node(ref)
	assert.Equal(t, []string{"external_reference--1"}, n.Properties["external_references"])
	assert.Equal(t, []string{"kill_chain_phase--1"}, n.Properties["kill_chain_phases"])
	assert.Equal(t, []string{"granular_marking--1"}, n.Properties["granular_markings"])

	ext := children(data, ref, RelHasExternalRef)
	require.Len(t, ext, 1)
	assert.Equal(t, "external_reference--1", ext[0].Properties["external_reference_id"])
	assert.Equal(t, "CAPEC-1", ext[0].Properties["external_id"])
	assert.Len(t, children(data, ref, RelHasKillChainPhase), 1)
	assert.Len(t, children(data, ref, RelHasGranularMarking), 1)
	assert.Equal(t, 4, h.stats.Nodes)
	assert.Equal(t, 3, h.stats.Edges)
}

func TestNodeBuilderSkipsFailedRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.failLabels.Add(graph.Label("malware"))

	rec := &stix.DomainObject{
		Common:          stix.Common{Type: "malware", ID: "malware--1"},
		KillChainPhases: []stix.KillChainPhase{{KillChainName: "k", PhaseName: "p"}},
	}
	_, ok := h.nodes.Build(ctx, rec)
	assert.False(t, ok)

	_, found := h.gw.Lookup(ctx, "malware--1")
	assert.False(t, found)
	assert.Empty(t, h.snapshot().Nodes, "no embedded entities without a parent")
	assert.Equal(t, 1, h.stats.NodeFailures)

	var skipped bool
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["record_id"] == "malware--1" {
			skipped = true
		}
	}
	assert.True(t, skipped)

	next := &stix.DomainObject{Common: stix.Common{Type: "tool", ID: "tool--1"}}
	_, ok = h.nodes.Build(ctx, next)
	assert.True(t, ok, "processing continues with the next record")
}

func TestNodeBuilderRejectsUnusableRecords(t *testing.T) {
	h := newHarness(t)
	for _, rec := range []stix.Record{
		&stix.DomainObject{Common: stix.Common{Type: "malware"}},
		&stix.DomainObject{Common: stix.Common{Type: "\"\n", ID: "weird--1"}},
	} {
		_, ok := h.nodes.Build(context.Background(), rec)
		assert.False(t, ok)
	}
	assert.Empty(t, h.snapshot().Nodes)
	assert.Equal(t, 2, h.stats.NodeFailures)
}

func TestPropertiesPerVariant(t *testing.T) {
	count := 3
	summary := true
	tests := []struct {
		name string
		rec  stix.Record
		ids  CollectionIDs
		want map[string]interface{}
	}{
		{
			name: "relationship",
			rec: &stix.RelationshipObject{
				Common:           stix.Common{Type: stix.KindRelationship, ID: "relationship--1"},
				RelationshipType: "uses",
				SourceRef:        "malware--1",
				TargetRef:        "tool--1",
			},
			want: map[string]interface{}{
				"relationship_type": "uses",
				"source_ref":        "malware--1",
				"target_ref":        "tool--1",
				"start_time":        "",
			},
		},
		{
			name: "sighting",
			rec: &stix.SightingObject{
				Common:        stix.Common{Type: stix.KindSighting, ID: "sighting--1"},
				Count:         &count,
				Summary:       &summary,
				SightingOfRef: "indicator--1",
			},
			want: map[string]interface{}{
				"count":              "3",
				"summary":            "true",
				"sighting_of_ref":    "indicator--1",
				"where_sighted_refs": []string{},
			},
		},
		{
			name: "marking definition",
			rec: &stix.MarkingDefinition{
				Common:         stix.Common{Type: stix.KindMarkingDefinition, ID: "marking-definition--1"},
				Name:           "TLP:GREEN",
				DefinitionType: "tlp",
			},
			ids: CollectionIDs{MarkingObject: "marking_object--1"},
			want: map[string]interface{}{
				"name":            "TLP:GREEN",
				"definition_type": "tlp",
				"marking_object":  "marking_object--1",
			},
		},
		{
			name: "language content",
			rec: &stix.LanguageContent{
				Common:    stix.Common{Type: stix.KindLanguageContent, ID: "language-content--1"},
				ObjectRef: "campaign--1",
			},
			ids: CollectionIDs{Contents: []string{"contents--1"}},
			want: map[string]interface{}{
				"object_ref": "campaign--1",
				"contents":   []string{"contents--1"},
			},
		},
		{
			name: "observable",
			rec: &stix.ObservableObject{
				Common: stix.Common{Type: "file", ID: "file--1"},
				Fields: map[string]string{"name": "evil.exe", "id": "spoofed"},
			},
			ids: CollectionIDs{Hashes: []string{"hashes--1"}},
			want: map[string]interface{}{
				"name":   "evil.exe",
				"size":   "",
				"id":     "file--1",
				"hashes": []string{"hashes--1"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := Properties(tt.rec, tt.ids)
			for k, v := range tt.want {
				assert.Equal(t, v, props[k], k)
			}
			assert.Equal(t, tt.rec.RecordID(), props["id"])
		})
	}
}
