package builder

import (
	"context"
	"testing"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/stix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillChainPhasesInOrder(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "attack-pattern--1")
	phases := []stix.KillChainPhase{
		{KillChainName: "mitre-attack", PhaseName: "initial-access"},
		{KillChainName: "mitre-attack", PhaseName: "execution"},
		{KillChainName: "lockheed", PhaseName: "delivery"},
	}
	ids := h.embedded.newID.IDs(LabelKillChainPhase, len(phases))

	created := h.embedded.KillChainPhases(context.Background(), parent, ids, phases)
	assert.Equal(t, 3, created)

	nodes := children(h.snapshot(), parent, RelHasKillChainPhase)
	require.Len(t, nodes, 3)
	for i, n := range nodes {
		assert.Equal(t, LabelKillChainPhase, n.Label)
		assert.Equal(t, ids[i], n.Properties["kill_chain_phase_id"])
		assert.Equal(t, phases[i].KillChainName, n.Properties["kill_chain_name"])
		assert.Equal(t, phases[i].PhaseName, n.Properties["phase_name"])
	}
	assert.Equal(t, 3, h.stats.Nodes)
	assert.Equal(t, 3, h.stats.Edges)
}

func TestIDCountMismatchSkipsCollection(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "attack-pattern--1")

	created := h.embedded.KillChainPhases(context.Background(), parent, []string{"only-one"}, []stix.KillChainPhase{
		{KillChainName: "a", PhaseName: "b"},
		{KillChainName: "c", PhaseName: "d"},
	})
	assert.Zero(t, created)
	assert.Empty(t, h.snapshot().EdgesOfType(RelHasKillChainPhase))
	require.NotNil(t, h.hook.LastEntry())
	assert.Equal(t, ErrIDCountMismatch, h.hook.LastEntry().Data["error"])
}

func TestExternalReferenceRecursesIntoHashes(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "malware--1")
	refs := []stix.ExternalReference{{
		SourceName: "vendor",
		URL:        "https://example.com/report.pdf",
		Hashes: []stix.Hash{
			{Algorithm: "SHA-256", Value: "aaaa"},
			{Algorithm: "MD5", Value: "bbbb"},
		},
	}}

	created := h.embedded.ExternalReferences(context.Background(), parent, []string{"external_reference--x"}, refs)
	require.Equal(t, 1, created)

	data := h.snapshot()
	extRefs := children(data, parent, RelHasExternalRef)
	require.Len(t, extRefs, 1)
	ext := extRefs[0]
	assert.Equal(t, "external_reference--x", ext.Properties["external_reference_id"])
	assert.Equal(t, "vendor", ext.Properties["source_name"])
	assert.Equal(t, "", ext.Properties["description"])
	assert.Equal(t, "https://example.com/report.pdf", ext.Properties["url"])
	assert.Equal(t, []string{"hashes--1", "hashes--2"}, ext.Properties["hashes"])

	hashes := children(data, ext.ID, RelHasHashes)
	require.Len(t, hashes, 2)
	assert.Equal(t, "hashes--1", hashes[0].Properties["hash_id"])
	assert.Equal(t, "SHA-256", hashes[0].Properties["type"])
	assert.Equal(t, "aaaa", hashes[0].Properties["value"])
	assert.Equal(t, "MD5", hashes[1].Properties["type"])
}

func TestFailedItemDoesNotAbortSiblings(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "malware--1")
	h.store.failTypes.Add(graph.RelType(RelHasHashes))

	refs := []stix.ExternalReference{
		{SourceName: "first", Hashes: []stix.Hash{{Algorithm: "MD5", Value: "x"}}},
		{SourceName: "second"},
	}
	created := h.embedded.ExternalReferences(context.Background(), parent, []string{"e1", "e2"}, refs)
	assert.Equal(t, 2, created)

	data := h.snapshot()
	assert.Len(t, children(data, parent, RelHasExternalRef), 2)
	assert.Empty(t, data.NodesWithLabel(LabelHashes), "node and edge roll back together")
	assert.Equal(t, 1, h.stats.NodeFailures)
}

func TestGranularMarkings(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "report--1")
	markings := []stix.GranularMarking{
		{MarkingRef: "marking-definition--tlp", Selectors: []string{"description"}},
		{Lang: "de", Selectors: nil},
	}

	created := h.embedded.GranularMarkings(context.Background(), parent, []string{"g1", "g2"}, markings)
	require.Equal(t, 2, created)

	nodes := children(h.snapshot(), parent, RelHasGranularMarking)
	require.Len(t, nodes, 2)
	assert.Equal(t, "marking-definition--tlp", nodes[0].Properties["marking_ref"])
	assert.Equal(t, []string{"description"}, nodes[0].Properties["selectors"])
	assert.Equal(t, "de", nodes[1].Properties["lang"])
	assert.Equal(t, []string{}, nodes[1].Properties["selectors"])
}

func TestLanguageContents(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "language-content--1")
	blocks := []stix.LanguageBlock{
		{Lang: "de", Translations: []stix.Translation{
			{Field: "name", Value: "Bösartig"},
			{Field: "description", Value: "Beschreibung"},
		}},
		{Lang: "fr", Translations: []stix.Translation{{Field: "name", Value: "Malveillant"}}},
	}

	created := h.embedded.LanguageContents(context.Background(), parent, []string{"c1", "c2"}, blocks)
	require.Equal(t, 2, created)

	data := h.snapshot()
	contents := children(data, parent, RelHasContents)
	require.Len(t, contents, 2)
	assert.Equal(t, "de", contents[0].Properties["lang"])
	assert.Equal(t, []string{"translations--1", "translations--2"}, contents[0].Properties["translations"])

	de := children(data, contents[0].ID, RelHasTranslation)
	require.Len(t, de, 2)
	assert.Equal(t, "name", de[0].Properties["field"])
	assert.Equal(t, "Bösartig", de[0].Properties["value"])
	assert.Equal(t, "translations--1", de[0].Properties["translation_id"])

	fr := children(data, contents[1].ID, RelHasTranslation)
	require.Len(t, fr, 1)
	assert.Equal(t, "Malveillant", fr[0].Properties["value"])
}

func TestMarkingObjectVariants(t *testing.T) {
	tests := []struct {
		name string
		def  stix.MarkingObject
		want string
	}{
		{name: "statement", def: stix.StatementMarking{Statement: "Copyright ACME"}, want: "Copyright ACME"},
		{name: "tlp", def: stix.TLPMarking{TLP: "green"}, want: "green"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			parent := h.parent(t, "marking-definition--1")
			md := &stix.MarkingDefinition{
				Common:         stix.Common{Type: stix.KindMarkingDefinition, ID: "marking-definition--1"},
				DefinitionType: tt.name,
				Definition:     tt.def,
			}

			require.True(t, h.embedded.MarkingObject(context.Background(), parent, "m1", md))

			nodes := children(h.snapshot(), parent, RelHasMarkingObject)
			require.Len(t, nodes, 1)
			assert.Equal(t, graph.Properties{
				"marking_id":      "m1",
				"marking":         tt.want,
				"definition_type": tt.name,
			}, graph.Properties(nodes[0].Properties))
		})
	}
}

func TestMarkingObjectWithoutDefinition(t *testing.T) {
	h := newHarness(t)
	parent := h.parent(t, "marking-definition--1")
	md := &stix.MarkingDefinition{Common: stix.Common{Type: stix.KindMarkingDefinition, ID: "marking-definition--1"}}

	assert.False(t, h.embedded.MarkingObject(context.Background(), parent, "", md))
	assert.Empty(t, h.snapshot().NodesWithLabel(LabelMarkingObject))
}

func TestPlanMatchesCollections(t *testing.T) {
	h := newHarness(t)
	rec := &stix.DomainObject{
		Common: stix.Common{
			Type:               "attack-pattern",
			ID:                 "attack-pattern--1",
			ExternalReferences: []stix.ExternalReference{{SourceName: "a"}, {SourceName: "b"}},
		},
		KillChainPhases: []stix.KillChainPhase{{KillChainName: "k", PhaseName: "p"}},
	}

	ids := h.embedded.Plan(rec)
	assert.Equal(t, []string{"external_reference--1", "external_reference--2"}, ids.ExternalReferences)
	assert.Equal(t, []string{"kill_chain_phase--1"}, ids.KillChainPhases)
	assert.Empty(t, ids.GranularMarkings)
	assert.Empty(t, ids.Hashes)
	assert.Empty(t, ids.MarkingObject)
}

func TestBuildByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	parent := h.parent(t, "file--1")
	rec := &stix.ObservableObject{
		Common: stix.Common{Type: "file", ID: "file--1"},
		Hashes: []stix.Hash{{Algorithm: "MD5", Value: "abc"}},
	}

	require.True(t, h.embedded.BuildByID(ctx, "file--1", rec, h.embedded.Plan(rec)))
	assert.Len(t, children(h.snapshot(), parent, RelHasHashes), 1)

	missing := &stix.ObservableObject{
		Common: stix.Common{Type: "file", ID: "file--404"},
		Hashes: []stix.Hash{{Algorithm: "MD5", Value: "def"}},
	}
	assert.False(t, h.embedded.BuildByID(ctx, "file--404", missing, h.embedded.Plan(missing)))
	assert.Len(t, h.snapshot().NodesWithLabel(LabelHashes), 1)
	assert.Equal(t, 1, h.stats.Unresolved)
}
