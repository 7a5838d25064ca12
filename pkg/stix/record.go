// Package stix holds the in-memory threat-intelligence object model that the
// graph builders consume. Records form a closed set of variants; callers
// switch on the concrete type wherever behaviour depends on the kind.
package stix

// Record is a top-level ingested object. The set of implementations is
// closed: DomainObject, ObservableObject, RelationshipObject, SightingObject,
// MarkingDefinition and LanguageContent.
type Record interface {
	RecordID() string
	Kind() string
	Base() *Common
	isRecord()
}

// Common carries the properties shared by every record variant.
type Common struct {
	Type               string              `json:"type"`
	ID                 string              `json:"id"`
	SpecVersion        string              `json:"spec_version,omitempty"`
	Created            string              `json:"created,omitempty"`
	Modified           string              `json:"modified,omitempty"`
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Revoked            *bool               `json:"revoked,omitempty"`
	Labels             []string            `json:"labels,omitempty"`
	Confidence         *int                `json:"confidence,omitempty"`
	Lang               string              `json:"lang,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`
	GranularMarkings   []GranularMarking   `json:"granular_markings,omitempty"`
}

// RecordID returns the globally unique identifier of the record.
func (c *Common) RecordID() string { return c.ID }

// Kind returns the record's type name, e.g. "attack-pattern".
func (c *Common) Kind() string { return c.Type }

// Base exposes the shared properties.
func (c *Common) Base() *Common { return c }

// DomainObject is any domain object (attack-pattern, indicator, malware, ...)
// including custom "x-" kinds. Kind-specific scalars live in Fields and
// kind-specific string lists in Lists.
type DomainObject struct {
	Common
	Fields          map[string]string   `json:"-"`
	Lists           map[string][]string `json:"-"`
	KillChainPhases []KillChainPhase    `json:"kill_chain_phases,omitempty"`
	ObjectRefs      []string            `json:"object_refs,omitempty"`
}

// ObservableObject is a cyber observable (file, ipv4-addr, url, ...).
type ObservableObject struct {
	Common
	Fields map[string]string   `json:"-"`
	Lists  map[string][]string `json:"-"`
	Hashes []Hash              `json:"-"`
}

// RelationshipObject links a source record to a target record.
type RelationshipObject struct {
	Common
	RelationshipType string `json:"relationship_type"`
	Description      string `json:"description,omitempty"`
	SourceRef        string `json:"source_ref"`
	TargetRef        string `json:"target_ref"`
	StartTime        string `json:"start_time,omitempty"`
	StopTime         string `json:"stop_time,omitempty"`
}

// SightingObject records that something was seen.
type SightingObject struct {
	Common
	Description      string   `json:"description,omitempty"`
	FirstSeen        string   `json:"first_seen,omitempty"`
	LastSeen         string   `json:"last_seen,omitempty"`
	Count            *int     `json:"count,omitempty"`
	SightingOfRef    string   `json:"sighting_of_ref"`
	ObservedDataRefs []string `json:"observed_data_refs,omitempty"`
	WhereSightedRefs []string `json:"where_sighted_refs,omitempty"`
	Summary          *bool    `json:"summary,omitempty"`
}

// MarkingDefinition carries a data marking. Definition is nil for marking
// definitions that only carry a name (extension-based markings).
type MarkingDefinition struct {
	Common
	Name           string        `json:"name,omitempty"`
	DefinitionType string        `json:"definition_type,omitempty"`
	Definition     MarkingObject `json:"-"`
}

// LanguageContent holds translations of another record's text fields.
type LanguageContent struct {
	Common
	ObjectRef      string          `json:"object_ref"`
	ObjectModified string          `json:"object_modified,omitempty"`
	Contents       []LanguageBlock `json:"-"`
}

func (*DomainObject) isRecord()       {}
func (*ObservableObject) isRecord()   {}
func (*RelationshipObject) isRecord() {}
func (*SightingObject) isRecord()     {}
func (*MarkingDefinition) isRecord()  {}
func (*LanguageContent) isRecord()    {}
