package stix

// KillChainPhase names a phase within a kill chain.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// ExternalReference points at non-STIX information.
type ExternalReference struct {
	SourceName  string `json:"source_name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	Hashes      []Hash `json:"-"`
}

// GranularMarking applies a marking to selected properties of a record.
type GranularMarking struct {
	MarkingRef string   `json:"marking_ref,omitempty"`
	Lang       string   `json:"lang,omitempty"`
	Selectors  []string `json:"selectors"`
}

// Hash is one entry of a hashes dictionary, kept in source order.
type Hash struct {
	Algorithm string
	Value     string
}

// LanguageBlock is the set of translations for one language key of a
// language-content record.
type LanguageBlock struct {
	Lang         string
	Translations []Translation
}

// Translation is one translated field.
type Translation struct {
	Field string
	Value string
}

// MarkingObject is the definition carried by a marking definition. The
// implementations are StatementMarking and TLPMarking.
type MarkingObject interface {
	// MarkingValue is the value stored in the "marking" property.
	MarkingValue() string
	isMarking()
}

// StatementMarking is a free-text copyright or terms-of-use statement.
type StatementMarking struct {
	Statement string `json:"statement"`
}

// TLPMarking is a traffic-light-protocol level such as "white" or "red".
type TLPMarking struct {
	TLP string `json:"tlp"`
}

func (m StatementMarking) MarkingValue() string { return m.Statement }
func (m TLPMarking) MarkingValue() string       { return m.TLP }

func (StatementMarking) isMarking() {}
func (TLPMarking) isMarking()       {}
