package stix

import (
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// Reserved kind names for the non-domain record variants.
const (
	KindRelationship      = "relationship"
	KindSighting          = "sighting"
	KindMarkingDefinition = "marking-definition"
	KindLanguageContent   = "language-content"
)

// DomainKinds are the domain object kinds of STIX 2.1.
var DomainKinds = mapset.NewSet[string](
	"attack-pattern", "campaign", "course-of-action", "grouping", "identity",
	"incident", "indicator", "infrastructure", "intrusion-set", "location",
	"malware", "malware-analysis", "note", "observed-data", "opinion",
	"report", "threat-actor", "tool", "vulnerability",
)

// ObservableKinds are the cyber observable kinds of STIX 2.1.
var ObservableKinds = mapset.NewSet[string](
	"artifact", "autonomous-system", "directory", "domain-name", "email-addr",
	"email-message", "file", "ipv4-addr", "ipv6-addr", "mac-addr", "mutex",
	"network-traffic", "process", "software", "url", "user-account",
	"windows-registry-key", "x509-certificate",
)

type fieldSchema struct {
	scalars []string
	lists   []string
}

// schemas lists the kind-specific fields each kind always carries on its node.
var schemas = map[string]fieldSchema{
	"attack-pattern":   {scalars: []string{"name", "description"}, lists: []string{"aliases"}},
	"campaign":         {scalars: []string{"name", "description", "first_seen", "last_seen", "objective"}, lists: []string{"aliases"}},
	"course-of-action": {scalars: []string{"name", "description"}},
	"grouping":         {scalars: []string{"name", "description", "context"}},
	"identity":         {scalars: []string{"name", "description", "identity_class", "contact_information"}, lists: []string{"roles", "sectors"}},
	"incident":         {scalars: []string{"name", "description"}},
	"indicator":        {scalars: []string{"name", "description", "pattern", "pattern_type", "pattern_version", "valid_from", "valid_until"}, lists: []string{"indicator_types"}},
	"infrastructure":   {scalars: []string{"name", "description", "first_seen", "last_seen"}, lists: []string{"infrastructure_types", "aliases"}},
	"intrusion-set":    {scalars: []string{"name", "description", "first_seen", "last_seen", "primary_motivation", "resource_level"}, lists: []string{"aliases", "goals", "secondary_motivations"}},
	"location":         {scalars: []string{"name", "description", "latitude", "longitude", "precision", "region", "country", "administrative_area", "city", "street_address", "postal_code"}},
	"malware":          {scalars: []string{"name", "description", "is_family", "first_seen", "last_seen"}, lists: []string{"malware_types", "aliases", "architecture_execution_envs", "implementation_languages", "capabilities", "sample_refs", "operating_system_refs"}},
	"malware-analysis": {scalars: []string{"product", "version", "result", "analysis_started", "analysis_ended"}},
	"note":             {scalars: []string{"abstract", "content"}, lists: []string{"authors"}},
	"observed-data":    {scalars: []string{"first_observed", "last_observed", "number_observed"}},
	"opinion":          {scalars: []string{"explanation", "opinion"}, lists: []string{"authors"}},
	"report":           {scalars: []string{"name", "description", "published"}, lists: []string{"report_types"}},
	"threat-actor":     {scalars: []string{"name", "description", "first_seen", "last_seen", "primary_motivation", "resource_level", "sophistication"}, lists: []string{"threat_actor_types", "aliases", "roles", "goals", "secondary_motivations", "personal_motivations"}},
	"tool":             {scalars: []string{"name", "description", "tool_version"}, lists: []string{"tool_types", "aliases"}},
	"vulnerability":    {scalars: []string{"name", "description"}},

	"artifact":             {scalars: []string{"mime_type", "url", "payload_bin"}},
	"autonomous-system":    {scalars: []string{"number", "name", "rir"}},
	"directory":            {scalars: []string{"path"}, lists: []string{"contains_refs"}},
	"domain-name":          {scalars: []string{"value"}, lists: []string{"resolves_to_refs"}},
	"email-addr":           {scalars: []string{"value", "display_name"}},
	"email-message":        {scalars: []string{"is_multipart", "date", "subject", "from_ref"}, lists: []string{"to_refs", "cc_refs"}},
	"file":                 {scalars: []string{"name", "size", "mime_type", "parent_directory_ref"}},
	"ipv4-addr":            {scalars: []string{"value"}, lists: []string{"resolves_to_refs"}},
	"ipv6-addr":            {scalars: []string{"value"}, lists: []string{"resolves_to_refs"}},
	"mac-addr":             {scalars: []string{"value"}},
	"mutex":                {scalars: []string{"name"}},
	"network-traffic":      {scalars: []string{"src_ref", "dst_ref", "src_port", "dst_port"}, lists: []string{"protocols"}},
	"process":              {scalars: []string{"pid", "command_line"}},
	"software":             {scalars: []string{"name", "cpe", "vendor", "version"}, lists: []string{"languages"}},
	"url":                  {scalars: []string{"value"}},
	"user-account":         {scalars: []string{"user_id", "account_login", "display_name"}},
	"windows-registry-key": {scalars: []string{"key"}},
	"x509-certificate":     {scalars: []string{"serial_number", "issuer", "subject"}},
}

// NormalizeFields returns the complete scalar and list property sets for a
// kind: every schema field is present, absent ones defaulted to "" or an
// empty list, followed by any extra fields the record carried.
func NormalizeFields(kind string, fields map[string]string, lists map[string][]string) (map[string]string, map[string][]string) {
	schema := schemas[kind]
	outFields := make(map[string]string, len(schema.scalars)+len(fields))
	outLists := make(map[string][]string, len(schema.lists)+len(lists))
	for _, name := range schema.scalars {
		outFields[name] = fields[name]
	}
	for _, name := range schema.lists {
		outLists[name] = Strings(lists[name])
	}
	for name, value := range fields {
		outFields[name] = value
	}
	for name, values := range lists {
		outLists[name] = Strings(values)
	}
	return outFields, outLists
}

// Strings defaults an absent list to an empty one.
func Strings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Bool renders an optional boolean; absent is "".
func Bool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

// Int renders an optional integer; absent is "".
func Int(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
