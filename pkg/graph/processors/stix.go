package processors

import (
	"context"

	"github.com/athapong/stix2graph/pkg/stix"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stix2graph_bundle_decode_duration_seconds",
			Help: "Time spent decoding bundles",
		},
		[]string{"status"},
	)

	objectsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_objects_decoded_total",
			Help: "Number of objects decoded from bundles",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(decodeDuration)
	prometheus.MustRegister(objectsDecoded)
}

// commonKeys are decoded into stix.Common and never repeated as
// kind-specific fields.
var commonKeys = mapset.NewSet[string](
	"type", "id", "spec_version", "created", "modified", "created_by_ref",
	"revoked", "labels", "confidence", "lang", "external_references",
	"object_marking_refs", "granular_markings",
)

// BundleProcessor decodes STIX 2.x JSON into records.
type BundleProcessor struct {
	logger logrus.FieldLogger
}

// NewBundleProcessor creates a new bundle processor. A nil logger falls back
// to a JSON logrus logger.
func NewBundleProcessor(logger logrus.FieldLogger) *BundleProcessor {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &BundleProcessor{logger: logger}
}

// Decode accepts a bundle, a bare array of objects or a single object and
// returns the records in document order. Objects without a type or id are
// logged and skipped.
func (p *BundleProcessor) Decode(ctx context.Context, content []byte) ([]stix.Record, error) {
	status := "error"
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		decodeDuration.WithLabelValues(status).Observe(v)
	}))
	defer timer.ObserveDuration()

	if !gjson.ValidBytes(content) {
		return nil, errors.New("invalid JSON document")
	}

	root := gjson.ParseBytes(content)
	var objects []gjson.Result
	switch {
	case root.Get("type").String() == "bundle":
		objects = root.Get("objects").Array()
	case root.IsArray():
		objects = root.Array()
	case root.IsObject():
		objects = []gjson.Result{root}
	default:
		return nil, errors.New("document is neither a bundle nor an object")
	}

	records := make([]stix.Record, 0, len(objects))
	for i, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := DecodeObject(obj)
		if err != nil {
			p.logger.WithError(err).WithField("position", i).Warn("Skipping object")
			continue
		}
		objectsDecoded.WithLabelValues(rec.Kind()).Inc()
		records = append(records, rec)
	}

	status = "success"
	p.logger.WithField("records", len(records)).Debug("Bundle decoded")
	return records, nil
}

// DecodeObject decodes one STIX object. Unknown kinds, including custom
// "x-" kinds, decode as domain objects.
func DecodeObject(obj gjson.Result) (stix.Record, error) {
	if !obj.IsObject() {
		return nil, errors.New("object is not a JSON object")
	}
	common := decodeCommon(obj)
	if common.Type == "" {
		return nil, errors.New("object has no type")
	}
	if common.ID == "" {
		return nil, errors.Errorf("%s object has no id", common.Type)
	}

	switch {
	case common.Type == stix.KindRelationship:
		return &stix.RelationshipObject{
			Common:           common,
			RelationshipType: obj.Get("relationship_type").String(),
			Description:      obj.Get("description").String(),
			SourceRef:        obj.Get("source_ref").String(),
			TargetRef:        obj.Get("target_ref").String(),
			StartTime:        obj.Get("start_time").String(),
			StopTime:         obj.Get("stop_time").String(),
		}, nil
	case common.Type == stix.KindSighting:
		return &stix.SightingObject{
			Common:           common,
			Description:      obj.Get("description").String(),
			FirstSeen:        obj.Get("first_seen").String(),
			LastSeen:         obj.Get("last_seen").String(),
			Count:            optInt(obj.Get("count")),
			SightingOfRef:    obj.Get("sighting_of_ref").String(),
			ObservedDataRefs: stringList(obj.Get("observed_data_refs")),
			WhereSightedRefs: stringList(obj.Get("where_sighted_refs")),
			Summary:          optBool(obj.Get("summary")),
		}, nil
	case common.Type == stix.KindMarkingDefinition:
		return &stix.MarkingDefinition{
			Common:         common,
			Name:           obj.Get("name").String(),
			DefinitionType: obj.Get("definition_type").String(),
			Definition:     decodeMarking(obj.Get("definition")),
		}, nil
	case common.Type == stix.KindLanguageContent:
		return &stix.LanguageContent{
			Common:         common,
			ObjectRef:      obj.Get("object_ref").String(),
			ObjectModified: obj.Get("object_modified").String(),
			Contents:       decodeContents(obj.Get("contents")),
		}, nil
	case stix.ObservableKinds.Contains(common.Type):
		fields, lists := extraFields(obj, "hashes")
		return &stix.ObservableObject{
			Common: common,
			Fields: fields,
			Lists:  lists,
			Hashes: decodeHashes(obj.Get("hashes")),
		}, nil
	default:
		fields, lists := extraFields(obj, "kill_chain_phases", "object_refs")
		return &stix.DomainObject{
			Common:          common,
			Fields:          fields,
			Lists:           lists,
			KillChainPhases: decodeKillChainPhases(obj.Get("kill_chain_phases")),
			ObjectRefs:      stringList(obj.Get("object_refs")),
		}, nil
	}
}

func decodeCommon(obj gjson.Result) stix.Common {
	c := stix.Common{
		Type:              obj.Get("type").String(),
		ID:                obj.Get("id").String(),
		SpecVersion:       obj.Get("spec_version").String(),
		Created:           obj.Get("created").String(),
		Modified:          obj.Get("modified").String(),
		CreatedByRef:      obj.Get("created_by_ref").String(),
		Revoked:           optBool(obj.Get("revoked")),
		Labels:            stringList(obj.Get("labels")),
		Confidence:        optInt(obj.Get("confidence")),
		Lang:              obj.Get("lang").String(),
		ObjectMarkingRefs: stringList(obj.Get("object_marking_refs")),
	}
	obj.Get("external_references").ForEach(func(_, ref gjson.Result) bool {
		c.ExternalReferences = append(c.ExternalReferences, stix.ExternalReference{
			SourceName:  ref.Get("source_name").String(),
			Description: ref.Get("description").String(),
			URL:         ref.Get("url").String(),
			ExternalID:  ref.Get("external_id").String(),
			Hashes:      decodeHashes(ref.Get("hashes")),
		})
		return true
	})
	obj.Get("granular_markings").ForEach(func(_, gm gjson.Result) bool {
		c.GranularMarkings = append(c.GranularMarkings, stix.GranularMarking{
			MarkingRef: gm.Get("marking_ref").String(),
			Lang:       gm.Get("lang").String(),
			Selectors:  stringList(gm.Get("selectors")),
		})
		return true
	})
	return c
}

// decodeMarking selects the marking variant from the keys the definition
// carries.
func decodeMarking(def gjson.Result) stix.MarkingObject {
	switch {
	case def.Get("statement").Exists():
		return stix.StatementMarking{Statement: def.Get("statement").String()}
	case def.Get("tlp").Exists():
		return stix.TLPMarking{TLP: def.Get("tlp").String()}
	default:
		return nil
	}
}

func decodeKillChainPhases(v gjson.Result) []stix.KillChainPhase {
	var phases []stix.KillChainPhase
	v.ForEach(func(_, phase gjson.Result) bool {
		phases = append(phases, stix.KillChainPhase{
			KillChainName: phase.Get("kill_chain_name").String(),
			PhaseName:     phase.Get("phase_name").String(),
		})
		return true
	})
	return phases
}

// decodeHashes keeps the document order of the hashes dictionary.
func decodeHashes(v gjson.Result) []stix.Hash {
	var hashes []stix.Hash
	v.ForEach(func(algorithm, value gjson.Result) bool {
		hashes = append(hashes, stix.Hash{Algorithm: algorithm.String(), Value: value.String()})
		return true
	})
	return hashes
}

func decodeContents(v gjson.Result) []stix.LanguageBlock {
	var blocks []stix.LanguageBlock
	v.ForEach(func(lang, fields gjson.Result) bool {
		block := stix.LanguageBlock{Lang: lang.String()}
		fields.ForEach(func(field, value gjson.Result) bool {
			block.Translations = append(block.Translations, stix.Translation{
				Field: field.String(),
				Value: value.String(),
			})
			return true
		})
		blocks = append(blocks, block)
		return true
	})
	return blocks
}

// extraFields collects the kind-specific properties of obj. Arrays become
// lists; nested objects are kept as raw JSON.
func extraFields(obj gjson.Result, skip ...string) (map[string]string, map[string][]string) {
	skipped := mapset.NewSet[string](skip...)
	fields := make(map[string]string)
	lists := make(map[string][]string)
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if commonKeys.Contains(name) || skipped.Contains(name) {
			return true
		}
		if value.IsArray() {
			lists[name] = stringList(value)
		} else {
			fields[name] = value.String()
		}
		return true
	})
	return fields, lists
}

func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	values := make([]string, 0)
	v.ForEach(func(_, item gjson.Result) bool {
		values = append(values, item.String())
		return true
	})
	return values
}

func optBool(v gjson.Result) *bool {
	if !v.Exists() {
		return nil
	}
	b := v.Bool()
	return &b
}

func optInt(v gjson.Result) *int {
	if !v.Exists() {
		return nil
	}
	i := int(v.Int())
	return &i
}
