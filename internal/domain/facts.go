package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Reference bundles the immutable reference data loaded at startup.
type Reference struct {
	City     string
	Stations map[string]Station
	Areas    map[string]GeographicArea
}

// TermKind tags the value a rule variable is bound to.
type TermKind int

const (
	TermEntity TermKind = iota
	TermNumber
	TermString
)

// Term is a typed value produced by a property lookup or bound by a join.
type Term struct {
	Kind TermKind
	Num  float64
	Str  string // entity id for TermEntity, literal for TermString
}

// NumberTerm and StringTerm build literal terms.
func NumberTerm(n float64) Term { return Term{Kind: TermNumber, Num: n} }
func StringTerm(s string) Term  { return Term{Kind: TermString, Str: s} }
func EntityTerm(id string) Term { return Term{Kind: TermEntity, Str: id} }

func (t Term) String() string {
	if t.Kind == TermNumber {
		return strconv.FormatFloat(t.Num, 'f', -1, 64)
	}
	return t.Str
}

// MeasurementRecord is a Measurement together with its cache provenance,
// as captured at snapshot time.
type MeasurementRecord struct {
	Measurement
	Category Category
	Source   SourceInfo
	State    FreshState
}

// Ontology class names used by rule class atoms.
const (
	ClassWeatherStation = "WeatherStation"
	ClassHydroStation   = "HydrologicalStation"
	ClassDam            = "Dam"
	ClassZone           = "Zone"
	ClassCity           = "City"
	ClassMeteoData      = "MeteorologicalData"
	ClassHydroData      = "HydrologicalData"
)

// Relation names used by rule relation atoms.
const (
	RelMeasuredAt     = "measuredAt"
	RelIsLocatedIn    = "isLocatedIn"
	RelIsDownstreamOf = "isDownstreamOf"
	RelProtects       = "protects"
)

// attributeProperties maps measurement attributes to ontology property names.
var attributeProperties = map[Attribute]string{
	AttrPrecipitation:      "hasPrecipitation",
	AttrTemperature:        "hasTemperature",
	AttrHumidity:           "hasHumidity",
	AttrWindSpeed:          "hasWindSpeed",
	AttrWaterLevel:         "hasWaterLevel",
	AttrDischarge:          "hasDischarge",
	AttrCapacityPercentage: "hasCapacityPercentage",
}

// FactStore is an immutable snapshot of typed facts: reference data plus the
// measurements current at snapshot time. It is never mutated after
// construction, which keeps rule evaluation pure.
type FactStore struct {
	ref     Reference
	records []MeasurementRecord
	health  map[Category]CategoryHealth
	takenAt time.Time
	dropped int

	classes map[string][]string
	props   map[string]map[string]Term
	rels    map[string]map[string][]string
}

// NewFactStore indexes reference data and measurement records into a
// snapshot. Records referencing a station absent from reference data violate
// the measurement invariant and are dropped; the count is reported via
// Dropped so the caller can log it.
func NewFactStore(ref Reference, records []MeasurementRecord, takenAt time.Time) (*FactStore, error) {
	if ref.City == "" {
		return nil, fmt.Errorf("reference data has no city")
	}

	s := &FactStore{
		ref:     ref,
		takenAt: takenAt,
		health:  make(map[Category]CategoryHealth),
		classes: make(map[string][]string),
		props:   make(map[string]map[string]Term),
		rels:    make(map[string]map[string][]string),
	}

	s.indexReference()

	for _, rec := range records {
		if _, ok := ref.Stations[rec.StationID]; !ok {
			s.dropped++
			continue
		}
		s.records = append(s.records, rec)
		s.indexMeasurement(rec)
	}

	s.computeHealth()

	for class := range s.classes {
		sort.Strings(s.classes[class])
	}
	return s, nil
}

func (s *FactStore) indexReference() {
	cityID := s.ref.City
	s.addClass(ClassCity, cityID)
	s.setProp(cityID, "hasName", StringTerm(s.ref.City))

	for id, st := range s.ref.Stations {
		switch st.Kind {
		case StationWeather:
			s.addClass(ClassWeatherStation, id)
		case StationDam:
			s.addClass(ClassDam, id)
		default:
			s.addClass(ClassHydroStation, id)
		}
		s.setProp(id, "hasName", StringTerm(st.Name))
		if st.AreaName != "" {
			s.addRel(RelIsLocatedIn, id, st.AreaName)
		}
		for _, area := range st.Protects {
			s.addRel(RelProtects, id, area)
		}
	}

	for name, area := range s.ref.Areas {
		s.addClass(ClassZone, name)
		s.setProp(name, "hasName", StringTerm(name))
		s.setProp(name, "hasSlope", NumberTerm(area.SlopeDeg))
		s.setProp(name, "hasAltitude", NumberTerm(area.AltitudeM))
		s.setProp(name, "hasSoilType", StringTerm(area.SoilType))
		for _, stationID := range area.DownstreamOf {
			s.addRel(RelIsDownstreamOf, name, stationID)
		}
	}
}

func (s *FactStore) indexMeasurement(rec MeasurementRecord) {
	id := "measurement:" + rec.StationID
	if rec.Category == CategoryMeteo {
		s.addClass(ClassMeteoData, id)
	} else {
		s.addClass(ClassHydroData, id)
	}
	s.addRel(RelMeasuredAt, id, rec.StationID)
	for attr, v := range rec.Values {
		prop, ok := attributeProperties[attr]
		if !ok {
			continue
		}
		s.setProp(id, prop, NumberTerm(v))
	}
}

func (s *FactStore) computeHealth() {
	for _, cat := range []Category{CategoryMeteo, CategoryHydro} {
		s.health[cat] = CategoryHealth{Absent: true}
	}
	for _, rec := range s.records {
		h := s.health[rec.Category]
		h.Absent = false
		switch rec.State {
		case StateFresh:
			h.Fresh++
		default:
			h.Stale++
		}
		if rec.Source.Tier > h.Tier {
			h.Tier = rec.Source.Tier
		}
		s.health[rec.Category] = h
	}
}

func (s *FactStore) addClass(class, id string) {
	s.classes[class] = append(s.classes[class], id)
}

func (s *FactStore) setProp(id, prop string, v Term) {
	m, ok := s.props[id]
	if !ok {
		m = make(map[string]Term)
		s.props[id] = m
	}
	m[prop] = v
}

func (s *FactStore) addRel(rel, subj, obj string) {
	m, ok := s.rels[rel]
	if !ok {
		m = make(map[string][]string)
		s.rels[rel] = m
	}
	m[subj] = append(m[subj], obj)
}

// EntitiesOf returns the entity ids of the given class, sorted for
// deterministic evaluation order.
func (s *FactStore) EntitiesOf(class string) []string {
	return s.classes[class]
}

// Property looks up a property value on an entity.
func (s *FactStore) Property(entity, prop string) (Term, bool) {
	v, ok := s.props[entity][prop]
	return v, ok
}

// Objects returns the objects related to subject by rel.
func (s *FactStore) Objects(rel, subject string) []string {
	return s.rels[rel][subject]
}

// HasRelation reports whether the relation fact (subject, rel, object)
// exists in the snapshot.
func (s *FactStore) HasRelation(rel, subject, object string) bool {
	for _, o := range s.rels[rel][subject] {
		if o == object {
			return true
		}
	}
	return false
}

// Health returns per-category freshness as captured at snapshot time.
func (s *FactStore) Health() map[Category]CategoryHealth { return s.health }

// Records returns the measurement records included in the snapshot.
func (s *FactStore) Records() []MeasurementRecord { return s.records }

// Dropped reports how many records were rejected for referencing an unknown
// station.
func (s *FactStore) Dropped() int { return s.dropped }

// City returns the city name from reference data.
func (s *FactStore) City() string { return s.ref.City }

// Areas returns the reference areas.
func (s *FactStore) Areas() map[string]GeographicArea { return s.ref.Areas }

// Stations returns the reference stations.
func (s *FactStore) Stations() map[string]Station { return s.ref.Stations }

// TakenAt returns the snapshot time.
func (s *FactStore) TakenAt() time.Time { return s.takenAt }
