package domain

import (
	"time"
)

// StationKind distinguishes the three kinds of measurement site.
type StationKind string

const (
	StationWeather StationKind = "weather"
	StationHydro   StationKind = "hydro"
	StationDam     StationKind = "dam"
)

// Station is an immutable measurement site loaded from reference data.
type Station struct {
	ID   string
	Name string
	Kind StationKind
	Lat  float64
	Lon  float64

	// AreaName is the isLocatedIn relation; empty for stations outside the
	// city (e.g. upstream river gauges).
	AreaName string

	// Protects lists area names shielded by this dam. Only set for dams.
	Protects []string
}

// GeographicArea is an immutable city area (quarter) with its static
// physical attributes.
type GeographicArea struct {
	Name      string
	SlopeDeg  float64
	AltitudeM float64
	SoilType  string

	// DownstreamOf lists station IDs this area sits downstream of.
	DownstreamOf []string
}

// Category partitions measurements by the kind of upstream provider.
type Category string

const (
	CategoryMeteo Category = "meteo"
	CategoryHydro Category = "hydro"
)

// Attribute names a measured quantity.
type Attribute string

const (
	AttrPrecipitation      Attribute = "precipitation"
	AttrTemperature        Attribute = "temperature"
	AttrHumidity           Attribute = "humidity"
	AttrWindSpeed          Attribute = "windSpeed"
	AttrWaterLevel         Attribute = "waterLevel"
	AttrDischarge          Attribute = "discharge"
	AttrCapacityPercentage Attribute = "capacityPercentage"
)

// Measurement is a typed fact attached to a station at a timestamp.
// Values are never mutated; a refresh produces a new Measurement.
type Measurement struct {
	StationID string
	Timestamp time.Time
	Values    map[Attribute]float64
}

// SourceInfo tags fetched data with the provider that answered.
// Tier 0 is the primary source; higher tiers are fallbacks.
type SourceInfo struct {
	Name string
	Tier int
}

// RiskLevel is the ordinal severity assigned to an area or the city.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskModerate
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskModerate:
		return "ModerateRisk"
	case RiskHigh:
		return "HighRisk"
	default:
		return "None"
	}
}

// ParseRiskLevel maps a rule conclusion value to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch s {
	case "HighRisk":
		return RiskHigh, true
	case "ModerateRisk":
		return RiskModerate, true
	case "None":
		return RiskNone, true
	}
	return RiskNone, false
}

// Derived-fact property names produced by the rule conclusions.
const (
	PropRiskLevel    = "hasRiskLevel"
	PropEarlyWarning = "hasEarlyWarning"
	PropFloodProne   = "isFloodProne"
)

// SubjectKind says whether a derived fact is about an area or the city.
type SubjectKind string

const (
	SubjectArea SubjectKind = "area"
	SubjectCity SubjectKind = "city"
)

// DerivedFact is one conclusion instantiated by a satisfied rule binding.
type DerivedFact struct {
	Subject     string
	SubjectKind SubjectKind
	Property    string
	Value       string
	RuleID      int

	// Bindings holds the variable assignments that satisfied the rule,
	// rendered to strings. Kept for explanations.
	Bindings map[string]string
}

// FreshState classifies a cached value's usability.
type FreshState int

const (
	StateEmpty FreshState = iota
	StateFresh
	StateStale
)

func (s FreshState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "empty"
	}
}

// CategoryHealth summarizes the freshness of one category's measurements at
// snapshot time. It feeds confidence scoring.
type CategoryHealth struct {
	Fresh  int
	Stale  int
	Absent bool
	// Tier is the worst source tier among the category's entries.
	Tier int
}

// AreaRisk is the per-area slice of a Prediction, ranked by severity.
type AreaRisk struct {
	Area       string    `json:"area"`
	Level      RiskLevel `json:"-"`
	LevelName  string    `json:"risk_level"`
	FloodProne bool      `json:"flood_prone"`
	RuleIDs    []int     `json:"rule_ids,omitempty"`
	Reasons    []string  `json:"reasons,omitempty"`
}

// SourceHealth is the per-category freshness block reported to callers.
type SourceHealth struct {
	State  string `json:"state"`
	Source string `json:"source,omitempty"`
	Tier   int    `json:"tier"`
	AgeSec int64  `json:"age_seconds"`
}

// Prediction is the ephemeral result of one aggregation, produced per
// request and discarded when the underlying data refreshes.
type Prediction struct {
	AnalysisID      string                    `json:"analysis_id"`
	Timestamp       time.Time                 `json:"timestamp"`
	City            string                    `json:"city"`
	RiskLevel       RiskLevel                 `json:"-"`
	RiskLevelName   string                    `json:"risk_level"`
	AlertStatus     string                    `json:"alert_status"`
	Confidence      float64                   `json:"confidence"`
	Areas           []AreaRisk                `json:"areas"`
	Reasons         []string                  `json:"reasons"`
	Recommendations []string                  `json:"recommendations"`
	DataSources     map[Category]SourceHealth `json:"data_sources"`
}

// AlertStatus values carried on a Prediction.
const (
	AlertStatusNormal = "Normal"
	AlertStatusAlert  = "Alert"
)

// AlertEvent is published when an inference pass raises a city-wide early
// warning.
type AlertEvent struct {
	City      string    `json:"city"`
	RuleID    int       `json:"rule_id"`
	Discharge float64   `json:"discharge"`
	Station   string    `json:"station"`
	Timestamp time.Time `json:"timestamp"`
}
