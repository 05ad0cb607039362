// Package domain models the flood-risk knowledge base for the city of
// Ouagadougou.
//
// # Reference Data
//
// Stations (weather stations, hydrological gauging stations, dams) and
// geographic areas are static reference data loaded once at startup. A
// station belongs to an area (isLocatedIn); an area may sit downstream of a
// gauging station (isDownstreamOf); a dam protects one or more areas
// (protects). The relations matter: inference rules only reach a station or
// area through an explicit relation fact, never by name coincidence.
//
// # Measurements
//
// Live measurements are typed attribute→value maps attached to a station at
// a timestamp:
//
//	meteorological: precipitation (mm), temperature (°C), humidity (%),
//	                windSpeed (m/s)
//	hydrological:   waterLevel (m), discharge (m³/s), capacityPercentage (%)
//
// Measurements are superseded by each refresh, never mutated. Water level at
// FANFAR gauging stations is estimated from discharge (÷20), a carry-over
// from the operational model calibration; see the source package.
//
// # Fact Store
//
// A FactStore is an immutable snapshot combining reference data with the
// measurements current at snapshot time, plus per-category freshness. It is
// the sole input to one inference pass: the rule engine reads it through
// class, property, and relation lookups and derives new facts without ever
// writing back. Two passes over the same snapshot produce identical output.
//
// # Risk Vocabulary
//
// Risk levels are ordinal: None < ModerateRisk < HighRisk. A city-wide
// EarlyWarning alert is orthogonal to per-area levels and is triggered by
// the Nakanbé discharge rule at the Wayen station.
package domain
