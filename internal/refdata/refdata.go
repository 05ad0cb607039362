// Package refdata loads the static stations/areas reference data consumed
// by the fact store.
package refdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// FanfarPoint holds the FANFAR model coordinates of a hydrological station.
type FanfarPoint struct {
	SubID int     `yaml:"subid"`
	Y     float64 `yaml:"y"`
}

type stationYAML struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Kind     string       `yaml:"kind"`
	Lat      float64      `yaml:"lat"`
	Lon      float64      `yaml:"lon"`
	Area     string       `yaml:"area"`
	Protects []string     `yaml:"protects"`
	Fanfar   *FanfarPoint `yaml:"fanfar"`
}

type areaYAML struct {
	Name         string   `yaml:"name"`
	Slope        float64  `yaml:"slope"`
	Altitude     float64  `yaml:"altitude"`
	SoilType     string   `yaml:"soil_type"`
	DownstreamOf []string `yaml:"downstream_of"`
}

type fileYAML struct {
	City     string        `yaml:"city"`
	Stations []stationYAML `yaml:"stations"`
	Areas    []areaYAML    `yaml:"areas"`
}

// Load parses and validates the reference data file. It returns the
// immutable reference bundle and the FANFAR coordinates for hydrological
// stations, keyed by station id.
func Load(path string) (domain.Reference, map[string]FanfarPoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Reference{}, nil, fmt.Errorf("read reference data: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates reference data from YAML bytes.
func Parse(raw []byte) (domain.Reference, map[string]FanfarPoint, error) {
	var f fileYAML
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.Reference{}, nil, fmt.Errorf("parse reference data: %w", err)
	}
	if f.City == "" {
		return domain.Reference{}, nil, fmt.Errorf("reference data: city is required")
	}

	ref := domain.Reference{
		City:     f.City,
		Stations: make(map[string]domain.Station, len(f.Stations)),
		Areas:    make(map[string]domain.GeographicArea, len(f.Areas)),
	}
	fanfar := make(map[string]FanfarPoint)

	for _, a := range f.Areas {
		if a.Name == "" {
			return domain.Reference{}, nil, fmt.Errorf("reference data: area without a name")
		}
		if _, dup := ref.Areas[a.Name]; dup {
			return domain.Reference{}, nil, fmt.Errorf("reference data: duplicate area %q", a.Name)
		}
		ref.Areas[a.Name] = domain.GeographicArea{
			Name:         a.Name,
			SlopeDeg:     a.Slope,
			AltitudeM:    a.Altitude,
			SoilType:     a.SoilType,
			DownstreamOf: a.DownstreamOf,
		}
	}

	for _, s := range f.Stations {
		if s.ID == "" {
			return domain.Reference{}, nil, fmt.Errorf("reference data: station without an id")
		}
		if _, dup := ref.Stations[s.ID]; dup {
			return domain.Reference{}, nil, fmt.Errorf("reference data: duplicate station %q", s.ID)
		}
		kind, err := parseKind(s.Kind)
		if err != nil {
			return domain.Reference{}, nil, fmt.Errorf("reference data: station %q: %w", s.ID, err)
		}
		if s.Area != "" {
			if _, ok := ref.Areas[s.Area]; !ok {
				return domain.Reference{}, nil, fmt.Errorf("reference data: station %q located in unknown area %q", s.ID, s.Area)
			}
		}
		for _, p := range s.Protects {
			if _, ok := ref.Areas[p]; !ok {
				return domain.Reference{}, nil, fmt.Errorf("reference data: station %q protects unknown area %q", s.ID, p)
			}
		}
		if kind != domain.StationWeather {
			if s.Fanfar == nil {
				return domain.Reference{}, nil, fmt.Errorf("reference data: hydrological station %q has no fanfar coordinates", s.ID)
			}
			fanfar[s.ID] = *s.Fanfar
		}
		ref.Stations[s.ID] = domain.Station{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     kind,
			Lat:      s.Lat,
			Lon:      s.Lon,
			AreaName: s.Area,
			Protects: s.Protects,
		}
	}

	// Relations must resolve: a dangling isDownstreamOf would silently
	// disable rule joins for that area.
	for name, a := range ref.Areas {
		for _, id := range a.DownstreamOf {
			if _, ok := ref.Stations[id]; !ok {
				return domain.Reference{}, nil, fmt.Errorf("reference data: area %q downstream of unknown station %q", name, id)
			}
		}
	}

	return ref, fanfar, nil
}

func parseKind(s string) (domain.StationKind, error) {
	switch s {
	case "weather":
		return domain.StationWeather, nil
	case "hydro":
		return domain.StationHydro, nil
	case "dam":
		return domain.StationDam, nil
	}
	return "", fmt.Errorf("unknown station kind %q", s)
}
