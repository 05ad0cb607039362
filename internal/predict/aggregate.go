// Package predict turns derived facts into the prediction served to
// callers: per-area risk, a city-wide level, confidence, reasons and
// recommendations.
package predict

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// tierPenalty discounts confidence once per fallback tier a category had to
// descend; freshness scales the remainder. An absent category scores a
// flat floor so missing data always reads worse than stale data.
const (
	tierPenalty   = 0.85
	absentScore   = 0.25
	staleBaseline = 0.5
)

// Aggregate folds one evaluation pass into a Prediction. sources carries
// the per-category freshness block computed from the cache snapshot.
func Aggregate(store *domain.FactStore, facts []domain.DerivedFact, sources map[domain.Category]domain.SourceHealth, now time.Time) domain.Prediction {
	areas := aggregateAreas(store, facts)

	cityLevel := domain.RiskNone
	for _, a := range areas {
		if a.Level > cityLevel {
			cityLevel = a.Level
		}
	}

	alert := domain.AlertStatusNormal
	var reasons []string
	for _, a := range areas {
		reasons = append(reasons, a.Reasons...)
	}
	for _, f := range facts {
		if f.SubjectKind == domain.SubjectCity && f.Property == domain.PropEarlyWarning {
			alert = domain.AlertStatusAlert
			reasons = append(reasons, reasonFor(f))
		}
	}

	return domain.Prediction{
		AnalysisID:      fmt.Sprintf("analysis-%x", now.UnixNano()),
		Timestamp:       now.UTC(),
		City:            store.City(),
		RiskLevel:       cityLevel,
		RiskLevelName:   cityLevel.String(),
		AlertStatus:     alert,
		Confidence:      Confidence(store.Health()),
		Areas:           areas,
		Reasons:         reasons,
		Recommendations: recommendations(cityLevel, alert),
		DataSources:     sources,
	}
}

// aggregateAreas folds facts by area: the level is the worst severity
// derived for it, reasons follow rule id order so ties read consistently.
func aggregateAreas(store *domain.FactStore, facts []domain.DerivedFact) []domain.AreaRisk {
	byArea := make(map[string]*domain.AreaRisk)
	for name := range store.Areas() {
		byArea[name] = &domain.AreaRisk{Area: name, LevelName: domain.RiskNone.String()}
	}

	for _, f := range facts {
		if f.SubjectKind != domain.SubjectArea {
			continue
		}
		a, ok := byArea[f.Subject]
		if !ok {
			continue
		}
		switch f.Property {
		case domain.PropFloodProne:
			a.FloodProne = f.Value == "true"
		case domain.PropRiskLevel:
			level, ok := domain.ParseRiskLevel(f.Value)
			if !ok {
				continue
			}
			if level > a.Level {
				a.Level = level
				a.LevelName = level.String()
			}
			a.RuleIDs = append(a.RuleIDs, f.RuleID)
			a.Reasons = append(a.Reasons, reasonFor(f))
		}
	}

	out := make([]domain.AreaRisk, 0, len(byArea))
	for _, a := range byArea {
		sort.Ints(a.RuleIDs)
		out = append(out, *a)
	}
	// Worst areas first; names break ties so output is stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Area < out[j].Area
	})
	return out
}

// Confidence scores how much the current snapshot can be trusted: each
// category contributes the fraction of fresh entries scaled down once per
// fallback tier, and an absent category contributes the floor. The score
// never increases when data goes stale, a fallback answers, or a category
// disappears.
func Confidence(health map[domain.Category]domain.CategoryHealth) float64 {
	cats := []domain.Category{domain.CategoryMeteo, domain.CategoryHydro}
	var sum float64
	for _, cat := range cats {
		h := health[cat]
		if h.Absent {
			sum += absentScore
			continue
		}
		total := h.Fresh + h.Stale
		freshFrac := float64(h.Fresh) / float64(total)
		score := (staleBaseline + staleBaseline*freshFrac) * math.Pow(tierPenalty, float64(h.Tier))
		sum += score
	}
	return sum / float64(len(cats))
}

func reasonFor(f domain.DerivedFact) string {
	b := f.Bindings
	switch f.RuleID {
	case 1:
		return fmt.Sprintf("%s: heavy rainfall (%s mm) while the upstream river stands at %s m", f.Subject, b["p"], b["w"])
	case 2:
		return fmt.Sprintf("%s: dam upstream at %s%% of capacity", f.Subject, b["c"])
	case 3:
		return fmt.Sprintf("%s: flat hydromorphic ground saturating under %s mm of rain", f.Subject, b["p"])
	case 4:
		return fmt.Sprintf("%s: high discharge (%s m3/s) at the Gonse gauge upstream", f.Subject, b["q"])
	case 5:
		return fmt.Sprintf("early warning: discharge at Wayen reached %s m3/s", b["q"])
	default:
		return fmt.Sprintf("%s: %s set to %s (rule %d)", f.Subject, f.Property, f.Value, f.RuleID)
	}
}

func recommendations(level domain.RiskLevel, alert string) []string {
	var recs []string
	switch level {
	case domain.RiskHigh:
		recs = []string{
			"Evacuate low-lying and flood-prone areas",
			"Move people and goods to higher ground",
			"Do not cross flooded roads or waterways",
			"Follow civil protection instructions",
		}
	case domain.RiskModerate:
		recs = []string{
			"Monitor water levels in at-risk areas",
			"Prepare an emergency kit and important documents",
			"Clear drainage channels around dwellings",
			"Stay informed through official bulletins",
		}
	default:
		recs = []string{
			"Maintain normal vigilance",
			"Keep drains and gutters clear",
		}
	}
	if alert == domain.AlertStatusAlert {
		recs = append(recs, "Early warning in effect: activate the municipal flood plan")
	}
	return recs
}
