package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/cache"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/rules"
)

// ErrUnavailable is returned when no prediction can be produced at all,
// i.e. reference data is missing. Missing measurements never cause it;
// they only degrade confidence.
var ErrUnavailable = errors.New("prediction unavailable")

// AlertPublisher receives city-wide early warnings. nil disables alerts.
type AlertPublisher interface {
	Publish(ctx context.Context, ev domain.AlertEvent) error
}

// Explanation answers "why does this subject carry this property": every
// rule instance that derived it, with the rule text and the variable
// bindings that satisfied it.
type Explanation struct {
	Subject   string     `json:"subject"`
	Property  string     `json:"property"`
	Supported bool       `json:"supported"`
	Evidence  []Evidence `json:"evidence"`
}

// Evidence is one supporting rule instance.
type Evidence struct {
	RuleID      int               `json:"rule_id"`
	Description string            `json:"description"`
	RuleText    string            `json:"rule_text"`
	Value       string            `json:"value"`
	Bindings    map[string]string `json:"bindings"`
}

// Predictor is the facade over snapshot, evaluation and aggregation. One
// pass is cached and reused until the cache TTL elapses, so concurrent
// callers within a window share a result.
type Predictor struct {
	ref     domain.Reference
	store   *cache.Store
	ruleset *rules.Ruleset
	engine  *rules.Engine
	alerts  AlertPublisher
	ttl     time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	last *pass
}

type pass struct {
	at         time.Time
	prediction domain.Prediction
	facts      []domain.DerivedFact
}

// New wires a predictor. alerts may be nil.
func New(ref domain.Reference, store *cache.Store, ruleset *rules.Ruleset, engine *rules.Engine, alerts AlertPublisher, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Predictor {
	return &Predictor{
		ref:     ref,
		store:   store,
		ruleset: ruleset,
		engine:  engine,
		alerts:  alerts,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// GetPrediction returns the current flood risk prediction, reusing the
// last pass while it is younger than the TTL.
func (p *Predictor) GetPrediction(ctx context.Context) (domain.Prediction, error) {
	cur, err := p.currentPass(ctx)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.metrics.PredictionsServed.Inc()
	return cur.prediction, nil
}

// DerivedFacts returns the facts of the current pass, optionally filtered
// to one area. An empty area returns everything.
func (p *Predictor) DerivedFacts(ctx context.Context, area string) ([]domain.DerivedFact, error) {
	cur, err := p.currentPass(ctx)
	if err != nil {
		return nil, err
	}
	if area == "" {
		return cur.facts, nil
	}
	var out []domain.DerivedFact
	for _, f := range cur.facts {
		if f.Subject == area {
			out = append(out, f)
		}
	}
	return out, nil
}

// Explain reports which rule instances support a property on a subject.
func (p *Predictor) Explain(ctx context.Context, subject, property string) (Explanation, error) {
	cur, err := p.currentPass(ctx)
	if err != nil {
		return Explanation{}, err
	}

	exp := Explanation{Subject: subject, Property: property}
	set := p.ruleset.Active()
	for _, f := range cur.facts {
		if f.Subject != subject || f.Property != property {
			continue
		}
		ev := Evidence{RuleID: f.RuleID, Value: f.Value, Bindings: f.Bindings}
		if r, ok := set.Find(f.RuleID); ok {
			ev.Description = r.Description
			ev.RuleText = r.Text()
		}
		exp.Evidence = append(exp.Evidence, ev)
	}
	exp.Supported = len(exp.Evidence) > 0
	return exp, nil
}

// ReloadRules swaps the rule set atomically and invalidates the cached
// pass. A parse failure leaves both untouched.
func (p *Predictor) ReloadRules() error {
	if err := p.ruleset.Reload(); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	p.logger.Info("rule set reloaded", "rules", len(p.ruleset.Active().Rules()))
	return nil
}

func (p *Predictor) currentPass(ctx context.Context) (*pass, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != nil && p.clock.Since(p.last.at) < p.ttl {
		return p.last, nil
	}
	next, err := p.run(ctx)
	if err != nil {
		return nil, err
	}
	p.last = next
	return next, nil
}

// run executes one full pass: snapshot, evaluate, aggregate, and raise an
// alert if the pass concluded one.
func (p *Predictor) run(ctx context.Context) (*pass, error) {
	if p.ref.City == "" {
		return nil, fmt.Errorf("%w: no reference data loaded", ErrUnavailable)
	}

	now := p.clock.Now()
	snapshot := p.store.Snapshot()
	records := make([]domain.MeasurementRecord, 0, len(snapshot))
	for key, e := range snapshot {
		records = append(records, domain.MeasurementRecord{
			Measurement: e.Measurement,
			Category:    key.Category,
			Source:      e.Source,
			State:       e.State,
		})
	}

	factStore, err := domain.NewFactStore(p.ref, records, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n := factStore.Dropped(); n > 0 {
		p.logger.Warn("dropped measurements for unknown stations", "count", n)
	}

	start := time.Now()
	facts := p.engine.Evaluate(p.ruleset.Active(), factStore)
	p.metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	prediction := Aggregate(factStore, facts, sourceHealth(snapshot), now)
	p.logger.Info("inference pass complete",
		"analysis_id", prediction.AnalysisID,
		"risk_level", prediction.RiskLevelName,
		"alert_status", prediction.AlertStatus,
		"confidence", prediction.Confidence,
		"facts", len(facts))

	if prediction.AlertStatus == domain.AlertStatusAlert {
		p.publishAlert(ctx, facts, now)
	}
	return &pass{at: now, prediction: prediction, facts: facts}, nil
}

func (p *Predictor) publishAlert(ctx context.Context, facts []domain.DerivedFact, now time.Time) {
	if p.alerts == nil {
		return
	}
	set := p.ruleset.Active()
	for _, f := range facts {
		if f.SubjectKind != domain.SubjectCity || f.Property != domain.PropEarlyWarning {
			continue
		}
		// Resolve the binding names from the deriving rule's own atoms, so
		// a renamed rule variable cannot empty the alert payload.
		dischargeVar, stationVar := "q", "ws"
		if rule, ok := set.Find(f.RuleID); ok {
			if v, ok := rule.PropertyVar("hasDischarge"); ok {
				dischargeVar = v
			}
			if v, ok := rule.RelationVar(domain.RelMeasuredAt); ok {
				stationVar = v
			}
		}
		discharge, _ := strconv.ParseFloat(f.Bindings[dischargeVar], 64)
		ev := domain.AlertEvent{
			City:      f.Subject,
			RuleID:    f.RuleID,
			Discharge: discharge,
			Station:   f.Bindings[stationVar],
			Timestamp: now.UTC(),
		}
		if err := p.alerts.Publish(ctx, ev); err != nil {
			p.logger.Error("publishing alert failed", "city", ev.City, "error", err)
			continue
		}
		p.metrics.AlertsPublished.Inc()
	}
}

// sourceHealth condenses the snapshot into the per-category block exposed
// on predictions: worst state, worst tier, oldest entry.
func sourceHealth(snapshot map[cache.Key]cache.Entry) map[domain.Category]domain.SourceHealth {
	out := map[domain.Category]domain.SourceHealth{
		domain.CategoryMeteo: {State: domain.StateEmpty.String()},
		domain.CategoryHydro: {State: domain.StateEmpty.String()},
	}
	for key, e := range snapshot {
		h := out[key.Category]
		if h.State == domain.StateEmpty.String() {
			h.State = domain.StateFresh.String()
		}
		if e.State == domain.StateStale {
			h.State = domain.StateStale.String()
		}
		if e.Source.Tier >= h.Tier {
			h.Tier = e.Source.Tier
			h.Source = e.Source.Name
		}
		if age := int64(e.Age.Seconds()); age > h.AgeSec {
			h.AgeSec = age
		}
		out[key.Category] = h
	}
	return out
}
