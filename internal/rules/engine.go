package rules

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
)

// Engine evaluates a rule set against a fact store snapshot. Evaluation is
// a single pass: no rule consumes another rule's conclusion, so running it
// twice over the same snapshot yields the same facts.
type Engine struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates an evaluation engine.
func NewEngine(logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{logger: logger, metrics: metrics}
}

// Evaluate runs every rule and returns the derived facts, deduplicated and
// sorted by rule id then subject. A binding error skips that instance only;
// the pass always completes.
func (e *Engine) Evaluate(set *Set, store *domain.FactStore) []domain.DerivedFact {
	var facts []domain.DerivedFact
	seen := map[factKey]bool{}

	for _, rule := range set.Rules() {
		bindings := []binding{{}}
		for _, atom := range rule.Body {
			var next []binding
			for _, b := range bindings {
				ext, err := atom.extend(store, rule.ID, b)
				if err != nil {
					e.logger.Warn("rule instance skipped", "error", err)
					e.metrics.RuleBindingErrors.Inc()
					continue
				}
				next = append(next, ext...)
			}
			bindings = next
			if len(bindings) == 0 {
				break
			}
		}

		for _, b := range bindings {
			fact, err := e.conclude(rule, store, b)
			if err != nil {
				e.logger.Warn("rule conclusion skipped", "error", err)
				e.metrics.RuleBindingErrors.Inc()
				continue
			}
			key := factKey{fact.Subject, fact.Property, fact.Value, fact.RuleID}
			if seen[key] {
				continue
			}
			seen[key] = true
			facts = append(facts, fact)
			e.metrics.RuleInstances.WithLabelValues(strconv.Itoa(rule.ID)).Inc()
		}
	}

	sort.Slice(facts, func(i, j int) bool {
		if facts[i].RuleID != facts[j].RuleID {
			return facts[i].RuleID < facts[j].RuleID
		}
		if facts[i].Subject != facts[j].Subject {
			return facts[i].Subject < facts[j].Subject
		}
		return facts[i].Property < facts[j].Property
	})
	return facts
}

type factKey struct {
	subject  string
	property string
	value    string
	ruleID   int
}

func (e *Engine) conclude(rule Rule, store *domain.FactStore, b binding) (domain.DerivedFact, error) {
	subj, ok := b[rule.Head.Subject]
	if !ok || subj.Kind != domain.TermEntity {
		return domain.DerivedFact{}, &BindingError{
			RuleID: rule.ID,
			Atom:   rule.Head.String(),
			Reason: "conclusion subject ?" + rule.Head.Subject + " not bound to an entity",
		}
	}

	kind := domain.SubjectArea
	for _, id := range store.EntitiesOf(domain.ClassCity) {
		if id == subj.Str {
			kind = domain.SubjectCity
			break
		}
	}

	rendered := make(map[string]string, len(b))
	for name, t := range b {
		rendered[name] = t.String()
	}

	return domain.DerivedFact{
		Subject:     subj.Str,
		SubjectKind: kind,
		Property:    rule.Head.Property,
		Value:       rule.Head.Value,
		RuleID:      rule.ID,
		Bindings:    rendered,
	}, nil
}
