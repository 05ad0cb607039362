// Package rules parses a textual SWRL-style rule file and evaluates the
// rules against a fact store snapshot. Evaluation is pure: it reads the
// snapshot and produces derived facts without mutating anything.
package rules

import (
	"fmt"
	"strings"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// binding is a partial assignment of rule variables to terms. Atoms extend
// bindings; a binding that cannot be extended is dropped.
type binding map[string]domain.Term

func (b binding) clone() binding {
	c := make(binding, len(b)+1)
	for k, v := range b {
		c[k] = v
	}
	return c
}

// BindingError reports a guard or lookup that hit an unbound or wrongly
// typed variable. The offending rule instance is skipped; the pass
// continues.
type BindingError struct {
	RuleID int
	Atom   string
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("rule %d: %s: %s", e.RuleID, e.Atom, e.Reason)
}

// operand is an atom argument: either a variable or a literal term.
type operand struct {
	isVar bool
	name  string
	lit   domain.Term
}

func (o operand) String() string {
	if o.isVar {
		return "?" + o.name
	}
	if o.lit.Kind == domain.TermString {
		return fmt.Sprintf("%q", o.lit.Str)
	}
	return o.lit.String()
}

// Atom is one conjunct of a rule body.
type Atom interface {
	// extend returns every binding that satisfies the atom given a partial
	// binding. An empty result drops the binding; an error marks the whole
	// instance unusable.
	extend(store *domain.FactStore, ruleID int, b binding) ([]binding, error)
	String() string
}

// ClassAtom asserts that a variable is an entity of a class, e.g. Zone(?z).
type ClassAtom struct {
	Class string
	Var   string
}

func (a ClassAtom) String() string { return fmt.Sprintf("%s(?%s)", a.Class, a.Var) }

func (a ClassAtom) extend(store *domain.FactStore, ruleID int, b binding) ([]binding, error) {
	if t, ok := b[a.Var]; ok {
		if t.Kind != domain.TermEntity {
			return nil, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "variable bound to a literal"}
		}
		for _, id := range store.EntitiesOf(a.Class) {
			if id == t.Str {
				return []binding{b}, nil
			}
		}
		return nil, nil
	}
	var out []binding
	for _, id := range store.EntitiesOf(a.Class) {
		nb := b.clone()
		nb[a.Var] = domain.EntityTerm(id)
		out = append(out, nb)
	}
	return out, nil
}

// PropertyAtom looks a property up on a bound entity, e.g.
// hasPrecipitation(?m, ?p) or hasSoilType(?z, "hydromorphic").
type PropertyAtom struct {
	Property string
	Subject  operand
	Object   operand
}

func (a PropertyAtom) String() string {
	return fmt.Sprintf("%s(%s, %s)", a.Property, a.Subject, a.Object)
}

func (a PropertyAtom) extend(store *domain.FactStore, ruleID int, b binding) ([]binding, error) {
	subj, ok := b[a.Subject.name]
	if !ok || subj.Kind != domain.TermEntity {
		return nil, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "subject not bound to an entity"}
	}
	v, ok := store.Property(subj.Str, a.Property)
	if !ok {
		return nil, nil
	}
	if a.Object.isVar {
		if bound, ok := b[a.Object.name]; ok {
			if !termsEqual(bound, v) {
				return nil, nil
			}
			return []binding{b}, nil
		}
		nb := b.clone()
		nb[a.Object.name] = v
		return []binding{nb}, nil
	}
	if !termsEqual(a.Object.lit, v) {
		return nil, nil
	}
	return []binding{b}, nil
}

// RelationAtom requires a relation fact between two entities, e.g.
// isDownstreamOf(?z, ?s). With the object unbound it fans out over every
// related entity.
type RelationAtom struct {
	Relation string
	Subject  operand
	Object   operand
}

func (a RelationAtom) String() string {
	return fmt.Sprintf("%s(%s, %s)", a.Relation, a.Subject, a.Object)
}

func (a RelationAtom) extend(store *domain.FactStore, ruleID int, b binding) ([]binding, error) {
	subj, ok := b[a.Subject.name]
	if !ok || subj.Kind != domain.TermEntity {
		return nil, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "subject not bound to an entity"}
	}
	if obj, ok := b[a.Object.name]; ok {
		if obj.Kind != domain.TermEntity || !store.HasRelation(a.Relation, subj.Str, obj.Str) {
			return nil, nil
		}
		return []binding{b}, nil
	}
	var out []binding
	for _, id := range store.Objects(a.Relation, subj.Str) {
		nb := b.clone()
		nb[a.Object.name] = domain.EntityTerm(id)
		out = append(out, nb)
	}
	return out, nil
}

// Comparison operators supported by guard atoms.
const (
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
	OpEqual       = "equal"
)

// ComparisonAtom is a swrlb guard. Both operands must already be bound.
type ComparisonAtom struct {
	Op    string
	Left  operand
	Right operand
}

func (a ComparisonAtom) String() string {
	return fmt.Sprintf("swrlb:%s(%s, %s)", a.Op, a.Left, a.Right)
}

func (a ComparisonAtom) extend(_ *domain.FactStore, ruleID int, b binding) ([]binding, error) {
	left, err := a.resolve(a.Left, ruleID, b)
	if err != nil {
		return nil, err
	}
	right, err := a.resolve(a.Right, ruleID, b)
	if err != nil {
		return nil, err
	}

	switch a.Op {
	case OpEqual:
		if termsEqual(left, right) {
			return []binding{b}, nil
		}
		return nil, nil
	case OpGreaterThan, OpLessThan:
		if left.Kind != domain.TermNumber || right.Kind != domain.TermNumber {
			return nil, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "numeric comparison on non-numeric operand"}
		}
		ok := left.Num > right.Num
		if a.Op == OpLessThan {
			ok = left.Num < right.Num
		}
		if ok {
			return []binding{b}, nil
		}
		return nil, nil
	default:
		return nil, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "unknown operator"}
	}
}

func (a ComparisonAtom) resolve(o operand, ruleID int, b binding) (domain.Term, error) {
	if !o.isVar {
		return o.lit, nil
	}
	t, ok := b[o.name]
	if !ok {
		return domain.Term{}, &BindingError{RuleID: ruleID, Atom: a.String(), Reason: "unbound variable ?" + o.name}
	}
	return t, nil
}

func termsEqual(a, b domain.Term) bool {
	if a.Kind == domain.TermNumber && b.Kind == domain.TermNumber {
		return a.Num == b.Num
	}
	return strings.EqualFold(a.String(), b.String())
}

// Head is the single conclusion of a rule: a property assigned to the
// entity a variable is bound to.
type Head struct {
	Property string
	Subject  string
	Value    string
}

func (h Head) String() string {
	return fmt.Sprintf("%s(?%s, %q)", h.Property, h.Subject, h.Value)
}

// Rule is one parsed, immutable rule.
type Rule struct {
	ID          int
	Description string
	Body        []Atom
	Head        Head
}

// PropertyVar returns the variable the first body atom with the given
// property binds its value to. Callers that read bindings by name should
// resolve the name here rather than assume what the rule file calls it.
func (r Rule) PropertyVar(property string) (string, bool) {
	for _, a := range r.Body {
		if pa, ok := a.(PropertyAtom); ok && pa.Property == property && pa.Object.isVar {
			return pa.Object.name, true
		}
	}
	return "", false
}

// RelationVar returns the object variable of the first body atom with the
// given relation.
func (r Rule) RelationVar(relation string) (string, bool) {
	for _, a := range r.Body {
		if ra, ok := a.(RelationAtom); ok && ra.Relation == relation {
			return ra.Object.name, true
		}
	}
	return "", false
}

// Text renders the rule back to its source form, used by explanations.
func (r Rule) Text() string {
	parts := make([]string, len(r.Body))
	for i, a := range r.Body {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ^ ") + " -> " + r.Head.String()
}
