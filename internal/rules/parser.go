package rules

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// ErrRuleParse tags every parse failure. A failed parse never alters the
// active rule set.
var ErrRuleParse = errors.New("rule parse error")

var headerRe = regexp.MustCompile(`^#\s*Rule\s+(\d+)\s*:\s*(.*)$`)

// relation names recognized by the parser; every other binary predicate is
// treated as a property lookup.
var relationNames = map[string]bool{
	domain.RelMeasuredAt:     true,
	domain.RelIsLocatedIn:    true,
	domain.RelIsDownstreamOf: true,
	domain.RelProtects:       true,
}

// ParseFile reads and parses a rule file.
func ParseFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the whole input and returns the rule set, or an error wrapping
// ErrRuleParse on the first malformed rule. Rules look like:
//
//	# Rule 1: heavy rain over a zone with a swollen river nearby
//	MeteorologicalData(?m) ^ hasPrecipitation(?m, ?p) ^
//	swrlb:greaterThan(?p, 30.0) -> hasRiskLevel(?z, "HighRisk")
//
// A rule body may span lines; the next "# Rule" header or EOF ends it.
// Other comment lines are ignored.
func Parse(r io.Reader) (*Set, error) {
	var (
		rules   []Rule
		current *Rule
		text    strings.Builder
		seen    = map[int]bool{}
	)

	finish := func() error {
		if current == nil {
			return nil
		}
		if err := parseRuleText(current, text.String()); err != nil {
			return err
		}
		rules = append(rules, *current)
		current = nil
		text.Reset()
		return nil
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if m := headerRe.FindStringSubmatch(line); m != nil {
			if err := finish(); err != nil {
				return nil, err
			}
			id, _ := strconv.Atoi(m[1])
			if seen[id] {
				return nil, fmt.Errorf("%w: line %d: duplicate rule id %d", ErrRuleParse, lineNo, id)
			}
			seen[id] = true
			current = &Rule{ID: id, Description: strings.TrimSpace(m[2])}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("%w: line %d: rule text outside a rule header", ErrRuleParse, lineNo)
		}
		text.WriteString(line)
		text.WriteString(" ")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules found", ErrRuleParse)
	}
	return &Set{rules: rules}, nil
}

func parseRuleText(r *Rule, text string) error {
	parts := strings.Split(text, "->")
	if len(parts) != 2 {
		return fmt.Errorf("%w: rule %d: expected exactly one \"->\"", ErrRuleParse, r.ID)
	}

	for _, raw := range strings.Split(parts[0], "^") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return fmt.Errorf("%w: rule %d: empty atom", ErrRuleParse, r.ID)
		}
		atom, err := parseAtom(r.ID, raw)
		if err != nil {
			return err
		}
		r.Body = append(r.Body, atom)
	}
	if len(r.Body) == 0 {
		return fmt.Errorf("%w: rule %d: empty body", ErrRuleParse, r.ID)
	}

	head, err := parseHead(r.ID, strings.TrimSpace(parts[1]))
	if err != nil {
		return err
	}
	r.Head = head
	return nil
}

func parseAtom(ruleID int, raw string) (Atom, error) {
	name, args, err := splitCall(ruleID, raw)
	if err != nil {
		return nil, err
	}

	if op, ok := strings.CutPrefix(name, "swrlb:"); ok {
		if op != OpGreaterThan && op != OpLessThan && op != OpEqual {
			return nil, fmt.Errorf("%w: rule %d: unknown builtin %q", ErrRuleParse, ruleID, name)
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: rule %d: %s takes 2 arguments", ErrRuleParse, ruleID, name)
		}
		return ComparisonAtom{Op: op, Left: args[0], Right: args[1]}, nil
	}

	switch len(args) {
	case 1:
		if !args[0].isVar {
			return nil, fmt.Errorf("%w: rule %d: class atom %s needs a variable", ErrRuleParse, ruleID, name)
		}
		return ClassAtom{Class: name, Var: args[0].name}, nil
	case 2:
		if !args[0].isVar {
			return nil, fmt.Errorf("%w: rule %d: %s subject must be a variable", ErrRuleParse, ruleID, name)
		}
		if relationNames[name] {
			if !args[1].isVar {
				return nil, fmt.Errorf("%w: rule %d: %s object must be a variable", ErrRuleParse, ruleID, name)
			}
			return RelationAtom{Relation: name, Subject: args[0], Object: args[1]}, nil
		}
		return PropertyAtom{Property: name, Subject: args[0], Object: args[1]}, nil
	default:
		return nil, fmt.Errorf("%w: rule %d: atom %q has %d arguments", ErrRuleParse, ruleID, name, len(args))
	}
}

func parseHead(ruleID int, raw string) (Head, error) {
	name, args, err := splitCall(ruleID, raw)
	if err != nil {
		return Head{}, err
	}
	if strings.HasPrefix(name, "swrlb:") || relationNames[name] {
		return Head{}, fmt.Errorf("%w: rule %d: conclusion must be a property atom", ErrRuleParse, ruleID)
	}
	if len(args) != 2 || !args[0].isVar || args[1].isVar || args[1].lit.Kind != domain.TermString {
		return Head{}, fmt.Errorf("%w: rule %d: conclusion must be prop(?var, \"value\")", ErrRuleParse, ruleID)
	}
	return Head{Property: name, Subject: args[0].name, Value: args[1].lit.Str}, nil
}

func splitCall(ruleID int, raw string) (string, []operand, error) {
	open := strings.IndexByte(raw, '(')
	if open <= 0 || !strings.HasSuffix(raw, ")") {
		return "", nil, fmt.Errorf("%w: rule %d: malformed atom %q", ErrRuleParse, ruleID, raw)
	}
	name := strings.TrimSpace(raw[:open])
	inner := raw[open+1 : len(raw)-1]

	var args []operand
	for _, part := range strings.Split(inner, ",") {
		arg, err := parseOperand(ruleID, strings.TrimSpace(part))
		if err != nil {
			return "", nil, err
		}
		args = append(args, arg)
	}
	return name, args, nil
}

func parseOperand(ruleID int, raw string) (operand, error) {
	switch {
	case raw == "":
		return operand{}, fmt.Errorf("%w: rule %d: empty argument", ErrRuleParse, ruleID)
	case strings.HasPrefix(raw, "?"):
		return operand{isVar: true, name: raw[1:]}, nil
	case strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2:
		return operand{lit: domain.StringTerm(raw[1 : len(raw)-1])}, nil
	default:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return operand{}, fmt.Errorf("%w: rule %d: invalid literal %q", ErrRuleParse, ruleID, raw)
		}
		return operand{lit: domain.NumberTerm(n)}, nil
	}
}
