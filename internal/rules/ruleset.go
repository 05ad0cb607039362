package rules

import (
	"sync/atomic"
)

// Set is an immutable collection of parsed rules.
type Set struct {
	rules []Rule
}

// Rules returns the rules in file order.
func (s *Set) Rules() []Rule { return s.rules }

// Find returns the rule with the given id.
func (s *Set) Find(id int) (Rule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Ruleset holds the active rule set and reloads it from disk on demand.
// Reload is all-or-nothing: a parse failure leaves the active set in place,
// and an in-flight evaluation keeps the set it started with.
type Ruleset struct {
	path   string
	active atomic.Pointer[Set]
}

// LoadRuleset parses the file at path and returns a live ruleset bound to
// it.
func LoadRuleset(path string) (*Ruleset, error) {
	set, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	rs := &Ruleset{path: path}
	rs.active.Store(set)
	return rs, nil
}

// Active returns the current rule set.
func (rs *Ruleset) Active() *Set { return rs.active.Load() }

// Reload re-parses the bound file and swaps the active set atomically.
func (rs *Ruleset) Reload() error {
	set, err := ParseFile(rs.path)
	if err != nil {
		return err
	}
	rs.active.Store(set)
	return nil
}
