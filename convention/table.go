//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package convention implements the prioritized table of framework conventions (stop flags are
// nonnull, errors are nullable, ...). Conventions are data: the inference engine only consults
// them for slots on which neither heuristic evidence nor the knowledge base concluded anything,
// and new conventions are added as rules rather than code.
package convention

import (
	"cmp"
	"fmt"
	"os"
	"regexp"
	"slices"

	"go.uber.org/nullinfer/nullability"
	"gopkg.in/yaml.v3"
)

// Rule is one convention. Every non-empty criterion must match for the rule to apply.
type Rule struct {
	Name string
	// Roles restricts the slot roles the rule applies to; empty means any role.
	Roles []nullability.Role
	// Kind restricts the symbol kind, if set.
	Kind *nullability.SymbolKind
	// Symbol, Slot and Type match the symbol identifier, the slot (parameter) name and the
	// declared type text.
	Symbol *regexp.Regexp
	Slot   *regexp.Regexp
	Type   *regexp.Regexp

	State    nullability.State
	Priority int
}

// Matches returns true if the rule applies to the slot of the symbol.
func (r Rule) Matches(sym nullability.Symbol, slot *nullability.Slot) bool {
	if len(r.Roles) > 0 && !slices.Contains(r.Roles, slot.Role) {
		return false
	}
	if r.Kind != nil && *r.Kind != sym.Kind {
		return false
	}
	if r.Symbol != nil && !r.Symbol.MatchString(string(sym.ID)) {
		return false
	}
	if r.Slot != nil && !r.Slot.MatchString(slot.Name) {
		return false
	}
	if r.Type != nil && !r.Type.MatchString(slot.DeclaredType) {
		return false
	}
	return true
}

// Table is an immutable set of rules ordered by descending priority. Rules of equal priority
// keep the order they were added in.
type Table struct {
	rules []Rule
}

// NewTable returns a table of the given rules.
func NewTable(rules ...Rule) *Table {
	t := &Table{rules: slices.Clone(rules)}
	slices.SortStableFunc(t.rules, func(a, b Rule) int { return cmp.Compare(b.Priority, a.Priority) })
	return t
}

// With returns a new table holding the rules of t and of others.
func (t *Table) With(others ...*Table) *Table {
	rules := slices.Clone(t.Rules())
	for _, o := range others {
		rules = append(rules, o.Rules()...)
	}
	return NewTable(rules...)
}

// Rules returns the rules in priority order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return t.rules
}

// Match returns the highest priority rule applying to the slot.
func (t *Table) Match(sym nullability.Symbol, slot *nullability.Slot) (Rule, bool) {
	for _, r := range t.Rules() {
		if r.Matches(sym, slot) {
			return r, true
		}
	}
	return Rule{}, false
}

func kind(k nullability.SymbolKind) *nullability.SymbolKind { return &k }

// Builtin returns the default conventions of the Cocoa frameworks.
func Builtin() *Table {
	return NewTable(
		Rule{
			Name:     "stop-flag",
			Roles:    []nullability.Role{nullability.Param, nullability.BlockParam},
			Slot:     regexp.MustCompile(`^stop$`),
			Type:     regexp.MustCompile(`^BOOL\s*\*$`),
			State:    nullability.NonNull,
			Priority: 100,
		},
		Rule{
			Name:     "error-out-parameter",
			Roles:    []nullability.Role{nullability.Param},
			Type:     regexp.MustCompile(`^NSError\s*\*\s*\*`),
			State:    nullability.Nullable,
			Priority: 90,
		},
		Rule{
			Name:     "error-parameter",
			Roles:    []nullability.Role{nullability.Param, nullability.BlockParam},
			Type:     regexp.MustCompile(`^NSError\s*\*$`),
			State:    nullability.Nullable,
			Priority: 80,
		},
		Rule{
			Name:     "delegate-property",
			Roles:    []nullability.Role{nullability.Return},
			Kind:     kind(nullability.Property),
			Symbol:   regexp.MustCompile(`(?i)delegate$`),
			State:    nullability.Nullable,
			Priority: 70,
		},
	)
}

// tableYAML is the document format of a convention table:
//
//	conventions:
//	  - name: cancellation-token
//	    roles: [parameter]
//	    type: '^CancellationToken\s*\*$'
//	    state: nonnull
//	    priority: 50
type tableYAML struct {
	Conventions []struct {
		Name     string   `yaml:"name"`
		Roles    []string `yaml:"roles"`
		Kind     string   `yaml:"kind"`
		Symbol   string   `yaml:"symbol"`
		Slot     string   `yaml:"slot"`
		Type     string   `yaml:"type"`
		State    string   `yaml:"state"`
		Priority int      `yaml:"priority"`
	} `yaml:"conventions"`
}

// Parse decodes a YAML convention table.
func Parse(data []byte) (*Table, error) {
	var doc tableYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode conventions: %w", err)
	}

	rules := make([]Rule, 0, len(doc.Conventions))
	for i, c := range doc.Conventions {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		r := Rule{Name: name, Priority: c.Priority}

		var err error
		if r.State, err = nullability.ParseState(c.State); err != nil {
			return nil, fmt.Errorf("convention %s: %w", name, err)
		}
		if r.State == nullability.Unknown || r.State == nullability.Conflicting {
			return nil, fmt.Errorf("convention %s: state %s cannot be a default", name, r.State)
		}
		for _, raw := range c.Roles {
			role, err := parseRole(raw)
			if err != nil {
				return nil, fmt.Errorf("convention %s: %w", name, err)
			}
			r.Roles = append(r.Roles, role)
		}
		if c.Kind != "" {
			k, err := nullability.ParseSymbolKind(c.Kind)
			if err != nil {
				return nil, fmt.Errorf("convention %s: %w", name, err)
			}
			r.Kind = &k
		}
		for _, p := range []struct {
			dst **regexp.Regexp
			src string
		}{{&r.Symbol, c.Symbol}, {&r.Slot, c.Slot}, {&r.Type, c.Type}} {
			if p.src == "" {
				continue
			}
			if *p.dst, err = regexp.Compile(p.src); err != nil {
				return nil, fmt.Errorf("convention %s: %w", name, err)
			}
		}
		rules = append(rules, r)
	}
	return NewTable(rules...), nil
}

// Load reads a YAML convention table file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conventions: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func parseRole(s string) (nullability.Role, error) {
	for _, r := range []nullability.Role{nullability.Return, nullability.Param, nullability.BlockSelf, nullability.BlockParam} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unrecognized role %q", s)
}
