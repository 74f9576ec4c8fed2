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

// Package annotator turns a finalized inference result into reports: per symbol, the declaration
// with nullability tokens inserted into its declared types, and per slot the token, the
// confidence and the evidence trail backing it. The annotator only reads frozen state.
package annotator

import (
	"github.com/google/uuid"
	"go.uber.org/nullinfer/diagnostic"
	"go.uber.org/nullinfer/inference"
	"go.uber.org/nullinfer/nullability"
)

// Report is the output of one run.
type Report struct {
	RunID       string                  `json:"run_id" yaml:"run_id"`
	Rounds      int                     `json:"rounds" yaml:"rounds"`
	Incomplete  bool                    `json:"incomplete" yaml:"incomplete"`
	Summary     Summary                 `json:"summary" yaml:"summary"`
	Symbols     []Symbol                `json:"symbols" yaml:"symbols"`
	Diagnostics []diagnostic.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Summary counts the slots of a report by token.
type Summary struct {
	Slots       int `json:"slots" yaml:"slots"`
	Nullable    int `json:"nullable" yaml:"nullable"`
	NonNull     int `json:"nonnull" yaml:"nonnull"`
	Unspecified int `json:"unspecified" yaml:"unspecified"`
	Conflicts   int `json:"conflicts" yaml:"conflicts"`
	Warnings    int `json:"warnings" yaml:"warnings"`
}

// Symbol is the annotated declaration of one symbol.
type Symbol struct {
	ID          string `json:"id" yaml:"id"`
	Kind        string `json:"kind" yaml:"kind"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Declaration string `json:"declaration" yaml:"declaration"`
	Slots       []Slot `json:"slots" yaml:"slots"`
}

// Slot is the annotation of one slot.
type Slot struct {
	Path         string `json:"path" yaml:"path"`
	Role         string `json:"role" yaml:"role"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	DeclaredType string `json:"declared_type" yaml:"declared_type"`
	// Annotated is the declared type with the token (and those of nested block parameters)
	// inserted.
	Annotated  string     `json:"annotated" yaml:"annotated"`
	Token      string     `json:"token" yaml:"token"`
	Confidence string     `json:"confidence" yaml:"confidence"`
	Conflict   bool       `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	Warning    bool       `json:"warning,omitempty" yaml:"warning,omitempty"`
	Evidence   []Evidence `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Evidence is one entry of an evidence trail.
type Evidence struct {
	Source     string `json:"source" yaml:"source"`
	Suggests   string `json:"suggests,omitempty" yaml:"suggests,omitempty"`
	Confidence string `json:"confidence" yaml:"confidence"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Via        string `json:"via,omitempty" yaml:"via,omitempty"`
	Location   string `json:"location,omitempty" yaml:"location,omitempty"`
}

// Option configures the report built by Annotate.
type Option func(*Report)

// WithRunID sets the run identifier instead of a random one.
func WithRunID(id string) Option {
	return func(r *Report) { r.RunID = id }
}

// WithDiagnostics attaches the diagnostics of the run.
func WithDiagnostics(diags []diagnostic.Diagnostic) Option {
	return func(r *Report) { r.Diagnostics = diags }
}

// Annotate builds the report of a finalized result, in registry order.
func Annotate(res *inference.Result, opts ...Option) *Report {
	r := &Report{
		RunID:      uuid.NewString(),
		Rounds:     res.Rounds,
		Incomplete: res.Incomplete,
		Symbols:    make([]Symbol, 0, res.Symbols.Len()),
	}
	for _, o := range opts {
		o(r)
	}

	for _, s := range res.Symbols.All() {
		sym := Symbol{
			ID:          string(s.Symbol.ID),
			Kind:        s.Symbol.Kind.String(),
			Owner:       s.Symbol.Owner,
			Declaration: Declaration(s.Symbol, s.Signature),
		}
		s.Signature.Walk(func(slot *nullability.Slot) {
			sym.Slots = append(sym.Slots, annotateSlot(slot))
			r.Summary.add(slot)
		})
		r.Symbols = append(r.Symbols, sym)
	}
	return r
}

func annotateSlot(slot *nullability.Slot) Slot {
	out := Slot{
		Path:         slot.Path.String(),
		Role:         slot.Role.String(),
		Name:         slot.Name,
		DeclaredType: slot.DeclaredType,
		Annotated:    Qualify(slot),
		Token:        Token(slot.State),
		Confidence:   slot.Confidence.String(),
		Conflict:     slot.State == nullability.Conflicting,
		Warning:      slot.Warning,
	}
	for _, ev := range slot.Evidence {
		e := Evidence{
			Source:     ev.Kind.String(),
			Confidence: ev.Confidence.String(),
			Detail:     ev.Detail,
		}
		if ev.Suggests != nullability.Unknown {
			e.Suggests = ev.Suggests.String()
		}
		if ev.Forward != nil {
			e.Via = ev.Forward.String()
		}
		if ev.Location.IsValid() {
			e.Location = ev.Location.String()
		}
		out.Evidence = append(out.Evidence, e)
	}
	return out
}

func (s *Summary) add(slot *nullability.Slot) {
	s.Slots++
	switch slot.State {
	case nullability.Nullable:
		s.Nullable++
	case nullability.NonNull:
		s.NonNull++
	case nullability.Conflicting:
		s.Conflicts++
		s.Unspecified++
	default:
		s.Unspecified++
	}
	if slot.Warning {
		s.Warnings++
	}
}
