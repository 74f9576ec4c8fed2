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

// Package diagnostic hosts the diagnostic engine, which is responsible for collecting the
// problems found during a run (disagreeing knowledge base facts, slots finalized without a
// conclusion, failed lookups and declarations that could not be analyzed) and generating
// user-friendly diagnostics from them. None of these problems fails a run.
package diagnostic

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/nullinfer/knowledge"
	"go.uber.org/nullinfer/nullability"
)

// Kind classifies a diagnostic.
type Kind uint8

const (
	// KnowledgeConflict is a slot on which authoritative facts disagree.
	KnowledgeConflict Kind = iota
	// CapExhausted is a slot finalized as unspecified because the run stopped early.
	CapExhausted
	// LookupFailure is a knowledge base lookup that failed and was treated as a miss.
	LookupFailure
	// ExtractionFailure is a declaration whose body could not be analyzed.
	ExtractionFailure
)

var _kindNames = [...]string{
	KnowledgeConflict: "knowledge-conflict",
	CapExhausted:      "cap-exhausted",
	LookupFailure:     "lookup-failure",
	ExtractionFailure: "extraction-failure",
}

func (k Kind) String() string {
	if int(k) < len(_kindNames) {
		return _kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range _kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unrecognized diagnostic kind %q", text)
}

// Diagnostic is one reported problem. Path is empty for problems about a whole symbol.
type Diagnostic struct {
	Kind    Kind                 `json:"kind" yaml:"kind"`
	Symbol  nullability.SymbolID `json:"symbol" yaml:"symbol"`
	Path    nullability.Path     `json:"path,omitempty" yaml:"path,omitempty"`
	Message string               `json:"message" yaml:"message"`
}

// Engine is the main engine for generating diagnostics from conflicts. It is safe for concurrent
// use.
type Engine struct {
	mu        sync.Mutex
	conflicts []conflict
}

// NewEngine creates a new diagnostic engine.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) add(c conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts = append(e.conflicts, c)
}

// Len returns the number of conflicts collected so far.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conflicts)
}

// AddKnowledgeConflict adds a slot on which knowledge base facts disagree.
func (e *Engine) AddKnowledgeConflict(symbol nullability.SymbolID, path nullability.Path, fact knowledge.Fact) {
	sources := "unnamed sources"
	if len(fact.Sources) > 0 {
		sources = strings.Join(fact.Sources, ", ")
	}
	e.add(conflict{
		kind:   KnowledgeConflict,
		symbol: symbol,
		path:   path,
		message: fmt.Sprintf("Knowledge base facts disagree on %s (%s). The slot is left "+
			"unannotated and needs manual resolution.", nullability.Ref{Symbol: symbol, Path: path}, sources),
	})
}

// AddCapWarning adds a slot finalized without a conclusion because the run stopped before
// reaching a fixed point. Warnings about slots of the same call cycle are grouped.
func (e *Engine) AddCapWarning(symbol nullability.SymbolID, path nullability.Path, cycle []nullability.SymbolID) {
	c := conflict{
		kind:   CapExhausted,
		symbol: symbol,
		path:   path,
		message: fmt.Sprintf("No conclusion for %s before inference stopped; finalized as "+
			"unspecified.", nullability.Ref{Symbol: symbol, Path: path}),
	}
	if len(cycle) > 0 {
		members := make([]string, len(cycle))
		for i, id := range cycle {
			members[i] = string(id)
		}
		c.group = strings.Join(members, " -> ")
		c.message += fmt.Sprintf(" The symbol is part of the call cycle %s.", c.group)
	}
	e.add(c)
}

// AddLookupFailures adds knowledge base lookups that failed.
func (e *Engine) AddLookupFailures(failures ...knowledge.Failure) {
	for _, f := range failures {
		e.add(conflict{
			kind:   LookupFailure,
			symbol: f.Symbol,
			path:   f.Path,
			message: fmt.Sprintf("Knowledge base lookup for %s failed and was treated as unknown: %v",
				nullability.Ref{Symbol: f.Symbol, Path: f.Path}, f.Err),
		})
	}
}

// AddExtractionFailure adds a declaration whose body could not be analyzed. The declaration
// still contributes its signature.
func (e *Engine) AddExtractionFailure(symbol nullability.SymbolID, err error) {
	e.add(conflict{
		kind:   ExtractionFailure,
		symbol: symbol,
		message: fmt.Sprintf("The body of %s could not be analyzed and contributes no evidence: %v",
			symbol, err),
	})
}

// Diagnostics generates diagnostics from the internally-stored conflicts. The grouping parameter
// controls whether the warnings about slots of the same call cycle are grouped together (under
// the first diagnostic) for concise reporting. The returned diagnostics are sorted by symbol,
// then path, then kind.
func (e *Engine) Diagnostics(grouping bool) []Diagnostic {
	e.mu.Lock()
	conflicts := slices.Clone(e.conflicts)
	e.mu.Unlock()

	slices.SortStableFunc(conflicts, func(a, b conflict) int {
		return cmp.Or(
			cmp.Compare(a.symbol, b.symbol),
			cmp.Compare(a.path, b.path),
			cmp.Compare(a.kind, b.kind),
		)
	})
	if grouping {
		conflicts = groupConflicts(conflicts)
	}

	diagnostics := make([]Diagnostic, 0, len(conflicts))
	for _, c := range conflicts {
		diagnostics = append(diagnostics, Diagnostic{
			Kind:    c.kind,
			Symbol:  c.symbol,
			Path:    c.path,
			Message: c.String(),
		})
	}
	return diagnostics
}
