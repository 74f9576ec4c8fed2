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

// Package registry implements the signature registry: the run-scoped store of every discovered
// symbol with its signature, the evidence attached to its slots and the call sites found in its
// body. The registry is written by a single writer once extraction completes and is read-only
// afterwards.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"go.uber.org/nullinfer/extract"
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/util/orderedmap"
)

// ErrFrozen is returned when registering into a frozen registry.
var ErrFrozen = errors.New("registry is frozen")

// Entry is everything known about one symbol.
type Entry struct {
	Symbol    nullability.Symbol
	Signature *nullability.Signature
	// CallSites are the calls made by the symbol's body, in discovery order.
	CallSites []nullability.CallSite
	HasBody   bool
	// Discoveries counts how many times the symbol was registered.
	Discoveries int
}

// Registry stores entries uniquely per symbol and iterates over them in first-discovery order.
type Registry struct {
	entries *orderedmap.OrderedMap[nullability.SymbolID, *Entry]
	index   map[nullability.SymbolID]int
	ids     []nullability.SymbolID
	frozen  bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: orderedmap.New[nullability.SymbolID, *Entry](),
		index:   make(map[nullability.SymbolID]int),
	}
}

// Register adds the facts extracted for one symbol. Registering a symbol that is already known
// merges the new evidence and call sites into the existing entry instead of duplicating it, and
// registering the same facts twice leaves the entry unchanged apart from its discovery count.
func (r *Registry) Register(facts *extract.Facts) error {
	if r.frozen {
		return ErrFrozen
	}
	id := facts.Symbol.ID
	if id == "" {
		return errors.New("register: empty symbol identifier")
	}

	existing, ok := r.entries.Load(id)
	if !ok {
		r.index[id] = len(r.ids)
		r.ids = append(r.ids, id)
		r.entries.Store(id, &Entry{
			Symbol:      facts.Symbol,
			Signature:   facts.Signature.Clone(),
			CallSites:   appendCallSites(nil, facts.CallSites),
			HasBody:     facts.HasBody,
			Discoveries: 1,
		})
		return nil
	}

	if existing.Symbol.Kind != facts.Symbol.Kind {
		return fmt.Errorf("register %q: rediscovered as %s, first seen as %s", id, facts.Symbol.Kind, existing.Symbol.Kind)
	}
	if existing.Symbol.Owner == "" {
		existing.Symbol.Owner = facts.Symbol.Owner
	}
	mergeSignature(existing.Signature, facts.Signature)
	existing.CallSites = appendCallSites(existing.CallSites, facts.CallSites)
	existing.HasBody = existing.HasBody || facts.HasBody
	existing.Discoveries++
	return nil
}

// mergeSignature merges the evidence of src into dst. Slots only present in src (e.g. a body
// declaring a parameter type more precisely than a header) are added.
func mergeSignature(dst, src *nullability.Signature) {
	for _, slot := range src.Slots {
		target, ok := dst.Slot(slot.Path)
		if !ok {
			dst.Slots = append(dst.Slots, slot.Clone())
			continue
		}
		target.AddEvidence(slot.Evidence...)
		if slot.Block == nil {
			continue
		}
		if target.Block == nil {
			target.Block = slot.Block.Clone()
			continue
		}
		mergeSignature(target.Block, slot.Block)
	}
}

func appendCallSites(dst, src []nullability.CallSite) []nullability.CallSite {
	for _, c := range src {
		if !containsCallSite(dst, c) {
			dst = append(dst, cloneCallSite(c))
		}
	}
	return dst
}

func containsCallSite(list []nullability.CallSite, c nullability.CallSite) bool {
	for _, o := range list {
		if o.Caller == c.Caller && o.Callee == c.Callee && o.Location == c.Location && sameArgs(o.Args, c.Args) {
			return true
		}
	}
	return false
}

func sameArgs(a, b []nullability.ArgHint) bool {
	return slices.EqualFunc(a, b, func(x, y nullability.ArgHint) bool {
		return x.Kind == y.Kind && x.Detail == y.Detail && slices.Equal(x.Forwards, y.Forwards)
	})
}

func cloneCallSite(c nullability.CallSite) nullability.CallSite {
	args := make([]nullability.ArgHint, len(c.Args))
	for i, a := range c.Args {
		a.Forwards = append([]nullability.Ref(nil), a.Forwards...)
		args[i] = a
	}
	c.Args = args
	return c
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the entry of a symbol.
func (r *Registry) Lookup(id nullability.SymbolID) (*Entry, bool) {
	return r.entries.Load(id)
}

// Index returns the dense index of a symbol: its position in discovery order.
func (r *Registry) Index(id nullability.SymbolID) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Symbols returns the symbol identifiers in discovery order.
func (r *Registry) Symbols() []nullability.SymbolID {
	return append([]nullability.SymbolID(nil), r.ids...)
}

// At returns the entry at a dense index.
func (r *Registry) At(i int) *Entry {
	return r.entries.Value(r.ids[i])
}

// All iterates over the entries in discovery order.
func (r *Registry) All() iter.Seq2[nullability.SymbolID, *Entry] {
	return r.entries.All()
}

// Len returns the number of symbols.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// CallSites returns every registered call site, grouped by caller in discovery order.
func (r *Registry) CallSites() []nullability.CallSite {
	var out []nullability.CallSite
	for _, e := range r.All() {
		out = append(out, e.CallSites...)
	}
	return out
}
