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

// Package knowledge implements the knowledge base adapter: the contract of the external oracle
// of authoritative nullability facts, the corpora backing it (YAML documents and SQLite
// databases), their union behind a single oracle, and the run-scoped memo the inference engine
// reads through.
package knowledge

import (
	"context"
	"slices"

	"go.uber.org/nullinfer/nullability"
)

// Fact is an authoritative statement about the nullability of one slot. A Fact with state
// Unknown is a miss.
type Fact struct {
	Symbol nullability.SymbolID
	Path   nullability.Path
	State  nullability.State
	// Sources names the corpora asserting the fact. A Conflicting fact lists every disagreeing
	// source.
	Sources []string
}

// Found returns true unless the fact is a miss.
func (f Fact) Found() bool {
	return f.State != nullability.Unknown
}

// Oracle answers knowledge base lookups. A miss is reported as a Fact with state Unknown and a
// nil error; errors are reserved for failures of the oracle itself (an unreachable database, an
// expired context).
type Oracle interface {
	Lookup(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error)

// Lookup calls f.
func (f OracleFunc) Lookup(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error) {
	return f(ctx, symbol, path)
}

// combine merges facts about the same slot. Agreeing facts merge their sources; firm facts that
// disagree produce a Conflicting fact. Misses are ignored.
func combine(symbol nullability.SymbolID, path nullability.Path, facts []Fact) Fact {
	out := Fact{Symbol: symbol, Path: path}
	for _, f := range facts {
		if !f.Found() {
			continue
		}
		switch {
		case out.State == nullability.Unknown:
			out.State = f.State
		case out.State != f.State:
			out.State = nullability.Conflicting
		}
		for _, s := range f.Sources {
			if !slices.Contains(out.Sources, s) {
				out.Sources = append(out.Sources, s)
			}
		}
	}
	slices.Sort(out.Sources)
	return out
}
