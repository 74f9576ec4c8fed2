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

package knowledge

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/nullinfer/config"
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Failure records a lookup that failed and was treated as a miss.
type Failure struct {
	Symbol nullability.SymbolID
	Path   nullability.Path
	Err    error
}

// Memo memoizes lookups per (symbol, slot path) for the lifetime of a run, so that every phase
// of the inference sees the same answer for a slot and the oracle is asked at most once per slot.
// Concurrent lookups of the same slot share a single oracle call. A failed lookup is logged,
// recorded and memoized as a miss. Memo is safe for concurrent use.
type Memo struct {
	oracle  Oracle
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group
	calls atomic.Int64

	mu       sync.Mutex
	facts    map[slotKey]Fact
	failures []Failure
}

// MemoOption configures a Memo.
type MemoOption func(*Memo)

// WithTimeout bounds every oracle call.
func WithTimeout(d time.Duration) MemoOption {
	return func(m *Memo) { m.timeout = d }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *zap.Logger) MemoOption {
	return func(m *Memo) { m.logger = logger }
}

// NewMemo returns a memo in front of oracle. A nil oracle answers every lookup with a miss.
func NewMemo(oracle Oracle, opts ...MemoOption) *Memo {
	m := &Memo{
		oracle:  oracle,
		timeout: config.DefaultKnowledgeTimeout,
		logger:  zap.NewNop(),
		facts:   make(map[slotKey]Fact),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Lookup returns the fact for a slot, asking the oracle on first use.
func (m *Memo) Lookup(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) Fact {
	key := slotKey{symbol, path}
	if f, ok := m.cached(key); ok {
		return f
	}
	if m.oracle == nil {
		return Fact{Symbol: symbol, Path: path}
	}

	v, _, _ := m.group.Do(string(symbol)+"\x00"+string(path), func() (any, error) {
		if f, ok := m.cached(key); ok {
			return f, nil
		}
		f := m.ask(ctx, symbol, path)
		m.mu.Lock()
		m.facts[key] = f
		m.mu.Unlock()
		return f, nil
	})
	return v.(Fact)
}

func (m *Memo) cached(key slotKey) (Fact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facts[key]
	return f, ok
}

func (m *Memo) ask(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) Fact {
	m.calls.Add(1)
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	f, err := m.oracle.Lookup(ctx, symbol, path)
	if err != nil {
		m.logger.Warn("knowledge base lookup failed",
			zap.String("symbol", string(symbol)),
			zap.String("path", string(path)),
			zap.Error(err),
		)
		m.mu.Lock()
		m.failures = append(m.failures, Failure{Symbol: symbol, Path: path, Err: err})
		m.mu.Unlock()
		// Partial answers of a union are still authoritative; anything else is a miss.
		if _, ok := m.oracle.(Union); !ok {
			f = Fact{}
		}
	}
	f.Symbol, f.Path = symbol, path
	return f
}

// Calls returns the number of times the oracle was asked.
func (m *Memo) Calls() int64 {
	return m.calls.Load()
}

// Failures returns the failed lookups ordered by symbol and path.
func (m *Memo) Failures() []Failure {
	m.mu.Lock()
	out := slices.Clone(m.failures)
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Failure) int {
		return cmp.Or(cmp.Compare(a.Symbol, b.Symbol), cmp.Compare(a.Path, b.Path))
	})
	return out
}
