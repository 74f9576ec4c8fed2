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

// Package inference implements the inference engine: the phase-ordered, fixed-point resolution
// of every slot of every registered signature into a frozen nullability state with its evidence
// trail and confidence.
//
// Each round runs four phase steps (parameters, block parameters, blocks, returns). Within a step
// the dirty symbols are evaluated concurrently against the states committed by earlier steps, and
// the resulting proposals are committed together at a barrier, so no evaluation ever observes a
// write of its own step. Slot states only move up the lattice Unknown < Unspecified < NonNull <
// Nullable, which bounds the number of changes and guarantees termination even without the
// iteration cap.
package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/nullinfer/callgraph"
	"go.uber.org/nullinfer/config"
	"go.uber.org/nullinfer/convention"
	"go.uber.org/nullinfer/knowledge"
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/container/intsets"
)

// conflictHandler receives the problems encountered during inference. This makes the inference
// engine independent of the diagnostic generation logic.
type conflictHandler interface {
	// AddKnowledgeConflict reports a slot on which authoritative facts disagree.
	AddKnowledgeConflict(symbol nullability.SymbolID, path nullability.Path, fact knowledge.Fact)
	// AddCapWarning reports a slot finalized without a conclusion because the run stopped before
	// reaching a fixed point. Cycle lists the members of the call cycle the symbol is part of.
	AddCapWarning(symbol nullability.SymbolID, path nullability.Path, cycle []nullability.SymbolID)
}

type noopHandler struct{}

func (noopHandler) AddKnowledgeConflict(nullability.SymbolID, nullability.Path, knowledge.Fact) {}

func (noopHandler) AddCapWarning(nullability.SymbolID, nullability.Path, []nullability.SymbolID) {}

// Engine resolves the slots of a frozen registry. The registry itself is never mutated: the
// engine works on copies of the signatures and hands them out in the Result.
type Engine struct {
	registry    *registry.Registry
	graph       *callgraph.Graph
	kb          *knowledge.Memo
	conventions *convention.Table
	handler     conflictHandler
	logger      *zap.Logger
	cap         int
	workers     int

	// sigs holds the working signatures by registry index.
	sigs []*nullability.Signature
	// readers[i] holds the symbols whose evaluation reads forwarded slots of symbol i outside of
	// the call graph edges, e.g. a callee reading a slot its caller forwards into the call.
	readers []intsets.Sparse
	// conventional holds the convention evidence seeded in the second stage.
	conventional map[nullability.Ref]nullability.Evidence
}

// Option configures an Engine.
type Option func(*Engine)

// WithConventions sets the default-fact table consulted for slots nothing else decides.
func WithConventions(t *convention.Table) Option {
	return func(e *Engine) { e.conventions = t }
}

// WithIterationCap bounds the number of rounds.
func WithIterationCap(n int) Option {
	return func(e *Engine) { e.cap = n }
}

// WithWorkers bounds the number of concurrent evaluations; zero means one per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New constructs an engine over a registry and the call graph built from it. The graph must
// number the registry symbols first, in registry order (see callgraph.Build). The handler may be
// nil.
func New(reg *registry.Registry, graph *callgraph.Graph, kb *knowledge.Memo, handler conflictHandler, opts ...Option) *Engine {
	e := &Engine{
		registry:     reg,
		graph:        graph,
		kb:           kb,
		handler:      handler,
		logger:       zap.NewNop(),
		cap:          config.DefaultIterationCap,
		conventional: make(map[nullability.Ref]nullability.Evidence),
	}
	if e.handler == nil {
		e.handler = noopHandler{}
	}
	if e.kb == nil {
		e.kb = knowledge.NewMemo(nil)
	}
	for _, o := range opts {
		o(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// Run infers the nullability of every slot. It never fails on the analyzed code: problems
// become evidence and diagnostics. Cancellation of ctx stops the iteration like the cap does,
// and the partial result is still finalized and returned.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.sigs = make([]*nullability.Signature, e.registry.Len())
	for i := range e.sigs {
		e.sigs[i] = e.registry.At(i).Signature.Clone()
	}
	e.buildReaders()

	if err := e.seedKnowledge(ctx); err != nil {
		return nil, err
	}

	dirty := e.allSymbols()
	var (
		rounds     int
		stage      = 1
		incomplete bool
	)
	for {
		if dirty.IsEmpty() {
			if stage == 1 {
				stage = 2
				if seeded := e.seedConventions(); !seeded.IsEmpty() {
					dirty = e.expand(seeded)
					continue
				}
			}
			break
		}
		if rounds == e.cap || ctx.Err() != nil {
			incomplete = true
			break
		}
		rounds++

		changed, err := e.round(ctx, dirty.AppendTo(nil))
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				incomplete = true
				break
			}
			return nil, err
		}
		e.logger.Debug("inference round",
			zap.Int("round", rounds),
			zap.Int("stage", stage),
			zap.Int("dirty", dirty.Len()),
			zap.Int("changed", changed.Len()),
		)
		dirty = e.expand(changed)
	}

	if incomplete {
		e.logger.Warn("inference stopped before reaching a fixed point",
			zap.Int("rounds", rounds), zap.Int("cap", e.cap), zap.NamedError("cause", ctx.Err()))
	}
	e.finalize(context.WithoutCancel(ctx), incomplete)
	return e.result(rounds, incomplete), nil
}

func (e *Engine) allSymbols() *intsets.Sparse {
	s := &intsets.Sparse{}
	for i := range e.sigs {
		s.Insert(i)
	}
	return s
}

// expand returns the symbols to re-evaluate after the symbols in changed changed: themselves,
// their callers and callees, and the symbols reading their slots through forwarded arguments.
func (e *Engine) expand(changed *intsets.Sparse) *intsets.Sparse {
	next := &intsets.Sparse{}
	e.graph.Neighbors(next, changed)
	for _, i := range changed.AppendTo(nil) {
		next.UnionWith(&e.readers[i])
	}
	// Drop the external callees, which have no slots of their own.
	for _, i := range next.AppendTo(nil) {
		if i >= len(e.sigs) {
			next.Remove(i)
		}
	}
	return next
}

// buildReaders indexes forwarded references that do not follow a call graph edge.
func (e *Engine) buildReaders() {
	e.readers = make([]intsets.Sparse, len(e.sigs))
	note := func(ref nullability.Ref, reader int) {
		if i, ok := e.registry.Index(ref.Symbol); ok && i != reader {
			e.readers[i].Insert(reader)
		}
	}
	for i, sig := range e.sigs {
		sig.Walk(func(slot *nullability.Slot) {
			for _, ev := range slot.Evidence {
				if ev.Forward != nil {
					note(*ev.Forward, i)
				}
			}
		})
		for _, c := range e.registry.At(i).CallSites {
			callee, ok := e.registry.Index(c.Callee)
			if !ok {
				continue
			}
			for _, arg := range c.Args {
				for _, ref := range arg.Forwards {
					note(ref, callee)
				}
			}
		}
	}
}

// seedKnowledge looks up every slot in the knowledge base and freezes the slots it has a fact
// for. Lookups run concurrently; the memo coalesces duplicates.
func (e *Engine) seedKnowledge(ctx context.Context) error {
	type lookup struct {
		symbol nullability.SymbolID
		slot   *nullability.Slot
		fact   knowledge.Fact
	}
	var lookups []*lookup
	for i, sig := range e.sigs {
		id := e.registry.At(i).Symbol.ID
		sig.Walk(func(slot *nullability.Slot) {
			lookups = append(lookups, &lookup{symbol: id, slot: slot})
		})
	}

	g := &errgroup.Group{}
	g.SetLimit(e.workers)
	for _, l := range lookups {
		g.Go(func() error {
			l.fact = e.kb.Lookup(ctx, l.symbol, l.slot.Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Commit in registry order so diagnostics and trails are deterministic.
	for _, l := range lookups {
		if !l.fact.Found() {
			continue
		}
		l.slot.Frozen = true
		l.slot.State = l.fact.State
		if l.fact.State == nullability.Conflicting {
			l.slot.Confidence = nullability.None
			e.handler.AddKnowledgeConflict(l.symbol, l.slot.Path, l.fact)
		} else {
			l.slot.Confidence = nullability.High
		}
		l.slot.Evidence = append([]nullability.Evidence{knowledgeEvidence(l.fact)}, l.slot.Evidence...)
	}
	return nil
}

// seedConventions attaches convention evidence to the slots still Unknown and returns the
// symbols that received any.
func (e *Engine) seedConventions() *intsets.Sparse {
	seeded := &intsets.Sparse{}
	if e.conventions == nil {
		return seeded
	}
	for i, sig := range e.sigs {
		sym := e.registry.At(i).Symbol
		sig.Walk(func(slot *nullability.Slot) {
			if slot.Frozen || slot.State != nullability.Unknown {
				return
			}
			rule, ok := e.conventions.Match(sym, slot)
			if !ok {
				return
			}
			e.conventional[nullability.Ref{Symbol: sym.ID, Path: slot.Path}] = nullability.Evidence{
				Kind:       nullability.DefaultConvention,
				Suggests:   rule.State,
				Confidence: nullability.Low,
				Detail:     "convention " + rule.Name,
			}
			seeded.Insert(i)
		})
	}
	return seeded
}

// round runs the four phase steps over the dirty symbols and returns the symbols with a changed
// slot.
func (e *Engine) round(ctx context.Context, dirty []int) (*intsets.Sparse, error) {
	changed := &intsets.Sparse{}
	for phase := 1; phase <= config.PhaseCount; phase++ {
		if err := e.step(ctx, phase, dirty, changed); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

type proposal struct {
	slot  *nullability.Slot
	state nullability.State
}

// step evaluates the slots of one phase of the dirty symbols concurrently, then commits.
func (e *Engine) step(ctx context.Context, phase int, dirty []int, changed *intsets.Sparse) error {
	proposals := make([][]proposal, len(dirty))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for k, i := range dirty {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("INTERNAL PANIC evaluating %q: %s\n%s", e.registry.At(i).Symbol.ID, r, string(debug.Stack()))
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			proposals[k] = e.evaluate(gctx, i, phase)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Barrier: nothing read during the step observed any of these writes.
	for k, ps := range proposals {
		for _, p := range ps {
			p.slot.State = p.state
			changed.Insert(dirty[k])
		}
	}
	return nil
}

// evaluate computes the new states of the slots of symbol i resolved in the given phase.
func (e *Engine) evaluate(ctx context.Context, i, phase int) []proposal {
	var out []proposal
	e.sigs[i].Walk(func(slot *nullability.Slot) {
		if slot.Frozen || slot.Role.Phase() != phase {
			return
		}
		state, _ := join(e.evidence(ctx, i, slot))
		if next := nullability.Max(slot.State, state); next != slot.State {
			out = append(out, proposal{slot: slot, state: next})
		}
	})
	return out
}

// finalize freezes every slot: the evidence trail is resolved against the final states, slots
// left Unknown fall back to Unspecified, and confidences are assigned.
func (e *Engine) finalize(ctx context.Context, incomplete bool) {
	cycles := make(map[nullability.SymbolID][]nullability.SymbolID)
	if incomplete {
		for _, c := range e.graph.Cycles() {
			for _, id := range c {
				cycles[id] = c
			}
		}
	}

	// Trails are resolved before any fallback is applied, so that they all reflect the same
	// states.
	type sealed struct {
		symbol nullability.SymbolID
		slot   *nullability.Slot
		trail  []nullability.Evidence
	}
	var slots []sealed
	for i, sig := range e.sigs {
		id := e.registry.At(i).Symbol.ID
		sig.Walk(func(slot *nullability.Slot) {
			slots = append(slots, sealed{symbol: id, slot: slot, trail: e.evidence(ctx, i, slot)})
		})
	}

	for _, s := range slots {
		slot := s.slot
		slot.Evidence = s.trail
		if slot.Frozen {
			// Knowledge base facts stand; the heuristic trail is kept for audit only.
			continue
		}
		slot.Frozen = true
		state, conf := join(s.trail)
		switch {
		case slot.State == nullability.Unknown:
			slot.State, slot.Confidence = nullability.Unspecified, nullability.Low
			if incomplete {
				slot.Warning = true
				e.handler.AddCapWarning(s.symbol, slot.Path, cycles[s.symbol])
			}
		case state == slot.State:
			slot.Confidence = conf
		default:
			slot.Confidence = nullability.Low
		}
	}
}
