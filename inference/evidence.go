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

package inference

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/nullinfer/knowledge"
	"go.uber.org/nullinfer/nullability"
)

// evidence returns the full evidence of a slot against the committed states: the evidence
// extracted from the body with forwarded references resolved, the evidence derived from the call
// graph, and the convention evidence seeded for it, in that order.
func (e *Engine) evidence(ctx context.Context, i int, slot *nullability.Slot) []nullability.Evidence {
	id := e.registry.At(i).Symbol.ID
	out := make([]nullability.Evidence, 0, len(slot.Evidence))
	for _, ev := range slot.Evidence {
		out = append(out, e.resolve(ctx, ev))
	}

	// Only top-level parameters are visible to call sites.
	if slot.Path.Depth() == 0 && (slot.Role == nullability.Param || slot.Role == nullability.BlockSelf) {
		out = e.callerEvidence(ctx, out, id, slot)
		out = e.calleeEvidence(ctx, out, id, slot)
	}

	if ev, ok := e.conventional[nullability.Ref{Symbol: id, Path: slot.Path}]; ok {
		out = append(out, ev)
	}
	return out
}

// resolve fills in the state of the slot a forwarded piece of evidence refers to. A forwarded
// Conflicting slot may hold nil on some authority, so it reads as Nullable.
func (e *Engine) resolve(ctx context.Context, ev nullability.Evidence) nullability.Evidence {
	if ev.Forward == nil {
		return ev
	}
	state := e.stateOf(ctx, *ev.Forward)
	if state == nullability.Conflicting {
		state = nullability.Nullable
	}
	return ev.Resolved(state)
}

// stateOf reads the committed state of a slot: from the working signatures for registered
// symbols, from the knowledge base for everything else.
func (e *Engine) stateOf(ctx context.Context, ref nullability.Ref) nullability.State {
	if i, ok := e.registry.Index(ref.Symbol); ok {
		if slot, ok := e.sigs[i].Slot(ref.Path); ok {
			return slot.State
		}
		return nullability.Unknown
	}
	return e.kb.Lookup(ctx, ref.Symbol, ref.Path).State
}

// callerEvidence derives evidence from the arguments every observed call site passes for the
// slot: the bottom-up join across the call sites targeting the symbol.
func (e *Engine) callerEvidence(ctx context.Context, out []nullability.Evidence, id nullability.SymbolID, slot *nullability.Slot) []nullability.Evidence {
	index := slot.Path.ParamIndex()
	for _, c := range e.graph.Predecessors(id) {
		arg := c.Arg(index)
		switch arg.Kind {
		case nullability.HintNil:
			out = append(out, nullability.Evidence{
				Kind:       nullability.CallSiteLiteral,
				Suggests:   nullability.Nullable,
				Confidence: nullability.Medium,
				Location:   c.Location,
				Detail:     fmt.Sprintf("%s passes nil", c.Caller),
			})
		case nullability.HintNonNil:
			out = append(out, nullability.Evidence{
				Kind:       nullability.CallSiteLiteral,
				Suggests:   nullability.NonNull,
				Confidence: nullability.Low,
				Location:   c.Location,
				Detail:     fmt.Sprintf("%s passes %s", c.Caller, describe(arg.Detail, "a value")),
			})
		case nullability.HintForward:
			for _, ref := range arg.Forwards {
				out = append(out, e.resolve(ctx, nullability.Evidence{
					Kind:       nullability.ForwardedCall,
					Confidence: nullability.Medium,
					Location:   c.Location,
					Detail:     fmt.Sprintf("%s passes %s", c.Caller, ref),
					Forward:    &ref,
				}))
			}
		}
	}
	return out
}

// calleeEvidence derives evidence from the callees the slot's value is forwarded to: a callee
// tolerating nil in that position suggests the value may be nil, a callee requiring a value
// weakly suggests it is present.
func (e *Engine) calleeEvidence(ctx context.Context, out []nullability.Evidence, id nullability.SymbolID, slot *nullability.Slot) []nullability.Evidence {
	self := nullability.Ref{Symbol: id, Path: slot.Path}
	for _, c := range e.graph.Successors(id) {
		for j, arg := range c.Args {
			if arg.Kind != nullability.HintForward || !slices.Contains(arg.Forwards, self) {
				continue
			}
			target := nullability.Ref{Symbol: c.Callee, Path: nullability.ParamPath(j)}
			ev := nullability.Evidence{
				Kind:     nullability.ForwardedCall,
				Location: c.Location,
				Forward:  &target,
			}
			switch e.stateOf(ctx, target) {
			case nullability.Nullable, nullability.Conflicting:
				ev.Suggests, ev.Confidence = nullability.Nullable, nullability.Medium
				ev.Detail = fmt.Sprintf("forwarded to %s, which accepts nil", target)
			case nullability.NonNull:
				ev.Suggests, ev.Confidence = nullability.NonNull, nullability.Low
				ev.Detail = fmt.Sprintf("forwarded to %s, which requires a value", target)
			default:
				continue
			}
			out = append(out, ev)
		}
	}
	return out
}

func knowledgeEvidence(f knowledge.Fact) nullability.Evidence {
	ev := nullability.Evidence{
		Kind:       nullability.KnowledgeBaseFact,
		Suggests:   f.State,
		Confidence: nullability.High,
		Detail:     "knowledge base",
	}
	if len(f.Sources) > 0 {
		ev.Detail += ": " + strings.Join(f.Sources, ", ")
	}
	if f.State == nullability.Conflicting {
		ev.Confidence = nullability.None
		ev.Detail = "conflicting " + ev.Detail
	}
	return ev
}

func describe(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}
