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

package extract

import (
	"fmt"
	"go/token"
	"maps"

	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/source"
)

// knowledge is what the current path knows about a named value after passing guards.
type knowledge uint8

const (
	knownNil knowledge = iota + 1
	knownNonNil
)

type valueKind uint8

const (
	valOpaque valueKind = iota
	valNil
	valNonNil
	valForward
)

// value is one possible classification of an expression. An expression evaluates to a list of
// values: more than one when it is conditional.
type value struct {
	kind   valueKind
	ref    nullability.Ref
	detail string
}

type paramInfo struct {
	index int
	// slot is nil for parameters whose type is not annotateable.
	slot *nullability.Slot
}

// pathState is the flow-sensitive part of the walk, forked at guards and merged afterwards.
type pathState struct {
	known  map[string]knowledge
	locals map[string][]value
}

func (s pathState) clone() pathState {
	return pathState{known: maps.Clone(s.known), locals: maps.Clone(s.locals)}
}

type walker struct {
	self   nullability.SymbolID
	facts  *Facts
	params map[string]paramInfo
	state  pathState

	opaqueAt   token.Position
	opaqueText string
	sawOpaque  bool

	// constructed holds the evidence of returns of nonnil values, attached by finish only if no
	// other return is a forward or opaque.
	constructed []nullability.Evidence
	undecided   bool
}

func newWalker(decl source.Decl, facts *Facts) *walker {
	w := &walker{
		self:   decl.Symbol.ID,
		facts:  facts,
		params: make(map[string]paramInfo, len(decl.Params)),
		state:  pathState{known: map[string]knowledge{}, locals: map[string][]value{}},
	}
	for i, p := range decl.Params {
		info := paramInfo{index: i}
		if slot, ok := facts.Signature.Slot(nullability.ParamPath(i)); ok {
			info.slot = slot
		}
		w.params[p.Name] = info
	}
	return w
}

// block walks a statement list and reports whether every path through it returns.
func (w *walker) block(stmts []source.Node) bool {
	for _, n := range stmts {
		if w.stmt(n) {
			return true
		}
	}
	return false
}

func (w *walker) stmt(n source.Node) bool {
	switch n := n.(type) {
	case *source.Return:
		w.ret(n)
		return true
	case *source.If:
		return w.ifStmt(n)
	default:
		w.eval(n)
		return false
	}
}

// eval classifies an expression, recording evidence and call sites found inside it on the way.
func (w *walker) eval(n source.Node) []value {
	switch n := n.(type) {
	case nil:
		return nil
	case *source.Nil:
		return []value{{kind: valNil, detail: "nil literal"}}
	case *source.New:
		return []value{{kind: valNonNil, detail: "constructed " + n.Type}}
	case *source.BlockLit:
		return []value{{kind: valNonNil, detail: "block literal"}}
	case *source.Ref:
		return w.ref(n.Name)
	case *source.Call:
		return w.call(n)
	case *source.Invoke:
		return w.invoke(n)
	case *source.Assign:
		vals := w.eval(n.Value)
		w.state.locals[n.Name] = vals
		delete(w.state.known, n.Name)
		return vals
	case *source.Ternary:
		return w.ternary(n)
	case *source.Coalesce:
		return w.coalesce(n)
	case *source.Assert:
		w.assert(n)
	case *source.Opaque:
		w.opaque(n.Pos(), n.Text)
	case *source.Return, *source.If:
		// Statements in expression position only appear in malformed lowerings.
		w.stmt(n)
	}
	return []value{{kind: valOpaque, detail: "unanalyzable expression"}}
}

func (w *walker) ref(name string) []value {
	switch w.state.known[name] {
	case knownNil:
		return []value{{kind: valNil, detail: name + " is nil on this path"}}
	case knownNonNil:
		return []value{{kind: valNonNil, detail: name + " is checked non-nil on this path"}}
	}
	if vals, ok := w.state.locals[name]; ok {
		return vals
	}
	if name == "self" {
		return []value{{kind: valNonNil, detail: "self"}}
	}
	if info, ok := w.params[name]; ok && info.slot != nil {
		return []value{{
			kind:   valForward,
			ref:    nullability.Ref{Symbol: w.self, Path: info.slot.Path},
			detail: "parameter " + name,
		}}
	}
	return []value{{kind: valOpaque, detail: name}}
}

// paramSlot returns the slot of an unshadowed parameter.
func (w *walker) paramSlot(name string) (*nullability.Slot, bool) {
	if _, shadowed := w.state.locals[name]; shadowed {
		return nil, false
	}
	info, ok := w.params[name]
	if !ok || info.slot == nil {
		return nil, false
	}
	return info.slot, true
}

func (w *walker) call(n *source.Call) []value {
	if ref, ok := n.Receiver.(*source.Ref); ok {
		if slot, ok := w.paramSlot(ref.Name); ok && slot.Role == nullability.Param && w.state.known[ref.Name] == 0 {
			slot.AddEvidence(nullability.Evidence{
				Kind:       nullability.DirectUse,
				Suggests:   nullability.NonNull,
				Confidence: nullability.Low,
				Location:   n.Pos(),
				Detail:     fmt.Sprintf("receives %s without a nil check", n.Callee),
			})
		}
	}
	w.eval(n.Receiver)

	site := nullability.CallSite{
		Caller:   w.self,
		Callee:   n.Callee,
		Location: n.Pos(),
		Args:     make([]nullability.ArgHint, len(n.Args)),
	}
	for i, arg := range n.Args {
		site.Args[i] = hintOf(w.eval(arg))
	}
	w.facts.CallSites = append(w.facts.CallSites, site)

	return []value{{
		kind:   valForward,
		ref:    nullability.Ref{Symbol: n.Callee, Path: nullability.ReturnPath},
		detail: fmt.Sprintf("result of %s", n.Callee),
	}}
}

func hintOf(vals []value) nullability.ArgHint {
	if len(vals) == 0 {
		return nullability.ArgHint{Kind: nullability.HintOpaque}
	}
	hint := nullability.ArgHint{Kind: nullability.HintNonNil, Detail: vals[0].detail}
	for _, v := range vals {
		switch v.kind {
		case valNil:
			return nullability.ArgHint{Kind: nullability.HintNil, Detail: v.detail}
		case valForward:
			hint.Kind = nullability.HintForward
			hint.Forwards = append(hint.Forwards, v.ref)
		case valOpaque:
			if hint.Kind == nullability.HintNonNil {
				hint.Kind = nullability.HintOpaque
			}
		}
	}
	return hint
}

func (w *walker) invoke(n *source.Invoke) []value {
	slot, ok := w.paramSlot(n.Block)
	if !ok || slot.Role != nullability.BlockSelf {
		for _, arg := range n.Args {
			w.eval(arg)
		}
		return []value{{kind: valOpaque, detail: "result of block " + n.Block}}
	}

	switch w.state.known[n.Block] {
	case knownNonNil:
		slot.AddEvidence(nullability.Evidence{
			Kind:       nullability.NilCheck,
			Suggests:   nullability.Nullable,
			Confidence: nullability.Medium,
			Location:   n.Pos(),
			Detail:     "invoked only behind a nil guard",
		})
	case 0:
		slot.AddEvidence(nullability.Evidence{
			Kind:       nullability.DirectUse,
			Suggests:   nullability.NonNull,
			Confidence: nullability.Low,
			Location:   n.Pos(),
			Detail:     "invoked without a nil guard",
		})
	}

	for i, arg := range n.Args {
		vals := w.eval(arg)
		if slot.Block == nil {
			continue
		}
		nested, ok := slot.Block.Slot(slot.Path.Block(i))
		if !ok {
			continue
		}
		for _, v := range vals {
			nested.AddEvidence(argEvidence(v, n.Pos(), "passed to "+n.Block))
		}
	}
	return []value{{kind: valOpaque, detail: "result of block " + n.Block}}
}

func argEvidence(v value, pos token.Position, where string) nullability.Evidence {
	e := nullability.Evidence{Location: pos, Detail: v.detail + " " + where}
	switch v.kind {
	case valNil:
		e.Kind, e.Suggests, e.Confidence = nullability.CallSiteLiteral, nullability.Nullable, nullability.Medium
	case valNonNil:
		e.Kind, e.Suggests, e.Confidence = nullability.CallSiteLiteral, nullability.NonNull, nullability.Low
	case valForward:
		ref := v.ref
		e.Kind, e.Confidence, e.Forward = nullability.ForwardedCall, nullability.Medium, &ref
	default:
		e.Kind, e.Suggests, e.Confidence = nullability.Unanalyzable, nullability.Unspecified, nullability.None
	}
	return e
}

func (w *walker) ret(n *source.Return) {
	if n.Value == nil {
		return
	}
	vals := w.eval(n.Value)
	slot, ok := w.facts.Signature.Slot(nullability.ReturnPath)
	if !ok {
		return
	}
	for _, v := range vals {
		e := nullability.Evidence{Location: n.Pos(), Detail: "returns " + v.detail}
		switch v.kind {
		case valNil:
			e.Kind, e.Suggests, e.Confidence = nullability.ReturnLiteral, nullability.Nullable, nullability.Medium
		case valNonNil:
			// Construction only weakly suggests nonnull: any nullable path or fact overrides it.
			e.Kind, e.Suggests, e.Confidence = nullability.ReturnLiteral, nullability.NonNull, nullability.Low
			w.constructed = append(w.constructed, e)
			continue
		case valForward:
			ref := v.ref
			e.Kind, e.Confidence, e.Forward = nullability.ForwardedCall, nullability.Medium, &ref
			w.undecided = true
		default:
			e.Kind, e.Suggests, e.Confidence = nullability.Unanalyzable, nullability.Unspecified, nullability.None
			w.undecided = true
		}
		slot.AddEvidence(e)
	}
}

// nilTests returns the nil tests a condition asserts when it holds, and whether the condition
// consists of exactly one nil test (only then does its negation carry information too).
func nilTests(c source.Cond) ([]source.NilTest, bool) {
	switch c := c.(type) {
	case source.NilTest:
		return []source.NilTest{c}, true
	case source.And:
		var tests []source.NilTest
		for _, sub := range c.Conds {
			t, _ := nilTests(sub)
			tests = append(tests, t...)
		}
		return tests, false
	}
	return nil, false
}

// nilCheck records that a value is compared against nil.
func (w *walker) nilCheck(name string, pos token.Position) {
	slot, ok := w.paramSlot(name)
	if !ok || (slot.Role != nullability.Param && slot.Role != nullability.BlockSelf) {
		return
	}
	slot.AddEvidence(nullability.Evidence{
		Kind:       nullability.NilCheck,
		Suggests:   nullability.Nullable,
		Confidence: nullability.Medium,
		Location:   pos,
		Detail:     name + " is compared against nil",
	})
}

func (w *walker) applyTests(tests []source.NilTest, negate bool) {
	for _, t := range tests {
		isNil := t.IsNil != negate
		if isNil {
			w.state.known[t.Name] = knownNil
		} else {
			w.state.known[t.Name] = knownNonNil
		}
	}
}

func (w *walker) ifStmt(n *source.If) bool {
	tests, single := nilTests(n.Cond)
	for _, t := range tests {
		w.nilCheck(t.Name, n.Pos())
	}

	saved := w.state.clone()

	w.applyTests(tests, false)
	thenReturns := w.block(n.Then)
	thenState := w.state

	w.state = saved.clone()
	if single {
		w.applyTests(tests, true)
	}
	elseReturns := w.block(n.Else)
	elseState := w.state

	switch {
	case thenReturns && elseReturns:
		return true
	case thenReturns:
		w.state = elseState
	case elseReturns:
		w.state = thenState
	default:
		w.state = merge(saved, thenState, elseState)
	}
	return false
}

// merge joins the states at the end of two branches: only knowledge both branches agree on
// survives, and locals may hold any value assigned on either branch.
func merge(before, a, b pathState) pathState {
	out := pathState{known: map[string]knowledge{}, locals: map[string][]value{}}
	for name, k := range a.known {
		if b.known[name] == k {
			out.known[name] = k
		}
	}
	names := map[string]bool{}
	for name := range a.locals {
		names[name] = true
	}
	for name := range b.locals {
		names[name] = true
	}
	for name := range names {
		av, aok := a.locals[name]
		if !aok {
			av = before.locals[name]
		}
		bv, bok := b.locals[name]
		if !bok {
			bv = before.locals[name]
		}
		out.locals[name] = appendValues(av, bv)
	}
	return out
}

func appendValues(a, b []value) []value {
	out := append([]value(nil), a...)
	for _, v := range b {
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func (w *walker) ternary(n *source.Ternary) []value {
	tests, single := nilTests(n.Cond)
	for _, t := range tests {
		w.nilCheck(t.Name, n.Pos())
	}

	saved := w.state.clone()
	w.applyTests(tests, false)
	thenVals := w.eval(n.Then)

	w.state = saved.clone()
	if single {
		w.applyTests(tests, true)
	}
	elseVals := w.eval(n.Else)
	w.state = saved

	return appendValues(thenVals, elseVals)
}

func (w *walker) coalesce(n *source.Coalesce) []value {
	if ref, ok := n.Value.(*source.Ref); ok {
		if slot, ok := w.paramSlot(ref.Name); ok && slot.Role == nullability.Param {
			slot.AddEvidence(nullability.Evidence{
				Kind:       nullability.NilCheck,
				Suggests:   nullability.Nullable,
				Confidence: nullability.Medium,
				Location:   n.Pos(),
				Detail:     ref.Name + " is coalesced with a fallback",
			})
		}
	}

	primary := w.eval(n.Value)
	fallback := w.eval(n.Fallback)

	// `a ?: b` is a whenever a is present, so it is nil only if b may be nil.
	for _, v := range primary {
		if v.kind != valNil {
			return appendValues([]value{{kind: valNonNil, detail: "coalesced value"}}, fallback)
		}
	}
	return fallback
}

func (w *walker) assert(n *source.Assert) {
	if slot, ok := w.paramSlot(n.Name); ok && (slot.Role == nullability.Param || slot.Role == nullability.BlockSelf) {
		slot.AddEvidence(nullability.Evidence{
			Kind:       nullability.NilCheck,
			Suggests:   nullability.NonNull,
			Confidence: nullability.Medium,
			Location:   n.Pos(),
			Detail:     n.Name + " is asserted non-nil",
		})
	}
	w.state.known[n.Name] = knownNonNil
}

func (w *walker) opaque(pos token.Position, text string) {
	if !w.sawOpaque {
		w.sawOpaque, w.opaqueAt, w.opaqueText = true, pos, text
	}
}

// finish attaches the construction evidence of the return if every returned value is either a
// nonnil construction or nil. It then attaches zero-confidence evidence to the top-level slots
// left without any evidence in a body that contains unanalyzable constructs, so the trail explains
// why nothing was concluded.
func (w *walker) finish() {
	if ret, ok := w.facts.Signature.Slot(nullability.ReturnPath); ok && !w.undecided {
		for _, e := range w.constructed {
			ret.AddEvidence(e)
		}
	}
	if !w.sawOpaque {
		return
	}
	for _, slot := range w.facts.Signature.Slots {
		if len(slot.Evidence) > 0 {
			continue
		}
		slot.AddEvidence(nullability.Evidence{
			Kind:       nullability.Unanalyzable,
			Suggests:   nullability.Unspecified,
			Confidence: nullability.None,
			Location:   w.opaqueAt,
			Detail:     "body contains an unanalyzable construct: " + w.opaqueText,
		})
	}
}
