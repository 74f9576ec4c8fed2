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

package nullability

import (
	"fmt"
	"go/token"
)

// HintKind classifies an argument observed at a call expression.
type HintKind uint8

const (
	// HintOpaque is an argument the extractor could not classify.
	HintOpaque HintKind = iota
	// HintNil is the nil literal.
	HintNil
	// HintNonNil is a freshly constructed object, a literal or a block literal.
	HintNonNil
	// HintForward is a value forwarded from another slot: a parameter of the caller or the
	// return of another call.
	HintForward
)

func (k HintKind) String() string {
	switch k {
	case HintOpaque:
		return "opaque"
	case HintNil:
		return "nil"
	case HintNonNil:
		return "nonnil"
	case HintForward:
		return "forward"
	}
	return fmt.Sprintf("HintKind(%d)", k)
}

// ArgHint is the nullability hint for one argument of a call site.
type ArgHint struct {
	Kind HintKind
	// Forwards lists the slots the argument may come from, for HintForward. A conditional
	// argument such as `flag ? a : b` forwards from more than one slot.
	Forwards []Ref
	// Detail is a short description of the argument expression.
	Detail string
}

// State returns the nullability suggested by a literal hint, Unknown otherwise.
func (h ArgHint) State() State {
	switch h.Kind {
	case HintNil:
		return Nullable
	case HintNonNil:
		return NonNull
	}
	return Unknown
}

// CallSite is a directed edge from a caller to a callee with per-argument hints. Args are
// aligned with the callee's parameter indices.
type CallSite struct {
	Caller   SymbolID
	Callee   SymbolID
	Location token.Position
	Args     []ArgHint
}

// Arg returns the hint for the i-th argument, or an opaque hint if the call site did not
// provide that many arguments.
func (c CallSite) Arg(i int) ArgHint {
	if i < 0 || i >= len(c.Args) {
		return ArgHint{Kind: HintOpaque}
	}
	return c.Args[i]
}

func (c CallSite) String() string {
	return fmt.Sprintf("%s -> %s", c.Caller, c.Callee)
}
