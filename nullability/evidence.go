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
	"strings"
)

// SourceKind identifies what kind of observation produced a piece of evidence.
type SourceKind uint8

const (
	// NilCheck is a guard in the body: nil comparison, truthiness test, coalescing or assertion.
	NilCheck SourceKind = iota
	// CallSiteLiteral is a literal (nil, constructed object, block literal) observed in an
	// argument position, either at a call site targeting the symbol or at a block invocation.
	CallSiteLiteral
	// ReturnLiteral is a literal observed on a return path.
	ReturnLiteral
	// KnowledgeBaseFact is an authoritative fact from the knowledge base.
	KnowledgeBaseFact
	// ForwardedCall is a value forwarded from or to another slot, resolved by reading that slot.
	ForwardedCall
	// DefaultConvention is a framework convention from the default-fact table.
	DefaultConvention
	// DirectUse is a use of a value that assumes it is present, e.g. an unguarded block
	// invocation or a message send outside any nil check.
	DirectUse
	// Unanalyzable marks constructs the extractor cannot see through; it never carries weight.
	Unanalyzable
)

var _sourceKindNames = [...]string{
	NilCheck:          "nil-check",
	CallSiteLiteral:   "call-site-literal",
	ReturnLiteral:     "return-literal",
	KnowledgeBaseFact: "knowledge-base",
	ForwardedCall:     "forwarded",
	DefaultConvention: "convention",
	DirectUse:         "direct-use",
	Unanalyzable:      "unanalyzable",
}

func (k SourceKind) String() string {
	if int(k) < len(_sourceKindNames) {
		return _sourceKindNames[k]
	}
	return fmt.Sprintf("SourceKind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SourceKind) UnmarshalText(text []byte) error {
	for i, name := range _sourceKindNames {
		if name == string(text) {
			*k = SourceKind(i)
			return nil
		}
	}
	return fmt.Errorf("unrecognized evidence source %q", text)
}

// Ref points at a slot of some symbol, possibly a symbol that is only known through the
// knowledge base.
type Ref struct {
	Symbol SymbolID
	Path   Path
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%s", r.Symbol, r.Path)
}

// Evidence is a single observation supporting a nullability conclusion about one slot.
//
// Evidence is either direct, in which case Suggests holds the suggested state, or forwarded, in
// which case Forward names the slot whose (frozen) state the evidence stands for and Suggests is
// Unknown until the inference engine resolves it.
type Evidence struct {
	Kind       SourceKind
	Suggests   State
	Confidence Confidence
	Location   token.Position
	// Detail is a short human-readable description of the observation.
	Detail string
	// Forward is non-nil for forwarded evidence.
	Forward *Ref
}

// IsForwarded returns true if the evidence needs to be resolved against another slot.
func (e Evidence) IsForwarded() bool {
	return e.Forward != nil
}

// Resolved returns a copy of forwarded evidence with the state of the referenced slot filled in.
func (e Evidence) Resolved(s State) Evidence {
	e.Suggests = s
	return e
}

func (e Evidence) String() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Suggests != Unknown {
		fmt.Fprintf(&b, " => %s", e.Suggests)
	}
	fmt.Fprintf(&b, " (%s)", e.Confidence)
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Forward != nil {
		fmt.Fprintf(&b, " [via %s]", e.Forward)
	}
	if e.Location.IsValid() {
		fmt.Fprintf(&b, " at %s", e.Location)
	}
	return b.String()
}
