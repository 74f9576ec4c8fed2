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

// Package source defines the input boundary of the analysis: declarations of symbols together
// with an abstract body made of a closed set of node kinds. A concrete Objective-C parser (out of
// scope here) is expected to lower its syntax trees to these nodes; this package also decodes
// them from YAML documents.
package source

import (
	"go/token"

	"go.uber.org/nullinfer/nullability"
)

// Decl is the declaration of one symbol along with its implementation body, if any.
type Decl struct {
	Symbol     nullability.Symbol
	ReturnType string
	Params     []Param
	// Body is the implementation. HasBody distinguishes an empty implementation from a bare
	// declaration (e.g. a header-only method).
	Body     []Node
	HasBody  bool
	Location token.Position
}

// Param is a declared parameter.
type Param struct {
	Name string
	Type string
	// Block is set when the parameter type is a block.
	Block *BlockType
}

// BlockType is the declared shape of a block type.
type BlockType struct {
	ReturnType string
	Params     []Param
}

// Node is an element of an implementation body. The set of node kinds is closed: the concrete
// types in this file are the only implementations.
type Node interface {
	Pos() token.Position
	node()
}

// At carries the source position of a node and is embedded in every node type.
type At struct {
	Position token.Position
}

// Pos returns the position of the node.
func (a At) Pos() token.Position { return a.Position }

func (At) node() {}

// Nil is the nil literal.
type Nil struct{ At }

// Ref is a reference to a named value: a parameter, a local variable or self.
type Ref struct {
	At
	Name string
}

// New is a freshly constructed object or an object literal; it is never nil.
type New struct {
	At
	Type string
}

// BlockLit is a block literal; it is never nil.
type BlockLit struct{ At }

// Call is a message send or function call that statically resolves to a symbol.
type Call struct {
	At
	Callee   nullability.SymbolID
	Receiver Node
	// Args are aligned with the callee's parameters.
	Args []Node
}

// Invoke is the invocation of a block-typed value, e.g. `completion(data, nil)`.
type Invoke struct {
	At
	Block string
	Args  []Node
}

// Assign stores a value in a local variable.
type Assign struct {
	At
	Name  string
	Value Node
}

// Return is a return statement; Value is nil for a bare return.
type Return struct {
	At
	Value Node
}

// If is a guard conditional.
type If struct {
	At
	Cond Cond
	Then []Node
	Else []Node
}

// Ternary is the conditional expression `cond ? then : else`.
type Ternary struct {
	At
	Cond Cond
	Then Node
	Else Node
}

// Coalesce is the null-coalescing expression `value ?: fallback`.
type Coalesce struct {
	At
	Value    Node
	Fallback Node
}

// Assert is an assertion-style guard on a named value, e.g. `NSParameterAssert(x)`.
type Assert struct {
	At
	Name string
}

// Opaque is a construct the lowering could not express with the other kinds: macro dispatch,
// reflection-style calls (performSelector:, objc_msgSend) and the like.
type Opaque struct {
	At
	Text string
}

// Cond is the condition of an If or a Ternary.
type Cond interface {
	cond()
}

// NilTest tests a named value against nil. IsNil is true for `x == nil` and `!x`, false for
// `x != nil` and `x`.
type NilTest struct {
	Name  string
	IsNil bool
}

// And is a conjunction of conditions.
type And struct {
	Conds []Cond
}

// OpaqueCond is any condition that does not test nullability.
type OpaqueCond struct {
	Text string
}

func (NilTest) cond()    {}
func (And) cond()        {}
func (OpaqueCond) cond() {}
