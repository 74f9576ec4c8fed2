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
	"regexp"
	"strings"
)

// Role is the position a slot occupies in its signature.
type Role uint8

const (
	// Return is the return slot of a method or property getter.
	Return Role = iota
	// Param is a parameter whose declared type is not a block.
	Param
	// BlockSelf is a block-typed parameter: the nullability of the block itself.
	BlockSelf
	// BlockParam is a parameter of a block type, at any nesting depth.
	BlockParam
)

func (r Role) String() string {
	switch r {
	case Return:
		return "return"
	case Param:
		return "parameter"
	case BlockSelf:
		return "block"
	case BlockParam:
		return "block-parameter"
	}
	return fmt.Sprintf("Role(%d)", r)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	for _, v := range []Role{Return, Param, BlockSelf, BlockParam} {
		if v.String() == string(text) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unrecognized role %q", text)
}

// Phase returns the inference phase (1-4) in which slots of this role are resolved. Parameters
// come first, then block parameters, then blocks themselves, and returns last.
func (r Role) Phase() int {
	switch r {
	case Param:
		return 1
	case BlockParam:
		return 2
	case BlockSelf:
		return 3
	default:
		return 4
	}
}

// Slot is a single annotateable nullability position.
type Slot struct {
	Path Path
	Role Role
	// Name is the parameter name, empty for return slots.
	Name string
	// DeclaredType is the type text exactly as declared, without nullability qualifiers.
	DeclaredType string
	// Block is the nested signature of a block-typed slot, nil otherwise.
	Block *Signature

	State      State
	Confidence Confidence
	Evidence   []Evidence
	// Warning is set when the slot was finalized because the iteration cap was exhausted.
	Warning bool
	// Frozen is set once the state can no longer change.
	Frozen bool
}

// Clone deep-copies the slot, including its nested signature.
func (s *Slot) Clone() *Slot {
	c := *s
	c.Evidence = append([]Evidence(nil), s.Evidence...)
	if s.Block != nil {
		c.Block = s.Block.Clone()
	}
	return &c
}

// AddEvidence appends evidence to the slot, dropping exact duplicates so that re-discovery of
// the same observation does not inflate the trail.
func (s *Slot) AddEvidence(evs ...Evidence) {
	for _, e := range evs {
		if !containsEvidence(s.Evidence, e) {
			s.Evidence = append(s.Evidence, e)
		}
	}
}

func containsEvidence(list []Evidence, e Evidence) bool {
	for _, o := range list {
		if o.Kind != e.Kind || o.Suggests != e.Suggests || o.Confidence != e.Confidence ||
			o.Location != e.Location || o.Detail != e.Detail {
			continue
		}
		if (o.Forward == nil) != (e.Forward == nil) {
			continue
		}
		if o.Forward != nil && *o.Forward != *e.Forward {
			continue
		}
		return true
	}
	return false
}

// Signature is the ordered sequence of slots of a symbol or a block type.
type Signature struct {
	// ReturnType is the declared return type text. It is kept even when the return is not
	// annotateable (e.g. void) so that signatures can be rendered back.
	ReturnType string
	// Slots are ordered: the return slot (if annotateable) first, then parameters in order.
	Slots []*Slot
	// Arity is the number of declared parameters, annotateable or not.
	Arity int
	// Params lists every declared parameter in order, annotateable or not.
	Params []DeclaredParam
}

// DeclaredParam is a declared parameter as written.
type DeclaredParam struct {
	Name string
	Type string
}

// Clone deep-copies the signature.
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	c := &Signature{
		ReturnType: s.ReturnType,
		Arity:      s.Arity,
		Params:     append([]DeclaredParam(nil), s.Params...),
		Slots:      make([]*Slot, len(s.Slots)),
	}
	for i, slot := range s.Slots {
		c.Slots[i] = slot.Clone()
	}
	return c
}

// Slot finds the slot addressed by path, descending into nested block signatures.
func (s *Signature) Slot(path Path) (*Slot, bool) {
	if s == nil {
		return nil, false
	}
	for _, slot := range s.Slots {
		if slot.Path == path {
			return slot, true
		}
		if slot.Block != nil && strings.HasPrefix(string(path), string(slot.Path)+".") {
			return slot.Block.Slot(path)
		}
	}
	return nil, false
}

// Walk visits every slot depth-first in declaration order: a block-typed slot is visited before
// the slots of its nested signature.
func (s *Signature) Walk(f func(*Slot)) {
	if s == nil {
		return
	}
	for _, slot := range s.Slots {
		f(slot)
		slot.Block.Walk(f)
	}
}

// Len returns the number of slots including nested ones.
func (s *Signature) Len() int {
	n := 0
	s.Walk(func(*Slot) { n++ })
	return n
}

var _pointerLike = regexp.MustCompile(`\*|\^|\bid\b|\binstancetype\b|\bClass\b`)

// IsAnnotateable returns true if a declared type can carry a nullability qualifier, i.e. it is
// an object pointer, a block, or one of the implicitly-pointer Objective-C types.
func IsAnnotateable(declaredType string) bool {
	t := strings.TrimSpace(declaredType)
	if t == "" || t == "void" {
		return false
	}
	return _pointerLike.MatchString(t)
}
