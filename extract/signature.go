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
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/source"
)

// BuildSignature converts a declaration into its signature. Only annotateable positions become
// slots, but slot paths always use the declared parameter index. Block types nested deeper than
// maxDepth are treated as opaque block slots without a nested signature.
func BuildSignature(decl source.Decl, maxDepth int) *nullability.Signature {
	sig := &nullability.Signature{ReturnType: decl.ReturnType, Arity: len(decl.Params), Params: params(decl.Params)}
	if nullability.IsAnnotateable(decl.ReturnType) {
		sig.Slots = append(sig.Slots, &nullability.Slot{
			Path:         nullability.ReturnPath,
			Role:         nullability.Return,
			DeclaredType: decl.ReturnType,
		})
	}

	// The parameters of a named block type are block parameters themselves.
	role := nullability.Param
	if decl.Symbol.Kind == nullability.BlockType {
		role = nullability.BlockParam
	}
	for i, p := range decl.Params {
		if slot := paramSlot(p, nullability.ParamPath(i), role, 0, maxDepth); slot != nil {
			sig.Slots = append(sig.Slots, slot)
		}
	}
	return sig
}

func paramSlot(p source.Param, path nullability.Path, role nullability.Role, depth, maxDepth int) *nullability.Slot {
	if p.Block == nil {
		if !nullability.IsAnnotateable(p.Type) {
			return nil
		}
		return &nullability.Slot{Path: path, Role: role, Name: p.Name, DeclaredType: p.Type}
	}

	slot := &nullability.Slot{Path: path, Role: nullability.BlockSelf, Name: p.Name, DeclaredType: p.Type}
	if depth > 0 {
		// A block nested inside a block is a block parameter of its enclosing block; its own
		// nullability is resolved together with its siblings.
		slot.Role = nullability.BlockParam
	}
	if depth >= maxDepth {
		return slot
	}
	slot.Block = &nullability.Signature{
		ReturnType: p.Block.ReturnType,
		Arity:      len(p.Block.Params),
		Params:     params(p.Block.Params),
	}
	for i, bp := range p.Block.Params {
		if nested := paramSlot(bp, path.Block(i), nullability.BlockParam, depth+1, maxDepth); nested != nil {
			slot.Block.Slots = append(slot.Block.Slots, nested)
		}
	}
	return slot
}

func params(ps []source.Param) []nullability.DeclaredParam {
	out := make([]nullability.DeclaredParam, len(ps))
	for i, p := range ps {
		out[i] = nullability.DeclaredParam{Name: p.Name, Type: p.Type}
	}
	return out
}
