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
	"strings"
)

// SymbolID is the qualified name of a symbol, e.g. "-[Loader fetch:completion:]". It is the
// identity used by the registry, the call graph and the knowledge base.
type SymbolID string

// SymbolKind is the kind of declaration a symbol stands for.
type SymbolKind uint8

const (
	// Method is an instance or class method.
	Method SymbolKind = iota
	// Property is a declared property; its getter return and setter parameter share one slot.
	Property
	// BlockType is a named block typedef.
	BlockType
)

func (k SymbolKind) String() string {
	switch k {
	case Method:
		return "method"
	case Property:
		return "property"
	case BlockType:
		return "block"
	}
	return fmt.Sprintf("SymbolKind(%d)", k)
}

// ParseSymbolKind parses the textual form of a symbol kind.
func ParseSymbolKind(s string) (SymbolKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "method", "":
		return Method, nil
	case "property":
		return Property, nil
	case "block", "typedef":
		return BlockType, nil
	}
	return Method, fmt.Errorf("unrecognized symbol kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k SymbolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SymbolKind) UnmarshalText(text []byte) error {
	v, err := ParseSymbolKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Symbol is a method, property or block type that owns a signature.
type Symbol struct {
	// ID is the qualified name of the symbol.
	ID SymbolID
	// Owner is the owning class, category or protocol; empty for free block typedefs.
	Owner string
	Kind  SymbolKind
}

func (s Symbol) String() string {
	return string(s.ID)
}
