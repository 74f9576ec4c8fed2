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

package annotator

import (
	"strings"
	"unicode"

	"go.uber.org/nullinfer/nullability"
)

// Token returns the nullability token emitted for a finalized state. Conflicting slots are left
// unspecified; the conflict itself is reported separately.
func Token(s nullability.State) string {
	switch s {
	case nullability.Nullable:
		return "nullable"
	case nullability.NonNull:
		return "nonnull"
	}
	return "unspecified"
}

// Qualify returns the declared type of a slot with its token inserted in front. For block slots
// the tokens of the block's own parameters are inserted into its parameter list as well; all
// other text is kept as declared.
func Qualify(slot *nullability.Slot) string {
	return qualify(slot.DeclaredType, slot)
}

func qualify(typ string, slot *nullability.Slot) string {
	if slot.Block != nil {
		typ = qualifyBlockParams(typ, slot.Block)
	}
	return Token(slot.State) + " " + typ
}

// qualifyBlockParams inserts tokens into the parameter list of a block type, which is its last
// parenthesized group. The text is returned unchanged when the list does not line up with the
// block's signature.
func qualifyBlockParams(typ string, sig *nullability.Signature) string {
	open, end, ok := paramList(typ)
	if !ok {
		return typ
	}
	pieces := splitTopLevel(typ[open+1 : end])
	if len(pieces) != sig.Arity {
		return typ
	}
	for _, slot := range sig.Slots {
		i := slot.Path.Index()
		if i < 0 || i >= len(pieces) {
			continue
		}
		piece := pieces[i]
		trimmed := strings.TrimSpace(piece)
		lead := piece[:strings.Index(piece, trimmed)]
		trail := piece[len(lead)+len(trimmed):]
		pieces[i] = lead + qualify(trimmed, slot) + trail
	}
	return typ[:open+1] + strings.Join(pieces, ",") + typ[end:]
}

// paramList locates the parentheses of the trailing parameter list of a block type, which may be
// followed by a parameter name.
func paramList(typ string) (open, end int, ok bool) {
	end = strings.LastIndexByte(typ, ')')
	if end < 0 || !isIdent(strings.TrimSpace(typ[end+1:])) || !strings.Contains(typ, "(^") {
		return 0, 0, false
	}
	depth := 0
	for i := end; i >= 0; i-- {
		switch typ[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i, end, true
			}
		}
	}
	return 0, 0, false
}

func isIdent(s string) bool {
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// splitTopLevel splits a parameter list at the commas outside of any brackets.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '<', '[':
			depth++
		case ')', '>', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

// Declaration renders the annotated declaration of a symbol. Symbols whose identifier cannot be
// lined up with the signature are rendered as their identifier.
func Declaration(sym nullability.Symbol, sig *nullability.Signature) string {
	if len(sig.Params) != sig.Arity {
		return string(sym.ID)
	}
	switch sym.Kind {
	case nullability.Property:
		return property(sym, sig)
	case nullability.BlockType:
		return typedef(sym, sig)
	}
	return method(sym, sig)
}

func returnText(sig *nullability.Signature) string {
	if slot, ok := sig.Slot(nullability.ReturnPath); ok {
		return Qualify(slot)
	}
	if sig.ReturnType == "" {
		return "void"
	}
	return sig.ReturnType
}

func paramText(sig *nullability.Signature, i int) string {
	if slot, ok := sig.Slot(nullability.ParamPath(i)); ok {
		return Qualify(slot)
	}
	return sig.Params[i].Type
}

// withName appends a name to a type, the way declarations are conventionally spaced.
func withName(typ, name string) string {
	if name == "" {
		return typ
	}
	if strings.HasSuffix(typ, "*") {
		return typ + name
	}
	return typ + " " + name
}

// method renders "-[Class sel:with:]" as "- (ret)sel:(type)a with:(type)b".
func method(sym nullability.Symbol, sig *nullability.Signature) string {
	id := string(sym.ID)
	sp := strings.IndexByte(id, ' ')
	if len(id) < 4 || (id[0] != '-' && id[0] != '+') || id[1] != '[' || sp < 0 || !strings.HasSuffix(id, "]") {
		return id
	}
	selector := id[sp+1 : len(id)-1]

	var b strings.Builder
	b.WriteString(id[:1] + " (" + returnText(sig) + ")")
	if sig.Arity == 0 {
		b.WriteString(selector)
		return b.String()
	}
	parts := strings.Split(strings.TrimSuffix(selector, ":"), ":")
	if len(parts) != sig.Arity {
		return id
	}
	for i, part := range parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part + ":(" + paramText(sig, i) + ")" + sig.Params[i].Name)
	}
	return b.String()
}

// property renders "@property Class.name" as "@property (token) type name;".
func property(sym nullability.Symbol, sig *nullability.Signature) string {
	id := string(sym.ID)
	name := id[strings.LastIndexAny(id, ". ")+1:]
	if slot, ok := sig.Slot(nullability.ReturnPath); ok {
		return "@property (" + Token(slot.State) + ") " + withName(sig.ReturnType, name) + ";"
	}
	return "@property " + withName(sig.ReturnType, name) + ";"
}

// typedef renders a named block type as "typedef ret (^Name)(params);".
func typedef(sym nullability.Symbol, sig *nullability.Signature) string {
	params := make([]string, sig.Arity)
	for i := range params {
		params[i] = withName(paramText(sig, i), sig.Params[i].Name)
	}
	list := strings.Join(params, ", ")
	if list == "" {
		list = "void"
	}
	return "typedef " + returnText(sig) + " (^" + string(sym.ID) + ")(" + list + ");"
}
