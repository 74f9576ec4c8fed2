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

package source

import (
	"errors"
	"fmt"
	"go/token"

	"go.uber.org/nullinfer/nullability"
	"gopkg.in/yaml.v3"
)

// The YAML form of a unit looks like:
//
//	file: Loader.m
//	symbols:
//	  - name: "-[Loader fetch:completion:]"
//	    owner: Loader
//	    kind: method
//	    returns: "NSData *"
//	    line: 12
//	    params:
//	      - {name: url, type: "NSURL *"}
//	      - name: completion
//	        type: "void (^)(NSData *, NSError *)"
//	        block:
//	          returns: void
//	          params:
//	            - {name: data, type: "NSData *"}
//	            - {name: error, type: "NSError *"}
//	    body:
//	      - if:
//	          cond: {nil: url}
//	          then: [{return: nil}]
//	      - return: {call: {callee: "-[Cache lookup:]", args: [{ref: url}]}}
//
// A node is either the scalar `nil`, or a mapping with exactly one kind key (ref, new, block,
// call, invoke, assign, return, if, ternary, coalesce, assert, opaque) and an optional `line`.
// A condition is a mapping with one of the keys nil, nonnil, and, opaque.

type unitYAML struct {
	File    string     `yaml:"file"`
	Symbols []declYAML `yaml:"symbols"`
}

type declYAML struct {
	Name    string      `yaml:"name"`
	Owner   string      `yaml:"owner"`
	Kind    string      `yaml:"kind"`
	Returns string      `yaml:"returns"`
	Line    int         `yaml:"line"`
	Params  []paramYAML `yaml:"params"`
	Body    yaml.Node   `yaml:"body"`
}

type paramYAML struct {
	Name  string     `yaml:"name"`
	Type  string     `yaml:"type"`
	Block *blockYAML `yaml:"block"`
}

type blockYAML struct {
	Returns string      `yaml:"returns"`
	Params  []paramYAML `yaml:"params"`
}

type callYAML struct {
	Callee   string      `yaml:"callee"`
	Receiver yaml.Node   `yaml:"receiver"`
	Args     []yaml.Node `yaml:"args"`
}

type invokeYAML struct {
	Block string      `yaml:"block"`
	Args  []yaml.Node `yaml:"args"`
}

type assignYAML struct {
	Name  string    `yaml:"name"`
	Value yaml.Node `yaml:"value"`
}

type ifYAML struct {
	Cond yaml.Node   `yaml:"cond"`
	Then []yaml.Node `yaml:"then"`
	Else []yaml.Node `yaml:"else"`
}

type ternaryYAML struct {
	Cond yaml.Node `yaml:"cond"`
	Then yaml.Node `yaml:"then"`
	Else yaml.Node `yaml:"else"`
}

type coalesceYAML struct {
	Value    yaml.Node `yaml:"value"`
	Fallback yaml.Node `yaml:"fallback"`
}

// Parse decodes a YAML unit. The filename is used for positions only.
func Parse(data []byte, filename string) ([]Decl, error) {
	var u unitYAML
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if u.File != "" {
		filename = u.File
	}

	d := decoder{file: filename}
	decls := make([]Decl, 0, len(u.Symbols))
	for i, s := range u.Symbols {
		decl, err := d.decl(s)
		if err != nil {
			return nil, fmt.Errorf("%s: symbol #%d (%q): %w", filename, i, s.Name, err)
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

type decoder struct {
	file string
}

func (d decoder) pos(line int) token.Position {
	if line <= 0 {
		return token.Position{Filename: d.file}
	}
	return token.Position{Filename: d.file, Line: line, Column: 1}
}

func (d decoder) nodePos(n *yaml.Node) token.Position {
	if n == nil || n.Line == 0 {
		return token.Position{Filename: d.file}
	}
	return token.Position{Filename: d.file, Line: n.Line, Column: n.Column}
}

func (d decoder) decl(s declYAML) (Decl, error) {
	if s.Name == "" {
		return Decl{}, errors.New("missing name")
	}
	kind, err := nullability.ParseSymbolKind(s.Kind)
	if err != nil {
		return Decl{}, err
	}
	decl := Decl{
		Symbol:     nullability.Symbol{ID: nullability.SymbolID(s.Name), Owner: s.Owner, Kind: kind},
		ReturnType: s.Returns,
		Params:     d.params(s.Params),
		Location:   d.pos(s.Line),
	}
	// A missing body leaves the node zero; `body: []` is an empty implementation.
	if s.Body.Kind != 0 {
		decl.HasBody = true
		if decl.Body, err = d.nodes(&s.Body); err != nil {
			return Decl{}, fmt.Errorf("body: %w", err)
		}
	}
	return decl, nil
}

func (d decoder) params(ps []paramYAML) []Param {
	out := make([]Param, 0, len(ps))
	for _, p := range ps {
		param := Param{Name: p.Name, Type: p.Type}
		if p.Block != nil {
			param.Block = &BlockType{ReturnType: p.Block.Returns, Params: d.params(p.Block.Params)}
		}
		out = append(out, param)
	}
	return out
}

// nodes decodes a sequence node (or a single node, for convenience) into body nodes.
func (d decoder) nodes(n *yaml.Node) ([]Node, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		single, err := d.node(n)
		if err != nil {
			return nil, err
		}
		return []Node{single}, nil
	}
	out := make([]Node, 0, len(n.Content))
	for _, c := range n.Content {
		node, err := d.node(c)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (d decoder) nodeList(ns []yaml.Node) ([]Node, error) {
	out := make([]Node, 0, len(ns))
	for i := range ns {
		node, err := d.node(&ns[i])
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// optionalNode decodes a node that may be absent or null.
func (d decoder) optionalNode(n *yaml.Node) (Node, error) {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil
	}
	return d.node(n)
}

func (d decoder) node(n *yaml.Node) (Node, error) {
	at := At{Position: d.nodePos(n)}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "nil" {
			return &Nil{At: at}, nil
		}
		return nil, fmt.Errorf("line %d: unexpected scalar %q, expected nil or a mapping", n.Line, n.Value)
	case yaml.MappingNode:
	default:
		return nil, fmt.Errorf("line %d: unexpected node, expected nil or a mapping", n.Line)
	}

	var (
		kind  string
		value *yaml.Node
	)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.Value == "line" {
			var line int
			if err := val.Decode(&line); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			at.Position = d.pos(line)
			continue
		}
		if kind != "" {
			return nil, fmt.Errorf("line %d: node has both %q and %q", n.Line, kind, key.Value)
		}
		kind, value = key.Value, val
	}

	switch kind {
	case "ref":
		return &Ref{At: at, Name: value.Value}, nil
	case "new":
		return &New{At: at, Type: value.Value}, nil
	case "block":
		return &BlockLit{At: at}, nil
	case "assert":
		return &Assert{At: at, Name: value.Value}, nil
	case "opaque":
		return &Opaque{At: at, Text: value.Value}, nil
	case "return":
		v, err := d.optionalNode(value)
		if err != nil {
			return nil, err
		}
		return &Return{At: at, Value: v}, nil
	case "call":
		var c callYAML
		if err := value.Decode(&c); err != nil {
			return nil, fmt.Errorf("line %d: call: %w", n.Line, err)
		}
		if c.Callee == "" {
			return nil, fmt.Errorf("line %d: call without callee", n.Line)
		}
		recv, err := d.optionalNode(&c.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := d.nodeList(c.Args)
		if err != nil {
			return nil, err
		}
		return &Call{At: at, Callee: nullability.SymbolID(c.Callee), Receiver: recv, Args: args}, nil
	case "invoke":
		var inv invokeYAML
		if err := value.Decode(&inv); err != nil {
			return nil, fmt.Errorf("line %d: invoke: %w", n.Line, err)
		}
		args, err := d.nodeList(inv.Args)
		if err != nil {
			return nil, err
		}
		return &Invoke{At: at, Block: inv.Block, Args: args}, nil
	case "assign":
		var a assignYAML
		if err := value.Decode(&a); err != nil {
			return nil, fmt.Errorf("line %d: assign: %w", n.Line, err)
		}
		v, err := d.node(&a.Value)
		if err != nil {
			return nil, err
		}
		return &Assign{At: at, Name: a.Name, Value: v}, nil
	case "if":
		var f ifYAML
		if err := value.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: if: %w", n.Line, err)
		}
		cond, err := d.cond(&f.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.nodeList(f.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.nodeList(f.Else)
		if err != nil {
			return nil, err
		}
		return &If{At: at, Cond: cond, Then: then, Else: els}, nil
	case "ternary":
		var t ternaryYAML
		if err := value.Decode(&t); err != nil {
			return nil, fmt.Errorf("line %d: ternary: %w", n.Line, err)
		}
		cond, err := d.cond(&t.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.node(&t.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.node(&t.Else)
		if err != nil {
			return nil, err
		}
		return &Ternary{At: at, Cond: cond, Then: then, Else: els}, nil
	case "coalesce":
		var c coalesceYAML
		if err := value.Decode(&c); err != nil {
			return nil, fmt.Errorf("line %d: coalesce: %w", n.Line, err)
		}
		v, err := d.node(&c.Value)
		if err != nil {
			return nil, err
		}
		fb, err := d.node(&c.Fallback)
		if err != nil {
			return nil, err
		}
		return &Coalesce{At: at, Value: v, Fallback: fb}, nil
	case "":
		return nil, fmt.Errorf("line %d: node without kind", n.Line)
	}
	return nil, fmt.Errorf("line %d: unknown node kind %q", n.Line, kind)
}

func (d decoder) cond(n *yaml.Node) (Cond, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, fmt.Errorf("line %d: a condition is a mapping with exactly one key", n.Line)
	}
	key, val := n.Content[0].Value, n.Content[1]
	switch key {
	case "nil":
		return NilTest{Name: val.Value, IsNil: true}, nil
	case "nonnil":
		return NilTest{Name: val.Value, IsNil: false}, nil
	case "opaque":
		return OpaqueCond{Text: val.Value}, nil
	case "and":
		if val.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: and expects a list of conditions", val.Line)
		}
		and := And{Conds: make([]Cond, 0, len(val.Content))}
		for _, c := range val.Content {
			sub, err := d.cond(c)
			if err != nil {
				return nil, err
			}
			and.Conds = append(and.Conds, sub)
		}
		return and, nil
	}
	return nil, fmt.Errorf("line %d: unknown condition kind %q", n.Line, key)
}
