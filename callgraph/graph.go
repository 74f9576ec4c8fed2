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

// Package callgraph implements the call graph: a directed multigraph whose edges are the call
// sites found by the fact extractor. It answers successor queries (what a symbol calls) and
// predecessor queries (who calls a symbol), and exposes the strongly connected components the
// inference engine has to iterate to a fixed point. Once built, a Graph is read-only and safe for
// concurrent use.
package callgraph

import (
	"go.uber.org/nullinfer/nullability"
	"golang.org/x/tools/container/intsets"
)

// Graph is a directed multigraph over symbols. Nodes are numbered densely in the order they
// are added; the nodes passed to Build come first, so their numbering can be shared with the
// signature registry.
type Graph struct {
	nodes []nullability.SymbolID
	index map[nullability.SymbolID]int
	edges []nullability.CallSite
	// out and in hold edge indices per node.
	out [][]int
	in  [][]int
}

// Build creates the graph of the given call sites. Symbols lists the nodes to number first; the
// endpoints of call sites that are not listed (e.g. platform methods) are appended after them.
func Build(symbols []nullability.SymbolID, sites []nullability.CallSite) *Graph {
	g := &Graph{index: make(map[nullability.SymbolID]int, len(symbols))}
	for _, s := range symbols {
		g.node(s)
	}
	for _, c := range sites {
		from, to := g.node(c.Caller), g.node(c.Callee)
		e := len(g.edges)
		g.edges = append(g.edges, c)
		g.out[from] = append(g.out[from], e)
		g.in[to] = append(g.in[to], e)
	}
	return g
}

func (g *Graph) node(id nullability.SymbolID) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[id] = i
	g.nodes = append(g.nodes, id)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return i
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges returns the number of edges.
func (g *Graph) Edges() int {
	return len(g.edges)
}

// Index returns the node number of a symbol.
func (g *Graph) Index(id nullability.SymbolID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Node returns the symbol of a node number.
func (g *Graph) Node(i int) nullability.SymbolID {
	return g.nodes[i]
}

// Successors returns the call sites in the body of id, in discovery order.
func (g *Graph) Successors(id nullability.SymbolID) []nullability.CallSite {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.sites(g.out[i])
}

// Predecessors returns the call sites targeting id, in discovery order.
func (g *Graph) Predecessors(id nullability.SymbolID) []nullability.CallSite {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.sites(g.in[i])
}

func (g *Graph) sites(edges []int) []nullability.CallSite {
	out := make([]nullability.CallSite, len(edges))
	for i, e := range edges {
		out[i] = g.edges[e]
	}
	return out
}

// Neighbors adds to dst every node adjacent (in either direction) to a node of src, and the
// nodes of src themselves.
func (g *Graph) Neighbors(dst, src *intsets.Sparse) {
	for _, n := range src.AppendTo(nil) {
		if n < 0 || n >= len(g.nodes) {
			continue
		}
		dst.Insert(n)
		for _, e := range g.out[n] {
			dst.Insert(g.index[g.edges[e].Callee])
		}
		for _, e := range g.in[n] {
			dst.Insert(g.index[g.edges[e].Caller])
		}
	}
}
