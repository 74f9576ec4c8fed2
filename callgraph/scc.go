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

package callgraph

import (
	"slices"

	"go.uber.org/nullinfer/nullability"
	"golang.org/x/tools/container/intsets"
)

// sccs returns the strongly connected components of the graph in reverse topological order
// (callees before callers). Members of each component are ordered by node number.
func (g *Graph) sccs() [][]nullability.SymbolID {
	comps := g.components()
	out := make([][]nullability.SymbolID, len(comps))
	for i, c := range comps {
		out[i] = make([]nullability.SymbolID, len(c))
		for j, n := range c {
			out[i][j] = g.nodes[n]
		}
	}
	return out
}

// Cycles returns the components that contain a cycle: those with more than one member, and
// single recursive symbols.
func (g *Graph) Cycles() [][]nullability.SymbolID {
	var out [][]nullability.SymbolID
	for _, c := range g.sccs() {
		if len(c) == 1 && !g.selfLoop(g.index[c[0]]) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (g *Graph) selfLoop(n int) bool {
	for _, e := range g.out[n] {
		if g.index[g.edges[e].Callee] == n {
			return true
		}
	}
	return false
}

// tarjan holds the state of one run of Tarjan's algorithm. The walk is iterative so that long
// call chains cannot exhaust the stack.
type tarjan struct {
	g       *Graph
	counter int
	index   []int
	low     []int
	onStack intsets.Sparse
	stack   []int
	comps   [][]int
}

type frame struct {
	node int
	next int // next outgoing edge position to explore
}

func (g *Graph) components() [][]int {
	t := &tarjan{g: g, index: make([]int, len(g.nodes)), low: make([]int, len(g.nodes))}
	for i := range t.index {
		t.index[i] = -1
	}
	for n := range g.nodes {
		if t.index[n] < 0 {
			t.visit(n)
		}
	}
	return t.comps
}

func (t *tarjan) push(n int) {
	t.index[n], t.low[n] = t.counter, t.counter
	t.counter++
	t.stack = append(t.stack, n)
	t.onStack.Insert(n)
}

func (t *tarjan) visit(root int) {
	t.push(root)
	frames := []frame{{node: root}}
	for len(frames) > 0 {
		f := &frames[len(frames)-1]
		edges := t.g.out[f.node]
		if f.next < len(edges) {
			w := t.g.index[t.g.edges[edges[f.next]].Callee]
			f.next++
			switch {
			case t.index[w] < 0:
				t.push(w)
				frames = append(frames, frame{node: w})
			case t.onStack.Has(w):
				t.low[f.node] = min(t.low[f.node], t.index[w])
			}
			continue
		}

		v := f.node
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1].node
			t.low[parent] = min(t.low[parent], t.low[v])
		}
		if t.low[v] != t.index[v] {
			continue
		}
		var comp []int
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack.Remove(w)
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		slices.Sort(comp)
		t.comps = append(t.comps, comp)
	}
}

// Depth returns the number of components on the longest caller-to-callee chain of the
// condensed (acyclic) graph. A forwarded fact needs at most that many rounds to travel from the
// deepest callee to the outermost caller, plus the rounds spent inside cyclic components.
func (g *Graph) Depth() int {
	comps := g.components()
	compOf := make([]int, len(g.nodes))
	for i, c := range comps {
		for _, n := range c {
			compOf[n] = i
		}
	}
	// Components come out callees first, so every successor component has a smaller number.
	depth := make([]int, len(comps))
	longest := 0
	for i, c := range comps {
		depth[i] = 1
		for _, n := range c {
			for _, e := range g.out[n] {
				if j := compOf[g.index[g.edges[e].Callee]]; j != i {
					depth[i] = max(depth[i], depth[j]+1)
				}
			}
		}
		longest = max(longest, depth[i])
	}
	return longest
}
