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

package inference

import (
	"bytes"
	"encoding/gob"
	"errors"

	"github.com/klauspost/compress/s2"
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/util/orderedmap"
)

// SymbolResult is the finalized signature of one symbol.
type SymbolResult struct {
	Symbol    nullability.Symbol
	Signature *nullability.Signature
}

// Result is the outcome of an inference run. Symbols are kept in registry order, which makes
// every rendering of a result deterministic.
type Result struct {
	Symbols *orderedmap.OrderedMap[nullability.SymbolID, *SymbolResult]
	// Rounds is the number of rounds run across both stages.
	Rounds int
	// Incomplete is set if the run was stopped by the iteration cap or by cancellation before
	// reaching a fixed point.
	Incomplete bool
	// Cycles lists the call cycles of the analyzed symbols.
	Cycles [][]nullability.SymbolID
	// KnowledgeCalls is the number of queries that reached the knowledge base.
	KnowledgeCalls int64
}

func (e *Engine) result(rounds int, incomplete bool) *Result {
	r := &Result{
		Symbols:        orderedmap.New[nullability.SymbolID, *SymbolResult](),
		Rounds:         rounds,
		Incomplete:     incomplete,
		Cycles:         e.graph.Cycles(),
		KnowledgeCalls: e.kb.Calls(),
	}
	for i, sig := range e.sigs {
		sym := e.registry.At(i).Symbol
		r.Symbols.Store(sym.ID, &SymbolResult{Symbol: sym, Signature: sig})
	}
	return r
}

// Lookup returns the finalized signature of a symbol.
func (r *Result) Lookup(id nullability.SymbolID) (*SymbolResult, bool) {
	return r.Symbols.Load(id)
}

// Slot returns the finalized slot a reference points at.
func (r *Result) Slot(ref nullability.Ref) (*nullability.Slot, bool) {
	s, ok := r.Symbols.Load(ref.Symbol)
	if !ok {
		return nil, false
	}
	return s.Signature.Slot(ref.Path)
}

// Warnings returns the number of slots finalized with a warning.
func (r *Result) Warnings() int {
	n := 0
	for _, s := range r.Symbols.All() {
		s.Signature.Walk(func(slot *nullability.Slot) {
			if slot.Warning {
				n++
			}
		})
	}
	return n
}

// resultGob has the fields of Result without its methods, so encoding does not recurse.
type resultGob Result

// GobEncode encodes the result via gob encoding, compressed with s2.
func (r *Result) GobEncode() (b []byte, err error) {
	var buf bytes.Buffer
	writer := s2.NewWriter(&buf)
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := gob.NewEncoder(writer).Encode((*resultGob)(r)); err != nil {
		return nil, err
	}

	// Close the s2 writer before getting the bytes such that we have complete information.
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode decodes the result from buffer.
func (r *Result) GobDecode(input []byte) error {
	*r = Result{}
	if err := gob.NewDecoder(s2.NewReader(bytes.NewReader(input))).Decode((*resultGob)(r)); err != nil {
		return err
	}
	if r.Symbols == nil {
		r.Symbols = orderedmap.New[nullability.SymbolID, *SymbolResult]()
	}
	return nil
}
