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

package knowledge

import (
	"context"
	"errors"

	"go.uber.org/nullinfer/nullability"
)

// Union merges several oracles of equal precedence (platform facts, sibling statically-typed
// declarations) into one. Agreeing answers merge their sources and disagreeing answers produce a
// Conflicting fact. A failing member does not hide the answers of the others: the combined
// answer of the members that responded is returned along with the joined errors.
type Union []Oracle

// Lookup implements Oracle.
func (u Union) Lookup(ctx context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error) {
	var (
		facts []Fact
		errs  []error
	)
	for _, o := range u {
		f, err := o.Lookup(ctx, symbol, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		facts = append(facts, f)
	}
	return combine(symbol, path, facts), errors.Join(errs...)
}
