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
	"fmt"
	"os"

	"go.uber.org/nullinfer/nullability"
	"gopkg.in/yaml.v3"
)

type slotKey struct {
	symbol nullability.SymbolID
	path   nullability.Path
}

// Corpus is an immutable in-memory set of facts.
type Corpus struct {
	name  string
	facts map[slotKey]Fact
}

// NewCorpus builds a corpus from facts. Facts without sources are attributed to the corpus name;
// several facts for the same slot are combined, so a corpus asserting two different states for a
// slot answers Conflicting for it.
func NewCorpus(name string, facts ...Fact) *Corpus {
	grouped := make(map[slotKey][]Fact)
	var order []slotKey
	for _, f := range facts {
		if len(f.Sources) == 0 {
			f.Sources = []string{name}
		}
		k := slotKey{f.Symbol, f.Path}
		if _, ok := grouped[k]; !ok {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], f)
	}

	c := &Corpus{name: name, facts: make(map[slotKey]Fact, len(grouped))}
	for _, k := range order {
		c.facts[k] = combine(k.symbol, k.path, grouped[k])
	}
	return c
}

// Name returns the name of the corpus.
func (c *Corpus) Name() string {
	return c.name
}

// Len returns the number of slots the corpus has a fact for.
func (c *Corpus) Len() int {
	return len(c.facts)
}

// Lookup implements Oracle. It never fails.
func (c *Corpus) Lookup(_ context.Context, symbol nullability.SymbolID, path nullability.Path) (Fact, error) {
	if f, ok := c.facts[slotKey{symbol, path}]; ok {
		return f, nil
	}
	return Fact{Symbol: symbol, Path: path}, nil
}

// corpusYAML is the document format of a YAML corpus:
//
//	source: ios-sdk
//	facts:
//	  - symbol: "-[NSString stringByAppendingString:]"
//	    slots: {ret: nonnull, p0: nonnull}
type corpusYAML struct {
	Source string `yaml:"source"`
	Facts  []struct {
		Symbol string            `yaml:"symbol"`
		Slots  map[string]string `yaml:"slots"`
	} `yaml:"facts"`
}

// ParseCorpus decodes a YAML corpus. The corpus is named after its source field, or after
// fallbackName if the document does not name one.
func ParseCorpus(data []byte, fallbackName string) (*Corpus, error) {
	var doc corpusYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	name := doc.Source
	if name == "" {
		name = fallbackName
	}

	var facts []Fact
	for _, entry := range doc.Facts {
		if entry.Symbol == "" {
			return nil, fmt.Errorf("corpus %s: fact without symbol", name)
		}
		for rawPath, rawState := range entry.Slots {
			path, err := nullability.ParsePath(rawPath)
			if err != nil {
				return nil, fmt.Errorf("corpus %s: symbol %q: %w", name, entry.Symbol, err)
			}
			state, err := nullability.ParseState(rawState)
			if err != nil {
				return nil, fmt.Errorf("corpus %s: symbol %q, slot %s: %w", name, entry.Symbol, path, err)
			}
			if state == nullability.Unknown || state == nullability.Conflicting {
				return nil, fmt.Errorf("corpus %s: symbol %q, slot %s: %s is not an authoritative state", name, entry.Symbol, path, state)
			}
			facts = append(facts, Fact{Symbol: nullability.SymbolID(entry.Symbol), Path: path, State: state})
		}
	}
	return NewCorpus(name, facts...), nil
}

// LoadCorpus reads a YAML corpus file.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	c, err := ParseCorpus(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
