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

// Package extract implements the fact extractor: the local dataflow classification of one
// symbol's implementation body into evidence attached to the slots of its signature, plus the
// call sites the body contains. Extraction of distinct symbols shares no mutable state, so an
// Extractor can be used from many goroutines at once.
package extract

import (
	"fmt"
	"go/token"
	"runtime/debug"

	"go.uber.org/nullinfer/config"
	"go.uber.org/nullinfer/nullability"
	"go.uber.org/nullinfer/source"
	"go.uber.org/zap"
)

// Facts is everything extracted from one declaration.
type Facts struct {
	Symbol    nullability.Symbol
	Signature *nullability.Signature
	CallSites []nullability.CallSite
	// HasBody is false for bare declarations, which contribute a signature but no evidence.
	HasBody  bool
	Location token.Position
}

// Extractor classifies declarations into Facts.
type Extractor struct {
	maxBlockDepth int
	logger        *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBlockDepth bounds the nesting depth of block signatures.
func WithMaxBlockDepth(depth int) Option {
	return func(e *Extractor) { e.maxBlockDepth = depth }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxBlockDepth: config.DefaultMaxBlockDepth, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract classifies one declaration. Extraction never fails on the shape of a body: constructs
// that cannot be classified produce zero-confidence evidence instead. An error is only returned
// if the walk panicked, in which case the signature is still usable (without body evidence).
func (e *Extractor) Extract(decl source.Decl) (facts *Facts, err error) {
	facts = &Facts{
		Symbol:    decl.Symbol,
		Signature: BuildSignature(decl, e.maxBlockDepth),
		HasBody:   decl.HasBody,
		Location:  decl.Location,
	}
	if !decl.HasBody {
		return facts, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("INTERNAL PANIC extracting %q: %s\n%s", decl.Symbol.ID, r, string(debug.Stack()))
			facts.Signature = BuildSignature(decl, e.maxBlockDepth)
			facts.CallSites = nil
		}
	}()

	w := newWalker(decl, facts)
	w.block(decl.Body)
	w.finish()

	e.logger.Debug("extracted symbol",
		zap.String("symbol", string(decl.Symbol.ID)),
		zap.Int("slots", facts.Signature.Len()),
		zap.Int("callSites", len(facts.CallSites)),
	)
	return facts, nil
}
