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

// Package nullinfer implements the top-level pipeline that coordinates the entire inference: it
// loads the declarations, extracts their facts in parallel, merges them into the signature
// registry, runs the inference engine against the knowledge base and the framework conventions,
// and annotates the finalized result.
package nullinfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/nullinfer/annotator"
	"go.uber.org/nullinfer/callgraph"
	"go.uber.org/nullinfer/config"
	"go.uber.org/nullinfer/convention"
	"go.uber.org/nullinfer/diagnostic"
	"go.uber.org/nullinfer/extract"
	"go.uber.org/nullinfer/inference"
	"go.uber.org/nullinfer/knowledge"
	"go.uber.org/nullinfer/registry"
	"go.uber.org/nullinfer/source"
	"go.uber.org/nullinfer/util/analysishelper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Output is everything a run produces.
type Output struct {
	RunID       string
	Result      *inference.Result
	Diagnostics []diagnostic.Diagnostic
	Report      *annotator.Report
}

// Snapshot returns the part of the output that is persisted for later reporting.
func (o *Output) Snapshot() *Snapshot {
	return &Snapshot{RunID: o.RunID, Result: o.Result, Diagnostics: o.Diagnostics}
}

type options struct {
	logger  *zap.Logger
	oracles []knowledge.Oracle
	runID   string
}

// Option configures a run.
type Option func(*options)

// WithLogger sets the logger shared by all stages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOracle adds a knowledge base consulted alongside the configured corpora.
func WithOracle(oracle knowledge.Oracle) Option {
	return func(o *options) { o.oracles = append(o.oracles, oracle) }
}

// WithRunID sets the run identifier instead of a random one.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Run infers the nullability of every declaration yielded by provider. A nil cfg runs with the
// defaults. Problems in the analyzed code never fail a run; an error is only returned if the
// inputs cannot be read or the configuration cannot be honored. Internal panics are converted to
// errors.
func Run(ctx context.Context, provider source.Provider, cfg *config.Config, opts ...Option) (*Output, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{logger: zap.NewNop(), runID: uuid.NewString()}
	for _, opt := range opts {
		opt(o)
	}

	p := &pipeline{cfg: cfg, opts: o, diags: diagnostic.NewEngine()}
	r := analysishelper.WrapRun("nullinfer", func(ctx context.Context) (*Output, error) {
		return p.run(ctx, provider)
	})(ctx)
	return r.Res, r.Err
}

type pipeline struct {
	cfg   *config.Config
	opts  *options
	diags *diagnostic.Engine
}

func (p *pipeline) workers() int {
	if p.cfg.Inference.Workers > 0 {
		return p.cfg.Inference.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *pipeline) run(ctx context.Context, provider source.Provider) (_ *Output, err error) {
	logger := p.opts.logger.With(zap.String("run", p.opts.runID))

	decls, err := provider.Decls(ctx)
	if err != nil {
		return nil, fmt.Errorf("load declarations: %w", err)
	}
	logger.Info("loaded declarations", zap.Int("decls", len(decls)))

	reg, err := p.register(ctx, decls, logger)
	if err != nil {
		return nil, err
	}
	graph := callgraph.Build(reg.Symbols(), reg.CallSites())
	logger.Info("built call graph",
		zap.Int("symbols", graph.Len()),
		zap.Int("edges", graph.Edges()),
		zap.Int("depth", graph.Depth()),
	)

	oracle, closeKnowledge, err := p.knowledge()
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, closeKnowledge()) }()
	memo := knowledge.NewMemo(oracle,
		knowledge.WithTimeout(p.cfg.Knowledge.Timeout),
		knowledge.WithLogger(logger),
	)

	conventions, err := p.conventions()
	if err != nil {
		return nil, err
	}

	res, err := inference.New(reg, graph, memo, p.diags,
		inference.WithConventions(conventions),
		inference.WithIterationCap(p.cfg.Inference.IterationCap),
		inference.WithWorkers(p.workers()),
		inference.WithLogger(logger),
	).Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	p.diags.AddLookupFailures(memo.Failures()...)

	diags := p.diags.Diagnostics(true)
	logger.Info("inference finished",
		zap.Int("rounds", res.Rounds),
		zap.Bool("incomplete", res.Incomplete),
		zap.Int64("knowledgeCalls", res.KnowledgeCalls),
		zap.Int("diagnostics", len(diags)),
	)
	return &Output{
		RunID:       p.opts.runID,
		Result:      res,
		Diagnostics: diags,
		Report: annotator.Annotate(res,
			annotator.WithRunID(p.opts.runID),
			annotator.WithDiagnostics(diags),
		),
	}, nil
}

// register extracts the facts of all declarations concurrently and merges them into a frozen
// registry. Merging happens after all extraction has finished, in declaration order.
func (p *pipeline) register(ctx context.Context, decls []source.Decl, logger *zap.Logger) (*registry.Registry, error) {
	x := extract.New(
		extract.WithMaxBlockDepth(p.cfg.Inference.MaxBlockDepth),
		extract.WithLogger(logger),
	)
	facts := make([]*extract.Facts, len(decls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, d := range decls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := x.Extract(d)
			if err != nil {
				logger.Warn("extraction failed", zap.String("symbol", string(d.Symbol.ID)), zap.Error(err))
				p.diags.AddExtractionFailure(d.Symbol.ID, err)
			}
			facts[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	reg := registry.New()
	for _, f := range facts {
		if err := reg.Register(f); err != nil {
			logger.Warn("declaration not registered", zap.String("symbol", string(f.Symbol.ID)), zap.Error(err))
			p.diags.AddExtractionFailure(f.Symbol.ID, err)
		}
	}
	reg.Freeze()
	logger.Info("registered symbols", zap.Int("symbols", reg.Len()))
	return reg, nil
}

// knowledge assembles the configured corpora into a single oracle. The returned function
// releases the corpora that hold resources.
func (p *pipeline) knowledge() (knowledge.Oracle, func() error, error) {
	noop := func() error { return nil }

	var oracles knowledge.Union
	for _, f := range p.cfg.Knowledge.Files {
		c, err := knowledge.LoadCorpus(f)
		if err != nil {
			return nil, noop, fmt.Errorf("load knowledge base: %w", err)
		}
		oracles = append(oracles, c)
	}
	closeStore := noop
	if path := p.cfg.Knowledge.SQLite; path != "" {
		store, err := knowledge.OpenSQLStore(path)
		if err != nil {
			return nil, noop, fmt.Errorf("open knowledge base: %w", err)
		}
		oracles = append(oracles, store)
		closeStore = store.Close
	}
	oracles = append(oracles, p.opts.oracles...)

	switch len(oracles) {
	case 0:
		return nil, closeStore, nil
	case 1:
		return oracles[0], closeStore, nil
	}
	return oracles, closeStore, nil
}

func (p *pipeline) conventions() (*convention.Table, error) {
	table := convention.NewTable()
	if !p.cfg.Conventions.DisableBuiltin {
		table = convention.Builtin()
	}
	for _, f := range p.cfg.Conventions.Files {
		t, err := convention.Load(f)
		if err != nil {
			return nil, fmt.Errorf("load conventions: %w", err)
		}
		table = table.With(t)
	}
	return table, nil
}
