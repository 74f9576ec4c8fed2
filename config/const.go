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

package config

import "time"

// This file hosts defaults and parameters that are not meant to be tuned by users --- the tunable
// ones can be overridden through Config.

// DefaultIterationCap is the maximum number of rounds the inference engine runs, across both of
// its stages, before it gives up on reaching a fixed point. Each slot can only move up the
// lattice, so every slot changes at most three times and a fixed point is normally reached within
// a handful of rounds; the cap only matters for pathological call graphs where forwarded evidence
// ripples through long chains one symbol per round.
const DefaultIterationCap = 32

// DefaultMaxBlockDepth bounds the nesting depth of block signatures. Blocks nested deeper than
// this are kept as block slots but their own parameters are not modeled.
const DefaultMaxBlockDepth = 3

// DefaultKnowledgeTimeout bounds a single knowledge base lookup.
const DefaultKnowledgeTimeout = 2 * time.Second

// PhaseCount is the number of phase steps in one inference round: parameters, block parameters,
// blocks and returns.
const PhaseCount = 4

// ConfigName is the base name of the configuration file, searched for in the working directory.
const ConfigName = "nullinfer"

// EnvPrefix is the prefix of environment variables overriding configuration keys, e.g.
// NULLINFER_INFERENCE_ITERATION_CAP.
const EnvPrefix = "NULLINFER"

// Output formats understood by the annotator writers.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)
