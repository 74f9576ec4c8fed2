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

// Package config implements the configuration of a run: the non-tunable defaults in const.go,
// and the user configuration loaded from nullinfer.yaml, NULLINFER_* environment variables and
// command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the user configuration of a run.
type Config struct {
	Inference   InferenceConfig  `mapstructure:"inference"`
	Knowledge   KnowledgeConfig  `mapstructure:"knowledge"`
	Conventions ConventionConfig `mapstructure:"conventions"`
	Output      OutputConfig     `mapstructure:"output"`
}

// InferenceConfig tunes the inference engine.
type InferenceConfig struct {
	IterationCap int `mapstructure:"iteration_cap"`
	// Workers bounds the number of goroutines used for extraction and slot evaluation; zero
	// means one per CPU.
	Workers       int `mapstructure:"workers"`
	MaxBlockDepth int `mapstructure:"max_block_depth"`
}

// KnowledgeConfig lists the knowledge base corpora.
type KnowledgeConfig struct {
	Files   []string      `mapstructure:"files"`
	SQLite  string        `mapstructure:"sqlite"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConventionConfig lists additional framework convention tables.
type ConventionConfig struct {
	Files          []string `mapstructure:"files"`
	DisableBuiltin bool     `mapstructure:"disable_builtin"`
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
	// Snapshot is the path the frozen inference result is written to, if set.
	Snapshot string `mapstructure:"snapshot"`
}

// Keys of the configuration, shared with the command line flags bound to them.
const (
	KeyIterationCap     = "inference.iteration_cap"
	KeyWorkers          = "inference.workers"
	KeyMaxBlockDepth    = "inference.max_block_depth"
	KeyKnowledgeFiles   = "knowledge.files"
	KeyKnowledgeSQLite  = "knowledge.sqlite"
	KeyKnowledgeTimeout = "knowledge.timeout"
	KeyConventionFiles  = "conventions.files"
	KeyDisableBuiltin   = "conventions.disable_builtin"
	KeyFormat           = "output.format"
	KeyColor            = "output.color"
	KeySnapshot         = "output.snapshot"
)

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Inference: InferenceConfig{
			IterationCap:  DefaultIterationCap,
			MaxBlockDepth: DefaultMaxBlockDepth,
		},
		Knowledge: KnowledgeConfig{Timeout: DefaultKnowledgeTimeout},
		Output:    OutputConfig{Format: FormatText, Color: true},
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyIterationCap, d.Inference.IterationCap)
	v.SetDefault(KeyWorkers, d.Inference.Workers)
	v.SetDefault(KeyMaxBlockDepth, d.Inference.MaxBlockDepth)
	v.SetDefault(KeyKnowledgeFiles, []string{})
	v.SetDefault(KeyKnowledgeSQLite, "")
	v.SetDefault(KeyKnowledgeTimeout, d.Knowledge.Timeout)
	v.SetDefault(KeyConventionFiles, []string{})
	v.SetDefault(KeyDisableBuiltin, false)
	v.SetDefault(KeyFormat, d.Output.Format)
	v.SetDefault(KeyColor, d.Output.Color)
	v.SetDefault(KeySnapshot, "")
}

// Load reads the configuration into v and decodes it. If file is empty, nullinfer.yaml is
// searched for in dir and its absence is not an error. Flags must already be bound to v.
func Load(v *viper.Viper, file, dir string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Inference.IterationCap <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyIterationCap, c.Inference.IterationCap))
	}
	if c.Inference.Workers < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyWorkers, c.Inference.Workers))
	}
	if c.Inference.MaxBlockDepth < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative, got %d", KeyMaxBlockDepth, c.Inference.MaxBlockDepth))
	}
	if c.Knowledge.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyKnowledgeTimeout, c.Knowledge.Timeout))
	}
	switch c.Output.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %s, %s, %s, got %q",
			KeyFormat, FormatText, FormatJSON, FormatYAML, c.Output.Format))
	}
	return errors.Join(errs...)
}
