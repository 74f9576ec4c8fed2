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

// main package makes it possible to run nullinfer as a standalone tool: `infer` runs the
// inference over YAML units and reports the annotated signatures, and `report` renders a
// snapshot written by an earlier run.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/nullinfer"
	"go.uber.org/nullinfer/annotator"
	"go.uber.org/nullinfer/config"
	"go.uber.org/nullinfer/source"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "nullinfer",
		Short:        "Infer nullability annotations for Objective-C style declarations",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default: ./nullinfer.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output")

	cmd.AddCommand(newInferCmd(flags), newReportCmd(flags))
	return cmd
}

// newLogger builds the logger writing to the command's error output: a development logger in
// verbose mode, a production one logging warnings and above otherwise.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	if verbose {
		enc := zap.NewDevelopmentEncoderConfig()
		return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), zap.DebugLevel), zap.Development())
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zap.WarnLevel))
}

// loadConfig reads the configuration with the flags of cmd bound to their keys.
func loadConfig(cmd *cobra.Command, flags *rootFlags, bindings map[string]string) (*config.Config, error) {
	v := viper.New()
	for key, name := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return config.Load(v, flags.configFile, dir)
}

var _outputBindings = map[string]string{
	config.KeyFormat: "format",
	config.KeyColor:  "color",
}

func addOutputFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().StringP("format", "f", d.Output.Format,
		fmt.Sprintf("output format: %s, %s or %s", config.FormatText, config.FormatJSON, config.FormatYAML))
	cmd.Flags().Bool("color", d.Output.Color, "colorize text output")
}

func writeReport(cmd *cobra.Command, r *annotator.Report, cfg *config.Config) error {
	colored := cfg.Output.Color && !color.NoColor
	return annotator.Write(cmd.OutOrStdout(), r, cfg.Output.Format, colored)
}

func newInferCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer [flags] PATH...",
		Short: "Infer the nullability of the declarations in the given YAML units or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, map[string]string{
				config.KeyIterationCap:     "iteration-cap",
				config.KeyWorkers:          "workers",
				config.KeyMaxBlockDepth:    "max-block-depth",
				config.KeyKnowledgeFiles:   "kb",
				config.KeyKnowledgeSQLite:  "kb-sqlite",
				config.KeyKnowledgeTimeout: "kb-timeout",
				config.KeyConventionFiles:  "conventions",
				config.KeyDisableBuiltin:   "no-builtin-conventions",
				config.KeyFormat:           "format",
				config.KeyColor:            "color",
				config.KeySnapshot:         "snapshot",
			})
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), flags.verbose)
			defer func() { _ = logger.Sync() }()

			out, err := nullinfer.Run(cmd.Context(), source.Files(args), cfg, nullinfer.WithLogger(logger))
			if err != nil {
				return err
			}
			if cfg.Output.Snapshot != "" {
				if err := nullinfer.WriteSnapshot(cfg.Output.Snapshot, out.Snapshot()); err != nil {
					return err
				}
				logger.Info("wrote snapshot", zap.String("path", cfg.Output.Snapshot))
			}
			return writeReport(cmd, out.Report, cfg)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.Int("iteration-cap", d.Inference.IterationCap, "maximum number of inference rounds")
	f.Int("workers", d.Inference.Workers, "number of concurrent workers (0: one per CPU)")
	f.Int("max-block-depth", d.Inference.MaxBlockDepth, "maximum nesting depth of block signatures")
	f.StringSlice("kb", nil, "YAML knowledge base corpus (repeatable)")
	f.String("kb-sqlite", "", "SQLite knowledge base")
	f.Duration("kb-timeout", d.Knowledge.Timeout, "timeout of a single knowledge base lookup")
	f.StringSlice("conventions", nil, "YAML convention table (repeatable)")
	f.Bool("no-builtin-conventions", false, "disable the built-in framework conventions")
	f.String("snapshot", "", "write the inference result to this file")
	addOutputFlags(cmd)
	return cmd
}

func newReportCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [flags] SNAPSHOT",
		Short: "Render the report of a snapshot written by an earlier run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, _outputBindings)
			if err != nil {
				return err
			}
			s, err := nullinfer.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			return writeReport(cmd, s.Report(), cfg)
		},
	}
	addOutputFlags(cmd)
	return cmd
}
