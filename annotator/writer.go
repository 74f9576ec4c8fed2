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

package annotator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"go.uber.org/nullinfer/config"
	"gopkg.in/yaml.v3"
)

// Write renders the report in the given format. Colors only apply to the text format.
func Write(w io.Writer, r *Report, format string, colored bool) error {
	switch format {
	case config.FormatText, "":
		return writeText(w, r, colored)
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err := enc.Encode(r)
		return errors.Join(err, enc.Close())
	}
	return fmt.Errorf("unsupported output format %q", format)
}

type palette struct {
	header, nullable, nonnull, unspecified, conflict, trail, warning *color.Color
}

func newPalette(colored bool) palette {
	p := palette{
		header:      color.New(color.Bold, color.FgCyan),
		nullable:    color.New(color.FgYellow),
		nonnull:     color.New(color.FgGreen),
		unspecified: color.New(color.FgHiBlack),
		conflict:    color.New(color.FgRed, color.Bold),
		trail:       color.New(color.FgHiBlack),
		warning:     color.New(color.FgYellow, color.Bold),
	}
	for _, c := range []*color.Color{p.header, p.nullable, p.nonnull, p.unspecified, p.conflict, p.trail, p.warning} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) token(s Slot) *color.Color {
	switch {
	case s.Conflict:
		return p.conflict
	case s.Token == "nullable":
		return p.nullable
	case s.Token == "nonnull":
		return p.nonnull
	}
	return p.unspecified
}

// writeText writes the human-readable report: the annotated declaration of every symbol, then a
// line per slot giving its state and confidence, followed by the slot's evidence
// trail.
func writeText(w io.Writer, r *Report, colored bool) error {
	p := newPalette(colored)
	ew := &errWriter{w: w}

	for _, sym := range r.Symbols {
		p.header.Fprintln(ew, sym.Declaration)
		for _, s := range sym.Slots {
			flags := ""
			if s.Conflict {
				flags += " [conflict]"
			}
			if s.Warning {
				flags += " [warning]"
			}
			fmt.Fprintf(ew, "    %-10s ", s.Path)
			p.token(s).Fprintf(ew, "%-12s", s.Token)
			fmt.Fprintf(ew, " %-6s%s\n", s.Confidence, flags)
			for _, e := range s.Evidence {
				p.trail.Fprintf(ew, "      %s\n", evidenceLine(e))
			}
		}
	}

	for _, d := range r.Diagnostics {
		p.warning.Fprintf(ew, "%s: ", d.Kind)
		fmt.Fprintln(ew, d.Message)
	}

	s := r.Summary
	fmt.Fprintf(ew, "run %s: %d symbols, %d slots (%d nullable, %d nonnull, %d unspecified) in %d rounds",
		r.RunID, len(r.Symbols), s.Slots, s.Nullable, s.NonNull, s.Unspecified, r.Rounds)
	if s.Conflicts > 0 {
		fmt.Fprintf(ew, ", %d conflicts", s.Conflicts)
	}
	if r.Incomplete {
		fmt.Fprintf(ew, ", stopped before a fixed point with %d warnings", s.Warnings)
	}
	fmt.Fprintln(ew)
	return ew.err
}

func evidenceLine(e Evidence) string {
	line := e.Source
	if e.Suggests != "" {
		line += " => " + e.Suggests
	}
	line += " (" + e.Confidence + ")"
	if e.Detail != "" {
		line += ": " + e.Detail
	}
	if e.Via != "" {
		line += " [via " + e.Via + "]"
	}
	if e.Location != "" {
		line += " at " + e.Location
	}
	return line
}

// errWriter remembers the first write error so the text writer can check it once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(b)
	e.err = err
	return n, err
}
