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

// Package nullability hosts the data model shared by every stage of nullability inference:
// symbols, their signatures and slots, the evidence attached to slots, and call sites.
package nullability

import (
	"fmt"
	"strings"
)

// State is the nullability state of a slot.
type State uint8

const (
	// Unknown is the initial state of every slot: nothing has been concluded yet.
	Unknown State = iota
	// Unspecified means the analysis could not decide, and the slot keeps the platform default.
	Unspecified
	// NonNull means the slot never holds nil.
	NonNull
	// Nullable means the slot may hold nil.
	Nullable
	// Conflicting is reserved for slots on which authoritative facts disagree; such slots need
	// manual resolution.
	Conflicting
)

var _stateNames = [...]string{
	Unknown:     "unknown",
	Unspecified: "unspecified",
	NonNull:     "nonnull",
	Nullable:    "nullable",
	Conflicting: "conflicting",
}

func (s State) String() string {
	if int(s) < len(_stateNames) {
		return _stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// IsFirm returns true if the state is a definite nullability decision (nullable or nonnull).
func (s State) IsFirm() bool {
	return s == NonNull || s == Nullable
}

// Rank orders the non-authoritative states along the inference lattice:
// Unknown < Unspecified < NonNull < Nullable. Heuristic resolution only ever moves a slot upwards
// along this order, which both forbids regressions and bounds the number of changes per slot.
// Conflicting sits outside the lattice and is ranked above everything so that it is never
// overwritten.
func (s State) Rank() int {
	return int(s)
}

// Max returns the higher ranked of the two states.
func Max(a, b State) State {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseState parses the textual form of a state as written in knowledge base corpora and
// convention tables. Common spellings of the Objective-C qualifiers are accepted.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nullable", "_nullable", "__nullable":
		return Nullable, nil
	case "nonnull", "_nonnull", "__nonnull":
		return NonNull, nil
	case "unspecified", "null_unspecified", "_null_unspecified":
		return Unspecified, nil
	case "conflicting":
		return Conflicting, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unrecognized nullability state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Confidence grades how much a conclusion (or a single piece of evidence) can be trusted.
type Confidence uint8

const (
	// None is used for evidence that carries no weight, e.g. from unanalyzable constructs.
	None Confidence = iota
	// Low marks fallbacks and resolved disagreements.
	Low
	// Medium marks unanimous heuristic conclusions.
	Medium
	// High marks knowledge-base backed conclusions.
	High
)

func (c Confidence) String() string {
	switch c {
	case None:
		return "none"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return fmt.Sprintf("Confidence(%d)", c)
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(text []byte) error {
	for _, v := range []Confidence{None, Low, Medium, High} {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unrecognized confidence %q", text)
}
