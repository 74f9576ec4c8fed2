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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/nullinfer/knowledge"
	"go.uber.org/nullinfer/nullability"
)

func ev(s nullability.State, c nullability.Confidence) nullability.Evidence {
	return nullability.Evidence{Kind: nullability.NilCheck, Suggests: s, Confidence: c}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		evs       []nullability.Evidence
		wantState nullability.State
		wantConf  nullability.Confidence
	}{
		{
			name:      "no evidence",
			wantState: nullability.Unknown,
			wantConf:  nullability.None,
		},
		{
			name:      "weightless evidence is ignored",
			evs:       []nullability.Evidence{ev(nullability.Nullable, nullability.None), ev(nullability.Unspecified, nullability.None)},
			wantState: nullability.Unknown,
			wantConf:  nullability.None,
		},
		{
			name:      "unresolved forward is ignored",
			evs:       []nullability.Evidence{ev(nullability.Unknown, nullability.Medium)},
			wantState: nullability.Unknown,
			wantConf:  nullability.None,
		},
		{
			name:      "unanimous nullable",
			evs:       []nullability.Evidence{ev(nullability.Nullable, nullability.Low), ev(nullability.Nullable, nullability.Medium)},
			wantState: nullability.Nullable,
			wantConf:  nullability.Medium,
		},
		{
			name:      "heuristics are capped at medium",
			evs:       []nullability.Evidence{ev(nullability.NonNull, nullability.High)},
			wantState: nullability.NonNull,
			wantConf:  nullability.Medium,
		},
		{
			name:      "nullable wins a disagreement",
			evs:       []nullability.Evidence{ev(nullability.NonNull, nullability.Medium), ev(nullability.Nullable, nullability.Low)},
			wantState: nullability.Nullable,
			wantConf:  nullability.Low,
		},
		{
			name:      "unspecified only decides silence",
			evs:       []nullability.Evidence{ev(nullability.Unspecified, nullability.Medium), ev(nullability.NonNull, nullability.Low)},
			wantState: nullability.NonNull,
			wantConf:  nullability.Low,
		},
		{
			name:      "unspecified alone",
			evs:       []nullability.Evidence{ev(nullability.Unspecified, nullability.Medium)},
			wantState: nullability.Unspecified,
			wantConf:  nullability.Low,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			state, conf := join(tt.evs)
			require.Equal(t, tt.wantState, state)
			require.Equal(t, tt.wantConf, conf)
		})
	}
}

// Adding evidence never moves a join down the lattice from Nullable.
func TestJoinNullableIsSticky(t *testing.T) {
	t.Parallel()

	all := []nullability.State{nullability.Unknown, nullability.Unspecified, nullability.NonNull, nullability.Nullable}
	confs := []nullability.Confidence{nullability.None, nullability.Low, nullability.Medium, nullability.High}
	for _, s := range all {
		for _, c := range confs {
			state, _ := join([]nullability.Evidence{ev(nullability.Nullable, nullability.Medium), ev(s, c)})
			require.Equal(t, nullability.Nullable, state, "with %s (%s)", s, c)
		}
	}
}

func TestKnowledgeEvidence(t *testing.T) {
	t.Parallel()

	e := knowledgeEvidence(knowledge.Fact{State: nullability.NonNull, Sources: []string{"docs", "sdk"}})
	require.Equal(t, nullability.KnowledgeBaseFact, e.Kind)
	require.Equal(t, nullability.High, e.Confidence)
	require.Equal(t, "knowledge base: docs, sdk", e.Detail)

	conflict := knowledgeEvidence(knowledge.Fact{State: nullability.Conflicting, Sources: []string{"a", "b"}})
	require.Equal(t, nullability.None, conflict.Confidence)
	require.Equal(t, nullability.Conflicting, conflict.Suggests)
}
