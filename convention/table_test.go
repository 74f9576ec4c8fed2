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

package convention

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullinfer/nullability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	method := nullability.Symbol{ID: "-[NSArray enumerateObjectsUsingBlock:]", Kind: nullability.Method}
	property := nullability.Symbol{ID: "@property Loader.delegate", Kind: nullability.Property}

	tests := []struct {
		name string
		sym  nullability.Symbol
		slot nullability.Slot
		want string
	}{
		{
			name: "stop flag in a block",
			sym:  method,
			slot: nullability.Slot{Role: nullability.BlockParam, Name: "stop", DeclaredType: "BOOL *"},
			want: "stop-flag",
		},
		{
			name: "error out parameter",
			sym:  method,
			slot: nullability.Slot{Role: nullability.Param, Name: "error", DeclaredType: "NSError **"},
			want: "error-out-parameter",
		},
		{
			name: "error block parameter",
			sym:  method,
			slot: nullability.Slot{Role: nullability.BlockParam, Name: "err", DeclaredType: "NSError *"},
			want: "error-parameter",
		},
		{
			name: "delegate property",
			sym:  property,
			slot: nullability.Slot{Role: nullability.Return, DeclaredType: "id<LoaderDelegate>"},
			want: "delegate-property",
		},
		{
			name: "delegate method return is not a property",
			sym:  nullability.Symbol{ID: "-[Loader delegate]", Kind: nullability.Method},
			slot: nullability.Slot{Role: nullability.Return, DeclaredType: "id"},
		},
		{
			name: "other flags",
			sym:  method,
			slot: nullability.Slot{Role: nullability.Param, Name: "finished", DeclaredType: "BOOL *"},
		},
	}

	table := Builtin()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule, ok := table.Match(tt.sym, &tt.slot)
			if tt.want == "" {
				require.False(t, ok, "unexpected match %s", rule.Name)
				return
			}
			require.True(t, ok)
			require.Equal(t, tt.want, rule.Name)
		})
	}
}

func TestPriority(t *testing.T) {
	t.Parallel()

	low := Rule{Name: "low", Type: regexp.MustCompile(`^id$`), State: nullability.NonNull, Priority: 1}
	high := Rule{Name: "high", Type: regexp.MustCompile(`^id$`), State: nullability.Nullable, Priority: 5}
	tie := Rule{Name: "tie", State: nullability.Unspecified, Priority: 5}

	table := NewTable(low).With(NewTable(high, tie))
	require.Equal(t, []string{"high", "tie", "low"}, names(table))

	rule, ok := table.Match(nullability.Symbol{ID: "x"}, &nullability.Slot{DeclaredType: "id"})
	require.True(t, ok)
	require.Equal(t, "high", rule.Name)

	var empty *Table
	_, ok = empty.Match(nullability.Symbol{}, &nullability.Slot{})
	require.False(t, ok)
}

func names(t *Table) []string {
	var out []string
	for _, r := range t.Rules() {
		out = append(out, r.Name)
	}
	return out
}

func TestParse(t *testing.T) {
	t.Parallel()

	table, err := Parse([]byte(`
conventions:
  - name: cancellation-token
    roles: [parameter, block-parameter]
    type: '^CancellationToken\s*\*$'
    state: nonnull
    priority: 50
  - roles: [return]
    kind: property
    symbol: '(?i)datasource$'
    state: nullable
`))
	require.NoError(t, err)
	require.Equal(t, []string{"cancellation-token", "#1"}, names(table))

	rule, ok := table.Match(
		nullability.Symbol{ID: "-[Job run:]"},
		&nullability.Slot{Role: nullability.BlockParam, Name: "token", DeclaredType: "CancellationToken *"},
	)
	require.True(t, ok)
	require.Equal(t, nullability.NonNull, rule.State)

	_, ok = table.Match(
		nullability.Symbol{ID: "@property Table.dataSource", Kind: nullability.Property},
		&nullability.Slot{Role: nullability.Return, DeclaredType: "id"},
	)
	require.True(t, ok)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"bad role":    "conventions: [{roles: [argument], state: nonnull}]",
		"bad state":   "conventions: [{state: sometimes}]",
		"no state":    "conventions: [{name: x}]",
		"bad regexp":  "conventions: [{type: '(', state: nonnull}]",
		"bad kind":    "conventions: [{kind: function, state: nonnull}]",
		"bad yaml":    "conventions: {",
		"conflicting": "conventions: [{state: conflicting}]",
	} {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conventions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conventions: [{name: x, state: nullable}]"), 0o644))
	table, err := Load(path)
	require.NoError(t, err)
	require.Len(t, table.Rules(), 1)
}
