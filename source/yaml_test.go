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

package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullinfer/nullability"
)

const _loaderUnit = `
file: Loader.m
symbols:
  - name: "-[Loader fetch:completion:]"
    owner: Loader
    returns: "NSData *"
    line: 12
    params:
      - {name: url, type: "NSURL *"}
      - name: completion
        type: "void (^)(NSData *, NSError *)"
        block:
          returns: void
          params:
            - {name: data, type: "NSData *"}
            - {name: error, type: "NSError *"}
    body:
      - if:
          cond: {nil: url}
          then:
            - invoke: {block: completion, args: [nil, {new: NSError}]}
            - return: nil
      - assign: {name: data, value: {call: {callee: "-[Cache lookup:]", args: [{ref: url}]}}}
      - if:
          cond: {and: [{nonnil: completion}, {opaque: "data.length > 0"}]}
          then:
            - invoke: {block: completion, args: [{ref: data}, nil]}
      - return: {coalesce: {value: {ref: data}, fallback: {new: NSData}}}
  - name: "@property Loader.delegate"
    kind: property
    returns: "id<LoaderDelegate>"
`

func TestParse(t *testing.T) {
	t.Parallel()

	decls, err := Parse([]byte(_loaderUnit), "ignored.yaml")
	require.NoError(t, err)
	require.Len(t, decls, 2)

	fetch := decls[0]
	require.Equal(t, nullability.SymbolID("-[Loader fetch:completion:]"), fetch.Symbol.ID)
	require.Equal(t, nullability.Method, fetch.Symbol.Kind)
	require.Equal(t, "Loader.m", fetch.Location.Filename)
	require.Equal(t, 12, fetch.Location.Line)
	require.True(t, fetch.HasBody)
	require.Len(t, fetch.Params, 2)
	require.NotNil(t, fetch.Params[1].Block)
	require.Len(t, fetch.Params[1].Block.Params, 2)
	require.Len(t, fetch.Body, 4)

	guard, ok := fetch.Body[0].(*If)
	require.True(t, ok)
	require.Equal(t, NilTest{Name: "url", IsNil: true}, guard.Cond)
	require.Len(t, guard.Then, 2)
	inv, ok := guard.Then[0].(*Invoke)
	require.True(t, ok)
	require.IsType(t, &Nil{}, inv.Args[0])
	require.IsType(t, &New{}, inv.Args[1])
	ret, ok := guard.Then[1].(*Return)
	require.True(t, ok)
	require.IsType(t, &Nil{}, ret.Value)

	assign, ok := fetch.Body[1].(*Assign)
	require.True(t, ok)
	call, ok := assign.Value.(*Call)
	require.True(t, ok)
	require.Equal(t, nullability.SymbolID("-[Cache lookup:]"), call.Callee)
	require.Nil(t, call.Receiver)

	cond := fetch.Body[2].(*If).Cond
	require.Equal(t, And{Conds: []Cond{NilTest{Name: "completion"}, OpaqueCond{Text: "data.length > 0"}}}, cond)

	last, ok := fetch.Body[3].(*Return)
	require.True(t, ok)
	require.IsType(t, &Coalesce{}, last.Value)

	prop := decls[1]
	require.Equal(t, nullability.Property, prop.Symbol.Kind)
	require.False(t, prop.HasBody)
}

func TestParseBodyPresence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		doc      string
		wantBody bool
		wantLen  int
	}{
		{name: "bare declaration", doc: "symbols:\n  - name: a\n", wantBody: false},
		{name: "empty body", doc: "symbols:\n  - name: a\n    body: []\n", wantBody: true},
		{name: "block body", doc: "symbols:\n  - name: a\n    body:\n      - return: nil\n", wantBody: true, wantLen: 1},
		{name: "flow body", doc: "symbols: [{name: a, body: [{return: {new: NSObject}}, {opaque: x}]}]", wantBody: true, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decls, err := Parse([]byte(tt.doc), "unit.yaml")
			require.NoError(t, err)
			require.Len(t, decls, 1)
			require.Equal(t, tt.wantBody, decls[0].HasBody)
			require.Len(t, decls[0].Body, tt.wantLen)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"missing name":   "symbols: [{returns: id}]",
		"unknown kind":   "symbols: [{name: a, body: [{jump: x}]}]",
		"two kinds":      "symbols: [{name: a, body: [{ref: x, new: y}]}]",
		"bad scalar":     "symbols: [{name: a, body: [null_ptr]}]",
		"bad cond":       "symbols: [{name: a, body: [{if: {cond: {maybe: x}}}]}]",
		"bad symbol":     "symbols: [{name: a, kind: struct}]",
		"call no callee": "symbols: [{name: a, body: [{call: {args: []}}]}]",
	}
	for name, doc := range tests {
		_, err := Parse([]byte(doc), name)
		require.Error(t, err, name)
	}
}

func TestFilesProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(_loaderUnit), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("symbols: [{name: first}]"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	decls, err := Files{dir}.Decls(context.Background())
	require.NoError(t, err)
	require.Len(t, decls, 3)
	require.Equal(t, nullability.SymbolID("first"), decls[0].Symbol.ID)

	_, err = Files{filepath.Join(dir, "missing.yaml")}.Decls(context.Background())
	require.Error(t, err)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
