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

package nullability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPath(t *testing.T) {
	t.Parallel()

	p := ParamPath(2).Block(0).Block(1)
	require.Equal(t, Path("p2.b0.b1"), p)
	require.Equal(t, 2, p.Depth())
	require.Equal(t, 1, p.Index())
	require.Equal(t, 2, p.ParamIndex())

	parent, ok := p.Parent()
	require.True(t, ok)
	require.Equal(t, Path("p2.b0"), parent)

	_, ok = ParamPath(0).Parent()
	require.False(t, ok)

	require.True(t, ReturnPath.IsReturn())
	require.Equal(t, -1, ReturnPath.Index())
	require.Equal(t, -1, ReturnPath.ParamIndex())
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{in: "ret", want: ReturnPath},
		{in: " p0 ", want: "p0"},
		{in: "p3.b1", want: "p3.b1"},
		{in: "p3.b1.b0", want: "p3.b1.b0"},
		{in: "", wantErr: true},
		{in: "b0", wantErr: true},
		{in: "p0.p1", wantErr: true},
		{in: "p-1", wantErr: true},
		{in: "px", wantErr: true},
		{in: "ret.b0", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePath(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestStateLattice(t *testing.T) {
	t.Parallel()

	require.Equal(t, Nullable, Max(NonNull, Nullable))
	require.Equal(t, Nullable, Max(Nullable, NonNull))
	require.Equal(t, NonNull, Max(Unknown, NonNull))
	require.Equal(t, Unspecified, Max(Unspecified, Unknown))
	require.Equal(t, Conflicting, Max(Nullable, Conflicting))

	require.True(t, Nullable.IsFirm())
	require.True(t, NonNull.IsFirm())
	require.False(t, Unspecified.IsFirm())
	require.False(t, Unknown.IsFirm())
}

func TestParseState(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]State{
		"nullable":          Nullable,
		"_Nullable":         Nullable,
		"__nonnull":         NonNull,
		"NONNULL":           NonNull,
		"null_unspecified":  Unspecified,
		"_Null_unspecified": Unspecified,
		"conflicting":       Conflicting,
		"  unknown ":        Unknown,
		"":                  Unknown,
	} {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseState("maybe")
	require.Error(t, err)
}

func TestIsAnnotateable(t *testing.T) {
	t.Parallel()

	for typ, want := range map[string]bool{
		"NSString *":                    true,
		"id":                            true,
		"id<NSCopying>":                 true,
		"instancetype":                  true,
		"Class":                         true,
		"void (^)(NSData *, NSError *)": true,
		"BOOL *":                        true,
		"void":                          false,
		"":                              false,
		"NSInteger":                     false,
		"BOOL":                          false,
		"CGRect":                        false,
		"NSUUID":                        false,
	} {
		require.Equal(t, want, IsAnnotateable(typ), typ)
	}
}

func TestSignatureLookupAndClone(t *testing.T) {
	t.Parallel()

	sig := &Signature{
		ReturnType: "NSData *",
		Arity:      2,
		Slots: []*Slot{
			{Path: ReturnPath, Role: Return, DeclaredType: "NSData *"},
			{Path: ParamPath(0), Role: Param, Name: "url", DeclaredType: "NSURL *"},
			{
				Path: ParamPath(1), Role: BlockSelf, Name: "completion",
				Block: &Signature{
					ReturnType: "void",
					Arity:      2,
					Slots: []*Slot{
						{Path: ParamPath(1).Block(0), Role: BlockParam, Name: "data", DeclaredType: "NSData *"},
						{Path: ParamPath(1).Block(1), Role: BlockParam, Name: "error", DeclaredType: "NSError *"},
					},
				},
			},
		},
	}

	require.Equal(t, 5, sig.Len())

	slot, ok := sig.Slot("p1.b1")
	require.True(t, ok)
	require.Equal(t, "error", slot.Name)

	_, ok = sig.Slot("p1.b2")
	require.False(t, ok)

	var order []Path
	sig.Walk(func(s *Slot) { order = append(order, s.Path) })
	require.Equal(t, []Path{"ret", "p0", "p1", "p1.b0", "p1.b1"}, order)

	clone := sig.Clone()
	cloned, _ := clone.Slot("p1.b0")
	cloned.State = Nullable
	cloned.AddEvidence(Evidence{Kind: NilCheck, Suggests: Nullable})
	orig, _ := sig.Slot("p1.b0")
	require.Equal(t, Unknown, orig.State)
	require.Empty(t, orig.Evidence)
}

func TestAddEvidenceDeduplicates(t *testing.T) {
	t.Parallel()

	s := &Slot{}
	fwd := Evidence{Kind: ForwardedCall, Forward: &Ref{Symbol: "a", Path: ReturnPath}}
	s.AddEvidence(fwd, fwd, Evidence{Kind: NilCheck, Suggests: Nullable})
	s.AddEvidence(Evidence{Kind: ForwardedCall, Forward: &Ref{Symbol: "a", Path: ReturnPath}})
	require.Len(t, s.Evidence, 2)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
