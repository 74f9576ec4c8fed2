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

package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullinfer/nullability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const _sdkCorpus = `
source: ios-sdk
facts:
  - symbol: "-[NSString stringByAppendingString:]"
    slots: {ret: nonnull, p0: nonnull}
  - symbol: "-[NSURLSession dataTaskWithURL:completionHandler:]"
    slots: {p1.b0: nullable, p1.b2: _Nullable}
`

func TestParseCorpus(t *testing.T) {
	t.Parallel()

	c, err := ParseCorpus([]byte(_sdkCorpus), "fallback")
	require.NoError(t, err)
	require.Equal(t, "ios-sdk", c.Name())
	require.Equal(t, 4, c.Len())

	f, err := c.Lookup(context.Background(), "-[NSString stringByAppendingString:]", nullability.ReturnPath)
	require.NoError(t, err)
	require.True(t, f.Found())
	require.Equal(t, nullability.NonNull, f.State)
	require.Equal(t, []string{"ios-sdk"}, f.Sources)

	f, err = c.Lookup(context.Background(), "-[NSURLSession dataTaskWithURL:completionHandler:]", "p1.b2")
	require.NoError(t, err)
	require.Equal(t, nullability.Nullable, f.State)

	miss, err := c.Lookup(context.Background(), "-[NSString length]", nullability.ReturnPath)
	require.NoError(t, err, "a miss is not an error")
	require.False(t, miss.Found())
}

func TestParseCorpusErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bad path":     "facts: [{symbol: a, slots: {q0: nonnull}}]",
		"bad state":    "facts: [{symbol: a, slots: {ret: maybe}}]",
		"unknown":      "facts: [{symbol: a, slots: {ret: unknown}}]",
		"no symbol":    "facts: [{slots: {ret: nonnull}}]",
		"invalid yaml": "facts: [",
	}
	for name, doc := range tests {
		_, err := ParseCorpus([]byte(doc), "test")
		require.Error(t, err, name)
	}
}

func TestCorpusConflict(t *testing.T) {
	t.Parallel()

	c := NewCorpus("docs",
		Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.NonNull, Sources: []string{"header"}},
		Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.Nullable, Sources: []string{"docs"}},
		Fact{Symbol: "a", Path: nullability.ParamPath(0), State: nullability.Nullable},
		Fact{Symbol: "a", Path: nullability.ParamPath(0), State: nullability.Nullable},
	)

	f, _ := c.Lookup(context.Background(), "a", nullability.ReturnPath)
	require.Equal(t, nullability.Conflicting, f.State)
	require.Equal(t, []string{"docs", "header"}, f.Sources)

	// Agreement is not a conflict, and unrelated slots are unaffected.
	f, _ = c.Lookup(context.Background(), "a", nullability.ParamPath(0))
	require.Equal(t, nullability.Nullable, f.State)
	require.Equal(t, []string{"docs"}, f.Sources)
}

func TestUnion(t *testing.T) {
	t.Parallel()

	platform := NewCorpus("platform",
		Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.NonNull},
		Fact{Symbol: "b", Path: nullability.ReturnPath, State: nullability.NonNull},
	)
	siblings := NewCorpus("swift",
		Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.NonNull},
		Fact{Symbol: "b", Path: nullability.ReturnPath, State: nullability.Nullable},
		Fact{Symbol: "c", Path: nullability.ReturnPath, State: nullability.Nullable},
	)
	broken := OracleFunc(func(context.Context, nullability.SymbolID, nullability.Path) (Fact, error) {
		return Fact{}, errors.New("unreachable")
	})

	u := Union{platform, siblings, broken}

	f, err := u.Lookup(context.Background(), "a", nullability.ReturnPath)
	require.ErrorContains(t, err, "unreachable")
	require.Equal(t, nullability.NonNull, f.State)
	require.Equal(t, []string{"platform", "swift"}, f.Sources)

	f, _ = u.Lookup(context.Background(), "b", nullability.ReturnPath)
	require.Equal(t, nullability.Conflicting, f.State)

	f, _ = u.Lookup(context.Background(), "c", nullability.ReturnPath)
	require.Equal(t, nullability.Nullable, f.State)

	f, _ = u.Lookup(context.Background(), "d", nullability.ReturnPath)
	require.False(t, f.Found())
}

func TestMemoCoalescesLookups(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var mu sync.Mutex
	asked := map[nullability.SymbolID]int{}
	oracle := OracleFunc(func(_ context.Context, s nullability.SymbolID, p nullability.Path) (Fact, error) {
		mu.Lock()
		asked[s]++
		mu.Unlock()
		<-release
		return Fact{Symbol: s, Path: p, State: nullability.NonNull, Sources: []string{"test"}}, nil
	})
	memo := NewMemo(oracle)

	var wg sync.WaitGroup
	results := make([]Fact, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = memo.Lookup(context.Background(), "a", nullability.ReturnPath)
		}()
	}
	// Give the goroutines a chance to pile up on the in-flight call.
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, f := range results {
		require.Equal(t, nullability.NonNull, f.State)
	}
	require.Equal(t, nullability.NonNull, memo.Lookup(context.Background(), "a", nullability.ReturnPath).State)
	require.Equal(t, 1, asked["a"])
	require.EqualValues(t, 1, memo.Calls())
}

func TestMemoTimeout(t *testing.T) {
	t.Parallel()

	slow := OracleFunc(func(ctx context.Context, s nullability.SymbolID, p nullability.Path) (Fact, error) {
		<-ctx.Done()
		return Fact{}, ctx.Err()
	})
	memo := NewMemo(slow, WithTimeout(5*time.Millisecond))

	f := memo.Lookup(context.Background(), "a", nullability.ParamPath(0))
	require.False(t, f.Found(), "a failed lookup is a miss")
	require.Equal(t, nullability.SymbolID("a"), f.Symbol)

	// The miss is memoized: the oracle is not asked again.
	memo.Lookup(context.Background(), "a", nullability.ParamPath(0))
	require.EqualValues(t, 1, memo.Calls())

	failures := memo.Failures()
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0].Err, context.DeadlineExceeded)
}

func TestMemoFailedLookup(t *testing.T) {
	t.Parallel()

	// The fact accompanying an error is not trusted, except for what the other members of a
	// union answered.
	flaky := OracleFunc(func(_ context.Context, s nullability.SymbolID, p nullability.Path) (Fact, error) {
		return Fact{Symbol: s, Path: p, State: nullability.NonNull, Sources: []string{"flaky"}}, errors.New("truncated response")
	})
	platform := NewCorpus("platform", Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.Nullable})

	testcases := []struct {
		name    string
		oracle  Oracle
		want    nullability.State
		sources []string
	}{
		{name: "single oracle", oracle: flaky, want: nullability.Unknown},
		{name: "union", oracle: Union{platform, flaky}, want: nullability.Nullable, sources: []string{"platform"}},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			memo := NewMemo(tc.oracle)
			f := memo.Lookup(context.Background(), "a", nullability.ReturnPath)
			require.Equal(t, tc.want, f.State)
			require.Equal(t, tc.sources, f.Sources)
			require.Equal(t, nullability.SymbolID("a"), f.Symbol)
			require.Equal(t, nullability.ReturnPath, f.Path)

			failures := memo.Failures()
			require.Len(t, failures, 1)
			require.ErrorContains(t, failures[0].Err, "truncated response")
		})
	}
}

func TestMemoWithoutOracle(t *testing.T) {
	t.Parallel()

	memo := NewMemo(nil)
	require.False(t, memo.Lookup(context.Background(), "a", nullability.ReturnPath).Found())
	require.Zero(t, memo.Calls())
}

func TestSQLStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := OpenSQLStore(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx,
		Fact{Symbol: "a", Path: nullability.ReturnPath, State: nullability.NonNull, Sources: []string{"sdk"}},
		Fact{Symbol: "a", Path: "p1.b0", State: nullability.Nullable, Sources: []string{"sdk", "docs"}},
		Fact{Symbol: "b", Path: nullability.ReturnPath, State: nullability.NonNull, Sources: []string{"sdk"}},
		Fact{Symbol: "b", Path: nullability.ReturnPath, State: nullability.Nullable, Sources: []string{"docs"}},
	))

	f, err := store.Lookup(ctx, "a", nullability.ReturnPath)
	require.NoError(t, err)
	require.Equal(t, nullability.NonNull, f.State)

	f, err = store.Lookup(ctx, "a", "p1.b0")
	require.NoError(t, err)
	require.Equal(t, nullability.Nullable, f.State)
	require.Equal(t, []string{"docs", "sdk"}, f.Sources)

	f, err = store.Lookup(ctx, "b", nullability.ReturnPath)
	require.NoError(t, err)
	require.Equal(t, nullability.Conflicting, f.State)

	f, err = store.Lookup(ctx, "c", nullability.ReturnPath)
	require.NoError(t, err)
	require.False(t, f.Found())

	// Saving again replaces the state of the same source.
	require.NoError(t, store.Save(ctx, Fact{Symbol: "b", Path: nullability.ReturnPath, State: nullability.Nullable, Sources: []string{"sdk"}}))
	f, err = store.Lookup(ctx, "b", nullability.ReturnPath)
	require.NoError(t, err)
	require.Equal(t, nullability.Nullable, f.State)
}

func TestLoadCorpus(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("facts: [{symbol: a, slots: {ret: nullable}}]"), 0o644))

	c, err := LoadCorpus(path)
	require.NoError(t, err)
	require.Equal(t, path, c.Name())

	_, err = LoadCorpus(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
