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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullinfer/annotator"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var _testdata = filepath.Join("..", "..", "testdata")

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func findSlot(t *testing.T, r *annotator.Report, symbol, path string) annotator.Slot {
	t.Helper()

	for _, s := range r.Symbols {
		if s.ID != symbol {
			continue
		}
		for _, slot := range s.Slots {
			if slot.Path == path {
				return slot
			}
		}
	}
	require.FailNow(t, "slot not found", "%s@%s", symbol, path)
	return annotator.Slot{}
}

func TestInferAndReport(t *testing.T) {
	t.Parallel()

	snapshot := filepath.Join(t.TempDir(), "run.snapshot")
	stdout, _, err := execute(t, "infer",
		"--format", "json",
		"--kb", filepath.Join(_testdata, "knowledge", "sdk.yaml"),
		"--conventions", filepath.Join(_testdata, "conventions", "cancellation.yaml"),
		"--snapshot", snapshot,
		filepath.Join(_testdata, "units"),
	)
	require.NoError(t, err)

	var inferred annotator.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &inferred))
	require.NotEmpty(t, inferred.RunID)
	input := findSlot(t, &inferred, "-[Parser parse:]", "p0")
	require.Equal(t, "nullable", input.Token)
	require.Equal(t, "nullable NSString *", input.Annotated)
	require.Equal(t, "nonnull", findSlot(t, &inferred, "-[Parser cancel:]", "p0").Token)

	stdout, _, err = execute(t, "report", "--format", "yaml", snapshot)
	require.NoError(t, err)

	var reported annotator.Report
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &reported))
	require.Equal(t, inferred.RunID, reported.RunID)
	require.Equal(t, inferred.Summary, reported.Summary)
	require.Len(t, reported.Symbols, len(inferred.Symbols))
}

func TestInferText(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "infer", "--color=false", filepath.Join(_testdata, "units", "parser.yaml"))
	require.NoError(t, err)
	require.Contains(t, stdout, "- (nullable NSString *)parse:(nullable NSString *)input")
	require.Contains(t, stdout, "3 symbols")
}

func TestErrors(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name string
		args []string
		want string
	}{
		{name: "no paths", args: []string{"infer"}, want: "requires at least 1 arg"},
		{name: "bad format", args: []string{"infer", "--format", "xml", filepath.Join(_testdata, "units")}, want: "output.format"},
		{name: "bad cap", args: []string{"infer", "--iteration-cap", "0", filepath.Join(_testdata, "units")}, want: "inference.iteration_cap"},
		{name: "missing snapshot", args: []string{"report", filepath.Join(_testdata, "missing.snapshot")}, want: "open snapshot"},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := execute(t, tc.args...)
			require.ErrorContains(t, err, tc.want)
		})
	}
}
