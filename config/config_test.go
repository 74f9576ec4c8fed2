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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New(), "", t.TempDir())
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("unexpected defaults (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
inference:
  iteration_cap: 8
  workers: 2
knowledge:
  files: [platform.yaml, sdk.yaml]
  sqlite: facts.db
  timeout: 500ms
conventions:
  disable_builtin: true
output:
  format: json
  color: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nullinfer.yaml"), []byte(content), 0o644))

	cfg, err := Load(viper.New(), "", dir)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Inference.IterationCap)
	require.Equal(t, 2, cfg.Inference.Workers)
	require.Equal(t, DefaultMaxBlockDepth, cfg.Inference.MaxBlockDepth)
	require.Equal(t, []string{"platform.yaml", "sdk.yaml"}, cfg.Knowledge.Files)
	require.Equal(t, "facts.db", cfg.Knowledge.SQLite)
	require.Equal(t, 500*time.Millisecond, cfg.Knowledge.Timeout)
	require.True(t, cfg.Conventions.DisableBuiltin)
	require.Equal(t, FormatJSON, cfg.Output.Format)
	require.False(t, cfg.Output.Color)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	t.Parallel()

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}

func TestLoadOverride(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set(KeyFormat, FormatYAML)
	cfg, err := Load(v, "", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, FormatYAML, cfg.Output.Format)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Inference.IterationCap = 0
	cfg.Inference.Workers = -1
	cfg.Output.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, KeyIterationCap)
	require.ErrorContains(t, err, KeyWorkers)
	require.ErrorContains(t, err, KeyFormat)
}
