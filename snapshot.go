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

package nullinfer

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/nullinfer/annotator"
	"go.uber.org/nullinfer/diagnostic"
	"go.uber.org/nullinfer/inference"
)

// Snapshot is the frozen outcome of a run, persisted so that reports can be produced later
// without re-running the inference. The result itself is s2-compressed by its gob encoding.
type Snapshot struct {
	RunID       string
	Result      *inference.Result
	Diagnostics []diagnostic.Diagnostic
}

// Report annotates the snapshot.
func (s *Snapshot) Report() *annotator.Report {
	return annotator.Annotate(s.Result,
		annotator.WithRunID(s.RunID),
		annotator.WithDiagnostics(s.Diagnostics),
	)
}

// EncodeSnapshot writes s to w.
func EncodeSnapshot(w io.Writer, s *Snapshot) error {
	if err := gob.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Result == nil {
		return nil, errors.New("decode snapshot: missing result")
	}
	return &s, nil
}

// WriteSnapshot writes s to the file at path, replacing it.
func WriteSnapshot(path string, s *Snapshot) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return EncodeSnapshot(f, s)
}

// ReadSnapshot reads the snapshot file at path.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return DecodeSnapshot(f)
}
