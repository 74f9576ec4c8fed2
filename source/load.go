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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/nullinfer/util/tokenhelper"
	"golang.org/x/sync/errgroup"
)

// Provider is the read-only capability yielding the declarations to analyze.
type Provider interface {
	Decls(ctx context.Context) ([]Decl, error)
}

// Static is a Provider over an in-memory list of declarations.
type Static []Decl

// Decls returns the declarations.
func (s Static) Decls(context.Context) ([]Decl, error) {
	return s, nil
}

// Files is a Provider reading YAML units from files and directories. Directories are walked
// recursively for *.yaml and *.yml files. Files are parsed concurrently, but the returned
// declarations are always in sorted file order and then in document order.
type Files []string

// Decls reads and parses all files.
func (f Files) Decls(ctx context.Context) ([]Decl, error) {
	paths, err := f.expand()
	if err != nil {
		return nil, err
	}

	results := make([][]Decl, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read source unit: %w", err)
			}
			decls, err := Parse(data, tokenhelper.RelToCwd(p))
			if err != nil {
				return err
			}
			results[i] = decls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Decl
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (f Files) expand() ([]string, error) {
	var paths []string
	for _, root := range f {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat source path: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && (strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml")) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", root, err)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}
