//  Copyright (c) 2024 Uber Technologies, Inc.
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

// Package analysishelper provides helper functions for running the stages of an analysis.
package analysishelper

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Result is the result struct for a stage where the actual result is accompanied by an optional
// error.
type Result[T any] struct {
	// Res is the actual result from the stage.
	Res T
	// Err is the optional error from the stage.
	Err error
}

// WrapRun wraps the run function of a stage to:
// (1) convert the return values to Result[T] so that the caller decides what to do with a failed
// stage.
// (2) recover from a panic and convert it to an error with stack traces for easier debugging.
// This is to ensure that a run _never_ panics.
// Moreover, it also wraps the error from the stage with the name of the stage to make it easier
// to identify the source of the error.
func WrapRun[T any](name string, f func(context.Context) (T, error)) func(context.Context) Result[T] {
	return func(ctx context.Context) (result Result[T]) {
		defer func() {
			if r := recover(); r != nil {
				result = Result[T]{Err: fmt.Errorf("INTERNAL PANIC from %q: %s\n%s", name, r, string(debug.Stack()))}
			}
		}()

		r, err := f(ctx)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		return Result[T]{Res: r, Err: err}
	}
}
