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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// A Path addresses a slot inside a signature. Paths are dot-separated steps:
//
//	ret        the return slot
//	p2         the third parameter (or, if block-typed, the block itself)
//	p2.b0      the first parameter of the block passed as the third parameter
//	p2.b0.b1   nested blocks continue the same way
//
// Paths are plain strings so they can be used directly as map keys and as knowledge base keys.
type Path string

const _returnStep = "ret"

// ReturnPath is the path of a signature's return slot.
const ReturnPath Path = _returnStep

// ParamPath returns the path of the i-th (0-based) parameter.
func ParamPath(i int) Path {
	return Path("p" + strconv.Itoa(i))
}

// Block returns the path of the i-th parameter of the block addressed by p.
func (p Path) Block(i int) Path {
	return p + Path(".b"+strconv.Itoa(i))
}

// IsReturn returns true if the path addresses a return slot.
func (p Path) IsReturn() bool {
	return p == ReturnPath
}

// Depth returns the block nesting depth of the path: 0 for top-level slots.
func (p Path) Depth() int {
	return strings.Count(string(p), ".")
}

// Parent returns the path of the enclosing block slot, or false for top-level slots.
func (p Path) Parent() (Path, bool) {
	i := strings.LastIndexByte(string(p), '.')
	if i < 0 {
		return "", false
	}
	return p[:i], true
}

// Index returns the index of the last step of the path, or -1 for a return path.
func (p Path) Index() int {
	s := string(p)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	if s == _returnStep {
		return -1
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return -1
	}
	return n
}

// ParamIndex returns the index of the top-level parameter the path goes through, or -1 for a
// return path.
func (p Path) ParamIndex() int {
	s := string(p)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return Path(s).Index()
}

func (p Path) String() string {
	return string(p)
}

// ParsePath validates the textual form of a path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty slot path")
	}
	if s == _returnStep {
		return ReturnPath, nil
	}
	for i, step := range strings.Split(s, ".") {
		want := byte('b')
		if i == 0 {
			want = 'p'
		}
		if len(step) < 2 || step[0] != want {
			return "", fmt.Errorf("invalid step %q in slot path %q", step, s)
		}
		if n, err := strconv.Atoi(step[1:]); err != nil || n < 0 {
			return "", fmt.Errorf("invalid index in step %q of slot path %q", step, s)
		}
	}
	return Path(s), nil
}
