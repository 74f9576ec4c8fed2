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

package diagnostic

import (
	"fmt"
	"strings"

	"go.uber.org/nullinfer/nullability"
)

type conflict struct {
	kind    Kind
	symbol  nullability.SymbolID
	path    nullability.Path
	message string
	// group is the key under which similar conflicts are reported together, empty if the
	// conflict stands alone.
	group            string
	similarConflicts []*conflict
}

func (c *conflict) where() string {
	if c.path == "" {
		return string(c.symbol)
	}
	return nullability.Ref{Symbol: c.symbol, Path: c.path}.String()
}

func (c *conflict) String() string {
	// build string for similar conflicts (i.e., conflicts in the same group)
	similarConflictsString := ""
	if len(c.similarConflicts) > 0 {
		similar := make([]string, len(c.similarConflicts))
		for i, s := range c.similarConflicts {
			similar[i] = fmt.Sprintf("%q", s.where())
		}

		list := strings.Join(similar[:len(similar)-1], ", ")
		if len(similar) > 1 {
			list = list + ", and "
		}
		list = list + similar[len(similar)-1]

		similarConflictsString = fmt.Sprintf("\n\n(The same cycle also left %d other slot(s) "+
			"undecided: %s.)", len(c.similarConflicts), list)
	}
	return c.message + similarConflictsString
}

func (c *conflict) addSimilarConflict(conflict conflict) {
	c.similarConflicts = append(c.similarConflicts, &conflict)
}

// groupConflicts groups conflicts with the same group key together under the first of them.
func groupConflicts(allConflicts []conflict) []conflict {
	conflictsMap := make(map[string]int)  // key: group, value: index in `allConflicts`
	indicesToIgnore := make(map[int]bool) // indices of conflicts grouped under another conflict

	for i, c := range allConflicts {
		if c.group == "" {
			continue
		}
		if existing, ok := conflictsMap[c.group]; ok {
			allConflicts[existing].addSimilarConflict(c)
			indicesToIgnore[i] = true
		} else {
			conflictsMap[c.group] = i
		}
	}

	var grouped []conflict
	for i, c := range allConflicts {
		if !indicesToIgnore[i] {
			grouped = append(grouped, c)
		}
	}
	return grouped
}
