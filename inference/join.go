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

package inference

import "go.uber.org/nullinfer/nullability"

// join merges non-authoritative evidence into one state. Evidence without weight (confidence
// None) and forwarded evidence whose referenced slot is still Unknown are ignored.
//
// Nullable wins over NonNull: treating a possibly-nil value as nonnull is the unsafe direction, so
// any disagreement resolves to Nullable, at Low confidence. Unanimous heuristic evidence keeps the
// highest confidence among its members, capped at Medium since only the knowledge base is
// authoritative. Unspecified evidence only decides a slot nothing else speaks about.
func join(evs []nullability.Evidence) (nullability.State, nullability.Confidence) {
	var (
		nullable, nonnull, unspecified bool
		nullableConf, nonnullConf      nullability.Confidence
	)
	for _, ev := range evs {
		if ev.Confidence == nullability.None {
			continue
		}
		switch ev.Suggests {
		case nullability.Nullable:
			nullable = true
			nullableConf = max(nullableConf, ev.Confidence)
		case nullability.NonNull:
			nonnull = true
			nonnullConf = max(nonnullConf, ev.Confidence)
		case nullability.Unspecified:
			unspecified = true
		}
	}

	switch {
	case nullable && nonnull:
		return nullability.Nullable, nullability.Low
	case nullable:
		return nullability.Nullable, min(nullableConf, nullability.Medium)
	case nonnull:
		return nullability.NonNull, min(nonnullConf, nullability.Medium)
	case unspecified:
		return nullability.Unspecified, nullability.Low
	}
	return nullability.Unknown, nullability.None
}
