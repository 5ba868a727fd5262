// Copyright 2024 The Semantiq Authors.
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

package semantic

import "gopkg.in/src-d/go-errors.v1"

// Error taxonomy, spec.md §7. Each is a distinct *errors.Kind so callers
// can errors.As/Is against a specific failure mode; the compile entry
// point wraps these with phase context via pkg/errors but never discards
// the underlying kind.
var (
	ErrUnknownEntity          = errors.NewKind("unknown entity: %s")
	ErrUnknownField           = errors.NewKind("unknown field %s.%s")
	ErrUnknownMeasure         = errors.NewKind("unknown measure: %s")
	ErrUnknownQuery           = errors.NewKind("unknown query: %s")
	ErrInvalidReference       = errors.NewKind("%s")
	ErrAmbiguousField         = errors.NewKind("ambiguous field %q: exists on %v")
	ErrAmbiguousDimensionRole = errors.NewKind("ambiguous dimension role %q: available roles %v")
	ErrAmbiguousPath          = errors.NewKind("ambiguous path to dimension %q via facts %v")
	ErrNoPath                 = errors.NewKind("no join path from %s to %s")
	ErrUnsafeJoinPath         = errors.NewKind("joining %s -> %s is 1:N which causes row multiplication. Start from '%s' instead.")
	ErrTypeMismatch           = errors.NewKind("type mismatch: %s.%s (%s) vs %s.%s (%s)")
	ErrUngroupedColumn        = errors.NewKind("ungrouped column: %s")
	ErrCyclicDependency       = errors.NewKind("cyclic dependency: %v")
	ErrColumnLineageCycle     = errors.NewKind("cyclic column lineage: %v")
	ErrNoAnchor               = errors.NewKind("no anchor fact: query has no measures and no explicit 'from'")
	ErrDimensionNotShared     = errors.NewKind("dimension %q is not reachable from anchor %q")
	ErrInvalidModel           = errors.NewKind("%s")
	ErrQueryPlanError         = errors.NewKind("%s")

	// ErrPeriodNotSupported documents the explicit Non-goal (SPEC_FULL.md
	// DATA MODEL supplement) rather than silently dropping a period filter.
	ErrPeriodNotSupported = errors.NewKind("period expression translation is not supported by the core: %s")
)
