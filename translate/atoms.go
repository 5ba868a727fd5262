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

package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
)

// atomPattern matches @atom references in a raw filter/expression string.
var atomPattern = regexp.MustCompile(`@(\w+)`)

// compileAtoms replaces every @atom in expr with its physical
// "schema.table.column" form and validates the result parses as a SQL
// expression, mirroring `original_source`'s own regex-substitute-then-
// sqlparser-validate strategy (SPEC_FULL.md §4.10 step 4). An atom name
// must resolve to either a measure (for the fact's own anchor) or a plain
// column on the entity; anything else is ErrUnknownField.
func compileAtoms(expr, from string, m *model.Model) (string, error) {
	entity, err := resolvePhysicalEntity(from, m)
	if err != nil {
		return "", err
	}

	result := expr
	for _, match := range atomPattern.FindAllStringSubmatch(expr, -1) {
		atom := match[1]
		column, err := resolveAtomColumn(atom, from, m)
		if err != nil {
			return "", err
		}
		result = strings.ReplaceAll(result, "@"+atom, fmt.Sprintf("%s.%s.%s", entity.Schema, entity.Table, column))
	}

	test := "SELECT " + result
	if _, err := sqlparser.Parse(test); err != nil {
		return "", semantic.ErrInvalidReference.New(fmt.Sprintf("filter expression %q: invalid SQL after @atom substitution: %v", expr, err))
	}
	return result, nil
}

// resolvePhysicalEntity finds the SourceEntity backing from's physical
// schema/table, following a fact's grain anchor the same way
// columnExistsOnEntity does, since a report's `from` is usually a fact
// name rather than a SourceEntity name directly.
func resolvePhysicalEntity(from string, m *model.Model) (*model.SourceEntity, error) {
	if se, ok := m.Entities[from]; ok {
		return se, nil
	}
	if f, ok := m.Facts[from]; ok {
		if se, ok := m.Entities[f.Grain.SourceEntity]; ok {
			return se, nil
		}
	}
	return nil, semantic.ErrUnknownEntity.New(from)
}

// resolveAtomColumn resolves an @atom name to a physical column name on
// the `from` entity: a measure's source column, or a plain attribute/key
// column.
func resolveAtomColumn(atom, from string, m *model.Model) (string, error) {
	if f, ok := m.Facts[from]; ok {
		if md, ok := f.Measures[atom]; ok {
			return md.SourceColumn, nil
		}
	}
	if columnExistsOnEntity(m, from, atom) {
		return atom, nil
	}
	return "", semantic.ErrUnknownField.New(from, atom)
}
