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

import (
	"sort"

	"github.com/sqlplan/semantiq/graph"
)

// PrunedColumns is the minimal set of source columns required to answer a
// ValidatedQuery, after lineage expansion (spec.md §4.4).
type PrunedColumns struct {
	columns map[graph.ColumnRef]bool
}

func (p *PrunedColumns) IsNeeded(ref graph.ColumnRef) bool { return p.columns[ref] }

func (p *PrunedColumns) ColumnsForEntity(entity string) []string {
	var out []string
	for c := range p.columns {
		if c.Entity == entity {
			out = append(out, c.Column)
		}
	}
	sort.Strings(out)
	return out
}

func (p *PrunedColumns) Entities() []string {
	set := map[string]bool{}
	for c := range p.columns {
		set[c.Entity] = true
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (p *PrunedColumns) Len() int     { return len(p.columns) }
func (p *PrunedColumns) IsEmpty() bool { return len(p.columns) == 0 }

// ColumnPruner is Phase 2.5 (optional): collects referenced columns and
// expands them through the lineage graph to minimal source columns.
type ColumnPruner struct {
	Lineage *graph.ColumnLineageGraph
}

func NewColumnPruner(lineage *graph.ColumnLineageGraph) *ColumnPruner {
	return &ColumnPruner{Lineage: lineage}
}

func (p *ColumnPruner) RequiredColumns(q *ValidatedQuery) (*PrunedColumns, error) {
	refs := map[graph.ColumnRef]bool{}
	addCol := func(entity, col string) { refs[graph.ColumnRef{Entity: entity, Column: col}] = true }

	for _, s := range q.Query.Select {
		switch v := s.(type) {
		case SelectColumn:
			addCol(v.Column.EntityAlias, v.Column.PhysicalName)
		case SelectMeasure:
			addCol(v.Measure.EntityAlias, v.Measure.Name)
			for _, f := range v.Measure.QueryFilter {
				addCol(f.Column.EntityAlias, f.Column.PhysicalName)
			}
		case SelectAggregate:
			addCol(v.Column.EntityAlias, v.Column.PhysicalName)
		case SelectDerived:
			// referenced measures are already separately present in select
			// (spec.md §4.4), so Derived contributes no new refs here.
		}
	}
	for _, f := range q.Query.Filters {
		addCol(f.Column.EntityAlias, f.Column.PhysicalName)
	}
	for _, c := range q.Query.GroupBy {
		addCol(c.EntityAlias, c.PhysicalName)
	}
	for _, o := range q.Query.OrderBy {
		switch v := o.Select.(type) {
		case SelectColumn:
			addCol(v.Column.EntityAlias, v.Column.PhysicalName)
		case SelectMeasure:
			addCol(v.Measure.EntityAlias, v.Measure.Name)
		}
	}
	for _, e := range q.JoinTree.Edges {
		addCol(e.FromEntity, e.FromColumn)
		addCol(e.ToEntity, e.ToColumn)
	}

	out := map[graph.ColumnRef]bool{}
	for ref := range refs {
		sources, err := p.Lineage.RequiredSourceColumns(ref)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			out[ref] = true
			continue
		}
		for _, s := range sources {
			out[s] = true
		}
	}
	return &PrunedColumns{columns: out}, nil
}
