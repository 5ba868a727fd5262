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
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/graph"
)

// LogicalPlanner is Phase 3: builds the Scan/Join/Filter/Aggregate/
// Project/Sort/Limit tree, including virtual-fact reconstruction when a
// ModelGraph is supplied (spec.md §4.5).
type LogicalPlanner struct {
	Graph  *graph.ModelGraph // optional; required only for virtual facts
	Logger logrus.FieldLogger
}

func NewLogicalPlanner() *LogicalPlanner {
	return &LogicalPlanner{Logger: logrus.StandardLogger()}
}

func (lp *LogicalPlanner) WithGraph(g *graph.ModelGraph) *LogicalPlanner {
	lp.Graph = g
	return lp
}

func (lp *LogicalPlanner) Plan(v *ValidatedQuery) (LogicalPlan, error) {
	lp.Logger.WithField("phase", "logical_plan").Debug("building logical plan")
	from := v.EntityInfo[v.Query.From]

	var plan LogicalPlan
	if !from.Materialized {
		built, err := lp.buildVirtualFactPlan(v.Query.From)
		if err != nil {
			return nil, err
		}
		plan = built
	} else {
		plan = ScanNode{Entity: from}
	}

	plan = lp.addJoins(plan, v)

	if len(v.Query.Filters) > 0 || len(v.Query.RawFilters) > 0 {
		plan = FilterNode{Input: plan, Filters: v.Query.Filters, RawFilters: v.Query.RawFilters}
	}

	aggregates := collectAggregates(v.Query)
	hasInlineAgg := false
	for _, s := range v.Query.Select {
		if _, ok := s.(SelectAggregate); ok {
			hasInlineAgg = true
		}
	}
	if len(v.Query.GroupBy) > 0 || len(aggregates) > 0 || hasInlineAgg {
		plan = AggregateNode{Input: plan, GroupBy: v.Query.GroupBy, Measures: aggregates}
	}

	plan = ProjectNode{Input: plan, Projections: buildProjections(v.Query)}

	if len(v.Query.OrderBy) > 0 {
		plan = SortNode{Input: plan, OrderBy: v.Query.OrderBy}
	}
	if v.Query.Limit != nil {
		plan = LimitNode{Input: plan, Limit: *v.Query.Limit}
	}
	return plan, nil
}

// buildVirtualFactPlan reconstructs a virtual fact's base scan plus inner
// joins for every included role-playing dimension (spec.md §4.5 step 1).
func (lp *LogicalPlanner) buildVirtualFactPlan(factName string) (LogicalPlan, error) {
	if lp.Graph == nil {
		return nil, ErrQueryPlanError.New(fmt.Sprintf(
			"cannot query virtual fact %q: model graph not available. Use LogicalPlanner.WithGraph to enable virtual fact support.", factName))
	}
	fact, ok := lp.Graph.ModelFact(factName)
	if !ok {
		return nil, ErrQueryPlanError.New(fmt.Sprintf("virtual fact %q not found", factName))
	}
	grainEntity := fact.From
	if grainEntity == "" {
		grainEntity = fact.Grain.SourceEntity
	}
	if grainEntity == "" {
		return nil, ErrQueryPlanError.New(fmt.Sprintf(
			"virtual fact %q has no grain or from clause to reconstruct a scan from", factName))
	}
	info, err := lp.Graph.GetEntityInfo(grainEntity)
	if err != nil {
		return nil, err
	}
	var plan LogicalPlan = ScanNode{Entity: ResolvedEntity{LogicalName: info.Name, PhysicalTable: info.Table, PhysicalSchema: info.Schema, Materialized: true}}

	for _, alias := range sortedIncludeAliases(fact) {
		include := fact.Includes[alias]
		edge, _, ok := lp.Graph.FindRelationshipEitherDirection(grainEntity, include.Entity)
		if !ok {
			continue // no direct relationship: validated phase should catch issues (spec.md §4.5)
		}
		dimInfo, err := lp.Graph.GetEntityInfo(include.Entity)
		if err != nil {
			return nil, err
		}
		cond := JoinCondition{LeftEntity: grainEntity, LeftColumn: edge.FromColumn, RightEntity: alias, RightColumn: edge.ToColumn}
		right := ScanNode{Entity: ResolvedEntity{LogicalName: alias, PhysicalTable: dimInfo.Table, PhysicalSchema: dimInfo.Schema, Materialized: dimInfo.Materialized}}
		plan = JoinNode{Left: plan, Right: right, Condition: cond, Type: JoinInner}
	}
	return plan, nil
}

func sortedIncludeAliases(fact *graph.FactView) []string {
	out := make([]string, 0, len(fact.Includes))
	for a := range fact.Includes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// addJoins appends an Inner Join for every edge of the validated join
// tree, rewriting virtual-dimension targets to scan their source entity
// while keeping the dimension's alias (spec.md §4.5 step 2).
func (lp *LogicalPlanner) addJoins(plan LogicalPlan, v *ValidatedQuery) LogicalPlan {
	for _, e := range v.JoinTree.Edges {
		target := v.EntityInfo[e.ToEntity]
		entity := ResolvedEntity{LogicalName: e.ToEntity, PhysicalTable: target.PhysicalTable, PhysicalSchema: target.PhysicalSchema, Materialized: target.Materialized}
		if !target.Materialized && lp.Graph != nil {
			if dim, ok := lp.Graph.ModelDimension(e.ToEntity); ok {
				if srcInfo, err := lp.Graph.GetEntityInfo(dim.SourceEntity); err == nil {
					entity = ResolvedEntity{LogicalName: e.ToEntity, PhysicalTable: srcInfo.Table, PhysicalSchema: srcInfo.Schema, Materialized: true}
				}
			}
		}
		right := ScanNode{Entity: entity}
		cond := JoinCondition{LeftEntity: e.FromEntity, LeftColumn: e.FromColumn, RightEntity: e.ToEntity, RightColumn: e.ToColumn}
		plan = JoinNode{Left: plan, Right: right, Condition: cond, Type: JoinInner}
	}
	return plan
}

// collectAggregates de-duplicates measures referenced in select and
// order_by by name, in first-occurrence order.
func collectAggregates(q *ResolvedQuery) []ResolvedMeasure {
	seen := map[string]bool{}
	var out []ResolvedMeasure
	consider := func(s ResolvedSelect) {
		if m, ok := s.(SelectMeasure); ok {
			key := m.Measure.EntityAlias + "." + m.Measure.Name
			if !seen[key] {
				seen[key] = true
				out = append(out, m.Measure)
			}
		}
	}
	for _, s := range q.Select {
		consider(s)
	}
	for _, o := range q.OrderBy {
		consider(o.Select)
	}
	return out
}

// buildProjections computes (group_by columns not already explicit in
// select) ++ (original select items) (spec.md §4.5 step 5).
func buildProjections(q *ResolvedQuery) []ResolvedSelect {
	explicit := map[string]bool{}
	for _, s := range q.Select {
		if c, ok := s.(SelectColumn); ok {
			explicit[c.Column.EntityAlias+"\x00"+c.Column.PhysicalName] = true
		}
	}
	var out []ResolvedSelect
	for _, c := range q.GroupBy {
		key := c.EntityAlias + "\x00" + c.PhysicalName
		if explicit[key] {
			continue
		}
		out = append(out, SelectColumn{Column: c, Alias: c.LogicalName})
	}
	out = append(out, q.Select...)
	return out
}
