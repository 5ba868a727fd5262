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

// Package report plans and emits SQL for a resolved multi-fact query: one
// CTE per anchor fact, joined with FULL OUTER JOIN on the shared
// dimensions' group-by columns (spec.md §4.8).
package report

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/graph"
	"github.com/sqlplan/semantiq/semantic"
)

// RequiredJoin is one INNER JOIN a fact's CTE must add to reach a
// dimension referenced by a routed filter.
type RequiredJoin struct {
	FromEntity, FromColumn string
	ToEntity, ToColumn     string
}

// GroupColumn is one shared-dimension grouping key, carried on the fact
// side as a foreign key column.
type GroupColumn struct {
	Dimension    string
	FactColumn   string // physical column on the fact's own table
}

// FactPlan is one anchor fact's CTE plan.
type FactPlan struct {
	Anchor           string
	CteAlias         string
	Entity           graph.EntityInfo
	Measures         []semantic.ResolvedMeasure
	GroupColumns     []GroupColumn
	RequiredJoins    []RequiredJoin
	ApplicableFilters []semantic.ResolvedFilter
}

// Plan is a fully planned multi-fact report, ready for emission.
type Plan struct {
	Facts      []FactPlan
	Dimensions []string // all shared dimension names, in stable order
	OrderBy    []semantic.ResolvedOrder
	Limit      *uint64
}

// Planner is the ReportPlanner (spec.md §4.8).
type Planner struct {
	Graph  *graph.ModelGraph
	Logger logrus.FieldLogger
}

func NewPlanner(g *graph.ModelGraph) *Planner {
	return &Planner{Graph: g, Logger: logrus.StandardLogger()}
}

// Plan turns a resolved multi-fact query into a Plan: one CTE per anchor
// fact, filters routed to facts with a safe path to the filter's entity,
// and the joins each fact's CTE needs to reach any routed filter entity
// that isn't itself (spec.md §4.8 steps 1-4; SPEC_FULL.md §4.9 real
// dimension joins, replacing `original_source`'s `// TODO: Add JOINs`).
func (p *Planner) Plan(mq *semantic.MultiFactQuery) (*Plan, error) {
	if len(mq.FactAggregates) == 0 {
		return nil, semantic.ErrQueryPlanError.New("multi-fact query has no anchor facts")
	}
	plan := &Plan{Dimensions: mq.SharedDimensions, OrderBy: mq.OrderBy, Limit: mq.Limit}

	for _, fa := range mq.FactAggregates {
		info, err := p.Graph.GetEntityInfo(fa.Anchor)
		if err != nil {
			return nil, err
		}
		fp := FactPlan{Anchor: fa.Anchor, CteAlias: fa.CteAlias, Entity: *info, Measures: fa.Measures}

		for _, jk := range fa.JoinKeys {
			fp.GroupColumns = append(fp.GroupColumns, GroupColumn{Dimension: jk.Dimension, FactColumn: jk.FactColumn})
		}

		filters, joins, err := p.routeFilters(fa.Anchor, mq.GlobalFilters)
		if err != nil {
			return nil, err
		}
		fp.ApplicableFilters = filters
		fp.RequiredJoins = joins

		plan.Facts = append(plan.Facts, fp)
	}
	return plan, nil
}

// routeFilters keeps only the global filters reachable from anchor via a
// safe (no fan-out) path, and returns the joins needed to bring each
// filter's entity into the fact's own CTE (spec.md §4.8 step 2).
func (p *Planner) routeFilters(anchor string, filters []semantic.ResolvedFilter) ([]semantic.ResolvedFilter, []RequiredJoin, error) {
	var applicable []semantic.ResolvedFilter
	joinSet := map[graph.Edge]bool{}
	var joins []RequiredJoin

	entities := map[string]bool{}
	for _, f := range filters {
		entities[f.Column.EntityAlias] = true
	}
	sortedEntities := make([]string, 0, len(entities))
	for e := range entities {
		sortedEntities = append(sortedEntities, e)
	}
	sort.Strings(sortedEntities)

	reachable := map[string]bool{anchor: true}
	for _, e := range sortedEntities {
		if e == anchor {
			continue
		}
		path, err := p.Graph.FindPath(anchor, e)
		if err != nil || !path.IsSafe() {
			continue // not safely reachable: filter does not apply to this fact
		}
		reachable[e] = true
		for _, edge := range path.Edges {
			if joinSet[edge] {
				continue
			}
			joinSet[edge] = true
			joins = append(joins, RequiredJoin{FromEntity: edge.FromEntity, FromColumn: edge.FromColumn, ToEntity: edge.ToEntity, ToColumn: edge.ToColumn})
		}
	}

	for _, f := range filters {
		if reachable[f.Column.EntityAlias] {
			applicable = append(applicable, f)
		}
	}
	return applicable, joins, nil
}

// OutputAlias is the `{fact}_{measure}` convention used for measure
// columns in the final SELECT (spec.md §4.8 step 5).
func OutputAlias(fact, measure string) string {
	return fmt.Sprintf("%s_%s", fact, measure)
}
