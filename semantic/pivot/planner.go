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

// Package pivot plans and emits dialect-specific SQL for PivotReport
// definitions: native PIVOT, bracketed T-SQL PIVOT, or conditional
// aggregation, depending on target dialect (spec.md §4.9).
package pivot

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/graph"
	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
)

// Dimension names a row/column dimension used by the pivot.
type Dimension struct {
	Entity string
	Column string
}

// Measure is one value measure to aggregate into the pivoted output.
type Measure struct {
	Alias        string
	Aggregation  model.AggKind
	SourceColumn string
	EntityAlias  string // the source fact, always
}

// RequiredJoin is one INNER JOIN needed to reach a row/column dimension
// that isn't the source fact itself.
type RequiredJoin struct {
	FromEntity, FromColumn string
	ToEntity, ToColumn     string
}

// Plan is a fully planned pivot, ready for dialect-specific emission.
type Plan struct {
	ReportName      string
	RowDimensions   []Dimension
	ColumnDimension Dimension
	ColumnValues    model.PivotColumnValuesSpec
	ValueMeasures   []Measure
	Filters         []string
	Totals          model.PivotTotalsSpec
	Sort            *model.PivotSortSpec
	SourceFact      string
	SourceTable     string
	SourceSchema    string
	RequiredJoins   []RequiredJoin
}

// Planner is the PivotPlanner (spec.md §4.9).
type Planner struct {
	Model  *model.Model
	Graph  *graph.ModelGraph
	Logger logrus.FieldLogger
}

func NewPlanner(m *model.Model, g *graph.ModelGraph) *Planner {
	return &Planner{Model: m, Graph: g, Logger: logrus.StandardLogger()}
}

// Plan plans a PivotReport. The source fact is determined by the first
// value measure, matching `original_source`'s `determine_source_fact`.
func (p *Planner) Plan(pivot *model.PivotReport) (*Plan, error) {
	if len(pivot.ValueMeasures) == 0 {
		return nil, semantic.ErrInvalidModel.New("pivot report must have at least one value measure")
	}
	sourceFact := pivot.ValueMeasures[0].Fact
	fact, ok := p.Model.Facts[sourceFact]
	if !ok {
		return nil, semantic.ErrUnknownEntity.New(sourceFact)
	}
	info, err := p.Graph.GetEntityInfo(sourceFact)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ReportName:      pivot.Name,
		ColumnDimension: Dimension{Entity: pivot.ColumnDimension.Entity, Column: pivot.ColumnDimension.Column},
		ColumnValues:    pivot.ColumnValues,
		Filters:         pivot.Filters,
		Totals:          pivot.Totals,
		SourceFact:      sourceFact,
		SourceTable:     info.Table,
		SourceSchema:    info.Schema,
	}
	for _, r := range pivot.RowDimensions {
		plan.RowDimensions = append(plan.RowDimensions, Dimension{Entity: r.Entity, Column: r.Column})
	}
	if pivot.Sort != nil {
		s := *pivot.Sort
		plan.Sort = &s
	}

	measures, err := p.parseValueMeasures(fact, pivot.ValueMeasures)
	if err != nil {
		return nil, err
	}
	plan.ValueMeasures = measures

	joins, err := p.requiredJoins(sourceFact, plan.RowDimensions, plan.ColumnDimension)
	if err != nil {
		return nil, err
	}
	plan.RequiredJoins = joins

	return plan, nil
}

func (p *Planner) parseValueMeasures(fact *model.FactDefinition, refs []model.PivotValueRef) ([]Measure, error) {
	var out []Measure
	for _, ref := range refs {
		md, ok := fact.Measures[ref.Measure]
		if !ok {
			return nil, semantic.ErrUnknownField.New(fact.Name, ref.Measure)
		}
		alias := ref.Alias
		if alias == "" {
			alias = ref.Measure
		}
		out = append(out, Measure{Alias: alias, Aggregation: md.Aggregation, SourceColumn: md.SourceColumn, EntityAlias: fact.Name})
	}
	return out, nil
}

// requiredJoins computes the deduplicated join edges needed to reach every
// row/column dimension that is not the source fact, via
// ModelGraph.FindJoinTree (SPEC_FULL.md §4.9 supplement, closing
// `original_source`'s `// TODO: Add JOINs for dimensions`).
func (p *Planner) requiredJoins(sourceFact string, rows []Dimension, col Dimension) ([]RequiredJoin, error) {
	entitySet := map[string]bool{}
	for _, d := range rows {
		if d.Entity != sourceFact {
			entitySet[d.Entity] = true
		}
	}
	if col.Entity != sourceFact {
		entitySet[col.Entity] = true
	}
	if len(entitySet) == 0 {
		return nil, nil
	}
	others := make([]string, 0, len(entitySet))
	for e := range entitySet {
		others = append(others, e)
	}
	sort.Strings(others)

	tree, err := p.Graph.FindJoinTree(sourceFact, others)
	if err != nil {
		return nil, err
	}
	if !tree.IsSafe {
		return nil, semantic.ErrUnsafeJoinPath.New(fmt.Sprintf("%s.%s", tree.UnsafeEdge.FromEntity, tree.UnsafeEdge.FromColumn), fmt.Sprintf("%s.%s", tree.UnsafeEdge.ToEntity, tree.UnsafeEdge.ToColumn), sourceFact)
	}
	out := make([]RequiredJoin, 0, len(tree.Edges))
	for _, e := range tree.Edges {
		out = append(out, RequiredJoin{FromEntity: e.FromEntity, FromColumn: e.FromColumn, ToEntity: e.ToEntity, ToColumn: e.ToColumn})
	}
	return out, nil
}
