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

package report

import (
	"fmt"

	"github.com/sqlplan/semantiq/graph"
	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
	"github.com/sqlplan/semantiq/sqlast"
)

// Emitter is the ReportEmitter (spec.md §4.8 step 5): one CTE per fact,
// FULL OUTER JOIN assembly on the shared dimension keys, COALESCE'd group
// columns in the outer SELECT.
type Emitter struct {
	Graph *graph.ModelGraph
}

func NewEmitter(g *graph.ModelGraph) *Emitter { return &Emitter{Graph: g} }

// Emit renders a Plan into a sqlast.Query.
func (e *Emitter) Emit(plan *Plan) (*sqlast.Query, error) {
	if len(plan.Facts) == 0 {
		return nil, semantic.ErrQueryPlanError.New("report plan has no fact CTEs")
	}

	q := sqlast.NewQuery()
	for _, fp := range plan.Facts {
		cteQuery, err := e.buildFactCte(fp)
		if err != nil {
			return nil, err
		}
		q.WithCte(sqlast.NewCte(fp.CteAlias, cteQuery))
	}

	first := plan.Facts[0]
	q.From(sqlast.NewTableRef(first.CteAlias))
	for _, fp := range plan.Facts[1:] {
		cond, err := joinCondition(first.GroupColumns, first.CteAlias, fp.CteAlias)
		if err != nil {
			return nil, err
		}
		q.FullJoin(sqlast.NewTableRef(fp.CteAlias), cond)
	}

	sels, err := e.buildSelect(plan)
	if err != nil {
		return nil, err
	}
	q.Select(sels)

	if len(plan.OrderBy) > 0 {
		orderBy, err := e.buildOrderBy(plan)
		if err != nil {
			return nil, err
		}
		q.OrderByExprs(orderBy)
	}
	if plan.Limit != nil {
		q.WithLimit(*plan.Limit)
	}
	return q, nil
}

// buildFactCte builds one fact's CTE: scan, required joins, routed
// filters, group columns + measures, GROUP BY.
func (e *Emitter) buildFactCte(fp FactPlan) (*sqlast.Query, error) {
	q := sqlast.NewQuery()
	table := sqlast.NewTableRef(fp.Entity.Table).WithAlias(fp.Anchor)
	if fp.Entity.Schema != "" {
		table = table.WithSchema(fp.Entity.Schema)
	}
	q.From(table)

	for _, j := range fp.RequiredJoins {
		info, err := e.Graph.GetEntityInfo(j.ToEntity)
		if err != nil {
			return nil, err
		}
		target := sqlast.NewTableRef(info.Table).WithAlias(j.ToEntity)
		if info.Schema != "" {
			target = target.WithSchema(info.Schema)
		}
		cond := sqlast.Eq(sqlast.TableCol(j.FromEntity, j.FromColumn), sqlast.TableCol(j.ToEntity, j.ToColumn))
		q.Join(sqlast.JoinInner, target, cond)
	}

	var sels []sqlast.SelectExpr
	for _, gc := range fp.GroupColumns {
		sels = append(sels, sqlast.NewSelectExpr(sqlast.TableCol(fp.Anchor, gc.FactColumn)).WithAlias(gc.Dimension))
	}
	for _, m := range fp.Measures {
		expr, err := measureExpr(m)
		if err != nil {
			return nil, err
		}
		sels = append(sels, sqlast.NewSelectExpr(expr).WithAlias(m.Name))
	}
	q.Select(sels)

	for _, f := range fp.ApplicableFilters {
		expr, err := filterExpr(f)
		if err != nil {
			return nil, err
		}
		q.Filter(expr)
	}

	if len(fp.GroupColumns) > 0 {
		var groupExprs []sqlast.Expr
		for _, gc := range fp.GroupColumns {
			groupExprs = append(groupExprs, sqlast.TableCol(fp.Anchor, gc.FactColumn))
		}
		q.GroupByExprs(groupExprs)
	}
	return q, nil
}

func joinCondition(groupColumns []GroupColumn, leftCte, rightCte string) (sqlast.Expr, error) {
	if len(groupColumns) == 0 {
		return nil, semantic.ErrQueryPlanError.New("multi-fact report requires shared dimensions to join its CTEs")
	}
	var conds []sqlast.Expr
	for _, gc := range groupColumns {
		conds = append(conds, sqlast.Eq(sqlast.TableCol(leftCte, gc.Dimension), sqlast.TableCol(rightCte, gc.Dimension)))
	}
	return sqlast.AndAll(conds), nil
}

func (e *Emitter) buildSelect(plan *Plan) ([]sqlast.SelectExpr, error) {
	var sels []sqlast.SelectExpr
	seenDims := map[string]bool{}
	for _, fp := range plan.Facts {
		for _, gc := range fp.GroupColumns {
			if seenDims[gc.Dimension] {
				continue
			}
			seenDims[gc.Dimension] = true
			var refs []sqlast.Expr
			for _, fp2 := range plan.Facts {
				for _, gc2 := range fp2.GroupColumns {
					if gc2.Dimension == gc.Dimension {
						refs = append(refs, sqlast.TableCol(fp2.CteAlias, gc.Dimension))
					}
				}
			}
			sels = append(sels, sqlast.NewSelectExpr(sqlast.Coalesce(refs)).WithAlias(gc.Dimension))
		}
	}
	for _, fp := range plan.Facts {
		for _, m := range fp.Measures {
			alias := OutputAlias(fp.Anchor, m.Name)
			sels = append(sels, sqlast.NewSelectExpr(sqlast.TableCol(fp.CteAlias, m.Name)).WithAlias(alias))
		}
	}
	return sels, nil
}

func (e *Emitter) buildOrderBy(plan *Plan) ([]sqlast.OrderExpr, error) {
	var out []sqlast.OrderExpr
	for _, o := range plan.OrderBy {
		expr, err := e.resolveOutputRef(plan, o.Select)
		if err != nil {
			return nil, err
		}
		out = append(out, sqlast.OrderExpr{Expr: expr, Descending: o.Descending})
	}
	return out, nil
}

// resolveOutputRef maps a ResolvedSelect (typically a bare measure or
// column reference carried through from order_by) to the final query's
// own output column, by measure/dimension name.
func (e *Emitter) resolveOutputRef(plan *Plan, s semantic.ResolvedSelect) (sqlast.Expr, error) {
	switch v := s.(type) {
	case semantic.SelectMeasure:
		for _, fp := range plan.Facts {
			if fp.Anchor != v.Measure.EntityAlias {
				continue
			}
			for _, m := range fp.Measures {
				if m.Name == v.Measure.Name {
					return sqlast.Col(OutputAlias(fp.Anchor, m.Name)), nil
				}
			}
		}
		return nil, semantic.ErrUnknownMeasure.New(v.Measure.Name)
	case semantic.SelectColumn:
		return sqlast.Col(v.Column.LogicalName), nil
	default:
		return nil, semantic.ErrQueryPlanError.New(fmt.Sprintf("unsupported report order_by item %T", s))
	}
}

// measureExpr mirrors semantic.Emitter's measure rendering (CASE-wrapped
// filtered aggregate) for use inside a report CTE.
func measureExpr(m semantic.ResolvedMeasure) (sqlast.Expr, error) {
	var valueExpr sqlast.Expr
	if m.SourceColumn == "*" {
		valueExpr = sqlast.LitInt{Value: 1}
	} else {
		valueExpr = sqlast.TableCol(m.EntityAlias, m.SourceColumn)
	}

	var filters []sqlast.Expr
	for _, f := range m.QueryFilter {
		expr, err := filterExpr(f)
		if err != nil {
			return nil, err
		}
		filters = append(filters, expr)
	}
	if m.DefinitionFilter != "" {
		filters = append(filters, sqlast.RawExpr{SQL: m.DefinitionFilter})
	}

	arg := valueExpr
	if len(filters) > 0 {
		arg = sqlast.CaseExpr{WhenClauses: []sqlast.CaseWhen{{Condition: sqlast.AndAll(filters), Result: valueExpr}}, ElseClause: sqlast.LitNull{}}
	}
	if m.SourceColumn == "*" {
		return sqlast.Func("COUNT", arg), nil
	}
	if m.Aggregation == model.AggCountDistinct {
		return sqlast.FuncDistinct("COUNT", arg), nil
	}
	return sqlast.Func(m.Aggregation.SQL(), arg), nil
}

func filterExpr(f semantic.ResolvedFilter) (sqlast.Expr, error) {
	col := sqlast.TableCol(f.Column.EntityAlias, f.Column.PhysicalName)
	switch f.Op {
	case semantic.OpIsNull:
		return sqlast.IsNullExpr{Target: col}, nil
	case semantic.OpIsNotNull:
		return sqlast.IsNullExpr{Target: col, Not: true}, nil
	case semantic.OpIn:
		var items []sqlast.Expr
		for _, v := range f.Value.List {
			items = append(items, literalExpr(v))
		}
		return sqlast.InExpr{Target: col, List: items}, nil
	}
	op, ok := map[semantic.FilterOp]sqlast.BinOp{
		semantic.OpEq: sqlast.OpEq, semantic.OpNe: sqlast.OpNe,
		semantic.OpGt: sqlast.OpGt, semantic.OpGte: sqlast.OpGte,
		semantic.OpLt: sqlast.OpLt, semantic.OpLte: sqlast.OpLte,
		semantic.OpLike: sqlast.OpLike,
	}[f.Op]
	if !ok {
		return nil, semantic.ErrQueryPlanError.New(fmt.Sprintf("unsupported filter operator %q", f.Op))
	}
	return sqlast.BinaryExpr{Op: op, Left: col, Right: literalExpr(f.Value)}, nil
}

func literalExpr(v semantic.FilterValue) sqlast.Expr {
	switch {
	case v.String != nil:
		return sqlast.LitString{Value: *v.String}
	case v.Int != nil:
		return sqlast.LitInt{Value: *v.Int}
	case v.Float != nil:
		return sqlast.LitFloat{Value: *v.Float}
	case v.Bool != nil:
		return sqlast.LitBool{Value: *v.Bool}
	default:
		return sqlast.LitNull{}
	}
}
