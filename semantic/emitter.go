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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/sqlast"
)

// Emitter is Phase 4: walks a LogicalPlan and produces a dialect-neutral
// sqlast.Query (spec.md §4.6).
type Emitter struct {
	Logger   logrus.FieldLogger
	measures map[string]ResolvedMeasure // "entity.measure" -> def, populated by the Aggregate stage
	groupBy  []ResolvedColumn           // populated by the Aggregate stage, used by time-function partitioning
}

func NewEmitter() *Emitter {
	return &Emitter{Logger: logrus.StandardLogger(), measures: map[string]ResolvedMeasure{}}
}

// Emit renders a logical plan into a sqlast.Query ready for dialect
// serialization.
func (e *Emitter) Emit(plan LogicalPlan) (*sqlast.Query, error) {
	e.Logger.WithField("phase", "emit").Debug("emitting sql ast")
	q := sqlast.NewQuery()
	return e.emitNode(plan, q)
}

func (e *Emitter) emitNode(plan LogicalPlan, q *sqlast.Query) (*sqlast.Query, error) {
	switch n := plan.(type) {
	case LimitNode:
		q, err := e.emitNode(n.Input, q)
		if err != nil {
			return nil, err
		}
		q.WithLimit(n.Limit)
		return q, nil

	case SortNode:
		q, err := e.emitNode(n.Input, q)
		if err != nil {
			return nil, err
		}
		orderBy := make([]sqlast.OrderExpr, 0, len(n.OrderBy))
		for _, o := range n.OrderBy {
			expr, err := e.emitSelectExpr(o.Select)
			if err != nil {
				return nil, err
			}
			orderBy = append(orderBy, sqlast.OrderExpr{Expr: expr, Descending: o.Descending})
		}
		q.OrderByExprs(orderBy)
		return q, nil

	case ProjectNode:
		q, err := e.emitNode(n.Input, q)
		if err != nil {
			return nil, err
		}
		sels := make([]sqlast.SelectExpr, 0, len(n.Projections))
		for _, p := range n.Projections {
			expr, alias, err := e.emitProjection(p)
			if err != nil {
				return nil, err
			}
			se := sqlast.NewSelectExpr(expr)
			if alias != "" {
				se = se.WithAlias(alias)
			}
			sels = append(sels, se)
		}
		q.Select(sels)
		return q, nil

	case AggregateNode:
		q, err := e.emitNode(n.Input, q)
		if err != nil {
			return nil, err
		}
		for _, m := range n.Measures {
			e.measures[m.EntityAlias+"."+m.Name] = m
		}
		e.groupBy = n.GroupBy
		groupExprs := make([]sqlast.Expr, 0, len(n.GroupBy))
		for _, c := range n.GroupBy {
			groupExprs = append(groupExprs, sqlast.TableCol(c.EntityAlias, c.PhysicalName))
		}
		q.GroupByExprs(groupExprs)
		return q, nil

	case FilterNode:
		q, err := e.emitNode(n.Input, q)
		if err != nil {
			return nil, err
		}
		for _, f := range n.Filters {
			expr, err := e.emitFilter(f)
			if err != nil {
				return nil, err
			}
			q.Filter(expr)
		}
		for _, raw := range n.RawFilters {
			q.Filter(sqlast.RawExpr{SQL: raw})
		}
		return q, nil

	case JoinNode:
		q, err := e.emitNode(n.Left, q)
		if err != nil {
			return nil, err
		}
		right, ok := n.Right.(ScanNode)
		if !ok {
			return nil, ErrQueryPlanError.New("join right side must be a scan")
		}
		table := entityTableRef(right.Entity)
		cond := sqlast.Eq(
			sqlast.TableCol(n.Condition.LeftEntity, n.Condition.LeftColumn),
			sqlast.TableCol(n.Condition.RightEntity, n.Condition.RightColumn),
		)
		q.Join(logicalToSQLJoinKind(n.Type), table, cond)
		return q, nil

	case ScanNode:
		q.From(entityTableRef(n.Entity))
		return q, nil

	default:
		return nil, ErrQueryPlanError.New(fmt.Sprintf("unsupported logical plan node %T", plan))
	}
}

func entityTableRef(e ResolvedEntity) sqlast.TableRef {
	t := sqlast.NewTableRef(e.PhysicalTable).WithAlias(e.LogicalName)
	if e.PhysicalSchema != "" {
		t = t.WithSchema(e.PhysicalSchema)
	}
	return t
}

func logicalToSQLJoinKind(t LogicalJoinType) sqlast.JoinKind {
	switch t {
	case JoinLeft:
		return sqlast.JoinLeft
	case JoinRight:
		return sqlast.JoinRight
	case JoinFull:
		return sqlast.JoinFull
	default:
		return sqlast.JoinInner
	}
}

// emitProjection renders one select item and returns (expr, alias).
func (e *Emitter) emitProjection(s ResolvedSelect) (sqlast.Expr, string, error) {
	switch v := s.(type) {
	case SelectColumn:
		return sqlast.TableCol(v.Column.EntityAlias, v.Column.PhysicalName), v.Alias, nil
	case SelectMeasure:
		expr, err := e.emitMeasureExpr(v.Measure)
		return expr, v.Alias, err
	case SelectAggregate:
		col := sqlast.TableCol(v.Column.EntityAlias, v.Column.PhysicalName)
		return sqlast.Func(v.Agg, col), v.Alias, nil
	case SelectDerived:
		expr, err := e.emitDerivedExpr(v.Expression)
		return expr, v.Alias, err
	default:
		return nil, "", ErrQueryPlanError.New(fmt.Sprintf("unsupported select item %T", s))
	}
}

func (e *Emitter) emitSelectExpr(s ResolvedSelect) (sqlast.Expr, error) {
	expr, _, err := e.emitProjection(s)
	return expr, err
}

// emitMeasureExpr renders a measure's base aggregate, CASE-wrapping its
// argument with any per-measure filter and/or @atom-substituted
// definition filter (spec.md §4.6 measure emission).
func (e *Emitter) emitMeasureExpr(m ResolvedMeasure) (sqlast.Expr, error) {
	var valueExpr sqlast.Expr
	if m.SourceColumn == "*" {
		valueExpr = sqlast.LitInt{Value: 1}
	} else {
		valueExpr = sqlast.TableCol(m.EntityAlias, m.SourceColumn)
	}

	var filterExprs []sqlast.Expr
	for _, f := range m.QueryFilter {
		expr, err := e.emitFilter(f)
		if err != nil {
			return nil, err
		}
		filterExprs = append(filterExprs, expr)
	}
	if m.DefinitionFilter != "" {
		filterExprs = append(filterExprs, sqlast.RawExpr{SQL: m.DefinitionFilter})
	}

	arg := valueExpr
	if len(filterExprs) > 0 {
		arg = sqlast.CaseExpr{
			WhenClauses: []sqlast.CaseWhen{{Condition: sqlast.AndAll(filterExprs), Result: valueExpr}},
			ElseClause:  sqlast.LitNull{},
		}
	}

	if m.SourceColumn == "*" {
		return sqlast.Func("COUNT", arg), nil
	}
	switch m.Aggregation {
	case model.AggCountDistinct:
		return sqlast.FuncDistinct("COUNT", arg), nil
	default:
		return sqlast.Func(m.Aggregation.SQL(), arg), nil
	}
}

// emitFilter renders a ResolvedFilter's comparison.
func (e *Emitter) emitFilter(f ResolvedFilter) (sqlast.Expr, error) {
	col := sqlast.TableCol(f.Column.EntityAlias, f.Column.PhysicalName)
	switch f.Op {
	case OpIsNull:
		return sqlast.IsNullExpr{Target: col}, nil
	case OpIsNotNull:
		return sqlast.IsNullExpr{Target: col, Not: true}, nil
	case OpIn:
		items := make([]sqlast.Expr, 0, len(f.Value.List))
		for _, v := range f.Value.List {
			items = append(items, filterValueExpr(v))
		}
		return sqlast.InExpr{Target: col, List: items}, nil
	}
	op, ok := filterOpToBinOp(f.Op)
	if !ok {
		return nil, ErrQueryPlanError.New(fmt.Sprintf("unsupported filter operator %q", f.Op))
	}
	return sqlast.BinaryExpr{Op: op, Left: col, Right: filterValueExpr(f.Value)}, nil
}

func filterOpToBinOp(op FilterOp) (sqlast.BinOp, bool) {
	switch op {
	case OpEq:
		return sqlast.OpEq, true
	case OpNe:
		return sqlast.OpNe, true
	case OpGt:
		return sqlast.OpGt, true
	case OpGte:
		return sqlast.OpGte, true
	case OpLt:
		return sqlast.OpLt, true
	case OpLte:
		return sqlast.OpLte, true
	case OpLike:
		return sqlast.OpLike, true
	default:
		return "", false
	}
}

func filterValueExpr(v FilterValue) sqlast.Expr {
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

// emitDerivedExpr renders a ResolvedDerivedExpr tree. A MeasureRef always
// expands to the measure's full aggregate expression, never a bare alias
// reference, since most dialects cannot re-use a SELECT alias inside the
// same SELECT list.
func (e *Emitter) emitDerivedExpr(expr ResolvedDerivedExpr) (sqlast.Expr, error) {
	switch v := expr.(type) {
	case RMeasureRef:
		return e.emitMeasureExpr(v.Measure)
	case RLiteral:
		return sqlast.LitFloat{Value: v.Value}, nil
	case RBinaryOp:
		left, err := e.emitDerivedExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.emitDerivedExpr(v.Right)
		if err != nil {
			return nil, err
		}
		return sqlast.BinaryExpr{Op: binaryOpToSQL(v.Op), Left: left, Right: right}, nil
	case RNegate:
		inner, err := e.emitDerivedExpr(v.Inner)
		if err != nil {
			return nil, err
		}
		return sqlast.BinaryExpr{Op: sqlast.OpSub, Left: sqlast.LitInt{Value: 0}, Right: inner}, nil
	case RTimeFunction:
		te := NewTimeEmitter(func(name string) (sqlast.Expr, error) {
			m, ok := e.measures[v.Fn.Measure]
			if !ok {
				// measure key is stored as "entity.name"; try by bare name
				for k, mm := range e.measures {
					if mm.Name == name || k == name {
						return e.emitMeasureExpr(mm)
					}
				}
				return nil, ErrUnknownMeasure.New(name)
			}
			return e.emitMeasureExpr(m)
		})
		return te.Emit(v.Fn, e.groupBy)
	case RDelta:
		cur, err := e.emitDerivedExpr(v.Current)
		if err != nil {
			return nil, err
		}
		prev, err := e.emitDerivedExpr(v.Previous)
		if err != nil {
			return nil, err
		}
		return sqlast.BinaryExpr{Op: sqlast.OpSub, Left: cur, Right: prev}, nil
	case RGrowth:
		cur, err := e.emitDerivedExpr(v.Current)
		if err != nil {
			return nil, err
		}
		prev, err := e.emitDerivedExpr(v.Previous)
		if err != nil {
			return nil, err
		}
		diff := sqlast.BinaryExpr{Op: sqlast.OpSub, Left: cur, Right: prev}
		denom := sqlast.NullIf(prev, sqlast.LitDecimal{Value: decimal.Zero})
		ratio := sqlast.BinaryExpr{Op: sqlast.OpDiv, Left: diff, Right: denom}
		return sqlast.BinaryExpr{Op: sqlast.OpMul, Left: ratio, Right: sqlast.LitInt{Value: 100}}, nil
	default:
		return nil, ErrQueryPlanError.New(fmt.Sprintf("unsupported derived expression %T", expr))
	}
}

func binaryOpToSQL(op BinaryOp) sqlast.BinOp {
	switch op {
	case OpAdd:
		return sqlast.OpAdd
	case OpSub:
		return sqlast.OpSub
	case OpMul:
		return sqlast.OpMul
	case OpDiv:
		return sqlast.OpDiv
	default:
		return sqlast.OpAdd
	}
}
