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

package sqlast

// TableRef is a FROM/JOIN target, optionally schema-qualified and aliased.
type TableRef struct {
	Schema string
	Name   string
	Alias  string
}

func NewTableRef(name string) TableRef { return TableRef{Name: name} }

func (t TableRef) WithSchema(schema string) TableRef { t.Schema = schema; return t }
func (t TableRef) WithAlias(alias string) TableRef   { t.Alias = alias; return t }

// JoinKind is the logical join type rendered into SQL.
type JoinKind string

const (
	JoinInner JoinKind = "INNER JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinRight JoinKind = "RIGHT JOIN"
	JoinFull  JoinKind = "FULL OUTER JOIN"
)

type JoinClause struct {
	Kind  JoinKind
	Table TableRef
	On    Expr
}

// SelectExpr is one item of a SELECT list.
type SelectExpr struct {
	Expr  Expr
	Alias string
}

func NewSelectExpr(e Expr) SelectExpr { return SelectExpr{Expr: e} }

func (s SelectExpr) WithAlias(alias string) SelectExpr { s.Alias = alias; return s }

// Cte is one named common table expression.
type Cte struct {
	Name  string
	Query *Query
}

func NewCte(name string, q *Query) Cte { return Cte{Name: name, Query: q} }

// Query is the dialect-neutral SQL builder (spec.md §4.6).
type Query struct {
	Ctes       []Cte
	FromTable  *TableRef
	Joins      []JoinClause
	Filters    []Expr
	GroupBy    []Expr
	SelectList []SelectExpr
	OrderBy    []OrderExpr
	Limit      *uint64
}

func NewQuery() *Query { return &Query{} }

func (q *Query) WithCte(c Cte) *Query { q.Ctes = append(q.Ctes, c); return q }

func (q *Query) From(t TableRef) *Query { q.FromTable = &t; return q }

func (q *Query) Join(kind JoinKind, t TableRef, on Expr) *Query {
	q.Joins = append(q.Joins, JoinClause{Kind: kind, Table: t, On: on})
	return q
}

func (q *Query) InnerJoin(t TableRef, on Expr) *Query { return q.Join(JoinInner, t, on) }
func (q *Query) FullJoin(t TableRef, on Expr) *Query  { return q.Join(JoinFull, t, on) }

func (q *Query) Filter(e Expr) *Query { q.Filters = append(q.Filters, e); return q }

func (q *Query) GroupByExprs(exprs []Expr) *Query { q.GroupBy = exprs; return q }

func (q *Query) Select(exprs []SelectExpr) *Query { q.SelectList = exprs; return q }

func (q *Query) OrderByExprs(exprs []OrderExpr) *Query { q.OrderBy = exprs; return q }

func (q *Query) WithLimit(n uint64) *Query { q.Limit = &n; return q }
