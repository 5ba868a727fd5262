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

// Package sqlast is the dialect-neutral SQL expression/query builder and
// the per-dialect serializer (spec.md §4.6/§4.7). Nothing in this package
// knows about the semantic model; it renders whatever tree it is handed.
package sqlast

import "github.com/shopspring/decimal"

// Expr is a tagged-variant SQL expression tree.
type Expr interface{ isExpr() }

type ColumnExpr struct {
	Table string // "" for unqualified
	Name  string
}

type StarExpr struct {
	Table string // "" for bare '*'
}

type LitString struct{ Value string }
type LitInt struct{ Value int64 }
type LitFloat struct{ Value float64 }
type LitDecimal struct{ Value decimal.Decimal }
type LitBool struct{ Value bool }
type LitNull struct{}

type FunctionExpr struct {
	Name     string
	Args     []Expr
	Distinct bool
}

type CaseWhen struct {
	Condition Expr
	Result    Expr
}

type CaseExpr struct {
	Operand     Expr // optional
	WhenClauses []CaseWhen
	ElseClause  Expr // optional
}

type BinOp string

const (
	OpEq   BinOp = "="
	OpNe   BinOp = "<>"
	OpGt   BinOp = ">"
	OpGte  BinOp = ">="
	OpLt   BinOp = "<"
	OpLte  BinOp = "<="
	OpLike BinOp = "LIKE"
	OpAnd  BinOp = "AND"
	OpOr   BinOp = "OR"
	OpAdd  BinOp = "+"
	OpSub  BinOp = "-"
	OpMul  BinOp = "*"
	OpDiv  BinOp = "/"
)

type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

type InExpr struct {
	Target Expr
	List   []Expr
}

type IsNullExpr struct {
	Target Expr
	Not    bool
}

type NotExpr struct{ Inner Expr }

// WindowExpr is `<func> OVER (PARTITION BY ... ORDER BY ... [frame])`.
type WindowExpr struct {
	Func        Expr
	PartitionBy []Expr
	OrderBy     []OrderExpr
	Frame       string // already-rendered frame clause text, or ""
}

type OrderExpr struct {
	Expr       Expr
	Descending bool
}

// RawExpr passes through pre-rendered SQL text verbatim (used sparingly,
// e.g. translated @atom filter expressions already validated as SQL).
type RawExpr struct{ SQL string }

func (ColumnExpr) isExpr()  {}
func (StarExpr) isExpr()   {}
func (LitString) isExpr()  {}
func (LitInt) isExpr()     {}
func (LitFloat) isExpr()   {}
func (LitDecimal) isExpr() {}
func (LitBool) isExpr()    {}
func (LitNull) isExpr()    {}
func (FunctionExpr) isExpr() {}
func (CaseExpr) isExpr()    {}
func (BinaryExpr) isExpr()  {}
func (InExpr) isExpr()      {}
func (IsNullExpr) isExpr()  {}
func (NotExpr) isExpr()     {}
func (WindowExpr) isExpr()  {}
func (RawExpr) isExpr()     {}

// Col builds an unqualified column reference.
func Col(name string) Expr { return ColumnExpr{Name: name} }

// TableCol builds a table-qualified column reference.
func TableCol(table, name string) Expr { return ColumnExpr{Table: table, Name: name} }

// Star builds '*' or 'table.*'.
func Star(table string) Expr { return StarExpr{Table: table} }

// And ANDs two expressions together.
func And(a, b Expr) Expr { return BinaryExpr{Op: OpAnd, Left: a, Right: b} }

// AndAll ANDs a non-empty list of expressions together, left to right.
func AndAll(exprs []Expr) Expr {
	if len(exprs) == 0 {
		return LitBool{Value: true}
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = And(out, e)
	}
	return out
}

// Eq builds an equality comparison.
func Eq(a, b Expr) Expr { return BinaryExpr{Op: OpEq, Left: a, Right: b} }

// Coalesce builds a COALESCE(...) call.
func Coalesce(args []Expr) Expr { return FunctionExpr{Name: "COALESCE", Args: args} }

// NullIf builds a NULLIF(a, b) call.
func NullIf(a, b Expr) Expr { return FunctionExpr{Name: "NULLIF", Args: []Expr{a, b}} }

// Func builds a plain function call.
func Func(name string, args ...Expr) Expr { return FunctionExpr{Name: name, Args: args} }

// FuncDistinct builds a DISTINCT function call, e.g. COUNT(DISTINCT x).
func FuncDistinct(name string, args ...Expr) Expr {
	return FunctionExpr{Name: name, Args: args, Distinct: true}
}
