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

// Package semantic holds the canonical SemanticQuery IR, the Resolved*
// and LogicalPlan tagged-variant trees, and the five compile phases:
// Resolver, Validator, ColumnPruner, LogicalPlanner, Emitter (+TimeEmitter).
package semantic

import "github.com/sqlplan/semantiq/model"

// FieldRef names a field on an entity, e.g. (customers, region).
type FieldRef struct {
	Entity string
	Field  string
}

func NewFieldRef(entity, field string) FieldRef { return FieldRef{Entity: entity, Field: field} }

// FilterOp is the closed set of comparison operators a FieldFilter may use.
type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNe    FilterOp = "ne"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpLike  FilterOp = "like"
	OpIn    FilterOp = "in"
	OpIsNull    FilterOp = "is_null"
	OpIsNotNull FilterOp = "is_not_null"
)

// FilterValue is a tagged union of the literal kinds a filter may compare
// against.
type FilterValue struct {
	String *string
	Int    *int64
	Float  *float64
	Bool   *bool
	Null   bool
	List   []FilterValue
}

func StringValue(s string) FilterValue { return FilterValue{String: &s} }
func IntValue(i int64) FilterValue     { return FilterValue{Int: &i} }
func FloatValue(f float64) FilterValue { return FilterValue{Float: &f} }
func BoolValue(b bool) FilterValue     { return FilterValue{Bool: &b} }

// FieldFilter is one filter condition in a SemanticQuery.
type FieldFilter struct {
	Field FieldRef
	Op    FilterOp
	Value FilterValue
}

// SelectField is one item of a SemanticQuery's select list.
type SelectField struct {
	Field        FieldRef
	Alias        string
	MeasureFilter []FieldFilter // per-measure filter, only legal when Field resolves to a measure
	InlineAgg    string         // non-empty => inline aggregation like SUM(sales.amount)
}

func NewSelectField(entity, field string) SelectField {
	return SelectField{Field: NewFieldRef(entity, field)}
}

func (s SelectField) WithAlias(alias string) SelectField { s.Alias = alias; return s }

// TimeFunction is the closed set of time-intelligence window shapes
// (spec.md §4.6.1).
type TimeFunction struct {
	Kind         TimeFunctionKind
	Measure      string
	YearColumn   *string
	QuarterColumn *string
	MonthColumn  *string
	PeriodColumn *string
	DayColumn    *string
	PeriodsBack  int // PriorPeriod
	Periods      int // RollingSum/RollingAvg
	Via          *string
	// Approximated is set for WeekToDate/PriorWeek/PriorMonth, which
	// currently alias MonthToDate/PriorPeriod(1) (SPEC_FULL.md §4.10).
	Approximated bool
}

type TimeFunctionKind string

const (
	TFYearToDate    TimeFunctionKind = "year_to_date"
	TFQuarterToDate TimeFunctionKind = "quarter_to_date"
	TFMonthToDate   TimeFunctionKind = "month_to_date"
	TFPriorPeriod   TimeFunctionKind = "prior_period"
	TFPriorYear     TimeFunctionKind = "prior_year"
	TFPriorQuarter  TimeFunctionKind = "prior_quarter"
	TFRollingSum    TimeFunctionKind = "rolling_sum"
	TFRollingAvg    TimeFunctionKind = "rolling_avg"
)

// DerivedExpr is a tagged-variant expression tree over measure refs,
// literals, binary ops, time functions, delta and growth.
type DerivedExpr interface{ isDerivedExpr() }

type MeasureRefExpr struct{ Name string }
type LiteralExpr struct{ Value float64 }
type BinaryOp string

const (
	OpAdd BinaryOp = "add"
	OpSub BinaryOp = "sub"
	OpMul BinaryOp = "mul"
	OpDiv BinaryOp = "div"
)

type BinaryOpExpr struct {
	Op          BinaryOp
	Left, Right DerivedExpr
}
type NegateExpr struct{ Inner DerivedExpr }
type TimeFunctionExpr struct{ Fn TimeFunction }
type DeltaExpr struct{ Current, Previous DerivedExpr }
type GrowthExpr struct{ Current, Previous DerivedExpr }

func (MeasureRefExpr) isDerivedExpr()   {}
func (LiteralExpr) isDerivedExpr()      {}
func (BinaryOpExpr) isDerivedExpr()     {}
func (NegateExpr) isDerivedExpr()       {}
func (TimeFunctionExpr) isDerivedExpr() {}
func (DeltaExpr) isDerivedExpr()        {}
func (GrowthExpr) isDerivedExpr()       {}

// DerivedField is a named derived expression in a SemanticQuery.
type DerivedField struct {
	Alias      string
	Expression DerivedExpr
}

// OrderField is one item of a SemanticQuery's order_by list.
type OrderField struct {
	Field      FieldRef
	Descending bool
}

// SemanticQuery is the canonical IR the resolver consumes (spec.md §3.2).
type SemanticQuery struct {
	From      *string
	Filters   []FieldFilter
	GroupBy   []FieldRef
	Select    []SelectField
	Derived   []DerivedField
	OrderBy   []OrderField
	Limit     *uint64
	// RawFilters carries already-@atom-substituted, already-validated SQL
	// filter expressions straight through to the emitted WHERE clause
	// (translate/atoms.go). Unlike Filters, these are opaque text: the
	// resolver/validator do not and cannot inspect their column
	// references, so they never participate in join-safety or type
	// checking. SPEC_FULL.md §4.10 wires this through rather than
	// reproducing `original_source`'s "compiled but not added to
	// query.filters" limitation.
	RawFilters []string
}

// ---- Resolved plan (spec.md §3.4) ----

type ResolvedEntity struct {
	LogicalName    string
	PhysicalTable  string
	PhysicalSchema string
	Materialized   bool
}

type ResolvedColumn struct {
	EntityAlias  string
	LogicalName  string
	PhysicalName string
	Type         model.DataType
	HasType      bool
}

type ResolvedMeasure struct {
	EntityAlias      string
	Name             string
	Aggregation      model.AggKind
	SourceColumn     string
	QueryFilter      []ResolvedFilter
	DefinitionFilter string // already @atom-substituted SQL, if any
}

type ResolvedFilter struct {
	Column ResolvedColumn
	Op     FilterOp
	Value  FilterValue
}

// ResolvedSelect is a tagged variant: Column | Measure | Aggregate | Derived.
type ResolvedSelect interface{ isResolvedSelect() }

type SelectColumn struct {
	Column ResolvedColumn
	Alias  string
}
type SelectMeasure struct {
	Measure ResolvedMeasure
	Alias   string
}
type SelectAggregate struct {
	Column ResolvedColumn
	Agg    string // uppercased SQL function name, e.g. SUM/COUNT/AVG
	Alias  string
}
type SelectDerived struct {
	Alias      string
	Expression ResolvedDerivedExpr
}

func (SelectColumn) isResolvedSelect()    {}
func (SelectMeasure) isResolvedSelect()   {}
func (SelectAggregate) isResolvedSelect() {}
func (SelectDerived) isResolvedSelect()   {}

// ResolvedDerivedExpr mirrors DerivedExpr but with measures/columns bound.
type ResolvedDerivedExpr interface{ isResolvedDerivedExpr() }

type RMeasureRef struct{ Measure ResolvedMeasure }
type RLiteral struct{ Value float64 }
type RBinaryOp struct {
	Op          BinaryOp
	Left, Right ResolvedDerivedExpr
}
type RNegate struct{ Inner ResolvedDerivedExpr }
type RTimeFunction struct{ Fn TimeFunction }
type RDelta struct{ Current, Previous ResolvedDerivedExpr }
type RGrowth struct{ Current, Previous ResolvedDerivedExpr }

func (RMeasureRef) isResolvedDerivedExpr()    {}
func (RLiteral) isResolvedDerivedExpr()       {}
func (RBinaryOp) isResolvedDerivedExpr()      {}
func (RNegate) isResolvedDerivedExpr()        {}
func (RTimeFunction) isResolvedDerivedExpr()  {}
func (RDelta) isResolvedDerivedExpr()         {}
func (RGrowth) isResolvedDerivedExpr()        {}

type ResolvedOrder struct {
	Select     ResolvedSelect
	Descending bool
}

// ResolvedQuery is the Resolver's (Phase 1) output for single-fact mode.
type ResolvedQuery struct {
	From             string
	Anchors          []string // sorted fact names
	Filters          []ResolvedFilter
	GroupBy          []ResolvedColumn
	Select           []ResolvedSelect
	OrderBy          []ResolvedOrder
	Limit            *uint64
	ReferencedEntities []string // sorted, de-duplicated
	RawFilters       []string // see SemanticQuery.RawFilters
}

// FactJoinKey is one equi-join key between a fact and a shared dimension.
type FactJoinKey struct {
	FactColumn     string
	Dimension      string
	DimensionColumn string
}

// FactAggregate is one anchor fact's worth of multi-fact planning input.
type FactAggregate struct {
	Anchor   string
	CteAlias string
	Measures []ResolvedMeasure
	JoinKeys []FactJoinKey
}

// MultiFactQuery is the Resolver's output when more than one anchor fact
// is detected (spec.md §4.2 step 2).
type MultiFactQuery struct {
	FactAggregates   []FactAggregate
	SharedDimensions []string
	GlobalFilters    []ResolvedFilter
	OrderBy          []ResolvedOrder
	Limit            *uint64
}

// ResolvedQueryPlan is Single or Multi.
type ResolvedQueryPlan struct {
	Single *ResolvedQuery
	Multi  *MultiFactQuery
}

// ---- Validated plan ----

type ValidatedQuery struct {
	Query      *ResolvedQuery
	JoinTree   JoinTreeView
	EntityInfo map[string]ResolvedEntity
}

// JoinTreeView decouples semantic from graph's concrete Edge type while
// still carrying everything the logical planner needs.
type JoinTreeView struct {
	Root   string
	Edges  []JoinEdge
	IsSafe bool
}

type JoinEdge struct {
	FromEntity string
	FromColumn string
	ToEntity   string
	ToColumn   string
	FanOut     bool
}

// ---- Logical plan (spec.md §3.5) ----

type LogicalPlan interface{ isLogicalPlan() }

type ScanNode struct {
	Entity ResolvedEntity
}

type JoinCondition struct {
	LeftEntity, LeftColumn   string
	RightEntity, RightColumn string
}

type LogicalJoinType string

const (
	JoinInner LogicalJoinType = "inner"
	JoinLeft  LogicalJoinType = "left"
	JoinRight LogicalJoinType = "right"
	JoinFull  LogicalJoinType = "full"
)

type JoinNode struct {
	Left, Right LogicalPlan
	Condition   JoinCondition
	Type        LogicalJoinType
}

type FilterNode struct {
	Input      LogicalPlan
	Filters    []ResolvedFilter
	RawFilters []string // see SemanticQuery.RawFilters
}

type AggregateNode struct {
	Input    LogicalPlan
	GroupBy  []ResolvedColumn
	Measures []ResolvedMeasure
}

type ProjectNode struct {
	Input       LogicalPlan
	Projections []ResolvedSelect
}

type SortNode struct {
	Input   LogicalPlan
	OrderBy []ResolvedOrder
}

type LimitNode struct {
	Input LogicalPlan
	Limit uint64
}

func (ScanNode) isLogicalPlan()      {}
func (JoinNode) isLogicalPlan()      {}
func (FilterNode) isLogicalPlan()    {}
func (AggregateNode) isLogicalPlan() {}
func (ProjectNode) isLogicalPlan()   {}
func (SortNode) isLogicalPlan()      {}
func (LimitNode) isLogicalPlan()     {}
