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

package model

import "time"

// TimeSuffix is a `.ytd`/`.yoy_growth`/... suffix attached to a measure
// reference in a Report's show list.
type TimeSuffix string

const (
	SuffixYtd        TimeSuffix = "ytd"
	SuffixQtd        TimeSuffix = "qtd"
	SuffixMtd        TimeSuffix = "mtd"
	SuffixWtd        TimeSuffix = "wtd"
	SuffixFiscalYtd  TimeSuffix = "fiscal_ytd"
	SuffixFiscalQtd  TimeSuffix = "fiscal_qtd"
	SuffixPriorYear  TimeSuffix = "prior_year"
	SuffixPriorQtr   TimeSuffix = "prior_quarter"
	SuffixPriorMonth TimeSuffix = "prior_month"
	SuffixPriorWeek  TimeSuffix = "prior_week"
	SuffixYoyGrowth  TimeSuffix = "yoy_growth"
	SuffixQoqGrowth  TimeSuffix = "qoq_growth"
	SuffixMomGrowth  TimeSuffix = "mom_growth"
	SuffixWowGrowth  TimeSuffix = "wow_growth"
	SuffixYoyDelta   TimeSuffix = "yoy_delta"
	SuffixQoqDelta   TimeSuffix = "qoq_delta"
	SuffixMomDelta   TimeSuffix = "mom_delta"
	SuffixWowDelta   TimeSuffix = "wow_delta"
	SuffixRolling3m  TimeSuffix = "rolling_3m"
	SuffixRolling6m  TimeSuffix = "rolling_6m"
	SuffixRolling12m TimeSuffix = "rolling_12m"
	SuffixRolling3mAvg  TimeSuffix = "rolling_3m_avg"
	SuffixRolling6mAvg  TimeSuffix = "rolling_6m_avg"
	SuffixRolling12mAvg TimeSuffix = "rolling_12m_avg"
)

// GroupItem is one item of a Report's group-by list.
type GroupItem struct {
	// Exactly one of DrillPath or InlineSlicer is set.
	DrillPath    *DrillPathRef
	InlineSlicer *InlineSlicerRef
	Label        string
}

// DrillPathRef names a calendar drill path level, e.g. dates.standard.month.
type DrillPathRef struct {
	Source string // calendar name
	Path   string // drill path name
	Level  string // grain level name
}

// InlineSlicerRef names a grouping dimension defined directly on a table.
type InlineSlicerRef struct {
	Name string
}

// ShowItem is one item of a Report's show (select) list.
type ShowItem struct {
	Measure         *MeasureShow
	MeasureWithSuffix *MeasureSuffixShow
	InlineMeasure   *InlineMeasureShow
}

type MeasureShow struct {
	Name  string
	Label string
}

type MeasureSuffixShow struct {
	Name   string
	Suffix TimeSuffix
	Label  string
}

type InlineMeasureShow struct {
	Name  string
	Expr  string // bounded arithmetic grammar, SPEC_FULL.md §4.10
	Label string
}

// SortDirection for a Report's sort list.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

type SortItem struct {
	Column    string
	Direction SortDirection
}

// PeriodExpr is carried unexpanded; period->date-filter lowering is out of
// the core (spec.md §9).
type PeriodExpr struct {
	Relative string     // e.g. "this_month", "last_year"; "" if Absolute is set
	Start    *time.Time
	End      *time.Time
}

// Report is a user-authored analytics report in the declarative DSL.
type Report struct {
	Name    string
	From    []string // single-table translation only (SPEC_FULL.md §4.10)
	UseDate []string
	Period  *PeriodExpr
	Group   []GroupItem
	Show    []ShowItem
	Filters []string // raw SQL expressions with @atom tokens
	Sort    []SortItem
	Limit   *uint64
}

// PivotDimension names a row/column dimension for a pivot.
type PivotDimensionRef struct {
	Entity string
	Column string
}

// PivotValueRef names a value measure for a pivot, referencing a fact's
// measure by qualified name ("fact.measure").
type PivotValueRef struct {
	Fact    string
	Measure string
	Alias   string
}

// PivotColumnValuesKind is Dynamic or Explicit.
type PivotColumnValuesKind string

const (
	PivotColumnsDynamic  PivotColumnValuesKind = "dynamic"
	PivotColumnsExplicit PivotColumnValuesKind = "explicit"
)

type PivotColumnValuesSpec struct {
	Kind   PivotColumnValuesKind
	Values []string // only set when Kind == Explicit
}

type PivotTotalsSpec struct {
	Rows    bool
	Columns bool
	Grand   bool
}

type PivotSortSpec struct {
	ByMeasure  string
	Descending bool
}

// PivotReport is a user-authored pivot definition.
type PivotReport struct {
	Name            string
	RowDimensions   []PivotDimensionRef
	ColumnDimension PivotDimensionRef
	ColumnValues    PivotColumnValuesSpec
	ValueMeasures   []PivotValueRef
	Filters         []string
	Totals          PivotTotalsSpec
	Sort            *PivotSortSpec
}
