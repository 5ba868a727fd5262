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

	"github.com/sqlplan/semantiq/sqlast"
)

// TimeEmitter renders a TimeFunction into a window-function expression
// (spec.md §4.6.1). It never touches the dialect layer directly; the
// resulting sqlast.WindowExpr is rendered by sqlast.Serializer like any
// other expression.
type TimeEmitter struct {
	// MeasureExpr renders the measure an Emitter already knows how to
	// build (including its own CASE-wrapped filter), so the window table
	// never has to re-derive aggregate SQL.
	MeasureExpr func(measureName string) (sqlast.Expr, error)
}

func NewTimeEmitter(measureExpr func(string) (sqlast.Expr, error)) *TimeEmitter {
	return &TimeEmitter{MeasureExpr: measureExpr}
}

// Emit renders one TimeFunction given the query's group-by columns, used
// to derive a sensible PARTITION BY for the window (every group-by column
// except the function's order/period column).
func (te *TimeEmitter) Emit(fn TimeFunction, groupBy []ResolvedColumn) (sqlast.Expr, error) {
	measure, err := te.MeasureExpr(fn.Measure)
	if err != nil {
		return nil, err
	}

	switch fn.Kind {
	case TFYearToDate:
		return te.runningTotal(measure, fn.YearColumn, requireCol(fn.PeriodColumn, fn.DayColumn), groupBy, fn)
	case TFQuarterToDate:
		return te.runningTotal(measure, fn.QuarterColumn, requireCol(fn.PeriodColumn, fn.DayColumn), groupBy, fn)
	case TFMonthToDate:
		return te.runningTotal(measure, fn.MonthColumn, requireCol(fn.PeriodColumn, fn.DayColumn), groupBy, fn)
	case TFPriorPeriod:
		orderCol := requireCol(fn.PeriodColumn, fn.DayColumn)
		return te.lag(measure, orderCol, groupBy, fn, fn.PeriodsBack), nil
	case TFPriorYear:
		orderCol := requireCol(fn.YearColumn, fn.PeriodColumn)
		return te.lag(measure, orderCol, groupBy, fn, 1), nil
	case TFPriorQuarter:
		orderCol := requireCol(fn.QuarterColumn, fn.PeriodColumn)
		return te.lag(measure, orderCol, groupBy, fn, 1), nil
	case TFRollingSum:
		orderCol := requireCol(fn.PeriodColumn, fn.DayColumn)
		return te.rollingFrame(measure, orderCol, groupBy, fn, fn.Periods), nil
	case TFRollingAvg:
		orderCol := requireCol(fn.PeriodColumn, fn.DayColumn)
		return te.rollingAvgFrame(measure, orderCol, groupBy, fn, fn.Periods), nil
	default:
		return nil, ErrQueryPlanError.New(fmt.Sprintf("unsupported time function kind %q", fn.Kind))
	}
}

func requireCol(preferred, fallback *string) string {
	if preferred != nil {
		return *preferred
	}
	if fallback != nil {
		return *fallback
	}
	return ""
}

// partitionBy returns every group-by column not equal to exclude (the
// function's order/period column), qualified by its entity alias when it
// appears in the group-by list and left as a bare column name otherwise.
func (te *TimeEmitter) partitionBy(groupBy []ResolvedColumn, exclude string) []sqlast.Expr {
	var out []sqlast.Expr
	for _, c := range groupBy {
		if c.PhysicalName == exclude || c.LogicalName == exclude {
			continue
		}
		out = append(out, sqlast.TableCol(c.EntityAlias, c.PhysicalName))
	}
	return out
}

// groupByContains reports whether col names a column already present in
// groupBy (by physical or logical name).
func groupByContains(groupBy []ResolvedColumn, col string) bool {
	for _, c := range groupBy {
		if c.PhysicalName == col || c.LogicalName == col {
			return true
		}
	}
	return false
}

// qualifyTimeCol renders col as a table-qualified reference when it
// matches a group-by column (spec.md §4.6.1: "prefer a column in
// group_by_cols whose column-name matches"), or a bare column otherwise.
func qualifyTimeCol(groupBy []ResolvedColumn, col string) sqlast.Expr {
	for _, c := range groupBy {
		if c.PhysicalName == col || c.LogicalName == col {
			return sqlast.TableCol(c.EntityAlias, c.PhysicalName)
		}
	}
	return sqlast.Col(col)
}

// runningTotal builds the YTD/QTD/MTD window: partition by the grain
// columns (everything in group_by except the order/period column),
// ordered by the period column, running from the start of the frame
// (spec.md §4.6.1).
func (te *TimeEmitter) runningTotal(measure sqlast.Expr, grainCol *string, orderCol string, groupBy []ResolvedColumn, fn TimeFunction) (sqlast.Expr, error) {
	if grainCol == nil {
		return nil, ErrQueryPlanError.New(fmt.Sprintf("time function on %q is missing its period-grain column", fn.Measure))
	}
	partitions := te.partitionBy(groupBy, orderCol)
	if !groupByContains(groupBy, *grainCol) {
		partitions = append(partitions, qualifyTimeCol(groupBy, *grainCol))
	}
	return sqlast.WindowExpr{
		Func:        sqlast.Func(aggFuncNameForWindow(measure), measure),
		PartitionBy: partitions,
		OrderBy:     []sqlast.OrderExpr{{Expr: qualifyTimeCol(groupBy, orderCol)}},
		Frame:       "ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW",
	}, nil
}

func (te *TimeEmitter) lag(measure sqlast.Expr, orderCol string, groupBy []ResolvedColumn, fn TimeFunction, periodsBack int) sqlast.Expr {
	partitions := te.partitionBy(groupBy, orderCol)
	return sqlast.WindowExpr{
		Func:        sqlast.Func("LAG", measure, sqlast.LitInt{Value: int64(periodsBack)}),
		PartitionBy: partitions,
		OrderBy:     []sqlast.OrderExpr{{Expr: qualifyTimeCol(groupBy, orderCol)}},
	}
}

func (te *TimeEmitter) rollingFrame(measure sqlast.Expr, orderCol string, groupBy []ResolvedColumn, fn TimeFunction, periods int) sqlast.Expr {
	partitions := te.partitionBy(groupBy, orderCol)
	return sqlast.WindowExpr{
		Func:        sqlast.Func("SUM", measure),
		PartitionBy: partitions,
		OrderBy:     []sqlast.OrderExpr{{Expr: qualifyTimeCol(groupBy, orderCol)}},
		Frame:       fmt.Sprintf("ROWS BETWEEN %d PRECEDING AND CURRENT ROW", periods-1),
	}
}

func (te *TimeEmitter) rollingAvgFrame(measure sqlast.Expr, orderCol string, groupBy []ResolvedColumn, fn TimeFunction, periods int) sqlast.Expr {
	partitions := te.partitionBy(groupBy, orderCol)
	return sqlast.WindowExpr{
		Func:        sqlast.Func("AVG", measure),
		PartitionBy: partitions,
		OrderBy:     []sqlast.OrderExpr{{Expr: qualifyTimeCol(groupBy, orderCol)}},
		Frame:       fmt.Sprintf("ROWS BETWEEN %d PRECEDING AND CURRENT ROW", periods-1),
	}
}

// aggFuncNameForWindow recovers the outer aggregate function name so a
// running total reuses the measure's own aggregation (SUM stays SUM, AVG
// stays AVG) instead of hard-coding SUM for every grain.
func aggFuncNameForWindow(measure sqlast.Expr) string {
	if f, ok := measure.(sqlast.FunctionExpr); ok {
		return f.Name
	}
	return "SUM"
}
