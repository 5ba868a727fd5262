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

package pivot

import (
	"fmt"
	"strings"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
	"github.com/sqlplan/semantiq/sqlast"
)

// Emitter is the PivotEmitter (spec.md §4.9). It returns raw SQL rather
// than a sqlast.Query: pivot syntax varies too much between dialects to
// fit the query builder cleanly.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

// Emit renders a Plan as dialect-specific SQL.
func (e *Emitter) Emit(plan *Plan, dialect sqlast.Dialect) (string, error) {
	switch dialect {
	case sqlast.DuckDb, sqlast.Snowflake, sqlast.Databricks:
		return e.emitNativePivot(plan, dialect)
	case sqlast.TSql:
		return e.emitTSQL(plan, dialect)
	case sqlast.Postgres, sqlast.MySql, sqlast.BigQuery, sqlast.Redshift:
		return e.emitConditionalAggregation(plan, dialect)
	default:
		return "", semantic.ErrQueryPlanError.New(fmt.Sprintf("unsupported pivot dialect %q", dialect))
	}
}

// qualify returns the way a "entity.column" reference should render: the
// entity's own alias when it is the source fact or reached via a required
// join (every reachable entity keeps its logical alias in the FROM/JOIN
// clause), qualified with the serializer's quoting rules.
func qualify(s *sqlast.Serializer, entity, column string) string {
	return s.RenderExpr(sqlast.TableCol(entity, column))
}

func sourceFromClause(plan *Plan, s *sqlast.Serializer) string {
	var b strings.Builder
	table := sqlast.NewTableRef(plan.SourceTable).WithAlias(plan.SourceFact)
	if plan.SourceSchema != "" {
		table = table.WithSchema(plan.SourceSchema)
	}
	b.WriteString(s.RenderTableRef(table))
	for _, j := range plan.RequiredJoins {
		b.WriteString(fmt.Sprintf("\n    INNER JOIN %s ON %s = %s",
			j.ToEntity, qualify(s, j.FromEntity, j.FromColumn), qualify(s, j.ToEntity, j.ToColumn)))
	}
	return b.String()
}

func measureExpr(m Measure) string {
	if m.SourceColumn == "*" {
		return "*"
	}
	return fmt.Sprintf("%s.%s", m.EntityAlias, m.SourceColumn)
}

// emitNativePivot renders DuckDB/Snowflake/Databricks native PIVOT syntax.
func (e *Emitter) emitNativePivot(plan *Plan, dialect sqlast.Dialect) (string, error) {
	s := sqlast.NewSerializer(dialect)
	var b strings.Builder

	b.WriteString("PIVOT (\n    SELECT\n")
	for i, dim := range plan.RowDimensions {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(fmt.Sprintf("        %s", qualify(s, dim.Entity, dim.Column)))
	}
	if len(plan.RowDimensions) > 0 {
		b.WriteString(",\n")
	}
	b.WriteString(fmt.Sprintf("        %s AS pivot_col", qualify(s, plan.ColumnDimension.Entity, plan.ColumnDimension.Column)))
	for _, m := range plan.ValueMeasures {
		b.WriteString(fmt.Sprintf(",\n        %s", measureExpr(m)))
	}
	b.WriteString(fmt.Sprintf("\n    FROM %s", sourceFromClause(plan, s)))
	if len(plan.Filters) > 0 {
		b.WriteString("\n    WHERE ")
		b.WriteString(strings.Join(plan.Filters, " AND "))
	}
	b.WriteString("\n)\n")

	b.WriteString("ON pivot_col\n")
	b.WriteString("USING ")
	usings := make([]string, 0, len(plan.ValueMeasures))
	for _, m := range plan.ValueMeasures {
		usings = append(usings, fmt.Sprintf("%s(%s) AS %s", m.Aggregation.SQL(), measureExpr(m), m.Alias))
	}
	b.WriteString(strings.Join(usings, ", "))

	if len(plan.RowDimensions) > 0 {
		b.WriteString("\nGROUP BY ")
		cols := make([]string, 0, len(plan.RowDimensions))
		for _, d := range plan.RowDimensions {
			cols = append(cols, qualify(s, d.Entity, d.Column))
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	return b.String(), nil
}

// emitConditionalAggregation renders Postgres/MySQL/BigQuery/Redshift
// CASE-WHEN conditional-aggregation syntax.
func (e *Emitter) emitConditionalAggregation(plan *Plan, dialect sqlast.Dialect) (string, error) {
	if plan.ColumnValues.Kind != model.PivotColumnsExplicit {
		return "", semantic.ErrInvalidModel.New(fmt.Sprintf("%s pivot requires explicit column values", dialect))
	}
	s := sqlast.NewSerializer(dialect)
	var b strings.Builder
	b.WriteString("SELECT\n")

	for i, dim := range plan.RowDimensions {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(fmt.Sprintf("    %s", qualify(s, dim.Entity, dim.Column)))
	}

	for _, value := range plan.ColumnValues.Values {
		for _, m := range plan.ValueMeasures {
			colLit := s.RenderExpr(sqlast.LitString{Value: value})
			suffix := strings.ReplaceAll(strings.ReplaceAll(value, "-", "_"), " ", "_")
			val := measureExpr(m)
			if m.SourceColumn != "*" {
				val = qualify(s, m.EntityAlias, m.SourceColumn)
			}
			b.WriteString(fmt.Sprintf(",\n    %s(CASE WHEN %s = %s THEN %s END) AS %s_%s",
				m.Aggregation.SQL(), qualify(s, plan.ColumnDimension.Entity, plan.ColumnDimension.Column), colLit, val, suffix, m.Alias))
		}
	}

	if plan.Totals.Rows {
		for _, m := range plan.ValueMeasures {
			b.WriteString(fmt.Sprintf(",\n    %s(%s) AS Total_%s", m.Aggregation.SQL(), measureExpr(m), m.Alias))
		}
	}

	b.WriteString(fmt.Sprintf("\nFROM %s", sourceFromClause(plan, s)))
	if len(plan.Filters) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(plan.Filters, " AND "))
	}
	if len(plan.RowDimensions) > 0 {
		b.WriteString("\nGROUP BY ")
		cols := make([]string, 0, len(plan.RowDimensions))
		for _, d := range plan.RowDimensions {
			cols = append(cols, qualify(s, d.Entity, d.Column))
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	if plan.Sort != nil {
		dir := "ASC"
		if plan.Sort.Descending {
			dir = "DESC"
		}
		b.WriteString(fmt.Sprintf("\nORDER BY Total_%s %s", plan.Sort.ByMeasure, dir))
	}
	return b.String(), nil
}

// emitTSQL renders T-SQL's bracketed PIVOT syntax. T-SQL's native PIVOT
// clause aggregates exactly one value expression, so a plan with more than
// one value measure is rejected rather than silently dropping the rest
// (SPEC_FULL.md §4.9).
func (e *Emitter) emitTSQL(plan *Plan, dialect sqlast.Dialect) (string, error) {
	if plan.ColumnValues.Kind != model.PivotColumnsExplicit {
		return "", semantic.ErrInvalidModel.New("T-SQL pivot requires explicit column values")
	}
	if len(plan.ValueMeasures) > 1 {
		return "", semantic.ErrQueryPlanError.New(fmt.Sprintf("T-SQL PIVOT supports exactly one value measure per pivot; got %d", len(plan.ValueMeasures)))
	}
	s := sqlast.NewSerializer(dialect)
	measure := plan.ValueMeasures[0]

	var b strings.Builder
	b.WriteString("SELECT ")
	rowCols := make([]string, 0, len(plan.RowDimensions))
	for _, d := range plan.RowDimensions {
		rowCols = append(rowCols, d.Column)
	}
	b.WriteString(strings.Join(rowCols, ", "))
	for _, value := range plan.ColumnValues.Values {
		b.WriteString(fmt.Sprintf(", [%s]", value))
	}

	b.WriteString("\nFROM (\n    SELECT ")
	for _, dim := range plan.RowDimensions {
		b.WriteString(fmt.Sprintf("%s, ", qualify(s, dim.Entity, dim.Column)))
	}
	b.WriteString(fmt.Sprintf("%s, ", qualify(s, plan.ColumnDimension.Entity, plan.ColumnDimension.Column)))
	b.WriteString(measureExpr(measure))
	b.WriteString(fmt.Sprintf("\n    FROM %s", sourceFromClause(plan, s)))
	if len(plan.Filters) > 0 {
		b.WriteString("\n    WHERE ")
		b.WriteString(strings.Join(plan.Filters, " AND "))
	}
	b.WriteString("\n) src\n")

	b.WriteString(fmt.Sprintf("PIVOT (%s(%s) FOR %s IN (",
		measure.Aggregation.SQL(), measureExpr(measure), plan.ColumnDimension.Column))
	bracketed := make([]string, 0, len(plan.ColumnValues.Values))
	for _, v := range plan.ColumnValues.Values {
		bracketed = append(bracketed, fmt.Sprintf("[%s]", v))
	}
	b.WriteString(strings.Join(bracketed, ", "))
	b.WriteString(")) piv")

	if plan.Sort != nil {
		dir := "ASC"
		if plan.Sort.Descending {
			dir = "DESC"
		}
		b.WriteString(fmt.Sprintf("\nORDER BY [%s] %s", plan.Sort.ByMeasure, dir))
	}
	return b.String(), nil
}
