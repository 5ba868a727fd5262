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

package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
	"github.com/sqlplan/semantiq/sqlast"
)

// scenario 1 (spec.md §8.3): single-fact top regions.
func TestCompile_SingleFactTopRegions(t *testing.T) {
	m := scenarioModel()
	c, err := New(m)
	require.NoError(t, err)

	limit := uint64(10)
	q := &semantic.SemanticQuery{
		From:   strPtr("orders_fact"),
		Select: []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("customers", "region")},
		OrderBy: []semantic.OrderField{{Field: semantic.NewFieldRef("orders_fact", "revenue"), Descending: true}},
		Limit:  &limit,
	}

	sql, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)

	require.Contains(t, sql, "SUM(")
	require.Contains(t, sql, `"dbo"."customers"`)
	require.Contains(t, sql, "customer_id")
	require.Contains(t, sql, `GROUP BY "customers"."region"`)
	require.Contains(t, sql, "ORDER BY")
	require.Contains(t, sql, "DESC")
	require.Contains(t, sql, "LIMIT 10")
}

// scenario 2: unsafe fan-out rejected.
func TestCompile_UnsafeFanOutRejected(t *testing.T) {
	m := scenarioModel()
	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		From:   strPtr("customers"),
		Select: []semantic.SelectField{semantic.NewSelectField("orders", "amount")},
	}

	_, err = c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.Error(t, err)
	require.True(t, semantic.ErrUnsafeJoinPath.Is(err))
}

// scenario 3: virtual fact reconstruction.
func TestCompile_VirtualFactReconstruction(t *testing.T) {
	m := scenarioModel()
	m.Facts["orders_fact"].Materialized = false

	c, err := New(m)
	require.NoError(t, err)

	limit := uint64(10)
	q := &semantic.SemanticQuery{
		From:    strPtr("orders_fact"),
		Select:  []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("customers", "region")},
		OrderBy: []semantic.OrderField{{Field: semantic.NewFieldRef("orders_fact", "revenue"), Descending: true}},
		Limit:   &limit,
	}

	sql, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)

	require.Contains(t, sql, `"dbo"."orders"`)
	require.NotContains(t, sql, `"dbo"."orders_fact"`)
	require.Contains(t, sql, "SUM(")
	require.Contains(t, sql, "amount")
}

// scenario 4: type mismatch.
func TestCompile_TypeMismatch(t *testing.T) {
	m := scenarioModel()
	m.Entities["customers"].Columns["customer_id"].Type = "string"

	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		From:    strPtr("orders_fact"),
		Select:  []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("customers", "region")},
	}

	_, err = c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.Error(t, err)
	require.True(t, semantic.ErrTypeMismatch.Is(err))
}

// scenario 5: YTD window function.
func TestCompile_YearToDateWindow(t *testing.T) {
	m := scenarioModel()
	m.Entities["dates"] = &model.SourceEntity{
		Name: "dates", Schema: "dbo", Table: "dim_dates",
		Columns: map[string]*model.Column{
			"date_id": {LogicalName: "date_id", PhysicalName: "date_id", Type: model.TypeInt32, PrimaryKey: true},
			"year":    {LogicalName: "year", PhysicalName: "year", Type: model.TypeInt32},
			"month":   {LogicalName: "month", PhysicalName: "month", Type: model.TypeInt32},
		},
		RowCountHint: 3_650,
	}
	m.Entities["orders_fact"].Columns["date_id"] = &model.Column{LogicalName: "date_id", PhysicalName: "date_id", Type: model.TypeInt32}
	m.Relationships = append(m.Relationships,
		&model.Relationship{FromEntity: "orders_fact", FromColumn: "date_id", ToEntity: "dates", ToColumn: "date_id", Cardinality: model.ManyToOne},
	)

	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		From:    strPtr("orders_fact"),
		Select:  []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("dates", "year"), semantic.NewFieldRef("dates", "month")},
		Derived: []semantic.DerivedField{{
			Alias: "ytd_revenue",
			Expression: semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{
				Kind:         semantic.TFYearToDate,
				Measure:      "revenue",
				YearColumn:   strPtr("year"),
				PeriodColumn: strPtr("month"),
			}},
		}},
	}

	sql, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	// the year column is the partition's grain, the month column is the
	// running order: asserting the whole OVER(...) clause (rather than
	// its pieces, which also appear in the GROUP BY) is what actually
	// exercises spec.md §4.6.1's partition/order split.
	require.Contains(t, sql, `OVER (PARTITION BY "dates"."year" ORDER BY "dates"."month" ASC ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)`)
}

// scenario 6: multi-fact report (FULL OUTER JOIN symmetric aggregate).
func TestCompile_MultiFactReport(t *testing.T) {
	m := withInventoryFact(scenarioModel())
	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		Select: []semantic.SelectField{
			semantic.NewSelectField("orders_fact", "revenue"),
			semantic.NewSelectField("inventory_fact", "stock_value"),
		},
		Filters: []semantic.FieldFilter{{
			Field: semantic.NewFieldRef("customers", "region"),
			Op:    semantic.OpEq,
			Value: semantic.StringValue("EMEA"),
		}},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("date", "month")},
	}

	sql, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)

	require.Contains(t, sql, "FULL OUTER JOIN")
	require.Contains(t, sql, "orders_fact_revenue")
	require.Contains(t, sql, "inventory_fact_stock_value")
	require.Contains(t, sql, "COALESCE(")

	// the region filter must appear exactly once (only in the orders_fact
	// CTE, which has a safe path to customers) and not leak into the
	// inventory_fact CTE (its only path to customers goes through date and
	// orders_fact, which fans out and so is not safe).
	require.Equal(t, 1, strings.Count(sql, "EMEA"))
}

// Dialect independence of semantics: only lexical form changes across
// dialects for an otherwise identical plan (spec.md §8.2).
func TestCompile_DialectIndependence(t *testing.T) {
	m := scenarioModel()
	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		From:    strPtr("orders_fact"),
		Select:  []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("customers", "region")},
	}

	pg, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	tsql, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.TSql})
	require.NoError(t, err)

	require.Contains(t, pg, `"customers"`)
	require.Contains(t, tsql, `[customers]`)
}

// Determinism: identical inputs compile to byte-identical SQL.
func TestCompile_Deterministic(t *testing.T) {
	m := scenarioModel()
	c, err := New(m)
	require.NoError(t, err)

	q := &semantic.SemanticQuery{
		From:    strPtr("orders_fact"),
		Select:  []semantic.SelectField{semantic.NewSelectField("orders_fact", "revenue")},
		GroupBy: []semantic.FieldRef{semantic.NewFieldRef("customers", "region")},
	}

	first, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	second, err := c.Plan(context.Background(), q, Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func strPtr(s string) *string { return &s }

// CompileReport end to end with a growth-suffix show item: exercises the
// translate -> resolve -> emit path for a DerivedExpr built from a
// MeasureRefExpr, which must carry a fully qualified "entity.measure" name
// for the resolver to bind it back to its owning fact.
func TestCompile_ReportYoyGrowth(t *testing.T) {
	m := scenarioModel()
	m.Reports = map[string]*model.Report{
		"revenue_growth": {
			Name: "revenue_growth",
			From: []string{"orders_fact"},
			Show: []model.ShowItem{
				{MeasureWithSuffix: &model.MeasureSuffixShow{Name: "revenue", Suffix: model.SuffixYoyGrowth, Label: "yoy"}},
			},
		},
	}

	c, err := New(m)
	require.NoError(t, err)

	sql, err := c.CompileReport(context.Background(), "revenue_growth", Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	require.Contains(t, sql, "SUM(")
	require.Contains(t, sql, "LAG(")
	require.Contains(t, sql, "NULLIF(")
	require.Contains(t, sql, "100")
}

// CompileReport end to end with an inline arithmetic measure.
func TestCompile_ReportInlineMeasure(t *testing.T) {
	m := scenarioModel()
	m.Reports = map[string]*model.Report{
		"avg_order_value": {
			Name: "avg_order_value",
			From: []string{"orders_fact"},
			Show: []model.ShowItem{
				{InlineMeasure: &model.InlineMeasureShow{Name: "avg_order_value", Expr: "revenue / order_count"}},
			},
		},
	}

	c, err := New(m)
	require.NoError(t, err)

	sql, err := c.CompileReport(context.Background(), "avg_order_value", Options{Dialect: sqlast.Postgres})
	require.NoError(t, err)
	require.Contains(t, sql, "SUM(")
	require.Contains(t, sql, "COUNT(")
}
