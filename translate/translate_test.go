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

package translate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
)

func reportFixtureModel() *model.Model {
	m := model.NewModel()
	m.Entities["orders"] = &model.SourceEntity{
		Name: "orders", Schema: "dbo", Table: "orders",
		Columns: map[string]*model.Column{
			"order_id":    {LogicalName: "order_id", PhysicalName: "order_id", Type: model.TypeInt64, PrimaryKey: true},
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64},
			"amount":      {LogicalName: "amount", PhysicalName: "amount", Type: model.TypeDecimal},
			"region":      {LogicalName: "region", PhysicalName: "region", Type: model.TypeString},
		},
	}
	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:  "orders_fact",
		Grain: model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures: map[string]*model.MeasureDef{
			"revenue":     {Name: "revenue", Aggregation: model.AggSum, SourceColumn: "amount"},
			"order_count": {Name: "order_count", Aggregation: model.AggCount, SourceColumn: "*"},
		},
		Materialized: true,
		TargetTable:  "dbo.orders_fact",
	}
	return m
}

func TestTranslate_SimpleMeasureAndInlineSlicer(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name: "top_orders",
		From: []string{"orders_fact"},
		Group: []model.GroupItem{
			{InlineSlicer: &model.InlineSlicerRef{Name: "region"}},
		},
		Show: []model.ShowItem{
			{Measure: &model.MeasureShow{Name: "revenue"}},
		},
	}

	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Equal(t, "orders_fact", *q.From)
	require.Len(t, q.GroupBy, 1)
	require.Equal(t, "orders_fact", q.GroupBy[0].Entity)
	require.Equal(t, "region", q.GroupBy[0].Field)
	require.Len(t, q.Select, 1)
}

func TestTranslate_NoFromEntity(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{Name: "bad"}
	_, err := Translate(r, m)
	require.Error(t, err)
	require.True(t, semantic.ErrInvalidReference.Is(err))
}

func TestTranslate_MultipleFromEntitiesRejected(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{Name: "bad", From: []string{"orders_fact", "orders"}}
	_, err := Translate(r, m)
	require.Error(t, err)
	require.True(t, semantic.ErrInvalidReference.Is(err))
}

func TestTranslate_PeriodNotSupported(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name:   "p",
		From:   []string{"orders_fact"},
		Period: &model.PeriodExpr{Relative: "this_month"},
	}
	_, err := Translate(r, m)
	require.Error(t, err)
	require.True(t, semantic.ErrPeriodNotSupported.Is(err))
}

func TestTranslate_TimeSuffixYtd(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name: "ytd_report",
		From: []string{"orders_fact"},
		Show: []model.ShowItem{
			{MeasureWithSuffix: &model.MeasureSuffixShow{Name: "revenue", Suffix: model.SuffixYtd}},
		},
	}
	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Len(t, q.Select, 1)
	require.Len(t, q.Derived, 1)
	require.Equal(t, "revenue_ytd", q.Derived[0].Alias)
	tf, ok := q.Derived[0].Expression.(semantic.TimeFunctionExpr)
	require.True(t, ok)
	require.Equal(t, semantic.TFYearToDate, tf.Fn.Kind)
}

func TestTranslate_TimeSuffixYoyGrowth(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name: "growth_report",
		From: []string{"orders_fact"},
		Show: []model.ShowItem{
			{MeasureWithSuffix: &model.MeasureSuffixShow{Name: "revenue", Suffix: model.SuffixYoyGrowth, Label: "yoy"}},
		},
	}
	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Equal(t, "yoy", q.Derived[0].Alias)
	_, ok := q.Derived[0].Expression.(semantic.GrowthExpr)
	require.True(t, ok)
}

func TestTranslate_UnknownMeasureRejected(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name: "bad",
		From: []string{"orders_fact"},
		Show: []model.ShowItem{
			{Measure: &model.MeasureShow{Name: "does_not_exist"}},
		},
	}
	_, err := Translate(r, m)
	require.Error(t, err)
	require.True(t, semantic.ErrUnknownMeasure.Is(err))
}

func TestTranslate_InlineMeasureArithmetic(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name: "inline",
		From: []string{"orders_fact"},
		Show: []model.ShowItem{
			{InlineMeasure: &model.InlineMeasureShow{Name: "avg_order_value", Expr: "revenue / order_count"}},
		},
	}
	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Len(t, q.Derived, 1)
	require.Equal(t, "avg_order_value", q.Derived[0].Alias)
	_, ok := q.Derived[0].Expression.(semantic.BinaryOpExpr)
	require.True(t, ok)
}

func TestTranslate_SortAndLimit(t *testing.T) {
	m := reportFixtureModel()
	limit := uint64(5)
	r := &model.Report{
		Name:  "sorted",
		From:  []string{"orders_fact"},
		Limit: &limit,
		Sort:  []model.SortItem{{Column: "revenue", Direction: model.SortDesc}},
	}
	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Equal(t, &limit, q.Limit)
	require.Len(t, q.OrderBy, 1)
	require.True(t, q.OrderBy[0].Descending)
}

func TestTranslate_FilterAtomSubstitution(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name:    "filtered",
		From:    []string{"orders_fact"},
		Filters: []string{"@region = 'EMEA'"},
	}
	q, err := Translate(r, m)
	require.NoError(t, err)
	require.Len(t, q.RawFilters, 1)
	require.Contains(t, q.RawFilters[0], "dbo.orders.region")
}

func TestTranslate_FilterUnknownAtomRejected(t *testing.T) {
	m := reportFixtureModel()
	r := &model.Report{
		Name:    "filtered",
		From:    []string{"orders_fact"},
		Filters: []string{"@ghost = 1"},
	}
	_, err := Translate(r, m)
	require.Error(t, err)
	require.True(t, semantic.ErrUnknownField.Is(err))
}
