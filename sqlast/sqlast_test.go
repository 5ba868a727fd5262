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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteIdent_PerDialect(t *testing.T) {
	require.Equal(t, `"region"`, Postgres.QuoteIdent("region"))
	require.Equal(t, "[region]", TSql.QuoteIdent("region"))
	require.Equal(t, "`region`", MySql.QuoteIdent("region"))
	require.Equal(t, `"region"`, DuckDb.QuoteIdent("region"))
	require.Equal(t, `"region"`, Snowflake.QuoteIdent("region"))
	require.Equal(t, `"region"`, BigQuery.QuoteIdent("region"))
}

func TestQuoteIdent_EscapesEmbeddedQuote(t *testing.T) {
	require.Equal(t, `"weird""name"`, Postgres.QuoteIdent(`weird"name`))
	require.Equal(t, "[weird]]name]", TSql.QuoteIdent("weird]name"))
	require.Equal(t, "`weird``name`", MySql.QuoteIdent("weird`name"))
}

func TestQuoteQualified_SkipsEmptyParts(t *testing.T) {
	require.Equal(t, `"customers"`, Postgres.QuoteQualified("", "customers"))
	require.Equal(t, `"dbo"."customers"`, Postgres.QuoteQualified("dbo", "customers"))
	require.Equal(t, "[dbo].[customers]", TSql.QuoteQualified("dbo", "customers"))
}

func TestRenderExpr_ColumnAndLiterals(t *testing.T) {
	s := NewSerializer(Postgres)
	require.Equal(t, `"region"`, s.RenderExpr(Col("region")))
	require.Equal(t, `"customers"."region"`, s.RenderExpr(TableCol("customers", "region")))
	require.Equal(t, "*", s.RenderExpr(Star("")))
	require.Equal(t, `"orders".*`, s.RenderExpr(Star("orders")))
	require.Equal(t, "'it''s'", s.RenderExpr(LitString{Value: "it's"}))
	require.Equal(t, "42", s.RenderExpr(LitInt{Value: 42}))
	require.Equal(t, "TRUE", s.RenderExpr(LitBool{Value: true}))
	require.Equal(t, "FALSE", s.RenderExpr(LitBool{Value: false}))
	require.Equal(t, "NULL", s.RenderExpr(LitNull{}))
}

func TestRenderExpr_FunctionAndDistinct(t *testing.T) {
	s := NewSerializer(Postgres)
	require.Equal(t, `SUM("amount")`, s.RenderExpr(Func("SUM", Col("amount"))))
	require.Equal(t, `COUNT(DISTINCT "customer_id")`, s.RenderExpr(FuncDistinct("COUNT", Col("customer_id"))))
	require.Equal(t, `COALESCE("a", "b")`, s.RenderExpr(Coalesce([]Expr{Col("a"), Col("b")})))
}

func TestRenderExpr_BinaryAndIn(t *testing.T) {
	s := NewSerializer(Postgres)
	require.Equal(t, `("a" = "b")`, s.RenderExpr(Eq(Col("a"), Col("b"))))
	require.Equal(t, `"x" IN (1, 2, 3)`, s.RenderExpr(InExpr{Target: Col("x"), List: []Expr{LitInt{1}, LitInt{2}, LitInt{3}}}))
	require.Equal(t, `"x" IS NULL`, s.RenderExpr(IsNullExpr{Target: Col("x")}))
	require.Equal(t, `"x" IS NOT NULL`, s.RenderExpr(IsNullExpr{Target: Col("x"), Not: true}))
	require.Equal(t, `NOT "x" IS NULL`, s.RenderExpr(NotExpr{Inner: IsNullExpr{Target: Col("x")}}))
}

func TestRenderExpr_AndAll(t *testing.T) {
	s := NewSerializer(Postgres)
	require.Equal(t, "TRUE", s.RenderExpr(AndAll(nil)))
	require.Equal(t, `"a"`, s.RenderExpr(AndAll([]Expr{Col("a")})))
	require.Equal(t, `("a" AND "b")`, s.RenderExpr(AndAll([]Expr{Col("a"), Col("b")})))
}

func TestRenderExpr_Window(t *testing.T) {
	s := NewSerializer(Postgres)
	w := WindowExpr{
		Func:        Func("SUM", Col("revenue")),
		PartitionBy: []Expr{Col("year")},
		OrderBy:     []OrderExpr{{Expr: Col("month"), Descending: false}},
		Frame:       "ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW",
	}
	got := s.RenderExpr(w)
	require.Contains(t, got, "OVER (PARTITION BY")
	require.Contains(t, got, `"year"`)
	require.Contains(t, got, `"month" ASC`)
	require.Contains(t, got, "ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW")
}

func TestRenderTableRef_AliasOmittedWhenSameAsName(t *testing.T) {
	s := NewSerializer(Postgres)
	ref := NewTableRef("customers").WithSchema("dbo").WithAlias("customers")
	require.Equal(t, `"dbo"."customers"`, s.RenderTableRef(ref))

	aliased := ref.WithAlias("c")
	require.Equal(t, `"dbo"."customers" AS "c"`, s.RenderTableRef(aliased))
}

func TestRender_FullQuery(t *testing.T) {
	s := NewSerializer(Postgres)
	limit := uint64(10)
	q := NewQuery().
		From(NewTableRef("orders_fact").WithSchema("dbo")).
		InnerJoin(NewTableRef("customers").WithSchema("dbo"), Eq(TableCol("orders_fact", "customer_id"), TableCol("customers", "customer_id"))).
		Filter(Eq(TableCol("customers", "region"), LitString{Value: "EMEA"})).
		GroupByExprs([]Expr{TableCol("customers", "region")}).
		Select([]SelectExpr{NewSelectExpr(Func("SUM", TableCol("orders_fact", "amount"))).WithAlias("revenue")}).
		OrderByExprs([]OrderExpr{{Expr: Col("revenue"), Descending: true}})
	q.Limit = &limit

	out := s.Render(q)
	require.Contains(t, out, `SELECT SUM("orders_fact"."amount") AS "revenue"`)
	require.Contains(t, out, `FROM "dbo"."orders_fact"`)
	require.Contains(t, out, `INNER JOIN "dbo"."customers" ON`)
	require.Contains(t, out, `WHERE ("customers"."region" = 'EMEA')`)
	require.Contains(t, out, `GROUP BY "customers"."region"`)
	require.Contains(t, out, `ORDER BY "revenue" DESC`)
	require.Contains(t, out, "LIMIT 10")
}

func TestRender_TSqlLimitUsesOffsetFetch(t *testing.T) {
	s := NewSerializer(TSql)
	limit := uint64(5)
	q := NewQuery().
		From(NewTableRef("customers")).
		Select([]SelectExpr{NewSelectExpr(Star(""))})
	q.Limit = &limit

	out := s.Render(q)
	require.Contains(t, out, "OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY")
	require.Contains(t, out, "[customers]")
}

func TestRender_WithCte(t *testing.T) {
	s := NewSerializer(Postgres)
	inner := NewQuery().
		From(NewTableRef("orders_fact").WithSchema("dbo")).
		Select([]SelectExpr{NewSelectExpr(Func("SUM", Col("amount"))).WithAlias("revenue")})
	outer := NewQuery().
		WithCte(NewCte("orders_cte", inner)).
		From(NewTableRef("orders_cte")).
		Select([]SelectExpr{NewSelectExpr(Col("revenue"))})

	out := s.Render(outer)
	require.Contains(t, out, `WITH "orders_cte" AS (`)
	require.Contains(t, out, `FROM "orders_cte"`)
}
