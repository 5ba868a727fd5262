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
	"fmt"
	"strconv"
	"strings"
)

// Dialect is the closed set of SQL targets this compiler emits for
// (spec.md §6.2).
type Dialect string

const (
	Postgres   Dialect = "postgres"
	TSql       Dialect = "tsql"
	DuckDb     Dialect = "duckdb"
	MySql      Dialect = "mysql"
	Snowflake  Dialect = "snowflake"
	BigQuery   Dialect = "bigquery"
	Redshift   Dialect = "redshift"
	Databricks Dialect = "databricks"
)

// quoteChars returns the (open, close) identifier quote characters for a
// dialect (spec.md §4.7).
func (d Dialect) quoteChars() (string, string) {
	switch d {
	case TSql:
		return "[", "]"
	case MySql:
		return "`", "`"
	default: // Postgres, DuckDb, Snowflake, BigQuery, Redshift, Databricks
		return `"`, `"`
	}
}

// QuoteIdent quotes a single identifier, escaping any embedded quote char
// by doubling it (or, for MySQL backticks, doubling the backtick).
func (d Dialect) QuoteIdent(name string) string {
	open, close := d.quoteChars()
	escaped := strings.ReplaceAll(name, close, close+close)
	return open + escaped + close
}

// QuoteQualified renders a schema.table or table.column as two quoted
// identifiers joined by a dot.
func (d Dialect) QuoteQualified(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// Serializer renders Query/Expr trees to dialect-specific SQL text.
type Serializer struct {
	Dialect Dialect
}

func NewSerializer(d Dialect) *Serializer { return &Serializer{Dialect: d} }

// RenderExpr renders a single expression to SQL text.
func (s *Serializer) RenderExpr(e Expr) string {
	switch v := e.(type) {
	case ColumnExpr:
		if v.Table == "" {
			return s.Dialect.QuoteIdent(v.Name)
		}
		return s.Dialect.QuoteQualified(v.Table, v.Name)
	case StarExpr:
		if v.Table == "" {
			return "*"
		}
		return s.Dialect.QuoteIdent(v.Table) + ".*"
	case LitString:
		return "'" + strings.ReplaceAll(v.Value, "'", "''") + "'"
	case LitInt:
		return strconv.FormatInt(v.Value, 10)
	case LitFloat:
		return strconv.FormatFloat(v.Value, 'g', -1, 64)
	case LitDecimal:
		return v.Value.String()
	case LitBool:
		if v.Value {
			return "TRUE"
		}
		return "FALSE"
	case LitNull:
		return "NULL"
	case FunctionExpr:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = s.RenderExpr(a)
		}
		prefix := ""
		if v.Distinct {
			prefix = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", v.Name, prefix, strings.Join(args, ", "))
	case CaseExpr:
		var b strings.Builder
		b.WriteString("CASE")
		if v.Operand != nil {
			b.WriteString(" " + s.RenderExpr(v.Operand))
		}
		for _, w := range v.WhenClauses {
			b.WriteString(fmt.Sprintf(" WHEN %s THEN %s", s.RenderExpr(w.Condition), s.RenderExpr(w.Result)))
		}
		if v.ElseClause != nil {
			b.WriteString(" ELSE " + s.RenderExpr(v.ElseClause))
		}
		b.WriteString(" END")
		return b.String()
	case BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", s.RenderExpr(v.Left), v.Op, s.RenderExpr(v.Right))
	case InExpr:
		items := make([]string, len(v.List))
		for i, it := range v.List {
			items[i] = s.RenderExpr(it)
		}
		return fmt.Sprintf("%s IN (%s)", s.RenderExpr(v.Target), strings.Join(items, ", "))
	case IsNullExpr:
		if v.Not {
			return s.RenderExpr(v.Target) + " IS NOT NULL"
		}
		return s.RenderExpr(v.Target) + " IS NULL"
	case NotExpr:
		return "NOT " + s.RenderExpr(v.Inner)
	case WindowExpr:
		var b strings.Builder
		b.WriteString(s.RenderExpr(v.Func))
		b.WriteString(" OVER (")
		parts := []string{}
		if len(v.PartitionBy) > 0 {
			ps := make([]string, len(v.PartitionBy))
			for i, p := range v.PartitionBy {
				ps[i] = s.RenderExpr(p)
			}
			parts = append(parts, "PARTITION BY "+strings.Join(ps, ", "))
		}
		if len(v.OrderBy) > 0 {
			os := make([]string, len(v.OrderBy))
			for i, o := range v.OrderBy {
				dir := "ASC"
				if o.Descending {
					dir = "DESC"
				}
				os[i] = s.RenderExpr(o.Expr) + " " + dir
			}
			parts = append(parts, "ORDER BY "+strings.Join(os, ", "))
		}
		if v.Frame != "" {
			parts = append(parts, v.Frame)
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString(")")
		return b.String()
	case RawExpr:
		return v.SQL
	default:
		return ""
	}
}

// RenderTableRef renders a FROM/JOIN table reference.
func (s *Serializer) RenderTableRef(t TableRef) string {
	ref := s.Dialect.QuoteQualified(t.Schema, t.Name)
	if t.Alias != "" && t.Alias != t.Name {
		ref += " AS " + s.Dialect.QuoteIdent(t.Alias)
	}
	return ref
}

// Render renders a full Query to SQL text.
func (s *Serializer) Render(q *Query) string {
	var b strings.Builder
	if len(q.Ctes) > 0 {
		b.WriteString("WITH ")
		parts := make([]string, len(q.Ctes))
		for i, c := range q.Ctes {
			parts[i] = fmt.Sprintf("%s AS (\n%s\n)", s.Dialect.QuoteIdent(c.Name), s.Render(c.Query))
		}
		b.WriteString(strings.Join(parts, ",\n"))
		b.WriteString("\n")
	}

	b.WriteString("SELECT ")
	sels := make([]string, len(q.SelectList))
	for i, se := range q.SelectList {
		text := s.RenderExpr(se.Expr)
		if se.Alias != "" {
			text += " AS " + s.Dialect.QuoteIdent(se.Alias)
		}
		sels[i] = text
	}
	b.WriteString(strings.Join(sels, ", "))

	if q.FromTable != nil {
		b.WriteString("\nFROM " + s.RenderTableRef(*q.FromTable))
	}
	for _, j := range q.Joins {
		b.WriteString(fmt.Sprintf("\n%s %s ON %s", j.Kind, s.RenderTableRef(j.Table), s.RenderExpr(j.On)))
	}
	if len(q.Filters) > 0 {
		b.WriteString("\nWHERE " + s.RenderExpr(AndAll(q.Filters)))
	}
	if len(q.GroupBy) > 0 {
		gs := make([]string, len(q.GroupBy))
		for i, g := range q.GroupBy {
			gs[i] = s.RenderExpr(g)
		}
		b.WriteString("\nGROUP BY " + strings.Join(gs, ", "))
	}
	if len(q.OrderBy) > 0 {
		os := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			os[i] = s.RenderExpr(o.Expr) + " " + dir
		}
		b.WriteString("\nORDER BY " + strings.Join(os, ", "))
	}
	if q.Limit != nil {
		b.WriteString("\n" + s.renderLimit(*q.Limit, len(q.OrderBy) > 0))
	}
	return b.String()
}

// renderLimit renders the dialect's row-limiting clause. T-SQL's
// OFFSET/FETCH requires an ORDER BY; without one it falls back to a
// literal ORDER BY (SELECT NULL), the standard T-SQL idiom for an
// unordered TOP-N, rather than emitting OFFSET/FETCH with nothing to
// offset or fetch against.
func (s *Serializer) renderLimit(n uint64, hasOrderBy bool) string {
	if s.Dialect == TSql {
		if hasOrderBy {
			return fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
		}
		return fmt.Sprintf("ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
	}
	return fmt.Sprintf("LIMIT %d", n)
}
