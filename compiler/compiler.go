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

// Package compiler wires the full pipeline together behind the three
// entry points named in spec.md §6.2: Plan (low-level, caller-supplied
// IR), CompileReport and CompilePivot (look up a named definition on the
// Model and dispatch to the matching planner). A Compiler owns one
// immutable ModelGraph and may be reused across many compilations
// (spec.md §5); it performs no I/O of its own.
package compiler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/sqlplan/semantiq/graph"
	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
	"github.com/sqlplan/semantiq/semantic/pivot"
	"github.com/sqlplan/semantiq/semantic/report"
	"github.com/sqlplan/semantiq/sqlast"
	"github.com/sqlplan/semantiq/translate"
)

var tracer = otel.Tracer("github.com/sqlplan/semantiq/compiler")

// Options configures one compilation (spec.md §6.2).
type Options struct {
	Dialect sqlast.Dialect
	// DefaultSchema is used when an entity has no explicit physical
	// schema. Defaults to "dbo" to match the teacher's own default
	// catalog convention.
	DefaultSchema string
	// WithLineage enables column-lineage cycle detection and pruning.
	// Pruning only annotates PlanPhases today; it does not yet rewrite
	// the emitted SELECT list (spec.md §4.4 describes pruning as input
	// to "future SELECT-list tightening").
	WithLineage bool
}

func (o Options) schema() string {
	if o.DefaultSchema == "" {
		return "dbo"
	}
	return o.DefaultSchema
}

// Compiler holds one immutable ModelGraph built from a Model. It is safe
// to share across goroutines and across many compilations once built
// (spec.md §5).
type Compiler struct {
	Model  *model.Model
	Graph  *graph.ModelGraph
	Logger logrus.FieldLogger
}

// New builds a Compiler's ModelGraph from m. Returns InvalidModel (via
// graph.BuildFromModel) if model.Validate rejects the model.
func New(m *model.Model) (*Compiler, error) {
	g, err := graph.BuildFromModel(m)
	if err != nil {
		return nil, errors.Wrap(err, "building model graph")
	}
	return &Compiler{Model: m, Graph: g, Logger: logrus.StandardLogger()}, nil
}

// PlanPhases carries every intermediate of one compilation, for testing
// and diagnostics (spec.md §6.3). Exactly one of Resolved/Multi is set.
type PlanPhases struct {
	Resolved  *semantic.ResolvedQuery
	Multi     *semantic.MultiFactQuery
	Validated *semantic.ValidatedQuery
	Pruned    *semantic.PrunedColumns
	Logical   semantic.LogicalPlan
	SQL       string
}

// Plan is the low-level entry point: the caller supplies the canonical
// IR directly (spec.md §6.2 `plan(semantic_query) -> SQL`).
func (c *Compiler) Plan(ctx context.Context, q *semantic.SemanticQuery, opts Options) (string, error) {
	phases, err := c.PlanPhasesFor(ctx, q, opts)
	if err != nil {
		return "", err
	}
	return phases.SQL, nil
}

// PlanPhasesFor runs the full pipeline and returns every intermediate
// value alongside the final SQL.
func (c *Compiler) PlanPhasesFor(ctx context.Context, q *semantic.SemanticQuery, opts Options) (*PlanPhases, error) {
	_, span := tracer.Start(ctx, "compiler.Plan")
	defer span.End()

	resolver := semantic.NewResolver(c.Graph)
	plan, err := resolver.Resolve(q)
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}

	if plan.Multi != nil {
		return c.planMultiFact(plan.Multi, opts)
	}
	return c.planSingleFact(plan.Single, opts)
}

func (c *Compiler) planSingleFact(rq *semantic.ResolvedQuery, opts Options) (*PlanPhases, error) {
	c.Logger.WithField("anchor", rq.From).Debug("resolved single-fact query")

	validator := semantic.NewValidator(c.Graph)
	validated, err := validator.Validate(rq)
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	applyDefaultSchema(validated, opts.schema())

	phases := &PlanPhases{Resolved: rq, Validated: validated}

	if opts.WithLineage {
		pruner := semantic.NewColumnPruner(c.Graph.ColumnLineage())
		pruned, err := pruner.RequiredColumns(validated)
		if err != nil {
			return nil, errors.Wrap(err, "prune columns")
		}
		phases.Pruned = pruned
	}

	planner := semantic.NewLogicalPlanner().WithGraph(c.Graph)
	logical, err := planner.Plan(validated)
	if err != nil {
		return nil, errors.Wrap(err, "logical plan")
	}
	phases.Logical = logical

	emitter := semantic.NewEmitter()
	query, err := emitter.Emit(logical)
	if err != nil {
		return nil, errors.Wrap(err, "emit")
	}

	serializer := sqlast.NewSerializer(opts.Dialect)
	phases.SQL = serializer.Render(query)
	return phases, nil
}

func (c *Compiler) planMultiFact(mq *semantic.MultiFactQuery, opts Options) (*PlanPhases, error) {
	c.Logger.WithField("facts", len(mq.FactAggregates)).Debug("resolved multi-fact query")

	planner := report.NewPlanner(c.Graph)
	plan, err := planner.Plan(mq)
	if err != nil {
		return nil, errors.Wrap(err, "report plan")
	}

	emitter := report.NewEmitter(c.Graph)
	query, err := emitter.Emit(plan)
	if err != nil {
		return nil, errors.Wrap(err, "report emit")
	}

	serializer := sqlast.NewSerializer(opts.Dialect)
	return &PlanPhases{Multi: mq, SQL: serializer.Render(query)}, nil
}

// applyDefaultSchema backstops any entity whose SourceEntity declared no
// explicit physical schema with opts.DefaultSchema, in place.
func applyDefaultSchema(v *semantic.ValidatedQuery, schema string) {
	for name, info := range v.EntityInfo {
		if info.PhysicalSchema == "" {
			info.PhysicalSchema = schema
			v.EntityInfo[name] = info
		}
	}
}

// CompileReport looks up a named Report on the Model, translates it to a
// SemanticQuery, and compiles it (spec.md §6.2
// `compile_report(report_name) -> SQL`).
func (c *Compiler) CompileReport(ctx context.Context, reportName string, opts Options) (string, error) {
	r, ok := c.Model.Reports[reportName]
	if !ok {
		return "", semantic.ErrUnknownQuery.New(reportName)
	}
	q, err := translate.Translate(r, c.Model)
	if err != nil {
		return "", errors.Wrapf(err, "translate report %q", reportName)
	}
	return c.Plan(ctx, q, opts)
}

// CompilePivot looks up a named PivotReport on the Model and compiles it
// via the pivot planner/emitter (spec.md §6.2
// `compile_pivot(pivot_name) -> SQL`).
func (c *Compiler) CompilePivot(ctx context.Context, pivotName string, opts Options) (string, error) {
	_, span := tracer.Start(ctx, "compiler.CompilePivot")
	defer span.End()

	pv, ok := c.Model.Pivots[pivotName]
	if !ok {
		return "", semantic.ErrUnknownQuery.New(pivotName)
	}

	planner := pivot.NewPlanner(c.Model, c.Graph)
	plan, err := planner.Plan(pv)
	if err != nil {
		return "", errors.Wrapf(err, "pivot plan %q", pivotName)
	}

	emitter := pivot.NewEmitter()
	sql, err := emitter.Emit(plan, opts.Dialect)
	if err != nil {
		return "", errors.Wrapf(err, "pivot emit %q", pivotName)
	}
	return sql, nil
}
