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
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/graph"
)

// Resolver is Phase 1: name binding, anchor detection, and single-vs-
// multi-fact branching (spec.md §4.2).
type Resolver struct {
	Graph  *graph.ModelGraph
	Logger logrus.FieldLogger
}

func NewResolver(g *graph.ModelGraph) *Resolver {
	return &Resolver{Graph: g, Logger: logrus.StandardLogger()}
}

// Resolve runs all of Phase 1 and returns Single or Multi depending on how
// many anchor facts are detected.
func (r *Resolver) Resolve(q *SemanticQuery) (*ResolvedQueryPlan, error) {
	r.Logger.WithField("phase", "resolve").Debug("resolving semantic query")
	anchors, err := r.detectAnchors(q)
	if err != nil {
		return nil, err
	}
	if len(anchors) > 1 {
		multi, err := r.resolveMultiFact(q, anchors)
		if err != nil {
			return nil, err
		}
		return &ResolvedQueryPlan{Multi: multi}, nil
	}
	single, err := r.resolveSingle(q, anchors)
	if err != nil {
		return nil, err
	}
	return &ResolvedQueryPlan{Single: single}, nil
}

// detectAnchors gathers every fact owning a measure referenced in select,
// plus an explicit `from` if it names a fact, sorted for determinism.
func (r *Resolver) detectAnchors(q *SemanticQuery) ([]string, error) {
	set := map[string]bool{}
	for _, sf := range q.Select {
		if sf.InlineAgg != "" {
			continue
		}
		if _, ok := r.Graph.FindMeasure(sf.Field.Entity, sf.Field.Field); ok {
			set[sf.Field.Entity] = true
		}
	}
	for _, of := range q.OrderBy {
		if _, ok := r.Graph.FindMeasure(of.Field.Entity, of.Field.Field); ok {
			set[of.Field.Entity] = true
		}
	}
	if q.From != nil && r.Graph.IsFact(*q.From) {
		set[*q.From] = true
	}
	if len(set) == 0 {
		if q.From != nil {
			return []string{*q.From}, nil
		}
		return nil, ErrNoAnchor.New()
	}
	anchors := make([]string, 0, len(set))
	for a := range set {
		anchors = append(anchors, a)
	}
	sort.Strings(anchors)
	return anchors, nil
}

func (r *Resolver) collectEntities(q *SemanticQuery) ([]string, error) {
	set := map[string]bool{}
	if q.From != nil {
		set[*q.From] = true
	}
	add := func(entity string) error {
		if !r.Graph.HasEntity(entity) {
			return ErrUnknownEntity.New(entity)
		}
		set[entity] = true
		return nil
	}
	for _, f := range q.Filters {
		if err := add(f.Field.Entity); err != nil {
			return nil, err
		}
	}
	for _, g := range q.GroupBy {
		if err := add(g.Entity); err != nil {
			return nil, err
		}
	}
	for _, s := range q.Select {
		if err := add(s.Field.Entity); err != nil {
			return nil, err
		}
	}
	for _, o := range q.OrderBy {
		if err := add(o.Field.Entity); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Resolver) resolveColumn(entity, field string) (ResolvedColumn, error) {
	rf, err := r.Graph.ResolveField(entity, field)
	if err != nil {
		return ResolvedColumn{}, err
	}
	if rf.Kind != graph.FieldColumn {
		return ResolvedColumn{}, ErrInvalidReference.New(fmt.Sprintf("%s.%s is a measure, not a column", entity, field))
	}
	return ResolvedColumn{EntityAlias: entity, LogicalName: field, PhysicalName: rf.Column.PhysicalName, Type: rf.Column.Type, HasType: true}, nil
}

func (r *Resolver) resolveMeasure(entity, field string, filters []FieldFilter) (ResolvedMeasure, error) {
	rf, err := r.Graph.ResolveField(entity, field)
	if err != nil {
		return ResolvedMeasure{}, err
	}
	if rf.Kind != graph.FieldMeasure {
		return ResolvedMeasure{}, ErrInvalidReference.New(fmt.Sprintf("%s.%s is a column, not a measure", entity, field))
	}
	rm := ResolvedMeasure{
		EntityAlias:      entity,
		Name:             field,
		Aggregation:      rf.Measure.Aggregation,
		SourceColumn:     rf.Measure.SourceColumn,
		DefinitionFilter: rf.Measure.DefinitionSQL,
	}
	for _, f := range filters {
		rfil, err := r.resolveFilter(f)
		if err != nil {
			return ResolvedMeasure{}, err
		}
		rm.QueryFilter = append(rm.QueryFilter, rfil)
	}
	return rm, nil
}

func (r *Resolver) resolveFilter(f FieldFilter) (ResolvedFilter, error) {
	rf, err := r.Graph.ResolveField(f.Field.Entity, f.Field.Field)
	if err != nil {
		return ResolvedFilter{}, err
	}
	if rf.Kind != graph.FieldColumn {
		return ResolvedFilter{}, ErrInvalidReference.New(
			"cannot filter on measures directly. Use a per-measure filter or HAVING-equivalent instead")
	}
	return ResolvedFilter{
		Column: ResolvedColumn{EntityAlias: f.Field.Entity, LogicalName: f.Field.Field, PhysicalName: rf.Column.PhysicalName, Type: rf.Column.Type, HasType: true},
		Op:     f.Op,
		Value:  f.Value,
	}, nil
}

func (r *Resolver) resolveSelectItem(s SelectField) (ResolvedSelect, error) {
	if s.InlineAgg != "" {
		col, err := r.resolveColumn(s.Field.Entity, s.Field.Field)
		if err != nil {
			return nil, err
		}
		alias := s.Alias
		if alias == "" {
			alias = s.Field.Field
		}
		return SelectAggregate{Column: col, Agg: s.InlineAgg, Alias: alias}, nil
	}
	rf, err := r.Graph.ResolveField(s.Field.Entity, s.Field.Field)
	if err != nil {
		return nil, err
	}
	if rf.Kind == graph.FieldColumn {
		col, err := r.resolveColumn(s.Field.Entity, s.Field.Field)
		if err != nil {
			return nil, err
		}
		alias := s.Alias
		if alias == "" {
			alias = s.Field.Field
		}
		return SelectColumn{Column: col, Alias: alias}, nil
	}
	measure, err := r.resolveMeasure(s.Field.Entity, s.Field.Field, s.MeasureFilter)
	if err != nil {
		return nil, err
	}
	alias := s.Alias
	if alias == "" {
		alias = s.Field.Field
	}
	return SelectMeasure{Measure: measure, Alias: alias}, nil
}

func (r *Resolver) resolveDerivedExpr(e DerivedExpr) (ResolvedDerivedExpr, error) {
	switch v := e.(type) {
	case MeasureRefExpr:
		// MeasureRef has no explicit entity in the DSL; callers are
		// expected to have already scoped it to the anchor fact via
		// translate.Translate. Here we require the caller to pass a
		// fully-qualified name "entity.measure".
		entity, name, err := splitQualified(v.Name)
		if err != nil {
			return nil, err
		}
		m, err := r.resolveMeasure(entity, name, nil)
		if err != nil {
			return nil, err
		}
		return RMeasureRef{Measure: m}, nil
	case LiteralExpr:
		return RLiteral{Value: v.Value}, nil
	case BinaryOpExpr:
		l, err := r.resolveDerivedExpr(v.Left)
		if err != nil {
			return nil, err
		}
		rr, err := r.resolveDerivedExpr(v.Right)
		if err != nil {
			return nil, err
		}
		return RBinaryOp{Op: v.Op, Left: l, Right: rr}, nil
	case NegateExpr:
		inner, err := r.resolveDerivedExpr(v.Inner)
		if err != nil {
			return nil, err
		}
		return RNegate{Inner: inner}, nil
	case TimeFunctionExpr:
		return RTimeFunction{Fn: v.Fn}, nil
	case DeltaExpr:
		c, err := r.resolveDerivedExpr(v.Current)
		if err != nil {
			return nil, err
		}
		p, err := r.resolveDerivedExpr(v.Previous)
		if err != nil {
			return nil, err
		}
		return RDelta{Current: c, Previous: p}, nil
	case GrowthExpr:
		c, err := r.resolveDerivedExpr(v.Current)
		if err != nil {
			return nil, err
		}
		p, err := r.resolveDerivedExpr(v.Previous)
		if err != nil {
			return nil, err
		}
		return RGrowth{Current: c, Previous: p}, nil
	default:
		return nil, ErrInvalidReference.New("unknown derived expression variant")
	}
}

func splitQualified(name string) (entity, field string, err error) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], nil
		}
	}
	return "", "", ErrInvalidReference.New(fmt.Sprintf("measure reference %q must be qualified as entity.measure", name))
}

func (r *Resolver) resolveSingle(q *SemanticQuery, anchors []string) (*ResolvedQuery, error) {
	from := ""
	if q.From != nil {
		from = *q.From
	} else if len(anchors) == 1 {
		from = anchors[0]
	}
	rq := &ResolvedQuery{From: from, Anchors: anchors, Limit: q.Limit, RawFilters: q.RawFilters}

	for _, f := range q.Filters {
		rf, err := r.resolveFilter(f)
		if err != nil {
			return nil, err
		}
		rq.Filters = append(rq.Filters, rf)
	}
	for _, gb := range q.GroupBy {
		col, err := r.resolveColumn(gb.Entity, gb.Field)
		if err != nil {
			return nil, err
		}
		rq.GroupBy = append(rq.GroupBy, col)
	}
	for _, s := range q.Select {
		rs, err := r.resolveSelectItem(s)
		if err != nil {
			return nil, err
		}
		rq.Select = append(rq.Select, rs)
	}
	for _, d := range q.Derived {
		expr, err := r.resolveDerivedExpr(d.Expression)
		if err != nil {
			return nil, err
		}
		rq.Select = append(rq.Select, SelectDerived{Alias: d.Alias, Expression: expr})
	}
	for _, o := range q.OrderBy {
		rs, err := r.resolveSelectItem(SelectField{Field: o.Field})
		if err != nil {
			return nil, err
		}
		rq.OrderBy = append(rq.OrderBy, ResolvedOrder{Select: rs, Descending: o.Descending})
	}

	entities, err := r.collectEntities(q)
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	for _, e := range entities {
		set[e] = true
	}
	set[from] = true
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	rq.ReferencedEntities = names
	return rq, nil
}

func (r *Resolver) resolveMultiFact(q *SemanticQuery, anchors []string) (*MultiFactQuery, error) {
	mq := &MultiFactQuery{Limit: q.Limit}

	dims := r.collectDimensionRefs(q)
	shared, err := r.findSharedDimensions(anchors, dims)
	if err != nil {
		return nil, err
	}
	mq.SharedDimensions = shared

	facts, err := r.buildFactAggregates(q, anchors, shared)
	if err != nil {
		return nil, err
	}
	mq.FactAggregates = facts

	for _, f := range q.Filters {
		rf, err := r.resolveFilter(f)
		if err != nil {
			return nil, err
		}
		mq.GlobalFilters = append(mq.GlobalFilters, rf)
	}
	for _, o := range q.OrderBy {
		rs, err := r.resolveSelectItem(SelectField{Field: o.Field})
		if err != nil {
			return nil, err
		}
		mq.OrderBy = append(mq.OrderBy, ResolvedOrder{Select: rs, Descending: o.Descending})
	}
	return mq, nil
}

func (r *Resolver) collectDimensionRefs(q *SemanticQuery) []string {
	set := map[string]bool{}
	for _, gb := range q.GroupBy {
		set[gb.Entity] = true
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Resolver) findSharedDimensions(anchors, dims []string) ([]string, error) {
	for _, d := range dims {
		for _, a := range anchors {
			if a == d {
				continue
			}
			if _, err := r.Graph.FindPath(a, d); err != nil {
				return nil, ErrDimensionNotShared.New(d, a)
			}
		}
	}
	return dims, nil
}

func (r *Resolver) buildFactAggregates(q *SemanticQuery, anchors, dims []string) ([]FactAggregate, error) {
	var out []FactAggregate
	for _, a := range anchors {
		fa := FactAggregate{Anchor: a, CteAlias: fmt.Sprintf("%s_agg", a)}
		for _, s := range q.Select {
			if s.Field.Entity != a {
				continue
			}
			rf, err := r.Graph.ResolveField(s.Field.Entity, s.Field.Field)
			if err != nil {
				return nil, err
			}
			if rf.Kind != graph.FieldMeasure {
				continue
			}
			m, err := r.resolveMeasure(s.Field.Entity, s.Field.Field, s.MeasureFilter)
			if err != nil {
				return nil, err
			}
			fa.Measures = append(fa.Measures, m)
		}
		for _, d := range dims {
			if d == a {
				continue
			}
			path, err := r.Graph.FindPath(a, d)
			if err != nil {
				return nil, err
			}
			if len(path.Edges) == 0 {
				continue
			}
			last := path.Edges[len(path.Edges)-1]
			fa.JoinKeys = append(fa.JoinKeys, FactJoinKey{FactColumn: last.FromColumn, Dimension: d, DimensionColumn: last.ToColumn})
		}
		out = append(out, fa)
	}
	return out, nil
}
