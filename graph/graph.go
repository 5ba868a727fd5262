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

// Package graph builds a unified column-level graph over a model.Model:
// entities, columns, measures, calendars, and the JoinsTo/References/
// DependsOn/BelongsTo edges between them. It resolves field references,
// finds join paths with deterministic tie-breaking, and answers join-
// safety and column-lineage questions for the semantic planner.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/sqlplan/semantiq/model"
)

var (
	// ErrUnknownEntity matches spec.md §7 UnknownEntity.
	ErrUnknownEntity = errors.NewKind("unknown entity: %s")
	// ErrUnknownField matches spec.md §7 UnknownField.
	ErrUnknownField = errors.NewKind("unknown field %s.%s")
	// ErrNoPath matches spec.md §7 NoPath.
	ErrNoPath = errors.NewKind("no join path from %s to %s")
	// ErrInvalidModel reports an invalid model. BuildFromModel does not use
	// it: it returns model.Validate's own model.ErrInvalidModel unchanged.
	ErrInvalidModel = errors.NewKind("invalid model: %s")
)

// EntityInfo is the physical identity of one entity as known to the graph.
type EntityInfo struct {
	Name         string
	Schema       string
	Table        string
	Materialized bool
	Size         model.SizeCategory
}

// FieldKind distinguishes a resolved field as a plain column or a measure.
type FieldKind int

const (
	FieldColumn FieldKind = iota
	FieldMeasure
)

// ResolvedField is the result of resolving (entity, field) to either a
// column or a measure definition.
type ResolvedField struct {
	Kind    FieldKind
	Column  *model.Column
	Measure *model.MeasureDef
	Entity  string
}

// Edge is one JoinsTo edge between two entities.
type Edge struct {
	FromEntity  string
	FromColumn  string
	ToEntity    string
	ToColumn    string
	Cardinality model.Cardinality
}

// Path is an ordered sequence of edges from one entity to another.
type Path struct {
	Edges []Edge
}

// IsSafe reports whether every edge in the path is many-to-one in its
// traversal direction (spec.md §4.1 join safety).
func (p Path) IsSafe() bool {
	for _, e := range p.Edges {
		if e.Cardinality.CausesFanOut() {
			return false
		}
	}
	return true
}

// JoinTree is the union of paths from root to every other entity, with
// de-duplicated edges, in BFS discovery order.
type JoinTree struct {
	Root    string
	Edges   []Edge
	IsSafe  bool
	// UnsafeEdge is set when IsSafe is false, naming the first offending edge.
	UnsafeEdge *Edge
}

// LineageEdgeKind describes how a downstream column derives from an
// upstream one.
type LineageEdgeKind string

const (
	LineagePassthrough LineageEdgeKind = "passthrough"
	LineageAggregate   LineageEdgeKind = "aggregate"
	LineageTransform   LineageEdgeKind = "transform"
)

// ColumnRef identifies a column by (entity, column) — entity may be a
// source entity, dimension, or fact (for measures, column is the measure name).
type ColumnRef struct {
	Entity string
	Column string
}

func (c ColumnRef) String() string { return c.Entity + "." + c.Column }

type lineageEdge struct {
	to   ColumnRef
	kind LineageEdgeKind
	sql  string
}

// ColumnLineageGraph maps a downstream column to its upstream sources.
type ColumnLineageGraph struct {
	edges map[ColumnRef][]lineageEdge
}

func newColumnLineageGraph() *ColumnLineageGraph {
	return &ColumnLineageGraph{edges: map[ColumnRef][]lineageEdge{}}
}

func (g *ColumnLineageGraph) addEdge(from, to ColumnRef, kind LineageEdgeKind, sql string) {
	g.edges[from] = append(g.edges[from], lineageEdge{to: to, kind: kind, sql: sql})
}

// ErrColumnLineageCycle matches spec.md §7 ColumnLineageCycle.
var ErrColumnLineageCycle = errors.NewKind("cyclic column lineage: %v")

// RequiredSourceColumns expands a column through the lineage graph to its
// minimal set of upstream source columns. A column with no upstream edges
// is its own source.
func (g *ColumnLineageGraph) RequiredSourceColumns(ref ColumnRef) ([]ColumnRef, error) {
	visited := map[ColumnRef]bool{}
	stack := map[ColumnRef]bool{}
	var out []ColumnRef
	var visit func(ColumnRef) error
	visit = func(r ColumnRef) error {
		if stack[r] {
			return ErrColumnLineageCycle.New(fmt.Sprintf("%s", r))
		}
		if visited[r] {
			return nil
		}
		ups, ok := g.edges[r]
		if !ok || len(ups) == 0 {
			out = append(out, r)
			visited[r] = true
			return nil
		}
		stack[r] = true
		for _, e := range ups {
			if err := visit(e.to); err != nil {
				return err
			}
		}
		delete(stack, r)
		visited[r] = true
		return nil
	}
	if err := visit(ref); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelGraph is the unified column-level graph built from a model.Model.
// It is immutable and safe for concurrent read-only use once returned from
// BuildFromModel (spec.md §5).
type ModelGraph struct {
	BuildID  uuid.UUID
	model    *model.Model
	entities map[string]*EntityInfo
	// outgoing[entity] is sorted deterministically: by target name, then
	// cardinality, matching spec.md §4.1's BFS tie-break rule.
	outgoing map[string][]Edge
	lineage  *ColumnLineageGraph
}

// BuildFromModel constructs a ModelGraph, validating the model first.
func BuildFromModel(m *model.Model) (*ModelGraph, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	g := &ModelGraph{
		BuildID:  m.BuildID,
		model:    m,
		entities: map[string]*EntityInfo{},
		outgoing: map[string][]Edge{},
		lineage:  newColumnLineageGraph(),
	}
	for name, e := range m.Entities {
		g.entities[name] = &EntityInfo{
			Name: name, Schema: e.Schema, Table: e.Table,
			Materialized: true, Size: model.CategorizeSize(e.RowCountHint),
		}
	}
	for name, d := range m.Dimensions {
		se, ok := m.Entities[d.SourceEntity]
		info := &EntityInfo{Name: name, Materialized: d.Materialized}
		if ok {
			info.Schema, info.Table, info.Size = se.Schema, se.Table, model.CategorizeSize(se.RowCountHint)
		}
		g.entities[name] = info
	}
	for name, f := range m.Facts {
		schema, table := splitQualifiedTable(f.TargetTable)
		info := &EntityInfo{Name: name, Schema: schema, Table: table, Materialized: f.Materialized}
		if se, ok := m.Entities[f.Grain.SourceEntity]; ok {
			info.Size = model.CategorizeSize(se.RowCountHint)
		}
		g.entities[name] = info
	}

	for _, r := range m.Relationships {
		edge := Edge{FromEntity: r.FromEntity, FromColumn: r.FromColumn, ToEntity: r.ToEntity, ToColumn: r.ToColumn, Cardinality: r.Cardinality}
		g.outgoing[r.FromEntity] = append(g.outgoing[r.FromEntity], edge)
		rev := Edge{FromEntity: r.ToEntity, FromColumn: r.ToColumn, ToEntity: r.FromEntity, ToColumn: r.FromColumn, Cardinality: r.Cardinality.Reversed()}
		g.outgoing[r.ToEntity] = append(g.outgoing[r.ToEntity], rev)
	}
	for entity := range g.outgoing {
		edges := g.outgoing[entity]
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].ToEntity != edges[j].ToEntity {
				return edges[i].ToEntity < edges[j].ToEntity
			}
			return edges[i].Cardinality < edges[j].Cardinality
		})
		g.outgoing[entity] = edges
	}

	g.buildLineage()
	return g, nil
}

func (g *ModelGraph) buildLineage() {
	for _, f := range g.model.Facts {
		for mname, md := range f.Measures {
			down := ColumnRef{Entity: f.Name, Column: mname}
			if md.SourceColumn != "" && md.SourceColumn != "*" {
				g.lineage.addEdge(down, ColumnRef{Entity: f.Grain.SourceEntity, Column: md.SourceColumn}, LineageAggregate, "")
			}
		}
	}
}

// ColumnLineage returns the graph's column-lineage view.
func (g *ModelGraph) ColumnLineage() *ColumnLineageGraph { return g.lineage }

// HasEntity reports whether name is a known entity, dimension, or fact.
func (g *ModelGraph) HasEntity(name string) bool {
	_, ok := g.entities[name]
	return ok
}

// IsFact reports whether name is a FactDefinition in the underlying model.
func (g *ModelGraph) IsFact(name string) bool {
	_, ok := g.model.Facts[name]
	return ok
}

// FactView exposes the parts of model.FactDefinition the logical planner
// needs for virtual-fact reconstruction, without leaking the full model
// type into the semantic package's import graph.
type FactView struct {
	Name     string
	From     string
	Grain    model.Grain
	Includes map[string]*model.FactInclude
}

// ModelFact returns a view of a fact definition, if name names one.
func (g *ModelGraph) ModelFact(name string) (*FactView, bool) {
	f, ok := g.model.Facts[name]
	if !ok {
		return nil, false
	}
	return &FactView{Name: f.Name, From: f.From, Grain: f.Grain, Includes: f.Includes}, true
}

// ModelDimension returns the underlying dimension definition, if name
// names one.
func (g *ModelGraph) ModelDimension(name string) (*model.Dimension, bool) {
	d, ok := g.model.Dimensions[name]
	return d, ok
}

// GetEntityInfo returns the physical identity of an entity.
func (g *ModelGraph) GetEntityInfo(name string) (*EntityInfo, error) {
	info, ok := g.entities[name]
	if !ok {
		return nil, ErrUnknownEntity.New(name)
	}
	return info, nil
}

// FindMeasure looks up a measure by (entity, name) if entity is a fact.
func (g *ModelGraph) FindMeasure(entity, name string) (*model.MeasureDef, bool) {
	f, ok := g.model.Facts[entity]
	if !ok {
		return nil, false
	}
	md, ok := f.Measures[name]
	return md, ok
}

// FindMeasureInFact returns the definition of measure on fact, or
// ErrUnknownField if the fact has no such measure.
func (g *ModelGraph) FindMeasureInFact(fact, measure string) (*model.MeasureDef, error) {
	md, ok := g.FindMeasure(fact, measure)
	if !ok {
		return nil, ErrUnknownField.New(fact, measure)
	}
	return md, nil
}

// ResolveField resolves (entity, field) to a column or a measure.
func (g *ModelGraph) ResolveField(entity, field string) (*ResolvedField, error) {
	if !g.HasEntity(entity) {
		return nil, ErrUnknownEntity.New(entity)
	}
	if md, ok := g.FindMeasure(entity, field); ok {
		return &ResolvedField{Kind: FieldMeasure, Measure: md, Entity: entity}, nil
	}
	if se, ok := g.model.Entities[entity]; ok {
		if c, ok := se.Columns[field]; ok {
			return &ResolvedField{Kind: FieldColumn, Column: c, Entity: entity}, nil
		}
	}
	if d, ok := g.model.Dimensions[entity]; ok {
		if se, ok := g.model.Entities[d.SourceEntity]; ok {
			if c, ok := se.Columns[field]; ok {
				return &ResolvedField{Kind: FieldColumn, Column: c, Entity: entity}, nil
			}
		}
	}
	return nil, ErrUnknownField.New(entity, field)
}

// GetColumnType returns a column's declared type, if known. Virtual facts
// without an explicit column declaration return ok=false, and callers must
// skip type checks rather than fail (spec.md §4.3).
func (g *ModelGraph) GetColumnType(entity, column string) (model.DataType, bool) {
	rf, err := g.ResolveField(entity, column)
	if err != nil || rf.Kind != FieldColumn {
		return "", false
	}
	return rf.Column.Type, true
}

// FindPath performs deterministic BFS from `from` to `to` over JoinsTo
// edges, tie-broken by (target name, cardinality) at each step.
func (g *ModelGraph) FindPath(from, to string) (Path, error) {
	if from == to {
		return Path{}, nil
	}
	type frame struct {
		entity string
		via    *Edge
		prev   string
	}
	visited := map[string]bool{from: true}
	parent := map[string]frame{}
	queue := []string{from}
	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.outgoing[cur] {
			if visited[e.ToEntity] {
				continue
			}
			visited[e.ToEntity] = true
			ec := e
			parent[e.ToEntity] = frame{entity: e.ToEntity, via: &ec, prev: cur}
			if e.ToEntity == to {
				found = true
				break
			}
			queue = append(queue, e.ToEntity)
		}
	}
	if !found {
		return Path{}, ErrNoPath.New(from, to)
	}
	var edges []Edge
	cur := to
	for cur != from {
		fr := parent[cur]
		edges = append([]Edge{*fr.via}, edges...)
		cur = fr.prev
	}
	return Path{Edges: edges}, nil
}

// FindRelationshipEitherDirection looks for a direct edge between a and b
// in either direction, reporting whether it was found reversed.
func (g *ModelGraph) FindRelationshipEitherDirection(a, b string) (Edge, bool, bool) {
	for _, r := range g.model.Relationships {
		if r.FromEntity == a && r.ToEntity == b {
			return Edge{FromEntity: a, FromColumn: r.FromColumn, ToEntity: b, ToColumn: r.ToColumn, Cardinality: r.Cardinality}, false, true
		}
	}
	for _, r := range g.model.Relationships {
		if r.FromEntity == b && r.ToEntity == a {
			// reverse it so FromEntity==a
			return Edge{FromEntity: a, FromColumn: r.ToColumn, ToEntity: b, ToColumn: r.FromColumn, Cardinality: r.Cardinality.Reversed()}, true, true
		}
	}
	return Edge{}, false, false
}

// FindJoinTree returns the union of FindPath(root, o) for every o in
// others, with de-duplicated edges in first-discovery order, and computes
// the overall safety flag.
func (g *ModelGraph) FindJoinTree(root string, others []string) (*JoinTree, error) {
	jt := &JoinTree{Root: root, IsSafe: true}
	seen := map[Edge]bool{}
	sortedOthers := append([]string{}, others...)
	sort.Strings(sortedOthers)
	for _, o := range sortedOthers {
		if o == root {
			continue
		}
		p, err := g.FindPath(root, o)
		if err != nil {
			return nil, err
		}
		for _, e := range p.Edges {
			if seen[e] {
				continue
			}
			seen[e] = true
			jt.Edges = append(jt.Edges, e)
			if jt.IsSafe && e.Cardinality.CausesFanOut() {
				jt.IsSafe = false
				ec := e
				jt.UnsafeEdge = &ec
			}
		}
	}
	return jt, nil
}

// splitQualifiedTable splits a "schema.table" physical reference into its
// two parts. A bare table name (no dot) yields an empty schema.
func splitQualifiedTable(ref string) (schema, table string) {
	idx := strings.LastIndex(ref, ".")
	if idx < 0 {
		return "", ref
	}
	return ref[:idx], ref[idx+1:]
}
