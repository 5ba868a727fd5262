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

	"github.com/sirupsen/logrus"

	"github.com/sqlplan/semantiq/graph"
	"github.com/sqlplan/semantiq/model"
)

// Validator is Phase 2: entity info lookup, join-tree construction, fan-
// out safety, type compatibility, and grouping completeness (spec.md §4.3).
type Validator struct {
	Graph  *graph.ModelGraph
	Logger logrus.FieldLogger
}

func NewValidator(g *graph.ModelGraph) *Validator {
	return &Validator{Graph: g, Logger: logrus.StandardLogger()}
}

func (v *Validator) Validate(q *ResolvedQuery) (*ValidatedQuery, error) {
	v.Logger.WithField("phase", "validate").Debug("validating resolved query")
	entityInfo, err := v.buildEntityInfo(q)
	if err != nil {
		return nil, err
	}
	jt, err := v.buildJoinTree(q, entityInfo)
	if err != nil {
		return nil, err
	}
	if err := v.validateJoinSafety(jt); err != nil {
		return nil, err
	}
	if err := v.validateJoinTypes(jt); err != nil {
		return nil, err
	}
	if err := v.validateGrouping(q); err != nil {
		return nil, err
	}
	return &ValidatedQuery{Query: q, JoinTree: *jt, EntityInfo: entityInfo}, nil
}

func (v *Validator) buildEntityInfo(q *ResolvedQuery) (map[string]ResolvedEntity, error) {
	out := map[string]ResolvedEntity{}
	add := func(name string) error {
		if _, ok := out[name]; ok {
			return nil
		}
		info, err := v.Graph.GetEntityInfo(name)
		if err != nil {
			return err
		}
		out[name] = ResolvedEntity{LogicalName: info.Name, PhysicalTable: info.Table, PhysicalSchema: info.Schema, Materialized: info.Materialized}
		return nil
	}
	if q.From != "" {
		if err := add(q.From); err != nil {
			return nil, err
		}
	}
	for _, e := range q.ReferencedEntities {
		if err := add(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *Validator) buildJoinTree(q *ResolvedQuery, entityInfo map[string]ResolvedEntity) (*JoinTreeView, error) {
	var others []string
	for _, e := range q.ReferencedEntities {
		if e != q.From {
			others = append(others, e)
		}
	}
	if len(others) == 0 {
		return &JoinTreeView{Root: q.From, IsSafe: true}, nil
	}
	jt, err := v.Graph.FindJoinTree(q.From, others)
	if err != nil {
		return nil, err
	}
	view := &JoinTreeView{Root: q.From, IsSafe: jt.IsSafe}
	for _, e := range jt.Edges {
		view.Edges = append(view.Edges, JoinEdge{
			FromEntity: e.FromEntity, FromColumn: e.FromColumn,
			ToEntity: e.ToEntity, ToColumn: e.ToColumn,
			FanOut: e.Cardinality.CausesFanOut(),
		})
	}
	return view, nil
}

func (v *Validator) validateJoinSafety(jt *JoinTreeView) error {
	for _, e := range jt.Edges {
		if e.FanOut {
			return ErrUnsafeJoinPath.New(e.FromEntity, e.ToEntity, e.ToEntity)
		}
	}
	return nil
}

func (v *Validator) validateJoinTypes(jt *JoinTreeView) error {
	for _, e := range jt.Edges {
		lt, lok := v.Graph.GetColumnType(e.FromEntity, e.FromColumn)
		rt, rok := v.Graph.GetColumnType(e.ToEntity, e.ToColumn)
		if !lok || !rok {
			continue // unknown type (e.g. virtual fact column): skip, per spec.md §4.3
		}
		if !model.TypesCompatible(lt, rt) {
			return ErrTypeMismatch.New(e.FromEntity, e.FromColumn, string(lt), e.ToEntity, e.ToColumn, string(rt))
		}
	}
	return nil
}

func (v *Validator) validateGrouping(q *ResolvedQuery) error {
	if len(q.GroupBy) == 0 {
		return nil
	}
	grouped := map[string]bool{}
	for _, c := range q.GroupBy {
		grouped[c.EntityAlias+"\x00"+c.PhysicalName] = true
	}
	for _, s := range q.Select {
		col, ok := s.(SelectColumn)
		if !ok {
			continue
		}
		key := col.Column.EntityAlias + "\x00" + col.Column.PhysicalName
		if !grouped[key] {
			return ErrUngroupedColumn.New(fmt.Sprintf("%s.%s", col.Column.EntityAlias, col.Column.LogicalName))
		}
	}
	return nil
}
