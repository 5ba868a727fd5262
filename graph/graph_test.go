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

package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlplan/semantiq/model"
)

func threeEntityModel() *model.Model {
	m := model.NewModel()
	m.Entities["orders"] = &model.SourceEntity{
		Name: "orders", Schema: "dbo", Table: "orders",
		Columns: map[string]*model.Column{
			"order_id":    {LogicalName: "order_id", PhysicalName: "order_id", Type: model.TypeInt64, PrimaryKey: true},
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64},
		},
		RowCountHint: 1_000_000,
	}
	m.Entities["customers"] = &model.SourceEntity{
		Name: "customers", Schema: "dbo", Table: "customers",
		Columns: map[string]*model.Column{
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64, PrimaryKey: true},
			"region_id":   {LogicalName: "region_id", PhysicalName: "region_id", Type: model.TypeInt64},
		},
		RowCountHint: 10_000,
	}
	m.Entities["regions"] = &model.SourceEntity{
		Name: "regions", Schema: "dbo", Table: "regions",
		Columns: map[string]*model.Column{
			"region_id": {LogicalName: "region_id", PhysicalName: "region_id", Type: model.TypeInt64, PrimaryKey: true},
			"name":      {LogicalName: "name", PhysicalName: "name", Type: model.TypeString},
		},
		RowCountHint: 50,
	}
	m.Relationships = append(m.Relationships,
		&model.Relationship{FromEntity: "orders", FromColumn: "customer_id", ToEntity: "customers", ToColumn: "customer_id", Cardinality: model.ManyToOne},
		&model.Relationship{FromEntity: "customers", FromColumn: "region_id", ToEntity: "regions", ToColumn: "region_id", Cardinality: model.ManyToOne},
	)
	return m
}

func TestBuildFromModel_FactSchemaSplit(t *testing.T) {
	m := threeEntityModel()
	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:         "orders_fact",
		Grain:        model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures:     map[string]*model.MeasureDef{"revenue": {Name: "revenue", Aggregation: model.AggSum, SourceColumn: "amount"}},
		Materialized: true,
		TargetTable:  "analytics.orders_fact",
	}
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	info, err := g.GetEntityInfo("orders_fact")
	require.NoError(t, err)
	require.Equal(t, "analytics", info.Schema)
	require.Equal(t, "orders_fact", info.Table)
}

func TestBuildFromModel_FactTargetTableNoSchema(t *testing.T) {
	m := threeEntityModel()
	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:         "orders_fact",
		Grain:        model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures:     map[string]*model.MeasureDef{"revenue": {Name: "revenue", Aggregation: model.AggSum, SourceColumn: "amount"}},
		Materialized: true,
		TargetTable:  "orders_fact",
	}
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	info, err := g.GetEntityInfo("orders_fact")
	require.NoError(t, err)
	require.Equal(t, "", info.Schema)
	require.Equal(t, "orders_fact", info.Table)
}

func TestFindPath_MultiHop(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	p, err := g.FindPath("orders", "regions")
	require.NoError(t, err)
	require.Len(t, p.Edges, 2)
	require.Equal(t, "orders", p.Edges[0].FromEntity)
	require.Equal(t, "customers", p.Edges[0].ToEntity)
	require.Equal(t, "customers", p.Edges[1].FromEntity)
	require.Equal(t, "regions", p.Edges[1].ToEntity)
	require.True(t, p.IsSafe())
}

func TestFindPath_SameEntity(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	p, err := g.FindPath("orders", "orders")
	require.NoError(t, err)
	require.Empty(t, p.Edges)
}

func TestFindPath_NoPath(t *testing.T) {
	m := threeEntityModel()
	m.Entities["unrelated"] = &model.SourceEntity{
		Name: "unrelated", Schema: "dbo", Table: "unrelated",
		Columns: map[string]*model.Column{"id": {LogicalName: "id", PhysicalName: "id", Type: model.TypeInt64, PrimaryKey: true}},
	}
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	_, err = g.FindPath("orders", "unrelated")
	require.Error(t, err)
	require.True(t, ErrNoPath.Is(err))
}

func TestFindPath_UnsafeFanOut(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	// traversing customers -> orders follows the reversed (one-to-many) edge.
	p, err := g.FindPath("customers", "orders")
	require.NoError(t, err)
	require.False(t, p.IsSafe())
}

func TestFindJoinTree_SafetyAndDedup(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	jt, err := g.FindJoinTree("orders", []string{"customers", "regions"})
	require.NoError(t, err)
	require.True(t, jt.IsSafe)
	require.Nil(t, jt.UnsafeEdge)
	require.Len(t, jt.Edges, 2)
}

func TestFindJoinTree_UnsafeEdgeRecorded(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	jt, err := g.FindJoinTree("customers", []string{"orders"})
	require.NoError(t, err)
	require.False(t, jt.IsSafe)
	require.NotNil(t, jt.UnsafeEdge)
}

func TestColumnLineage_DirectPassthrough(t *testing.T) {
	m := threeEntityModel()
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
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	sources, err := g.ColumnLineage().RequiredSourceColumns(ColumnRef{Entity: "orders_fact", Column: "revenue"})
	require.NoError(t, err)
	require.Equal(t, []ColumnRef{{Entity: "orders", Column: "amount"}}, sources)
}

func TestColumnLineage_CountStarHasNoUpstream(t *testing.T) {
	m := threeEntityModel()
	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:  "orders_fact",
		Grain: model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures: map[string]*model.MeasureDef{
			"order_count": {Name: "order_count", Aggregation: model.AggCount, SourceColumn: "*"},
		},
		Materialized: true,
		TargetTable:  "dbo.orders_fact",
	}
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	ref := ColumnRef{Entity: "orders_fact", Column: "order_count"}
	sources, err := g.ColumnLineage().RequiredSourceColumns(ref)
	require.NoError(t, err)
	require.Equal(t, []ColumnRef{ref}, sources)
}

func TestColumnLineage_CycleDetected(t *testing.T) {
	g := &ModelGraph{lineage: newColumnLineageGraph()}
	a := ColumnRef{Entity: "x", Column: "a"}
	b := ColumnRef{Entity: "x", Column: "b"}
	g.lineage.addEdge(a, b, LineageTransform, "")
	g.lineage.addEdge(b, a, LineageTransform, "")

	_, err := g.ColumnLineage().RequiredSourceColumns(a)
	require.Error(t, err)
	require.True(t, ErrColumnLineageCycle.Is(err))
}

func TestResolveField_ColumnAndMeasure(t *testing.T) {
	m := threeEntityModel()
	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:         "orders_fact",
		Grain:        model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures:     map[string]*model.MeasureDef{"revenue": {Name: "revenue", Aggregation: model.AggSum, SourceColumn: "amount"}},
		Materialized: true,
		TargetTable:  "dbo.orders_fact",
	}
	g, err := BuildFromModel(m)
	require.NoError(t, err)

	rf, err := g.ResolveField("orders_fact", "revenue")
	require.NoError(t, err)
	require.Equal(t, FieldMeasure, rf.Kind)

	rf2, err := g.ResolveField("customers", "region_id")
	require.NoError(t, err)
	require.Equal(t, FieldColumn, rf2.Kind)

	_, err = g.ResolveField("customers", "nonexistent")
	require.Error(t, err)
	require.True(t, ErrUnknownField.Is(err))

	_, err = g.ResolveField("ghost", "x")
	require.Error(t, err)
	require.True(t, ErrUnknownEntity.Is(err))
}

func TestFindRelationshipEitherDirection(t *testing.T) {
	g, err := BuildFromModel(threeEntityModel())
	require.NoError(t, err)

	e, reversed, ok := g.FindRelationshipEitherDirection("orders", "customers")
	require.True(t, ok)
	require.False(t, reversed)
	require.Equal(t, "orders", e.FromEntity)

	e2, reversed2, ok2 := g.FindRelationshipEitherDirection("customers", "orders")
	require.True(t, ok2)
	require.True(t, reversed2)
	require.Equal(t, "customers", e2.FromEntity)
	require.Equal(t, "orders", e2.ToEntity)

	_, _, ok3 := g.FindRelationshipEitherDirection("orders", "ghost")
	require.False(t, ok3)
}

func TestBuildFromModel_InvalidModelRejected(t *testing.T) {
	m := threeEntityModel()
	m.Relationships = append(m.Relationships, &model.Relationship{
		FromEntity: "orders", FromColumn: "nonexistent",
		ToEntity: "customers", ToColumn: "customer_id",
		Cardinality: model.ManyToOne,
	})
	_, err := BuildFromModel(m)
	require.Error(t, err)
}
