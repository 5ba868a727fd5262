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

import "github.com/sqlplan/semantiq/model"

// scenarioModel builds the model.md §8.3 scenarios 1-4 fixture: orders /
// customers / orders_fact. withInventoryFact adds the second fact for the
// multi-fact scenario; the time-intelligence test declares its own calendar.
func scenarioModel() *model.Model {
	m := model.NewModel()

	m.Entities["orders"] = &model.SourceEntity{
		Name: "orders", Schema: "dbo", Table: "orders",
		Columns: map[string]*model.Column{
			"order_id":    {LogicalName: "order_id", PhysicalName: "order_id", Type: model.TypeInt64, PrimaryKey: true},
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64},
			"order_date":  {LogicalName: "order_date", PhysicalName: "order_date", Type: model.TypeDate},
			"amount":      {LogicalName: "amount", PhysicalName: "amount", Type: model.TypeDecimal},
		},
		RowCountHint: 1_000_000,
	}
	m.Entities["customers"] = &model.SourceEntity{
		Name: "customers", Schema: "dbo", Table: "customers",
		Columns: map[string]*model.Column{
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64, PrimaryKey: true},
			"name":        {LogicalName: "name", PhysicalName: "name", Type: model.TypeString},
			"region":      {LogicalName: "region", PhysicalName: "region", Type: model.TypeString},
		},
		RowCountHint: 10_000,
	}
	m.Entities["orders_fact"] = &model.SourceEntity{
		Name: "orders_fact", Schema: "dbo", Table: "orders_fact",
		Columns: map[string]*model.Column{
			"order_id":    {LogicalName: "order_id", PhysicalName: "order_id", Type: model.TypeInt64, PrimaryKey: true},
			"customer_id": {LogicalName: "customer_id", PhysicalName: "customer_id", Type: model.TypeInt64},
			"amount":      {LogicalName: "amount", PhysicalName: "amount", Type: model.TypeDecimal},
		},
		RowCountHint: 1_000_000,
	}

	m.Facts["orders_fact"] = &model.FactDefinition{
		Name:  "orders_fact",
		Grain: model.Grain{SourceEntity: "orders", Columns: []string{"order_id"}},
		Measures: map[string]*model.MeasureDef{
			"revenue":      {Name: "revenue", Aggregation: model.AggSum, SourceColumn: "amount"},
			"order_count":  {Name: "order_count", Aggregation: model.AggCount, SourceColumn: "*"},
		},
		Materialized: true,
		TargetTable:  "dbo.orders_fact",
	}

	m.Relationships = append(m.Relationships,
		&model.Relationship{FromEntity: "orders", FromColumn: "customer_id", ToEntity: "customers", ToColumn: "customer_id", Cardinality: model.ManyToOne},
		&model.Relationship{FromEntity: "orders_fact", FromColumn: "customer_id", ToEntity: "customers", ToColumn: "customer_id", Cardinality: model.ManyToOne},
	)

	return m
}

// withInventoryFact extends m with the scenario-6 second fact, a date
// entity that both facts join on month_id, and no relationship at all
// between inventory_fact and customers.
func withInventoryFact(m *model.Model) *model.Model {
	m.Entities["inventory_fact"] = &model.SourceEntity{
		Name: "inventory_fact", Schema: "dbo", Table: "inventory_fact",
		Columns: map[string]*model.Column{
			"inventory_id": {LogicalName: "inventory_id", PhysicalName: "inventory_id", Type: model.TypeInt64, PrimaryKey: true},
			"month_id":     {LogicalName: "month_id", PhysicalName: "month_id", Type: model.TypeInt32},
			"stock_value":  {LogicalName: "stock_value", PhysicalName: "stock_value", Type: model.TypeDecimal},
		},
		RowCountHint: 50_000,
	}
	m.Entities["date"] = &model.SourceEntity{
		Name: "date", Schema: "dbo", Table: "dim_date",
		Columns: map[string]*model.Column{
			"month_id": {LogicalName: "month_id", PhysicalName: "month_id", Type: model.TypeInt32, PrimaryKey: true},
			"month":    {LogicalName: "month", PhysicalName: "month", Type: model.TypeInt32},
		},
		RowCountHint: 120,
	}
	m.Entities["orders_fact"].Columns["month_id"] = &model.Column{LogicalName: "month_id", PhysicalName: "month_id", Type: model.TypeInt32}

	m.Facts["inventory_fact"] = &model.FactDefinition{
		Name:  "inventory_fact",
		Grain: model.Grain{SourceEntity: "inventory_fact", Columns: []string{"inventory_id"}},
		Measures: map[string]*model.MeasureDef{
			"stock_value": {Name: "stock_value", Aggregation: model.AggSum, SourceColumn: "stock_value"},
		},
		Materialized: true,
		TargetTable:  "dbo.inventory_fact",
	}

	m.Relationships = append(m.Relationships,
		&model.Relationship{FromEntity: "orders_fact", FromColumn: "month_id", ToEntity: "date", ToColumn: "month_id", Cardinality: model.ManyToOne},
		&model.Relationship{FromEntity: "inventory_fact", FromColumn: "month_id", ToEntity: "date", ToColumn: "month_id", Cardinality: model.ManyToOne},
	)
	return m
}
