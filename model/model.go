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

// Package model holds the declarative input to the compiler: source
// entities, dimensions, facts, relationships, calendars and reports.
// Nothing in this package performs name resolution or SQL generation;
// it is the canonical value the lowering stage hands to graph.BuildFromModel.
package model

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/src-d/go-errors.v1"
)

// ErrInvalidModel is raised by Validate when the model violates one of its
// own structural invariants (not a query-time error).
var ErrInvalidModel = errors.NewKind("invalid model: %s")

// Cardinality describes the multiplicity of a Relationship.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// CausesFanOut reports whether traversing this cardinality in the forward
// direction can multiply rows.
func (c Cardinality) CausesFanOut() bool {
	return c == OneToMany || c == ManyToMany
}

// Reversed returns the cardinality as seen from the other endpoint.
func (c Cardinality) Reversed() Cardinality {
	switch c {
	case OneToMany:
		return ManyToOne
	case ManyToOne:
		return OneToMany
	default:
		return c
	}
}

// DataType is the closed set of column types the validator's type-
// compatibility table (spec.md §4.3) reasons about.
type DataType string

const (
	TypeInt8        DataType = "int8"
	TypeInt16       DataType = "int16"
	TypeInt32       DataType = "int32"
	TypeInt64       DataType = "int64"
	TypeFloat32     DataType = "float32"
	TypeFloat64     DataType = "float64"
	TypeDecimal     DataType = "decimal"
	TypeString      DataType = "string"
	TypeVarchar     DataType = "varchar"
	TypeChar        DataType = "char"
	TypeUUID        DataType = "uuid"
	TypeDate        DataType = "date"
	TypeTime        DataType = "time"
	TypeTimestamp   DataType = "timestamp"
	TypeTimestampTz DataType = "timestamptz"
	TypeBinary      DataType = "binary"
	TypeJSON        DataType = "json"
	TypeBool        DataType = "bool"
)

func (d DataType) isIntFamily() bool {
	switch d {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}

func (d DataType) isFloatFamily() bool {
	return d == TypeFloat32 || d == TypeFloat64
}

func (d DataType) isStringFamily() bool {
	switch d {
	case TypeString, TypeVarchar, TypeChar:
		return true
	}
	return false
}

// TypesCompatible implements the join-column compatibility table from
// spec.md §4.3 / SPEC_FULL.md §4.3.
func TypesCompatible(left, right DataType) bool {
	if left == right {
		return true
	}
	if left.isIntFamily() && right.isIntFamily() {
		return true
	}
	if left.isIntFamily() && right.isFloatFamily() {
		return true
	}
	if right.isIntFamily() && left.isFloatFamily() {
		return true
	}
	if left == TypeDecimal && (right.isIntFamily() || right.isFloatFamily()) {
		return true
	}
	if right == TypeDecimal && (left.isIntFamily() || left.isFloatFamily()) {
		return true
	}
	if left.isStringFamily() && right.isStringFamily() {
		return true
	}
	if left == TypeTimestamp && (right == TypeTimestamp || right == TypeTimestampTz) {
		return true
	}
	if left == TypeTimestampTz && (right == TypeTimestamp || right == TypeTimestampTz) {
		return true
	}
	return false
}

// Column is a typed, physically-named column on a SourceEntity.
type Column struct {
	LogicalName  string
	PhysicalName string
	Type         DataType
	Nullable     bool
	PrimaryKey   bool
}

// SizeCategory buckets an entity's estimated row count for join-strategy
// hints only; never used for correctness (spec.md §4.1).
type SizeCategory string

const (
	SizeTiny   SizeCategory = "tiny"   // < 1e3
	SizeSmall  SizeCategory = "small"  // < 1e5
	SizeMedium SizeCategory = "medium" // < 1e7
	SizeLarge  SizeCategory = "large"  // < 1e9
	SizeHuge   SizeCategory = "huge"   // >= 1e9
)

// CategorizeSize buckets an estimated row count.
func CategorizeSize(rowCount int64) SizeCategory {
	switch {
	case rowCount < 1e3:
		return SizeTiny
	case rowCount < 1e5:
		return SizeSmall
	case rowCount < 1e7:
		return SizeMedium
	case rowCount < 1e9:
		return SizeLarge
	default:
		return SizeHuge
	}
}

// SourceEntity is a named physical relation.
type SourceEntity struct {
	Name          string
	Schema        string
	Table         string
	Columns       map[string]*Column
	RowCountHint  int64
}

// ColumnNames returns the entity's column names in deterministic
// (lexicographic) order.
func (e *SourceEntity) ColumnNames() []string {
	names := make([]string, 0, len(e.Columns))
	for n := range e.Columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DrillPath is an ordered list of calendar grain levels.
type DrillPath struct {
	Name   string
	Levels []GrainLevel
}

// GrainLevel is a calendar grain (year, quarter, month, day, ...).
type GrainLevel string

const (
	GrainYear    GrainLevel = "year"
	GrainQuarter GrainLevel = "quarter"
	GrainMonth   GrainLevel = "month"
	GrainDay     GrainLevel = "day"
	GrainWeek    GrainLevel = "week"
)

// Dimension is a materialized or virtual logical entity built on a source.
type Dimension struct {
	Name            string
	SourceEntity    string
	KeyColumns      []string
	AttributeCols   []string
	DrillPaths      map[string]*DrillPath
	Materialized    bool
}

// AggKind is the closed set of measure aggregations spec.md §3.1 allows.
type AggKind string

const (
	AggSum           AggKind = "sum"
	AggCount         AggKind = "count"
	AggCountDistinct AggKind = "count_distinct"
	AggAvg           AggKind = "avg"
	AggMin           AggKind = "min"
	AggMax           AggKind = "max"
)

func (a AggKind) String() string { return string(a) }

// SQL returns the canonical SQL aggregate function name.
func (a AggKind) SQL() string {
	switch a {
	case AggSum:
		return "SUM"
	case AggCount, AggCountDistinct:
		return "COUNT"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	default:
		return string(a)
	}
}

// MeasureDef is a measure belonging to a FactDefinition.
type MeasureDef struct {
	Name          string
	Aggregation   AggKind
	SourceColumn  string // "*" only legal with AggCount
	DefinitionSQL string // optional filter expression, already @atom-substituted
}

// Grain describes a fact's finest per-row key.
type Grain struct {
	SourceEntity string
	Columns      []string
}

// FactInclude is a role-playing dimension alias included on a fact, used
// for virtual-fact reconstruction (spec.md §4.5 step 1).
type FactInclude struct {
	Alias  string
	Entity string
}

// FactDefinition is a materialized-or-virtual fact table.
type FactDefinition struct {
	Name         string
	From         string // explicit grain source entity override, may be ""
	Grain        Grain
	Measures     map[string]*MeasureDef
	Includes     map[string]*FactInclude
	Materialized bool
	TargetTable  string // physical "schema.table", used by report/pivot planners
}

// Relationship is a directed edge between two entity columns.
type Relationship struct {
	FromEntity  string
	FromColumn  string
	ToEntity    string
	ToColumn    string
	Cardinality Cardinality
}

// CalendarBody is either a physical grain->column mapping or a generated
// base-grain + date range.
type CalendarBody struct {
	Physical  *PhysicalCalendar
	Generated *GeneratedCalendar
}

type PhysicalCalendar struct {
	Table          string
	GrainMappings  map[GrainLevel]string
	DrillPaths     map[string]*DrillPath
}

type GeneratedCalendar struct {
	BaseGrain GrainLevel
	StartDate string
	EndDate   string
}

// Calendar declares fiscal/week-start settings in addition to its grain
// mapping; period-expression expansion from these settings remains out of
// the core (SPEC_FULL.md DATA MODEL supplement).
type Calendar struct {
	Name             string
	Body             CalendarBody
	FiscalYearStart  int // month 1-12, default 1
	WeekStart        int // time.Weekday, default 0 (Sunday)
}

// Model is the full declarative input to the compiler.
type Model struct {
	BuildID   uuid.UUID
	Entities  map[string]*SourceEntity
	Dimensions map[string]*Dimension
	Facts     map[string]*FactDefinition
	Relationships []*Relationship
	Calendars map[string]*Calendar
	Reports   map[string]*Report
	Pivots    map[string]*PivotReport
}

// NewModel returns an empty Model with a fresh BuildID.
func NewModel() *Model {
	return &Model{
		BuildID:       uuid.New(),
		Entities:      map[string]*SourceEntity{},
		Dimensions:    map[string]*Dimension{},
		Facts:         map[string]*FactDefinition{},
		Calendars:     map[string]*Calendar{},
		Reports:       map[string]*Report{},
		Pivots:        map[string]*PivotReport{},
	}
}

// EntityNames returns all entity names (source entities, dimensions and
// facts) in deterministic order.
func (m *Model) EntityNames() []string {
	names := make([]string, 0, len(m.Entities)+len(m.Dimensions)+len(m.Facts))
	for n := range m.Entities {
		names = append(names, n)
	}
	for n := range m.Dimensions {
		names = append(names, n)
	}
	for n := range m.Facts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a measure uses source column '*' only with Count,
// that every relationship endpoint names a known entity (a source-entity
// endpoint must also have the column; fact and dimension endpoints are
// accepted without a column check), and that every level of a physical
// calendar's drill path has a grain mapping. It does not check that a
// measure's source column exists, primary-key nullability or uniqueness,
// or whether a virtual fact's grain can be resolved.
func (m *Model) Validate() error {
	for _, f := range m.sortedFacts() {
		for mname, md := range f.Measures {
			if md.SourceColumn == "*" && md.Aggregation != AggCount {
				return ErrInvalidModel.New(fmt.Sprintf(
					"fact %q measure %q: source_column '*' is only valid for Count", f.Name, mname))
			}
		}
	}
	for _, r := range m.Relationships {
		if err := m.checkRelationshipEndpoint(r.FromEntity, r.FromColumn); err != nil {
			return err
		}
		if err := m.checkRelationshipEndpoint(r.ToEntity, r.ToColumn); err != nil {
			return err
		}
	}
	for _, d := range m.sortedDimensions() {
		for _, dp := range d.DrillPaths {
			for _, level := range dp.Levels {
				if !m.calendarHasGrain(d.Name, level) {
					// drill paths on dimensions reference their own grain levels,
					// not necessarily a calendar; only calendars are checked below.
					continue
				}
			}
		}
	}
	for _, c := range m.sortedCalendars() {
		if c.Body.Physical == nil {
			continue
		}
		for name, dp := range c.Body.Physical.DrillPaths {
			for _, level := range dp.Levels {
				if _, ok := c.Body.Physical.GrainMappings[level]; !ok {
					return ErrInvalidModel.New(fmt.Sprintf(
						"calendar %q drill path %q: grain level %q has no column mapping", c.Name, name, level))
				}
			}
		}
	}
	return nil
}

func (m *Model) calendarHasGrain(entity string, level GrainLevel) bool {
	c, ok := m.Calendars[entity]
	if !ok || c.Body.Physical == nil {
		return false
	}
	_, ok = c.Body.Physical.GrainMappings[level]
	return ok
}

func (m *Model) checkRelationshipEndpoint(entity, column string) error {
	if se, ok := m.Entities[entity]; ok {
		if _, ok := se.Columns[column]; !ok {
			return ErrInvalidModel.New(fmt.Sprintf("relationship endpoint %s.%s: no such column", entity, column))
		}
		return nil
	}
	if _, ok := m.Facts[entity]; ok {
		return nil // fact columns may be virtual; they are not checked
	}
	if _, ok := m.Dimensions[entity]; ok {
		return nil
	}
	return ErrInvalidModel.New(fmt.Sprintf("relationship endpoint %s.%s: no such entity", entity, column))
}

func (m *Model) sortedFacts() []*FactDefinition {
	names := make([]string, 0, len(m.Facts))
	for n := range m.Facts {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*FactDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, m.Facts[n])
	}
	return out
}

func (m *Model) sortedDimensions() []*Dimension {
	names := make([]string, 0, len(m.Dimensions))
	for n := range m.Dimensions {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Dimension, 0, len(names))
	for _, n := range names {
		out = append(out, m.Dimensions[n])
	}
	return out
}

func (m *Model) sortedCalendars() []*Calendar {
	names := make([]string, 0, len(m.Calendars))
	for n := range m.Calendars {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Calendar, 0, len(names))
	for _, n := range names {
		out = append(out, m.Calendars[n])
	}
	return out
}
