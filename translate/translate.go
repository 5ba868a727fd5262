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

// Package translate lowers a user-authored Report into the canonical
// SemanticQuery IR the Resolver consumes (spec.md §4.10): group items
// (drill paths / inline slicers), show items (plain measures, time-suffix
// measures, inline arithmetic measures), filters (@atom substitution), and
// sort/limit.
package translate

import (
	"fmt"

	"github.com/sqlplan/semantiq/model"
	"github.com/sqlplan/semantiq/semantic"
)

// Translate lowers report into a SemanticQuery against model.
func Translate(report *model.Report, m *model.Model) (*semantic.SemanticQuery, error) {
	if len(report.From) == 0 {
		return nil, semantic.ErrInvalidReference.New("report has no 'from' entity")
	}
	if len(report.From) > 1 {
		return nil, semantic.ErrInvalidReference.New(fmt.Sprintf("multi-table reports are not supported: got %d tables, expected 1", len(report.From)))
	}
	from := report.From[0]
	q := &semantic.SemanticQuery{From: &from, Limit: report.Limit}

	for _, item := range report.Group {
		ref, err := resolveGroupItem(item, from, m)
		if err != nil {
			return nil, err
		}
		q.GroupBy = append(q.GroupBy, ref)
	}

	added := map[string]bool{}
	for _, item := range report.Show {
		switch {
		case item.Measure != nil:
			sf, err := translateSimpleMeasure(item.Measure.Name, item.Measure.Label, from, m)
			if err != nil {
				return nil, err
			}
			if !added[item.Measure.Name] {
				q.Select = append(q.Select, sf)
				added[item.Measure.Name] = true
			}
		case item.MeasureWithSuffix != nil:
			base, derived, err := translateTimeSuffix(item.MeasureWithSuffix.Name, item.MeasureWithSuffix.Suffix, item.MeasureWithSuffix.Label, from, m)
			if err != nil {
				return nil, err
			}
			if !added[item.MeasureWithSuffix.Name] {
				q.Select = append(q.Select, base)
				added[item.MeasureWithSuffix.Name] = true
			}
			q.Derived = append(q.Derived, derived)
		case item.InlineMeasure != nil:
			derived, err := translateInlineMeasure(item.InlineMeasure.Name, item.InlineMeasure.Expr, item.InlineMeasure.Label, from, m)
			if err != nil {
				return nil, err
			}
			q.Derived = append(q.Derived, derived)
		default:
			return nil, semantic.ErrInvalidReference.New("show item has no measure/suffix/inline variant set")
		}
	}

	if report.Period != nil {
		return nil, semantic.ErrPeriodNotSupported.New(report.Name)
	}

	for _, raw := range report.Filters {
		compiled, err := compileAtoms(raw, from, m)
		if err != nil {
			return nil, err
		}
		q.RawFilters = append(q.RawFilters, compiled)
	}

	for _, item := range report.Sort {
		q.OrderBy = append(q.OrderBy, semantic.OrderField{
			Field:      semantic.NewFieldRef(from, item.Column),
			Descending: item.Direction == model.SortDesc,
		})
	}

	return q, nil
}

func resolveGroupItem(item model.GroupItem, from string, m *model.Model) (semantic.FieldRef, error) {
	switch {
	case item.DrillPath != nil:
		return resolveDrillPath(item.DrillPath, m)
	case item.InlineSlicer != nil:
		return resolveInlineSlicer(item.InlineSlicer, from, m)
	default:
		return semantic.FieldRef{}, semantic.ErrInvalidReference.New("group item has neither drill_path nor inline_slicer set")
	}
}

func resolveInlineSlicer(ref *model.InlineSlicerRef, from string, m *model.Model) (semantic.FieldRef, error) {
	if !columnExistsOnEntity(m, from, ref.Name) {
		return semantic.FieldRef{}, semantic.ErrUnknownField.New(from, ref.Name)
	}
	return semantic.NewFieldRef(from, ref.Name), nil
}

func resolveDrillPath(ref *model.DrillPathRef, m *model.Model) (semantic.FieldRef, error) {
	dim, dimOK := m.Dimensions[ref.Source]
	cal, calOK := m.Calendars[ref.Source]
	if !dimOK && !calOK {
		return semantic.FieldRef{}, semantic.ErrUnknownEntity.New(ref.Source)
	}

	level := model.GrainLevel(ref.Level)
	levelFound := false
	if dimOK {
		if dp, ok := dim.DrillPaths[ref.Path]; ok {
			for _, l := range dp.Levels {
				if l == level {
					levelFound = true
				}
			}
		}
	}
	if !levelFound && calOK && cal.Body.Physical != nil {
		if dp, ok := cal.Body.Physical.DrillPaths[ref.Path]; ok {
			for _, l := range dp.Levels {
				if l == level {
					levelFound = true
				}
			}
		}
	}
	if !levelFound {
		return semantic.FieldRef{}, semantic.ErrInvalidReference.New(fmt.Sprintf("drill path %s.%s.%s: level not found", ref.Source, ref.Path, ref.Level))
	}

	column := ref.Level
	if calOK && cal.Body.Physical != nil {
		if col, ok := cal.Body.Physical.GrainMappings[level]; ok {
			column = col
		}
	}
	return semantic.NewFieldRef(ref.Source, column), nil
}

// columnExistsOnEntity checks whether column is a known column/attribute of
// entity, whichever of SourceEntity/Dimension/FactDefinition it names.
func columnExistsOnEntity(m *model.Model, entity, column string) bool {
	if se, ok := m.Entities[entity]; ok {
		_, ok := se.Columns[column]
		return ok
	}
	if d, ok := m.Dimensions[entity]; ok {
		for _, c := range d.KeyColumns {
			if c == column {
				return true
			}
		}
		for _, c := range d.AttributeCols {
			if c == column {
				return true
			}
		}
		return false
	}
	if f, ok := m.Facts[entity]; ok {
		if se, ok := m.Entities[f.Grain.SourceEntity]; ok {
			_, ok := se.Columns[column]
			return ok
		}
	}
	return false
}

func translateSimpleMeasure(name, label, from string, m *model.Model) (semantic.SelectField, error) {
	fact, ok := m.Facts[from]
	if !ok {
		return semantic.SelectField{}, semantic.ErrUnknownEntity.New(from)
	}
	if _, ok := fact.Measures[name]; !ok {
		return semantic.SelectField{}, semantic.ErrUnknownMeasure.New(name)
	}
	sf := semantic.NewSelectField(from, name)
	if label != "" {
		sf = sf.WithAlias(label)
	}
	return sf, nil
}

// translateTimeSuffix expands a measure.suffix show item into a base
// SelectField (the raw measure, needed by the window function) plus a
// DerivedField carrying the time-intelligence expression tree.
func translateTimeSuffix(name string, suffix model.TimeSuffix, label, from string, m *model.Model) (semantic.SelectField, semantic.DerivedField, error) {
	fact, ok := m.Facts[from]
	if !ok {
		return semantic.SelectField{}, semantic.DerivedField{}, semantic.ErrUnknownEntity.New(from)
	}
	if _, ok := fact.Measures[name]; !ok {
		return semantic.SelectField{}, semantic.DerivedField{}, semantic.ErrUnknownMeasure.New(name)
	}
	base := semantic.NewSelectField(from, name)

	alias := label
	if alias == "" {
		alias = fmt.Sprintf("%s_%s", name, suffix)
	}

	fiscal := "fiscal"
	measureRef := func() semantic.DerivedExpr { return semantic.MeasureRefExpr{Name: from + "." + name} }
	priorYear := func() semantic.DerivedExpr {
		return semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFPriorYear, Measure: name}}
	}
	priorQuarter := func() semantic.DerivedExpr {
		return semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFPriorQuarter, Measure: name}}
	}
	priorPeriod1Approx := func() semantic.DerivedExpr {
		return semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFPriorPeriod, Measure: name, PeriodsBack: 1, Approximated: true}}
	}

	var expr semantic.DerivedExpr
	switch suffix {
	case model.SuffixYtd:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFYearToDate, Measure: name}}
	case model.SuffixQtd:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFQuarterToDate, Measure: name}}
	case model.SuffixMtd:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFMonthToDate, Measure: name}}
	case model.SuffixWtd:
		// WTD aliases MonthToDate's shape; no distinct week-grain window
		// exists yet (SPEC_FULL.md §4.10).
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFMonthToDate, Measure: name, Approximated: true}}
	case model.SuffixFiscalYtd:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFYearToDate, Measure: name, Via: &fiscal}}
	case model.SuffixFiscalQtd:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFQuarterToDate, Measure: name, Via: &fiscal}}
	case model.SuffixPriorYear:
		expr = priorYear()
	case model.SuffixPriorQtr:
		expr = priorQuarter()
	case model.SuffixPriorMonth, model.SuffixPriorWeek:
		// Both alias PriorPeriod(1); see SPEC_FULL.md §4.10.
		expr = priorPeriod1Approx()
	case model.SuffixYoyGrowth:
		expr = semantic.GrowthExpr{Current: measureRef(), Previous: priorYear()}
	case model.SuffixQoqGrowth:
		expr = semantic.GrowthExpr{Current: measureRef(), Previous: priorQuarter()}
	case model.SuffixMomGrowth, model.SuffixWowGrowth:
		expr = semantic.GrowthExpr{Current: measureRef(), Previous: priorPeriod1Approx()}
	case model.SuffixYoyDelta:
		expr = semantic.DeltaExpr{Current: measureRef(), Previous: priorYear()}
	case model.SuffixQoqDelta:
		expr = semantic.DeltaExpr{Current: measureRef(), Previous: priorQuarter()}
	case model.SuffixMomDelta, model.SuffixWowDelta:
		expr = semantic.DeltaExpr{Current: measureRef(), Previous: priorPeriod1Approx()}
	case model.SuffixRolling3m:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingSum, Measure: name, Periods: 3}}
	case model.SuffixRolling6m:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingSum, Measure: name, Periods: 6}}
	case model.SuffixRolling12m:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingSum, Measure: name, Periods: 12}}
	case model.SuffixRolling3mAvg:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingAvg, Measure: name, Periods: 3}}
	case model.SuffixRolling6mAvg:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingAvg, Measure: name, Periods: 6}}
	case model.SuffixRolling12mAvg:
		expr = semantic.TimeFunctionExpr{Fn: semantic.TimeFunction{Kind: semantic.TFRollingAvg, Measure: name, Periods: 12}}
	default:
		return semantic.SelectField{}, semantic.DerivedField{}, semantic.ErrInvalidReference.New(fmt.Sprintf("unsupported time suffix %q", suffix))
	}

	return base, semantic.DerivedField{Alias: alias, Expression: expr}, nil
}

func translateInlineMeasure(name, expr, label, from string, m *model.Model) (semantic.DerivedField, error) {
	fact, ok := m.Facts[from]
	if !ok {
		return semantic.DerivedField{}, semantic.ErrUnknownEntity.New(from)
	}
	tree, err := parseInlineExpr(expr, func(ident string) (semantic.DerivedExpr, error) {
		if _, ok := fact.Measures[ident]; !ok {
			return nil, semantic.ErrUnknownMeasure.New(ident)
		}
		return semantic.MeasureRefExpr{Name: from + "." + ident}, nil
	})
	if err != nil {
		return semantic.DerivedField{}, err
	}
	alias := label
	if alias == "" {
		alias = name
	}
	return semantic.DerivedField{Alias: alias, Expression: tree}, nil
}
