// Package diff compares a stored resource with freshly collected facts and an
// analysis, producing the ordered list of proposed field changes.
package diff

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/jonathan/resource-pipeline/internal/analyzer"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// DefaultBreakingBelow marks proposals under this confidence as breaking.
const DefaultBreakingBelow = 0.5

// Engine computes proposed changes. Metric changes are always emitted.
// Description and overview must clear Threshold. Other content fields are
// emitted at any confidence and flagged breaking below BreakingBelow, which
// config validation keeps under Threshold.
type Engine struct {
	Threshold     float64
	BreakingBelow float64
}

// NewEngine returns an engine with default thresholds.
func NewEngine() *Engine {
	return &Engine{Threshold: analyzer.DefaultThreshold, BreakingBelow: DefaultBreakingBelow}
}

// Compute returns proposed changes for r, metrics first then content, in
// field order. analysis and facts may each be nil.
func (e *Engine) Compute(r *types.Resource, analysis *types.Analysis, facts *types.Facts) []types.ProposedChange {
	changes := []types.ProposedChange{}
	if r == nil {
		return changes
	}

	var candidate *types.Resource
	if facts != nil {
		candidate = withFacts(r, facts)
	}

	for _, spec := range types.FieldSpecs() {
		var change *types.ProposedChange
		switch spec.Kind {
		case types.KindMetric:
			if candidate != nil {
				change = metricChange(spec, r, candidate)
			}
		case types.KindContent:
			if analysis != nil {
				change = e.contentChange(spec, r, analysis)
			}
		}
		if change != nil {
			change.Confidence = analyzer.ClampConfidence(change.Confidence)
			changes = append(changes, *change)
		}
	}
	return changes
}

// withFacts copies r and overlays every known fact.
func withFacts(r *types.Resource, facts *types.Facts) *types.Resource {
	c := *r
	f := r.Facts
	if facts.Stars != nil {
		f.Stars = facts.Stars
	}
	if facts.Forks != nil {
		f.Forks = facts.Forks
	}
	if facts.OpenIssues != nil {
		f.OpenIssues = facts.OpenIssues
	}
	if facts.Language != "" {
		f.Language = facts.Language
	}
	if facts.License != "" {
		f.License = facts.License
	}
	if facts.LastPush != nil {
		f.LastPush = facts.LastPush
	}
	if facts.Topics != nil {
		f.Topics = facts.Topics
	}
	if facts.Archived != nil {
		f.Archived = facts.Archived
	}
	c.Facts = f
	return &c
}

func metricChange(spec types.FieldSpec, current, candidate *types.Resource) *types.ProposedChange {
	oldValue, err := current.FieldValue(spec.Name)
	if err != nil {
		return nil
	}
	newValue, err := candidate.FieldValue(spec.Name)
	if err != nil || newValue == nil {
		return nil
	}
	if valuesEqual(oldValue, newValue) {
		return nil
	}
	return &types.ProposedChange{
		Field:      spec.Name,
		Label:      spec.Label,
		Kind:       types.KindMetric,
		OldValue:   oldValue,
		NewValue:   newValue,
		Confidence: 1.0,
		Reason:     fmt.Sprintf("%s changed from %s to %s", spec.Label, display(oldValue), display(newValue)),
	}
}

func (e *Engine) contentChange(spec types.FieldSpec, r *types.Resource, a *types.Analysis) *types.ProposedChange {
	change := &types.ProposedChange{
		Field:      spec.Name,
		Label:      spec.Label,
		Kind:       types.KindContent,
		Confidence: a.Confidence,
		Reason:     a.Summary,
	}

	switch spec.Name {
	case types.FieldDescription:
		if !analyzer.EligibleDescription(r.Description, a.Description, a.Confidence, e.Threshold) {
			return nil
		}
		change.OldValue, change.NewValue = r.Description, a.Description
	case types.FieldOverview:
		if !analyzer.EligibleDescription(r.Overview, a.Overview, a.Confidence, e.Threshold) {
			return nil
		}
		change.OldValue, change.NewValue = r.Overview, a.Overview
	case types.FieldFeatures:
		if len(a.Features) == 0 || sameSet(r.Features, a.Features) {
			return nil
		}
		change.OldValue, change.NewValue = listOrEmpty(r.Features), a.Features
		change.IsBreaking = removesFeatures(r.Features, a)
	case types.FieldTags:
		if len(a.Tags) == 0 || sameSet(r.Tags, a.Tags) {
			return nil
		}
		change.OldValue, change.NewValue = listOrEmpty(r.Tags), a.Tags
	case types.FieldDifficulty:
		if a.Difficulty == "" || strings.EqualFold(r.Difficulty, a.Difficulty) {
			return nil
		}
		change.OldValue, change.NewValue = r.Difficulty, a.Difficulty
	default:
		return nil
	}

	if change.Reason == "" {
		change.Reason = spec.Label + " updated from collected sources"
	}
	if a.Confidence < e.BreakingBelow {
		change.IsBreaking = true
	}
	return change
}

// removesFeatures reports whether the proposal drops a feature that was present.
func removesFeatures(stored []string, a *types.Analysis) bool {
	proposed := keySet(a.Features)
	for _, f := range stored {
		if _, ok := proposed[key(f)]; !ok {
			return true
		}
	}
	removed := keySet(a.RemovedFeatures)
	return lo.SomeBy(stored, func(f string) bool {
		_, ok := removed[key(f)]
		return ok
	})
}

func sameSet(a, b []string) bool {
	setA, setB := keySet(a), keySet(b)
	if len(setA) != len(setB) {
		return false
	}
	for k := range setA {
		if _, ok := setB[k]; !ok {
			return false
		}
	}
	return true
}

func keySet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if k := key(item); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func key(s string) string {
	return strings.ToLower(types.NormalizeText(s))
}

func listOrEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func valuesEqual(a, b any) bool {
	la, aList := a.([]string)
	lb, bList := b.([]string)
	if aList || bList {
		return slices.Equal(la, lb)
	}
	return a == b
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "unknown"
	case []string:
		if len(t) == 0 {
			return "none"
		}
		return strings.Join(t, ", ")
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.Format("2006-01-02")
		}
		if t == "" {
			return "none"
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}
