package milestones

import (
	"fmt"
	"slices"
	"strings"

	"gaproadmap/internal/domain"
)

// Filter is a roadmap category tag as it appears in the filter query parameter.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterPending    Filter = "pending"
	FilterCompleted  Filter = "completed"
	FilterImpacts    Filter = "impacts"
	FilterActivities Filter = "activities"
	FilterUpdates    Filter = "updates"
)

var knownFilters = []Filter{
	FilterAll, FilterPending, FilterCompleted, FilterImpacts, FilterActivities, FilterUpdates,
}

func (f Filter) Valid() bool { return slices.Contains(knownFilters, f) }

// UnknownFilterError lists the tags ParseFilters did not recognise.
type UnknownFilterError struct {
	Tags []string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("unknown filter %s", strings.Join(e.Tags, ","))
}

// ParseFilters reads a comma separated tag list. Tags are case-insensitive and
// duplicates collapse; an empty list means all.
func ParseFilters(raw string) ([]Filter, error) {
	var (
		out     []Filter
		unknown []string
	)
	for _, part := range strings.Split(raw, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		f := Filter(tag)
		if !f.Valid() {
			unknown = append(unknown, tag)
			continue
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownFilterError{Tags: unknown}
	}
	if len(out) == 0 {
		return []Filter{FilterAll}, nil
	}
	return out, nil
}

// completable lists the types the pending and completed buckets apply to.
var completable = []domain.MilestoneType{domain.TypeMilestone, domain.TypeGrant, domain.TypeProject}

// Matches reports whether m belongs to the bucket f.
func (f Filter) Matches(m domain.UnifiedMilestone) bool {
	switch f {
	case FilterAll:
		return true
	case FilterPending:
		return !m.IsCompleted() && slices.Contains(completable, m.Type)
	case FilterCompleted:
		return m.IsCompleted() && slices.Contains(completable, m.Type)
	case FilterImpacts:
		return m.Type == domain.TypeImpact
	case FilterActivities:
		return m.Type == domain.TypeActivity
	case FilterUpdates:
		return m.Type == domain.TypeGrantUpdate
	}
	return false
}

// Apply keeps the items matching any of filters, preserving order. An empty
// filter set or one containing FilterAll returns items unchanged.
func Apply(items []domain.UnifiedMilestone, filters []Filter) []domain.UnifiedMilestone {
	if len(filters) == 0 || slices.Contains(filters, FilterAll) {
		return items
	}
	out := make([]domain.UnifiedMilestone, 0, len(items))
	for _, m := range items {
		if slices.ContainsFunc(filters, func(f Filter) bool { return f.Matches(m) }) {
			out = append(out, m)
		}
	}
	return out
}

// Build runs the whole pipeline: normalize, order most recent first, filter.
func Build(resp domain.UpdatesResponse, filters []Filter) []domain.UnifiedMilestone {
	items := Convert(resp)
	Sort(items)
	return Apply(items, filters)
}
