package milestones

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"gaproadmap/internal/domain"
)

// MillisecondThreshold separates Unix seconds from Unix milliseconds. Any
// value at or above it is read as milliseconds; seconds only reach it in the
// year 33658.
const MillisecondThreshold int64 = 1_000_000_000_000

// ResolveEndsAt derives a Unix-seconds deadline, trying in order the ISO due
// date, a seconds-scale data.endsAt, the raw endsAt and finally a
// millisecond-scale data.endsAt.
func ResolveEndsAt(dueDate string, data *domain.AttestationData, raw *domain.UnixRef) *int64 {
	if t, ok := parseTime(dueDate); ok {
		s := t.Unix()
		return &s
	}
	var dataEndsAt int64
	if data != nil {
		dataEndsAt = data.EndsAt.Value()
	}
	if dataEndsAt > 0 && dataEndsAt < MillisecondThreshold {
		return &dataEndsAt
	}
	if v := raw.Value(); v > 0 {
		s := normalizeUnix(v)
		return &s
	}
	if dataEndsAt > 0 {
		s := normalizeUnix(dataEndsAt)
		return &s
	}
	return nil
}

func normalizeUnix(v int64) int64 {
	if v >= MillisecondThreshold {
		return v / 1000
	}
	return v
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts the ISO-8601 variants the indexer emits.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp is the Unix-seconds instant an item is ordered by: its deadline,
// else its completion time, else its creation time. Unparseable values are 0.
func Timestamp(m domain.UnifiedMilestone) int64 {
	if m.EndsAt != nil {
		return *m.EndsAt
	}
	if m.Completed != nil {
		if t, ok := parseTime(m.Completed.CreatedAt); ok {
			return t.Unix()
		}
	}
	if t, ok := parseTime(m.CreatedAt); ok {
		return t.Unix()
	}
	return 0
}

// Sort orders items most recent first, in place. Items with equal timestamps
// keep their relative order, but callers should not depend on it.
func Sort(items []domain.UnifiedMilestone) {
	slices.SortStableFunc(items, func(a, b domain.UnifiedMilestone) int {
		return cmp.Compare(Timestamp(b), Timestamp(a))
	})
}
