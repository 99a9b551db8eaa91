// Package median reduces noisy repeated measurements to stable
// representative metrics.
package median

import (
	"sort"

	"github.com/jonesrussell/storepulse/internal/domain"
)

const evenSplit = 2

// Median returns the standard median of the present values. Nil entries are
// filtered out first; with no values left it returns nil. Even counts return
// the mean of the two middle sorted values, not nearest-rank. This tie-break
// affects reported figures and must not change.
func Median(values []*float64) *float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			present = append(present, *v)
		}
	}

	if len(present) == 0 {
		return nil
	}

	sort.Float64s(present)

	mid := len(present) / evenSplit
	if len(present)%evenSplit == 1 {
		m := present[mid]
		return &m
	}

	m := (present[mid-1] + present[mid]) / evenSplit
	return &m
}

// Aggregate computes the element-wise median of the runs' metric vectors.
// Fields are aggregated independently: a run missing one field still
// contributes to every other field. Empty input yields an all-nil vector.
func Aggregate(runs []domain.RawRun) domain.MetricVector {
	return domain.MetricVector{
		Performance:  medianOf(runs, func(v *domain.MetricVector) *float64 { return v.Performance }),
		FCP:          medianOf(runs, func(v *domain.MetricVector) *float64 { return v.FCP }),
		LCP:          medianOf(runs, func(v *domain.MetricVector) *float64 { return v.LCP }),
		CLS:          medianOf(runs, func(v *domain.MetricVector) *float64 { return v.CLS }),
		TBT:          medianOf(runs, func(v *domain.MetricVector) *float64 { return v.TBT }),
		TTI:          medianOf(runs, func(v *domain.MetricVector) *float64 { return v.TTI }),
		TTFB:         medianOf(runs, func(v *domain.MetricVector) *float64 { return v.TTFB }),
		SpeedIndex:   medianOf(runs, func(v *domain.MetricVector) *float64 { return v.SpeedIndex }),
		PageWeight:   medianOf(runs, func(v *domain.MetricVector) *float64 { return v.PageWeight }),
		RequestCount: medianOf(runs, func(v *domain.MetricVector) *float64 { return v.RequestCount }),
	}
}

// medianOf extracts one field from every run and takes its median.
func medianOf(runs []domain.RawRun, field func(*domain.MetricVector) *float64) *float64 {
	values := make([]*float64, 0, len(runs))
	for i := range runs {
		values = append(values, field(&runs[i].MetricVector))
	}
	return Median(values)
}

// GroupRuns partitions runs by (page type, device type). Within each group
// the original run-number order is preserved.
func GroupRuns(runs []domain.RawRun) map[domain.GroupKey][]domain.RawRun {
	groups := make(map[domain.GroupKey][]domain.RawRun)
	for _, run := range runs {
		key := run.GroupKey()
		groups[key] = append(groups[key], run)
	}
	return groups
}
