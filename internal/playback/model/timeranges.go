// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"slices"

	"github.com/samber/lo"
)

// TimeRange is a half-open interval of media time in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TimeRanges is an ordered set of disjoint ranges.
type TimeRanges []TimeRange

// NewTimeRanges sorts and merges the supplied ranges, dropping empty ones.
func NewTimeRanges(ranges ...TimeRange) TimeRanges {
	valid := lo.Filter(ranges, func(r TimeRange, _ int) bool {
		return r.End > r.Start
	})
	slices.SortFunc(valid, func(a, b TimeRange) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	out := make(TimeRanges, 0, len(valid))
	for _, r := range valid {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether t falls inside one of the ranges.
func (tr TimeRanges) Contains(t float64) bool {
	return lo.SomeBy(tr, func(r TimeRange) bool {
		return t >= r.Start && t < r.End
	})
}

// End returns the end of the last range, or 0 when empty.
func (tr TimeRanges) End() float64 {
	if len(tr) == 0 {
		return 0
	}
	return tr[len(tr)-1].End
}
