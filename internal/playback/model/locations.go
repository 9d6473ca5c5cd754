// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// MediaLocationList holds the candidate locations of a redirect. Candidates
// are consumed from the last one to the first.
type MediaLocationList struct {
	locations []string
	index     int
}

// NewMediaLocationList builds a list from a redirect. A single new location
// is treated as a list of one.
func NewMediaLocationList(newLocation string, locations []string) *MediaLocationList {
	all := make([]string, 0, len(locations)+1)
	if newLocation != "" {
		all = append(all, newLocation)
	}
	all = append(all, locations...)
	return &MediaLocationList{locations: all, index: len(all) - 1}
}

// Next returns the current candidate and moves the cursor towards the front.
func (l *MediaLocationList) Next() (string, bool) {
	if l == nil || l.index < 0 {
		return "", false
	}
	loc := l.locations[l.index]
	l.index--
	return loc, true
}

// Remaining reports how many candidates have not been tried.
func (l *MediaLocationList) Remaining() int {
	if l == nil {
		return 0
	}
	return l.index + 1
}

// Len returns the total number of candidates.
func (l *MediaLocationList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.locations)
}
