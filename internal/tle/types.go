package tle

import "time"

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a loaded catalog of element sets.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []Elements

	byID map[int]int
}

// NewDataset indexes entries by catalog number and computes the epoch range.
// A later duplicate of the same catalog number replaces the earlier one.
func NewDataset(source string, fetchedAt time.Time, entries []Elements) *Dataset {
	ds := &Dataset{
		Source:    source,
		FetchedAt: fetchedAt,
		byID:      make(map[int]int, len(entries)),
	}
	for _, e := range entries {
		if idx, ok := ds.byID[e.NORADID]; ok {
			ds.Satellites[idx] = e
		} else {
			ds.byID[e.NORADID] = len(ds.Satellites)
			ds.Satellites = append(ds.Satellites, e)
		}
	}
	for i, e := range ds.Satellites {
		if i == 0 || e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
	}
	return ds
}

// Lookup returns the element set for a catalog number.
func (ds *Dataset) Lookup(noradID int) (Elements, bool) {
	idx, ok := ds.byID[noradID]
	if !ok {
		return Elements{}, false
	}
	return ds.Satellites[idx], true
}
