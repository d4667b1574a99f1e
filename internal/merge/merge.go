// Package merge joins the static reference table with successfully fetched
// weather observations.
package merge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/skyward-data/weatherpipe/internal/fetch"
	"github.com/skyward-data/weatherpipe/internal/reference"
)

// Row is one joined output record, projected to the persisted column set.
type Row struct {
	City               string
	Country            *string
	Population         *int64
	Temperature        *float64
	WeatherDescription *string
	Humidity           *float64
	Pressure           *float64
	WindSpeed          *float64
	Clouds             *int64
}

// DropReason explains why a key was left out of the join.
type DropReason string

const (
	// DropFetchFailed: the enrichment attempt for the key failed.
	DropFetchFailed DropReason = "fetch_failed"
	// DropNoReference: a fetched key had no matching reference row.
	DropNoReference DropReason = "no_reference_match"
)

// Dropped is the diagnostic record for a key excluded from the join. Not an
// error by itself; the orchestrator reports it as run-quality detail.
type Dropped struct {
	Key    string
	Reason DropReason
	Err    error
}

// Merge inner-joins reference records with successful outcomes on the
// normalized key and projects the output column set.
//
// Deterministic: rows and dropped keys come back sorted by key, so
// identical inputs yield identical output regardless of outcome order.
func Merge(refs []reference.Record, outcomes []fetch.Outcome) ([]Row, []Dropped) {
	type fetched struct {
		outcome fetch.Outcome
		joined  bool
	}
	byKey := make(map[string]*fetched, len(outcomes))
	for _, o := range outcomes {
		byKey[normalize(o.Key)] = &fetched{outcome: o}
	}

	rows := make([]Row, 0, len(refs))
	var dropped []Dropped

	for _, ref := range refs {
		key := normalize(ref.Key)
		f, ok := byKey[key]
		if !ok {
			continue
		}
		if !f.outcome.Success() {
			if !f.joined {
				dropped = append(dropped, Dropped{Key: f.outcome.Key, Reason: DropFetchFailed, Err: f.outcome.Err})
				f.joined = true
			}
			continue
		}
		f.joined = true

		obs := f.outcome.Observation
		rows = append(rows, Row{
			City:               ref.Key,
			Country:            optString(ref.Attr("country")),
			Population:         optInt(ref.Attr("population")),
			Temperature:        obs.Temperature,
			WeatherDescription: obs.Description,
			Humidity:           obs.Humidity,
			Pressure:           obs.Pressure,
			WindSpeed:          obs.WindSpeed,
			Clouds:             obs.Clouds,
		})
	}

	for _, o := range outcomes {
		f := byKey[normalize(o.Key)]
		if f == nil || f.joined {
			continue
		}
		reason := DropNoReference
		if !o.Success() {
			reason = DropFetchFailed
		}
		dropped = append(dropped, Dropped{Key: o.Key, Reason: reason, Err: o.Err})
		f.joined = true
	}

	sort.Slice(rows, func(i, j int) bool { return normalize(rows[i].City) < normalize(rows[j].City) })
	sort.Slice(dropped, func(i, j int) bool { return normalize(dropped[i].Key) < normalize(dropped[j].Key) })
	return rows, dropped
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
