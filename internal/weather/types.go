// Package weather fetches current conditions for a city from an
// OpenWeatherMap-compatible endpoint.
package weather

import "context"

// Observation is the structured enrichment output for a single city.
//
// Attributes are pointers: nil means the upstream did not report the value.
// An Observation with every attribute nil is never a valid result; the
// client rejects it as a schema mismatch instead of returning it.
type Observation struct {
	City        string
	Description *string
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	WindSpeed   *float64
	Clouds      *int64
}

// Empty reports whether no attribute is populated.
func (o Observation) Empty() bool {
	return o.Description == nil &&
		o.Temperature == nil &&
		o.Humidity == nil &&
		o.Pressure == nil &&
		o.WindSpeed == nil &&
		o.Clouds == nil
}

// Observer fetches the current observation for one city.
type Observer interface {
	Observe(ctx context.Context, city string) (Observation, error)
}
