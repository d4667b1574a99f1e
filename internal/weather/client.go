package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skyward-data/weatherpipe/pkg/pipeline/core"
)

// DefaultBaseURL is the production OpenWeatherMap endpoint.
const DefaultBaseURL = "https://api.openweathermap.org"

// Config configures the weather API client.
type Config struct {
	APIKey string

	// BaseURL overrides the weather API base URL. Useful for proxies/testing.
	BaseURL string

	// Units selects the measurement system for numeric fields ("metric",
	// "imperial" or "standard"). Defaults to metric.
	Units string

	// HTTPClient overrides the transport. Defaults to a client with a
	// 30s overall timeout; per-request deadlines come from ctx.
	HTTPClient *http.Client
}

// Client calls the current-weather endpoint for one city at a time.
//
// The client makes exactly one attempt per call. Retry policy, if any,
// belongs to the caller's worker pool.
type Client struct {
	baseURL *url.URL
	apiKey  string
	units   string
	http    *http.Client
}

// NewClient validates the config and constructs a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("weather api key is required")
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse weather base URL: %w", err)
	}

	units := strings.TrimSpace(cfg.Units)
	if units == "" {
		units = "metric"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		units:   units,
		http:    hc,
	}, nil
}

// payload mirrors the upstream response shape. Everything is a pointer so
// an absent field is distinguishable from a zero value.
type payload struct {
	Name    *string `json:"name"`
	Weather []struct {
		Description *string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
		Pressure *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Clouds *struct {
		All *int64 `json:"all"`
	} `json:"clouds"`
}

// Observe fetches the current observation for city.
//
// Failures are typed: transport errors pass through (timeouts are
// retry-classifiable), non-2xx responses become *HTTPError (5xx and 429
// wrapped transient), and responses missing required fields become
// *SchemaError rather than a partially-null observation.
func (c *Client) Observe(ctx context.Context, city string) (Observation, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Observation{}, errors.New("empty city")
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/data/2.5/weather"
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", c.units)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Observation{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Observation{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Observation{}, fmt.Errorf("read weather response for %q: %w", city, err)
	}
	if resp.StatusCode/100 != 2 {
		return Observation{}, classifyHTTP(newHTTPError(city, resp, body))
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Observation{}, &SchemaError{City: city, Cause: fmt.Sprintf("invalid json: %v", err)}
	}
	return p.toObservation(city)
}

func (p payload) toObservation(city string) (Observation, error) {
	var missing []string
	if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
		missing = append(missing, "name")
	}
	if len(p.Weather) == 0 || p.Weather[0].Description == nil {
		missing = append(missing, "weather[0].description")
	}
	if p.Main == nil || p.Main.Temp == nil {
		missing = append(missing, "main.temp")
	}
	if p.Main == nil || p.Main.Humidity == nil {
		missing = append(missing, "main.humidity")
	}
	if p.Main == nil || p.Main.Pressure == nil {
		missing = append(missing, "main.pressure")
	}
	if p.Wind == nil || p.Wind.Speed == nil {
		missing = append(missing, "wind.speed")
	}
	if p.Clouds == nil || p.Clouds.All == nil {
		missing = append(missing, "clouds.all")
	}
	if len(missing) > 0 {
		return Observation{}, &SchemaError{City: city, Missing: missing}
	}

	obs := Observation{
		City:        strings.TrimSpace(*p.Name),
		Description: p.Weather[0].Description,
		Temperature: p.Main.Temp,
		Humidity:    p.Main.Humidity,
		Pressure:    p.Main.Pressure,
		WindSpeed:   p.Wind.Speed,
		Clouds:      p.Clouds.All,
	}
	if obs.Empty() {
		return Observation{}, &SchemaError{City: city, Cause: "all attributes absent"}
	}
	return obs, nil
}

// SchemaError reports a 2xx response that does not match the expected
// shape. Kept separate from HTTPError so callers can tell "the upstream
// said no" apart from "the upstream said something we do not understand".
type SchemaError struct {
	City    string
	Missing []string
	Cause   string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "weather schema mismatch"
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("weather schema mismatch for %q: missing %s", e.City, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("weather schema mismatch for %q: %s", e.City, e.Cause)
}

func classifyHTTP(he *HTTPError) error {
	// Wrap throttling and server-side failures so a retry-enabled worker
	// pool may retry them; 4xx responses are permanent.
	switch {
	case he.StatusCode == http.StatusTooManyRequests:
		return &core.LimitedTransientError{Err: he, Retries: 1}
	case he.StatusCode/100 == 5:
		return &core.TransientError{Err: he}
	default:
		return he
	}
}
