// Package mockweather implements a minimal OpenWeatherMap-like endpoint for
// local runs and harness tests.
package mockweather

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call records one request made to the mock service.
type Call struct {
	City   string
	APIKey string
}

// Conditions is the canned weather for one city.
type Conditions struct {
	Description string
	Temperature float64
	Humidity    float64
	Pressure    float64
	WindSpeed   float64
	Clouds      int64
}

// Server serves canned current-weather responses with per-city fault
// injection. Safe for concurrent use.
type Server struct {
	mu             sync.Mutex
	cities         map[string]Conditions
	statuses       map[string]int
	rawBodies      map[string]string
	calls          []Call
	expectedAPIKey string

	inFlight    int
	maxInFlight int
}

// New constructs an empty mock server.
func New() *Server {
	return &Server{
		cities:    make(map[string]Conditions),
		statuses:  make(map[string]int),
		rawBodies: make(map[string]string),
	}
}

// SetCity registers canned conditions for a city (case-insensitive).
func (s *Server) SetCity(name string, c Conditions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cities[key(name)] = c
}

// SetStatus makes requests for the city fail with the given HTTP status.
func (s *Server) SetStatus(name string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[key(name)] = code
}

// SetRawBody makes requests for the city return the body verbatim with a
// 200 status. Used to simulate malformed or incomplete payloads.
func (s *Server) SetRawBody(name, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBodies[key(name)] = body
}

// RequireAPIKey enforces that requests carry the given appid. An empty key
// disables enforcement.
func (s *Server) RequireAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedAPIKey = strings.TrimSpace(apiKey)
}

// Calls returns a copy of all recorded requests.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor counts the recorded requests for one city.
func (s *Server) CallsFor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if key(c.City) == key(name) {
			n++
		}
	}
	return n
}

// MaxInFlight reports the peak number of simultaneously served requests.
func (s *Server) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Handler returns an http.Handler serving the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/2.5/weather", s.handleWeather)
	return mux
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("q"))
	apiKey := strings.TrimSpace(r.URL.Query().Get("appid"))

	s.mu.Lock()
	s.calls = append(s.calls, Call{City: city, APIKey: apiKey})
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	expected := s.expectedAPIKey
	status, hasStatus := s.statuses[key(city)]
	raw, hasRaw := s.rawBodies[key(city)]
	cond, hasCity := s.cities[key(city)]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	switch {
	case city == "":
		writeAPIError(w, http.StatusBadRequest, "Nothing to geocode")
	case expected != "" && apiKey != expected:
		writeAPIError(w, http.StatusUnauthorized, "Invalid API key")
	case hasStatus:
		writeAPIError(w, status, http.StatusText(status))
	case hasRaw:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
	case hasCity:
		writeConditions(w, city, cond)
	default:
		writeAPIError(w, http.StatusNotFound, "city not found")
	}
}

func writeConditions(w http.ResponseWriter, city string, c Conditions) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":    city,
		"weather": []map[string]any{{"description": c.Description}},
		"main": map[string]any{
			"temp":     c.Temperature,
			"humidity": c.Humidity,
			"pressure": c.Pressure,
		},
		"wind":   map[string]any{"speed": c.WindSpeed},
		"clouds": map[string]any{"all": c.Clouds},
	})
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"cod":     fmt.Sprintf("%d", code),
		"message": msg,
	})
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
