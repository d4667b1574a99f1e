package weather

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/skyward-data/weatherpipe/pkg/pipeline/redact"
)

// apiErrorEnvelope is the error shape OpenWeatherMap returns for non-2xx
// responses. Extra fields are intentionally ignored.
type apiErrorEnvelope struct {
	// Cod is a string in some responses and a number in others.
	Cod     json.RawMessage `json:"cod"`
	Message string          `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx weather API response.
//
// Important: do not include raw response bodies here (the request URL and
// body can carry the API key).
type HTTPError struct {
	City       string
	StatusCode int
	Status     string
	Message    string

	// Snippet is a redacted, truncated hint for non-JSON responses.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "weather api error"
	}
	parts := []string{
		fmt.Sprintf("weather api error: city=%q status=%s", e.City, strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(city string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{City: city}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	// Best effort: parse the API error envelope.
	var env apiErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && strings.TrimSpace(env.Message) != "" {
		h.Message = redact.Secrets(env.Message)
		return h
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
