package historian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/nerrad567/feederpull/internal/feeder"
)

// maxMessageLen bounds the error summary taken from a failed response.
const maxMessageLen = 200

// summaryResponse is the body of GET /streams/{webId}/summary.
type summaryResponse struct {
	Items []summaryItem `json:"Items"`
}

type summaryItem struct {
	Type  string         `json:"Type"`
	Value *recordedValue `json:"Value"`
}

type recordedValue struct {
	Timestamp string          `json:"Timestamp"`
	Value     json.RawMessage `json:"Value"`
}

// digitalState is how PI encodes enumeration values. System states
// ("Calc Failed", "No Data", "I/O Timeout") mark a missing reading.
type digitalState struct {
	Name     string   `json:"Name"`
	Value    *float64 `json:"Value"`
	IsSystem bool     `json:"IsSystem"`
}

// Summary fetches the configured summary window for one stream.
//
// Points are returned in response order with the timestamp string exactly
// as sent. A null value becomes 0.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - webID: PI Web API stream identifier
//
// Returns:
//   - []feeder.SamplePoint: One point per summary item (may be empty)
//   - error: *StatusError for non-200 responses, ErrRequestFailed for
//     transport failures, ErrMalformedResponse for undecodable bodies
func (c *Client) Summary(ctx context.Context, webID string) ([]feeder.SamplePoint, error) {
	if strings.TrimSpace(webID) == "" {
		return nil, ErrInvalidWebID
	}

	body, err := c.get(ctx, c.summaryURL(webID))
	if err != nil {
		return nil, err
	}
	return decodeSummary(body)
}

// decodeSummary converts a summary payload to sample points.
func decodeSummary(body []byte) ([]feeder.SamplePoint, error) {
	var payload summaryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	points := make([]feeder.SamplePoint, 0, len(payload.Items))
	for i, item := range payload.Items {
		if item.Value == nil {
			return nil, fmt.Errorf("%w: item %d has no value", ErrMalformedResponse, i)
		}
		points = append(points, feeder.SamplePoint{
			Timestamp: item.Value.Timestamp,
			Value:     numericValue(item.Value.Value),
		})
	}
	return points, nil
}

// numericValue interprets a PI recorded value.
//
// Numbers pass through, null becomes 0, digital states yield their numeric
// code, booleans become 1 or 0, and anything else (strings, error objects
// without a code) becomes 0. System digital states are missing readings and
// become 0 like null; their code is not a measurement.
func numericValue(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	switch raw[0] {
	case 'n':
		return 0
	case 't':
		return 1
	case 'f':
		return 0
	case '{':
		var state digitalState
		if err := json.Unmarshal(raw, &state); err != nil || state.Value == nil || state.IsSystem {
			return 0
		}
		return *state.Value
	case '"':
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// errorMessage reduces an error body to one short line.
//
// HTML pages (IIS and proxy errors) yield their title or first heading,
// PI Web API JSON errors yield their Errors list, anything else its first
// non-empty line.
func errorMessage(contentType string, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType) //nolint:errcheck // empty on failure
	trimmed := bytes.TrimSpace(body)

	var msg string
	switch {
	case mediaType == "text/html" || bytes.HasPrefix(trimmed, []byte("<")):
		msg = htmlMessage(trimmed)
	case mediaType == "application/json" || bytes.HasPrefix(trimmed, []byte("{")):
		var apiErr struct {
			Errors []string `json:"Errors"`
		}
		if json.Unmarshal(trimmed, &apiErr) == nil && len(apiErr.Errors) > 0 {
			msg = strings.Join(apiErr.Errors, "; ")
		}
	}
	if msg == "" {
		msg = firstLine(string(trimmed))
	}

	return truncate(strings.Join(strings.Fields(msg), " "), maxMessageLen)
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// htmlMessage extracts the title, or failing that the first h1 or h2.
func htmlMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1, h2").First().Text())
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
