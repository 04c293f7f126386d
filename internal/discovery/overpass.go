package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/geo"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassSource discovers apartment buildings from OpenStreetMap via the
// Overpass API.
type OverpassSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// OverpassOption configures an OverpassSource.
type OverpassOption func(*OverpassSource)

// WithOverpassURL overrides the API endpoint (used by tests).
func WithOverpassURL(u string) OverpassOption {
	return func(s *OverpassSource) { s.baseURL = u }
}

// WithOverpassHTTPClient overrides the HTTP client.
func WithOverpassHTTPClient(c *http.Client) OverpassOption {
	return func(s *OverpassSource) { s.client = c }
}

// NewOverpass creates an Overpass-backed discovery source. The public API
// asks for politeness, so requests are rate limited to one per two seconds.
func NewOverpass(opts ...OverpassOption) *OverpassSource {
	s := &OverpassSource{
		baseURL: defaultOverpassURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OverpassSource) Name() string { return "overpass" }

type overpassResponse struct {
	Elements []struct {
		Type   string            `json:"type"`
		Lat    float64           `json:"lat"`
		Lon    float64           `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center,omitempty"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// Discover queries OSM ways and nodes tagged building=apartments or
// building=residential inside the bbox. The HTTP call happens on first
// pull of the sequence.
func (s *OverpassSource) Discover(ctx context.Context, area model.AreaRequest) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		resp, err := s.query(ctx, area)
		if err != nil {
			yield(Candidate{}, err)
			return
		}

		for _, el := range resp.Elements {
			addr := overpassAddress(el.Tags)
			if addr == "" {
				continue // unaddressed geometry is useless for outreach
			}

			c := Candidate{
				Name:    el.Tags["name"],
				Address: addr,
				Type:    overpassType(el.Tags),
				Source:  s.Name(),
			}
			switch {
			case el.Center != nil:
				c.Coordinates = &model.Coordinates{Lat: el.Center.Lat, Lng: el.Center.Lon}
			case el.Lat != 0 || el.Lon != 0:
				c.Coordinates = &model.Coordinates{Lat: el.Lat, Lng: el.Lon}
			}

			// Ways only need to intersect the bbox to match, so a
			// centroid can land past the requested bounds.
			if c.Coordinates != nil && geo.Position(area, *c.Coordinates) == geo.PositionOutside {
				continue
			}

			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *OverpassSource) query(ctx context.Context, area model.AreaRequest) (*overpassResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit wait")
	}

	bbox := fmt.Sprintf("%f,%f,%f,%f", area.South, area.West, area.North, area.East)
	q := fmt.Sprintf(`[out:json][timeout:25];
(
  way["building"="apartments"](%s);
  way["building"="residential"](%s);
  node["building"="apartments"](%s);
);
out center tags;`, bbox, bbox, bbox)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL,
		strings.NewReader(url.Values{"data": {q}}.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "overpass: request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("overpass: status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "overpass: decode response")
	}
	return &parsed, nil
}

func overpassAddress(tags map[string]string) string {
	num, street := tags["addr:housenumber"], tags["addr:street"]
	if num == "" || street == "" {
		return ""
	}
	addr := num + " " + street
	if city := tags["addr:city"]; city != "" {
		addr += ", " + city
	}
	return addr
}

func overpassType(tags map[string]string) string {
	switch tags["building"] {
	case "apartments":
		return "residential_apartment"
	case "residential":
		return "residential"
	default:
		return tags["building"]
	}
}
