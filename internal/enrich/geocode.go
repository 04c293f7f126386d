package enrich

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// GeocodeSource resolves a building's raw address to a standardized
// display address and coordinates using Nominatim. It contributes
// nothing when the address does not resolve.
type GeocodeSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// GeocodeOption configures a GeocodeSource.
type GeocodeOption func(*GeocodeSource)

// WithNominatimURL overrides the API endpoint (used by tests).
func WithNominatimURL(u string) GeocodeOption {
	return func(s *GeocodeSource) { s.baseURL = u }
}

// WithGeocodeHTTPClient overrides the HTTP client.
func WithGeocodeHTTPClient(c *http.Client) GeocodeOption {
	return func(s *GeocodeSource) { s.client = c }
}

// NewGeocode creates a Nominatim-backed source. The usage policy caps
// requests at one per second.
func NewGeocode(opts ...GeocodeOption) *GeocodeSource {
	s := &GeocodeSource{
		baseURL: defaultNominatimURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GeocodeSource) Name() string { return "nominatim" }

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (s *GeocodeSource) Enrich(ctx context.Context, b model.Building) (Partial, error) {
	if b.StandardizedAddress != "" && b.Coordinates != nil {
		return Partial{}, nil // nothing left to contribute
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Partial{}, eris.Wrap(err, "geocode: rate limit wait")
	}

	q := url.Values{"q": {b.Address}, "format": {"jsonv2"}, "limit": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Partial{}, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", "outreach-cli/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return Partial{}, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("geocode: status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return Partial{}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return Partial{}, err
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Partial{}, eris.Wrap(err, "geocode: decode response")
	}
	if len(results) == 0 {
		return Partial{}, nil
	}

	p := Partial{StandardizedAddress: results[0].DisplayName}
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr == nil && lngErr == nil {
		p.Coordinates = &model.Coordinates{Lat: lat, Lng: lng}
	}
	return p, nil
}
