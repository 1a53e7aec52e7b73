package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// NominatimSearcher resolves free-text addresses to coordinates through the
// OpenStreetMap Nominatim search endpoint. The service requires a client
// identifier in the User-Agent header and caps anonymous usage at one
// request per second, enforced here with a limiter.
type NominatimSearcher struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatimSearcher creates a searcher. rps of zero defaults to 1.
func NewNominatimSearcher(baseURL, userAgent string, rps float64, httpClient *http.Client) *NominatimSearcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if rps <= 0 {
		rps = 1
	}
	return &NominatimSearcher{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Search queries for "{street}, {city}, {uf}, Brazil" and returns the first
// hit's coordinates, or nil when nothing matches.
func (n *NominatimSearcher) Search(ctx context.Context, street, city, uf string) (*coverage.Coordinates, error) {
	query := composeQuery(street, city, uf)
	if query == "" {
		return nil, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := fmt.Sprintf("%s/search?%s", n.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var hits []nominatimHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(hits) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &coverage.Coordinates{Lat: lat, Lng: lng}, nil
}

// composeQuery joins the non-empty address parts with a fixed country
// suffix. Street and city are both required for a meaningful hit.
func composeQuery(street, city, uf string) string {
	street = strings.TrimSpace(street)
	city = strings.TrimSpace(city)
	if street == "" || city == "" {
		return ""
	}

	parts := []string{street, city}
	if uf = strings.TrimSpace(uf); uf != "" {
		parts = append(parts, uf)
	}
	parts = append(parts, "Brazil")
	return strings.Join(parts, ", ")
}
