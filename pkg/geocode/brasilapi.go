package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// BrasilAPIProvider looks up addresses on the BrasilAPI CEP v2 endpoint,
// which sometimes carries coordinates alongside the address.
type BrasilAPIProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewBrasilAPIProvider creates a BrasilAPIProvider against the given base URL.
func NewBrasilAPIProvider(baseURL string, httpClient *http.Client) *BrasilAPIProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BrasilAPIProvider{baseURL: baseURL, httpClient: httpClient}
}

// Name implements CEPProvider.
func (p *BrasilAPIProvider) Name() string { return "brasilapi" }

// Available implements CEPProvider.
func (p *BrasilAPIProvider) Available() bool { return p.baseURL != "" }

type brasilAPIResponse struct {
	CEP          string `json:"cep"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
	Location     struct {
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

// Lookup implements CEPProvider.
func (p *BrasilAPIProvider) Lookup(ctx context.Context, cep string) (*Result, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, cep)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: brasilapi build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: brasilapi request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return &Result{Found: false, Source: "brasilapi"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: brasilapi returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: brasilapi read body")
	}

	var br brasilAPIResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, eris.Wrap(err, "geocode: brasilapi parse response")
	}

	result := &Result{
		Address: coverage.Address{
			CEP:          cep,
			Street:       br.Street,
			Neighborhood: br.Neighborhood,
			City:         br.City,
			UF:           br.State,
		},
		Source: "brasilapi",
		Found:  true,
	}

	lat, latErr := strconv.ParseFloat(br.Location.Coordinates.Latitude, 64)
	lng, lngErr := strconv.ParseFloat(br.Location.Coordinates.Longitude, 64)
	if latErr == nil && lngErr == nil {
		result.Coords = &coverage.Coordinates{Lat: lat, Lng: lng}
	}

	return result, nil
}
