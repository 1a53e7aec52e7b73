package geocode

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// Resolution is the outcome of a postal-code resolution: the address and,
// when any source supplied or derived them, coordinates.
type Resolution struct {
	Address coverage.Address
	Coords  *coverage.Coordinates
	Source  string
	Found   bool
}

// Client resolves CEPs to addresses and free-text addresses to coordinates.
type Client interface {
	// Resolve runs the full chain for an already-normalized CEP.
	Resolve(ctx context.Context, cep string) (*Resolution, error)

	// SearchCoordinates geocodes a street/city/UF triple.
	SearchCoordinates(ctx context.Context, street, city, uf string) (*coverage.Coordinates, error)
}

// Config carries the endpoints and identity for the public providers.
type Config struct {
	ViaCEPBaseURL    string
	BrasilAPIBaseURL string
	NominatimBaseURL string
	UserAgent        string
	NominatimRPS     float64
	Timeout          time.Duration
}

type client struct {
	chain    *Chain
	searcher *NominatimSearcher
}

// NewClient wires the default provider chain: ViaCEP, then BrasilAPI, with
// Nominatim supplying coordinates when the chain's answer lacks them.
func NewClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	return &client{
		chain: NewChain(
			NewViaCEPProvider(cfg.ViaCEPBaseURL, hc),
			NewBrasilAPIProvider(cfg.BrasilAPIBaseURL, hc),
		),
		searcher: NewNominatimSearcher(cfg.NominatimBaseURL, cfg.UserAgent, cfg.NominatimRPS, hc),
	}
}

// Resolve implements Client. When a provider already supplied coordinates,
// the free-text search is skipped entirely.
func (c *client) Resolve(ctx context.Context, cep string) (*Resolution, error) {
	result, err := c.chain.Lookup(ctx, cep)
	if err != nil {
		return nil, err
	}
	if !result.Found {
		return &Resolution{Found: false, Source: result.Source}, nil
	}

	res := &Resolution{
		Address: result.Address,
		Coords:  result.Coords,
		Source:  result.Source,
		Found:   true,
	}

	if res.Coords == nil && result.Address.Street != "" && result.Address.City != "" {
		coords, searchErr := c.searcher.Search(ctx, result.Address.Street, result.Address.City, result.Address.UF)
		if searchErr != nil {
			// Coordinates are best-effort; matching degrades to the
			// CEP and city tiers without them.
			zap.L().Debug("geocode: free-text search failed",
				zap.String("cep", cep),
				zap.Error(searchErr),
			)
		} else if coords != nil {
			res.Coords = coords
			res.Source = res.Source + "+nominatim"
		}
	}

	return res, nil
}

// SearchCoordinates implements Client.
func (c *client) SearchCoordinates(ctx context.Context, street, city, uf string) (*coverage.Coordinates, error) {
	return c.searcher.Search(ctx, street, city, uf)
}
