// Package geocode resolves Brazilian postal codes into addresses and
// coordinates via ViaCEP (primary) and BrasilAPI (fallback), with Nominatim
// free-text search filling in coordinates when neither supplies them.
package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// Result is one provider's answer for a postal code.
type Result struct {
	Address coverage.Address
	Coords  *coverage.Coordinates
	Source  string
	Found   bool
}

// CEPProvider is a single postal-code lookup backend.
type CEPProvider interface {
	Name() string
	Lookup(ctx context.Context, cep string) (*Result, error)
	Available() bool
}

// Chain tries providers in order until one finds the address. Provider
// errors and not-found answers both escalate to the next provider; only a
// found result short-circuits.
type Chain struct {
	providers []CEPProvider
}

// NewChain creates a Chain over the given providers.
func NewChain(providers ...CEPProvider) *Chain {
	return &Chain{providers: providers}
}

// Lookup runs the fallback chain for a normalized CEP.
func (c *Chain) Lookup(ctx context.Context, cep string) (*Result, error) {
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Lookup(ctx, cep)
		if err != nil {
			zap.L().Debug("geocode: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.String("cep", cep),
				zap.Error(err),
			)
			continue
		}
		if result != nil && result.Found {
			return result, nil
		}
	}

	// Every provider missed. Not an error, just unresolved.
	return &Result{Found: false, Source: "chain"}, nil
}
