package coverage

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidQuery marks availability requests rejected before any lookup
// runs (malformed CEP, malformed UF). Callers can map it to a client error.
var ErrInvalidQuery = eris.New("coverage: invalid query")

// Resolver answers availability requests by matching a resolved address
// against the three coverage tiers and enriching the surviving plan IDs.
//
// A plan is eligible when any tier matches its provider; it appears at most
// once regardless of how many tiers agreed. Tier failures are isolated: a
// broken spatial query must not hide a city-tier match.
type Resolver struct {
	store Store
	log   *zap.Logger
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store: store,
		log:   zap.L().With(zap.String("component", "coverage.resolver")),
	}
}

// FindAvailablePlans resolves the plans deliverable at the queried location.
// An empty result is a normal "no coverage" answer, not an error; only
// validation failures (malformed UF with a city present) abort the request.
func (r *Resolver) FindAvailablePlans(ctx context.Context, q Query) ([]Plan, error) {
	cep := ""
	if q.CEP != "" {
		normalized, ok := NormalizeCEP(q.CEP)
		if !ok {
			return nil, eris.Wrapf(ErrInvalidQuery, "malformed cep %q", q.CEP)
		}
		cep = normalized
	}

	city := NormalizeCity(q.City)
	uf := ""
	if city != "" {
		normalized, ok := NormalizeUF(q.UF)
		if !ok {
			return nil, eris.Wrapf(ErrInvalidQuery, "malformed uf %q", q.UF)
		}
		uf = normalized
	}

	// Tiers A+C (one combined store query) and tier B are independent
	// read-only lookups; run them concurrently. Each records its own
	// failure instead of cancelling the other.
	var locationProviders, cityProviders []string
	var locationErr, cityErr error

	g, gCtx := errgroup.WithContext(ctx)
	if cep != "" || q.Coords != nil {
		g.Go(func() error {
			locationProviders, locationErr = r.store.ProvidersByLocation(gCtx, cep, q.Coords)
			if locationErr != nil {
				r.log.Warn("location tier failed",
					zap.String("cep", cep),
					zap.Bool("has_coords", q.Coords != nil),
					zap.Error(locationErr),
				)
			}
			return nil
		})
	}
	if city != "" {
		g.Go(func() error {
			cityProviders, cityErr = r.store.ProvidersByCity(gCtx, city, uf)
			if cityErr != nil {
				r.log.Warn("city tier failed",
					zap.String("city", city),
					zap.String("uf", uf),
					zap.Error(cityErr),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	providerIDs := unionStrings(locationProviders, cityProviders)
	if len(providerIDs) == 0 {
		if locationErr != nil && cityErr != nil {
			r.log.Warn("all coverage tiers failed, returning no coverage")
		}
		return nil, nil
	}

	planIDs, err := r.store.PlanIDsByProviders(ctx, providerIDs, true)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: plan ids for matched providers")
	}
	planIDs = unionStrings(planIDs)
	if len(planIDs) == 0 {
		return nil, nil
	}

	// Enrichment runs only for a non-empty ID set.
	plans, err := r.store.PlansByIDs(ctx, planIDs, true)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: enrich plans")
	}

	r.log.Debug("availability resolved",
		zap.Int("providers", len(providerIDs)),
		zap.Int("plans", len(plans)),
	)
	return plans, nil
}

// unionStrings merges the given slices preserving first-seen order.
func unionStrings(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, s := range set {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
