package coverage

import "context"

// ProgressFunc reports processed/total after each committed batch.
type ProgressFunc func(done, total int)

// Store is the persistence boundary for the three coverage datasets and the
// plan/provider records they reference. Implementations must apply the
// package's normalization rules at write time; lookups assume already
// normalized input.
type Store interface {
	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// ProvidersByLocation returns IDs of providers whose exact-CEP set
	// contains cep or whose coverage polygons contain coords. Either check
	// may be skipped by passing an empty cep or nil coords. This is the
	// combined tier A+C query; it runs server-side where the backend can.
	ProvidersByLocation(ctx context.Context, cep string, coords *Coordinates) ([]string, error)

	// ProvidersByCity returns IDs of providers serving the normalized
	// (city, uf) pair.
	ProvidersByCity(ctx context.Context, city, uf string) ([]string, error)

	// PlanIDsByProviders returns the plan IDs offered by the given
	// providers, optionally restricted to active plans.
	PlanIDsByProviders(ctx context.Context, providerIDs []string, activeOnly bool) ([]string, error)

	// PlansByIDs fetches full plan records, with provider and benefits,
	// for the given IDs. Callers must not invoke it with an empty set.
	PlansByIDs(ctx context.Context, ids []string, activeOnly bool) ([]Plan, error)

	// AreaNames returns the coverage area names already stored for a
	// provider and UF scope (see UFScope).
	AreaNames(ctx context.Context, providerID, ufScope string) (map[string]struct{}, error)

	// InsertArea persists one coverage area.
	InsertArea(ctx context.Context, area *CoverageArea) error

	// ListAreas returns a provider's coverage areas without geometry.
	ListAreas(ctx context.Context, providerID string) ([]CoverageArea, error)

	// DeleteArea removes a single coverage area by ID.
	DeleteArea(ctx context.Context, id string) error

	// DeleteAreasByProvider removes all of a provider's coverage areas.
	DeleteAreasByProvider(ctx context.Context, providerID string) (int64, error)

	// InsertCEPs writes normalized CEPs for a provider in batches.
	InsertCEPs(ctx context.Context, providerID string, ceps []string, batchSize int, progress ProgressFunc) (int64, error)

	// InsertCities writes normalized city rows for a provider in batches.
	InsertCities(ctx context.Context, providerID string, cities []ServiceableCity, batchSize int, progress ProgressFunc) (int64, error)

	// DeleteCEPsByProvider removes a provider's serviceable CEPs.
	DeleteCEPsByProvider(ctx context.Context, providerID string) (int64, error)

	// DeleteCitiesByProvider removes a provider's serviceable cities.
	DeleteCitiesByProvider(ctx context.Context, providerID string) (int64, error)

	// CreateProvider inserts a provider record.
	CreateProvider(ctx context.Context, p *Provider) error

	// ListProviders returns all providers.
	ListProviders(ctx context.Context) ([]Provider, error)

	// CreatePlan inserts a plan with its benefits.
	CreatePlan(ctx context.Context, p *Plan) error
}
