// Package coverage implements the coverage resolution engine: the datasets
// that assert where a provider can deliver service, and the tiered matching
// that turns a resolved address into a list of available plans.
package coverage

import (
	"time"

	"github.com/twpayne/go-geom"
)

// Provider is a service provider that owns coverage records. Coverage rows
// reference providers by ID so renames do not orphan them.
type Provider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Benefit is a single perk attached to a plan.
type Benefit struct {
	ID          string `json:"id"`
	PlanID      string `json:"plan_id"`
	Description string `json:"description"`
}

// Plan is a sellable internet plan. Only active plans are eligible for
// availability results.
type Plan struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider_id"`
	Name           string    `json:"name"`
	DownloadMbps   int       `json:"download_mbps"`
	UploadMbps     int       `json:"upload_mbps"`
	PriceCents     int       `json:"price_cents"`
	ContractMonths int       `json:"contract_months"`
	Featured       bool      `json:"featured"`
	Active         bool      `json:"active"`
	Provider       *Provider `json:"provider,omitempty"`
	Benefits       []Benefit `json:"benefits,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CoverageArea is a named multi-polygon asserting that a provider serves
// locations inside it. Geometry is always stored as a 2-D MultiPolygon,
// even when the source file carried a single polygon or elevation data.
type CoverageArea struct {
	ID         string             `json:"id"`
	ProviderID string             `json:"provider_id"`
	Name       string             `json:"name"`
	UFs        []string           `json:"ufs"`
	Geometry   *geom.MultiPolygon `json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ServiceableCEP is a single normalized postal code served by a provider.
type ServiceableCEP struct {
	ProviderID string `json:"provider_id"`
	CEP        string `json:"cep"`
}

// ServiceableCity is a (city, UF) pair served by a provider. City is stored
// uppercase and accent-stripped; UF uppercase.
type ServiceableCity struct {
	ProviderID string `json:"provider_id"`
	City       string `json:"city"`
	UF         string `json:"uf"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address is a resolved or manually entered address. The engine never
// persists it; ownership stays with the caller.
type Address struct {
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	UF           string `json:"uf"`
	Number       string `json:"number"`
}

// Query is one availability request against the three coverage tiers.
type Query struct {
	CEP    string
	City   string
	UF     string
	Coords *Coordinates
}
