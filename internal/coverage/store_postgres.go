package coverage

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/horizonnet/coverage-cli/internal/db"
)

// PostgresStore implements Store on Postgres with PostGIS. The point-in-
// polygon check of tier C runs server-side via ST_Contains, combined with
// the exact-CEP check in a single statement.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate implements Store.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis`,
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			logo_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL REFERENCES providers(id),
			name TEXT NOT NULL,
			download_mbps INT NOT NULL DEFAULT 0,
			upload_mbps INT NOT NULL DEFAULT 0,
			price_cents INT NOT NULL DEFAULT 0,
			contract_months INT NOT NULL DEFAULT 0,
			featured BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS benefits (
			id TEXT PRIMARY KEY,
			plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coverage_areas (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL REFERENCES providers(id),
			name TEXT NOT NULL,
			ufs TEXT[] NOT NULL,
			uf_scope TEXT NOT NULL,
			geom geometry(MultiPolygon, 4326) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (provider_id, uf_scope, name)
		)`,
		`CREATE INDEX IF NOT EXISTS coverage_areas_geom_idx ON coverage_areas USING GIST (geom)`,
		`CREATE TABLE IF NOT EXISTS serviceable_ceps (
			provider_id TEXT NOT NULL REFERENCES providers(id),
			cep TEXT NOT NULL,
			PRIMARY KEY (provider_id, cep)
		)`,
		`CREATE INDEX IF NOT EXISTS serviceable_ceps_cep_idx ON serviceable_ceps (cep)`,
		`CREATE TABLE IF NOT EXISTS serviceable_cities (
			provider_id TEXT NOT NULL REFERENCES providers(id),
			city TEXT NOT NULL,
			uf TEXT NOT NULL,
			PRIMARY KEY (provider_id, city, uf)
		)`,
		`CREATE INDEX IF NOT EXISTS serviceable_cities_city_idx ON serviceable_cities (city, uf)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "coverage: migrate")
		}
	}
	return nil
}

// ProvidersByLocation implements Store. Both membership checks run in one
// statement so a single round trip covers tiers A and C.
func (s *PostgresStore) ProvidersByLocation(ctx context.Context, cep string, coords *Coordinates) ([]string, error) {
	var lat, lng float64
	hasPoint := coords != nil
	if hasPoint {
		lat, lng = coords.Lat, coords.Lng
	}

	sql := `
		SELECT provider_id FROM serviceable_ceps WHERE cep = $1
		UNION
		SELECT provider_id FROM coverage_areas
		WHERE $2 AND ST_Contains(geom, ST_SetSRID(ST_MakePoint($3, $4), 4326))
		ORDER BY provider_id
	`
	rows, err := s.pool.Query(ctx, sql, cep, hasPoint, lng, lat)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: providers by location")
	}
	defer rows.Close()

	return scanStrings(rows)
}

// ProvidersByCity implements Store.
func (s *PostgresStore) ProvidersByCity(ctx context.Context, city, uf string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider_id FROM serviceable_cities WHERE city = $1 AND uf = $2 ORDER BY provider_id`,
		city, uf,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: providers by city")
	}
	defer rows.Close()

	return scanStrings(rows)
}

// PlanIDsByProviders implements Store.
func (s *PostgresStore) PlanIDsByProviders(ctx context.Context, providerIDs []string, activeOnly bool) ([]string, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM plans WHERE provider_id = ANY($1) AND (NOT $2 OR active) ORDER BY created_at, id`,
		providerIDs, activeOnly,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: plan ids by providers")
	}
	defer rows.Close()

	return scanStrings(rows)
}

// PlansByIDs implements Store.
func (s *PostgresStore) PlansByIDs(ctx context.Context, ids []string, activeOnly bool) ([]Plan, error) {
	if len(ids) == 0 {
		return nil, eris.New("coverage: plans by ids called with empty set")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.provider_id, p.name, p.download_mbps, p.upload_mbps,
		       p.price_cents, p.contract_months, p.featured, p.active, p.created_at,
		       pr.name, pr.logo_url, pr.created_at
		FROM plans p
		JOIN providers pr ON pr.id = p.provider_id
		WHERE p.id = ANY($1) AND (NOT $2 OR p.active)
		ORDER BY p.created_at, p.id`,
		ids, activeOnly,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: plans by ids")
	}
	defer rows.Close()

	var plans []Plan
	byID := make(map[string]int)
	for rows.Next() {
		var p Plan
		var pr Provider
		if err := rows.Scan(
			&p.ID, &p.ProviderID, &p.Name, &p.DownloadMbps, &p.UploadMbps,
			&p.PriceCents, &p.ContractMonths, &p.Featured, &p.Active, &p.CreatedAt,
			&pr.Name, &pr.LogoURL, &pr.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "coverage: scan plan row")
		}
		pr.ID = p.ProviderID
		p.Provider = &pr
		byID[p.ID] = len(plans)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate plan rows")
	}

	if len(plans) == 0 {
		return nil, nil
	}

	benefitRows, err := s.pool.Query(ctx,
		`SELECT id, plan_id, description FROM benefits WHERE plan_id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: benefits by plan ids")
	}
	defer benefitRows.Close()

	for benefitRows.Next() {
		var b Benefit
		if err := benefitRows.Scan(&b.ID, &b.PlanID, &b.Description); err != nil {
			return nil, eris.Wrap(err, "coverage: scan benefit row")
		}
		if i, ok := byID[b.PlanID]; ok {
			plans[i].Benefits = append(plans[i].Benefits, b)
		}
	}
	if err := benefitRows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate benefit rows")
	}

	return plans, nil
}

// AreaNames implements Store.
func (s *PostgresStore) AreaNames(ctx context.Context, providerID, ufScope string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM coverage_areas WHERE provider_id = $1 AND uf_scope = $2`,
		providerID, ufScope,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: area names")
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "coverage: scan area name")
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate area names")
	}
	return names, nil
}

// InsertArea implements Store. Geometry travels as EWKB to keep the codec
// in one place (go-geom) rather than hand-building WKT.
func (s *PostgresStore) InsertArea(ctx context.Context, area *CoverageArea) error {
	if area.Geometry == nil {
		return eris.New("coverage: area has no geometry")
	}

	geomBytes, err := ewkb.Marshal(area.Geometry.SetSRID(4326), ewkb.NDR)
	if err != nil {
		return eris.Wrap(err, "coverage: encode area geometry")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO coverage_areas (id, provider_id, name, ufs, uf_scope, geom)
		VALUES ($1, $2, $3, $4, $5, ST_GeomFromEWKB($6))`,
		area.ID, area.ProviderID, area.Name, area.UFs, UFScope(area.UFs), geomBytes,
	)
	if err != nil {
		return eris.Wrapf(err, "coverage: insert area %q", area.Name)
	}
	return nil
}

// ListAreas implements Store. Geometry is left out; listings only need
// identity and scope.
func (s *PostgresStore) ListAreas(ctx context.Context, providerID string) ([]CoverageArea, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, name, ufs, created_at FROM coverage_areas WHERE provider_id = $1 ORDER BY created_at, id`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: list areas")
	}
	defer rows.Close()

	var areas []CoverageArea
	for rows.Next() {
		var a CoverageArea
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.Name, &a.UFs, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "coverage: scan area row")
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate area rows")
	}
	return areas, nil
}

// DeleteArea implements Store.
func (s *PostgresStore) DeleteArea(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM coverage_areas WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "coverage: delete area")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("coverage: area %s not found", id)
	}
	return nil
}

// DeleteAreasByProvider implements Store.
func (s *PostgresStore) DeleteAreasByProvider(ctx context.Context, providerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM coverage_areas WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "coverage: delete areas by provider")
	}
	return tag.RowsAffected(), nil
}

// InsertCEPs implements Store using batched COPY.
func (s *PostgresStore) InsertCEPs(ctx context.Context, providerID string, ceps []string, batchSize int, progress ProgressFunc) (int64, error) {
	rows := make([][]any, len(ceps))
	for i, cep := range ceps {
		rows[i] = []any{providerID, cep}
	}
	return db.CopyFromBatched(ctx, s.pool, "serviceable_ceps", []string{"provider_id", "cep"}, rows, batchSize, progress)
}

// InsertCities implements Store using batched COPY.
func (s *PostgresStore) InsertCities(ctx context.Context, providerID string, cities []ServiceableCity, batchSize int, progress ProgressFunc) (int64, error) {
	rows := make([][]any, len(cities))
	for i, c := range cities {
		rows[i] = []any{providerID, c.City, c.UF}
	}
	return db.CopyFromBatched(ctx, s.pool, "serviceable_cities", []string{"provider_id", "city", "uf"}, rows, batchSize, progress)
}

// DeleteCEPsByProvider implements Store.
func (s *PostgresStore) DeleteCEPsByProvider(ctx context.Context, providerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM serviceable_ceps WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "coverage: delete ceps by provider")
	}
	return tag.RowsAffected(), nil
}

// DeleteCitiesByProvider implements Store.
func (s *PostgresStore) DeleteCitiesByProvider(ctx context.Context, providerID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM serviceable_cities WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "coverage: delete cities by provider")
	}
	return tag.RowsAffected(), nil
}

// CreateProvider implements Store.
func (s *PostgresStore) CreateProvider(ctx context.Context, p *Provider) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (id, name, logo_url) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.LogoURL,
	)
	if err != nil {
		return eris.Wrapf(err, "coverage: create provider %q", p.Name)
	}
	return nil
}

// ListProviders implements Store.
func (s *PostgresStore) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, logo_url, created_at FROM providers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "coverage: list providers")
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.LogoURL, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "coverage: scan provider row")
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate provider rows")
	}
	return providers, nil
}

// CreatePlan implements Store.
func (s *PostgresStore) CreatePlan(ctx context.Context, p *Plan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plans (id, provider_id, name, download_mbps, upload_mbps, price_cents, contract_months, featured, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.ProviderID, p.Name, p.DownloadMbps, p.UploadMbps, p.PriceCents, p.ContractMonths, p.Featured, p.Active,
	)
	if err != nil {
		return eris.Wrapf(err, "coverage: create plan %q", p.Name)
	}

	for _, b := range p.Benefits {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO benefits (id, plan_id, description) VALUES ($1, $2, $3)`,
			b.ID, p.ID, b.Description,
		); err != nil {
			return eris.Wrapf(err, "coverage: create benefit for plan %q", p.Name)
		}
	}
	return nil
}
