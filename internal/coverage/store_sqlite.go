package coverage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single-file sqlite database. Geometry is
// stored as GeoJSON text and tier C containment is evaluated in Go, so the
// backend works without any spatial extension. Suited to small deployments
// and tests, not to very large polygon sets.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS providers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	logo_url   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS plans (
	id              TEXT PRIMARY KEY,
	provider_id     TEXT NOT NULL REFERENCES providers(id),
	name            TEXT NOT NULL,
	download_mbps   INTEGER NOT NULL DEFAULT 0,
	upload_mbps     INTEGER NOT NULL DEFAULT 0,
	price_cents     INTEGER NOT NULL DEFAULT 0,
	contract_months INTEGER NOT NULL DEFAULT 0,
	featured        INTEGER NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS benefits (
	id          TEXT PRIMARY KEY,
	plan_id     TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	description TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS coverage_areas (
	id          TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL REFERENCES providers(id),
	name        TEXT NOT NULL,
	ufs         TEXT NOT NULL,
	uf_scope    TEXT NOT NULL,
	geom        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (provider_id, uf_scope, name)
);

CREATE TABLE IF NOT EXISTS serviceable_ceps (
	provider_id TEXT NOT NULL REFERENCES providers(id),
	cep         TEXT NOT NULL,
	PRIMARY KEY (provider_id, cep)
);

CREATE INDEX IF NOT EXISTS idx_serviceable_ceps_cep ON serviceable_ceps(cep);

CREATE TABLE IF NOT EXISTS serviceable_cities (
	provider_id TEXT NOT NULL REFERENCES providers(id),
	city        TEXT NOT NULL,
	uf          TEXT NOT NULL,
	PRIMARY KEY (provider_id, city, uf)
);

CREATE INDEX IF NOT EXISTS idx_serviceable_cities_city ON serviceable_cities(city, uf);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// ProvidersByLocation implements Store. The CEP check runs in SQL; polygon
// containment scans stored geometries and tests the point in Go.
func (s *SQLiteStore) ProvidersByLocation(ctx context.Context, cep string, coords *Coordinates) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	if cep != "" {
		rows, err := s.db.QueryContext(ctx,
			`SELECT provider_id FROM serviceable_ceps WHERE cep = ? ORDER BY provider_id`, cep)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: providers by cep")
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, eris.Wrap(err, "sqlite: scan provider id")
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: iterate cep rows")
		}
	}

	if coords != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT provider_id, geom FROM coverage_areas ORDER BY provider_id`)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: load areas")
		}
		defer rows.Close()
		for rows.Next() {
			var id, geomJSON string
			if err := rows.Scan(&id, &geomJSON); err != nil {
				return nil, eris.Wrap(err, "sqlite: scan area geometry")
			}
			if _, ok := seen[id]; ok {
				continue
			}
			mp, err := decodeMultiPolygon(geomJSON)
			if err != nil {
				return nil, err
			}
			if ContainsPoint(mp, *coords) {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: iterate area rows")
		}
	}

	return out, nil
}

// ProvidersByCity implements Store.
func (s *SQLiteStore) ProvidersByCity(ctx context.Context, city, uf string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_id FROM serviceable_cities WHERE city = ? AND uf = ? ORDER BY provider_id`,
		city, uf,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: providers by city")
	}
	defer rows.Close()
	return scanSQLStrings(rows)
}

// PlanIDsByProviders implements Store.
func (s *SQLiteStore) PlanIDsByProviders(ctx context.Context, providerIDs []string, activeOnly bool) ([]string, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id FROM plans WHERE provider_id IN (` + placeholders(len(providerIDs)) + `)`
	args := toArgs(providerIDs)
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: plan ids by providers")
	}
	defer rows.Close()
	return scanSQLStrings(rows)
}

// PlansByIDs implements Store.
func (s *SQLiteStore) PlansByIDs(ctx context.Context, ids []string, activeOnly bool) ([]Plan, error) {
	if len(ids) == 0 {
		return nil, eris.New("sqlite: plans by ids called with empty set")
	}

	query := `
		SELECT p.id, p.provider_id, p.name, p.download_mbps, p.upload_mbps,
		       p.price_cents, p.contract_months, p.featured, p.active, p.created_at,
		       pr.name, pr.logo_url, pr.created_at
		FROM plans p
		JOIN providers pr ON pr.id = p.provider_id
		WHERE p.id IN (` + placeholders(len(ids)) + `)`
	args := toArgs(ids)
	if activeOnly {
		query += ` AND p.active = 1`
	}
	query += ` ORDER BY p.created_at, p.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: plans by ids")
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
			return nil, eris.Wrap(err, "sqlite: scan plan row")
		}
		pr.ID = p.ProviderID
		p.Provider = &pr
		byID[p.ID] = len(plans)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate plan rows")
	}

	if len(plans) == 0 {
		return nil, nil
	}

	benefitRows, err := s.db.QueryContext(ctx,
		`SELECT id, plan_id, description FROM benefits WHERE plan_id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		toArgs(ids)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: benefits by plan ids")
	}
	defer benefitRows.Close()

	for benefitRows.Next() {
		var b Benefit
		if err := benefitRows.Scan(&b.ID, &b.PlanID, &b.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan benefit row")
		}
		if i, ok := byID[b.PlanID]; ok {
			plans[i].Benefits = append(plans[i].Benefits, b)
		}
	}
	if err := benefitRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate benefit rows")
	}

	return plans, nil
}

// AreaNames implements Store.
func (s *SQLiteStore) AreaNames(ctx context.Context, providerID, ufScope string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM coverage_areas WHERE provider_id = ? AND uf_scope = ?`,
		providerID, ufScope,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: area names")
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area name")
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate area names")
	}
	return names, nil
}

// InsertArea implements Store.
func (s *SQLiteStore) InsertArea(ctx context.Context, area *CoverageArea) error {
	if area.Geometry == nil {
		return eris.New("sqlite: area has no geometry")
	}

	geomJSON, err := geojson.Marshal(area.Geometry)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode area geometry")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coverage_areas (id, provider_id, name, ufs, uf_scope, geom)
		VALUES (?, ?, ?, ?, ?, ?)`,
		area.ID, area.ProviderID, area.Name, strings.Join(area.UFs, ","), UFScope(area.UFs), string(geomJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert area %q", area.Name)
	}
	return nil
}

// ListAreas implements Store.
func (s *SQLiteStore) ListAreas(ctx context.Context, providerID string) ([]CoverageArea, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, name, ufs, created_at FROM coverage_areas WHERE provider_id = ? ORDER BY created_at, id`,
		providerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close()

	var areas []CoverageArea
	for rows.Next() {
		var a CoverageArea
		var ufs string
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.Name, &ufs, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area row")
		}
		if ufs != "" {
			a.UFs = strings.Split(ufs, ",")
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate area rows")
	}
	return areas, nil
}

// DeleteArea implements Store.
func (s *SQLiteStore) DeleteArea(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coverage_areas WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: delete area")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: area %s not found", id)
	}
	return nil
}

// DeleteAreasByProvider implements Store.
func (s *SQLiteStore) DeleteAreasByProvider(ctx context.Context, providerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coverage_areas WHERE provider_id = ?`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete areas by provider")
	}
	return res.RowsAffected()
}

// InsertCEPs implements Store. Each batch is one transaction; a batch
// failure aborts the remainder and keeps earlier batches.
func (s *SQLiteStore) InsertCEPs(ctx context.Context, providerID string, ceps []string, batchSize int, progress ProgressFunc) (int64, error) {
	rows := make([][]any, len(ceps))
	for i, cep := range ceps {
		rows[i] = []any{providerID, cep}
	}
	return s.insertBatched(ctx,
		`INSERT OR IGNORE INTO serviceable_ceps (provider_id, cep) VALUES (?, ?)`,
		rows, batchSize, progress)
}

// InsertCities implements Store.
func (s *SQLiteStore) InsertCities(ctx context.Context, providerID string, cities []ServiceableCity, batchSize int, progress ProgressFunc) (int64, error) {
	rows := make([][]any, len(cities))
	for i, c := range cities {
		rows[i] = []any{providerID, c.City, c.UF}
	}
	return s.insertBatched(ctx,
		`INSERT OR IGNORE INTO serviceable_cities (provider_id, city, uf) VALUES (?, ?, ?)`,
		rows, batchSize, progress)
}

func (s *SQLiteStore) insertBatched(ctx context.Context, stmt string, rows [][]any, batchSize int, progress ProgressFunc) (int64, error) {
	if batchSize <= 0 {
		return 0, eris.Errorf("sqlite: invalid batch size %d", batchSize)
	}

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return total, eris.Wrap(err, "sqlite: begin batch")
		}
		for _, row := range rows[start:end] {
			res, err := tx.ExecContext(ctx, stmt, row...)
			if err != nil {
				tx.Rollback()
				return total, eris.Wrapf(err, "sqlite: batch starting at row %d", start)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		if err := tx.Commit(); err != nil {
			return total, eris.Wrap(err, "sqlite: commit batch")
		}

		if progress != nil {
			progress(end, len(rows))
		}
	}
	return total, nil
}

// DeleteCEPsByProvider implements Store.
func (s *SQLiteStore) DeleteCEPsByProvider(ctx context.Context, providerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM serviceable_ceps WHERE provider_id = ?`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete ceps by provider")
	}
	return res.RowsAffected()
}

// DeleteCitiesByProvider implements Store.
func (s *SQLiteStore) DeleteCitiesByProvider(ctx context.Context, providerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM serviceable_cities WHERE provider_id = ?`, providerID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete cities by provider")
	}
	return res.RowsAffected()
}

// CreateProvider implements Store.
func (s *SQLiteStore) CreateProvider(ctx context.Context, p *Provider) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO providers (id, name, logo_url) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.LogoURL,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create provider %q", p.Name)
	}
	return nil
}

// ListProviders implements Store.
func (s *SQLiteStore) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, logo_url, created_at FROM providers ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.LogoURL, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider row")
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate provider rows")
	}
	return providers, nil
}

// CreatePlan implements Store.
func (s *SQLiteStore) CreatePlan(ctx context.Context, p *Plan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create plan")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, provider_id, name, download_mbps, upload_mbps, price_cents, contract_months, featured, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProviderID, p.Name, p.DownloadMbps, p.UploadMbps, p.PriceCents, p.ContractMonths, p.Featured, p.Active,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create plan %q", p.Name)
	}

	for _, b := range p.Benefits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO benefits (id, plan_id, description) VALUES (?, ?, ?)`,
			b.ID, p.ID, b.Description,
		); err != nil {
			return eris.Wrapf(err, "sqlite: create benefit for plan %q", p.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit create plan")
	}
	return nil
}

func decodeMultiPolygon(raw string) (*geom.MultiPolygon, error) {
	var g geom.T
	if err := geojson.Unmarshal([]byte(raw), &g); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode area geometry")
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return nil, eris.Errorf("sqlite: stored geometry is %T, want MultiPolygon", g)
	}
	return mp, nil
}

func scanSQLStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan string row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
