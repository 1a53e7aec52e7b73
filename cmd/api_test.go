package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizonnet/coverage-cli/internal/coverage"
	"github.com/horizonnet/coverage-cli/pkg/geocode"
)

type fakeStore struct {
	coverage.Store

	providersByLocation func(cep string, coords *coverage.Coordinates) ([]string, error)
	providersByCity     func(city, uf string) ([]string, error)
	planIDsByProviders  func(ids []string) ([]string, error)
	plansByIDs          func(ids []string) ([]coverage.Plan, error)
	areaNames           func(providerID, ufScope string) (map[string]struct{}, error)
	insertArea          func(area *coverage.CoverageArea) error
	listAreas           func(providerID string) ([]coverage.CoverageArea, error)
	listProviders       func() ([]coverage.Provider, error)
}

func (f *fakeStore) ProvidersByLocation(ctx context.Context, cep string, coords *coverage.Coordinates) ([]string, error) {
	if f.providersByLocation == nil {
		return nil, nil
	}
	return f.providersByLocation(cep, coords)
}

func (f *fakeStore) ProvidersByCity(ctx context.Context, city, uf string) ([]string, error) {
	if f.providersByCity == nil {
		return nil, nil
	}
	return f.providersByCity(city, uf)
}

func (f *fakeStore) PlanIDsByProviders(ctx context.Context, ids []string, activeOnly bool) ([]string, error) {
	if f.planIDsByProviders == nil {
		return nil, nil
	}
	return f.planIDsByProviders(ids)
}

func (f *fakeStore) PlansByIDs(ctx context.Context, ids []string, activeOnly bool) ([]coverage.Plan, error) {
	if f.plansByIDs == nil {
		return nil, nil
	}
	return f.plansByIDs(ids)
}

func (f *fakeStore) AreaNames(ctx context.Context, providerID, ufScope string) (map[string]struct{}, error) {
	if f.areaNames == nil {
		return map[string]struct{}{}, nil
	}
	return f.areaNames(providerID, ufScope)
}

func (f *fakeStore) InsertArea(ctx context.Context, area *coverage.CoverageArea) error {
	if f.insertArea == nil {
		return nil
	}
	return f.insertArea(area)
}

func (f *fakeStore) ListAreas(ctx context.Context, providerID string) ([]coverage.CoverageArea, error) {
	if f.listAreas == nil {
		return nil, nil
	}
	return f.listAreas(providerID)
}

func (f *fakeStore) ListProviders(ctx context.Context) ([]coverage.Provider, error) {
	if f.listProviders == nil {
		return nil, nil
	}
	return f.listProviders()
}

type fakeGeocoder struct {
	resolve func(cep string) (*geocode.Resolution, error)
}

func (f *fakeGeocoder) Resolve(ctx context.Context, cep string) (*geocode.Resolution, error) {
	return f.resolve(cep)
}

func (f *fakeGeocoder) SearchCoordinates(ctx context.Context, street, city, uf string) (*coverage.Coordinates, error) {
	return nil, nil
}

func newTestServer(store coverage.Store, geocoder geocode.Client) *httptest.Server {
	api := newAPIServer(store, geocoder, 0)
	return httptest.NewServer(api.router(nil))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResolveEndpoint(t *testing.T) {
	geocoder := &fakeGeocoder{
		resolve: func(cep string) (*geocode.Resolution, error) {
			assert.Equal(t, "01310100", cep)
			return &geocode.Resolution{
				Address: coverage.Address{Street: "Avenida Paulista", City: "São Paulo", UF: "SP"},
				Coords:  &coverage.Coordinates{Lat: -23.56, Lng: -46.65},
				Source:  "brasilapi",
				Found:   true,
			}, nil
		},
	}
	srv := newTestServer(&fakeStore{}, geocoder)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/resolve/01310-100")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Address coverage.Address      `json:"address"`
		Coords  *coverage.Coordinates `json:"coords"`
		Source  string                `json:"source"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "São Paulo", body.Address.City)
	require.NotNil(t, body.Coords)
	assert.Equal(t, "brasilapi", body.Source)
}

func TestResolveEndpointInvalidCEP(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/resolve/123")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResolveEndpointNotFound(t *testing.T) {
	geocoder := &fakeGeocoder{
		resolve: func(cep string) (*geocode.Resolution, error) {
			return &geocode.Resolution{Found: false}, nil
		},
	}
	srv := newTestServer(&fakeStore{}, geocoder)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/resolve/99999999")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAvailabilityEndpoint(t *testing.T) {
	store := &fakeStore{
		providersByLocation: func(cep string, coords *coverage.Coordinates) ([]string, error) {
			assert.Equal(t, "01310100", cep)
			return []string{"prov-1"}, nil
		},
		planIDsByProviders: func(ids []string) ([]string, error) {
			assert.Equal(t, []string{"prov-1"}, ids)
			return []string{"plan-1"}, nil
		},
		plansByIDs: func(ids []string) ([]coverage.Plan, error) {
			return []coverage.Plan{{ID: "plan-1", Name: "Fibra 500", Active: true}}, nil
		},
	}
	srv := newTestServer(store, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/availability?cep=01310-100")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Plans []coverage.Plan `json:"plans"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Plans, 1)
	assert.Equal(t, "Fibra 500", body.Plans[0].Name)
}

func TestAvailabilityEndpointEmptyResult(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/availability?cep=99999999")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Plans []coverage.Plan `json:"plans"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Plans)
}

func TestAvailabilityEndpointInvalidUFIsClientError(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/availability?city=Campinas&uf=S1")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAvailabilityEndpointStoreFailureIsServerError(t *testing.T) {
	store := &fakeStore{
		providersByLocation: func(cep string, coords *coverage.Coordinates) ([]string, error) {
			return []string{"prov-1"}, nil
		},
		planIDsByProviders: func(ids []string) ([]string, error) {
			return nil, assert.AnError
		},
	}
	srv := newTestServer(store, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/availability?cep=01310100")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAvailabilityEndpointValidation(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	for _, path := range []string{
		"/availability",
		"/availability?cep=12",
		"/availability?lat=abc&lng=1.0",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close() //nolint:errcheck
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

const testGeoJSON = `{
	"type": "FeatureCollection",
	"features": [{
		"type": "Feature",
		"properties": {"name": "Zona Norte"},
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[-46.7,-23.4],[-46.5,-23.4],[-46.5,-23.6],[-46.7,-23.6],[-46.7,-23.4]]]
		}
	}]
}`

func TestIngestEndpoint(t *testing.T) {
	var inserted []string
	store := &fakeStore{
		insertArea: func(area *coverage.CoverageArea) error {
			inserted = append(inserted, area.Name)
			return nil
		},
	}
	srv := newTestServer(store, &fakeGeocoder{})
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "areas.geojson")
	require.NoError(t, err)
	_, err = part.Write([]byte(testGeoJSON))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("provider_id", "prov-1"))
	require.NoError(t, mw.WriteField("uf", "SP"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/areas/ingest", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Created int    `json:"created"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, "created", report.Status)
	assert.Equal(t, []string{"Zona Norte"}, inserted)
}

func TestIngestEndpointMissingFile(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeGeocoder{})
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("provider_id", "prov-1"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/areas/ingest", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListProvidersEndpoint(t *testing.T) {
	store := &fakeStore{
		listProviders: func() ([]coverage.Provider, error) {
			return []coverage.Provider{{ID: "prov-1", Name: "Horizon Fibra"}}, nil
		},
	}
	srv := newTestServer(store, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/providers")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var providers []coverage.Provider
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&providers))
	require.Len(t, providers, 1)
	assert.Equal(t, "Horizon Fibra", providers[0].Name)
}

func TestListAreasEndpoint(t *testing.T) {
	store := &fakeStore{
		listAreas: func(providerID string) ([]coverage.CoverageArea, error) {
			assert.Equal(t, "prov-1", providerID)
			return []coverage.CoverageArea{{ID: "area-1", Name: "Zona Sul", UFs: []string{"SP"}}}, nil
		},
	}
	srv := newTestServer(store, &fakeGeocoder{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/providers/prov-1/areas")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var areas []coverage.CoverageArea
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&areas))
	require.Len(t, areas, 1)
	assert.Equal(t, "Zona Sul", areas[0].Name)
}
