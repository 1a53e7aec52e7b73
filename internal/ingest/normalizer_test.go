package ingest

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// memStore records inserted areas and serves the dedupe name lookup.
type memStore struct {
	coverage.Store

	areas      []*coverage.CoverageArea
	names      map[string]map[string]struct{} // providerID+scope -> names
	insertErrs int                            // fail this many inserts first
}

func newMemStore() *memStore {
	return &memStore{names: make(map[string]map[string]struct{})}
}

func (m *memStore) AreaNames(_ context.Context, providerID, ufScope string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for name := range m.names[providerID+"|"+ufScope] {
		out[name] = struct{}{}
	}
	return out, nil
}

func (m *memStore) InsertArea(_ context.Context, area *coverage.CoverageArea) error {
	if m.insertErrs > 0 {
		m.insertErrs--
		return eris.New("storage unavailable")
	}
	key := area.ProviderID + "|" + coverage.UFScope(area.UFs)
	if m.names[key] == nil {
		m.names[key] = make(map[string]struct{})
	}
	m.names[key][area.Name] = struct{}{}
	m.areas = append(m.areas, area)
	return nil
}

func TestIngestKML(t *testing.T) {
	store := newMemStore()

	report, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID: "p1",
		UFs:        []string{"sp"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Errors)
	assert.Equal(t, StatusCreated, report.Status)

	require.Len(t, store.areas, 2)
	for _, area := range store.areas {
		assert.Equal(t, []string{"SP"}, area.UFs)
		assert.NotEmpty(t, area.ID)
		// Always the multi-polygon shape, always XY.
		assert.Equal(t, geom.XY, area.Geometry.Layout())
		assert.GreaterOrEqual(t, area.Geometry.NumPolygons(), 1)
	}
}

func TestIngestIdempotentUnderDuplicateNames(t *testing.T) {
	store := newMemStore()
	opts := Options{ProviderID: "p1", UFs: []string{"SP"}}

	first, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), opts)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, StatusAllExisted, second.Status)
}

func TestIngestDuplicateNamesWithinFile(t *testing.T) {
	kml := `<kml><Document>
	  <Placemark><name>Zona Norte</name><Polygon><outerBoundaryIs><LinearRing><coordinates>
	    0,0 1,0 1,1 0,1 0,0
	  </coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
	  <Placemark><name>Zona Norte</name><Polygon><outerBoundaryIs><LinearRing><coordinates>
	    2,2 3,2 3,3 2,3 2,2
	  </coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
	</Document></kml>`

	store := newMemStore()
	report, err := Ingest(context.Background(), store, []byte(kml), Options{
		ProviderID: "p1",
		UFs:        []string{"SP"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
}

func TestIngestUFOrderSharesDedupeScope(t *testing.T) {
	store := newMemStore()

	first, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID: "p1", UFs: []string{"SP", "RJ"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	// Same UF set in reverse order dedupes against the first import.
	second, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID: "p1", UFs: []string{"RJ", "SP"},
	})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 2, second.Skipped)
}

func TestIngestNameFallbacks(t *testing.T) {
	unnamed := `<kml><Placemark><Polygon><outerBoundaryIs><LinearRing><coordinates>
	  0,0 1,0 1,1 0,1 0,0
	</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark></kml>`

	store := newMemStore()
	_, err := Ingest(context.Background(), store, []byte(unnamed), Options{
		ProviderID: "p1", UFs: []string{"SP"}, SourceName: "cobertura.kml",
	})
	require.NoError(t, err)
	require.Len(t, store.areas, 1)
	assert.Equal(t, "cobertura.kml", store.areas[0].Name)

	store = newMemStore()
	_, err = Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID: "p1", UFs: []string{"SP"}, NameOverride: "Cobertura 2026",
	})
	require.NoError(t, err)
	// Override collapses both features onto one name: first wins.
	require.Len(t, store.areas, 1)
	assert.Equal(t, "Cobertura 2026", store.areas[0].Name)
}

func TestIngestPersistenceErrorsCountedNotFatal(t *testing.T) {
	store := newMemStore()
	store.insertErrs = 1

	report, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID: "p1", UFs: []string{"SP"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, StatusCreated, report.Status)
}

func TestIngestNonPolygonalIgnored(t *testing.T) {
	kml := `<kml><Document>
	  <Placemark><name>Sede</name><Point><coordinates>-46.65,-23.56</coordinates></Point></Placemark>
	</Document></kml>`

	store := newMemStore()
	report, err := Ingest(context.Background(), store, []byte(kml), Options{
		ProviderID: "p1", UFs: []string{"SP"},
	})
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, StatusNoPolygons, report.Status)
}

func TestIngestValidation(t *testing.T) {
	store := newMemStore()

	_, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{UFs: []string{"SP"}})
	require.Error(t, err)

	_, err = Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{ProviderID: "p1"})
	require.Error(t, err)

	_, err = Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{ProviderID: "p1", UFs: []string{"XYZ"}})
	require.Error(t, err)
}

func TestIngestMalformedPayloadReportsNoPolygons(t *testing.T) {
	store := newMemStore()

	report, err := Ingest(context.Background(), store, []byte("not xml at all <<<"), Options{
		ProviderID: "p1", UFs: []string{"SP"},
	})
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, StatusNoPolygons, report.Status)
	assert.Empty(t, store.areas)
}

func TestIngestEmptyPayloadReportsNoPolygons(t *testing.T) {
	store := newMemStore()

	report, err := Ingest(context.Background(), store, nil, Options{
		ProviderID: "p1", UFs: []string{"SP"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNoPolygons, report.Status)
	assert.Empty(t, store.areas)
}

func TestIngestArchiveWithoutMapEntryAborts(t *testing.T) {
	store := newMemStore()
	archive := buildZip(t, map[string]string{"readme.txt": "nothing useful"})

	_, err := Ingest(context.Background(), store, archive, Options{
		ProviderID: "p1", UFs: []string{"SP"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no map entry")
}

func TestIngestProgress(t *testing.T) {
	store := newMemStore()
	var calls [][2]int

	_, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), Options{
		ProviderID:    "p1",
		UFs:           []string{"SP"},
		ProgressEvery: 1,
		Progress: func(processed, total int) {
			calls = append(calls, [2]int{processed, total})
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, [2]int{2, 2}, last)
}

func TestIngestProgressCountsSkippedFeatures(t *testing.T) {
	store := newMemStore()
	opts := Options{ProviderID: "p1", UFs: []string{"SP"}}

	_, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), opts)
	require.NoError(t, err)

	// Rerun: every feature is a duplicate, yet progress still advances.
	var calls [][2]int
	opts.ProgressEvery = 1
	opts.Progress = func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	}
	report, err := Ingest(context.Background(), store, []byte(kmlTwoPolygons), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}, {2, 2}}, calls)
}

func TestIngestGeoJSONZStripped(t *testing.T) {
	payload := `{
	  "type": "FeatureCollection",
	  "features": [{
	    "type": "Feature",
	    "properties": {"name": "Serra"},
	    "geometry": {
	      "type": "Polygon",
	      "coordinates": [[[0,0,100],[1,0,110],[1,1,120],[0,1,130],[0,0,100]]]
	    }
	  }]
	}`

	store := newMemStore()
	report, err := Ingest(context.Background(), store, []byte(payload), Options{
		ProviderID: "p1", UFs: []string{"ES"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	require.Len(t, store.areas, 1)
	mp := store.areas[0].Geometry
	assert.Equal(t, geom.XY, mp.Layout())
	assert.Equal(t, 2, mp.Stride())
}
