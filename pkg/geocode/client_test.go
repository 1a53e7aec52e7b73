package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

func viaCEPServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestViaCEPProviderLookup(t *testing.T) {
	srv := viaCEPServer(t, `{
		"cep": "01310-100",
		"logradouro": "Avenida Paulista",
		"bairro": "Bela Vista",
		"localidade": "São Paulo",
		"uf": "SP"
	}`, http.StatusOK)
	defer srv.Close()

	p := NewViaCEPProvider(srv.URL, srv.Client())
	result, err := p.Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	require.True(t, result.Found)
	assert.Equal(t, "Avenida Paulista", result.Address.Street)
	assert.Equal(t, "São Paulo", result.Address.City)
	assert.Equal(t, "SP", result.Address.UF)
	assert.Nil(t, result.Coords)
}

func TestViaCEPProviderErroFlag(t *testing.T) {
	srv := viaCEPServer(t, `{"erro": true}`, http.StatusOK)
	defer srv.Close()

	p := NewViaCEPProvider(srv.URL, srv.Client())
	result, err := p.Lookup(context.Background(), "99999999")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestBrasilAPIProviderCoordinates(t *testing.T) {
	srv := viaCEPServer(t, `{
		"cep": "01310100",
		"state": "SP",
		"city": "São Paulo",
		"neighborhood": "Bela Vista",
		"street": "Avenida Paulista",
		"location": {"coordinates": {"latitude": "-23.561", "longitude": "-46.656"}}
	}`, http.StatusOK)
	defer srv.Close()

	p := NewBrasilAPIProvider(srv.URL, srv.Client())
	result, err := p.Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	require.True(t, result.Found)
	require.NotNil(t, result.Coords)
	assert.InDelta(t, -23.561, result.Coords.Lat, 1e-9)
	assert.InDelta(t, -46.656, result.Coords.Lng, 1e-9)
}

func TestViaCEPProviderReportsFailureOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewViaCEPProvider(srv.URL, srv.Client())
	_, err := p.Lookup(context.Background(), "01310100")
	require.Error(t, err)
	// A failed call surfaces after a single attempt; escalation to the
	// next provider is the chain's job.
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBrasilAPIProviderNotFound(t *testing.T) {
	srv := viaCEPServer(t, `{"message":"not found"}`, http.StatusNotFound)
	defer srv.Close()

	p := NewBrasilAPIProvider(srv.URL, srv.Client())
	result, err := p.Lookup(context.Background(), "99999999")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestBrasilAPIProviderMissingCoordinates(t *testing.T) {
	srv := viaCEPServer(t, `{
		"cep": "70040010",
		"state": "DF",
		"city": "Brasília",
		"street": "Setor Bancário Norte"
	}`, http.StatusOK)
	defer srv.Close()

	p := NewBrasilAPIProvider(srv.URL, srv.Client())
	result, err := p.Lookup(context.Background(), "70040010")
	require.NoError(t, err)
	require.True(t, result.Found)
	assert.Nil(t, result.Coords)
}

type stubProvider struct {
	name      string
	result    *Result
	err       error
	available bool
	calls     int
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Available() bool { return s.available }

func (s *stubProvider) Lookup(ctx context.Context, cep string) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestChainFirstFoundWins(t *testing.T) {
	first := &stubProvider{
		name:      "first",
		available: true,
		result:    &Result{Found: true, Source: "first", Address: coverage.Address{City: "São Paulo"}},
	}
	second := &stubProvider{name: "second", available: true, result: &Result{Found: true, Source: "second"}}

	result, err := NewChain(first, second).Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	assert.Equal(t, "first", result.Source)
	assert.Zero(t, second.calls)
}

func TestChainEscalatesOnErrorAndMiss(t *testing.T) {
	failing := &stubProvider{name: "failing", available: true, err: assert.AnError}
	missing := &stubProvider{name: "missing", available: true, result: &Result{Found: false}}
	last := &stubProvider{name: "last", available: true, result: &Result{Found: true, Source: "last"}}

	result, err := NewChain(failing, missing, last).Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "last", result.Source)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, missing.calls)
}

func TestChainSkipsUnavailable(t *testing.T) {
	down := &stubProvider{name: "down", available: false}
	up := &stubProvider{name: "up", available: true, result: &Result{Found: true, Source: "up"}}

	result, err := NewChain(down, up).Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	assert.Equal(t, "up", result.Source)
	assert.Zero(t, down.calls)
}

func TestChainExhaustion(t *testing.T) {
	miss := &stubProvider{name: "miss", available: true, result: &Result{Found: false}}

	result, err := NewChain(miss).Lookup(context.Background(), "99999999")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, "chain", result.Source)
}

func TestNominatimSearch(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[{"lat": "-23.5613", "lon": "-46.6565"}]`))
	}))
	defer srv.Close()

	n := NewNominatimSearcher(srv.URL, "coverage-cli/1.0", 100, srv.Client())
	coords, err := n.Search(context.Background(), "Avenida Paulista", "São Paulo", "SP")
	require.NoError(t, err)
	require.NotNil(t, coords)
	assert.Equal(t, "Avenida Paulista, São Paulo, SP, Brazil", gotQuery)
	assert.Equal(t, "coverage-cli/1.0", gotAgent)
	assert.InDelta(t, -23.5613, coords.Lat, 1e-9)
	assert.InDelta(t, -46.6565, coords.Lng, 1e-9)
}

func TestNominatimSearchRequiresStreetAndCity(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatimSearcher(srv.URL, "coverage-cli/1.0", 100, srv.Client())
	coords, err := n.Search(context.Background(), "", "São Paulo", "SP")
	require.NoError(t, err)
	assert.Nil(t, coords)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestNominatimSearchNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatimSearcher(srv.URL, "coverage-cli/1.0", 100, srv.Client())
	coords, err := n.Search(context.Background(), "Rua Inexistente", "Lugar Nenhum", "")
	require.NoError(t, err)
	assert.Nil(t, coords)
}

func TestClientResolveFillsCoordinatesFromNominatim(t *testing.T) {
	viacep := viaCEPServer(t, `{
		"logradouro": "Avenida Paulista",
		"localidade": "São Paulo",
		"uf": "SP"
	}`, http.StatusOK)
	defer viacep.Close()

	var nominatimQuery string
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nominatimQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`[{"lat": "-23.5613", "lon": "-46.6565"}]`))
	}))
	defer nominatim.Close()

	c := NewClient(Config{
		ViaCEPBaseURL:    viacep.URL,
		NominatimBaseURL: nominatim.URL,
		UserAgent:        "coverage-cli/1.0",
		NominatimRPS:     100,
	})

	res, err := c.Resolve(context.Background(), "01310100")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "Avenida Paulista, São Paulo, SP, Brazil", nominatimQuery)
	require.NotNil(t, res.Coords)
	assert.Equal(t, "viacep+nominatim", res.Source)
}

func TestClientResolveSkipsNominatimWhenProviderHasCoordinates(t *testing.T) {
	viacep := viaCEPServer(t, `{"erro": true}`, http.StatusOK)
	defer viacep.Close()

	brasilapi := viaCEPServer(t, `{
		"state": "SP",
		"city": "São Paulo",
		"street": "Avenida Paulista",
		"location": {"coordinates": {"latitude": "-23.561", "longitude": "-46.656"}}
	}`, http.StatusOK)
	defer brasilapi.Close()

	var nominatimHits int32
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&nominatimHits, 1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer nominatim.Close()

	c := NewClient(Config{
		ViaCEPBaseURL:    viacep.URL,
		BrasilAPIBaseURL: brasilapi.URL,
		NominatimBaseURL: nominatim.URL,
		UserAgent:        "coverage-cli/1.0",
		NominatimRPS:     100,
	})

	res, err := c.Resolve(context.Background(), "01310100")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "brasilapi", res.Source)
	require.NotNil(t, res.Coords)
	assert.Zero(t, atomic.LoadInt32(&nominatimHits))
}

func TestClientResolveNotFound(t *testing.T) {
	viacep := viaCEPServer(t, `{"erro": true}`, http.StatusOK)
	defer viacep.Close()

	c := NewClient(Config{ViaCEPBaseURL: viacep.URL})
	res, err := c.Resolve(context.Background(), "99999999")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestClientResolveSurvivesNominatimFailure(t *testing.T) {
	viacep := viaCEPServer(t, `{
		"logradouro": "Avenida Paulista",
		"localidade": "São Paulo",
		"uf": "SP"
	}`, http.StatusOK)
	defer viacep.Close()

	nominatim := viaCEPServer(t, `oops`, http.StatusInternalServerError)
	defer nominatim.Close()

	c := NewClient(Config{
		ViaCEPBaseURL:    viacep.URL,
		NominatimBaseURL: nominatim.URL,
		NominatimRPS:     100,
	})

	res, err := c.Resolve(context.Background(), "01310100")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Nil(t, res.Coords)
	assert.Equal(t, "viacep", res.Source)
}
