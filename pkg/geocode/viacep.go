package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// ViaCEPProvider looks up addresses on the ViaCEP public API. ViaCEP never
// returns coordinates.
type ViaCEPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewViaCEPProvider creates a ViaCEPProvider against the given base URL.
func NewViaCEPProvider(baseURL string, httpClient *http.Client) *ViaCEPProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ViaCEPProvider{baseURL: baseURL, httpClient: httpClient}
}

// Name implements CEPProvider.
func (p *ViaCEPProvider) Name() string { return "viacep" }

// Available implements CEPProvider.
func (p *ViaCEPProvider) Available() bool { return p.baseURL != "" }

type viaCEPResponse struct {
	CEP        string `json:"cep"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	Erro       bool   `json:"erro"`
}

// Lookup implements CEPProvider. The call is made exactly once; a failure
// is the chain's cue to escalate to the next provider, never to retry here.
func (p *ViaCEPProvider) Lookup(ctx context.Context, cep string) (*Result, error) {
	url := fmt.Sprintf("%s/%s/json/", p.baseURL, cep)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: viacep build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: viacep request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: viacep returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: viacep read body")
	}

	var vr viaCEPResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, eris.Wrap(err, "geocode: viacep parse response")
	}

	if vr.Erro {
		return &Result{Found: false, Source: "viacep"}, nil
	}

	return &Result{
		Address: coverage.Address{
			CEP:          cep,
			Street:       vr.Logradouro,
			Neighborhood: vr.Bairro,
			City:         vr.Localidade,
			UF:           vr.UF,
		},
		Source: "viacep",
		Found:  true,
	}, nil
}
