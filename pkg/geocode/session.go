package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
)

// State tracks where an interactive resolution stands.
type State int

const (
	// StateIdle means no lookup has been accepted yet.
	StateIdle State = iota
	// StateLoading means a lookup is in flight.
	StateLoading
	// StateManualEntry means every provider came up empty and the caller
	// must fill in the address by hand.
	StateManualEntry
	// StateResolved means the session holds a usable address.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateManualEntry:
		return "manual_entry"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Session drives a single address-resolution flow: submit a CEP, fall back
// to manual entry when no provider knows it, and pick up coordinates along
// the way. Sessions are not safe for concurrent use.
type Session struct {
	client Client

	state   State
	address coverage.Address
	coords  *coverage.Coordinates
	source  string
}

// NewSession returns an idle session backed by the given client.
func NewSession(client Client) *Session {
	return &Session{client: client, state: StateIdle}
}

func (s *Session) State() State                  { return s.state }
func (s *Session) Address() coverage.Address     { return s.address }
func (s *Session) Coords() *coverage.Coordinates { return s.coords }
func (s *Session) Source() string                { return s.source }

// SubmitCEP normalizes and resolves a raw CEP. Input that does not
// normalize to a valid CEP is rejected without any network traffic and the
// session keeps its previous state.
func (s *Session) SubmitCEP(ctx context.Context, raw string) error {
	cep, ok := coverage.NormalizeCEP(raw)
	if !ok {
		return nil
	}

	prev := s.state
	s.state = StateLoading

	res, err := s.client.Resolve(ctx, cep)
	if err != nil {
		s.state = prev
		return err
	}

	if !res.Found {
		// Keep the CEP so the caller does not have to retype it.
		s.address = coverage.Address{CEP: cep}
		s.coords = nil
		s.source = ""
		s.state = StateManualEntry
		zap.L().Debug("geocode: no provider resolved cep", zap.String("cep", cep))
		return nil
	}

	s.address = res.Address
	s.address.CEP = cep
	s.coords = res.Coords
	s.source = res.Source
	s.state = StateResolved
	return nil
}

// UpdateManualAddress records a hand-entered street and city. When the
// session has no coordinates yet and both fields are present, it runs a
// single free-text search; coordinates already on the session are never
// replaced by a manual edit.
func (s *Session) UpdateManualAddress(ctx context.Context, street, city, uf string) error {
	s.address.Street = street
	s.address.City = city
	s.address.UF = uf

	if street != "" && city != "" {
		s.state = StateResolved
	}

	if s.coords != nil || street == "" || city == "" {
		return nil
	}

	coords, err := s.client.SearchCoordinates(ctx, street, city, uf)
	if err != nil {
		zap.L().Debug("geocode: manual address search failed", zap.Error(err))
		return nil
	}
	if coords != nil {
		s.coords = coords
		s.source = "nominatim"
	}
	return nil
}

// Query projects the session onto a coverage query for plan matching.
func (s *Session) Query() coverage.Query {
	return coverage.Query{
		CEP:    s.address.CEP,
		City:   s.address.City,
		UF:     s.address.UF,
		Coords: s.coords,
	}
}
