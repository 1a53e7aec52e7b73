package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/horizonnet/coverage-cli/internal/coverage"
	"github.com/horizonnet/coverage-cli/internal/ingest"
	"github.com/horizonnet/coverage-cli/pkg/geocode"
)

// maxIngestBody caps uploaded geometry files at 64 MiB.
const maxIngestBody = 64 << 20

type apiServer struct {
	store    coverage.Store
	resolver *coverage.Resolver
	geocoder geocode.Client

	ingestProgressEvery int
}

func newAPIServer(store coverage.Store, geocoder geocode.Client, progressEvery int) *apiServer {
	return &apiServer{
		store:               store,
		resolver:            coverage.NewResolver(store),
		geocoder:            geocoder,
		ingestProgressEvery: progressEvery,
	}
}

func (s *apiServer) router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/resolve/{cep}", s.handleResolve)
	r.Get("/availability", s.handleAvailability)
	r.Post("/areas/ingest", s.handleIngest)
	r.Get("/providers", s.handleListProviders)
	r.Get("/providers/{id}/areas", s.handleListAreas)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	cep, ok := coverage.NormalizeCEP(chi.URLParam(r, "cep"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid cep")
		return
	}

	res, err := s.geocoder.Resolve(r.Context(), cep)
	if err != nil {
		zap.L().Error("resolve failed", zap.String("cep", cep), zap.Error(err))
		writeError(w, http.StatusBadGateway, "resolution failed")
		return
	}
	if !res.Found {
		writeError(w, http.StatusNotFound, "cep not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": res.Address,
		"coords":  res.Coords,
		"source":  res.Source,
	})
}

func (s *apiServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := coverage.Query{
		City: r.URL.Query().Get("city"),
		UF:   r.URL.Query().Get("uf"),
	}

	if raw := r.URL.Query().Get("cep"); raw != "" {
		cep, ok := coverage.NormalizeCEP(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid cep")
			return
		}
		q.CEP = cep
	}

	latRaw, lngRaw := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if latRaw != "" && lngRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lng, lngErr := strconv.ParseFloat(lngRaw, 64)
		if latErr != nil || lngErr != nil {
			writeError(w, http.StatusBadRequest, "invalid coordinates")
			return
		}
		q.Coords = &coverage.Coordinates{Lat: lat, Lng: lng}
	}

	if q.CEP == "" && q.City == "" && q.Coords == nil {
		writeError(w, http.StatusBadRequest, "at least one of cep, city, or coordinates is required")
		return
	}

	plans, err := s.resolver.FindAvailablePlans(r.Context(), q)
	if err != nil {
		if errors.Is(err, coverage.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("availability lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "availability lookup failed")
		return
	}
	if plans == nil {
		plans = []coverage.Plan{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plans": plans,
		"count": len(plans),
	})
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxIngestBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(file, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	ufs := r.MultipartForm.Value["uf"]
	if len(ufs) == 1 {
		ufs = strings.Split(ufs[0], ",")
	}

	report, err := ingest.Ingest(r.Context(), s.store, raw, ingest.Options{
		ProviderID:    r.FormValue("provider_id"),
		UFs:           ufs,
		NameOverride:  r.FormValue("name"),
		SourceName:    header.Filename,
		ProgressEvery: s.ingestProgressEvery,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.store.ListProviders(r.Context())
	if err != nil {
		zap.L().Error("list providers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list providers")
		return
	}
	if providers == nil {
		providers = []coverage.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *apiServer) handleListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.store.ListAreas(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("list areas failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list areas")
		return
	}
	if areas == nil {
		areas = []coverage.CoverageArea{}
	}
	writeJSON(w, http.StatusOK, areas)
}
