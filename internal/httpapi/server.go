package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/gookit/validate"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/catalog"
	"github.com/hamed0406/waterwatch/internal/domain"
	apimw "github.com/hamed0406/waterwatch/internal/httpapi/middleware"
	"github.com/hamed0406/waterwatch/internal/pipeline"
)

const maxBody = 64 << 10

// Checks is the lifecycle side of the API: on-demand runs and the
// settings-updated flow.
type Checks interface {
	RequestCheck(ctx context.Context) (pipeline.Outcome, error)
	SettingsChanged(ctx context.Context) (pipeline.Outcome, error)
}

type State interface {
	Settings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
	Latest(ctx context.Context) (*domain.AggregatedResult, error)
	Clear(ctx context.Context) error
}

type Tester interface {
	Test(ctx context.Context) error
}

type Server struct {
	Logger  *zap.Logger
	State   State
	Checks  Checks
	Catalog *catalog.Catalog
	Tester  Tester
	Pages   http.Handler // websocket hub
	Metrics http.Handler // nil disables /metrics
}

func NewServer(l *zap.Logger, st State, checks Checks, cat *catalog.Catalog, tester Tester, pages, metrics http.Handler) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, State: st, Checks: checks, Catalog: cat, Tester: tester, Pages: pages, Metrics: metrics}
}

type RouterOptions struct {
	Keys           apimw.Keys
	AllowedOrigins []string // empty allows any origin
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
}

func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	if len(opts.AllowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	// reads: public or admin key
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.PublicRPM, opts.PublicBurst))
		r.Use(apimw.RequireAny(opts.Keys))
		r.Get("/api/outages", s.handleLatest)
		r.Get("/api/settings", s.handleGetSettings)
		r.Get("/api/locations", s.handleLocations)
		if s.Pages != nil {
			r.Method(http.MethodGet, "/ws", s.Pages)
		}
	})

	// mutations: admin key
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(opts.AdminRPM, opts.AdminBurst))
		r.Use(apimw.RequireAdmin(opts.Keys))
		r.Post("/api/check", s.handleCheck)
		r.Delete("/api/outages", s.handleClear)
		r.Put("/api/settings", s.handlePutSettings)
		r.Post("/api/notifications/test", s.handleTestNotification)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	out, err := s.Checks.RequestCheck(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeErr(w, http.StatusConflict, "check already running")
		return
	case err != nil:
		s.Logger.Warn("check_request_failed", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "outcome": out})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.State.Latest(r.Context())
	if err != nil {
		s.Logger.Warn("latest_read_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not read latest result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": latest})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.State.Clear(r.Context()); err != nil {
		s.Logger.Warn("clear_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not clear")
		return
	}
	s.Logger.Info("outages_cleared")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.State.Settings(r.Context())
	if err != nil {
		s.Logger.Warn("settings_read_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not read settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type settingsPayload struct {
	TimeFormat           string                     `json:"timeFormat" validate:"in:12h,24h"`
	CheckIntervalMinutes int                        `json:"checkIntervalMinutes" validate:"min:0|max:1440"`
	Notifications        *domain.StoredPrefs        `json:"notifications"`
	MonitoredLocations   []domain.MonitoredLocation `json:"monitoredLocations"`
}

func (p settingsPayload) check() error {
	v := validate.Struct(p)
	if !v.Validate() {
		return v.Errors
	}
	for i, l := range p.MonitoredLocations {
		if strings.TrimSpace(string(l.ProvinceID)) == "" ||
			strings.TrimSpace(string(l.CantonID)) == "" ||
			strings.TrimSpace(string(l.DistrictID)) == "" {
			return fmt.Errorf("monitoredLocations[%d]: provinceId, cantonId and districtId are required", i)
		}
	}
	return nil
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := p.check(); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	locs := make([]domain.MonitoredLocation, 0, len(p.MonitoredLocations))
	for _, l := range domain.DedupLocations(p.MonitoredLocations) {
		if s.Catalog != nil {
			resolved, err := s.Catalog.Resolve(l)
			if err != nil {
				writeErr(w, http.StatusBadRequest, err.Error())
				return
			}
			l = resolved
		}
		locs = append(locs, l)
	}

	current, err := s.State.Settings(r.Context())
	if err != nil {
		s.Logger.Warn("settings_read_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not read settings")
		return
	}
	next := domain.StoredSettings{
		TimeFormat:           domain.TimeFormat(p.TimeFormat),
		CheckIntervalMinutes: p.CheckIntervalMinutes,
		Notifications:        p.Notifications,
		MonitoredLocations:   locs,
	}.Merge(current)

	if err := s.State.SaveSettings(r.Context(), next); err != nil {
		s.Logger.Warn("settings_save_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	s.Logger.Info("settings_updated",
		zap.Int("locations", len(next.MonitoredLocations)),
		zap.Int("interval_min", next.CheckIntervalMinutes),
		zap.String("time_format", string(next.TimeFormat)),
	)

	resp := map[string]any{"ok": true, "settings": next}
	out, err := s.Checks.SettingsChanged(r.Context())
	if err != nil {
		s.Logger.Warn("settings_check_failed", zap.Error(err))
		resp["checkError"] = "check failed"
	} else {
		resp["outcome"] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		writeJSON(w, http.StatusOK, catalog.Catalog{Provinces: []catalog.Province{}})
		return
	}
	writeJSON(w, http.StatusOK, s.Catalog)
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.Tester.Test(r.Context()); err != nil {
		s.Logger.Warn("test_notification_failed", zap.Error(err))
		writeErr(w, http.StatusBadGateway, "test notification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
