// Package api registers the HTTP routes for datasets and map sessions on their own
// ServeMux, so the entry point can mount them under API_BASE.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotspot-map/internal/dataset"
	"hotspot-map/internal/filter"
	"hotspot-map/internal/locate"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/raster"
	"hotspot-map/internal/record"
	"hotspot-map/internal/scene"
	"hotspot-map/internal/session"
	"hotspot-map/internal/store"
	"hotspot-map/internal/surface"
)

// ImportLister reports the last import per collection (the postgres store).
type ImportLister interface {
	Imports(ctx context.Context) ([]store.Import, error)
}

type Deps struct {
	Data     *dataset.Holder
	Sessions *session.Manager
	Locator  *locate.Locator
	// Imports is optional.
	Imports ImportLister
}

const maxBody = 1 << 16

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}

type datasetsResponse struct {
	Ready    bool           `json:"ready"`
	LoadedAt *time.Time     `json:"loadedAt,omitempty"`
	Counts   filter.Counts  `json:"counts"`
	Error    string         `json:"error,omitempty"`
	Imports  []store.Import `json:"imports,omitempty"`
}

type visibleResponse struct {
	Counts  filter.Counts   `json:"counts"`
	Records []record.Record `json:"records"`
}

type yearEntry struct {
	Year   int  `json:"year"`
	Code   int  `json:"code,omitempty"`
	Raster bool `json:"raster"`
}

type viewportRequest struct {
	scene.Viewport
	Event surface.Event `json:"event"`
}

type clickRequest struct {
	Handle string `json:"handle"`
}

type overlayRequest struct {
	URL string `json:"url"`
	OK  bool   `json:"ok"`
}

// ParseFilterQuery reads years, medical, market, welfare and source. Absent keys keep the
// panel defaults; an empty years= selects nothing.
func ParseFilterQuery(q map[string][]string) (filter.State, error) {
	st := filter.Default()
	get := func(k string) (string, bool) {
		v, ok := q[k]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}
	if s, ok := get("years"); ok {
		years := []int{}
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			y, err := strconv.Atoi(part)
			if err != nil {
				return st, errors.New("bad year " + strconv.Quote(part))
			}
			years = append(years, y)
		}
		st = st.WithYears(years...)
	}
	for key, dst := range map[string]*bool{"medical": &st.ShowMedical, "market": &st.ShowMarket, "welfare": &st.ShowWelfare} {
		if s, ok := get(key); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return st, errors.New("bad " + key + " flag")
			}
			*dst = b
		}
	}
	if s, ok := get("source"); ok {
		ds, err := filter.ParseDataSource(s)
		if err != nil {
			return st, err
		}
		st.DataSource = ds
	}
	return st.Normalize(), nil
}

// BuildRoutes returns the API mux; the caller mounts it under API_BASE.
func BuildRoutes(d Deps) *http.ServeMux {
	apiMux := http.NewServeMux()
	l := logger.L()

	apiMux.HandleFunc("GET /datasets", func(w http.ResponseWriter, r *http.Request) {
		var res datasetsResponse
		if gen := d.Data.Get(); gen != nil {
			res.Ready = true
			res.LoadedAt = &gen.LoadedAt
			res.Counts = gen.Counts
		}
		if err := d.Data.LastErr(); err != nil {
			res.Error = dataset.ErrLoad.Error()
		}
		if d.Imports != nil {
			imports, err := d.Imports.Imports(r.Context())
			if err != nil {
				l.Warn("dataset_imports_error", "err", err)
			}
			res.Imports = imports
		}
		writeJSON(w, http.StatusOK, res)
	})

	apiMux.HandleFunc("GET /visible", func(w http.ResponseWriter, r *http.Request) {
		gen := d.Data.Get()
		if gen == nil {
			writeError(w, http.StatusServiceUnavailable, dataset.ErrLoad.Error())
			return
		}
		st, err := ParseFilterQuery(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		visible := filter.Evaluate(gen.Records, st)
		counts := filter.Count(visible)
		l.Debug("visible_query", "years", st.SelectedYears, "source", st.DataSource.String(), "total", counts.Total)
		writeJSON(w, http.StatusOK, visibleResponse{Counts: counts, Records: visible})
	})

	apiMux.HandleFunc("GET /years", func(w http.ResponseWriter, r *http.Request) {
		years := filter.Years()
		out := make([]yearEntry, 0, len(years))
		for _, y := range years {
			e := yearEntry{Year: y}
			if code, err := raster.YearCode(y); err == nil {
				e.Code = code
				e.Raster = true
			}
			out = append(out, e)
		}
		writeJSON(w, http.StatusOK, map[string]any{"years": out, "default": filter.Default()})
	})

	apiMux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		initial := d.Locator.Initial(ClientIP(r))
		s := d.Sessions.Create(initial)
		v, err := s.View(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, v)
	})

	// withSession resolves {id} or answers 404.
	withSession := func(fn func(w http.ResponseWriter, r *http.Request, s *session.Session)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s, ok := d.Sessions.Get(r.PathValue("id"))
			if !ok {
				writeError(w, http.StatusNotFound, "unknown session")
				return
			}
			fn(w, r, s)
		}
	}

	apiMux.HandleFunc("GET /sessions/{id}", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		v, err := s.View(r.Context())
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}))

	apiMux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !d.Sessions.Delete(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	apiMux.HandleFunc("PUT /sessions/{id}/filter", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var st filter.State
		if err := decode(w, r, &st); err != nil {
			writeError(w, http.StatusBadRequest, "bad filter: "+err.Error())
			return
		}
		v, err := s.SetFilter(r.Context(), st)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}))

	apiMux.HandleFunc("POST /sessions/{id}/viewport", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req viewportRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad viewport: "+err.Error())
			return
		}
		switch req.Event {
		case "", surface.EventIdle, surface.EventDragEnd:
		default:
			writeError(w, http.StatusBadRequest, "event must be idle or dragend")
			return
		}
		v, err := s.Viewport(r.Context(), req.Viewport, req.Event)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}))

	apiMux.HandleFunc("POST /sessions/{id}/tiles", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.TilesLoaded(r.Context()); err != nil {
			sessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	apiMux.HandleFunc("POST /sessions/{id}/click", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req clickRequest
		if err := decode(w, r, &req); err != nil || req.Handle == "" {
			writeError(w, http.StatusBadRequest, "handle required")
			return
		}
		iw, err := s.Click(r.Context(), req.Handle)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"infoWindow": iw})
	}))

	apiMux.HandleFunc("POST /sessions/{id}/overlay", withSession(func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req overlayRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad overlay report: "+err.Error())
			return
		}
		st, err := s.ReportImage(r.Context(), req.OK)
		if err != nil {
			sessionError(w, err)
			return
		}
		l.Debug("overlay_report", "session", s.ID, "ok", req.OK, "url", raster.Redact(req.URL))
		writeJSON(w, http.StatusOK, st)
	}))

	return apiMux
}

func sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, surface.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scene.ErrUnknownHandle):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
