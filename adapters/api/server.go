package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thibautjombart/epichange/app"
	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/domain/model"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// Server exposes the detection engine over HTTP.
type Server struct {
	service  *app.DetectionService
	defaults detect.Options
	router   chi.Router
}

// NewServer builds the HTTP surface around a detection service.
func NewServer(service *app.DetectionService, defaults detect.Options) *Server {
	s := &Server{service: service, defaults: defaults}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
	})

	s.router = r
	return s
}

// Handler returns the router for mounting or serving.
func (s *Server) Handler() http.Handler { return s.router }

// detectRequest is the POST /api/v1/detect payload. Observations carry a
// date or a 0-based day index; date wins when both are present.
type detectRequest struct {
	Observations []struct {
		Date  string `json:"date,omitempty"`
		Day   *int   `json:"day,omitempty"`
		Count int    `json:"count"`
		Group string `json:"group,omitempty"`
	} `json:"observations"`
	MaxK   int      `json:"max_k,omitempty"`
	Alpha  float64  `json:"alpha,omitempty"`
	Method string   `json:"method,omitempty"`
	Models []string `json:"models,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	if len(req.Observations) == 0 {
		writeError(w, http.StatusBadRequest, "observations are required")
		return
	}

	opts, err := s.options(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := s.buildSeries(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.service.RunBatch(r.Context(), series, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(batch.Detections) == 0 && len(batch.Failures) > 0 {
		// Nothing succeeded: surface the per-group causes as a client error
		// when they are data problems, a server error otherwise.
		status := http.StatusUnprocessableEntity
		for _, f := range batch.Failures {
			if !core.IsDataValidation(f.Err) && !core.IsInsufficientData(f.Err) {
				status = http.StatusInternalServerError
			}
		}
		writeJSON(w, status, batch)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// options merges request overrides onto the server defaults.
func (s *Server) options(req detectRequest) (detect.Options, error) {
	opts := s.defaults
	if req.MaxK > 0 {
		opts.MaxK = req.MaxK
	}
	if req.Alpha > 0 && req.Alpha < 1 {
		opts.Alpha = req.Alpha
	}
	if req.Method != "" {
		method, err := model.ParseMethod(req.Method)
		if err != nil {
			return detect.Options{}, err
		}
		opts.Method = method
	}
	if len(req.Models) > 0 {
		models, err := model.RegistryByName(req.Models)
		if err != nil {
			return detect.Options{}, err
		}
		opts.Models = models
	}
	return opts, nil
}

// buildSeries groups the posted observations into one series per group key.
func (s *Server) buildSeries(req detectRequest) (map[string]timeseries.TimeSeries, error) {
	cal := timeseries.DefaultCalendar()

	type grouped struct {
		dates  []time.Time
		counts []int
		obs    []timeseries.Observation
		dated  bool
	}
	groups := make(map[string]*grouped)

	for _, o := range req.Observations {
		g := groups[o.Group]
		if g == nil {
			g = &grouped{}
			groups[o.Group] = g
		}
		if o.Date != "" {
			date, err := time.Parse("2006-01-02", o.Date)
			if err != nil {
				return nil, core.NewValidationError("date", "dates must be YYYY-MM-DD")
			}
			g.dates = append(g.dates, date)
			g.counts = append(g.counts, o.Count)
			g.dated = true
		} else if o.Day != nil {
			g.obs = append(g.obs, timeseries.Observation{Day: *o.Day, Count: o.Count})
		} else {
			return nil, core.NewValidationError("observations", "each observation needs a date or a day index")
		}
	}

	out := make(map[string]timeseries.TimeSeries, len(groups))
	for key, g := range groups {
		var ts timeseries.TimeSeries
		if g.dated {
			if len(g.obs) > 0 {
				return nil, core.NewValidationError("observations", "mixing date and day rows within one group")
			}
			built, err := timeseries.FromDates(g.dates, g.counts, cal)
			if err != nil {
				return nil, err
			}
			ts = built
		} else {
			ts = timeseries.New(g.obs, timeseries.ColumnDay)
		}
		ts.Group = key
		out[key] = ts
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
