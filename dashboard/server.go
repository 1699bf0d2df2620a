// Package dashboard serves the training-load views over HTTP. It only reads
// the derived table; every request sees the artifact as it is on disk.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/aggregate"
	"github.com/lucasjlepore/training-report/artifact"
	"github.com/lucasjlepore/training-report/metrics"
	"github.com/lucasjlepore/training-report/pipeline"
)

const dateLayout = "2006-01-02"

// Options configures a Server.
type Options struct {
	DerivedPath string
	Logger      *zap.Logger
	Metrics     *metrics.Manager
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server serves the dashboard page and its JSON API over the derived table.
type Server struct {
	derivedPath string
	logger      *zap.Logger
	metrics     *metrics.Manager
	router      *mux.Router
}

// NewServer registers every route on a fresh router.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		derivedPath: opts.DerivedPath,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		router:      mux.NewRouter(),
	}

	r := s.router
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet).Name("page")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet).Name("summary")
	api.HandleFunc("/weekly", s.handleWeekly).Methods(http.MethodGet).Name("weekly")
	api.HandleFunc("/monthly", s.handleMonthly).Methods(http.MethodGet).Name("monthly")
	api.HandleFunc("/activities", s.handleActivities).Methods(http.MethodGet).Name("activities")
	api.HandleFunc("/heatmap", s.handleHeatmap).Methods(http.MethodGet).Name("heatmap")
	api.HandleFunc("/breakdown", s.handleBreakdown).Methods(http.MethodGet).Name("breakdown")
	api.HandleFunc("/export.xlsx", s.handleExport).Methods(http.MethodGet).Name("export")
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("metrics")
	r.Use(s.countRequests)
	return s
}

// Handler wraps the router with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	logged := handlers.CustomLoggingHandler(nil, s.router, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.logger.Info("request",
			zap.String("method", p.Request.Method),
			zap.String("uri", p.URL.RequestURI()),
			zap.Int("status", p.StatusCode),
			zap.Int("size", p.Size),
			zap.Duration("took", time.Since(p.TimeStamp)),
		)
	})
	return handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.logger)))(logged)
}

// Router exposes the bare router, without logging or recovery.
func (s *Server) Router() *mux.Router {
	return s.router
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics == nil {
			return
		}
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil && cur.GetName() != "" {
			route = cur.GetName()
		}
		s.metrics.CounterRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

// view is the filtered data set one request works on.
type view struct {
	records      []pipeline.DerivedRecord
	filter       aggregate.Filter
	categories   []string
	lastModified time.Time
}

// errNoArtifact marks a derived table that has not been produced yet.
var errNoArtifact = errors.New("derived table not found")

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func (s *Server) load(r *http.Request) (*view, error) {
	modTime, err := artifact.ModTime(s.derivedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s; run compute_intensity first", errNoArtifact, s.derivedPath)
		}
		return nil, err
	}
	records, err := pipeline.ReadDerived(s.derivedPath)
	if err != nil {
		return nil, err
	}

	f, err := parseFilter(r, records)
	if err != nil {
		return nil, err
	}
	return &view{
		records:      f.Apply(records),
		filter:       f,
		categories:   aggregate.Categories(records),
		lastModified: modTime,
	}, nil
}

// parseFilter reads repeatable type parameters and start/end dates, falling
// back to the default window for whatever is not given.
func parseFilter(r *http.Request, records []pipeline.DerivedRecord) (aggregate.Filter, error) {
	f := aggregate.DefaultFilter(records)
	q := r.URL.Query()

	var types []string
	for _, v := range q["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	if len(types) > 0 {
		f.Types = types
	}

	for _, b := range []struct {
		name string
		dst  *time.Time
	}{{"start", &f.Start}, {"end", &f.End}} {
		raw := strings.TrimSpace(q.Get(b.name))
		if raw == "" {
			continue
		}
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, &badRequestError{msg: fmt.Sprintf("%s must be YYYY-MM-DD, got %q", b.name, raw)}
		}
		*b.dst = d
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return f, &badRequestError{msg: "end is before start"}
	}
	return f, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var bad *badRequestError
	switch {
	case errors.Is(err, errNoArtifact):
		code = http.StatusServiceUnavailable
	case errors.As(err, &bad):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("dashboard request failed", zap.String("uri", r.URL.RequestURI()), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

type filterView struct {
	Types []string `json:"types"`
	Start string   `json:"start,omitempty"`
	End   string   `json:"end,omitempty"`
}

type envelope struct {
	LastModified time.Time  `json:"last_modified"`
	Filter       filterView `json:"filter"`
	Categories   []string   `json:"categories"`
	Data         any        `json:"data"`
}

func (v *view) envelope(data any) envelope {
	fv := filterView{Types: v.filter.Types}
	if !v.filter.Start.IsZero() {
		fv.Start = v.filter.Start.Format(dateLayout)
	}
	if !v.filter.End.IsZero() {
		fv.End = v.filter.End.Format(dateLayout)
	}
	return envelope{
		LastModified: v.lastModified.UTC(),
		Filter:       fv,
		Categories:   v.categories,
		Data:         data,
	}
}

func (s *Server) serveJSON(w http.ResponseWriter, r *http.Request, build func(*view) any) {
	v, err := s.load(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Last-Modified", v.lastModified.UTC().Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, v.envelope(build(v)))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return aggregate.Summarize(v.records) })
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return aggregate.Weekly(v.records) })
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return aggregate.Monthly(v.records) })
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return v.records })
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return aggregate.Heatmap(v.records) })
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, func(v *view) any { return aggregate.Breakdown(v.records) })
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
