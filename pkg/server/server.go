package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elonfeng/toonrank/internal/store"
	"github.com/elonfeng/toonrank/pkg/resolver"
	"github.com/elonfeng/toonrank/pkg/source"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//go:embed templates/index.html
var templates embed.FS

// Resolver answers a query with ranked videos.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Result, error)
}

// Catalog lists cached queries.
type Catalog interface {
	ListQueries(ctx context.Context) ([]store.QuerySummary, error)
}

// Server provides the HTML page and the HTTP API.
type Server struct {
	resolver Resolver
	catalog  Catalog
	port     int
	perPage  int
	page     *template.Template
}

// New creates a new HTTP server.
func New(r Resolver, c Catalog, port, perPage int) *Server {
	if port == 0 {
		port = 8080
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"comma": humanize.Comma,
		"add": func(vals ...int) int {
			sum := 0
			for _, v := range vals {
				sum += v
			}
			return sum
		},
	}).ParseFS(templates, "templates/index.html"))

	return &Server{
		resolver: r,
		catalog:  c,
		port:     port,
		perPage:  perPage,
		page:     page,
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/videos", s.handleVideos)
	mux.HandleFunc("GET /api/v1/queries", s.handleQueries)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleIndex)
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("toonrank server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.resolver.Resolve(r.Context(), q.Get("query"))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}

	p := paginate(len(res.Videos), atoi(q.Get("page")), atoi(q.Get("per_page")), s.perPage)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    res.Query,
		"state":    res.State,
		"partial":  res.Partial,
		"page":     p.Page,
		"per_page": p.PerPage,
		"pages":    p.Pages,
		"total":    p.Total,
		"data":     res.Videos[p.Start:p.End],
	})
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.catalog.ListQueries(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if queries == nil {
		queries = []store.QuerySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  queries,
		"count": len(queries),
	})
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

type indexView struct {
	Query   string
	Error   string
	Partial bool
	Total   int
	Offset  int
	Videos  []store.RankedVideo
	Pages   []pageLink
}

// handleIndex renders the search page. The query comes from the POSTed form
// or from the URL, so pagination links stay self-contained.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	view := indexView{Query: resolver.Normalize(r.FormValue("query"))}
	status := http.StatusOK

	if view.Query != "" {
		res, err := s.resolver.Resolve(r.Context(), view.Query)
		if err != nil {
			status = statusFor(err)
			view.Error = userMessage(err)
		} else {
			p := paginate(len(res.Videos), atoi(r.FormValue("page")), atoi(r.FormValue("per_page")), s.perPage)
			view.Partial = res.Partial
			view.Total = p.Total
			view.Offset = p.Start
			view.Videos = res.Videos[p.Start:p.End]
			view.Pages = p.links(view.Query)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, view); err != nil {
		logrus.WithError(err).Error("render index")
	}
}

// statusFor maps resolution errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, resolver.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, source.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrPersist):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err error) string {
	switch statusFor(err) {
	case http.StatusBadGateway:
		return "The video provider is unavailable. Please try again later."
	case http.StatusServiceUnavailable:
		return "Results could not be saved. Please retry."
	case http.StatusGatewayTimeout:
		return "The search took too long. Please try again."
	case http.StatusBadRequest:
		return "Please enter a search query."
	default:
		return "Something went wrong."
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
