package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/web/templates"
)

var started = time.Now()

// ConnectorSummary is the listing view of a connector.
type ConnectorSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Route       string   `json:"route"`
	Params      []string `json:"params"`
	Execution   string   `json:"execution"`
}

func summarize(spec *connector.Spec) ConnectorSummary {
	params := connector.PathParams(spec.Route())
	if params == nil {
		params = []string{}
	}
	return ConnectorSummary{
		Name:        spec.Name(),
		Description: spec.Metadata.Description,
		Route:       spec.Route(),
		Params:      params,
		Execution:   string(spec.ExecutionMode()),
	}
}

// handleIndex renders the connector overview page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	specs := s.exec.Catalog().All()
	cards := make([]templates.ConnectorCard, 0, len(specs))
	for _, spec := range specs {
		sum := summarize(spec)
		cards = append(cards, templates.ConnectorCard{
			Name:        sum.Name,
			Description: sum.Description,
			Route:       sum.Route,
			Params:      sum.Params,
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Index(cards, s.registry.Names()).Render(r.Context(), w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":     "ok",
		"connectors": s.exec.Catalog().Len(),
		"uptime":     time.Since(started).Round(time.Second).String(),
	})
}

func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	specs := s.exec.Catalog().All()
	out := make([]ConnectorSummary, 0, len(specs))
	for _, spec := range specs {
		out = append(out, summarize(spec))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetConnector(w http.ResponseWriter, r *http.Request) {
	spec, err := s.exec.Catalog().Get(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, spec)
}

// handleData runs a connector by name with query string parameters.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	s.serveRun(w, r, chi.URLParam(r, "name"), queryParams(r))
}

// connectorHandler serves a connector on its own route. Path placeholders
// take precedence over query parameters of the same name.
func (s *Server) connectorHandler(name string, pathParams []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := queryParams(r)
		for _, p := range pathParams {
			params[p] = chi.URLParam(r, p)
		}
		s.serveRun(w, r, name, params)
	}
}

func (s *Server) serveRun(w http.ResponseWriter, r *http.Request, name string, params map[string]string) {
	env, err := s.exec.GetEndpointData(r.Context(), name, params)
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "5")
		}
		respondError(w, r, err, statusFor(err))
		return
	}
	writeEnvelope(w, env)
}

// queryParams flattens the query string, keeping the first value of each key.
func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	params := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}
