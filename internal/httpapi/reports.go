package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/beesaferoot/buildops/internal/reports"
)

const formatJSON = "json"

func (s *server) reportRoutes(r chi.Router) {
	r.Get("/reports", s.listReports)
	r.Get("/reports/bundle", s.reportBundle)
	r.Get("/reports/{name}", s.report)
}

func (s *server) listReports(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string][]string{"reports": s.svc.Reports.Names()})
}

func reportParams(r *http.Request) (reports.Params, error) {
	var (
		p   reports.Params
		err error
	)
	if p.EntityID, err = queryID(r, "entity_id", false); err != nil {
		return p, err
	}
	if p.JobID, err = queryID(r, "job_id", false); err != nil {
		return p, err
	}
	if p.InvestorID, err = queryID(r, "investor_id", false); err != nil {
		return p, err
	}
	if r.URL.Query().Get("as_of") != "" {
		if p.AsOf, err = queryDate(r, "as_of"); err != nil {
			return p, err
		}
	}
	return p, nil
}

func reportFormat(r *http.Request, fallback string) (string, error) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = fallback
	}
	switch format {
	case formatJSON, reports.FormatCSV, reports.FormatXLSX:
		return format, nil
	}
	return "", ensure(false, "format must be json, csv or xlsx, got %q", format)
}

func (s *server) report(w http.ResponseWriter, r *http.Request) {
	format, err := reportFormat(r, formatJSON)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := reportParams(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	t, err := s.svc.Reports.Build(r.Context(), chi.URLParam(r, "name"), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	if format == formatJSON {
		respond(w, r, http.StatusOK, t)
		return
	}
	s.sendExport(w, r, t.Name, format, t)
}

// reportBundle builds several reports into one workbook, one sheet each.
func (s *server) reportBundle(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("names"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if err := ensure(len(names) > 0, "query parameter names is required"); err != nil {
		fail(w, r, err)
		return
	}
	p, err := reportParams(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	tables, err := s.svc.Reports.Bundle(r.Context(), names, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.sendExport(w, r, "reports", reports.FormatXLSX, tables...)
}

// sendExport renders into a buffer first so a failed export still gets a
// problem response.
func (s *server) sendExport(w http.ResponseWriter, r *http.Request, name, format string, tables ...*reports.Table) {
	var buf bytes.Buffer
	if err := reports.Export(&buf, format, tables...); err != nil {
		fail(w, r, err)
		return
	}
	attachment(w, fmt.Sprintf("%s.%s", name, format), reports.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
