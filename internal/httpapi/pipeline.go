package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/dealsheet"
	"github.com/beesaferoot/buildops/internal/metrics"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/pipeline"
	"github.com/beesaferoot/buildops/internal/records"
)

type advanceRequest struct {
	Stage models.DealStage `json:"stage" validate:"required,oneof=lead under_review under_contract closed dead"`
	At    time.Time        `json:"at"`
}

type sheetResponse struct {
	Sheet  *models.DealSheet `json:"sheet"`
	Result dealsheet.Result  `json:"result"`
}

type sensitivityRequest struct {
	Inputs dealsheet.Inputs  `json:"inputs"`
	Field  string            `json:"field" validate:"required"`
	Deltas []decimal.Decimal `json:"deltas" validate:"required,min=1,max=50"`
}

func (s *server) pipelineRoutes(r chi.Router) error {
	deals := &resource[models.Deal]{
		record:   models.RecordDeal,
		repo:     s.svc.Pipeline.Deals(),
		pub:      s.pub,
		validate: s.validate,
		create:   s.svc.Pipeline.CreateDeal,
		update:   s.svc.Pipeline.UpdateDeal,
	}
	r.Route("/deals", func(r chi.Router) {
		deals.mount(r)
		r.Post("/{id}/advance", s.advanceDeal)
		r.Get("/{id}/sheet", s.getDealSheet)
		r.Put("/{id}/sheet", s.saveDealSheet)
		r.Post("/{id}/convert", s.convertDeal)
	})

	r.Post("/deal-sheets/calculate", s.calculateDealSheet)
	r.Post("/deal-sheets/sensitivity", s.dealSheetSensitivity)

	projects, err := newResource[models.Project](s, models.RecordProject, records.WithSearch("name", "location"))
	if err != nil {
		return err
	}
	r.Route("/projects", projects.mount)
	return nil
}

func (s *server) advanceDeal(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req advanceRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	deal, err := s.svc.Pipeline.Advance(r.Context(), id, req.Stage, at)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, deal)
}

func (s *server) getDealSheet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	sheet, res, err := s.svc.Pipeline.DealSheet(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sheetResponse{Sheet: sheet, Result: res})
}

func (s *server) saveDealSheet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var in dealsheet.Inputs
	if err := decode(r, nil, &in); err != nil {
		fail(w, r, err)
		return
	}
	sheet, res, err := s.svc.Pipeline.SaveDealSheet(r.Context(), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sheetResponse{Sheet: sheet, Result: res})
}

func (s *server) convertDeal(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var in pipeline.ConvertInput
	if err := decodeOptional(r, nil, &in); err != nil {
		fail(w, r, err)
		return
	}
	project, job, err := s.svc.Pipeline.Convert(r.Context(), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, map[string]any{"project": project, "job": job})
}

// calculateDealSheet evaluates inputs without storing anything.
func (s *server) calculateDealSheet(w http.ResponseWriter, r *http.Request) {
	var in dealsheet.Inputs
	if err := decode(r, nil, &in); err != nil {
		fail(w, r, err)
		return
	}
	res, err := dealsheet.Calculate(in)
	if err != nil {
		fail(w, r, err)
		return
	}
	metrics.DealSheetsCalculated.WithLabelValues(string(res.Verdict)).Inc()
	respond(w, r, http.StatusOK, res)
}

func (s *server) dealSheetSensitivity(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	rows, err := dealsheet.Sensitivity(req.Inputs, req.Field, req.Deltas)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rows)
}

type jobStatusRequest struct {
	Status models.JobStatus `json:"status" validate:"required,oneof=pre_construction permitting in_progress complete"`
	At     time.Time        `json:"at"`
}

type decideRequest struct {
	Approve *bool     `json:"approve" validate:"required"`
	At      time.Time `json:"at"`
}

func (s *server) constructionRoutes(r chi.Router) error {
	jobs, err := newResource[models.Job](s, models.RecordJob,
		records.WithSearch("name", "lot", "address"),
		records.WithReadOnly("status", "start_date"))
	if err != nil {
		return err
	}
	jobs.create = s.svc.Construction.CreateJob
	r.Route("/jobs", func(r chi.Router) {
		jobs.mount(r)
		r.Post("/{id}/status", s.setJobStatus)
		r.Get("/{id}/cost", s.jobCost)
	})

	budget, err := newResource[models.BudgetLine](s, "budget_line")
	if err != nil {
		return err
	}
	r.Route("/budget-lines", budget.mount)

	changes, err := newResource[models.ChangeOrder](s, "change_order", records.WithReadOnly("status", "decided_at"))
	if err != nil {
		return err
	}
	changes.create = s.svc.Construction.AddChangeOrder
	changes.noDelete = true
	r.Route("/change-orders", func(r chi.Router) {
		changes.mount(r)
		r.Post("/{id}/decide", s.decideChangeOrder)
	})
	return nil
}

func (s *server) setJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req jobStatusRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	job, err := s.svc.Construction.SetJobStatus(r.Context(), id, req.Status, orToday(req.At))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, job)
}

func (s *server) jobCost(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	sum, err := s.svc.Construction.JobCost(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sum)
}

func (s *server) decideChangeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req decideRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	co, err := s.svc.Construction.DecideChangeOrder(r.Context(), id, *req.Approve, orToday(req.At))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, co)
}
