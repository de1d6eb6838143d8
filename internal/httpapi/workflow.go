package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const maxTemplateBytes = 1 << 20

type completeRequest struct {
	By string    `json:"by" validate:"max=100"`
	At time.Time `json:"at"`
}

func (s *server) workflowRoutes(r chi.Router) error {
	templates, err := newResource[models.WorkflowTemplate](s, "workflow_template",
		records.WithSearch("name"), records.WithReadOnly("record_type", "name"))
	if err != nil {
		return err
	}
	r.Route("/workflow-templates", func(r chi.Router) {
		r.Get("/", templates.list)
		r.Post("/", s.saveTemplate)
		r.Post("/import", s.importTemplate)
		r.Get("/{id}", s.getTemplate)
		r.Get("/{id}/export", s.exportTemplate)
		r.Patch("/{id}", templates.updateOne)
		r.Delete("/{id}", templates.deleteOne)
	})

	r.Get("/tasks", s.listTasks)
	r.Post("/tasks/{id}/complete", s.completeTask)
	r.Post("/tasks/{id}/reopen", s.reopenTask)
	r.Get("/progress", s.progress)
	return nil
}

// saveTemplate creates a template, or replaces the one with the same name
// and record type.
func (s *server) saveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl models.WorkflowTemplate
	if err := decode(r, s.validate, &tpl); err != nil {
		fail(w, r, err)
		return
	}
	tpl.ResetBase()
	if err := s.svc.Workflow.SaveTemplate(r.Context(), &tpl); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tpl)
}

func (s *server) importTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.svc.Workflow.ImportYAML(r.Context(), http.MaxBytesReader(w, r.Body, maxTemplateBytes))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tpl)
}

func (s *server) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	tpl, err := s.svc.Workflow.Template(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tpl)
}

func (s *server) exportTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := s.svc.Workflow.Template(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	attachment(w, fmt.Sprintf("workflow-template-%d.yaml", id), "application/yaml")
	if err := s.svc.Workflow.ExportYAML(r.Context(), id, w); err != nil {
		s.log.Error("export workflow template", zap.Uint("id", id), zap.Error(err))
	}
}

// recordRef reads the record_type and record_id query parameters.
func recordRef(r *http.Request) (string, uint, error) {
	recordType := r.URL.Query().Get("record_type")
	if recordType == "" {
		return "", 0, ensure(false, "query parameter record_type is required")
	}
	id, err := queryID(r, "record_id", true)
	return recordType, id, err
}

func (s *server) listTasks(w http.ResponseWriter, r *http.Request) {
	recordType, id, err := recordRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	tasks, err := s.svc.Workflow.Tasks(r.Context(), recordType, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tasks)
}

func (s *server) completeTask(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req completeRequest
	if err := decodeOptional(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	task, err := s.svc.Workflow.CompleteTask(r.Context(), id, req.By, at)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, task)
}

func (s *server) reopenTask(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	task, err := s.svc.Workflow.ReopenTask(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, task)
}

func (s *server) progress(w http.ResponseWriter, r *http.Request) {
	recordType, id, err := recordRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.svc.Workflow.Progress(r.Context(), recordType, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, p)
}
