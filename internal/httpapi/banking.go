package httpapi

import (
	"context"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/apierr"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const (
	defaultMatchWindowDays = 5
	maxStatementBytes      = 10 << 20
)

type autoMatchRequest struct {
	WindowDays int `json:"window_days" validate:"gte=0,lte=60"`
}

type matchRequest struct {
	StatementLineID uint `json:"statement_line_id" validate:"required"`
	JournalLineID   uint `json:"journal_line_id" validate:"required"`
}

type unmatchRequest struct {
	StatementLineID uint `json:"statement_line_id" validate:"required"`
}

type clearRequest struct {
	JournalLineID uint `json:"journal_line_id" validate:"required"`
}

type finalizeRequest struct {
	At time.Time `json:"at"`
}

func (s *server) bankingRoutes(r chi.Router) error {
	banks, err := newResource[models.BankAccount](s, "bank_account", records.WithSearch("name", "institution"))
	if err != nil {
		return err
	}
	r.Route("/bank-accounts", func(r chi.Router) {
		banks.mount(r)
		r.Post("/{id}/statements", s.importStatement)
	})

	recs, err := newResource[models.Reconciliation](s, "reconciliation")
	if err != nil {
		return err
	}
	recs.immutable = true
	recs.create = func(ctx context.Context, rec *models.Reconciliation) error {
		out, err := s.svc.Banking.Start(ctx, rec.BankAccountID, rec.StatementDate, rec.EndingBalance)
		if err != nil {
			return err
		}
		*rec = *out
		return nil
	}
	r.Route("/reconciliations", func(r chi.Router) {
		recs.mount(r)
		r.Get("/{id}/summary", s.reconciliationSummary)
		r.Post("/{id}/auto-match", s.autoMatch)
		r.Post("/{id}/match", s.match)
		r.Post("/{id}/unmatch", s.unmatch)
		r.Post("/{id}/clear", s.clearLine)
		r.Post("/{id}/unclear", s.unclearLine)
		r.Post("/{id}/finalize", s.finalize)
	})
	return nil
}

// importStatement accepts a CSV either as the "file" part of a multipart
// form or as the raw request body.
func (s *server) importStatement(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxStatementBytes)

	var body io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			fail(w, r, apierr.BadRequest("multipart field \"file\" is required"))
			return
		}
		defer file.Close()
		body = file
	}

	res, err := s.svc.Banking.ImportStatement(r.Context(), id, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

func (s *server) reconciliationSummary(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	sum, err := s.svc.Banking.Summary(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, sum)
}

func (s *server) autoMatch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	req := autoMatchRequest{WindowDays: defaultMatchWindowDays}
	if err := decodeOptional(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	n, err := s.svc.Banking.AutoMatch(r.Context(), id, req.WindowDays)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.respondDifference(w, r, id, map[string]any{"matched": n})
}

func (s *server) match(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req matchRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.Banking.Match(r.Context(), id, req.StatementLineID, req.JournalLineID); err != nil {
		fail(w, r, err)
		return
	}
	s.respondDifference(w, r, id, map[string]any{})
}

func (s *server) unmatch(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req unmatchRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.Banking.Unmatch(r.Context(), id, req.StatementLineID); err != nil {
		fail(w, r, err)
		return
	}
	s.respondDifference(w, r, id, map[string]any{})
}

func (s *server) clearLine(w http.ResponseWriter, r *http.Request) {
	s.toggleCleared(w, r, true)
}

func (s *server) unclearLine(w http.ResponseWriter, r *http.Request) {
	s.toggleCleared(w, r, false)
}

func (s *server) toggleCleared(w http.ResponseWriter, r *http.Request, cleared bool) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req clearRequest
	if err := decode(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	if cleared {
		err = s.svc.Banking.Clear(r.Context(), id, req.JournalLineID)
	} else {
		err = s.svc.Banking.Unclear(r.Context(), id, req.JournalLineID)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	s.respondDifference(w, r, id, map[string]any{})
}

// respondDifference answers a wizard step with the remaining difference.
func (s *server) respondDifference(w http.ResponseWriter, r *http.Request, id uint, body map[string]any) {
	diff, err := s.svc.Banking.Difference(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	body["difference"] = diff
	body["balanced"] = diff.Equal(decimal.Zero)
	respond(w, r, http.StatusOK, body)
}

func (s *server) finalize(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req finalizeRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec, err := s.svc.Banking.Finalize(r.Context(), id, at)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rec)
}
