package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

func (s *server) investorRoutes(r chi.Router) error {
	investors, err := newResource[models.Investor](s, models.RecordInvestor, records.WithSearch("name", "email"))
	if err != nil {
		return err
	}
	r.Route("/investors", func(r chi.Router) {
		investors.mount(r)
		r.Get("/{id}/statement", s.investorStatement)
	})

	commitments, err := newResource[models.Commitment](s, "commitment", records.WithPreload("Investor"))
	if err != nil {
		return err
	}
	commitments.immutable = true
	commitments.create = func(ctx context.Context, c *models.Commitment) error {
		out, err := s.svc.Investors.Commit(ctx, c.InvestorID, c.EntityID, c.Amount, orToday(c.Date))
		if err != nil {
			return err
		}
		*c = *out
		return nil
	}
	r.Route("/commitments", commitments.mount)

	calls, err := newResource[models.CapitalCall](s, "capital_call",
		records.WithSearch("memo"), records.WithPreload("Allocations"))
	if err != nil {
		return err
	}
	calls.immutable = true
	calls.create = func(ctx context.Context, c *models.CapitalCall) error {
		out, err := s.svc.Investors.CapitalCall(ctx, c.EntityID, c.Amount, orToday(c.Date), c.Memo)
		if err != nil {
			return err
		}
		*c = *out
		return nil
	}
	r.Route("/capital-calls", calls.mount)

	dists, err := newResource[models.Distribution](s, "distribution",
		records.WithSearch("memo"), records.WithPreload("Allocations"))
	if err != nil {
		return err
	}
	dists.immutable = true
	dists.create = func(ctx context.Context, d *models.Distribution) error {
		out, err := s.svc.Investors.Distribution(ctx, d.EntityID, d.Amount, orToday(d.Date), d.Memo)
		if err != nil {
			return err
		}
		*d = *out
		return nil
	}
	r.Route("/distributions", dists.mount)
	return nil
}

func (s *server) investorStatement(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	st, err := s.svc.Investors.Statement(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, st)
}
