package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beesaferoot/buildops/internal/disposition"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

type atRequest struct {
	At time.Time `json:"at"`
}

func (s *server) dispositionRoutes(r chi.Router) error {
	listings, err := newResource[models.Listing](s, models.RecordDisposition,
		records.WithSearch("agent"),
		records.WithPreload("Offers"),
		records.WithReadOnly("status", "job_id"))
	if err != nil {
		return err
	}
	listings.create = s.svc.Disposition.CreateListing
	listings.noDelete = true
	r.Route("/listings", func(r chi.Router) {
		listings.mount(r)
		r.Post("/{id}/withdraw", s.withdrawListing)
		r.Post("/{id}/close", s.closeListing)
	})

	offers, err := newResource[models.Offer](s, "offer",
		records.WithSearch("buyer"),
		records.WithReadOnly("status", "listing_id"))
	if err != nil {
		return err
	}
	offers.create = s.svc.Disposition.AddOffer
	offers.noDelete = true
	r.Route("/offers", func(r chi.Router) {
		offers.mount(r)
		r.Post("/{id}/accept", s.acceptOffer)
		r.Post("/{id}/reject", s.rejectOffer)
	})

	sales, err := newResource[models.Sale](s, "sale", records.WithSearch("buyer"))
	if err != nil {
		return err
	}
	sales.immutable = true
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", sales.list)
		r.Get("/{id}", sales.get)
	})
	return nil
}

func (s *server) withdrawListing(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req atRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	l, err := s.svc.Disposition.Withdraw(r.Context(), id, orToday(req.At))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, l)
}

func (s *server) closeListing(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var in disposition.CloseInput
	if err := decode(r, s.validate, &in); err != nil {
		fail(w, r, err)
		return
	}
	sale, err := s.svc.Disposition.Close(r.Context(), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, sale)
}

func (s *server) acceptOffer(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req atRequest
	if err := decodeOptional(r, nil, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.svc.Disposition.AcceptOffer(r.Context(), id, orToday(req.At))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, o)
}

func (s *server) rejectOffer(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.svc.Disposition.RejectOffer(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, o)
}
