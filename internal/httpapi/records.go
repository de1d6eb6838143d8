package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

func (s *server) recordRoutes(r chi.Router) {
	r.Get("/links", s.listLinks)
	r.Post("/links", s.createLink)
	r.Delete("/links/{id}", s.deleteLink)
	r.Get("/search", s.search)
}

func (s *server) listLinks(w http.ResponseWriter, r *http.Request) {
	recordType, id, err := recordRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	links, err := s.svc.Links.For(r.Context(), recordType, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, links)
}

func (s *server) createLink(w http.ResponseWriter, r *http.Request) {
	var link models.RecordLink
	if err := decode(r, s.validate, &link); err != nil {
		fail(w, r, err)
		return
	}
	link.ResetBase()
	if err := s.svc.Links.Link(r.Context(), &link); err != nil {
		fail(w, r, err)
		return
	}
	s.pub.Publish(changefeed.NewEvent("record_link", changefeed.ActionCreated, link.ID))
	respond(w, r, http.StatusCreated, link)
}

func (s *server) deleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.Links.Unlink(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	s.pub.Publish(changefeed.NewEvent("record_link", changefeed.ActionDeleted, id))
	noContent(w)
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	limit := records.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err := ensure(err == nil && n > 0 && n <= records.MaxSearchLimit, "limit must be between 1 and %d", records.MaxSearchLimit); err != nil {
			fail(w, r, err)
			return
		}
		limit = n
	}
	hits, err := records.Search(r.Context(), s.db, r.URL.Query().Get("q"), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, hits)
}
