package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/records"
)

type identified interface {
	RecordID() uint
}

type resettable interface {
	ResetBase()
}

// resource serves list, get, create, update and delete for one model over a
// records.Repository. Domain services may take over create, update or
// delete; they publish their own change events.
type resource[T any] struct {
	record   string
	repo     *records.Repository[T]
	pub      changefeed.Publisher
	validate *validator.Validate

	create    func(ctx context.Context, rec *T) error
	update    func(ctx context.Context, id uint, changes map[string]any) (*T, error)
	remove    func(ctx context.Context, id uint) error
	immutable bool
	noDelete  bool
}

func (res *resource[T]) mount(r chi.Router) {
	r.Get("/", res.list)
	r.Post("/", res.createOne)
	r.Get("/{id}", res.get)
	if !res.immutable {
		r.Patch("/{id}", res.updateOne)
	}
	if !res.immutable && !res.noDelete {
		r.Delete("/{id}", res.deleteOne)
	}
}

func (res *resource[T]) publish(action string, id uint) {
	res.pub.Publish(changefeed.NewEvent(res.record, action, id))
}

func (res *resource[T]) list(w http.ResponseWriter, r *http.Request) {
	q, err := records.ParseListQuery(r.URL.Query())
	if err != nil {
		fail(w, r, err)
		return
	}
	page, err := res.repo.List(r.Context(), q)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, page)
}

func (res *resource[T]) get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	rec, err := res.repo.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rec)
}

func (res *resource[T]) createOne(w http.ResponseWriter, r *http.Request) {
	rec := new(T)
	if err := decode(r, res.validate, rec); err != nil {
		fail(w, r, err)
		return
	}
	if z, ok := any(rec).(resettable); ok {
		z.ResetBase()
	}

	if res.create != nil {
		if err := res.create(r.Context(), rec); err != nil {
			fail(w, r, err)
			return
		}
	} else {
		if err := res.repo.Create(r.Context(), rec); err != nil {
			fail(w, r, err)
			return
		}
		if idr, ok := any(rec).(identified); ok {
			res.publish(changefeed.ActionCreated, idr.RecordID())
		}
	}
	respond(w, r, http.StatusCreated, rec)
}

func (res *resource[T]) updateOne(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	changes, err := decodeChanges(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var rec *T
	if res.update != nil {
		rec, err = res.update(r.Context(), id, changes)
	} else {
		rec, err = res.repo.Update(r.Context(), id, changes)
		if err == nil {
			res.publish(changefeed.ActionUpdated, id)
		}
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rec)
}

func (res *resource[T]) deleteOne(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if res.remove != nil {
		err = res.remove(r.Context(), id)
	} else {
		err = res.repo.Delete(r.Context(), id)
		if err == nil {
			res.publish(changefeed.ActionDeleted, id)
		}
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}
