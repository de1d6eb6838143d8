package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/beesaferoot/buildops/internal/apierr"
)

const maxBodyBytes = 1 << 20

var errNoBody = apierr.BadRequest("request body is required")

// decode reads a JSON body into dst, rejecting unknown fields, and
// validates it.
func decode(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errNoBody
		}
		return apierr.BadRequest("invalid JSON body: %v", err)
	}
	if v == nil {
		return nil
	}
	return v.Struct(dst)
}

// decodeOptional is decode for bodies whose fields all have defaults; an
// empty body leaves dst untouched.
func decodeOptional(r *http.Request, v *validator.Validate, dst any) error {
	if err := decode(r, v, dst); !errors.Is(err, errNoBody) {
		return err
	}
	return nil
}

// decodeChanges reads a partial update. Numbers are kept as json.Number so
// money values survive exactly.
func decodeChanges(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	var changes map[string]any
	if err := dec.Decode(&changes); err != nil {
		return nil, apierr.BadRequest("invalid JSON body: %v", err)
	}
	for k, v := range changes {
		if n, ok := v.(json.Number); ok {
			changes[k] = n.String()
		}
	}
	return changes, nil
}

func urlID(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apierr.BadRequest("%s must be a positive integer, got %q", name, raw)
	}
	return uint(id), nil
}

func queryID(r *http.Request, name string, required bool) (uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, apierr.BadRequest("query parameter %s is required", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apierr.BadRequest("%s must be a positive integer, got %q", name, raw)
	}
	return uint(id), nil
}

// queryDate parses a YYYY-MM-DD parameter; missing means today.
func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return today(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apierr.BadRequest("%s must be a date (YYYY-MM-DD), got %q", name, raw)
	}
	return t, nil
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// orToday returns t, or today when t is zero.
func orToday(t time.Time) time.Time {
	if t.IsZero() {
		return today()
	}
	return t
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	apierr.Write(w, r, err)
}

func ensure(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return apierr.BadRequest(format, args...)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func attachment(w http.ResponseWriter, filename, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
