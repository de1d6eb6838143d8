package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/beesaferoot/buildops/internal/apierr"
	"github.com/beesaferoot/buildops/internal/documents"
	"github.com/beesaferoot/buildops/internal/models"
)

// shareRequest.TTLSeconds of zero uses the configured default.
type shareRequest struct {
	TTLSeconds int64 `json:"ttl_seconds" validate:"gte=0,lte=604800"`
}

func (s *server) documentRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.listDocuments)
		r.Post("/", s.uploadDocument)
		r.Get("/{id}", s.getDocument)
		r.Get("/{id}/content", s.downloadDocument)
		r.Delete("/{id}", s.deleteDocument)
		r.Post("/{id}/shares", s.shareDocument)
	})
	r.Get("/shared/{token}", s.downloadShared)
}

func (s *server) listDocuments(w http.ResponseWriter, r *http.Request) {
	recordType, id, err := recordRef(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	docs, err := s.svc.Documents.List(r.Context(), recordType, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, docs)
}

// uploadDocument streams a multipart form. The record_type and record_id
// fields must precede the file part.
func (s *server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		fail(w, r, apierr.BadRequest("expected a multipart/form-data body"))
		return
	}

	up := documents.Upload{UploadedBy: r.Header.Get("X-User")}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			fail(w, r, apierr.BadRequest("multipart field \"file\" is required"))
			return
		}
		if err != nil {
			fail(w, r, apierr.BadRequest("invalid multipart body: %v", err))
			return
		}

		switch part.FormName() {
		case "record_type":
			up.RecordType, err = formValue(part)
		case "record_id":
			var raw string
			if raw, err = formValue(part); err == nil {
				var id uint64
				if id, err = strconv.ParseUint(raw, 10, 64); err != nil {
					err = apierr.BadRequest("record_id must be a positive integer, got %q", raw)
				}
				up.RecordID = uint(id)
			}
		case "file":
			up.Filename = part.FileName()
			up.ContentType = part.Header.Get("Content-Type")
			doc, err := s.svc.Documents.Upload(r.Context(), up, part)
			part.Close()
			if err != nil {
				fail(w, r, err)
				return
			}
			respond(w, r, http.StatusCreated, doc)
			return
		}
		part.Close()
		if err != nil {
			fail(w, r, err)
			return
		}
	}
}

func formValue(p *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(p, 256))
	if err != nil {
		return "", apierr.BadRequest("invalid multipart field %s: %v", p.FormName(), err)
	}
	return string(b), nil
}

func (s *server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, err := s.svc.Documents.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, doc)
}

func (s *server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	doc, rc, err := s.svc.Documents.Open(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.sendDocument(w, doc, rc)
}

func (s *server) downloadShared(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := s.svc.Documents.OpenShared(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		fail(w, r, err)
		return
	}
	s.sendDocument(w, doc, rc)
}

func (s *server) sendDocument(w http.ResponseWriter, doc *models.Document, rc io.ReadCloser) {
	defer rc.Close()
	ct := doc.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	attachment(w, doc.Filename, ct)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	if doc.SHA256 != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", doc.SHA256))
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("document download interrupted", zap.Uint("id", doc.ID), zap.Error(err))
	}
}

func (s *server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.Documents.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	noContent(w)
}

func (s *server) shareDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req shareRequest
	if err := decodeOptional(r, s.validate, &req); err != nil {
		fail(w, r, err)
		return
	}
	share, err := s.svc.Documents.Share(r.Context(), id, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, map[string]any{
		"token":      share.Token,
		"expires_at": share.ExpiresAt,
		"url":        "/api/v1/shared/" + share.Token,
	})
}
