// Package documents stores files attached to records and shares them through
// expiring links.
package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/metrics"
	"github.com/beesaferoot/buildops/internal/models"
	"github.com/beesaferoot/buildops/internal/records"
)

const recordDocument = "document"

// MaxShareTTL is the longest a share link may stay valid.
const MaxShareTTL = 7 * 24 * time.Hour

var (
	ErrTooLarge = errors.New("document exceeds the upload limit")
	ErrExpired  = errors.New("share link has expired")
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	pub      changefeed.Publisher
	store    BlobStore
	maxBytes int64
	shareTTL time.Duration
	now      func() time.Time
}

func NewService(db *gorm.DB, log *zap.Logger, pub changefeed.Publisher, store BlobStore, maxBytes int64, shareTTL time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = changefeed.Discard
	}
	return &Service{
		db:       db,
		log:      log.Named("documents"),
		pub:      pub,
		store:    store,
		maxBytes: maxBytes,
		shareTTL: shareTTL,
		now:      time.Now,
	}
}

// Upload describes a file being attached to a record.
type Upload struct {
	RecordType  string
	RecordID    uint
	Filename    string
	ContentType string
	UploadedBy  string
}

type counter struct{ n int64 }

func (c *counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Upload streams r into the store, hashing and measuring it on the way, and
// records the metadata. Files over the limit are removed and rejected.
func (s *Service) Upload(ctx context.Context, up Upload, r io.Reader) (*models.Document, error) {
	if up.RecordType == "" || up.RecordID == 0 {
		return nil, fmt.Errorf("%w: record_type and record_id are required", records.ErrInvalid)
	}
	name := path.Base(path.Clean("/" + up.Filename))
	if name == "/" || name == "." {
		return nil, fmt.Errorf("%w: filename is required", records.ErrInvalid)
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("%s/%d/%s%s", up.RecordType, up.RecordID, uuid.NewString(), path.Ext(name))
	hash := sha256.New()
	size := &counter{}
	body := io.TeeReader(io.LimitReader(r, s.maxBytes+1), io.MultiWriter(hash, size))

	if err := s.store.Put(ctx, key, contentType, body); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if size.n > s.maxBytes {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("failed to remove oversized upload", zap.String("key", key), zap.Error(err))
		}
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, s.maxBytes)
	}

	doc := &models.Document{
		RecordType:  up.RecordType,
		RecordID:    up.RecordID,
		Filename:    name,
		ContentType: contentType,
		Size:        size.n,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		StorageKey:  key,
		UploadedBy:  up.UploadedBy,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn("failed to remove orphaned blob", zap.String("key", key), zap.Error(derr))
		}
		return nil, records.Translate(err)
	}

	metrics.DocumentBytesUploaded.Add(float64(doc.Size))
	s.log.Info("document uploaded",
		zap.Uint("document_id", doc.ID),
		zap.String("record_type", doc.RecordType),
		zap.Uint("record_id", doc.RecordID),
		zap.Int64("size", doc.Size))
	s.pub.Publish(changefeed.NewEvent(recordDocument, changefeed.ActionCreated, doc.ID))
	return doc, nil
}

// List returns the documents of a record, newest first.
func (s *Service) List(ctx context.Context, recordType string, recordID uint) ([]models.Document, error) {
	docs := []models.Document{}
	err := s.db.WithContext(ctx).
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Order("created_at DESC").Order("id DESC").
		Find(&docs).Error
	return docs, records.Translate(err)
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, records.Translate(err)
	}
	return &doc, nil
}

// Open returns a document's metadata and a reader over its contents. The
// caller closes the reader.
func (s *Service) Open(ctx context.Context, id uint) (*models.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// Delete removes a document's metadata, its shares and its blob.
func (s *Service) Delete(ctx context.Context, id uint) error {
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, id).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("document_id = ?", doc.ID).Delete(&models.DocumentShare{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&doc).Error
	})
	if err != nil {
		return records.Translate(err)
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		s.log.Warn("failed to delete blob", zap.String("key", doc.StorageKey), zap.Error(err))
	}
	s.pub.Publish(changefeed.NewEvent(recordDocument, changefeed.ActionDeleted, id))
	return nil
}

// Share creates a link token valid for ttl, or the configured default when
// ttl is zero.
func (s *Service) Share(ctx context.Context, id uint, ttl time.Duration) (*models.DocumentShare, error) {
	if ttl < 0 || ttl > MaxShareTTL {
		return nil, fmt.Errorf("%w: ttl must be between 0 and %s", records.ErrInvalid, MaxShareTTL)
	}
	if ttl == 0 {
		ttl = s.shareTTL
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	share := &models.DocumentShare{
		DocumentID: doc.ID,
		Token:      uuid.NewString(),
		ExpiresAt:  s.now().UTC().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, records.Translate(err)
	}
	return share, nil
}

// OpenShared opens the document behind a share token that has not expired.
func (s *Service) OpenShared(ctx context.Context, token string) (*models.Document, io.ReadCloser, error) {
	var share models.DocumentShare
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&share).Error; err != nil {
		return nil, nil, records.Translate(err)
	}
	if !s.now().Before(share.ExpiresAt) {
		return nil, nil, ErrExpired
	}
	return s.Open(ctx, share.DocumentID)
}
