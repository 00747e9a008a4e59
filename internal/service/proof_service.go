package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// DefaultMaxProofBytes is the largest accepted proof image.
const DefaultMaxProofBytes int64 = 5 * 1024 * 1024

type proofFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type proofURLSigner interface {
	Generate(recordID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (recordID, relPath string, expiresAt time.Time, err error)
}

// ProofUpload carries an uploaded proof of payment.
type ProofUpload struct {
	Filename string
	Size     int64
	MimeType string
	Content  io.Reader
}

// StoredProof describes a persisted proof blob.
type StoredProof struct {
	Path     string
	MimeType string
	Size     int64
}

// ProofDownload bundles an opened proof for streaming.
type ProofDownload struct {
	RecordID  string
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// ProofServiceConfig tunes proof validation and links.
type ProofServiceConfig struct {
	MaxFileSize int64
	APIPrefix   string
}

// ProofService validates, stores and signs access to payment proofs.
type ProofService struct {
	storage proofFileStorage
	signer  proofURLSigner
	logger  *zap.Logger
	cfg     ProofServiceConfig
}

// NewProofService constructs the service with defaults.
func NewProofService(storage proofFileStorage, signer proofURLSigner, cfg ProofServiceConfig, logger *zap.Logger) *ProofService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxProofBytes
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ProofService{storage: storage, signer: signer, logger: logger, cfg: cfg}
}

// MaxFileSize reports the configured limit in bytes.
func (s *ProofService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Validate checks the declared media type and size without touching storage.
func (s *ProofService) Validate(upload ProofUpload) error {
	if upload.Content == nil || upload.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "proof of payment is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("proof exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	if upload.MimeType != "" && !isImageMime(upload.MimeType) {
		return appErrors.Clone(appErrors.ErrValidation, "proof must be an image")
	}
	return nil
}

// Store validates and persists the upload. The stored file never exceeds the limit
// even when the declared size was wrong.
func (s *ProofService) Store(ctx context.Context, upload ProofUpload) (*StoredProof, error) {
	if err := s.Validate(upload); err != nil {
		return nil, err
	}
	reader := bufio.NewReaderSize(upload.Content, 512)
	head, err := reader.Peek(512)
	if err != nil && err != io.EOF {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect proof")
	}
	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(head)
	}
	if !isImageMime(mimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof must be an image")
	}

	filename := proofFilename(upload.Filename, mimeType)
	limited := &io.LimitedReader{R: reader, N: s.cfg.MaxFileSize + 1}
	path, err := s.storage.SaveStream(filename, limited)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proof")
	}
	if limited.N == 0 {
		s.Discard(path)
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("proof exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	size := s.cfg.MaxFileSize + 1 - limited.N
	s.logger.Debug("proof stored", zap.String("path", path), zap.Int64("size", size))
	return &StoredProof{Path: path, MimeType: mimeType, Size: size}, nil
}

// Discard removes a stored proof, logging failures.
func (s *ProofService) Discard(path string) {
	if path == "" {
		return
	}
	if err := s.storage.Delete(path); err != nil {
		s.logger.Warn("failed to discard proof", zap.String("path", path), zap.Error(err))
	}
}

// SignedURL issues a time-limited download link for a record's proof.
func (s *ProofService) SignedURL(recordID, path string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	token, expiresAt, err := s.signer.Generate(recordID, path)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/enrollments/proofs/download?token=%s", base, url.QueryEscape(token)), expiresAt, nil
}

// Open validates a download token and opens the referenced proof.
func (s *ProofService) Open(token string) (*ProofDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	recordID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proof not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open proof")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read proof metadata")
	}
	return &ProofDownload{
		RecordID:  recordID,
		File:      file,
		Filename:  filepath.Base(relPath),
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

func proofFilename(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" || len(ext) > 6 {
		ext = imageExtension(mimeType)
	}
	return fmt.Sprintf("proof_%s_%s%s", time.Now().UTC().Format("20060102"), uuid.NewString(), ext)
}

func imageExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
