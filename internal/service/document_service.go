package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/observability"
)

var (
	// ErrDocumentTooLarge indicates the letter exceeded the configured limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum allowed size")
	// ErrDocumentTypeNotAllowed indicates the detected MIME type is not permitted.
	ErrDocumentTypeNotAllowed = errors.New("document type not allowed")
)

// FileStorage abstracts the document storage collaborator.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// DocumentService receives supervision letters, hands them to the storage
// collaborator and notifies the lifecycle engine that the letter exists. The
// engine does not inspect file content beyond type sniffing.
type DocumentService interface {
	UploadLetter(ctx context.Context, relationshipID uint, file *multipart.FileHeader) (dto.DocumentUploadResponse, error)
}

type documentService struct {
	storage   FileStorage
	lifecycle LifecycleService
	maxSize   int64
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewDocumentService constructs a document upload service.
func NewDocumentService(storage FileStorage, lifecycle LifecycleService, maxSizeMB int, logger zerolog.Logger) DocumentService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &documentService{
		storage:   storage,
		lifecycle: lifecycle,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "document_service").Logger(),
		tracer:    otel.Tracer("github.com/mentorium/supervision-api/internal/service/document"),
	}
}

func (s *documentService) UploadLetter(ctx context.Context, relationshipID uint, file *multipart.FileHeader) (dto.DocumentUploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "document.upload", trace.WithAttributes(
		attribute.Int64("supervision.relationship_id", int64(relationshipID)),
	))
	defer span.End()

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		return dto.DocumentUploadResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.DocumentRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrDocumentTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.DocumentUploadResponse{}, ErrDocumentTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.DocumentUploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.DocumentUploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.DocumentRejected().WithLabelValues("size").Inc()
		return dto.DocumentUploadResponse{}, ErrDocumentTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	span.SetAttributes(attribute.String("document.detected_mime", mime.String()))
	if !isAllowedLetterType(mime.String()) {
		observability.DocumentRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrDocumentTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.DocumentUploadResponse{}, ErrDocumentTypeNotAllowed
	}

	name := sanitizeFileName(file.Filename, relationshipID)
	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.DocumentRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.DocumentUploadResponse{}, err
	}

	relationship, err := s.lifecycle.RecordDocumentUpload(ctx, relationshipID, url)
	if err != nil {
		span.RecordError(err)
		return dto.DocumentUploadResponse{}, err
	}

	response := dto.DocumentUploadResponse{
		RelationshipID: relationshipID,
		URL:            url,
		MimeType:       mime.String(),
		SizeBytes:      int64(buf.Len()),
	}
	if relationship.DocumentUploadedAt != nil {
		response.UploadedAt = *relationship.DocumentUploadedAt
	}

	return response, nil
}

func isAllowedLetterType(mime string) bool {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0])) {
	case "application/pdf", "image/png", "image/jpeg":
		return true
	default:
		return false
	}
}

func sanitizeFileName(name string, relationshipID uint) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "letter"
	}

	return fmt.Sprintf("relationship-%d-%s", relationshipID, base)
}
