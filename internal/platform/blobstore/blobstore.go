// Package blobstore stores prescription attachments uploaded alongside
// medication orders. It defines the AttachmentStore interface, an in-memory
// implementation suitable for testing and development, and Echo HTTP handlers
// for multipart upload, download, metadata retrieval, and deletion.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// DefaultMaxFileSize is the default maximum attachment size in bytes (10 MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the MIME types accepted for prescription scans.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/heic":      true,
	"application/pdf": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Attachment describes a stored prescription document.
type Attachment struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	FileName    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	StudentID   string    `json:"studentId,omitempty"`
	Hash        string    `json:"hash"`
	UploadedAt  time.Time `json:"uploadedAt"`
	UploadedBy  string    `json:"uploadedBy"`
}

// ---------------------------------------------------------------------------
// AttachmentStore interface
// ---------------------------------------------------------------------------

// AttachmentStore defines the contract for attachment storage backends.
type AttachmentStore interface {
	Upload(ctx context.Context, att Attachment, content io.Reader) (*Attachment, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *Attachment, error)
	GetMetadata(ctx context.Context, id string) (*Attachment, error)
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]*Attachment, int, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedAttachment struct {
	meta    Attachment
	content []byte
}

// InMemoryAttachmentStore is a thread-safe, in-memory AttachmentStore for
// testing and development.
type InMemoryAttachmentStore struct {
	mu          sync.RWMutex
	attachments map[string]*storedAttachment
	maxFileSize int64
}

// NewInMemoryAttachmentStore returns a ready-to-use InMemoryAttachmentStore.
// A maxFileSize of zero or below falls back to DefaultMaxFileSize.
func NewInMemoryAttachmentStore(maxFileSize int64) *InMemoryAttachmentStore {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &InMemoryAttachmentStore{
		attachments: make(map[string]*storedAttachment),
		maxFileSize: maxFileSize,
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the attachment in memory.
func (s *InMemoryAttachmentStore) Upload(_ context.Context, att Attachment, content io.Reader) (*Attachment, error) {
	if att.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[att.ContentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, att.ContentType)
	}

	// Read content into memory so we can measure size and compute hash.
	data, err := io.ReadAll(io.LimitReader(content, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	att.ID = uuid.New().String()
	att.URL = "/api/v1/attachments/" + att.ID
	att.Size = int64(len(data))
	att.Hash = fmt.Sprintf("%x", h)
	att.UploadedAt = time.Now().UTC()

	s.mu.Lock()
	s.attachments[att.ID] = &storedAttachment{
		meta:    att,
		content: data,
	}
	s.mu.Unlock()

	out := att // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the attachment content and its
// metadata.
func (s *InMemoryAttachmentStore) Download(_ context.Context, id string) (io.ReadCloser, *Attachment, error) {
	s.mu.RLock()
	att, ok := s.attachments[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrAttachmentNotFound
	}

	meta := att.meta // copy
	return io.NopCloser(bytes.NewReader(att.content)), &meta, nil
}

// GetMetadata returns attachment metadata without content.
func (s *InMemoryAttachmentStore) GetMetadata(_ context.Context, id string) (*Attachment, error) {
	s.mu.RLock()
	att, ok := s.attachments[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrAttachmentNotFound
	}

	meta := att.meta // copy
	return &meta, nil
}

// Delete removes an attachment by ID.
func (s *InMemoryAttachmentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attachments[id]; !ok {
		return ErrAttachmentNotFound
	}
	delete(s.attachments, id)
	return nil
}

// ListByStudent returns attachments uploaded for a given student. It returns
// the matching page and the total count.
func (s *InMemoryAttachmentStore) ListByStudent(_ context.Context, studentID string, limit, offset int) ([]*Attachment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Attachment
	for _, a := range s.attachments {
		if a.meta.StudentID != studentID {
			continue
		}
		m := a.meta // copy
		matched = append(matched, &m)
	}

	total := len(matched)
	if limit <= 0 {
		limit = 20
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// listResponse is the JSON envelope returned by the list endpoint.
type listResponse struct {
	Items []*Attachment `json:"items"`
	Total int           `json:"total"`
}

// AttachmentHandler provides Echo HTTP handlers for attachment operations.
type AttachmentHandler struct {
	store AttachmentStore
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(store AttachmentStore) *AttachmentHandler {
	return &AttachmentHandler{store: store}
}

// RegisterRoutes mounts attachment routes on the supplied Echo group.
func (h *AttachmentHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/attachments", h.handleUpload)
	g.GET("/attachments/student/:studentId", h.handleListByStudent)
	g.GET("/attachments/:id/metadata", h.handleGetMetadata)
	g.GET("/attachments/:id", h.handleDownload)
	g.DELETE("/attachments/:id", h.handleDelete)
}

func (h *AttachmentHandler) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open uploaded file"})
	}
	defer src.Close()

	att := Attachment{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		StudentID:   c.FormValue("student_id"),
		UploadedBy:  c.FormValue("uploaded_by"),
	}

	result, err := h.store.Upload(c.Request().Context(), att, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrMissingFileName):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *AttachmentHandler) handleDownload(c echo.Context) error {
	id := c.Param("id")

	rc, meta, err := h.store.Download(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrAttachmentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *AttachmentHandler) handleGetMetadata(c echo.Context) error {
	id := c.Param("id")

	meta, err := h.store.GetMetadata(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrAttachmentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, meta)
}

func (h *AttachmentHandler) handleDelete(c echo.Context) error {
	id := c.Param("id")

	err := h.store.Delete(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrAttachmentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AttachmentHandler) handleListByStudent(c echo.Context) error {
	studentID := c.Param("studentId")
	limit := intParam(c, "limit", 20)
	offset := intParam(c, "offset", 0)

	items, total, err := h.store.ListByStudent(c.Request().Context(), studentID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*Attachment{}
	}

	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func intParam(c echo.Context, name string, defaultVal int) int {
	v := c.QueryParam(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
