package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"clipboard-service/internal/adapters/storage"
	"clipboard-service/internal/models"
	"clipboard-service/internal/repositories/mongodb"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrForbidden          = errors.New("not allowed to access this clipboard")
	ErrPasswordRequired   = errors.New("clipboard password required")
	ErrInvalidPassword    = errors.New("invalid clipboard password")
	ErrReadOnly           = errors.New("clipboard is read-only")
	ErrFileTooLarge       = errors.New("file exceeds the size limit")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrStorageUnavailable = errors.New("file storage is not configured")
)

const maxFileSize = 15 * 1024 * 1024

var allowedMimeTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// UpdateAnnouncer is the slice of the realtime layer the CRUD path needs:
// announce after a durable write. Implemented by websocket.Relay.
type UpdateAnnouncer interface {
	AnnounceUpdate(entity *models.Clipboard)
	AnnounceDelete(clipboardID, ownerID string)
}

// ClipboardService implements the CRUD rules and bridges successful writes
// into the realtime relay and the audit stream.
type ClipboardService struct {
	repo  *mongodb.ClipboardRepository
	relay UpdateAnnouncer
	audit *AuditService
	files *storage.MinIOClient
}

func NewClipboardService(repo *mongodb.ClipboardRepository, relay UpdateAnnouncer, audit *AuditService, files *storage.MinIOClient) *ClipboardService {
	return &ClipboardService{
		repo:  repo,
		relay: relay,
		audit: audit,
		files: files,
	}
}

type CreateClipboardInput struct {
	Title    string
	Content  string
	Password string
	ExpireAt *time.Time
	ReadOnly bool
}

type UpdateClipboardInput struct {
	Title    *string
	Content  *string
	Password *string
	ExpireAt *time.Time
	ReadOnly *bool
	Favorite *bool
}

// Create stores a new entry. ownerID is "" for anonymous entries.
func (s *ClipboardService) Create(ctx context.Context, ownerID string, input CreateClipboardInput) (*models.Clipboard, error) {
	clip := &models.Clipboard{
		Title:    input.Title,
		Content:  input.Content,
		ExpireAt: input.ExpireAt,
		ReadOnly: input.ReadOnly,
		Files:    []string{},
	}
	if clip.Title == "" {
		clip.Title = "Untitled"
	}

	if ownerID != "" {
		owner, err := parseObjectID(ownerID)
		if err != nil {
			return nil, err
		}
		clip.Owner = owner
	}

	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hashed := string(hash)
		clip.Password = &hashed
	}

	if err := s.repo.Create(ctx, clip); err != nil {
		return nil, err
	}

	s.relay.AnnounceUpdate(clip)
	s.audit.Record("create", clip.ID.Hex(), ownerID)
	slog.Info("Clipboard created", "clipboardID", clip.ID.Hex(), "owner", ownerID)
	return clip, nil
}

// Get fetches an entry, enforcing password protection for non-owners.
func (s *ClipboardService) Get(ctx context.Context, id, userID, password string) (*models.Clipboard, error) {
	clip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if clip.HasPassword() && !clip.IsOwnedBy(userID) {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(*clip.Password), []byte(password)) != nil {
			return nil, ErrInvalidPassword
		}
	}

	return clip, nil
}

func (s *ClipboardService) List(ctx context.Context, userID, search string, page, limit int64) ([]models.Clipboard, int64, error) {
	return s.repo.List(ctx, userID, search, page, limit)
}

// Update applies the change set. Read-only entries accept writes from their
// owner only; ownerless entries without the flag stay open to everyone.
func (s *ClipboardService) Update(ctx context.Context, id, userID string, input UpdateClipboardInput) (*models.Clipboard, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canWrite(existing, userID); err != nil {
		return nil, err
	}

	update := mongodb.ClipboardUpdate{
		Title:    input.Title,
		Content:  input.Content,
		ExpireAt: input.ExpireAt,
		ReadOnly: input.ReadOnly,
		Favorite: input.Favorite,
	}
	if input.Password != nil && *input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hashed := string(hash)
		update.Password = &hashed
	} else if input.Password != nil {
		empty := ""
		update.Password = &empty
	}

	clip, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.relay.AnnounceUpdate(clip)
	s.audit.Record("update", clip.ID.Hex(), userID)
	return clip, nil
}

// Delete removes an entry; only its owner may do so.
func (s *ClipboardService) Delete(ctx context.Context, id, userID string) error {
	clip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !clip.IsOwnedBy(userID) {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.relay.AnnounceDelete(id, clip.OwnerHex())
	s.audit.Record("delete", id, userID)
	slog.Info("Clipboard deleted", "clipboardID", id, "owner", userID)
	return nil
}

// AttachFile validates and stores an upload, then appends its URL to the
// entry's file list.
func (s *ClipboardService) AttachFile(ctx context.Context, id, userID string, file *multipart.FileHeader) (*models.Clipboard, error) {
	if s.files == nil {
		return nil, ErrStorageUnavailable
	}
	if file.Size > maxFileSize {
		return nil, ErrFileTooLarge
	}
	if !allowedMimeTypes[file.Header.Get("Content-Type")] {
		return nil, ErrFileTypeNotAllowed
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canWrite(existing, userID); err != nil {
		return nil, err
	}

	url, err := s.files.UploadClipboardFile(ctx, id, file)
	if err != nil {
		return nil, err
	}

	clip, err := s.repo.AddFile(ctx, id, url)
	if err != nil {
		return nil, err
	}

	s.relay.AnnounceUpdate(clip)
	s.audit.Record("upload", id, userID)
	return clip, nil
}

// canWrite: read-only entries accept writes from their owner only; anything
// else is collaboratively editable, which is the point of a shared clipboard.
func (s *ClipboardService) canWrite(clip *models.Clipboard, userID string) error {
	if clip.IsOwnedBy(userID) {
		return nil
	}
	if clip.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func parseObjectID(id string) (*primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid object id %q: %w", id, err)
	}
	return &oid, nil
}
