package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/metrics"
	"lgtmagic/internal/repository"
)

type GalleryService interface {
	// ListRecent returns at most limit images, newest first. On a listing
	// failure it returns an empty slice alongside the error.
	ListRecent(ctx context.Context, limit int) ([]domain.GalleryItem, error)
	// Delete removes an image given its object name or public URL.
	Delete(ctx context.Context, nameOrURL string) (string, error)
}

type galleryService struct {
	store        repository.ObjectStore
	defaultLimit int
	log          *zap.Logger
}

func NewGalleryService(store repository.ObjectStore, defaultLimit int, log *zap.Logger) GalleryService {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	return &galleryService{store: store, defaultLimit: defaultLimit, log: log}
}

func (s *galleryService) ListRecent(ctx context.Context, limit int) ([]domain.GalleryItem, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	objects, err := s.store.ListFiles(ctx, "")
	if err != nil {
		s.log.Error("Failed to list gallery", zap.Error(err))
		metrics.RecordGalleryListFailure()
		return []domain.GalleryItem{}, fmt.Errorf("%w: %w", domain.ErrStoreList, err)
	}

	if len(objects) > limit {
		objects = objects[:limit]
	}

	items := make([]domain.GalleryItem, 0, len(objects))
	for _, obj := range objects {
		items = append(items, domain.GalleryItem{
			Name:      obj.Name,
			URL:       s.store.PublicURL(obj.Name),
			CreatedAt: obj.CreatedAt,
		})
	}
	return items, nil
}

func (s *galleryService) Delete(ctx context.Context, nameOrURL string) (string, error) {
	name, err := ObjectName(nameOrURL)
	if err != nil {
		return "", err
	}

	if err := s.store.DeleteFile(ctx, name); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStoreDelete, err)
	}

	s.log.Info("Gallery image deleted", zap.String("name", name))
	return name, nil
}

// ObjectName extracts a bare object key from a key or a public URL.
func ObjectName(nameOrURL string) (string, error) {
	raw := strings.TrimSpace(nameOrURL)
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		raw = path.Base(u.Path)
	}

	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid image name", domain.ErrValidation)
	}
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: invalid image name %q", domain.ErrValidation, name)
	}
	return name, nil
}
