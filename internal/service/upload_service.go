package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/metrics"
	"lgtmagic/internal/repository"
	"lgtmagic/pkg/codec"
	"lgtmagic/pkg/compositor"
)

// UploadService runs one upload attempt end to end.
type UploadService interface {
	Upload(ctx context.Context, caller domain.Caller, req domain.UploadRequest) (*domain.UploadResult, error)
	// Preview renders and encodes without touching quota, moderation or storage.
	Preview(ctx context.Context, req domain.UploadRequest) (*domain.EncodedPayload, error)
}

type UploadOptions struct {
	DefaultFormat  string
	DefaultQuality float64
	Now            func() time.Time
	NewID          func() string
}

type uploadService struct {
	loader  SourceLoader
	quota   QuotaService
	gate    ContentGate
	store   repository.ObjectStore
	encoder *codec.Encoder
	opts    UploadOptions
	log     *zap.Logger
}

func NewUploadService(
	loader SourceLoader,
	quota QuotaService,
	gate ContentGate,
	store repository.ObjectStore,
	encoder *codec.Encoder,
	opts UploadOptions,
	log *zap.Logger,
) UploadService {
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = domain.MIMEWebP
	}
	if opts.DefaultQuality <= 0 || opts.DefaultQuality > 1 {
		opts.DefaultQuality = domain.DefaultQuality
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &uploadService{
		loader:  loader,
		quota:   quota,
		gate:    gate,
		store:   store,
		encoder: encoder,
		opts:    opts,
		log:     log,
	}
}

func (s *uploadService) Upload(ctx context.Context, caller domain.Caller, req domain.UploadRequest) (result *domain.UploadResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordUpload(outcomeOf(err), time.Since(start).Seconds())
	}()

	if err := s.loader.Validate(req.Source); err != nil {
		return nil, err
	}

	status, qerr := s.quota.Check(ctx, caller)
	if qerr != nil {
		s.log.Warn("Proceeding without quota information", zap.Error(qerr))
	}
	if status.LimitReached {
		s.log.Info("Upload refused, daily limit reached",
			zap.String("identity", caller.Identity),
			zap.Int("count", status.Count),
			zap.Int("limit", status.Limit))
		return nil, fmt.Errorf("%w: %d of %d uploads used today", domain.ErrQuotaExceeded, status.Count, status.Limit)
	}

	payload, err := s.compose(ctx, req)
	if err != nil {
		return nil, err
	}

	verdict := s.gate.Classify(ctx, payload.Data)
	if !verdict.Appropriate {
		return nil, &domain.ContentRejectedError{Reason: verdict.Reason}
	}

	key := s.objectKey(payload.Extension)
	if err := s.store.UploadFile(ctx, key, payload.Data, payload.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreWrite, err)
	}

	count, ierr := s.quota.Increment(ctx, caller)
	if ierr != nil {
		// the object is already public; report the expected count instead
		count = status.Count + 1
	}

	remaining := status.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	s.log.Info("Upload completed",
		zap.String("key", key),
		zap.String("identity", caller.Identity),
		zap.String("content_type", payload.ContentType),
		zap.Int("size", len(payload.Data)),
		zap.Int("count", count))

	return &domain.UploadResult{
		URL:         s.store.PublicURL(key),
		Key:         key,
		ContentType: payload.ContentType,
		Width:       payload.Width,
		Height:      payload.Height,
		Count:       count,
		Remaining:   remaining,
	}, nil
}

func (s *uploadService) Preview(ctx context.Context, req domain.UploadRequest) (*domain.EncodedPayload, error) {
	if err := s.loader.Validate(req.Source); err != nil {
		return nil, err
	}
	return s.compose(ctx, req)
}

func (s *uploadService) compose(ctx context.Context, req domain.UploadRequest) (*domain.EncodedPayload, error) {
	data, err := s.loader.Load(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	src, err := compositor.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRender, err)
	}

	img, err := compositor.Render(src, req.AddCaption, req.Settings)
	if err != nil {
		return nil, err
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = s.opts.DefaultFormat
	}
	quality := req.Quality
	if quality <= 0 || quality > 1 {
		quality = s.opts.DefaultQuality
	}

	return s.encoder.Encode(img, mimeType, quality)
}

func (s *uploadService) objectKey(ext string) string {
	return fmt.Sprintf("lgtm-%s-%s.%s", s.opts.Now().UTC().Format("20060102-150405"), s.opts.NewID(), ext)
}

func outcomeOf(err error) string {
	var rejected *domain.ContentRejectedError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, domain.ErrImageDecode), errors.Is(err, domain.ErrRender):
		return "render_error"
	case errors.Is(err, domain.ErrEncode):
		return "encode_error"
	case errors.Is(err, domain.ErrStoreWrite):
		return "store_error"
	default:
		return "error"
	}
}
