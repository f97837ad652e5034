package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/metrics"
	"lgtmagic/internal/repository"
)

type QuotaService interface {
	// Check never blocks on ledger failures: the returned status is then
	// {Count: 0, LimitReached: false} and the error is for reporting only.
	Check(ctx context.Context, caller domain.Caller) (domain.QuotaStatus, error)
	Increment(ctx context.Context, caller domain.Caller) (int, error)
	Limit() int
}

type quotaService struct {
	repo  repository.QuotaRepository
	limit int
	now   func() time.Time
	log   *zap.Logger
}

func NewQuotaService(repo repository.QuotaRepository, limit int, now func() time.Time, log *zap.Logger) QuotaService {
	if limit <= 0 {
		limit = domain.DefaultDailyLimit
	}
	if now == nil {
		now = time.Now
	}
	return &quotaService{repo: repo, limit: limit, now: now, log: log}
}

func (s *quotaService) Limit() int {
	return s.limit
}

func (s *quotaService) Check(ctx context.Context, caller domain.Caller) (domain.QuotaStatus, error) {
	day := caller.Day(s.now())

	count, err := s.repo.Count(ctx, caller.Identity, day)
	if err != nil {
		s.log.Warn("Quota check failed, allowing upload",
			zap.String("identity", caller.Identity),
			zap.String("day", day),
			zap.Error(err))
		metrics.RecordQuotaFailOpen("check")
		return s.status(0), fmt.Errorf("%w: quota check: %w", domain.ErrLookup, err)
	}

	return s.status(count), nil
}

func (s *quotaService) Increment(ctx context.Context, caller domain.Caller) (int, error) {
	day := caller.Day(s.now())

	count, err := s.repo.Increment(ctx, caller.Identity, day)
	if err != nil {
		s.log.Warn("Quota increment failed",
			zap.String("identity", caller.Identity),
			zap.String("day", day),
			zap.Error(err))
		metrics.RecordQuotaFailOpen("increment")
		return 0, fmt.Errorf("%w: quota increment: %w", domain.ErrLookup, err)
	}

	return count, nil
}

func (s *quotaService) status(count int) domain.QuotaStatus {
	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaStatus{
		Count:        count,
		Limit:        s.limit,
		Remaining:    remaining,
		LimitReached: count >= s.limit,
	}
}
