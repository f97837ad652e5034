package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"lgtmagic/internal/client/moderation"
	"lgtmagic/internal/domain"
	"lgtmagic/internal/metrics"
)

const (
	verdictCacheSize = 512
	verdictCacheTTL  = time.Hour
)

// SafeSearcher is the moderation collaborator.
type SafeSearcher interface {
	Enabled() bool
	SafeSearch(ctx context.Context, data []byte) (*moderation.SafeSearch, error)
}

// ContentGate classifies encoded payloads. Any moderation failure approves.
type ContentGate interface {
	Classify(ctx context.Context, data []byte) domain.Verdict
}

type contentGate struct {
	client   SafeSearcher
	cache    *expirable.LRU[string, domain.Verdict]
	inflight singleflight.Group
	log      *zap.Logger
}

func NewContentGate(client SafeSearcher, log *zap.Logger) ContentGate {
	return &contentGate{
		client: client,
		cache:  expirable.NewLRU[string, domain.Verdict](verdictCacheSize, nil, verdictCacheTTL),
		log:    log,
	}
}

func (g *contentGate) Classify(ctx context.Context, data []byte) domain.Verdict {
	if g.client == nil || !g.client.Enabled() {
		g.log.Debug("Moderation disabled, approving")
		metrics.RecordVerdict("skipped")
		return approved()
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	if v, ok := g.cache.Get(key); ok {
		return v
	}

	// identical payloads checked concurrently share one API call
	res, err, shared := g.inflight.Do(key, func() (any, error) {
		return g.client.SafeSearch(ctx, data)
	})
	if shared {
		g.log.Debug("Joined in-flight moderation call", zap.String("sha256", key))
	}
	if err != nil {
		g.log.Warn("Moderation call failed, approving", zap.Error(err))
		metrics.RecordVerdict("fail_open")
		return approved()
	}

	result := res.(*moderation.SafeSearch)
	v := verdictFor(result)
	g.cache.Add(key, v)

	if v.Appropriate {
		metrics.RecordVerdict("approved")
	} else {
		metrics.RecordVerdict("rejected")
		g.log.Info("Content rejected",
			zap.String("reason", v.Reason),
			zap.String("adult", result.Adult),
			zap.String("violence", result.Violence),
			zap.String("racy", result.Racy))
	}
	return v
}

func approved() domain.Verdict {
	return domain.Verdict{Appropriate: true}
}

func likely(level string) bool {
	return level == moderation.Likely || level == moderation.VeryLikely
}

func verdictFor(r *moderation.SafeSearch) domain.Verdict {
	switch {
	case likely(r.Adult):
		return domain.Verdict{Reason: "adult content"}
	case likely(r.Violence):
		return domain.Verdict{Reason: "violent content"}
	case likely(r.Racy):
		return domain.Verdict{Reason: "racy content"}
	default:
		return approved()
	}
}
