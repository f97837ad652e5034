package service

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
)

// PublicIPLookup reports the public address of this process.
type PublicIPLookup interface {
	PublicIP(ctx context.Context) (string, error)
}

const (
	pinnedZoneCacheSize = 10000
	// longer than any calendar day in any zone, so a caller cannot hop
	// between zones to open a second quota day
	pinnedZoneTTL = 48 * time.Hour
)

// IdentityResolver derives the quota identity and calendar of a caller.
type IdentityResolver interface {
	Resolve(ctx context.Context, clientIP, timezone string) domain.Caller
}

type identityResolver struct {
	lookup   PublicIPLookup
	location *time.Location
	zones    *expirable.LRU[string, *time.Location]
	log      *zap.Logger

	mu       sync.Mutex
	resolved string
}

func NewIdentityResolver(lookup PublicIPLookup, location *time.Location, log *zap.Logger) IdentityResolver {
	if location == nil {
		location = time.Local
	}
	return &identityResolver{
		lookup:   lookup,
		location: location,
		zones:    expirable.NewLRU[string, *time.Location](pinnedZoneCacheSize, nil, pinnedZoneTTL),
		log:      log,
	}
}

// Resolve uses clientIP when it is a public address, otherwise the process's
// own public IP. A failed lookup falls back to an anonymous token that stays
// fixed for the life of the process. The first timezone seen for an identity
// is kept for pinnedZoneTTL; later headers are ignored.
func (r *identityResolver) Resolve(ctx context.Context, clientIP, timezone string) domain.Caller {
	var caller domain.Caller
	if ip := net.ParseIP(strings.TrimSpace(clientIP)); ip != nil && isPublicIP(ip) {
		caller.Identity = ip.String()
	} else {
		caller.Identity = r.fallbackIdentity(ctx)
	}

	caller.Location = r.pinnedLocation(caller.Identity, timezone)
	return caller
}

func (r *identityResolver) pinnedLocation(identity, timezone string) *time.Location {
	if loc, ok := r.zones.Get(identity); ok {
		if timezone != "" && timezone != loc.String() {
			r.log.Debug("Ignoring timezone change for quota identity",
				zap.String("identity", identity),
				zap.String("pinned", loc.String()),
				zap.String("requested", timezone))
		}
		return loc
	}

	loc := r.locationFor(timezone)
	r.zones.Add(identity, loc)
	return loc
}

func (r *identityResolver) locationFor(timezone string) *time.Location {
	if timezone == "" {
		return r.location
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		r.log.Debug("Ignoring unknown timezone", zap.String("timezone", timezone))
		return r.location
	}
	return loc
}

func (r *identityResolver) fallbackIdentity(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != "" {
		return r.resolved
	}

	if r.lookup != nil {
		ip, err := r.lookup.PublicIP(ctx)
		if err == nil {
			r.resolved = ip
			return ip
		}
		r.log.Warn("Public IP lookup failed, using anonymous identity", zap.Error(err))
	}

	r.resolved = anonymousIdentity()
	return r.resolved
}

func anonymousIdentity() string {
	return "anonymous_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}
