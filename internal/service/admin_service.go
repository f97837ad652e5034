package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/metrics"
)

const adminSubject = "admin"

// ErrAdminDisabled means no admin password is configured.
var ErrAdminDisabled = fmt.Errorf("%w: admin access is not configured", domain.ErrAuth)

type AdminService interface {
	Verify(ctx context.Context, password string) (bool, error)
	// Login returns the session and its signed token.
	Login(ctx context.Context, password string) (*domain.AdminSession, string, error)
	// Check validates a token; expired or tampered tokens are not logged in.
	Check(token string) (*domain.AdminSession, bool)
}

type adminService struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewAdminService(password, secret string, ttl time.Duration, now func() time.Time, log *zap.Logger) (AdminService, error) {
	if ttl <= 0 {
		ttl = domain.DefaultAdminTTL
	}
	if now == nil {
		now = time.Now
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		log.Warn("ADMIN_SESSION_SECRET not set, admin sessions end on restart")
	}

	return &adminService{
		password: []byte(password),
		secret:   key,
		ttl:      ttl,
		now:      now,
		log:      log,
	}, nil
}

func (s *adminService) Verify(_ context.Context, password string) (bool, error) {
	if len(s.password) == 0 {
		return false, ErrAdminDisabled
	}
	return subtle.ConstantTimeCompare([]byte(password), s.password) == 1, nil
}

func (s *adminService) Login(ctx context.Context, password string) (*domain.AdminSession, string, error) {
	ok, err := s.Verify(ctx, password)
	if err != nil {
		metrics.RecordAdminLogin("disabled")
		return nil, "", err
	}
	if !ok {
		metrics.RecordAdminLogin("denied")
		s.log.Warn("Admin login denied")
		return nil, "", fmt.Errorf("%w: invalid password", domain.ErrAuth)
	}

	// token timestamps have whole-second precision
	now := s.now().Truncate(time.Second)
	expires := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, "", fmt.Errorf("sign admin session: %w", err)
	}

	metrics.RecordAdminLogin("granted")
	s.log.Info("Admin session started", zap.Time("expires_at", expires))

	return &domain.AdminSession{Admin: true, ExpiresAt: expires}, token, nil
}

func (s *adminService) Check(token string) (*domain.AdminSession, bool) {
	if token == "" {
		return nil, false
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenMalformed) {
			s.log.Debug("Rejected admin token", zap.Error(err))
		}
		return nil, false
	}
	if claims.Subject != adminSubject || claims.ExpiresAt == nil {
		return nil, false
	}

	session := &domain.AdminSession{Admin: true, ExpiresAt: claims.ExpiresAt.Time}
	if !session.Active(s.now()) {
		return nil, false
	}
	return session, true
}
