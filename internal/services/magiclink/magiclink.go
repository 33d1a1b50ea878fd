// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package magiclink issues and validates the one-time tokens that
// authenticate alert submissions.
package magiclink

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tobalt/cityalerts/internal/config"
	"github.com/tobalt/cityalerts/internal/repository"
)

const (
	// SecretLength is the number of random bytes in a token secret.
	// Rendered as hex this yields the 64-character link tokens.
	SecretLength = 32

	// rateLimitWindow is the trailing window for the per-email limit.
	rateLimitWindow = time.Hour

	// cleanupGrace keeps expired tokens around long enough for
	// "link expired" responses to stay accurate.
	cleanupGrace = 24 * time.Hour
)

var (
	ErrNotApproved   = errors.New("email not approved for submissions")
	ErrRateLimited   = errors.New("too many link requests")
	ErrInvalidFormat = errors.New("invalid token format")
	ErrNotFound      = errors.New("token not found")
	ErrExpired       = errors.New("token expired")
	ErrAlreadyUsed   = errors.New("token already used")
)

// Link is an issued magic-link token. Secret is the only plaintext copy;
// it goes into the emailed URL and is never stored.
type Link struct {
	Secret    string
	ExpiresAt time.Time
}

// TokenInfo is the result of verifying a still-valid token.
type TokenInfo struct {
	Email     string
	ExpiresAt time.Time
}

// Service implements the magic-link token lifecycle.
type Service struct {
	repo *repository.Repository
	cfg  config.AuthConfig

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewService creates a magic-link service with the given policy.
func NewService(repo *repository.Repository, cfg config.AuthConfig) *Service {
	return &Service{
		repo: repo,
		cfg:  cfg,
		Now:  time.Now,
	}
}

// RequestLink issues a new token for email. It fails with ErrNotApproved
// for unknown senders and ErrRateLimited once the hourly budget is spent.
func (s *Service) RequestLink(ctx context.Context, email string) (*Link, error) {
	approved, err := s.repo.IsApprovedSender(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking approved sender: %w", err)
	}
	if !approved {
		return nil, ErrNotApproved
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}

	now := s.Now()
	expiresAt := now.Add(time.Duration(s.cfg.TokenExpiryMinutes) * time.Minute)

	created, err := s.repo.CreateMagicToken(ctx, email, HashSecret(secret), expiresAt, s.cfg.RateLimit, rateLimitWindow, now)
	if err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	if !created {
		return nil, ErrRateLimited
	}

	return &Link{Secret: secret, ExpiresAt: expiresAt}, nil
}

// Verify checks a token without consuming it. It can be called any number
// of times against a still-valid token, which is how read-only operations
// ("my alerts", ownership checks) authenticate.
func (s *Service) Verify(ctx context.Context, secret string) (*TokenInfo, error) {
	if !ValidSecretFormat(secret) {
		return nil, ErrInvalidFormat
	}

	token, err := s.repo.GetMagicToken(ctx, HashSecret(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.Now()
	if !now.Before(token.ExpiresAt) {
		return nil, ErrExpired
	}
	if token.UsedAt != nil {
		return nil, ErrAlreadyUsed
	}

	return &TokenInfo{Email: token.Email, ExpiresAt: token.ExpiresAt}, nil
}

// Consume burns a token. Call it only after the action the token
// authorized has durably succeeded, so a failed write downstream does not
// cost the user their session. Consuming twice is harmless.
func (s *Service) Consume(ctx context.Context, secret string) error {
	if !ValidSecretFormat(secret) {
		return ErrInvalidFormat
	}
	return s.repo.ConsumeMagicToken(ctx, HashSecret(secret), s.Now())
}

// CleanupExpired deletes tokens expired for longer than the grace period.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredMagicTokens(ctx, s.Now().Add(-cleanupGrace))
}

// SeedApprovedSenders loads configured addresses into the registry.
func (s *Service) SeedApprovedSenders(ctx context.Context, emails []string) error {
	now := s.Now()
	for _, email := range emails {
		if err := s.repo.AddApprovedSender(ctx, email, "employee", "config", now); err != nil {
			return fmt.Errorf("seeding approved sender %s: %w", email, err)
		}
	}
	return nil
}

// ValidSecretFormat reports whether s looks like a token secret:
// exactly 64 lowercase hex characters.
func ValidSecretFormat(s string) bool {
	if len(s) != SecretLength*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashSecret computes the stored form of a token secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func generateSecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
