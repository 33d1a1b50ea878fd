// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package subscribers manages the notification subscription lifecycle:
// double opt-in via emailed verification token, category filter updates
// and token based unsubscribe.
package subscribers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/tobalt/cityalerts/internal/models"
	"github.com/tobalt/cityalerts/internal/repository"
	"github.com/tobalt/cityalerts/internal/services/email"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidToken = errors.New("invalid or unknown token")
)

const tokenLength = 32

// Service implements subscription management on top of the repository.
type Service struct {
	repo   *repository.Repository
	mail   *email.Service
	logger *slog.Logger

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewService(repo *repository.Repository, mail *email.Service, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		mail:   mail,
		logger: logger,
		Now:    time.Now,
	}
}

// Subscribe registers or updates a subscription and sends a verification
// email when one is needed. Re-subscribing with a changed category
// filter keeps an existing verified status; the filter is the
// subscriber's own data and needs no re-confirmation.
func (s *Service) Subscribe(ctx context.Context, address string, categoryIDs []int64) error {
	address, err := normalizeEmail(address)
	if err != nil {
		return err
	}

	categories := models.EncodeCategoryIDs(categoryIDs)

	existing, err := s.repo.GetSubscriberByEmail(ctx, address)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("looking up subscriber: %w", err)
	}

	if existing != nil {
		if existing.Verified {
			if err := s.repo.UpdateSubscriberCategories(ctx, existing.ID, categories, nil); err != nil {
				return fmt.Errorf("updating subscription: %w", err)
			}
			s.logger.Info("subscription updated", "subscriber_id", existing.ID)
			return nil
		}
		// Unverified yet: rotate the token and resend the email.
		token := newToken()
		if err := s.repo.UpdateSubscriberCategories(ctx, existing.ID, categories, &token); err != nil {
			return fmt.Errorf("updating subscription: %w", err)
		}
		return s.mail.SendSubscriptionVerification(ctx, address, token)
	}

	verifyToken := newToken()
	sub := &models.Subscriber{
		Email:            address,
		Categories:       categories,
		VerifyToken:      &verifyToken,
		UnsubscribeToken: newToken(),
	}
	if err := s.repo.CreateSubscriber(ctx, sub, s.Now()); err != nil {
		return fmt.Errorf("creating subscriber: %w", err)
	}
	s.logger.Info("subscriber created", "subscriber_id", sub.ID)
	return s.mail.SendSubscriptionVerification(ctx, address, verifyToken)
}

// Verify confirms a subscription by its verification token. Verifying
// twice with the same token fails with ErrInvalidToken because the
// token is cleared on first use.
func (s *Service) Verify(ctx context.Context, token string) error {
	if !validTokenFormat(token) {
		return ErrInvalidToken
	}
	sub, err := s.repo.GetSubscriberByVerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("looking up token: %w", err)
	}
	if err := s.repo.MarkSubscriberVerified(ctx, sub.ID, s.Now()); err != nil {
		return fmt.Errorf("verifying subscriber: %w", err)
	}
	s.logger.Info("subscriber verified", "subscriber_id", sub.ID)
	return nil
}

// Unsubscribe deletes the subscription addressed by an unsubscribe
// token. The whole record goes away; a later subscribe starts from
// scratch.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	if !validTokenFormat(token) {
		return ErrInvalidToken
	}
	deleted, err := s.repo.DeleteSubscriberByUnsubscribeToken(ctx, token)
	if err != nil {
		return fmt.Errorf("deleting subscriber: %w", err)
	}
	if !deleted {
		return ErrInvalidToken
	}
	return nil
}

func normalizeEmail(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return "", ErrInvalidEmail
	}
	return address, nil
}

func newToken() string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

func validTokenFormat(token string) bool {
	if len(token) != tokenLength*2 {
		return false
	}
	for _, r := range token {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
