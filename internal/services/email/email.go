// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package email renders and delivers the three outbound mails: magic
// links, subscription verification and alert notifications.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"

	"github.com/tobalt/cityalerts/internal/i18n"
	"github.com/tobalt/cityalerts/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Service renders email bodies and hands them to a Mailer.
type Service struct {
	mailer    Mailer
	baseURL   string
	templates *template.Template
}

// NewService creates the email service. baseURL is used to build the
// links embedded in every mail.
func NewService(mailer Mailer, baseURL string) (*Service, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email templates: %w", err)
	}
	return &Service{
		mailer:    mailer,
		baseURL:   baseURL,
		templates: tpl,
	}, nil
}

// SendMagicLink mails a freshly issued submission link.
func (s *Service) SendMagicLink(ctx context.Context, to, secret string, expiryMinutes int) error {
	body, err := s.render("magic_link.html", map[string]any{
		"SubmitURL":     s.link("/submit", "token", secret),
		"ExpiryMinutes": expiryMinutes,
	})
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, to, i18n.T(ctx, "email_magic_link_subject"), body)
}

// SendSubscriptionVerification mails the confirm-your-subscription link.
func (s *Service) SendSubscriptionVerification(ctx context.Context, to, token string) error {
	body, err := s.render("verify_subscription.html", map[string]any{
		"VerifyURL": s.link("/api/v1/verify-subscription/"+token, "", ""),
	})
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, to, i18n.T(ctx, "email_verify_subscription_subject"), body)
}

// SendAlertNotification mails one published alert to one subscriber.
func (s *Service) SendAlertNotification(ctx context.Context, to string, alert *models.Alert, unsubscribeToken string) error {
	categories := make([]string, 0, len(alert.Categories))
	for _, c := range alert.Categories {
		categories = append(categories, c.Name)
	}

	body, err := s.render("notification.html", map[string]any{
		"Alert":          alert,
		"Categories":     categories,
		"UnsubscribeURL": s.link("/api/v1/unsubscribe/"+unsubscribeToken, "", ""),
	})
	if err != nil {
		return err
	}

	subject := i18n.TData(ctx, "email_notification_subject", map[string]any{"Title": alert.Title})
	return s.mailer.Send(ctx, to, subject, body)
}

func (s *Service) render(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *Service) link(path, queryKey, queryValue string) string {
	u := s.baseURL + path
	if queryKey != "" {
		u += "?" + queryKey + "=" + url.QueryEscape(queryValue)
	}
	return u
}
