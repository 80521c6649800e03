package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendEmailSender delivers verification and reset links through Resend.
// Delivery is out-of-band: a send failure never undoes token issuance.
type ResendEmailSender struct {
	Client     *resend.Client
	From       string
	AppBaseURL string
	VerifyPath string
	ResetPath  string
}

func NewResendEmailSender(apiKey string, from string, appBaseURL string) *ResendEmailSender {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return &ResendEmailSender{}
	}
	return &ResendEmailSender{
		Client:     resend.NewClient(apiKey),
		From:       from,
		AppBaseURL: strings.TrimRight(appBaseURL, "/"),
		VerifyPath: "/verify-email",
		ResetPath:  "/reset-password",
	}
}

func (s *ResendEmailSender) SendVerificationEmail(ctx context.Context, email string, secret string) error {
	link := s.buildURL(s.VerifyPath, secret)
	subject := "Verify your CodeScribe AI email"
	html := fmt.Sprintf("<p>Confirm your email address to start documenting your code:</p><p><a href=\"%s\">Verify Email</a></p><p>This link expires in 24 hours.</p>", link)
	text := fmt.Sprintf("Verify your email: %s\n\nThis link expires in 24 hours.", link)
	return s.send(ctx, email, subject, html, text)
}

func (s *ResendEmailSender) SendPasswordResetEmail(ctx context.Context, email string, secret string) error {
	link := s.buildURL(s.ResetPath, secret)
	subject := "Reset your CodeScribe AI password"
	html := fmt.Sprintf("<p>Click to choose a new password:</p><p><a href=\"%s\">Reset Password</a></p><p>This link expires in 1 hour. If you did not request a reset, you can ignore this email.</p>", link)
	text := fmt.Sprintf("Reset your password: %s\n\nThis link expires in 1 hour.", link)
	return s.send(ctx, email, subject, html, text)
}

func (s *ResendEmailSender) buildURL(path string, secret string) string {
	if s.AppBaseURL == "" {
		return secret
	}
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s%s?token=%s", s.AppBaseURL, path, secret)
}

func (s *ResendEmailSender) send(_ context.Context, to string, subject string, html string, text string) error {
	if s.Client == nil {
		return errors.New("email sender not configured")
	}
	_, err := s.Client.Emails.Send(&resend.SendEmailRequest{
		From:    s.From,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Text:    text,
	})
	return err
}
