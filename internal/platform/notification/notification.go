// Package notification renders email templates and hands them to a delivery
// provider.
package notification

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
)

// EmailSender is the interface for sending HTML email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template IDs.
const (
	TemplateOTPCode       = "otp-code"
	TemplatePasswordReset = "password-reset"
)

// Template defines a reusable email template. Placeholders use {{key}}.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateOTPCode,
			Name:    "One-time verification code",
			Subject: "Your OTP Code",
			Body:    "<p>Your OTP code is: <strong>{{otp}}</strong></p>",
		},
		{
			ID:      TemplatePasswordReset,
			Name:    "Password reset token",
			Subject: "Reset your password",
			Body:    "<p>Use this token to reset your password within one hour:</p><p><code>{{token}}</code></p>",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement. Values
// are HTML escaped in the body. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, html.EscapeString(v))
	}
	return subject, body, nil
}

// Notifier renders a template and delivers it through an EmailSender.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
}

func NewNotifier(sender EmailSender, templates *TemplateEngine) *Notifier {
	return &Notifier{sender: sender, templates: templates}
}

func (n *Notifier) SendTemplate(ctx context.Context, templateID, to string, data map[string]string) error {
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	if err := n.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}
