package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"subhub/internal/config"
	"subhub/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"gorm.io/gorm"
)

// EventKind identifies a registry event worth telling a domain owner about
type EventKind string

const (
	EventSubdomainClaimed EventKind = "subdomain_claimed"
	EventOrphanFlagged    EventKind = "orphan_flagged"
)

// Event describes a registry occurrence delivered to notifiers
type Event struct {
	Kind   EventKind
	Domain *models.DonatedDomain
	Label  string
	Detail string
}

// FQDN returns the full subdomain the event concerns
func (e *Event) FQDN() string {
	return e.Label + "." + e.Domain.DomainName
}

// Subject returns a short human-readable headline for the event
func (e *Event) Subject() string {
	switch e.Kind {
	case EventSubdomainClaimed:
		return fmt.Sprintf("Subdomain claimed: %s", e.FQDN())
	case EventOrphanFlagged:
		return fmt.Sprintf("DNS record pending cleanup: %s", e.FQDN())
	}
	return fmt.Sprintf("Registry event on %s", e.Domain.DomainName)
}

// Notifier interface for different notification channels
type Notifier interface {
	Send(ev *Event) error
}

// NotifyService fans registry events out to all enabled channels and
// records each attempt.
type NotifyService struct {
	db        *gorm.DB
	notifiers []Notifier
	log       *zap.Logger
}

// NewNotifyService creates a notification service from configuration
func NewNotifyService(cfg *config.NotificationsConfig, db *gorm.DB, log *zap.Logger) *NotifyService {
	service := &NotifyService{
		db:        db,
		notifiers: make([]Notifier, 0),
		log:       log,
	}

	if cfg.Email.Enabled {
		service.notifiers = append(service.notifiers, NewEmailNotifier(&cfg.Email))
	}
	if cfg.Webhook.Enabled {
		service.notifiers = append(service.notifiers, NewWebhookNotifier(&cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		service.notifiers = append(service.notifiers, NewTelegramNotifier(&cfg.Telegram))
	}

	return service
}

// Notify sends the event through all enabled channels. Delivery failures
// are logged and recorded, never propagated to the calling operation.
func (s *NotifyService) Notify(ev *Event) {
	for _, notifier := range s.notifiers {
		notifierType := fmt.Sprintf("%T", notifier)
		if err := notifier.Send(ev); err != nil {
			s.log.Warn("notification failed",
				zap.String("channel", notifierType),
				zap.String("event", string(ev.Kind)),
				zap.Error(err))
			s.record(ev, notifierType, "failed")
			continue
		}
		s.record(ev, notifierType, "success")
	}
}

func (s *NotifyService) record(ev *Event, notifierType, status string) {
	notification := &models.Notification{
		DomainID: ev.Domain.ID,
		Type:     notifierType,
		Event:    string(ev.Kind),
		Content:  ev.Detail,
		Status:   status,
		SentAt:   time.Now(),
	}
	if err := s.db.Create(notification).Error; err != nil {
		s.log.Warn("recording notification failed", zap.Error(err))
	}
}

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.EmailConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// Send sends email notification
func (e *EmailNotifier) Send(ev *Event) error {
	// Owner contact address takes priority over the configured fallback list.
	to := e.config.To
	if ev.Domain.ContactEmail != "" {
		to = []string{ev.Domain.ContactEmail}
	}
	if len(to) == 0 {
		return nil
	}

	body := fmt.Sprintf(`%s

Domain:    %s
Subdomain: %s
Detail:    %s
Time:      %s
`,
		ev.Subject(),
		ev.Domain.DomainName,
		ev.FQDN(),
		ev.Detail,
		time.Now().Format("2006-01-02 15:04:05"),
	)

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(to, ","))
	message += fmt.Sprintf("Subject: %s\r\n", ev.Subject())
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.From, e.config.Password, e.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	if err := smtp.SendMail(addr, auth, e.config.From, to, []byte(message)); err != nil {
		// Some providers close the connection early after accepting the
		// message; treat only real failures as errors.
		if !strings.Contains(err.Error(), "short response") {
			return fmt.Errorf("failed to send email: %w", err)
		}
	}
	return nil
}

// WebhookNotifier sends webhook notifications
type WebhookNotifier struct {
	config *config.WebhookConfig
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{config: cfg}
}

// Send posts the event as JSON to the configured URL
func (w *WebhookNotifier) Send(ev *Event) error {
	payload := map[string]interface{}{
		"event":     string(ev.Kind),
		"domain":    ev.Domain.DomainName,
		"domain_id": ev.Domain.ID,
		"subdomain": ev.Label,
		"fqdn":      ev.FQDN(),
		"detail":    ev.Detail,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(w.config.URL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramNotifier sends Telegram notifications
type TelegramNotifier struct {
	config *config.TelegramConfig
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{config: cfg}
}

// Send sends the event text through the Telegram bot API, optionally via
// a SOCKS5 proxy.
func (t *TelegramNotifier) Send(ev *Event) error {
	message := fmt.Sprintf("%s\n\nDomain: %s\nDetail: %s",
		ev.Subject(), ev.Domain.DomainName, ev.Detail)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.config.BotToken)

	payload := map[string]interface{}{
		"chat_id": t.config.ChatID,
		"text":    message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if t.config.Proxy != "" {
		dialer, err := proxy.SOCKS5("tcp", t.config.Proxy, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("invalid SOCKS5 proxy: %w", err)
		}
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}

	resp, err := client.Post(apiURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
