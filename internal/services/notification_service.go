package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/time/rate"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NotificationConfig carries the per-channel credentials. Channels
// without credentials report an error on use. Credentials live only in
// process memory.
type NotificationConfig struct {
	SlackWebhookURL string

	SendGridAPIKey string
	EmailFrom      string
	EmailTo        string

	PagerDutyRoutingKey string

	WebhookURL    string
	WebhookSecret string

	// DeliveriesPerMinute caps total outbound deliveries across all
	// channels. Zero means 60.
	DeliveriesPerMinute int
}

// NotificationService delivers alerts over the configured channels. It
// implements Notifier for the dispatcher.
type NotificationService struct {
	cfg        NotificationConfig
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logger.Logger
}

// NewNotificationService creates a new notification service.
func NewNotificationService(cfg NotificationConfig, log *logger.Logger) *NotificationService {
	perMinute := cfg.DeliveriesPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &NotificationService{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log,
	}
}

// Send delivers one alert over one channel. The global rate limiter
// applies across channels.
func (s *NotificationService) Send(ctx context.Context, channel string, a alert.Alert) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	switch channel {
	case alert.ChannelSlack:
		return s.sendSlack(ctx, a)
	case alert.ChannelEmail:
		return s.sendEmail(ctx, a)
	case alert.ChannelPagerDuty:
		return s.sendPagerDuty(ctx, a)
	case alert.ChannelWebhook:
		return s.sendWebhook(ctx, a)
	default:
		return fmt.Errorf("unsupported channel: %s", channel)
	}
}

// sendSlack posts a colored attachment to the configured webhook.
func (s *NotificationService) sendSlack(ctx context.Context, a alert.Alert) error {
	if s.cfg.SlackWebhookURL == "" {
		return fmt.Errorf("no Slack webhook URL configured")
	}

	payload, err := json.Marshal(s.buildSlackMessage(a))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Slack API error: %s", string(body))
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"type":     a.Type,
	}).Info("Slack notification sent")

	return nil
}

// buildSlackMessage builds a Slack attachment payload for an alert.
func (s *NotificationService) buildSlackMessage(a alert.Alert) map[string]interface{} {
	color := "#36a64f"
	switch a.Severity {
	case alert.SeverityCritical:
		color = "#ff0000"
	case alert.SeverityWarning:
		color = "#ff8c00"
	}

	emoji := ":bell:"
	switch a.Type {
	case alert.TypeSLOViolation:
		emoji = ":rotating_light:"
	case alert.TypeSLOWarning:
		emoji = ":warning:"
	case alert.TypeSLOFastBurn:
		emoji = ":fire:"
	case alert.TypeBudgetThreshold, alert.TypeHighCostOperation:
		emoji = ":money_with_wings:"
	}

	fields := make([]map[string]interface{}, 0, len(a.Metadata))
	for k, v := range a.Metadata {
		fields = append(fields, map[string]interface{}{
			"title": k,
			"value": v,
			"short": true,
		})
	}

	return map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  fmt.Sprintf("%s %s", emoji, a.Type),
				"text":   a.Message,
				"fields": fields,
				"footer": "Burnwatch",
				"ts":     a.CreatedAt.Unix(),
			},
		},
	}
}

// sendEmail delivers the alert via SendGrid.
func (s *NotificationService) sendEmail(ctx context.Context, a alert.Alert) error {
	if s.cfg.SendGridAPIKey == "" || s.cfg.EmailTo == "" {
		return fmt.Errorf("email channel not configured")
	}

	from := mail.NewEmail("Burnwatch", s.cfg.EmailFrom)
	to := mail.NewEmail("", s.cfg.EmailTo)
	subject := fmt.Sprintf("[%s] %s", a.Severity, a.Type)
	body := a.Message
	html := fmt.Sprintf("<p>%s</p><p><small>alert %s at %s</small></p>",
		a.Message, a.ID, a.CreatedAt.UTC().Format(time.RFC3339))

	message := mail.NewSingleEmail(from, subject, to, body, html)
	client := sendgrid.NewSendClient(s.cfg.SendGridAPIKey)

	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("SendGrid error status %d: %s", resp.StatusCode, resp.Body)
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"type":     a.Type,
	}).Info("Email notification sent")

	return nil
}

// sendPagerDuty posts a trigger event to the Events API v2.
func (s *NotificationService) sendPagerDuty(ctx context.Context, a alert.Alert) error {
	if s.cfg.PagerDutyRoutingKey == "" {
		return fmt.Errorf("no PagerDuty routing key configured")
	}

	severity := a.Severity
	if severity != "critical" && severity != "warning" && severity != "info" {
		severity = "error"
	}

	event := map[string]interface{}{
		"routing_key":  s.cfg.PagerDutyRoutingKey,
		"event_action": "trigger",
		"dedup_key":    a.ID,
		"payload": map[string]interface{}{
			"summary":        a.Message,
			"source":         "burnwatch",
			"severity":       severity,
			"timestamp":      a.CreatedAt.UTC().Format(time.RFC3339),
			"custom_details": a.Metadata,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal PagerDuty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pagerDutyEventsURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send PagerDuty event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("PagerDuty error status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"type":     a.Type,
	}).Info("PagerDuty event sent")

	return nil
}

// sendWebhook posts the alert as JSON, HMAC-signed when a secret is
// configured.
func (s *NotificationService) sendWebhook(ctx context.Context, a alert.Alert) error {
	if s.cfg.WebhookURL == "" {
		return fmt.Errorf("no webhook URL configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event":     a.Type,
		"timestamp": a.CreatedAt.UTC().Format(time.RFC3339),
		"alert":     a,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Burnwatch-Event", a.Type)
	req.Header.Set("X-Burnwatch-Timestamp", fmt.Sprintf("%d", a.CreatedAt.Unix()))
	if s.cfg.WebhookSecret != "" {
		req.Header.Set("X-Burnwatch-Signature", signPayload(payload, s.cfg.WebhookSecret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"status":   resp.StatusCode,
	}).Info("Webhook delivered")

	return nil
}

// signPayload signs the payload with HMAC-SHA256
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
