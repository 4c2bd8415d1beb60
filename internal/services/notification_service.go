package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

const deliveryAttempts = 3

// NotificationService stores in-app notifications and pushes escalations to
// the tenant's external providers.
type NotificationService struct {
	DB *gorm.DB

	// send delivers a shoutrrr message; replaced in tests.
	send       func(url, message string) error
	client     *http.Client
	retryDelay time.Duration
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		DB: db,
		send: func(url, message string) error {
			return shoutrrr.Send(url, message)
		},
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retryDelay: 500 * time.Millisecond,
	}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
		}
	}
	return rawURL
}

// Internal Notifications (DB)

func (s *NotificationService) Create(tenantID uint, nType models.NotificationType, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		TenantID: tenantID,
		Type:     nType,
		Title:    title,
		Message:  message,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotificationService) List(tenantID uint, unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Where("tenant_id = ?", tenantID).Order("created_at desc")
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(tenantID uint, id string) error {
	return s.DB.Model(&models.Notification{}).Where("id = ? AND tenant_id = ?", id, tenantID).Update("read", true).Error
}

func (s *NotificationService) MarkAllAsRead(tenantID uint) error {
	return s.DB.Model(&models.Notification{}).Where("tenant_id = ? AND read = ?", tenantID, false).Update("read", true).Error
}

// Escalations

// Notify records an in-app notification and delivers it to every enabled
// provider of the tenant that accepts the severity. Each provider is retried
// independently; the joined delivery errors are returned.
func (s *NotificationService) Notify(ctx context.Context, tenantID uint, severity models.Severity, title, body string) error {
	nType := models.NotificationTypeWarning
	if severity == models.SeverityCritical {
		nType = models.NotificationTypeError
	}
	var errs []error
	if _, err := s.Create(tenantID, nType, title, body); err != nil {
		errs = append(errs, fmt.Errorf("store notification: %w", err))
	}

	var providers []models.NotificationProvider
	if err := s.DB.WithContext(ctx).Where("tenant_id = ? AND enabled = ?", tenantID, true).Find(&providers).Error; err != nil {
		return errors.Join(append(errs, fmt.Errorf("load notification providers: %w", err))...)
	}

	data := map[string]any{
		"Title":     title,
		"Message":   body,
		"Severity":  string(severity),
		"Time":      time.Now().UTC().Format(time.RFC3339),
		"EventType": "escalation",
		"TenantID":  tenantID,
	}
	for _, p := range providers {
		if !p.Accepts(severity) {
			continue
		}
		err := retry.New(
			retry.Context(ctx),
			retry.Attempts(deliveryAttempts),
			retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
				return time.Duration(n+1) * s.retryDelay
			}),
		).Do(func() error {
			return s.deliver(ctx, p, data)
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"provider":  p.Name,
			}).WithError(err).Warn("escalation delivery failed")
			errs = append(errs, fmt.Errorf("provider %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) deliver(ctx context.Context, p models.NotificationProvider, data map[string]any) error {
	if p.Type == "webhook" {
		return s.sendCustomWebhook(ctx, p, data)
	}
	url := normalizeURL(p.Type, p.URL)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if _, err := validateWebhookURL(url); err != nil {
			return retry.Unrecoverable(fmt.Errorf("invalid destination: %w", err))
		}
	}
	return s.send(url, fmt.Sprintf("%s\n\n%s", data["Title"], data["Message"]))
}

const (
	minimalTemplate  = `{"title": {{toJSON .Title}}, "message": {{toJSON .Message}}, "severity": {{toJSON .Severity}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}}`
	detailedTemplate = `{"title": {{toJSON .Title}}, "message": {{toJSON .Message}}, "severity": {{toJSON .Severity}}, "time": {{toJSON .Time}}, "event": {{toJSON .EventType}}, "tenant_id": {{toJSON .TenantID}}, "data": {{toJSON .}}}`
)

// RenderTemplate renders a provider's webhook payload and checks it is valid JSON.
func (s *NotificationService) RenderTemplate(p models.NotificationProvider, data map[string]any) (string, any, error) {
	tmplStr := p.Config
	switch strings.ToLower(strings.TrimSpace(p.Template)) {
	case "detailed":
		tmplStr = detailedTemplate
	case "minimal":
		tmplStr = minimalTemplate
	default:
		if tmplStr == "" {
			tmplStr = minimalTemplate
		}
	}

	tmpl, err := template.New("webhook").Funcs(template.FuncMap{
		"toJSON": func(v any) string {
			b, _ := json.Marshal(v)
			return string(b)
		},
	}).Parse(tmplStr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse webhook template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", nil, fmt.Errorf("failed to execute webhook template: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(body.Bytes(), &parsed); err != nil {
		return body.String(), nil, fmt.Errorf("failed to parse rendered template: %w", err)
	}
	return body.String(), parsed, nil
}

func (s *NotificationService) sendCustomWebhook(ctx context.Context, p models.NotificationProvider, data map[string]any) error {
	u, err := validateWebhookURL(p.URL)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("invalid webhook url: %w", err))
	}
	body, _, err := s.RenderTemplate(p, data)
	if err != nil {
		return retry.Unrecoverable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

// isPrivateIP returns true for RFC1918, loopback, link-local and unique local addresses.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate()
}

// validateWebhookURL parses a webhook URL and rejects hosts that resolve to
// private addresses. Explicit loopback hosts are allowed for local testing.
func validateWebhookURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return u, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}

// TestProvider sends a one-off test message without retries.
func (s *NotificationService) TestProvider(ctx context.Context, provider models.NotificationProvider) error {
	data := map[string]any{
		"Title":     "Test Notification",
		"Message":   "This is a test notification from FlowGuard",
		"Severity":  string(models.SeverityHigh),
		"Time":      time.Now().UTC().Format(time.RFC3339),
		"EventType": "test",
		"TenantID":  provider.TenantID,
	}
	return s.deliver(ctx, provider, data)
}

// Provider Management

func (s *NotificationService) ListProviders(tenantID uint) ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	result := s.DB.Where("tenant_id = ?", tenantID).Order("created_at asc").Find(&providers)
	return providers, result.Error
}

func (s *NotificationService) GetProvider(tenantID uint, id string) (*models.NotificationProvider, error) {
	var p models.NotificationProvider
	if err := s.DB.Where("id = ? AND tenant_id = ?", id, tenantID).First(&p).Error; err != nil {
		return nil, notFound(err, ErrProviderNotFound, "get notification provider")
	}
	return &p, nil
}

func (s *NotificationService) validateProvider(provider *models.NotificationProvider) error {
	if provider.TenantID == 0 {
		return invalid("tenant is required")
	}
	if provider.MinSeverity != "" && !provider.MinSeverity.Valid() {
		return invalid("unknown severity %q", provider.MinSeverity)
	}
	if strings.ToLower(strings.TrimSpace(provider.Template)) == "custom" && strings.TrimSpace(provider.Config) != "" {
		payload := map[string]any{"Title": "Preview", "Message": "Preview", "Severity": "HIGH", "Time": time.Now().UTC().Format(time.RFC3339), "EventType": "preview"}
		if _, _, err := s.RenderTemplate(*provider, payload); err != nil {
			return invalid("invalid custom template: %v", err)
		}
	}
	return nil
}

func (s *NotificationService) CreateProvider(provider *models.NotificationProvider) error {
	if err := s.validateProvider(provider); err != nil {
		return err
	}
	return s.DB.Create(provider).Error
}

func (s *NotificationService) UpdateProvider(provider *models.NotificationProvider) error {
	if err := s.validateProvider(provider); err != nil {
		return err
	}
	if _, err := s.GetProvider(provider.TenantID, provider.ID); err != nil {
		return err
	}
	return s.DB.Save(provider).Error
}

func (s *NotificationService) DeleteProvider(tenantID uint, id string) error {
	return s.DB.Delete(&models.NotificationProvider{}, "id = ? AND tenant_id = ?", id, tenantID).Error
}
