package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/models"
)

func setupNotificationService(t *testing.T) (*NotificationService, *gorm.DB) {
	t.Helper()
	db := setupServicesTestDB(t)
	svc := NewNotificationService(db)
	svc.retryDelay = 0
	return svc, db
}

func TestNotificationService_Create(t *testing.T) {
	svc, _ := setupNotificationService(t)

	notif, err := svc.Create(1, models.NotificationTypeInfo, "Test", "Message")
	require.NoError(t, err)
	assert.Equal(t, "Test", notif.Title)
	assert.Equal(t, "Message", notif.Message)
	assert.Equal(t, uint(1), notif.TenantID)
	assert.False(t, notif.Read)
}

func TestNotificationService_List(t *testing.T) {
	svc, db := setupNotificationService(t)

	_, _ = svc.Create(1, models.NotificationTypeInfo, "N1", "M1")
	_, _ = svc.Create(1, models.NotificationTypeInfo, "N2", "M2")
	_, _ = svc.Create(2, models.NotificationTypeInfo, "other", "M3")

	list, err := svc.List(1, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	db.Model(&models.Notification{}).Where("title = ?", "N1").Update("read", true)

	unread, err := svc.List(1, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "N2", unread[0].Title)
}

func TestNotificationService_MarkAsRead(t *testing.T) {
	svc, db := setupNotificationService(t)

	notif, _ := svc.Create(1, models.NotificationTypeInfo, "N1", "M1")

	// Another tenant cannot mark it.
	require.NoError(t, svc.MarkAsRead(2, notif.ID))
	var n models.Notification
	db.First(&n, "id = ?", notif.ID)
	assert.False(t, n.Read)

	require.NoError(t, svc.MarkAsRead(1, notif.ID))
	db.First(&n, "id = ?", notif.ID)
	assert.True(t, n.Read)
}

func TestNotificationService_MarkAllAsRead(t *testing.T) {
	svc, db := setupNotificationService(t)

	_, _ = svc.Create(1, models.NotificationTypeInfo, "N1", "M1")
	_, _ = svc.Create(1, models.NotificationTypeInfo, "N2", "M2")
	_, _ = svc.Create(2, models.NotificationTypeInfo, "N3", "M3")

	require.NoError(t, svc.MarkAllAsRead(1))

	var count int64
	db.Model(&models.Notification{}).Where("read = ?", false).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestNotificationService_NotifyFiltersProvidersBySeverity(t *testing.T) {
	svc, db := setupNotificationService(t)

	var mu sync.Mutex
	var urls []string
	svc.send = func(url, message string) error {
		mu.Lock()
		defer mu.Unlock()
		urls = append(urls, url)
		assert.Contains(t, message, "HIGH level threat detected")
		return nil
	}

	providers := []models.NotificationProvider{
		{TenantID: 1, Name: "default", Type: "gotify", URL: "gotify://default", Enabled: true},
		{TenantID: 1, Name: "critical-only", Type: "gotify", URL: "gotify://critical", Enabled: true, MinSeverity: models.SeverityCritical},
		{TenantID: 1, Name: "disabled", Type: "gotify", URL: "gotify://disabled", Enabled: false},
		{TenantID: 2, Name: "other-tenant", Type: "gotify", URL: "gotify://other", Enabled: true},
	}
	for i := range providers {
		require.NoError(t, db.Create(&providers[i]).Error)
	}

	err := svc.Notify(context.Background(), 1, models.SeverityHigh, "HIGH level threat detected", "Attack type: DDoS Attack")
	require.NoError(t, err)
	assert.Equal(t, []string{"gotify://default"}, urls)

	inApp, err := svc.List(1, true)
	require.NoError(t, err)
	require.Len(t, inApp, 1)
	assert.Equal(t, models.NotificationTypeWarning, inApp[0].Type)
}

func TestNotificationService_NotifyRetriesAndJoinsErrors(t *testing.T) {
	svc, db := setupNotificationService(t)

	var attempts int32
	svc.send = func(string, string) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("gateway timeout")
	}
	require.NoError(t, db.Create(&models.NotificationProvider{TenantID: 1, Name: "flaky", Type: "gotify", URL: "gotify://x", Enabled: true}).Error)

	err := svc.Notify(context.Background(), 1, models.SeverityCritical, "CRITICAL level threat detected", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flaky")
	assert.Equal(t, int32(deliveryAttempts), atomic.LoadInt32(&attempts))

	inApp, _ := svc.List(1, false)
	require.Len(t, inApp, 1)
	assert.Equal(t, models.NotificationTypeError, inApp[0].Type)
}

func TestNotificationService_WebhookDelivery(t *testing.T) {
	svc, db := setupNotificationService(t)

	var calls int32
	received := make(chan map[string]any, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	require.NoError(t, db.Create(&models.NotificationProvider{TenantID: 1, Name: "hook", Type: "webhook", URL: ts.URL, Enabled: true}).Error)

	require.NoError(t, svc.Notify(context.Background(), 1, models.SeverityCritical, "CRITICAL level threat detected", "Attack type: DoS Attack"))

	payload := <-received
	assert.Equal(t, "CRITICAL level threat detected", payload["title"])
	assert.Equal(t, "CRITICAL", payload["severity"])
	assert.Equal(t, "escalation", payload["event"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNotificationService_InvalidWebhookIsNotRetried(t *testing.T) {
	svc, _ := setupNotificationService(t)
	p := models.NotificationProvider{TenantID: 1, Type: "webhook", URL: "ftp://example.com/hook"}

	err := svc.TestProvider(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestNotificationService_RenderTemplate(t *testing.T) {
	svc, _ := setupNotificationService(t)
	data := map[string]any{"Title": `quote " title`, "Message": "m", "Severity": "HIGH", "Time": "t", "EventType": "escalation", "TenantID": uint(4)}

	body, parsed, err := svc.RenderTemplate(models.NotificationProvider{Template: "detailed"}, data)
	require.NoError(t, err)
	assert.Contains(t, body, `"tenant_id": 4`)
	assert.Equal(t, `quote " title`, parsed.(map[string]any)["title"])

	_, _, err = svc.RenderTemplate(models.NotificationProvider{Template: "custom", Config: `{"text": {{.Title}}}`}, data)
	assert.Error(t, err)
}

func TestNotificationService_ProviderCRUD(t *testing.T) {
	svc, _ := setupNotificationService(t)

	p := &models.NotificationProvider{TenantID: 1, Name: "ops", Type: "slack", URL: "slack://token", Enabled: true}
	require.NoError(t, svc.CreateProvider(p))
	assert.Equal(t, "minimal", p.Template)

	bad := &models.NotificationProvider{TenantID: 1, Name: "bad", MinSeverity: "URGENT"}
	assert.ErrorIs(t, svc.CreateProvider(bad), ErrInvalidInput)

	_, err := svc.GetProvider(2, p.ID)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	p.Name = "ops-renamed"
	require.NoError(t, svc.UpdateProvider(p))
	got, err := svc.GetProvider(1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops-renamed", got.Name)

	list, err := svc.ListProviders(1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteProvider(1, p.ID))
	list, _ = svc.ListProviders(1)
	assert.Empty(t, list)
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("10.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("192.168.1.1")))
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("fd00::1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
}
