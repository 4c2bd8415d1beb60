package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/models"
)

type sentNotification struct {
	TenantID uint
	Severity models.Severity
	Title    string
	Body     string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, tenantID uint, severity models.Severity, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{tenantID, severity, title, body})
	return f.err
}

func (f *fakeNotifier) calls() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotification(nil), f.sent...)
}

var errEngineExit = &inference.ProcessError{Op: "predict", ExitCode: 1, Stderr: "boom", Err: errors.New("exit status 1")}

func setupServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return database.OpenTestDB(t)
}

func createTestModel(t *testing.T, svc *ModelService, tenantID uint, name string) *models.Model {
	t.Helper()
	m := &models.Model{
		TenantID:     tenantID,
		Name:         name,
		Algorithm:    models.AlgorithmRandomForest,
		ArtifactPath: "/models/" + name + ".pkl",
	}
	require.NoError(t, svc.Create(context.Background(), m))
	return m
}

func ddosFlow() models.FlowRecord {
	return models.FlowRecord{
		SourceIP:      "203.0.113.7",
		DestinationIP: "10.0.0.5",
		Protocol:      "TCP",
		Duration:      2,
		BytesSent:     900000,
		BytesReceived: 200000,
		Packets:       1200,
	}
}

func ptr[T any](v T) *T { return &v }
