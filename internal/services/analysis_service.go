package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/classifier"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/metrics"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/util"
)

// Notifier pushes an escalation to the tenant owner.
type Notifier interface {
	Notify(ctx context.Context, tenantID uint, severity models.Severity, title, body string) error
}

// AnalysisResult is the pipeline's answer for one flow. Confidence is the
// probability of the reported verdict.
type AnalysisResult struct {
	IsAnomaly   bool              `json:"is_anomaly"`
	Confidence  float64           `json:"confidence"`
	AttackType  models.AttackType `json:"attack_type,omitempty"`
	Severity    models.Severity   `json:"severity,omitempty"`
	Description string            `json:"description,omitempty"`
	AlertID     uint              `json:"alert_id,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type AnalysisOptions struct {
	// BatchWorkers above 1 analyses batch items concurrently.
	BatchWorkers int
	// StoreTimeout bounds each persistence call; zero means no extra bound.
	StoreTimeout time.Duration
}

// AnalysisService is the alert pipeline: score, classify, persist, escalate.
type AnalysisService struct {
	db       *gorm.DB
	scorer   inference.Scorer
	notifier Notifier
	registry *ModelService
	stats    *StatisticsService
	opts     AnalysisOptions
	now      func() time.Time
}

func NewAnalysisService(db *gorm.DB, scorer inference.Scorer, notifier Notifier, registry *ModelService, stats *StatisticsService, opts AnalysisOptions) *AnalysisService {
	return &AnalysisService{
		db:       db,
		scorer:   scorer,
		notifier: notifier,
		registry: registry,
		stats:    stats,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeTraffic scores one flow against the referenced model.
//
// Engine failures are reported as a normal verdict with zero confidence and a
// nil error. Normal verdicts are not persisted. Anomalies are classified and
// stored as a traffic log plus an alert in one transaction; a store failure
// is returned. HIGH and CRITICAL alerts are escalated after the commit, and
// escalation failures are only logged.
func (s *AnalysisService) AnalyzeTraffic(ctx context.Context, tenantID uint, flow models.FlowRecord, ref ModelRef) (AnalysisResult, error) {
	log := logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"model_id":  ref.ID,
		"src":       util.SanitizeForLog(flow.SourceIP),
		"dst":       util.SanitizeForLog(flow.DestinationIP),
	})

	start := time.Now()
	prediction, err := s.scorer.Predict(ctx, ref.Path, flow.EngineFeatures())
	metrics.ObserveInference(time.Since(start), inference.ErrorKind(err))
	if err != nil {
		log.WithError(err).WithField("kind", inference.ErrorKind(err)).Warn("inference failed, reporting flow as normal")
		metrics.IncFlowAnalyzed("error")
		return AnalysisResult{IsAnomaly: false, Confidence: 0}, nil
	}

	if !prediction.IsAnomaly() {
		metrics.IncFlowAnalyzed("normal")
		return AnalysisResult{IsAnomaly: false, Confidence: 1 - prediction.Probability}, nil
	}
	metrics.IncFlowAnalyzed("anomaly")

	class := classifier.Classify(classifier.FromRecord(flow), prediction.Probability)
	result := AnalysisResult{
		IsAnomaly:   true,
		Confidence:  prediction.Probability,
		AttackType:  class.AttackType,
		Severity:    class.Severity,
		Description: class.Description,
	}

	alert, err := s.persist(ctx, tenantID, flow, ref, prediction.Probability, class)
	if err != nil {
		log.WithError(err).Error("failed to persist anomaly")
		return result, err
	}
	result.AlertID = alert.ID
	metrics.IncAlert(string(class.Severity))
	if s.stats != nil {
		s.stats.Invalidate(ctx, tenantID)
	}

	log.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"attack_type": class.AttackType,
		"severity":    class.Severity,
		"confidence":  prediction.Probability,
	}).Info("anomaly detected")

	if class.Severity.Escalates() {
		s.escalate(ctx, tenantID, flow, prediction.Probability, class, log)
	}
	return result, nil
}

func (s *AnalysisService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *AnalysisService) persist(ctx context.Context, tenantID uint, flow models.FlowRecord, ref ModelRef, confidence float64, class classifier.Classification) (*models.Alert, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	var modelID *uint
	if ref.ID != 0 {
		id := ref.ID
		modelID = &id
	}
	now := s.now()
	snapshot := flow.Features.Snapshot()

	trafficLog := models.TrafficLog{
		TenantID:        tenantID,
		ModelID:         modelID,
		SourceIP:        flow.SourceIP,
		DestinationIP:   flow.DestinationIP,
		SourcePort:      portPtr(flow.SourcePort),
		DestinationPort: portPtr(flow.DestinationPort),
		Protocol:        flow.Protocol,
		PacketCount:     flow.Packets,
		ByteCount:       flow.BytesSent + flow.BytesReceived,
		Duration:        flow.Duration,
		Features:        snapshot,
		Prediction:      models.PredictionAnomaly,
		Confidence:      confidence,
		Timestamp:       now,
	}
	alert := models.Alert{
		TenantID:        tenantID,
		ModelID:         modelID,
		Severity:        class.Severity,
		AttackType:      class.AttackType,
		SourceIP:        flow.SourceIP,
		DestinationIP:   flow.DestinationIP,
		SourcePort:      portPtr(flow.SourcePort),
		DestinationPort: portPtr(flow.DestinationPort),
		Protocol:        flow.Protocol,
		Confidence:      confidence,
		Description:     class.Description,
		Features:        snapshot,
		DetectedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trafficLog).Error; err != nil {
			return fmt.Errorf("traffic log: %w", err)
		}
		alert.TrafficLogID = &trafficLog.ID
		if err := tx.Create(&alert).Error; err != nil {
			return fmt.Errorf("alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("analysis result", err)
	}
	return &alert, nil
}

func (s *AnalysisService) escalate(ctx context.Context, tenantID uint, flow models.FlowRecord, confidence float64, class classifier.Classification, log *logrus.Entry) {
	if s.notifier == nil {
		return
	}
	title, body := EscalationMessage(flow, confidence, class)
	if err := s.notifier.Notify(ctx, tenantID, class.Severity, title, body); err != nil {
		metrics.IncEscalation("failed")
		log.WithError(err).Warn("escalation failed")
		return
	}
	metrics.IncEscalation("sent")
}

// EscalationMessage renders the owner notification for an alert.
func EscalationMessage(flow models.FlowRecord, confidence float64, class classifier.Classification) (title, body string) {
	title = fmt.Sprintf("%s level threat detected", class.Severity)
	body = fmt.Sprintf("Attack type: %s\nSource: %s\nConfidence: %.2f%%\n%s",
		class.AttackType, flow.SourceIP, confidence*100, class.Description)
	return title, body
}

// AnalyzeTrafficBatch analyses flows and returns one result per flow in input
// order. A failure on one flow never stops the rest: the item carries its
// classification and the error text.
func (s *AnalysisService) AnalyzeTrafficBatch(ctx context.Context, tenantID uint, flows []models.FlowRecord, ref ModelRef) []AnalysisResult {
	results := make([]AnalysisResult, len(flows))
	analyze := func(i int) {
		res, err := s.AnalyzeTraffic(ctx, tenantID, flows[i], ref)
		if err != nil {
			res.Error = err.Error()
		}
		results[i] = res
	}

	if s.opts.BatchWorkers <= 1 {
		for i := range flows {
			analyze(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.opts.BatchWorkers)
	for i := range flows {
		i := i
		g.Go(func() error {
			analyze(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AnalyzeWithActiveModel resolves the tenant's active model and analyses the flow.
func (s *AnalysisService) AnalyzeWithActiveModel(ctx context.Context, tenantID uint, flow models.FlowRecord) (AnalysisResult, error) {
	m, err := s.registry.GetActive(ctx, tenantID)
	if err != nil {
		return AnalysisResult{}, err
	}
	return s.AnalyzeTraffic(ctx, tenantID, flow, RefFor(m))
}

// AnalyzeBatchWithActiveModel is the batch form of AnalyzeWithActiveModel.
func (s *AnalysisService) AnalyzeBatchWithActiveModel(ctx context.Context, tenantID uint, flows []models.FlowRecord) ([]AnalysisResult, error) {
	m, err := s.registry.GetActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeTrafficBatch(ctx, tenantID, flows, RefFor(m)), nil
}

func portPtr(p int) *int {
	if p <= 0 {
		return nil
	}
	return &p
}
