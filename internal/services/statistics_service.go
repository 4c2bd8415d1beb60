package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/cache"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

const (
	DefaultPatternWindow = time.Hour
	topAttackTypeLimit   = 5
)

// AlertStatistics summarises a tenant's unresolved alerts.
type AlertStatistics struct {
	TotalAlerts      int                       `json:"total_alerts"`
	AlertsBySeverity map[models.Severity]int   `json:"alerts_by_severity"`
	AttackTypes      map[models.AttackType]int `json:"attack_types"`
	LastAlertTime    *time.Time                `json:"last_alert_time"`
}

type AttackTypeCount struct {
	Type  models.AttackType `json:"type"`
	Count int               `json:"count"`
}

// TrafficPatterns describes traffic inside a trailing window.
type TrafficPatterns struct {
	WindowSeconds    int64             `json:"window_seconds"`
	NormalTraffic    int64             `json:"normal_traffic"`
	AnomalousTraffic int64             `json:"anomalous_traffic"`
	AnomalyRate      float64           `json:"anomaly_rate"`
	TopAttackTypes   []AttackTypeCount `json:"top_attack_types"`
}

type StatisticsService struct {
	db     *gorm.DB
	cache  cache.Provider
	ttl    time.Duration
	prefix string
	now    func() time.Time

	// generations is bumped on every invalidation so a read that raced a write
	// never lands in the cache.
	genMu       sync.Mutex
	generations map[uint]uint64
}

// NewStatisticsService builds the aggregator. A nil provider disables caching.
func NewStatisticsService(db *gorm.DB, provider cache.Provider, ttl time.Duration, prefix string) *StatisticsService {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if prefix == "" {
		prefix = "flowguard"
	}
	return &StatisticsService{
		db:          db,
		cache:       provider,
		ttl:         ttl,
		prefix:      prefix,
		now:         func() time.Time { return time.Now().UTC() },
		generations: make(map[uint]uint64),
	}
}

func (s *StatisticsService) statsKey(tenantID uint) string {
	return fmt.Sprintf("%s:stats:%d", s.prefix, tenantID)
}

// Invalidate drops the cached statistics for a tenant. Cache errors are logged only.
func (s *StatisticsService) Invalidate(ctx context.Context, tenantID uint) {
	s.genMu.Lock()
	s.generations[tenantID]++
	s.genMu.Unlock()
	if err := s.cache.Del(ctx, s.statsKey(tenantID)); err != nil {
		logger.WithTenant(tenantID).WithError(err).Warn("failed to invalidate statistics cache")
	}
}

// GenerateStatistics aggregates the tenant's unresolved alerts. Every severity
// key is present, zero when absent.
func (s *StatisticsService) GenerateStatistics(ctx context.Context, tenantID uint) (*AlertStatistics, error) {
	key := s.statsKey(tenantID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var cached AlertStatistics
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.WithTenant(tenantID).WithError(err).Debug("statistics cache read failed")
	}

	gen := s.generation(tenantID)
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Select("severity", "attack_type", "detected_at").
		Where("tenant_id = ? AND resolved = ?", tenantID, false).
		Order("detected_at desc, id desc").
		Find(&alerts).Error
	if err != nil {
		return nil, persistErr("load unresolved alerts", err)
	}

	stats := summarize(alerts)
	s.store(ctx, tenantID, gen, stats)
	return stats, nil
}

func (s *StatisticsService) generation(tenantID uint) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[tenantID]
}

// store caches stats read at generation gen. A snapshot that was overtaken by
// an invalidation is dropped, and removed again if the invalidation landed
// while it was being written.
func (s *StatisticsService) store(ctx context.Context, tenantID uint, gen uint64, stats *AlertStatistics) {
	if s.generation(tenantID) != gen {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	key := s.statsKey(tenantID)
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		logger.WithTenant(tenantID).WithError(err).Debug("statistics cache write failed")
		return
	}
	if s.generation(tenantID) != gen {
		if err := s.cache.Del(ctx, key); err != nil {
			logger.WithTenant(tenantID).WithError(err).Warn("failed to drop stale statistics")
		}
	}
}

// summarize expects alerts ordered newest first.
func summarize(alerts []models.Alert) *AlertStatistics {
	stats := &AlertStatistics{
		TotalAlerts:      len(alerts),
		AlertsBySeverity: make(map[models.Severity]int, len(models.Severities)),
		AttackTypes:      make(map[models.AttackType]int),
	}
	for _, sev := range models.Severities {
		stats.AlertsBySeverity[sev] = 0
	}
	for _, a := range alerts {
		if a.Severity.Valid() {
			stats.AlertsBySeverity[a.Severity]++
		}
		stats.AttackTypes[a.AttackType]++
	}
	if len(alerts) > 0 {
		last := alerts[0].DetectedAt
		stats.LastAlertTime = &last
	}
	return stats
}

// AnalyzeTrafficPatterns splits traffic logs in the trailing window by verdict
// and ranks the attack types of alerts detected in the same window.
func (s *StatisticsService) AnalyzeTrafficPatterns(ctx context.Context, tenantID uint, window time.Duration) (*TrafficPatterns, error) {
	if window <= 0 {
		window = DefaultPatternWindow
	}
	since := s.now().Add(-window)
	db := s.db.WithContext(ctx)

	var normal, anomalous int64
	if err := db.Model(&models.TrafficLog{}).
		Where("tenant_id = ? AND timestamp >= ? AND prediction = ?", tenantID, since, models.PredictionNormal).
		Count(&normal).Error; err != nil {
		return nil, persistErr("count normal traffic", err)
	}
	if err := db.Model(&models.TrafficLog{}).
		Where("tenant_id = ? AND timestamp >= ? AND prediction = ?", tenantID, since, models.PredictionAnomaly).
		Count(&anomalous).Error; err != nil {
		return nil, persistErr("count anomalous traffic", err)
	}

	var types []models.AttackType
	if err := db.Model(&models.Alert{}).
		Where("tenant_id = ? AND detected_at >= ?", tenantID, since).
		Order("detected_at asc, id asc").
		Pluck("attack_type", &types).Error; err != nil {
		return nil, persistErr("load windowed alerts", err)
	}

	p := &TrafficPatterns{
		WindowSeconds:    int64(window / time.Second),
		NormalTraffic:    normal,
		AnomalousTraffic: anomalous,
		TopAttackTypes:   topAttackTypes(types, topAttackTypeLimit),
	}
	if total := normal + anomalous; total > 0 {
		p.AnomalyRate = float64(anomalous) / float64(total)
	}
	return p, nil
}

// topAttackTypes counts types in first-seen order, then stable-sorts by count
// descending, so ties keep the earliest detection first.
func topAttackTypes(types []models.AttackType, n int) []AttackTypeCount {
	out := []AttackTypeCount{}
	index := make(map[models.AttackType]int)
	for _, t := range types {
		if i, ok := index[t]; ok {
			out[i].Count++
			continue
		}
		index[t] = len(out)
		out = append(out, AttackTypeCount{Type: t, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
