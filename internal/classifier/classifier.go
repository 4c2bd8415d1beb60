// Package classifier maps an anomalous flow and its confidence onto an
// attack type and severity. It is pure and holds no state.
package classifier

import (
	"math"
	"strings"

	"github.com/flowguard/flowguard/internal/models"
)

const (
	criticalAbove = 0.90
	highAbove     = 0.75
	mediumAbove   = 0.60

	ddosMaxDuration      = 10
	ddosMinTotalBytes    = 1_000_000
	bruteForceMaxSeconds = 5
	bruteForceMaxSent    = 1000
	dosMinTotalBytes     = 500_000
)

// Flow is the typed subset of a flow record the rules look at.
type Flow struct {
	SourceIP        string
	DestinationIP   string
	Protocol        string
	DurationSeconds float64
	BytesSent       int64
	BytesReceived   int64
}

// FromRecord extracts the classifier view of a flow record.
func FromRecord(r models.FlowRecord) Flow {
	return Flow{
		SourceIP:        r.SourceIP,
		DestinationIP:   r.DestinationIP,
		Protocol:        r.Protocol,
		DurationSeconds: r.Duration,
		BytesSent:       r.BytesSent,
		BytesReceived:   r.BytesReceived,
	}
}

func (f Flow) totalBytes() int64 { return f.BytesSent + f.BytesReceived }

type Classification struct {
	AttackType  models.AttackType `json:"attack_type"`
	Severity    models.Severity   `json:"severity"`
	Description string            `json:"description"`
}

type rule struct {
	attack models.AttackType
	match  func(Flow) bool
}

// Evaluated in order; the first match wins.
var rules = []rule{
	{models.AttackDDoS, func(f Flow) bool {
		return f.DurationSeconds < ddosMaxDuration && f.totalBytes() > ddosMinTotalBytes
	}},
	// Matches any dotted-quad destination, so it shadows every later rule for IPv4 traffic.
	{models.AttackPortScanning, func(f Flow) bool {
		return strings.Count(f.DestinationIP, ".") == 3
	}},
	{models.AttackSQLInjection, func(f Flow) bool {
		return f.Protocol == "TCP" && f.BytesSent > 2*f.BytesReceived
	}},
	{models.AttackBruteForce, func(f Flow) bool {
		return f.DurationSeconds < bruteForceMaxSeconds && f.BytesSent < bruteForceMaxSent
	}},
	{models.AttackDoS, func(f Flow) bool {
		return f.totalBytes() > dosMinTotalBytes
	}},
}

var descriptions = map[models.AttackType]string{
	models.AttackDDoS:         "Large volume of traffic in a short time window indicates a distributed denial of service attempt.",
	models.AttackPortScanning: "Connection pattern against the destination host indicates a port scan.",
	models.AttackSQLInjection: "Request payloads far larger than responses indicate a possible SQL injection attempt.",
	models.AttackBruteForce:   "Short, small requests repeated against the target indicate a brute force login attempt.",
	models.AttackDoS:          "Sustained high traffic volume indicates a denial of service attempt.",
	models.AttackUnknown:      "Anomalous traffic that does not match a known attack pattern.",
}

// Describe returns the fixed description for an attack type.
func Describe(at models.AttackType) string {
	if d, ok := descriptions[at]; ok {
		return d
	}
	return descriptions[models.AttackUnknown]
}

// SeverityFor buckets a confidence score. Boundaries are exclusive, so exactly
// 0.90 is HIGH rather than CRITICAL. NaN falls through to LOW.
func SeverityFor(confidence float64) models.Severity {
	switch {
	case math.IsNaN(confidence):
		return models.SeverityLow
	case confidence > criticalAbove:
		return models.SeverityCritical
	case confidence > highAbove:
		return models.SeverityHigh
	case confidence > mediumAbove:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Classify assigns an attack type and severity to an anomalous flow.
func Classify(f Flow, confidence float64) Classification {
	attack := models.AttackUnknown
	for _, r := range rules {
		if r.match(f) {
			attack = r.attack
			break
		}
	}
	return Classification{
		AttackType:  attack,
		Severity:    SeverityFor(confidence),
		Description: Describe(attack),
	}
}
