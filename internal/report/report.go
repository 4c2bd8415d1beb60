// Package report hands detected attacks to an external text generator and
// parses the advisory write-up it returns. Nothing here touches alert state.
package report

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

// ErrNotConfigured is returned when no generator endpoint is set.
var ErrNotConfigured = errors.New("report generator not configured")

// Request is the structured description of one attack.
type Request struct {
	AttackType    models.AttackType `json:"attack_type"`
	SourceIP      string            `json:"source_ip"`
	DestinationIP string            `json:"destination_ip"`
	Protocol      string            `json:"protocol"`
	Severity      models.Severity   `json:"severity"`
	Confidence    float64           `json:"confidence"`
	Description   string            `json:"description"`
}

func RequestFromAlert(a *models.Alert) Request {
	return Request{
		AttackType:    a.AttackType,
		SourceIP:      a.SourceIP,
		DestinationIP: a.DestinationIP,
		Protocol:      a.Protocol,
		Severity:      a.Severity,
		Confidence:    a.Confidence,
		Description:   a.Description,
	}
}

// Analysis is the parsed write-up.
type Analysis struct {
	Summary              string   `json:"summary"`
	RiskAssessment       string   `json:"risk_assessment"`
	RecommendedActions   []string `json:"recommended_actions"`
	PreventionStrategies []string `json:"prevention_strategies"`
	DetailedAnalysis     string   `json:"detailed_analysis"`
}

// Message is one chat turn sent to the generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator turns a conversation into free-form text.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// GenerationError marks a failure of the upstream generator.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("report generation failed: %v", e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }

const systemPrompt = "You are a cybersecurity expert analyzing network attacks. Answer using exactly the requested markdown sections."

// BuildPrompt renders the user turn for a request.
func BuildPrompt(r Request) string {
	var b strings.Builder
	b.WriteString("Analyze the following network attack and propose a response.\n\n")
	b.WriteString("Attack details:\n")
	fmt.Fprintf(&b, "- Attack type: %s\n", r.AttackType)
	fmt.Fprintf(&b, "- Source IP: %s\n", r.SourceIP)
	fmt.Fprintf(&b, "- Destination IP: %s\n", r.DestinationIP)
	fmt.Fprintf(&b, "- Protocol: %s\n", r.Protocol)
	fmt.Fprintf(&b, "- Severity: %s\n", r.Severity)
	fmt.Fprintf(&b, "- Confidence: %.2f%%\n", r.Confidence*100)
	fmt.Fprintf(&b, "- Description: %s\n\n", r.Description)
	b.WriteString("Reply with these sections:\n\n")
	b.WriteString("## Summary\n[short summary of the attack]\n\n")
	b.WriteString("## Risk Assessment\n[risk level and potential impact]\n\n")
	b.WriteString("## Recommended Actions\n1. [first action]\n2. [second action]\n3. [third action]\n\n")
	b.WriteString("## Prevention Strategies\n1. [first measure]\n2. [second measure]\n3. [third measure]\n\n")
	b.WriteString("## Detailed Analysis\n[technical details and response plan]\n")
	return b.String()
}

// Service produces advisory analyses for alerts.
type Service struct {
	gen Generator
}

// NewService returns a Service; a nil generator makes every call fail with ErrNotConfigured.
func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

func (s *Service) AnalyzeAttack(ctx context.Context, r Request) (*Analysis, error) {
	if s.gen == nil {
		return nil, ErrNotConfigured
	}
	text, err := s.gen.Generate(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(r)},
	})
	if err != nil {
		logger.WithFields(logrus.Fields{"attack_type": r.AttackType}).WithError(err).Warn("attack analysis failed")
		return nil, &GenerationError{Err: err}
	}
	return ParseAnalysis(text), nil
}

var (
	headingRe  = regexp.MustCompile(`(?m)^##[ \t]+(.+?)[ \t]*$`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s*`)
)

// ParseAnalysis splits generator output on "## " headings. Unknown headings
// are ignored and missing sections stay empty.
func ParseAnalysis(text string) *Analysis {
	a := &Analysis{RecommendedActions: []string{}, PreventionStrategies: []string{}}
	locs := headingRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		title := strings.ToLower(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])

		switch {
		case strings.HasPrefix(title, "summary"):
			a.Summary = body
		case strings.HasPrefix(title, "risk"):
			a.RiskAssessment = body
		case strings.HasPrefix(title, "recommended"):
			a.RecommendedActions = numberedItems(body)
		case strings.HasPrefix(title, "prevention"):
			a.PreventionStrategies = numberedItems(body)
		case strings.HasPrefix(title, "detailed"):
			a.DetailedAnalysis = body
		}
	}
	return a
}

func numberedItems(body string) []string {
	items := []string{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !numberedRe.MatchString(line) {
			continue
		}
		if item := strings.TrimSpace(numberedRe.ReplaceAllString(line, "")); item != "" {
			items = append(items, item)
		}
	}
	return items
}
