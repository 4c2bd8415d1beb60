package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/models"
)

const sampleReply = `Here is the analysis.

## Summary
A volumetric flood against 10.0.0.5.

## Risk Assessment
High. Service availability is at risk.

## Recommended Actions
1. Rate limit 203.0.113.7 at the edge
2) Enable SYN cookies
- not numbered
3. Notify the upstream provider

## Prevention Strategies
1. Deploy a scrubbing service

## Detailed Analysis
The flow moved 1.1 MB in two seconds.
`

func TestParseAnalysis(t *testing.T) {
	a := ParseAnalysis(sampleReply)
	assert.Equal(t, "A volumetric flood against 10.0.0.5.", a.Summary)
	assert.Equal(t, "High. Service availability is at risk.", a.RiskAssessment)
	assert.Equal(t, []string{"Rate limit 203.0.113.7 at the edge", "Enable SYN cookies", "Notify the upstream provider"}, a.RecommendedActions)
	assert.Equal(t, []string{"Deploy a scrubbing service"}, a.PreventionStrategies)
	assert.Equal(t, "The flow moved 1.1 MB in two seconds.", a.DetailedAnalysis)
}

func TestParseAnalysis_MissingSections(t *testing.T) {
	a := ParseAnalysis("no headings at all")
	assert.Empty(t, a.Summary)
	assert.NotNil(t, a.RecommendedActions)
	assert.Empty(t, a.RecommendedActions)
}

type stubGenerator struct {
	reply string
	err   error
	got   []Message
}

func (s *stubGenerator) Generate(_ context.Context, m []Message) (string, error) {
	s.got = m
	return s.reply, s.err
}

func TestService_AnalyzeAttack(t *testing.T) {
	gen := &stubGenerator{reply: sampleReply}
	svc := NewService(gen)

	alert := &models.Alert{AttackType: models.AttackDDoS, SourceIP: "203.0.113.7", DestinationIP: "10.0.0.5", Protocol: "TCP", Severity: models.SeverityCritical, Confidence: 0.95}
	a, err := svc.AnalyzeAttack(context.Background(), RequestFromAlert(alert))
	require.NoError(t, err)
	assert.Len(t, a.RecommendedActions, 3)

	require.Len(t, gen.got, 2)
	assert.Equal(t, "system", gen.got[0].Role)
	assert.Contains(t, gen.got[1].Content, "- Attack type: DDoS Attack")
	assert.Contains(t, gen.got[1].Content, "- Confidence: 95.00%")
}

func TestService_AnalyzeAttackErrors(t *testing.T) {
	_, err := NewService(nil).AnalyzeAttack(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	upstream := errors.New("quota exceeded")
	_, err = NewService(&stubGenerator{err: upstream}).AnalyzeAttack(context.Background(), Request{})
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.ErrorIs(t, err, upstream)
}

func TestChatGenerator(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}}, req.Messages)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"## Summary\nok"}}]}`))
	}))
	defer ts.Close()

	gen := NewChatGenerator(ts.URL+"/v1/", "secret", "gpt-4o-mini", time.Second)
	out, err := gen.Generate(context.Background(), []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nok", out)
}

func TestChatGenerator_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer ts.Close()

	_, err := NewChatGenerator(ts.URL, "k", "m", time.Second).Generate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 429")
}

func TestChatGenerator_EmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer ts.Close()

	_, err := NewChatGenerator(ts.URL, "k", "m", time.Second).Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.EqualError(t, err, "chat response has no content")
}
