package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/services"
)

func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return newApp(database.OpenTestDB(t), config.Defaults(), out), out
}

func TestRunSeed(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()

	summary, err := runSeed(ctx, a, 1)
	require.NoError(t, err)
	assert.Equal(t, len(demoFlows), summary.Flows)
	assert.Equal(t, len(demoScores), summary.Alerts)

	active, err := a.registry.GetActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, summary.ModelID, active.ID)

	stats, err := a.stats.GenerateStatistics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, len(demoScores), stats.TotalAlerts)

	// Seeding again keeps the first model active.
	again, err := runSeed(ctx, a, 1)
	require.NoError(t, err)
	active, err = a.registry.GetActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, summary.ModelID, active.ID)
	assert.NotEqual(t, again.ModelID, active.ID)
}

func TestRunAnalyze_DryRunLeavesStoreUntouched(t *testing.T) {
	a, out := testApp(t)
	path := filepath.Join(t.TempDir(), "flows.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"source_ip": "203.0.113.7", "destination_ip": "10.0.0.5", "protocol": "TCP", "duration": 2, "bytes_sent": 900000, "bytes_received": 200000},
		{"source_ip": "192.0.2.1", "destination_ip": "10.0.0.9", "protocol": "UDP"}
	]`), 0o600))

	err := runAnalyze(context.Background(), a, 1, path, analyzeOptions{dryRun: true, probability: 0.95})
	require.NoError(t, err)

	var results []services.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].IsAnomaly)
	assert.Equal(t, "DDoS Attack", string(results[0].AttackType))
	assert.Equal(t, "CRITICAL", string(results[0].Severity))

	stats, err := a.stats.GenerateStatistics(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAlerts)
}

func TestRunAnalyze_Errors(t *testing.T) {
	a, _ := testApp(t)
	dir := t.TempDir()

	err := runAnalyze(context.Background(), a, 1, filepath.Join(dir, "flows.txt"), analyzeOptions{})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"destination_ip": "10.0.0.5"}]`), 0o600))
	err = runAnalyze(context.Background(), a, 1, bad, analyzeOptions{dryRun: true, probability: 0.9})
	assert.ErrorContains(t, err, "source_ip")

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"source_ip": "1.2.3.4", "destination_ip": "10.0.0.5"}]`), 0o600))
	err = runAnalyze(context.Background(), a, 1, good, analyzeOptions{dryRun: true, probability: 1.5})
	assert.Error(t, err)

	err = runAnalyze(context.Background(), a, 1, good, analyzeOptions{})
	assert.ErrorIs(t, err, services.ErrNoActiveModel)
}

func TestRootCmd_RejectsZeroTenant(t *testing.T) {
	t.Setenv("FLOWGUARD_DB_PATH", filepath.Join(t.TempDir(), "cli.db"))
	cmd := newRootCmd()
	cmd.SetArgs([]string{"stats", "--tenant", "0"})
	cmd.SetOut(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.Execute(), "--tenant")
}

func TestRootCmd_Stats(t *testing.T) {
	t.Setenv("FLOWGUARD_DB_PATH", filepath.Join(t.TempDir(), "cli.db"))
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetArgs([]string{"stats", "--tenant", "3"})
	cmd.SetOut(out)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"total_alerts": 0`)
}
