package correction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-recovery/config"
	"agent-recovery/types"
)

func testCorrectionConfig() config.CorrectionConfig {
	return config.GetDefaultConfig().Correction
}

// jsonFixableCall returns arguments that the json_string_conversion
// strategy corrects at confidence 0.95.
func jsonFixableCall() (map[string]interface{}, string) {
	return map[string]interface{}{"options": `{"retries": 2}`}, "options: expected object, got string"
}

func TestAttemptCorrectionDisabled(t *testing.T) {
	cfg := testCorrectionConfig()
	cfg.Enabled = false
	engine := NewEngine(cfg, nil)

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(context.Background(), "agent-1", "chan-1", "configure", params, errMsg, nil)
	assert.ErrorIs(t, err, ErrCorrectionDisabled)
	assert.Nil(t, result)
}

func TestAttemptCorrectionApplies(t *testing.T) {
	engine := NewEngine(testCorrectionConfig(), nil)
	engine.SetJitterSource(func() float64 { return 0 })

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(context.Background(), "agent-1", "chan-1", "configure", params, errMsg, nil)
	require.NoError(t, err)
	require.True(t, result.Corrected)
	assert.Equal(t, TypeJSONStringConversion, result.Strategy)
	assert.Equal(t, 0.95, result.Confidence)
	assert.True(t, result.ShouldRetry)
	assert.NotEmpty(t, result.AttemptID)
	assert.Equal(t, map[string]interface{}{"retries": float64(2)}, result.CorrectedParameters["options"])
	// first attempt, zero jitter: base delay exactly
	assert.Equal(t, 1*time.Second, result.RetryDelay)

	// original parameters must not be mutated
	assert.Equal(t, `{"retries": 2}`, params["options"])
}

func TestAttemptCeilingRefusesBeforeStrategies(t *testing.T) {
	store := &fakePatternStore{}
	cfg := testCorrectionConfig()
	cfg.MaxRetryAttempts = 2
	cfg.EnabledStrategies = map[string]bool{config.StrategyMissingRequired: true}
	engine := NewEngine(cfg, store)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "write_file",
			map[string]interface{}{"path": "/tmp/x"}, "missing required parameter", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.getPatternCalls)

	// ceiling reached: refused without consulting any strategy
	result, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "write_file",
		map[string]interface{}{"path": "/tmp/x"}, "missing required parameter", nil)
	require.NoError(t, err)
	assert.False(t, result.Corrected)
	assert.False(t, result.ShouldRetry)
	assert.Equal(t, 2, store.getPatternCalls)

	// a different key is unaffected
	_, err = engine.AttemptCorrection(ctx, "agent-2", "chan-1", "write_file",
		map[string]interface{}{"path": "/tmp/x"}, "missing required parameter", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, store.getPatternCalls)
}

func TestConfidenceGateRecordsFailedAttempt(t *testing.T) {
	cfg := testCorrectionConfig()
	cfg.ConfidenceThreshold = 0.99
	engine := NewEngine(cfg, nil)

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(context.Background(), "agent-1", "chan-1", "configure", params, errMsg, nil)
	require.NoError(t, err)
	assert.False(t, result.Corrected)

	key := types.CorrectionKey{AgentID: "agent-1", ChannelID: "chan-1", ToolName: "configure"}
	attempts := engine.AttemptsFor(key)
	require.Len(t, attempts, 1)
	assert.Equal(t, TypeJSONStringConversion, attempts[0].Strategy)
	assert.Equal(t, 0.95, attempts[0].Confidence)
	assert.False(t, attempts[0].Successful)
}

func TestNoStrategyApplicableRecordsNone(t *testing.T) {
	engine := NewEngine(testCorrectionConfig(), nil)

	result, err := engine.AttemptCorrection(context.Background(), "agent-1", "chan-1", "ping",
		map[string]interface{}{"host": "example.com"}, "connection refused", nil)
	require.NoError(t, err)
	assert.False(t, result.Corrected)

	key := types.CorrectionKey{AgentID: "agent-1", ChannelID: "chan-1", ToolName: "ping"}
	attempts := engine.AttemptsFor(key)
	require.Len(t, attempts, 1)
	assert.Equal(t, "none", attempts[0].Strategy)
	assert.Equal(t, 0.0, attempts[0].Confidence)
}

func TestCalculateRetryDelay(t *testing.T) {
	cfg := testCorrectionConfig() // base 1s, multiplier 2, max 30s
	engine := NewEngine(cfg, nil)

	t.Run("zero jitter is the raw backoff", func(t *testing.T) {
		engine.SetJitterSource(func() float64 { return 0 })
		assert.Equal(t, 1*time.Second, engine.CalculateRetryDelay(0))
		assert.Equal(t, 2*time.Second, engine.CalculateRetryDelay(1))
		assert.Equal(t, 4*time.Second, engine.CalculateRetryDelay(2))
		// 2^10 seconds exceeds the cap
		assert.Equal(t, 30*time.Second, engine.CalculateRetryDelay(10))
	})

	t.Run("full jitter adds ten percent", func(t *testing.T) {
		engine.SetJitterSource(func() float64 { return 1 })
		assert.Equal(t, 2200*time.Millisecond, engine.CalculateRetryDelay(1))
		assert.Equal(t, 33*time.Second, engine.CalculateRetryDelay(10))
	})
}

func TestReportCorrectionResult(t *testing.T) {
	store := &fakePatternStore{}
	engine := NewEngine(testCorrectionConfig(), store)
	ctx := context.Background()

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "configure", params, errMsg, nil)
	require.NoError(t, err)
	require.True(t, result.Corrected)

	require.NoError(t, engine.ReportCorrectionResult(ctx, result.AttemptID, true, "", 120))

	key := types.CorrectionKey{AgentID: "agent-1", ChannelID: "chan-1", ToolName: "configure"}
	attempts := engine.AttemptsFor(key)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Successful)
	assert.Equal(t, int64(120), attempts[0].RecoveryTimeMs)

	// successful correction feeds the pattern store
	require.Len(t, store.stored, 1)
	assert.Equal(t, "configure", store.stored[0].toolName)
	assert.Equal(t, int64(120), store.stored[0].recoveryMs)
	assert.Equal(t, map[string]interface{}{"retries": float64(2)}, store.stored[0].parameters["options"])
}

func TestReportCorrectionResultFailureDoesNotLearn(t *testing.T) {
	store := &fakePatternStore{}
	engine := NewEngine(testCorrectionConfig(), store)
	ctx := context.Background()

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "configure", params, errMsg, nil)
	require.NoError(t, err)

	require.NoError(t, engine.ReportCorrectionResult(ctx, result.AttemptID, false, "still failing", 80))
	assert.Empty(t, store.stored)
}

func TestReportCorrectionResultUnknownAttempt(t *testing.T) {
	engine := NewEngine(testCorrectionConfig(), nil)
	err := engine.ReportCorrectionResult(context.Background(), "no-such-attempt", true, "", 0)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestHistoryTrimmedToLimit(t *testing.T) {
	cfg := testCorrectionConfig()
	cfg.MaxRetryAttempts = 100
	cfg.HistoryLimit = 10
	engine := NewEngine(cfg, nil)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		params, errMsg := jsonFixableCall()
		_, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "configure", params, errMsg, nil)
		require.NoError(t, err)
	}

	key := types.CorrectionKey{AgentID: "agent-1", ChannelID: "chan-1", ToolName: "configure"}
	assert.Len(t, engine.AttemptsFor(key), 10)
}

func TestGetStatsAndClearHistory(t *testing.T) {
	engine := NewEngine(testCorrectionConfig(), nil)
	ctx := context.Background()

	params, errMsg := jsonFixableCall()
	result, err := engine.AttemptCorrection(ctx, "agent-1", "chan-1", "configure", params, errMsg, nil)
	require.NoError(t, err)
	require.NoError(t, engine.ReportCorrectionResult(ctx, result.AttemptID, true, "", 50))

	_, err = engine.AttemptCorrection(ctx, "agent-1", "chan-1", "ping",
		map[string]interface{}{"host": "example.com"}, "connection refused", nil)
	require.NoError(t, err)

	stats := engine.GetStats()
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 1, stats.SuccessfulAttempts)
	assert.Equal(t, 1, stats.FailedAttempts)
	assert.Equal(t, 0.5, stats.SuccessRate)
	assert.Equal(t, 1, stats.ByStrategy[TypeJSONStringConversion])
	assert.Equal(t, 1, stats.ByStrategy["none"])
	assert.Equal(t, 1, stats.ByTool["configure"])
	assert.InDelta(t, (0.95+0.0)/2, stats.AverageConfidence, 1e-9)

	engine.ClearHistory()
	assert.Equal(t, 0, engine.GetStats().TotalAttempts)
}

func TestUpdateConfig(t *testing.T) {
	engine := NewEngine(testCorrectionConfig(), nil)

	engine.UpdateConfig(config.CorrectionUpdate{
		Enabled:             config.Bool(false),
		ConfidenceThreshold: config.Float(0.8),
		EnabledStrategies:   map[string]bool{config.StrategyPatternBased: false},
	})

	cfg := engine.GetConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.False(t, cfg.EnabledStrategies[config.StrategyPatternBased])
	assert.True(t, cfg.EnabledStrategies[config.StrategyTypeMismatch]) // merged, not replaced
}
