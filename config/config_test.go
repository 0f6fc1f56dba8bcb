package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.True(t, cfg.Correction.Enabled)
	assert.Equal(t, 3, cfg.Correction.MaxRetryAttempts)
	assert.Equal(t, 0.6, cfg.Correction.ConfidenceThreshold)
	assert.Equal(t, 1*time.Second, cfg.Correction.RetryDelayBase)
	assert.Equal(t, 2.0, cfg.Correction.RetryDelayMultiplier)
	assert.Equal(t, 30*time.Second, cfg.Correction.MaxRetryDelay)
	assert.Equal(t, 10, cfg.Correction.HistoryLimit)
	for _, strategy := range AllStrategies() {
		assert.True(t, cfg.Correction.EnabledStrategies[strategy], strategy)
	}

	assert.True(t, cfg.Recovery.Enabled)
	assert.Equal(t, 3, cfg.Recovery.MaxRecoveryAttempts)
	assert.Equal(t, 3, cfg.Recovery.EscalationThreshold)
	assert.Equal(t, 1*time.Second, cfg.Recovery.RetryInterval)
	assert.Equal(t, time.Duration(0), cfg.Recovery.RecoveryTimeout)

	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.CircuitBreaker.MonitorInterval)
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("CORRECTION_ENABLED", "false")
	t.Setenv("CORRECTION_MAX_RETRY_ATTEMPTS", "7")
	t.Setenv("CORRECTION_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("CORRECTION_RETRY_DELAY_BASE", "500ms")
	t.Setenv("RECOVERY_MAX_ATTEMPTS", "4")
	t.Setenv("RECOVERY_TIMEOUT", "45s")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("RECOVERY_LOG_DIR", "/var/log/recovery")

	cfg, err := LoadConfigWithEnv()
	require.NoError(t, err)

	assert.False(t, cfg.Correction.Enabled)
	assert.Equal(t, 7, cfg.Correction.MaxRetryAttempts)
	assert.Equal(t, 0.85, cfg.Correction.ConfidenceThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Correction.RetryDelayBase)
	assert.Equal(t, 4, cfg.Recovery.MaxRecoveryAttempts)
	assert.Equal(t, 45*time.Second, cfg.Recovery.RecoveryTimeout)
	assert.Equal(t, 9, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, "/var/log/recovery", cfg.LogDir)
}

func TestLoadConfigWithEnvInvalidValue(t *testing.T) {
	t.Setenv("CORRECTION_MAX_RETRY_ATTEMPTS", "not-a-number")

	_, err := LoadConfigWithEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORRECTION_MAX_RETRY_ATTEMPTS")
}

func TestEnabledStrategiesAllowList(t *testing.T) {
	t.Setenv("CORRECTION_ENABLED_STRATEGIES", "type_mismatch, json_string_conversion")

	cfg, err := LoadConfigWithEnv()
	require.NoError(t, err)

	assert.True(t, cfg.Correction.EnabledStrategies[StrategyTypeMismatch])
	assert.True(t, cfg.Correction.EnabledStrategies[StrategyJSONStringConversion])
	assert.False(t, cfg.Correction.EnabledStrategies[StrategyMissingRequired])
	assert.False(t, cfg.Correction.EnabledStrategies[StrategyWrongParameterNames])
	assert.False(t, cfg.Correction.EnabledStrategies[StrategyPatternBased])
}

func TestEnabledStrategiesRejectsUnknown(t *testing.T) {
	t.Setenv("CORRECTION_ENABLED_STRATEGIES", "type_mismatch,made_up_strategy")

	_, err := LoadConfigWithEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "made_up_strategy")
}

func TestLoadStrategyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies_override.yaml")
	yaml := "strategies:\n  pattern_based: false\n  type_mismatch: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg := GetDefaultConfig()
	require.NoError(t, cfg.LoadStrategyOverrides(path))

	assert.False(t, cfg.Correction.EnabledStrategies[StrategyPatternBased])
	assert.True(t, cfg.Correction.EnabledStrategies[StrategyTypeMismatch])
	assert.True(t, cfg.Correction.EnabledStrategies[StrategyMissingRequired]) // untouched
}

func TestLoadStrategyOverridesMissingFileIgnored(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, cfg.LoadStrategyOverrides(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestLoadStrategyOverridesUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies_override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategies:\n  bogus: true\n"), 0o644))

	cfg := GetDefaultConfig()
	err := cfg.LoadStrategyOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestCorrectionUpdateApply(t *testing.T) {
	cfg := GetDefaultConfig().Correction

	updated := CorrectionUpdate{
		MaxRetryAttempts:  Int(5),
		MaxRetryDelay:     Dur(10 * time.Second),
		EnabledStrategies: map[string]bool{StrategyPatternBased: false},
	}.Apply(cfg)

	assert.Equal(t, 5, updated.MaxRetryAttempts)
	assert.Equal(t, 10*time.Second, updated.MaxRetryDelay)
	assert.False(t, updated.EnabledStrategies[StrategyPatternBased])
	assert.True(t, updated.EnabledStrategies[StrategyTypeMismatch])

	// nil fields leave values alone, and the original map is not mutated
	assert.Equal(t, 0.6, updated.ConfidenceThreshold)
	assert.True(t, cfg.EnabledStrategies[StrategyPatternBased])
}

func TestRecoveryUpdateApply(t *testing.T) {
	cfg := GetDefaultConfig().Recovery

	updated := RecoveryUpdate{
		Enabled:             Bool(false),
		EscalationThreshold: Int(6),
		RecoveryTimeout:     Dur(time.Minute),
	}.Apply(cfg)

	assert.False(t, updated.Enabled)
	assert.Equal(t, 6, updated.EscalationThreshold)
	assert.Equal(t, time.Minute, updated.RecoveryTimeout)
	assert.Equal(t, 3, updated.MaxRecoveryAttempts)
}
