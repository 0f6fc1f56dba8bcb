package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Strategy type names accepted in EnabledStrategies. Kept here as plain
// strings so configuration stays decoupled from the correction package.
const (
	StrategyMissingRequired      = "missing_required"
	StrategyWrongParameterNames  = "wrong_parameter_names"
	StrategyTypeMismatch         = "type_mismatch"
	StrategyPatternBased         = "pattern_based"
	StrategyJSONStringConversion = "json_string_conversion"
)

// AllStrategies lists every known strategy type in registry order
func AllStrategies() []string {
	return []string{
		StrategyMissingRequired,
		StrategyWrongParameterNames,
		StrategyTypeMismatch,
		StrategyPatternBased,
		StrategyJSONStringConversion,
	}
}

// CorrectionConfig controls the auto-correction engine
type CorrectionConfig struct {
	Enabled                        bool            `json:"enabled"`
	MaxRetryAttempts               int             `json:"max_retry_attempts"`
	ConfidenceThreshold            float64         `json:"confidence_threshold"`
	RetryDelayBase                 time.Duration   `json:"retry_delay_base"`
	RetryDelayMultiplier           float64         `json:"retry_delay_multiplier"`
	MaxRetryDelay                  time.Duration   `json:"max_retry_delay"`
	EnabledStrategies              map[string]bool `json:"enabled_strategies"`
	LearnFromSuccessfulCorrections bool            `json:"learn_from_successful_corrections"`
	AuditAllAttempts               bool            `json:"audit_all_attempts"`
	HistoryLimit                   int             `json:"history_limit"` // attempts kept per key
}

// RecoveryConfig controls the recovery workflow engine
type RecoveryConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxRecoveryAttempts    int           `json:"max_recovery_attempts"`
	EscalationThreshold    int           `json:"escalation_threshold"`
	PatternLearningEnabled bool          `json:"pattern_learning_enabled"`
	RetryInterval          time.Duration `json:"retry_interval"`         // linear per-attempt wait base
	RecoveryTimeout        time.Duration `json:"recovery_timeout"`       // per-execution deadline, 0 disables
	WorkflowHistoryLimit   int           `json:"workflow_history_limit"` // workflows kept per (agent, tool)
}

// CircuitBreakerConfig controls circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"` // failures before opening circuit
	Timeout          time.Duration `json:"timeout"`           // how long the circuit stays open
	MonitorInterval  time.Duration `json:"monitor_interval"`  // log-only state snapshot cadence
}

// Config is the full configuration for the recovery core
type Config struct {
	Correction     CorrectionConfig     `json:"correction"`
	Recovery       RecoveryConfig       `json:"recovery"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	LogDir         string               `json:"log_dir"`
}

// GetDefaultConfig returns the default configuration
func GetDefaultConfig() *Config {
	enabled := make(map[string]bool, 5)
	for _, s := range AllStrategies() {
		enabled[s] = true
	}

	return &Config{
		Correction: CorrectionConfig{
			Enabled:                        true,
			MaxRetryAttempts:               3,
			ConfidenceThreshold:            0.6,
			RetryDelayBase:                 1 * time.Second,
			RetryDelayMultiplier:           2.0,
			MaxRetryDelay:                  30 * time.Second,
			EnabledStrategies:              enabled,
			LearnFromSuccessfulCorrections: true,
			AuditAllAttempts:               true,
			HistoryLimit:                   10,
		},
		Recovery: RecoveryConfig{
			Enabled:                true,
			MaxRecoveryAttempts:    3,
			EscalationThreshold:    3,
			PatternLearningEnabled: true,
			RetryInterval:          1 * time.Second,
			RecoveryTimeout:        0, // disabled unless configured
			WorkflowHistoryLimit:   50,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			MonitorInterval:  5 * time.Minute,
		},
		LogDir: "logs",
	}
}

// LoadConfigWithEnv loads configuration from defaults, then a .env file (if
// present), then process environment variables. Env beats .env beats default.
func LoadConfigWithEnv() (*Config, error) {
	cfg := GetDefaultConfig()

	// .env is optional for a library; missing file is not an error
	if err := godotenv.Load(); err == nil {
		log.Printf("🔧 Loaded configuration overrides from .env")
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Strategy enable/disable overrides from yaml, when the file exists
	if err := cfg.LoadStrategyOverrides("strategies_override.yaml"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error

	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			parsed, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("%s must be a boolean, got %q", key, v)
				return
			}
			*dst = parsed
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			parsed, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s must be an integer, got %q", key, v)
				return
			}
			*dst = parsed
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			parsed, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("%s must be a number, got %q", key, v)
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && err == nil {
			parsed, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s must be a duration (e.g. 30s), got %q", key, v)
				return
			}
			*dst = parsed
		}
	}

	setBool("CORRECTION_ENABLED", &cfg.Correction.Enabled)
	setInt("CORRECTION_MAX_RETRY_ATTEMPTS", &cfg.Correction.MaxRetryAttempts)
	setFloat("CORRECTION_CONFIDENCE_THRESHOLD", &cfg.Correction.ConfidenceThreshold)
	setDuration("CORRECTION_RETRY_DELAY_BASE", &cfg.Correction.RetryDelayBase)
	setFloat("CORRECTION_RETRY_DELAY_MULTIPLIER", &cfg.Correction.RetryDelayMultiplier)
	setDuration("CORRECTION_MAX_RETRY_DELAY", &cfg.Correction.MaxRetryDelay)
	setBool("CORRECTION_LEARN_FROM_SUCCESS", &cfg.Correction.LearnFromSuccessfulCorrections)
	setBool("CORRECTION_AUDIT_ALL_ATTEMPTS", &cfg.Correction.AuditAllAttempts)

	setBool("RECOVERY_ENABLED", &cfg.Recovery.Enabled)
	setInt("RECOVERY_MAX_ATTEMPTS", &cfg.Recovery.MaxRecoveryAttempts)
	setInt("RECOVERY_ESCALATION_THRESHOLD", &cfg.Recovery.EscalationThreshold)
	setBool("RECOVERY_PATTERN_LEARNING", &cfg.Recovery.PatternLearningEnabled)
	setDuration("RECOVERY_RETRY_INTERVAL", &cfg.Recovery.RetryInterval)
	setDuration("RECOVERY_TIMEOUT", &cfg.Recovery.RecoveryTimeout)

	setBool("CIRCUIT_BREAKER_ENABLED", &cfg.CircuitBreaker.Enabled)
	setInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", &cfg.CircuitBreaker.FailureThreshold)
	setDuration("CIRCUIT_BREAKER_TIMEOUT", &cfg.CircuitBreaker.Timeout)
	setDuration("CIRCUIT_BREAKER_MONITOR_INTERVAL", &cfg.CircuitBreaker.MonitorInterval)

	if v, ok := os.LookupEnv("RECOVERY_LOG_DIR"); ok && v != "" {
		cfg.LogDir = v
	}

	// Comma-separated allow-list replaces the full strategy set
	if v, ok := os.LookupEnv("CORRECTION_ENABLED_STRATEGIES"); ok && v != "" && err == nil {
		enabled := make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !isKnownStrategy(name) {
				return fmt.Errorf("CORRECTION_ENABLED_STRATEGIES contains unknown strategy %q", name)
			}
			enabled[name] = true
		}
		for _, s := range AllStrategies() {
			if !enabled[s] {
				enabled[s] = false
			}
		}
		cfg.Correction.EnabledStrategies = enabled
	}

	return err
}

func isKnownStrategy(name string) bool {
	for _, s := range AllStrategies() {
		if s == name {
			return true
		}
	}
	return false
}

// strategyOverrideFile is the on-disk shape of strategies_override.yaml
type strategyOverrideFile struct {
	Strategies map[string]bool `yaml:"strategies"`
}

// LoadStrategyOverrides applies per-strategy enable/disable flags from a
// yaml file. A missing file is ignored; an unknown strategy name is an error.
func (c *Config) LoadStrategyOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading strategy overrides: %w", err)
	}

	var overrides strategyOverrideFile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing strategy overrides: %w", err)
	}

	for name, enabled := range overrides.Strategies {
		if !isKnownStrategy(name) {
			return fmt.Errorf("strategy override for unknown strategy %q", name)
		}
		c.Correction.EnabledStrategies[name] = enabled
		log.Printf("🔧 Strategy override: %s enabled=%v", name, enabled)
	}

	return nil
}
