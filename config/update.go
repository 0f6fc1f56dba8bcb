package config

import "time"

// CorrectionUpdate is a partial update for CorrectionConfig. Nil fields
// leave the current value untouched.
type CorrectionUpdate struct {
	Enabled                        *bool
	MaxRetryAttempts               *int
	ConfidenceThreshold            *float64
	RetryDelayBase                 *time.Duration
	RetryDelayMultiplier           *float64
	MaxRetryDelay                  *time.Duration
	EnabledStrategies              map[string]bool // merged key-by-key
	LearnFromSuccessfulCorrections *bool
	AuditAllAttempts               *bool
}

// Apply merges the update into cfg and returns the result
func (u CorrectionUpdate) Apply(cfg CorrectionConfig) CorrectionConfig {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.MaxRetryAttempts != nil {
		cfg.MaxRetryAttempts = *u.MaxRetryAttempts
	}
	if u.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *u.ConfidenceThreshold
	}
	if u.RetryDelayBase != nil {
		cfg.RetryDelayBase = *u.RetryDelayBase
	}
	if u.RetryDelayMultiplier != nil {
		cfg.RetryDelayMultiplier = *u.RetryDelayMultiplier
	}
	if u.MaxRetryDelay != nil {
		cfg.MaxRetryDelay = *u.MaxRetryDelay
	}
	if u.EnabledStrategies != nil {
		merged := make(map[string]bool, len(cfg.EnabledStrategies))
		for k, v := range cfg.EnabledStrategies {
			merged[k] = v
		}
		for k, v := range u.EnabledStrategies {
			merged[k] = v
		}
		cfg.EnabledStrategies = merged
	}
	if u.LearnFromSuccessfulCorrections != nil {
		cfg.LearnFromSuccessfulCorrections = *u.LearnFromSuccessfulCorrections
	}
	if u.AuditAllAttempts != nil {
		cfg.AuditAllAttempts = *u.AuditAllAttempts
	}
	return cfg
}

// RecoveryUpdate is a partial update for RecoveryConfig
type RecoveryUpdate struct {
	Enabled                *bool
	MaxRecoveryAttempts    *int
	EscalationThreshold    *int
	PatternLearningEnabled *bool
	RetryInterval          *time.Duration
	RecoveryTimeout        *time.Duration
}

// Apply merges the update into cfg and returns the result
func (u RecoveryUpdate) Apply(cfg RecoveryConfig) RecoveryConfig {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.MaxRecoveryAttempts != nil {
		cfg.MaxRecoveryAttempts = *u.MaxRecoveryAttempts
	}
	if u.EscalationThreshold != nil {
		cfg.EscalationThreshold = *u.EscalationThreshold
	}
	if u.PatternLearningEnabled != nil {
		cfg.PatternLearningEnabled = *u.PatternLearningEnabled
	}
	if u.RetryInterval != nil {
		cfg.RetryInterval = *u.RetryInterval
	}
	if u.RecoveryTimeout != nil {
		cfg.RecoveryTimeout = *u.RecoveryTimeout
	}
	return cfg
}

// Bool, Int, Float and Dur are pointer helpers for building updates
func Bool(v bool) *bool                  { return &v }
func Int(v int) *int                     { return &v }
func Float(v float64) *float64           { return &v }
func Dur(v time.Duration) *time.Duration { return &v }
