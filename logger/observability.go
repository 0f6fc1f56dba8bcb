package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ObservabilityLogger provides structured logging using logrus for Loki ingestion
type ObservabilityLogger struct {
	logger *logrus.Logger
	file   *os.File
}

// Component constants for consistent labeling
const (
	ComponentCorrectionEngine = "correction_engine"
	ComponentStrategyRegistry = "strategy_registry"
	ComponentCircuitBreaker   = "circuit_breaker"
	ComponentRecoveryWorkflow = "recovery_workflow"
	ComponentPatternStats     = "pattern_stats"
	ComponentEventBus         = "event_bus"
	ComponentConfig           = "configuration"
)

// Category constants for log classification
const (
	CategoryCorrection = "correction"
	CategoryRecovery   = "recovery"
	CategoryEscalation = "escalation"
	CategoryHealth     = "health"
	CategorySuccess    = "success"
	CategoryWarning    = "warning"
	CategoryError      = "error"
	CategoryLearning   = "learning"
	CategoryDebug      = "debug"
	CategoryBlocked    = "blocked"
)

// NewObservabilityLogger creates a new structured logger writing JSONL to
// logDir for log-shipper ingestion
func NewObservabilityLogger(logDir string) (*ObservabilityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	logPath := filepath.Join(logDir, "agent-recovery.jsonl")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	ol := newWithOutput(file)
	ol.file = file
	return ol, nil
}

// NewDiscardLogger returns a logger that drops everything. Used as the
// default when callers do not supply their own.
func NewDiscardLogger() *ObservabilityLogger {
	return newWithOutput(io.Discard)
}

func newWithOutput(out io.Writer) *ObservabilityLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetLevel(logrus.InfoLevel)
	logger = logger.WithField("service", "agent-recovery").Logger

	return &ObservabilityLogger{logger: logger}
}

// SetLevel adjusts the minimum level emitted
func (o *ObservabilityLogger) SetLevel(level logrus.Level) {
	o.logger.SetLevel(level)
}

// Close closes the log file
func (o *ObservabilityLogger) Close() error {
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}

// createEntry creates a logrus entry with standard fields
func (o *ObservabilityLogger) createEntry(component, category, requestID string, fields map[string]interface{}) *logrus.Entry {
	entry := o.logger.WithFields(logrus.Fields{
		"component": component,
		"category":  category,
	})

	if requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}

	if fields != nil {
		entry = entry.WithFields(fields)
	}

	return entry
}

// Debug logs a debug message
func (o *ObservabilityLogger) Debug(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Debug(message)
}

// Info logs an info message
func (o *ObservabilityLogger) Info(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Info(message)
}

// Warn logs a warning message
func (o *ObservabilityLogger) Warn(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Warn(message)
}

// Error logs an error message
func (o *ObservabilityLogger) Error(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Error(message)
}
