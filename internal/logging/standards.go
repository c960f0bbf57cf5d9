package logging

import (
	"time"

	"github.com/rs/zerolog"
)

// ComponentLogger provides standardized logging patterns for sync and control components
type ComponentLogger struct {
	logger zerolog.Logger
}

// NewComponentLogger creates a new standardized logger for a component
func NewComponentLogger(logger zerolog.Logger, component string) *ComponentLogger {
	return &ComponentLogger{
		logger: logger.With().Str("component", component).Logger(),
	}
}

// Component Lifecycle Logging

// LogComponentStarted logs successful component start
func (cl *ComponentLogger) LogComponentStarted() {
	cl.logger.Info().Msg("component started")
}

// LogComponentStopped logs successful component stop
func (cl *ComponentLogger) LogComponentStopped() {
	cl.logger.Info().Msg("component stopped")
}

// LogComponentReset logs a full state reset
func (cl *ComponentLogger) LogComponentReset() {
	cl.logger.Info().Msg("component reset")
}

// LogComponentDisposed logs resource cleanup
func (cl *ComponentLogger) LogComponentDisposed() {
	cl.logger.Info().Msg("component disposed")
}

// Warning Logging

// LogWarning logs a general warning
func (cl *ComponentLogger) LogWarning(msg string) {
	cl.logger.Warn().Msg(msg)
}

// LogThresholdWarning logs warnings when thresholds are exceeded
func (cl *ComponentLogger) LogThresholdWarning(metric string, current, threshold interface{}, msg string) {
	cl.logger.Warn().
		Str("metric", metric).
		Interface("current_value", current).
		Interface("threshold", threshold).
		Msg(msg)
}

// LogValidationRejected logs input dropped by validation
func (cl *ComponentLogger) LogValidationRejected(err error, validationType string, value interface{}) {
	cl.logger.Warn().Err(err).
		Str("validation_type", validationType).
		Interface("invalid_value", value).
		Msg("validation rejected input")
}

// Error Logging

// LogError logs a general error with context
func (cl *ComponentLogger) LogError(err error, msg string) {
	cl.logger.Error().Err(err).Msg(msg)
}

// Performance and State Logging

// LogLatencyMetrics logs a periodic latency summary
func (cl *ComponentLogger) LogLatencyMetrics(current, average time.Duration, updates int64, sources int) {
	cl.logger.Info().
		Dur("current_latency", current).
		Dur("average_latency", average).
		Int64("update_count", updates).
		Int("active_sources", sources).
		Msg("latency metrics")
}

// LogConfigurationChange logs configuration updates
func (cl *ComponentLogger) LogConfigurationChange(configType string, oldValue, newValue interface{}) {
	cl.logger.Info().
		Str("config_type", configType).
		Interface("old_value", oldValue).
		Interface("new_value", newValue).
		Msg("configuration changed")
}

// Utility Functions

// GetLogger returns the underlying zerolog.Logger for advanced usage
func (cl *ComponentLogger) GetLogger() zerolog.Logger {
	return cl.logger
}

// WithSubComponent creates a logger for a sub-component. The component key is inherited.
func (cl *ComponentLogger) WithSubComponent(subComponent string) *ComponentLogger {
	return &ComponentLogger{
		logger: cl.logger.With().Str("sub_component", subComponent).Logger(),
	}
}
