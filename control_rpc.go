package phonoglyph

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
)

// Limits for RPC parameter validation
const (
	// MaxOffsetAdjustmentMs bounds a single manual nudge of the sync offset
	MaxOffsetAdjustmentMs = 1000
	maxSyncPointTicks     = 1 << 40
	maxSyncPointSeconds   = 7 * 24 * 3600
)

// validateFloat64Param extracts and validates a float64 parameter from the params map
func validateFloat64Param(params map[string]interface{}, paramName, methodName string, min, max float64) (float64, error) {
	value, ok := params[paramName].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: %s parameter must be a number, got %T", methodName, paramName, params[paramName])
	}
	if math.IsNaN(value) || value < min || value > max {
		return 0, fmt.Errorf("%s: %s value %v out of range [%v to %v]", methodName, paramName, value, min, max)
	}
	return value, nil
}

// validateStringParam extracts a non-blank string parameter
func validateStringParam(params map[string]interface{}, paramName, methodName string) (string, error) {
	value, ok := params[paramName].(string)
	if !ok {
		return "", fmt.Errorf("%s: %s parameter must be a string, got %T", methodName, paramName, params[paramName])
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s: %s parameter must not be empty", methodName, paramName)
	}
	return value, nil
}

// validateConfigParam re-decodes an object parameter into a control source configuration
func validateConfigParam(params map[string]interface{}, methodName string) (control.ControlSourceConfig, error) {
	var config control.ControlSourceConfig
	raw, ok := params["config"].(map[string]interface{})
	if !ok {
		return config, fmt.Errorf("%s: config parameter must be an object, got %T", methodName, params["config"])
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return config, fmt.Errorf("%s: %w", methodName, err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("%s: invalid config: %w", methodName, err)
	}
	return config, nil
}

func (s *Service) handleAdjustSyncOffsetRPC(params map[string]interface{}) (interface{}, error) {
	deltaMs, err := validateFloat64Param(params, "deltaMs", "adjustSyncOffset", -MaxOffsetAdjustmentMs, MaxOffsetAdjustmentMs)
	if err != nil {
		return nil, err
	}
	if err := s.controller.AdjustSyncOffset(deltaMs); err != nil {
		return nil, err
	}
	return s.estimator.GetSyncStatus(), nil
}

func (s *Service) handleAddSyncPointRPC(params map[string]interface{}) (interface{}, error) {
	ticks, err := validateFloat64Param(params, "domainATime", "addSyncPoint", 0, maxSyncPointTicks)
	if err != nil {
		return nil, err
	}
	seconds, err := validateFloat64Param(params, "domainBTime", "addSyncPoint", 0, maxSyncPointSeconds)
	if err != nil {
		return nil, err
	}
	confidence, err := validateFloat64Param(params, "confidence", "addSyncPoint", 0, 1)
	if err != nil {
		return nil, err
	}

	ok := s.estimator.AddSyncPoint(timesync.SyncPoint{
		DomainATime: int64(ticks),
		DomainBTime: seconds,
		Confidence:  confidence,
	})
	if !ok {
		return nil, fmt.Errorf("addSyncPoint: %w", timesync.ErrLowConfidence)
	}
	return s.estimator.GetSyncStatus(), nil
}

func (s *Service) handleAcknowledgeAlertRPC(params map[string]interface{}) (interface{}, error) {
	id, err := validateStringParam(params, "id", "acknowledgeAlert")
	if err != nil {
		return nil, err
	}
	if !s.monitor.AcknowledgeAlert(id) {
		return nil, fmt.Errorf("acknowledgeAlert: %w: %s", errAlertNotFound, id)
	}
	return true, nil
}

func (s *Service) handleSetControlSourceRPC(params map[string]interface{}) (interface{}, error) {
	parameter, err := validateStringParam(params, "parameter", "setControlSource")
	if err != nil {
		return nil, err
	}
	config, err := validateConfigParam(params, "setControlSource")
	if err != nil {
		return nil, err
	}
	if err := s.controller.SetControlSource(control.Parameter(parameter), config); err != nil {
		return nil, fmt.Errorf("setControlSource: %w", err)
	}
	return control.ParameterSource{Parameter: control.Parameter(parameter), Config: config}, nil
}

func (s *Service) handleRemoveControlSourceRPC(params map[string]interface{}) (interface{}, error) {
	parameter, err := validateStringParam(params, "parameter", "removeControlSource")
	if err != nil {
		return nil, err
	}
	return s.controller.RemoveControlSource(control.Parameter(parameter)), nil
}

func (s *Service) handleApplyPresetRPC(params map[string]interface{}) (interface{}, error) {
	id, err := validateStringParam(params, "id", "applyPreset")
	if err != nil {
		return nil, err
	}
	applied, err := s.presets.Apply(id, s.controller)
	if err != nil && applied == 0 {
		return nil, fmt.Errorf("applyPreset: %w", err)
	}
	return applied, nil
}

// handleControlRPC routes control method calls to their handlers.
func (s *Service) handleControlRPC(method string, params map[string]interface{}) (interface{}, error) {
	switch method {
	case "getSyncStatus":
		return s.syncStatus(), nil
	case "adjustSyncOffset":
		return s.handleAdjustSyncOffsetRPC(params)
	case "addSyncPoint":
		return s.handleAddSyncPointRPC(params)
	case "acknowledgeAlert":
		return s.handleAcknowledgeAlertRPC(params)
	case "setControlSource":
		return s.handleSetControlSourceRPC(params)
	case "removeControlSource":
		return s.handleRemoveControlSourceRPC(params)
	case "applyPreset":
		return s.handleApplyPresetRPC(params)
	default:
		return nil, fmt.Errorf("handleControlRPC: unsupported method '%s'", method)
	}
}

// isControlMethod reports whether method has a handler in handleControlRPC.
// Keep the two lists in sync.
func isControlMethod(method string) bool {
	switch method {
	case "getSyncStatus", "adjustSyncOffset", "addSyncPoint", "acknowledgeAlert",
		"setControlSource", "removeControlSource", "applyPreset":
		return true
	default:
		return false
	}
}
