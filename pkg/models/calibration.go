package models

// CalibrationRecord holds the per-sensor calibration constants used to
// normalize raw values: normalized = (value - offset) / scale. Calibration
// data is supplied by configuration and is read-only to the pipeline core.
type CalibrationRecord struct {
	SensorID string  `json:"sensor_id" yaml:"sensor_id"`
	Offset   float64 `json:"offset" yaml:"offset"`
	Scale    float64 `json:"scale" yaml:"scale"`
}

// CalibrationMap indexes calibration records by sensor ID.
type CalibrationMap map[string]CalibrationRecord
