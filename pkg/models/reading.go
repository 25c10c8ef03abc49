package models

import (
	"fmt"
	"math"
	"time"
)

// ReadingType identifies the measurement a sensor reading carries.
type ReadingType string

const (
	ReadingTypeSoilMoisture ReadingType = "soil_moisture"
	ReadingTypeTemperature  ReadingType = "temperature"
	ReadingTypeHumidity     ReadingType = "humidity"
	ReadingTypeLight        ReadingType = "light"
	ReadingTypeBattery      ReadingType = "battery"
)

// AllReadingTypes lists every recognized reading type in a stable order.
func AllReadingTypes() []ReadingType {
	return []ReadingType{
		ReadingTypeSoilMoisture,
		ReadingTypeTemperature,
		ReadingTypeHumidity,
		ReadingTypeLight,
		ReadingTypeBattery,
	}
}

// ParseReadingType parses a raw string into a ReadingType.
func ParseReadingType(s string) (ReadingType, error) {
	rt := ReadingType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("unknown reading type %q", s)
	}
	return rt, nil
}

// Valid reports whether the reading type is one of the recognized values.
func (rt ReadingType) Valid() bool {
	switch rt {
	case ReadingTypeSoilMoisture, ReadingTypeTemperature, ReadingTypeHumidity,
		ReadingTypeLight, ReadingTypeBattery:
		return true
	}
	return false
}

func (rt ReadingType) String() string { return string(rt) }

// Reading is one row of the pipeline batch. Raw rows carry SensorID,
// Timestamp, ReadingType and Value; the remaining fields are derived by the
// Enricher and are nil/zero until computed. A NaN Value marks a missing
// measurement.
type Reading struct {
	SensorID    string      `json:"sensor_id"`
	Timestamp   time.Time   `json:"timestamp"`
	ReadingType ReadingType `json:"reading_type"`
	Value       float64     `json:"value"`

	// Derived fields.
	Date             string   `json:"date,omitempty"`
	AnomalousReading bool     `json:"anomalous_reading"`
	NormalizedValue  *float64 `json:"normalized_value,omitempty"`
	DailyAvg         *float64 `json:"daily_avg,omitempty"`
	Rolling7dAvg     *float64 `json:"rolling_7d_avg,omitempty"`

	// Attributes carries input columns beyond the recognized set. They are
	// passed through unexamined and never validated.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Missing reports whether the reading carries no usable value.
func (r *Reading) Missing() bool {
	return math.IsNaN(r.Value)
}

// Key uniquely identifies a reading after deduplication.
func (r *Reading) Key() ReadingKey {
	return ReadingKey{
		SensorID:    r.SensorID,
		Timestamp:   r.Timestamp.UnixNano(),
		ReadingType: r.ReadingType,
	}
}

// ReadingKey is the (sensor_id, timestamp, reading_type) identity of a reading.
type ReadingKey struct {
	SensorID    string
	Timestamp   int64
	ReadingType ReadingType
}

// SeriesKey identifies the (sensor_id, reading_type) series a reading belongs to.
type SeriesKey struct {
	SensorID    string
	ReadingType ReadingType
}

// Series returns the series key for the reading.
func (r *Reading) Series() SeriesKey {
	return SeriesKey{SensorID: r.SensorID, ReadingType: r.ReadingType}
}

// GroupKey identifies the (date, sensor_id, reading_type) reporting group.
type GroupKey struct {
	Date        string
	SensorID    string
	ReadingType ReadingType
}

// Group returns the reporting group key for a reading whose Date is set.
func (r *Reading) Group() GroupKey {
	return GroupKey{Date: r.Date, SensorID: r.SensorID, ReadingType: r.ReadingType}
}
