package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// InfluxDBConfig holds configuration for the InfluxDB-backed history.
type InfluxDBConfig struct {
	URL          string `json:"url" yaml:"url"`
	Token        string `json:"token" yaml:"token"`
	Organization string `json:"organization" yaml:"organization"`
	Bucket       string `json:"bucket" yaml:"bucket"`
}

// InfluxDBHistory is a HistoryProvider backed by an InfluxDB bucket. Each
// reading type is a measurement; sensor_id is the series tag.
type InfluxDBHistory struct {
	config   *InfluxDBConfig
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// NewInfluxDBHistory creates a new InfluxDB history provider.
func NewInfluxDBHistory(config *InfluxDBConfig, logger *logrus.Logger) (*InfluxDBHistory, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "InfluxDB URL and bucket are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &InfluxDBHistory{config: config, logger: logger}, nil
}

// Connect establishes the InfluxDB connection.
func (s *InfluxDBHistory) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client := influxdb2.NewClient(s.config.URL, s.config.Token)

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to ping InfluxDB")
	}

	s.client = client
	s.writeAPI = client.WriteAPIBlocking(s.config.Organization, s.config.Bucket)
	s.queryAPI = client.QueryAPI(s.config.Organization)

	s.logger.WithFields(logrus.Fields{
		"url":    s.config.URL,
		"bucket": s.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Fetch returns the prior readings of one series within [from, to] inclusive.
func (s *InfluxDBHistory) Fetch(ctx context.Context, sensorID string, readingType models.ReadingType, from, to time.Time) ([]models.Reading, error) {
	s.mu.RLock()
	queryAPI := s.queryAPI
	s.mu.RUnlock()

	if queryAPI == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}

	// Flux range stop is exclusive; push it one nanosecond past "to".
	flux := fmt.Sprintf(`from(bucket: %q)
		|> range(start: %s, stop: %s)
		|> filter(fn: (r) => r._measurement == %q and r.sensor_id == %q)
		|> sort(columns: ["_time"])`,
		s.config.Bucket,
		from.UTC().Format(time.RFC3339Nano),
		to.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano),
		string(readingType),
		sensorID,
	)

	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"history query failed")
	}

	var readings []models.Reading
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		readings = append(readings, models.Reading{
			SensorID:    sensorID,
			Timestamp:   record.Time(),
			ReadingType: readingType,
			Value:       value,
		})
	}
	if result.Err() != nil {
		return nil, errors.WrapError(result.Err(), errors.ErrorTypeStorage, errors.CodeReadFailed,
			"history iteration failed")
	}

	return readings, nil
}

// Insert persists an enriched batch for future rolling-window lookups.
func (s *InfluxDBHistory) Insert(ctx context.Context, batch []models.Reading) error {
	s.mu.RLock()
	writeAPI := s.writeAPI
	s.mu.RUnlock()

	if writeAPI == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}

	for i := range batch {
		point := influxdb2.NewPointWithMeasurement(string(batch[i].ReadingType)).
			AddTag("sensor_id", batch[i].SensorID).
			AddField("value", batch[i].Value).
			SetTime(batch[i].Timestamp)
		if err := writeAPI.WritePoint(ctx, point); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to write reading")
		}
	}

	s.logger.WithField("readings", len(batch)).Debug("Persisted batch to history")
	return nil
}

// Close closes the InfluxDB connection.
func (s *InfluxDBHistory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
		s.client = nil
		s.writeAPI = nil
		s.queryAPI = nil
	}
	return nil
}
