package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// TimescaleDBConfig holds configuration for the TimescaleDB-backed history.
type TimescaleDBConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	Table           string        `json:"table" yaml:"table"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout" yaml:"query_timeout"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// TimescaleDBHistory is a HistoryProvider backed by a TimescaleDB (or plain
// PostgreSQL) hypertable of prior readings. It also persists enriched batches
// so the next run's rolling windows can see them.
type TimescaleDBHistory struct {
	config *TimescaleDBConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewTimescaleDBHistory creates a new TimescaleDB history provider.
func NewTimescaleDBHistory(config *TimescaleDBConfig, logger *logrus.Logger) (*TimescaleDBHistory, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "TimescaleDB config cannot be nil")
	}
	if config.Table == "" {
		config.Table = "sensor_readings"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = constants.DefaultConnectionTimeout
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = constants.DefaultStorageTimeout
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = constants.DefaultMaxConnections
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &TimescaleDBHistory{config: config, logger: logger}, nil
}

// Connect establishes the database connection and ensures the schema exists.
func (ts *TimescaleDBHistory) Connect(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.db != nil {
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ts.config.Host,
		ts.config.Port,
		ts.config.Username,
		ts.config.Password,
		ts.config.Database,
		ts.config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to open database connection")
	}

	db.SetMaxOpenConns(ts.config.MaxConnections)
	db.SetMaxIdleConns(ts.config.MaxIdleConns)
	db.SetConnMaxLifetime(ts.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, ts.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to ping database")
	}

	ts.db = db

	if err := ts.initializeSchema(ctx); err != nil {
		db.Close()
		ts.db = nil
		return err
	}

	ts.logger.WithFields(logrus.Fields{
		"host":     ts.config.Host,
		"port":     ts.config.Port,
		"database": ts.config.Database,
		"table":    ts.config.Table,
	}).Info("Connected to TimescaleDB")

	return nil
}

func (ts *TimescaleDBHistory) initializeSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			sensor_id    TEXT             NOT NULL,
			ts           TIMESTAMPTZ      NOT NULL,
			reading_type TEXT             NOT NULL,
			value        DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (sensor_id, ts, reading_type)
		)`, ts.config.Table)

	if _, err := ts.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			"failed to initialize schema")
	}
	return nil
}

// Fetch returns the prior readings of one series within [from, to] inclusive.
func (ts *TimescaleDBHistory) Fetch(ctx context.Context, sensorID string, readingType models.ReadingType, from, to time.Time) ([]models.Reading, error) {
	ts.mu.RLock()
	db := ts.db
	ts.mu.RUnlock()

	if db == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}

	queryCtx, cancel := context.WithTimeout(ctx, ts.config.QueryTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT sensor_id, ts, reading_type, value
		FROM %s
		WHERE sensor_id = $1 AND reading_type = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts`, ts.config.Table)

	rows, err := db.QueryContext(queryCtx, query, sensorID, string(readingType), from, to)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"history query failed")
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var r models.Reading
		var rt string
		if err := rows.Scan(&r.SensorID, &r.Timestamp, &rt, &r.Value); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
				"failed to scan history row")
		}
		r.ReadingType = models.ReadingType(rt)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"history iteration failed")
	}

	return readings, nil
}

// Insert persists an enriched batch for future rolling-window lookups.
// Conflicting rows are left untouched; a reading's identity never changes
// once written.
func (ts *TimescaleDBHistory) Insert(ctx context.Context, batch []models.Reading) error {
	ts.mu.RLock()
	db := ts.db
	ts.mu.RUnlock()

	if db == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (sensor_id, ts, reading_type, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sensor_id, ts, reading_type) DO NOTHING`, ts.config.Table))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to prepare insert")
	}
	defer stmt.Close()

	for i := range batch {
		if _, err := stmt.ExecContext(ctx, batch[i].SensorID, batch[i].Timestamp,
			string(batch[i].ReadingType), batch[i].Value); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				"failed to insert reading")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to commit batch")
	}

	ts.logger.WithField("readings", len(batch)).Debug("Persisted batch to history")
	return nil
}

// Close closes the database connection.
func (ts *TimescaleDBHistory) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.db == nil {
		return nil
	}
	err := ts.db.Close()
	ts.db = nil
	return err
}
