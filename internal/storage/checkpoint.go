package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/errors"
)

// RedisCheckpointConfig holds configuration for the Redis checkpoint store.
type RedisCheckpointConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix"`
}

// RedisCheckpointStore records per-pipeline ingestion progress in Redis so
// independent runs can resume from the last processed date.
type RedisCheckpointStore struct {
	config *RedisCheckpointConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewRedisCheckpointStore creates a new Redis-backed checkpoint store.
func NewRedisCheckpointStore(config *RedisCheckpointConfig, logger *logrus.Logger) (*RedisCheckpointStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "agripipe"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RedisCheckpointStore{config: config, logger: logger}, nil
}

// Connect establishes the Redis connection.
func (s *RedisCheckpointStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         s.config.Addr,
		Password:     s.config.Password,
		DB:           s.config.DB,
		DialTimeout:  s.config.DialTimeout,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to ping Redis")
	}

	s.client = client
	s.logger.WithField("addr", s.config.Addr).Info("Connected to Redis checkpoint store")
	return nil
}

func (s *RedisCheckpointStore) key(pipeline string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.config.KeyPrefix, pipeline)
}

// Load returns the last processed date for the pipeline, or "" when no
// checkpoint exists yet.
func (s *RedisCheckpointStore) Load(ctx context.Context, pipeline string) (string, error) {
	if s.client == nil {
		return "", errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}

	date, err := s.client.Get(ctx, s.key(pipeline)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to load checkpoint")
	}
	return date, nil
}

// Save records the last processed date for the pipeline.
func (s *RedisCheckpointStore) Save(ctx context.Context, pipeline, date string) error {
	if s.client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "not connected")
	}

	if err := s.client.Set(ctx, s.key(pipeline), date, 0).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to save checkpoint")
	}

	s.logger.WithFields(logrus.Fields{
		"pipeline": pipeline,
		"date":     date,
	}).Debug("Checkpoint saved")
	return nil
}

// Close closes the Redis connection.
func (s *RedisCheckpointStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
