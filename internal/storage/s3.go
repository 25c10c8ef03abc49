package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/agrisense/agripipe/pkg/errors"
)

// S3ArchiveConfig holds configuration for the S3 archive sink.
type S3ArchiveConfig struct {
	Region   string `json:"region" yaml:"region"`
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// S3Archive uploads run artifacts (partition files, quality reports) to an
// S3 bucket after a successful run.
type S3Archive struct {
	config   *S3ArchiveConfig
	uploader *s3manager.Uploader
	logger   *logrus.Logger
}

// NewS3Archive creates a new S3 archive sink.
func NewS3Archive(config *S3ArchiveConfig, logger *logrus.Logger) (*S3Archive, error) {
	if config == nil || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to create AWS session")
	}

	return &S3Archive{
		config:   config,
		uploader: s3manager.NewUploader(sess),
		logger:   logger,
	}, nil
}

// Upload copies a local file to s3://<bucket>/<prefix>/<remoteKey>.
func (a *S3Archive) Upload(ctx context.Context, localPath, remoteKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to open artifact for upload")
	}
	defer f.Close()

	key := remoteKey
	if a.config.Prefix != "" {
		key = filepath.ToSlash(filepath.Join(a.config.Prefix, remoteKey))
	}

	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			"failed to upload artifact")
	}

	a.logger.WithFields(logrus.Fields{
		"bucket": a.config.Bucket,
		"key":    key,
	}).Debug("Artifact uploaded")
	return nil
}
