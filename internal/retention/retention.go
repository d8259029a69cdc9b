// Package retention keeps a copy of every committed upload in S3.
package retention

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/logging"
)

// objectPutter is the part of *s3.Client the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads staged archives under bucket/prefix.
type Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewArchiver builds an S3 client from the default AWS credential chain.
func NewArchiver(ctx context.Context, bucket, prefix, region string) (*Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newArchiver(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newArchiver(client objectPutter, bucket, prefix string) *Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a run.
func (a *Archiver) Key(run core.CommittedRun) string {
	return a.prefix + run.Result.IngestionID.String() + ".zip"
}

// Store uploads the run's staged archive.
func (a *Archiver) Store(ctx context.Context, run core.CommittedRun) error {
	f, err := os.Open(run.ArchivePath)
	if err != nil {
		return fmt.Errorf("open staged archive: %w", err)
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(run)),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}

// Hook uploads after each commit. Failures are logged only.
func (a *Archiver) Hook() core.CommitHook {
	return func(ctx context.Context, run core.CommittedRun) {
		logger := logging.WithFields(ctx, "ingestion_id", run.Result.IngestionID, "bucket", a.bucket)
		if err := a.Store(ctx, run); err != nil {
			logger.Warn("failed to retain archive", "error", err)
			return
		}
		logger.Info("archive retained", "key", a.Key(run))
	}
}
