// Package archive optionally snapshots signed tree heads to S3-
// compatible object storage, so an operator can audit a log's STH
// history independent of the live store, or recover a kid's published
// head after a store-level disaster. Adapted from
// core/pkg/artifacts/s3_store.go's content-addressed PutObject/
// GetObject/HeadObject pattern, applied to sth.STH snapshots instead of
// opaque blobs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tecp-protocol/tecp/pkg/sth"
)

// Config configures the archive's S3 backend.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix, e.g. "tecp/sth/"
}

// Archiver persists sth.STH snapshots to S3, one object per tree size.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New constructs an Archiver from cfg, loading AWS credentials from the
// standard credential chain.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *Archiver) key(size uint64) string {
	return a.prefix + strconv.FormatUint(size, 10) + ".sth.json"
}

// PutSTH archives head, keyed by its tree size. Idempotent: a head
// already archived at this size is left untouched rather than
// re-uploaded, since a given size has exactly one valid root under
// append-only semantics.
func (a *Archiver) PutSTH(ctx context.Context, head sth.STH) error {
	key := a.key(head.Size)

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err == nil {
		return nil
	}

	data, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("marshal STH: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put STH size=%d: %w", head.Size, err)
	}
	return nil
}

// GetSTH retrieves the archived STH for the given tree size.
func (a *Archiver) GetSTH(ctx context.Context, size uint64) (sth.STH, error) {
	key := a.key(size)

	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return sth.STH{}, fmt.Errorf("no archived STH at size %d: %w", size, err)
		}
		return sth.STH{}, fmt.Errorf("s3 get STH size=%d: %w", size, err)
	}
	defer result.Body.Close()

	var head sth.STH
	if err := json.NewDecoder(result.Body).Decode(&head); err != nil {
		return sth.STH{}, fmt.Errorf("decode archived STH size=%d: %w", size, err)
	}
	return head, nil
}
