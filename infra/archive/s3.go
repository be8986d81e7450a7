// Package archive uploads terminal deliveries to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kilianp07/geodispatch/core/model"
)

// Config selects the bucket and layout.
type Config struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Prefix string `json:"prefix"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Path style
	// addressing is used when set.
	Endpoint string `json:"endpoint"`
}

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one JSON object per delivery under
// "<prefix>/<yyyy>/<mm>/<dd>/<delivery id>.json".
type S3Archiver struct {
	client putter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver loads the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg), nil
}

func newS3Archiver(client putter, cfg Config) *S3Archiver {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "deliveries"
	}
	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: prefix, now: time.Now}
}

// Key returns the object key for a delivery archived at t.
func (a *S3Archiver) Key(id string, t time.Time) string {
	t = t.UTC()
	return path.Join(a.prefix, t.Format("2006"), t.Format("01"), t.Format("02"), id+".json")
}

type archivedDelivery struct {
	model.Delivery
	ArchivedAt time.Time `json:"archived_at"`
}

// Archive uploads d as JSON.
func (a *S3Archiver) Archive(ctx context.Context, d model.Delivery) error {
	now := a.now()
	body, err := json.Marshal(archivedDelivery{Delivery: d, ArchivedAt: now.UTC()})
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(d.ID, now)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"status": string(d.Status)},
	})
	if err != nil {
		return fmt.Errorf("upload delivery %s: %w", d.ID, err)
	}
	return nil
}
