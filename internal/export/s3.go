package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/plugbook/internal/config"
)

// ContentType is the media type archives are uploaded with.
const ContentType = "application/zstd"

// PutObjectAPI is the part of the S3 client used to upload archives.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the archive configuration. Credentials
// come from the default AWS chain.
func NewS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	}), nil
}

// S3Destination uploads archives to one bucket under a key prefix.
type S3Destination struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Destination returns a destination for the configured bucket.
func NewS3Destination(client PutObjectAPI, cfg config.ArchiveConfig) (*S3Destination, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("archive.s3_bucket is required to upload archives")
	}
	return &S3Destination{client: client, bucket: cfg.S3Bucket, prefix: cfg.S3Prefix}, nil
}

// Upload stores body under name and returns the object key. The trailer is
// attached as object metadata so an archive can be checked without
// downloading it. body should be seekable; the SDK needs to rewind it to sign
// and retry the request.
func (d *S3Destination) Upload(ctx context.Context, name string, body io.Reader, size int64, trailer Trailer) (string, error) {
	key := path.Join(d.prefix, name)

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(ContentType),
		Metadata: map[string]string{
			"records":   strconv.Itoa(trailer.Records),
			"crc64nvme": trailer.Checksum,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive to s3://%s/%s: %w", d.bucket, key, err)
	}

	log.Info().
		Str("bucket", d.bucket).
		Str("key", key).
		Int64("bytes", size).
		Int("records", trailer.Records).
		Msg("Archive uploaded")

	return key, nil
}
