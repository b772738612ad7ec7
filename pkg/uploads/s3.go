package uploads

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
)

const (
	// DefaultPartSize is the multipart chunk size. S3 requires at least 5 MiB for all but the last part.
	DefaultPartSize int64 = 8 << 20
	// DefaultPartAttempts is how many times a single part is sent before the upload is aborted.
	DefaultPartAttempts = 3
)

// s3API is the subset of *s3.Client the store needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads to S3 or an S3 compatible service such as R2 or MinIO.
type S3Store struct {
	client       s3API
	bucket       string
	baseURL      string
	partSize     int64
	partAttempts int
	backoff      time.Duration
}

type NewS3StoreOptions struct {
	Bucket string
	// Endpoint overrides the AWS endpoint and switches to path-style addressing.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// CDNBaseURL prefixes returned object URLs. Defaults to the bucket URL.
	CDNBaseURL   string
	PartSize     int64
	PartAttempts int
}

func NewS3Store(ctx context.Context, opts NewS3StoreOptions) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	if opts.CDNBaseURL == "" {
		if opts.Endpoint != "" {
			opts.CDNBaseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(opts.Endpoint, "/"), opts.Bucket)
		} else {
			opts.CDNBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, region)
		}
	}
	log.Info("Storing videos in bucket %s", opts.Bucket)
	return newS3Store(client, opts), nil
}

func newS3Store(client s3API, opts NewS3StoreOptions) *S3Store {
	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	attempts := opts.PartAttempts
	if attempts <= 0 {
		attempts = DefaultPartAttempts
	}
	return &S3Store{
		client:       client,
		bucket:       opts.Bucket,
		baseURL:      strings.TrimSuffix(opts.CDNBaseURL, "/"),
		partSize:     partSize,
		partAttempts: attempts,
		backoff:      500 * time.Millisecond,
	}
}

func (s *S3Store) url(key string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.ReaderAt, size int64, progress ProgressFunc) (string, error) {
	if progress == nil {
		progress = func(int64) {}
	}
	if size <= s.partSize {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          io.NewSectionReader(body, 0, size),
			ContentLength: aws.Int64(size),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return "", fmt.Errorf("failed to put object %s: %w", key, err)
		}
		progress(size)
		return s.url(key), nil
	}

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start multipart upload of %s: %w", key, err)
	}
	uploadID := created.UploadId

	parts, err := s.uploadParts(ctx, key, uploadID, body, size, progress)
	if err == nil {
		_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(key),
			UploadId:        uploadID,
			MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
		})
		if err != nil {
			err = fmt.Errorf("failed to complete multipart upload of %s: %w", key, err)
		}
	}
	if err != nil {
		_, abortErr := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			log.Warn("Failed to abort multipart upload of %s: %v", key, abortErr)
		}
		return "", err
	}
	return s.url(key), nil
}

func (s *S3Store) uploadParts(ctx context.Context, key string, uploadID *string, body io.ReaderAt, size int64, progress ProgressFunc) ([]s3types.CompletedPart, error) {
	var parts []s3types.CompletedPart
	var uploaded int64
	for offset, number := int64(0), int32(1); offset < size; offset, number = offset+s.partSize, number+1 {
		length := s.partSize
		if offset+length > size {
			length = size - offset
		}

		var etag *string
		var err error
		for attempt := 1; attempt <= s.partAttempts; attempt++ {
			var out *s3.UploadPartOutput
			out, err = s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(s.bucket),
				Key:           aws.String(key),
				UploadId:      uploadID,
				PartNumber:    aws.Int32(number),
				Body:          io.NewSectionReader(body, offset, length),
				ContentLength: aws.Int64(length),
			})
			if err == nil {
				etag = out.ETag
				break
			}
			log.Warn("Part %d of %s failed (attempt %d/%d): %v", number, key, attempt, s.partAttempts, err)
			if attempt == s.partAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to upload part %d of %s: %w", number, key, err)
		}

		parts = append(parts, s3types.CompletedPart{ETag: etag, PartNumber: aws.Int32(number)})
		uploaded += length
		progress(uploaded)
	}
	return parts, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
