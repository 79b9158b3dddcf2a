package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client keeps each logical key as one JSON object <prefix>/<key>.json shaped like a
// row of the postgres table.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader

	bucket string
	prefix string
}

type s3Document struct {
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("no s3 bucket provided for the s3 remote driver")
	}
	if cfg.S3AccessKeyID == "" {
		return nil, errors.New("no s3 access key id provided for the s3 remote driver")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	ctxCfg, cancelCfg := context.WithTimeout(ctx, 3*time.Second)
	awsCfg, err := config.LoadDefaultConfig(
		ctxCfg,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.Credential, ""),
		),
	)
	cancelCfg()
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Client{
		client:     s3Client,
		uploader:   manager.NewUploader(s3Client),
		downloader: manager.NewDownloader(s3Client),
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
	}, nil
}

func (r *S3Client) Driver() string {
	return DriverS3
}

func (r *S3Client) objectKey(key string) string {
	return path.Join(r.prefix, key+".json")
}

func (r *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	if _, err := r.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(key)),
	}); err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, classifyS3(fmt.Errorf("unable to download object from s3, %s, %w", key, err))
	}

	var doc s3Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, &ProbeError{Reason: ReasonQueryFailed, Err: fmt.Errorf("malformed s3 document %s: %w", key, err)}
	}
	if doc.ID != key || len(doc.Content) == 0 {
		return nil, &ProbeError{Reason: ReasonQueryFailed, Err: fmt.Errorf("malformed s3 document %s", key)}
	}
	return doc.Content, nil
}

func (r *S3Client) Put(ctx context.Context, key string, value []byte) error {
	body, err := json.Marshal(s3Document{
		ID:        key,
		Content:   json.RawMessage(value),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("unable to encode s3 document, %s, %w", key, err)
	}

	if _, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.objectKey(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return classifyS3(fmt.Errorf("unable to upload object to s3, %s, %w", key, err))
	}
	return nil
}

func (r *S3Client) Probe(ctx context.Context) error {
	_, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(r.prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return classifyS3(fmt.Errorf("probe: %w", err))
	}
	return nil
}

func (r *S3Client) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// classifyS3 maps credential errors to ReasonRejected and every other service answer to
// ReasonQueryFailed. Errors without a service answer mean the endpoint was not reached.
func classifyS3(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied", "Forbidden",
			"InvalidToken", "ExpiredToken":
			return &ProbeError{Reason: ReasonRejected, Err: err}
		}
		return &ProbeError{Reason: ReasonQueryFailed, Err: err}
	}
	return &ProbeError{Reason: ReasonUnreachable, Err: err}
}
