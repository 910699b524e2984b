package network

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/filedrop-io/go-uploadutils/uploader"
)

const numS3UploadRetries = 3

// S3UploadParams configures the S3 whole-file adapter.
type S3UploadParams struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// KeyPrefix is prepended to every object key. Optional.
	KeyPrefix string
}

// S3Uploader stores whole files as S3 objects. It implements
// uploader.FileTransport as an alternative to the HTTP backend.
type S3Uploader struct {
	params S3UploadParams
	logger log.Logger
}

// NewS3Uploader creates an S3-backed whole-file transport.
func NewS3Uploader(params S3UploadParams, logger log.Logger) *S3Uploader {
	return &S3Uploader{
		params: params,
		logger: logger,
	}
}

// SendFile uploads the file as a single S3 object named after the file
// (prefixed with KeyPrefix). Transient request failures are retried inside
// the adapter; the returned error is the terminal outcome.
func (u *S3Uploader) SendFile(ctx context.Context, file uploader.FileHandle) error {
	if u.params.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, u.params.Region, u.params.AccessKeyID, u.params.SecretAccessKey, u.logger)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}
	client := s3.NewFromConfig(*cfg)

	key := path.Join(u.params.KeyPrefix, file.Name())
	u.logger.Debugf("Uploading %s to s3://%s/%s", file.Name(), u.params.Bucket, key)

	return u.putObjectWithRetry(ctx, client, key, file)
}

func (u *S3Uploader) putObjectWithRetry(ctx context.Context, client *s3.Client, key string, file uploader.FileHandle) error {
	return retry.Times(numS3UploadRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		// A fresh reader per attempt: the previous attempt may have consumed it.
		body, err := file.ByteRange(0, file.Size())
		if err != nil {
			return fmt.Errorf("read file %s: %w", file.Name(), err), true
		}

		var partMB int64 = 10
		s3Uploader := manager.NewUploader(client, func(up *manager.Uploader) {
			up.PartSize = partMB * 1024 * 1024
		})

		_, err = s3Uploader.Upload(ctx, &s3.PutObjectInput{
			Body:              body,
			Bucket:            aws.String(u.params.Bucket),
			Key:               aws.String(key),
			ContentType:       aws.String(contentTypeForName(file.Name())),
			ContentLength:     aws.Int64(file.Size()),
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		})
		if err != nil {
			return fmt.Errorf("upload object: %w", err), isPermanentS3Error(err)
		}

		return nil, true
	})
}

// isPermanentS3Error reports whether retrying the request cannot help.
func isPermanentS3Error(err error) bool {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.ErrorCode() {
		case "AccessDenied", "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return true
		}
	}
	return false
}

func contentTypeForName(name string) string {
	mimeType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	} else {
		logger.Debugf("aws credentials not defined, loading credentials from environment...")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
