package transport

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/photoshelf/go-uploadutils/payload"
)

const defaultPartSizeMB int64 = 10

// S3Params ...
type S3Params struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	KeyTemplate     string
	// Endpoint overrides the S3 endpoint, for S3 compatible storage.
	Endpoint     string
	UsePathStyle bool
	// SkipExisting skips objects whose stored SHA-256 checksum matches the payload.
	SkipExisting bool
	PartSizeMB   int64
}

// S3Transport uploads photos directly to an S3 bucket.
type S3Transport struct {
	client   *s3.Client
	bucket   string
	keys     *KeyTemplate
	skip     bool
	partSize int64
	logger   log.Logger
}

// NewS3Transport loads AWS credentials and creates an S3 client for the bucket.
func NewS3Transport(ctx context.Context, params S3Params, envRepo env.Repository, logger log.Logger) (*S3Transport, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("Bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.UsePathStyle
		// every attempt is owned by the caller
		o.Retryer = aws.NopRetryer{}
	})

	return newS3Transport(client, params, envRepo, logger)
}

func newS3Transport(client *s3.Client, params S3Params, envRepo env.Repository, logger log.Logger) (*S3Transport, error) {
	keys, err := NewKeyTemplate(params.KeyTemplate, envRepo, logger)
	if err != nil {
		return nil, fmt.Errorf("parse key template: %w", err)
	}

	partSizeMB := params.PartSizeMB
	if partSizeMB <= 0 {
		partSizeMB = defaultPartSizeMB
	}

	return &S3Transport{
		client:   client,
		bucket:   params.Bucket,
		keys:     keys,
		skip:     params.SkipExisting,
		partSize: partSizeMB * 1024 * 1024,
		logger:   logger,
	}, nil
}

// Upload stores the payload under the evaluated object key.
// If SkipExisting is set and an identical object exists, nothing is sent.
func (t *S3Transport) Upload(ctx context.Context, p payload.Payload, onProgress ProgressFunc) (Response, error) {
	var checksum string
	if t.skip {
		var err error
		checksum, err = payload.Checksum(p)
		if err != nil {
			return Response{}, networkError("checksum payload", err)
		}
	}

	key, err := t.keys.Evaluate(p, checksum)
	if err != nil {
		return Response{}, networkError("evaluate object key", err)
	}

	if t.skip {
		existing, err := t.findChecksum(ctx, key)
		if err != nil {
			return Response{}, classifyS3Error("validate object", err)
		}
		if existing == checksum {
			t.logger.Debugf("Found object %s with the same checksum, skipping upload", key)
			if onProgress != nil {
				onProgress(p.Size(), p.Size())
			}
			return Response{ID: key, URL: t.objectURL(key), StatusCode: http.StatusOK}, nil
		}
	}

	reader, err := p.Open()
	if err != nil {
		return Response{}, networkError("open payload", err)
	}
	body := newProgressReader(reader, p.Size(), onProgress)
	defer body.Close() //nolint:errcheck

	uploader := manager.NewUploader(t.client, func(u *manager.Uploader) {
		u.PartSize = t.partSize
		// one part in flight at a time
		u.Concurrency = 1
	})

	input := &s3.PutObjectInput{
		Body:        body,
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType(p.Name())),
	}
	if t.skip {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
	}

	t.logger.Debugf("Uploading %s to s3://%s/%s", p.Name(), t.bucket, key)
	out, err := uploader.Upload(ctx, input)
	if err != nil {
		return Response{}, classifyS3Error(fmt.Sprintf("upload %s", p.Name()), err)
	}

	return Response{
		ID:         key,
		URL:        out.Location,
		ETag:       aws.ToString(out.ETag),
		StatusCode: http.StatusOK,
	}, nil
}

// findChecksum returns the SHA-256 checksum of the object stored under key,
// or an empty string if there is no such object or it has no checksum.
func (t *S3Transport) findChecksum(ctx context.Context, key string) (string, error) {
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(t.bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}

	if out == nil || out.ChecksumSHA256 == nil {
		return "", nil
	}
	decodedChecksum, err := base64.StdEncoding.DecodeString(*out.ChecksumSHA256)
	if err != nil {
		return "", fmt.Errorf("base64 decode checksum: %w", err)
	}

	return hex.EncodeToString(decodedChecksum), nil
}

func (t *S3Transport) objectURL(key string) string {
	return fmt.Sprintf("s3://%s/%s", t.bucket, key)
}

func classifyS3Error(message string, err error) *Error {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() > 0 {
		return serverError(respErr.HTTPStatusCode(), fmt.Sprintf("%s: %s", message, errorMessage(err)), err)
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		return &Error{Kind: KindServer, Message: fmt.Sprintf("%s: %s", message, apiError.ErrorMessage()), Err: err}
	}
	return networkError(message, err)
}

func errorMessage(err error) string {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		if msg := apiError.ErrorMessage(); msg != "" {
			return msg
		}
		return apiError.ErrorCode()
	}
	return err.Error()
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

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
