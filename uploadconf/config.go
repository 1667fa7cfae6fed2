// Package uploadconf reads upload settings from environment variables.
package uploadconf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/photoshelf/go-uploadutils/payload"
	"github.com/photoshelf/go-uploadutils/transport"
	"github.com/photoshelf/go-uploadutils/upload"
	"github.com/photoshelf/go-uploadutils/upload/limiter"
)

const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// ErrInvalidInputs wraps every parse and validation error.
var ErrInvalidInputs = errors.New("invalid inputs")

// Inputs are the settings read from the environment. Unset variables keep the DefaultInputs values.
type Inputs struct {
	Concurrency      int  `env:"PHOTO_UPLOAD_CONCURRENCY"`
	TimeoutPerItemMS int  `env:"PHOTO_UPLOAD_TIMEOUT_PER_ITEM_MS"`
	MinTimeoutMS     int  `env:"PHOTO_UPLOAD_MIN_TIMEOUT_MS"`
	MaxTimeoutMS     int  `env:"PHOTO_UPLOAD_MAX_TIMEOUT_MS"`
	WeightBySize     bool `env:"PHOTO_UPLOAD_WEIGHT_BY_SIZE"`

	Paths   []string `env:"PHOTO_UPLOAD_PATHS"`
	Backend string   `env:"PHOTO_UPLOAD_BACKEND"`

	APIBaseURL  string          `env:"PHOTO_UPLOAD_API_BASE_URL"`
	APIPrefix   string          `env:"PHOTO_UPLOAD_API_PREFIX"`
	UploadPath  string          `env:"PHOTO_UPLOAD_PATH"`
	HMACKey     stepconf.Secret `env:"PHOTO_UPLOAD_HMAC_KEY"`
	AccessToken stepconf.Secret `env:"PHOTO_UPLOAD_ACCESS_TOKEN"`
	Compression string          `env:"PHOTO_UPLOAD_COMPRESSION"`
	MaxRetries  int             `env:"PHOTO_UPLOAD_HTTP_MAX_RETRIES"`

	S3Bucket           string          `env:"PHOTO_UPLOAD_S3_BUCKET"`
	S3Region           string          `env:"PHOTO_UPLOAD_S3_REGION"`
	S3Endpoint         string          `env:"PHOTO_UPLOAD_S3_ENDPOINT"`
	S3KeyTemplate      string          `env:"PHOTO_UPLOAD_S3_KEY_TEMPLATE"`
	S3SkipExisting     bool            `env:"PHOTO_UPLOAD_S3_SKIP_EXISTING"`
	AWSAccessKeyID     stepconf.Secret `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey stepconf.Secret `env:"AWS_SECRET_ACCESS_KEY"`
}

// DefaultInputs ...
func DefaultInputs() Inputs {
	return Inputs{
		Concurrency:      limiter.DefaultConcurrency,
		TimeoutPerItemMS: int(upload.DefaultBaseTimeoutPerItem / time.Millisecond),
		MinTimeoutMS:     int(upload.DefaultMinTotalTimeout / time.Millisecond),
		MaxTimeoutMS:     int(upload.DefaultMaxTotalTimeout / time.Millisecond),
		Backend:          BackendHTTP,
		APIPrefix:        transport.DefaultAPIPrefix,
		UploadPath:       transport.DefaultUploadPath,
		Compression:      string(transport.EncodingNone),
		S3KeyTemplate:    transport.DefaultKeyTemplate,
	}
}

// Parse reads Inputs from envRepo on top of DefaultInputs and validates them.
func Parse(envRepo env.Repository) (Inputs, error) {
	inputs := DefaultInputs()
	if err := stepconf.NewInputParser(envRepo).Parse(&inputs); err != nil {
		return Inputs{}, fmt.Errorf("%w: %w", ErrInvalidInputs, err)
	}
	if err := inputs.Validate(); err != nil {
		return Inputs{}, err
	}
	return inputs, nil
}

// Validate checks the settings of the selected backend.
func (i Inputs) Validate() error {
	if i.Concurrency <= 0 {
		return fmt.Errorf("%w: PHOTO_UPLOAD_CONCURRENCY must be positive", ErrInvalidInputs)
	}
	if i.TimeoutPerItemMS <= 0 || i.MinTimeoutMS <= 0 || i.MaxTimeoutMS <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidInputs)
	}
	if i.MinTimeoutMS > i.MaxTimeoutMS {
		return fmt.Errorf("%w: PHOTO_UPLOAD_MIN_TIMEOUT_MS (%d) exceeds PHOTO_UPLOAD_MAX_TIMEOUT_MS (%d)", ErrInvalidInputs, i.MinTimeoutMS, i.MaxTimeoutMS)
	}

	if _, err := transport.ParseEncoding(i.Compression); err != nil {
		return fmt.Errorf("%w: PHOTO_UPLOAD_COMPRESSION: %w", ErrInvalidInputs, err)
	}

	switch i.Backend {
	case BackendS3:
		if i.S3Bucket == "" || i.S3Region == "" {
			return fmt.Errorf("%w: PHOTO_UPLOAD_S3_BUCKET and PHOTO_UPLOAD_S3_REGION are required for the s3 backend", ErrInvalidInputs)
		}
	case BackendHTTP:
		if i.APIBaseURL == "" {
			return fmt.Errorf("%w: PHOTO_UPLOAD_API_BASE_URL is required for the http backend", ErrInvalidInputs)
		}
	default:
		return fmt.Errorf("%w: PHOTO_UPLOAD_BACKEND: value is not in value options (%s, %s)", ErrInvalidInputs, BackendHTTP, BackendS3)
	}
	return nil
}

// Print logs the parsed settings with secrets masked.
func (i Inputs) Print() {
	stepconf.Print(i)
}

// Payloads collects the files matching PHOTO_UPLOAD_PATHS.
func (i Inputs) Payloads(logger log.Logger, pathModifier pathutil.PathModifier) ([]payload.Payload, error) {
	return payload.NewCollector(logger, pathModifier).Collect(i.Paths)
}

// EngineConfig converts the inputs into a batch configuration.
func (i Inputs) EngineConfig() upload.Config {
	return upload.Config{
		Concurrency:        i.Concurrency,
		BaseTimeoutPerItem: time.Duration(i.TimeoutPerItemMS) * time.Millisecond,
		MinTotalTimeout:    time.Duration(i.MinTimeoutMS) * time.Millisecond,
		MaxTotalTimeout:    time.Duration(i.MaxTimeoutMS) * time.Millisecond,
		WeightBySize:       i.WeightBySize,
	}
}

// HTTPParams ...
func (i Inputs) HTTPParams() (transport.HTTPParams, error) {
	encoding, err := transport.ParseEncoding(i.Compression)
	if err != nil {
		return transport.HTTPParams{}, err
	}
	return transport.HTTPParams{
		BaseURL:     i.APIBaseURL,
		APIPrefix:   i.APIPrefix,
		UploadPath:  i.UploadPath,
		AccessToken: string(i.AccessToken),
		HMACKey:     string(i.HMACKey),
		Encoding:    encoding,
		MaxRetries:  i.MaxRetries,
	}, nil
}

// S3Params ...
func (i Inputs) S3Params() transport.S3Params {
	return transport.S3Params{
		Bucket:          i.S3Bucket,
		Region:          i.S3Region,
		AccessKeyID:     string(i.AWSAccessKeyID),
		SecretAccessKey: string(i.AWSSecretAccessKey),
		KeyTemplate:     i.S3KeyTemplate,
		Endpoint:        i.S3Endpoint,
		UsePathStyle:    i.S3Endpoint != "",
		SkipExisting:    i.S3SkipExisting,
	}
}

// NewTransport creates the transport of the selected backend.
func (i Inputs) NewTransport(ctx context.Context, envRepo env.Repository, logger log.Logger) (transport.Transport, error) {
	if i.Backend == BackendS3 {
		s3Transport, err := transport.NewS3Transport(ctx, i.S3Params(), envRepo, logger)
		if err != nil {
			return nil, fmt.Errorf("create s3 transport: %w", err)
		}
		return s3Transport, nil
	}

	params, err := i.HTTPParams()
	if err != nil {
		return nil, err
	}
	httpTransport, err := transport.NewHTTPTransport(params, logger)
	if err != nil {
		return nil, fmt.Errorf("create http transport: %w", err)
	}
	return httpTransport, nil
}
