package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/photoshelf/go-uploadutils/payload"
)

const (
	// DefaultAPIPrefix ...
	DefaultAPIPrefix = "/api"
	// DefaultUploadPath ...
	DefaultUploadPath = "/external"

	headerFilename  = "X-Upload-Filename"
	headerTimestamp = "X-Upload-Timestamp"
	headerSignature = "X-Upload-Signature"

	maxErrorBodyLength = 512
)

// HTTPParams ...
type HTTPParams struct {
	BaseURL     string
	APIPrefix   string
	UploadPath  string
	AccessToken string
	HMACKey     string
	Encoding    Encoding
	// MaxRetries is the number of retries of a single request. Zero keeps every
	// upload attempt visible to the caller.
	MaxRetries int
}

type uploadResponse struct {
	ID  json.RawMessage `json:"id"`
	URL string          `json:"url"`
}

// HTTPTransport uploads photos to the photo service's external upload endpoint.
type HTTPTransport struct {
	client *retryablehttp.Client
	params HTTPParams
	url    string
	logger log.Logger
	now    func() time.Time
}

// NewHTTPTransport ...
func NewHTTPTransport(params HTTPParams, logger log.Logger) (*HTTPTransport, error) {
	if params.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL must not be empty")
	}
	if params.APIPrefix == "" {
		params.APIPrefix = DefaultAPIPrefix
	}
	if params.UploadPath == "" {
		params.UploadPath = DefaultUploadPath
	}
	if params.Encoding == "" {
		params.Encoding = EncodingNone
	}
	if params.MaxRetries < 0 {
		return nil, fmt.Errorf("MaxRetries must not be negative")
	}

	client := retryhttp.NewClient(logger)
	client.RetryMax = params.MaxRetries
	// keep the last response so its status code can be classified
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPTransport{
		client: client,
		params: params,
		url:    joinURL(params.BaseURL, params.APIPrefix, params.UploadPath),
		logger: logger,
		now:    time.Now,
	}, nil
}

// URL returns the endpoint payloads are posted to.
func (t *HTTPTransport) URL() string {
	return t.url
}

// Upload posts the payload body and decodes the created photo from the response.
func (t *HTTPTransport) Upload(ctx context.Context, p payload.Payload, onProgress ProgressFunc) (Response, error) {
	body, size, err := t.bodyReader(p, onProgress)
	if err != nil {
		return Response{}, networkError("prepare body", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return Response{}, networkError("create request", err)
	}
	t.setHeaders(req, p.Name())

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	req.ContentLength = size

	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		t.logger.Warnf("error while dumping request: %s", err)
	}
	t.logger.Debugf("Upload request dump: %s", string(dump))

	resp, err := t.client.Do(req)
	if err != nil && resp == nil {
		return Response{}, networkError(fmt.Sprintf("upload %s", p.Name()), err)
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			t.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{StatusCode: resp.StatusCode}, unwrapError(resp)
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		return Response{StatusCode: resp.StatusCode}, serverError(resp.StatusCode, "invalid response body", err)
	}

	return Response{
		ID:         rawID(decoded.ID),
		URL:        decoded.URL,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
	}, nil
}

func (t *HTTPTransport) bodyReader(p payload.Payload, onProgress ProgressFunc) (retryablehttp.ReaderFunc, int64, error) {
	if t.params.Encoding == EncodingZstd {
		data, err := encodeZstd(p)
		if err != nil {
			return nil, 0, err
		}
		size := int64(len(data))
		return func() (io.Reader, error) {
			return newProgressReader(io.NopCloser(bytes.NewReader(data)), size, onProgress), nil
		}, size, nil
	}

	size := p.Size()
	return func() (io.Reader, error) {
		reader, err := p.Open()
		if err != nil {
			return nil, err
		}
		return newProgressReader(reader, size, onProgress), nil
	}, size, nil
}

func (t *HTTPTransport) setHeaders(req *retryablehttp.Request, filename string) {
	req.Header.Set("Content-Type", contentType(filename))
	req.Header.Set(headerFilename, filename)
	if t.params.Encoding == EncodingZstd {
		req.Header.Set("Content-Encoding", "zstd")
	}
	if t.params.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.params.AccessToken))
	}
	if t.params.HMACKey != "" {
		timestamp := strconv.FormatInt(t.now().Unix(), 10)
		req.Header.Set(headerTimestamp, timestamp)
		req.Header.Set(headerSignature, Sign(t.params.HMACKey, timestamp, filename))
	}
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
	if err != nil {
		return serverError(resp.StatusCode, http.StatusText(resp.StatusCode), err)
	}

	message := strings.TrimSpace(string(errorResp))
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(errorResp, &apiErr) == nil {
		if apiErr.Message != "" {
			message = apiErr.Message
		} else if apiErr.Error != "" {
			message = apiErr.Error
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return serverError(resp.StatusCode, message, nil)
}

func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func contentType(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func joinURL(baseURL string, paths ...string) string {
	url := strings.TrimRight(baseURL, "/")
	for _, path := range paths {
		path = strings.Trim(path, "/")
		if path == "" {
			continue
		}
		url += "/" + path
	}
	return url
}
