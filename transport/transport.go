// Package transport implements single-file upload backends for the batch engine.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/photoshelf/go-uploadutils/payload"
)

// ProgressFunc is called zero or more times while a payload is sent.
// total is 0 while the size is unknown; once known, loaded <= total.
type ProgressFunc func(loaded, total int64)

// Transport uploads a single payload.
type Transport interface {
	Upload(ctx context.Context, p payload.Payload, onProgress ProgressFunc) (Response, error)
}

// Response describes an uploaded photo.
type Response struct {
	ID         string
	URL        string
	ETag       string
	StatusCode int
}

// Kind classifies upload failures.
type Kind int

const (
	// KindNetwork means the request never produced a server response.
	KindNetwork Kind = iota
	// KindServer means the backend answered with an error.
	KindServer
)

func (k Kind) String() string {
	if k == KindServer {
		return "server error"
	}
	return "network error"
}

// Error is returned by transports for failed uploads.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap ...
func (e *Error) Unwrap() error {
	return e.Err
}

func networkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

func serverError(statusCode int, message string, err error) *Error {
	return &Error{Kind: KindServer, StatusCode: statusCode, Message: message, Err: err}
}

// progressReader reports every chunk read from the wrapped reader.
// It must stay a plain io.ReadCloser: uploaders that see Seek or ReadAt skip Read.
type progressReader struct {
	reader     io.ReadCloser
	total      int64
	onProgress ProgressFunc

	mu     sync.Mutex
	loaded int64
}

func newProgressReader(reader io.ReadCloser, total int64, onProgress ProgressFunc) *progressReader {
	if total < 0 {
		total = 0
	}
	return &progressReader{
		reader:     reader,
		total:      total,
		onProgress: onProgress,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.mu.Lock()
		r.loaded += int64(n)
		loaded := r.loaded
		r.mu.Unlock()

		if r.total > 0 && loaded > r.total {
			loaded = r.total
		}
		if r.onProgress != nil {
			r.onProgress(loaded, r.total)
		}
	}
	return n, err
}

func (r *progressReader) Close() error {
	return r.reader.Close()
}
