package transport

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader(t *testing.T) {
	recorder := &progressRecorder{}
	reader := newProgressReader(io.NopCloser(strings.NewReader("0123456789")), 10, recorder.record)

	buf := make([]byte, 4)
	for {
		_, err := reader.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.NoError(t, reader.Close())

	assert.Equal(t, []int64{4, 8, 10}, recorder.loaded)
	assert.Equal(t, int64(10), recorder.total)
}

func TestProgressReader_UnknownSize(t *testing.T) {
	recorder := &progressRecorder{}
	reader := newProgressReader(io.NopCloser(strings.NewReader("abc")), -1, recorder.record)

	_, err := io.ReadAll(reader)
	require.NoError(t, err)

	assert.Equal(t, int64(3), recorder.last())
	assert.Equal(t, int64(0), recorder.total)
}

func TestError(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "server error",
			err:  serverError(500, "boom", nil),
			want: "HTTP 500: boom",
		},
		{
			name: "network error with message",
			err:  networkError("upload a.jpg", cause),
			want: "upload a.jpg: connection reset",
		},
		{
			name: "network error without message",
			err:  &Error{Err: cause},
			want: "connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, networkError("upload", cause), cause)
	assert.Equal(t, "network error", KindNetwork.String())
	assert.Equal(t, "server error", KindServer.String())
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		input   string
		want    Encoding
		wantErr bool
	}{
		{input: "", want: EncodingNone},
		{input: "none", want: EncodingNone},
		{input: " ZSTD ", want: EncodingZstd},
		{input: "gzip", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEncoding(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSign(t *testing.T) {
	signature := Sign("key", "1700000000", "a.jpg")

	assert.Len(t, signature, 64)
	assert.Equal(t, signature, Sign("key", "1700000000", "a.jpg"))
	assert.NotEqual(t, signature, Sign("other", "1700000000", "a.jpg"))
	assert.True(t, VerifySignature("key", "1700000000", "a.jpg", signature))
	assert.False(t, VerifySignature("key", "1700000001", "a.jpg", signature))
	assert.False(t, VerifySignature("key", "1700000000", "a.jpg", "not-hex"))
}
