package payload

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func readAll(t *testing.T, p Payload) string {
	t.Helper()
	reader, err := p.Open()
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(data)
}

func TestNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sunset.jpg")
	writeFile(t, path, "jpeg-bytes")

	file, err := NewFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sunset.jpg", file.Name())
	assert.Equal(t, path, file.Path())
	assert.Equal(t, int64(10), file.Size())
	assert.Equal(t, "jpeg-bytes", readAll(t, file))
	// a second Open starts from the beginning again
	assert.Equal(t, "jpeg-bytes", readAll(t, file))
}

func TestNewFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFile(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)

	_, err = NewFile(dir)
	assert.Error(t, err)
}

func TestBytes(t *testing.T) {
	p := NewBytes("forest.png", []byte("png-data"))

	assert.Equal(t, "forest.png", p.Name())
	assert.Equal(t, int64(8), p.Size())
	assert.Equal(t, "png-data", readAll(t, p))
}

func TestTotalSizeAndSizes(t *testing.T) {
	payloads := []Payload{
		NewBytes("a", []byte("12345")),
		NewBytes("b", nil),
		NewBytes("c", []byte("123")),
	}

	assert.Equal(t, int64(8), TotalSize(payloads))
	assert.Equal(t, []int64{5, 0, 3}, Sizes(payloads))
}

func TestChecksum(t *testing.T) {
	sum, err := Checksum(NewBytes("hello.txt", []byte("hello")))

	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestCollector_Collect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "travel", "beach.jpg"), "1")
	writeFile(t, filepath.Join(dir, "travel", "forest", "path.jpg"), "22")
	writeFile(t, filepath.Join(dir, "art", "abstract.png"), "333")
	writeFile(t, filepath.Join(dir, "notes.txt"), "4444")

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{
			name:     "plain path",
			patterns: []string{filepath.Join(dir, "notes.txt")},
			want:     []string{filepath.Join(dir, "notes.txt")},
		},
		{
			name:     "doublestar pattern",
			patterns: []string{filepath.Join(dir, "travel", "**", "*.jpg")},
			want: []string{
				filepath.Join(dir, "travel", "beach.jpg"),
				filepath.Join(dir, "travel", "forest", "path.jpg"),
			},
		},
		{
			name: "overlapping patterns are de-duplicated",
			patterns: []string{
				filepath.Join(dir, "**", "*.jpg"),
				filepath.Join(dir, "travel", "beach.jpg"),
				filepath.Join(dir, "art", "*"),
			},
			want: []string{
				filepath.Join(dir, "art", "abstract.png"),
				filepath.Join(dir, "travel", "beach.jpg"),
				filepath.Join(dir, "travel", "forest", "path.jpg"),
			},
		},
		{
			name: "missing paths and directories are skipped",
			patterns: []string{
				filepath.Join(dir, "missing.jpg"),
				filepath.Join(dir, "travel"),
				filepath.Join(dir, "*.gif"),
				"  ",
			},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector(log.NewLogger(), pathutil.NewPathModifier())

			payloads, err := collector.Collect(tt.patterns)
			require.NoError(t, err)

			var got []string
			for _, p := range payloads {
				got = append(got, p.(*File).Path())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
