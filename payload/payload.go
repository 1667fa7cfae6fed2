// Package payload provides the upload sources handed to the batch engine:
// files on disk, in-memory buffers and glob-selected file sets.
package payload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Payload is one opaque unit of upload data.
// Open may be called more than once; every call returns a fresh reader from the start.
type Payload interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// File is a payload backed by a file on disk.
type File struct {
	path string
	size int64
}

// NewFile stats the file at path and returns a payload for it.
func NewFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &File{
		path: path,
		size: info.Size(),
	}, nil
}

// Name returns the base name of the file.
func (f *File) Name() string {
	return filepath.Base(f.path)
}

// Path returns the path the payload was created with.
func (f *File) Path() string {
	return f.path
}

// Size returns the file size at the time the payload was created.
func (f *File) Size() int64 {
	return f.size
}

// Open opens the file for reading.
func (f *File) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Bytes is a payload held in memory.
type Bytes struct {
	name string
	data []byte
}

// NewBytes creates an in-memory payload. The data is not copied.
func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{name: name, data: data}
}

// Name ...
func (b *Bytes) Name() string {
	return b.name
}

// Size ...
func (b *Bytes) Size() int64 {
	return int64(len(b.data))
}

// Open ...
func (b *Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// FromPaths creates a File payload for every path, in order.
func FromPaths(paths []string) ([]Payload, error) {
	payloads := make([]Payload, 0, len(paths))
	for _, path := range paths {
		file, err := NewFile(path)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, file)
	}
	return payloads, nil
}

// TotalSize sums the size of every payload.
func TotalSize(payloads []Payload) int64 {
	var total int64
	for _, p := range payloads {
		if size := p.Size(); size > 0 {
			total += size
		}
	}
	return total
}

// Sizes returns the size of every payload, in order.
func Sizes(payloads []Payload) []int64 {
	sizes := make([]int64, len(payloads))
	for i, p := range payloads {
		sizes[i] = p.Size()
	}
	return sizes
}
